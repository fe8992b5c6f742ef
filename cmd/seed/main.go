package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/oggyb/soundmatch/internal/config"
	"github.com/oggyb/soundmatch/internal/db"
)

func main() {
	seed := flag.Int64("seed", 1, "random seed for the generated data")
	flag.Parse()

	// .env is optional; real env vars win
	_ = godotenv.Load()

	// Load configuration
	cfg := config.New()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	if err := db.SeedTestData(database, *seed); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Println("Seeding completed.")
}

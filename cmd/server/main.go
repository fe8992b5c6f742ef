package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"

	"github.com/oggyb/soundmatch/internal/app"
	"github.com/oggyb/soundmatch/internal/auth"
	"github.com/oggyb/soundmatch/internal/auxwar"
	"github.com/oggyb/soundmatch/internal/cache"
	"github.com/oggyb/soundmatch/internal/config"
	"github.com/oggyb/soundmatch/internal/db"
	"github.com/oggyb/soundmatch/internal/logger"
	"github.com/oggyb/soundmatch/internal/match"
	"github.com/oggyb/soundmatch/internal/scheduler"
	"github.com/oggyb/soundmatch/internal/server"
	auxwarsvc "github.com/oggyb/soundmatch/internal/service/auxwar"
	matchsvc "github.com/oggyb/soundmatch/internal/service/match"
	socialsvc "github.com/oggyb/soundmatch/internal/service/social"
	"github.com/oggyb/soundmatch/internal/social"
)

func main() {
	// .env is optional; real env vars win
	_ = godotenv.Load()

	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty; requests are trusted to name their own user", "env", cfg.App.ENV)
	}

	if err := run(cfg); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log := logger.L()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		return err
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		return err
	}
	defer redisCache.Close()

	if cfg.App.ENV == "development" && os.Getenv("SEED") != "" {
		if err := db.SeedTestData(database, time.Now().UnixNano()); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	appCtx := app.New(cfg, database, redisCache, log)
	clock := clockwork.NewRealClock()
	appCtx.Clock = clock

	matchEngine := match.NewEngine(appCtx)
	warEngine := auxwar.NewEngine(appCtx)
	socialEngine := social.NewEngine(appCtx)

	// round deadlines
	sched, err := scheduler.New(warEngine, clock, log)
	if err != nil {
		return err
	}
	warEngine.UseTimer(sched)
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Error("scheduler shutdown failed", "err", err)
		}
	}()
	if _, err := warEngine.RescheduleActive(ctx); err != nil {
		return err
	}

	srv := server.New(cfg, log, auth.New(cfg, clock),
		matchsvc.NewRegistrar(appCtx, matchEngine),
		auxwarsvc.NewRegistrar(appCtx, warEngine),
		socialsvc.NewRegistrar(appCtx, socialEngine),
	)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting gRPC server", "addr", srv.Addr())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		srv.Stop()
		return nil
	}
}

package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/soundmatch/internal/config"
)

// NewDB initializes the database connection using the driver and DSN from config.
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.Log.Level == "debug" {
		level = logger.Info // log SQL queries
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if cfg.DB.Driver == "sqlite" {
		// single writer; concurrent transactions queue on the pool
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate ensures schema is in sync with models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

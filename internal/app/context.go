package app

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/oggyb/soundmatch/internal/cache"
	"github.com/oggyb/soundmatch/internal/config"
	"github.com/oggyb/soundmatch/internal/events"
	"github.com/oggyb/soundmatch/internal/logger"
)

// AppContext holds shared dependencies (DB, Redis, Logger, clock, event sink).
// Tests swap Clock and Events for fakes after New.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Events     events.Sink
}

// New creates a new AppContext.
//
// With a Redis cache, events go to a RedisSink; without one they are dropped.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, log *slog.Logger) *AppContext {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if log == nil {
		log = logger.L()
	}
	a := &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     log,
		Clock:      clockwork.NewRealClock(),
		Events:     events.Nop{},
	}
	if rdb != nil {
		a.Events = events.NewRedisSink(rdb.Client, cfg.Events.Prefix, cfg.Events.RecentMax)
	}
	return a
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		ENV string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Component string `yaml:"component"`
		Source    bool   `yaml:"source"`
		// File enables rotating file output instead of stdout.
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`

	DB struct {
		Driver   string `yaml:"driver"` // mysql | postgres | sqlite
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"db"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	GRPC struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
	} `yaml:"grpc"`

	Auth struct {
		// Empty JWTSecret disables token checks; the acting user then
		// comes from the request. Only allowed in development and test.
		JWTSecret string        `yaml:"jwt_secret"`
		Issuer    string        `yaml:"issuer"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	AuxWar struct {
		MaxContestants      int           `yaml:"max_contestants"`
		Rounds              int           `yaml:"rounds"`
		SubmissionTimeLimit time.Duration `yaml:"submission_time_limit"`
		VotingTimeLimit     time.Duration `yaml:"voting_time_limit"`
		TieBreak            string        `yaml:"tie_break"` // earliest | latest
	} `yaml:"aux_war"`

	Events struct {
		Prefix    string `yaml:"prefix"`
		RecentMax int64  `yaml:"recent_max"`
	} `yaml:"events"`
}

// New builds the config from defaults, then CONFIG_FILE (YAML) if set,
// then environment variables. Env always wins.
func New() *Config {
	cfg, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		// a broken config file should not silently fall back
		panic(err)
	}
	return cfg
}

// Load is New with an explicit YAML path. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.DB.DSN == "" {
		cfg.DB.DSN = buildDSN(cfg)
	}

	return cfg, nil
}

// Validate rejects configurations that are unsafe to serve with. Outside
// development and test a JWT secret is mandatory.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" && !c.AllowsAnonymous() {
		return fmt.Errorf("JWT_SECRET is required when APP_ENV=%s", c.App.ENV)
	}
	return nil
}

// AllowsAnonymous reports whether the environment may run without token checks.
func (c *Config) AllowsAnonymous() bool {
	switch strings.ToLower(c.App.ENV) {
	case "development", "test":
		return true
	}
	return false
}

// Defaults returns the built-in configuration, before file and env overrides.
func Defaults() *Config {
	cfg := &Config{}

	cfg.App.ENV = "development"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Component = "grpc_server"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 7

	cfg.DB.Driver = "mysql"
	cfg.DB.Host = "localhost"
	cfg.DB.Port = "3306"
	cfg.DB.User = "root"
	cfg.DB.Password = "root"
	cfg.DB.Name = "soundmatch"

	cfg.Redis.Addr = "localhost:6379"

	cfg.GRPC.Host = "127.0.0.1"
	cfg.GRPC.Port = "50051"

	cfg.Auth.Issuer = "soundmatch"
	cfg.Auth.TokenTTL = 24 * time.Hour

	cfg.AuxWar.MaxContestants = 8
	cfg.AuxWar.Rounds = 1
	cfg.AuxWar.SubmissionTimeLimit = 120 * time.Second
	cfg.AuxWar.VotingTimeLimit = 60 * time.Second
	cfg.AuxWar.TieBreak = "earliest"

	cfg.Events.Prefix = "events"
	cfg.Events.RecentMax = 1000

	return cfg
}

func applyEnv(cfg *Config) {
	setString(&cfg.App.ENV, "APP_ENV")

	// Logger
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.Component, "LOG_COMPONENT")
	if v, ok := lookup("LOG_SOURCE"); ok {
		cfg.Log.Source = isTruthy(v)
	}
	setString(&cfg.Log.File, "LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "LOG_MAX_AGE_DAYS")

	// Database
	setString(&cfg.DB.Driver, "DB_DRIVER")
	setString(&cfg.DB.DSN, "DB_DSN")
	if cfg.DB.Driver == "mysql" {
		setString(&cfg.DB.DSN, "MYSQL_DSN")
	}
	setString(&cfg.DB.Host, "DB_HOST")
	setString(&cfg.DB.Port, "DB_PORT")
	setString(&cfg.DB.User, "DB_USER")
	setString(&cfg.DB.Password, "DB_PASSWORD")
	setString(&cfg.DB.Name, "DB_NAME")

	// Redis
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	// gRPC
	setString(&cfg.GRPC.Host, "GRPC_HOST")
	setString(&cfg.GRPC.Port, "GRPC_PORT")

	// Auth
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.Issuer, "JWT_ISSUER")
	setDuration(&cfg.Auth.TokenTTL, "JWT_TOKEN_TTL")

	// Aux wars
	setInt(&cfg.AuxWar.MaxContestants, "AUXWAR_MAX_CONTESTANTS")
	setInt(&cfg.AuxWar.Rounds, "AUXWAR_ROUNDS")
	setDuration(&cfg.AuxWar.SubmissionTimeLimit, "AUXWAR_SUBMISSION_TIME_LIMIT")
	setDuration(&cfg.AuxWar.VotingTimeLimit, "AUXWAR_VOTING_TIME_LIMIT")
	setString(&cfg.AuxWar.TieBreak, "AUXWAR_TIE_BREAK")

	// Events
	setString(&cfg.Events.Prefix, "EVENTS_PREFIX")
	if v, ok := lookup("EVENTS_RECENT_MAX"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Events.RecentMax = n
		}
	}
}

func buildDSN(cfg *Config) string {
	switch cfg.DB.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
		)
	case "sqlite":
		return cfg.DB.Name + ".db"
	default:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}
}

func lookup(k string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(k))
	return v, v != ""
}

func setString(dst *string, k string) {
	if v, ok := lookup(k); ok {
		*dst = v
	}
}

func setInt(dst *int, k string) {
	if v, ok := lookup(k); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, k string) {
	if v, ok := lookup(k); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

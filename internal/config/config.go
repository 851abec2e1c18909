// Package config defines service configuration and how it is loaded.
package config

import (
	"context"
	"runtime"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/guard"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`

	// DBDriver is memory, sqlite or postgres. DBDSN is ignored for memory.
	DBDriver          string        `koanf:"db_driver"`
	DBDSN             string        `koanf:"db_dsn"`
	DBMaxOpenConns    int           `koanf:"db_max_open_conns"`
	DBMaxIdleConns    int           `koanf:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `koanf:"db_conn_max_lifetime"`
	DBAutoMigrate     bool          `koanf:"db_auto_migrate"`

	// RedisAddr enables the shared submission id cache. Empty keeps ids in
	// process memory.
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	DedupeSize    int           `koanf:"dedupe_size"`
	DedupeTTL     time.Duration `koanf:"dedupe_ttl"`

	// Plausibility thresholds.
	MaxStageScoreSafe         int `koanf:"max_stage_score_safe"`
	MaxScoreAbsolute          int `koanf:"max_score_absolute"`
	SpeedScoreThreshold       int `koanf:"speed_score_threshold"`
	SpeedMinDurationSeconds   int `koanf:"speed_min_duration_seconds"`
	CareerSpeedScoreThreshold int `koanf:"career_speed_score_threshold"`
	CareerMinDurationSeconds  int `koanf:"career_min_duration_seconds"`
	PerfectScoreThreshold     int `koanf:"perfect_score_threshold"`

	// DefaultLeaderboardLimit is used when a query names no limit;
	// MaxLeaderboardLimit caps it.
	DefaultLeaderboardLimit int `koanf:"default_leaderboard_limit"`
	MaxLeaderboardLimit     int `koanf:"max_leaderboard_limit"`
	// GlobalScope is the score table behind the global board, CountryScope
	// the one filtered by country.
	GlobalScope  string `koanf:"global_scope"`
	CountryScope string `koanf:"country_scope"`

	// WorkerCount and QueueCapacity size the rebuild worker pool.
	WorkerCount   int `koanf:"worker_count"`
	QueueCapacity int `koanf:"queue_capacity"`

	// Stages overrides or extends the built-in stage catalog.
	Stages map[string]model.StageConfig `koanf:"stages"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	l := guard.DefaultLimits()
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      ":9080",
		ReadHeaderTimeout:         5 * time.Second,
		ReadTimeout:               10 * time.Second,
		WriteTimeout:              15 * time.Second,
		IdleTimeout:               60 * time.Second,
		ShutdownTimeout:           30 * time.Second,
		DBDriver:                  DriverMemory,
		DBMaxOpenConns:            20,
		DBMaxIdleConns:            5,
		DBConnMaxLifetime:         30 * time.Minute,
		DBAutoMigrate:             true,
		DedupeSize:                50_000,
		DedupeTTL:                 24 * time.Hour,
		MaxStageScoreSafe:         l.MaxStageScoreSafe,
		MaxScoreAbsolute:          l.MaxScoreAbsolute,
		SpeedScoreThreshold:       l.SpeedScoreThreshold,
		SpeedMinDurationSeconds:   l.SpeedMinDurationSeconds,
		CareerSpeedScoreThreshold: l.CareerSpeedScoreThreshold,
		CareerMinDurationSeconds:  l.CareerMinDurationSeconds,
		PerfectScoreThreshold:     l.PerfectScoreThreshold,
		DefaultLeaderboardLimit:   10,
		MaxLeaderboardLimit:       100,
		GlobalScope:               "career",
		CountryScope:              "career",
		WorkerCount:               runtime.NumCPU(),
		QueueCapacity:             1024,
	}
}

// GuardLimits returns the plausibility thresholds.
func (c *Config) GuardLimits() guard.Limits {
	return guard.Limits{
		MaxStageScoreSafe:         c.MaxStageScoreSafe,
		MaxScoreAbsolute:          c.MaxScoreAbsolute,
		SpeedScoreThreshold:       c.SpeedScoreThreshold,
		SpeedMinDurationSeconds:   c.SpeedMinDurationSeconds,
		CareerSpeedScoreThreshold: c.CareerSpeedScoreThreshold,
		CareerMinDurationSeconds:  c.CareerMinDurationSeconds,
		PerfectScoreThreshold:     c.PerfectScoreThreshold,
	}
}

package config

import (
	"fmt"
	"strings"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/scope"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/scoring"
)

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	}

	switch c.DBDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.DBDSN) == "" {
			return invalid("db_dsn is required for the %s driver", c.DBDriver)
		}
		if c.DBMaxOpenConns < 1 || c.DBMaxIdleConns < 0 {
			return invalid("db pool sizes must be positive")
		}
	default:
		return invalid("unknown db_driver %q", c.DBDriver)
	}

	if c.DedupeSize < 1 || c.DedupeTTL <= 0 {
		return invalid("dedupe_size and dedupe_ttl must be positive")
	}
	if c.WorkerCount < 1 || c.QueueCapacity < 1 {
		return invalid("worker_count and queue_capacity must be positive")
	}
	if c.DefaultLeaderboardLimit < 1 || c.MaxLeaderboardLimit < c.DefaultLeaderboardLimit {
		return invalid("leaderboard limits need 1 <= default_leaderboard_limit <= max_leaderboard_limit")
	}
	for key, v := range map[string]string{"global_scope": c.GlobalScope, "country_scope": c.CountryScope} {
		if _, ok := scope.Parse(v); !ok {
			return invalid("%s: unknown scope %q", key, v)
		}
	}

	if c.MaxStageScoreSafe < 1 || c.MaxScoreAbsolute < c.MaxStageScoreSafe {
		return invalid("guard limits need 1 <= max_stage_score_safe <= max_score_absolute")
	}
	if c.SpeedScoreThreshold < 0 || c.CareerSpeedScoreThreshold < 0 || c.PerfectScoreThreshold < 0 {
		return invalid("guard score thresholds must not be negative")
	}
	if c.SpeedMinDurationSeconds < 0 || c.CareerMinDurationSeconds < 0 {
		return invalid("guard durations must not be negative")
	}

	for id, st := range c.Stages {
		if err := scoring.ValidateStageConfig(id, st); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

package sqlstore

import (
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger        logger.Logger
	autoMigrate   bool
	maxOpenConns  int
	maxIdleConns  int
	connLifetime  time.Duration
	slowThreshold time.Duration
}

func defaultOptions() options {
	return options{
		maxOpenConns:  20,
		maxIdleConns:  5,
		connLifetime:  30 * time.Minute,
		slowThreshold: time.Second,
	}
}

// WithLogger sets the logger used for the store and for gorm.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAutoMigrate creates or updates the schema on open.
func WithAutoMigrate(enabled bool) Option {
	return func(o *options) { o.autoMigrate = enabled }
}

// WithPool sizes the connection pool. SQLite always uses one connection.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(o *options) {
		if maxOpen > 0 {
			o.maxOpenConns = maxOpen
		}
		if maxIdle >= 0 {
			o.maxIdleConns = maxIdle
		}
		if lifetime > 0 {
			o.connLifetime = lifetime
		}
	}
}

// WithSlowThreshold sets the duration above which queries are logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) { o.slowThreshold = d }
}

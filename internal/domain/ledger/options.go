package ledger

import (
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger's logger.
func WithLogger(l logger.Logger) Option {
	return func(lg *Ledger) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithClock replaces the clock used for attempts without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) {
		if now != nil {
			lg.now = now
		}
	}
}

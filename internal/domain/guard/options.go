package guard

import "github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"

// Option applies a configuration option to the Guard.
type Option func(*Guard)

// WithLimits replaces the default thresholds.
func WithLimits(l Limits) Option {
	return func(g *Guard) { g.limits = l }
}

// WithLogger sets the guard's logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

package bestrecord

import "github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver registers a callback invoked on every state transition.
func WithObserver(fn func(kind string, s State)) Option {
	return func(s *Store) { s.observer = fn }
}

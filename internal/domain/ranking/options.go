package ranking

import "github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLimits sets the default and maximum page sizes.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
		if defaultLimit > 0 && defaultLimit <= s.maxLimit {
			s.defaultLimit = defaultLimit
		}
	}
}

// WithGlobalScope sets the scope read by the global board.
func WithGlobalScope(scope string) Option {
	return func(s *Service) {
		if scope != "" {
			s.globalScope = scope
		}
	}
}

// WithCountryScope sets the scope country boards are confined to.
func WithCountryScope(scope string) Option {
	return func(s *Service) {
		if scope != "" {
			s.countryScope = scope
		}
	}
}

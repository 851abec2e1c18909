package service

import (
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/dedupe"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/guard"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/scoring"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service and the components it
// builds.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGuardLimits sets the plausibility thresholds.
func WithGuardLimits(l guard.Limits) Option {
	return func(s *Service) { s.limits = &l }
}

// WithCatalog replaces the stage catalog used by the score formula.
func WithCatalog(c scoring.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithRankingOptions passes options to the ranking service.
func WithRankingOptions(opts ...ranking.Option) Option {
	return func(s *Service) { s.rankingOpts = append(s.rankingOpts, opts...) }
}

// WithDeduper enables submission idempotency keyed by submission id.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) { s.deduper = d }
}

// WithWorkerCount sets the number of rebuild workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueCapacity sets the capacity of the rebuild queue.
func WithQueueCapacity(capacity int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.queueCapacity = capacity
		}
	}
}

// WithClock replaces the time source used for submissions without a
// completion time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

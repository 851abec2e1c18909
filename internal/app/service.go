// Package service wires the scoring and ranking engine together and exposes
// the operations the HTTP API and the CLI call.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/bestrecord"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/dedupe"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/guard"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ledger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/scoring"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/stats"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

// Submission kinds, used in metric labels.
const (
	kindStage = "stage"
	kindScore = "score"
)

// Service implements the API dependencies of the engine.
type Service struct {
	store   repository.Store
	guard   *guard.Guard
	formula *scoring.Formula
	best    *bestrecord.Store
	ledger  *ledger.Ledger
	stats   *stats.Aggregator
	ranking *ranking.Service
	deduper dedupe.Deduper

	// Configuration
	limits        *guard.Limits
	catalog       scoring.Catalog
	rankingOpts   []ranking.Option
	workerCount   int
	queueCapacity int
	now           func() time.Time

	mu          sync.RWMutex
	lastRebuild *RebuildReport

	logger logger.Logger
}

// New builds a Service on top of store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		catalog:       scoring.DefaultCatalog(),
		workerCount:   runtime.NumCPU(),
		queueCapacity: 1024,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	gopts := []guard.Option{guard.WithLogger(s.logger.Named("guard"))}
	if s.limits != nil {
		gopts = append(gopts, guard.WithLimits(*s.limits))
	}
	s.guard = guard.New(gopts...)
	s.formula = scoring.New(scoring.WithCatalog(s.catalog))
	s.best = bestrecord.New(store, bestrecord.WithLogger(s.logger.Named("bestrecord")))
	s.ledger = ledger.New(ledger.WithLogger(s.logger.Named("ledger")), ledger.WithClock(s.now))
	s.stats = stats.New(store, stats.WithLogger(s.logger.Named("stats")), stats.WithClock(s.now))
	s.ranking = ranking.New(store, append([]ranking.Option{ranking.WithLogger(s.logger.Named("ranking"))}, s.rankingOpts...)...)
	return s
}

// Ranking returns the ranking service the engine reads through.
func (s *Service) Ranking() *ranking.Service { return s.ranking }

// Formula returns the authoritative score formula.
func (s *Service) Formula() *scoring.Formula { return s.formula }

// claim reserves a submission id. It reports false for a duplicate; release
// forgets the id again when the guarded work fails. Without a deduper or an
// id every submission is fresh.
func (s *Service) claim(ctx context.Context, kind string, userID int64, id string) (bool, func()) {
	noop := func() {}
	if s.deduper == nil || id == "" {
		return true, noop
	}
	key := fmt.Sprintf("%s:%d:%s", kind, userID, id)
	fresh, err := s.deduper.Claim(ctx, key)
	if err != nil {
		metrics.RecordErrorByComponent("service", "dedupe_claim")
		s.logger.Warn(ctx, "idempotency check unavailable, processing submission",
			logger.String("key", key), logger.Error(err))
		return true, noop
	}
	if !fresh {
		metrics.RecordDuplicateSubmission()
		s.logger.Debug(ctx, "duplicate submission ignored", logger.String("key", key))
		return false, noop
	}
	return true, func() {
		if err := s.deduper.Release(context.WithoutCancel(ctx), key); err != nil {
			metrics.RecordErrorByComponent("service", "dedupe_release")
			s.logger.Warn(ctx, "could not release submission id", logger.String("key", key), logger.Error(err))
		}
	}
}

func checkPlayer(p model.Player) error {
	if p.ID <= 0 {
		return model.Reject(model.ErrInvalidInput, "identity", "a positive user id is required")
	}
	return nil
}

func (s *Service) submitted(kind, outcome string, err error) {
	switch {
	case err == nil:
		metrics.RecordSubmission(kind, outcome)
	case isRejection(err):
		metrics.RecordSubmission(kind, "rejected")
	default:
		metrics.RecordSubmission(kind, "failed")
	}
}

func isRejection(err error) bool {
	_, ok := model.IsRejection(err)
	return ok
}

// Stats is a point-in-time view of the engine for monitoring.
type Stats struct {
	Counts      repository.Counts `json:"counts"`
	LastRebuild *RebuildReport    `json:"last_rebuild,omitempty"`
	WorkerCount int               `json:"worker_count"`
}

// GetStats returns row counts and the outcome of the last rebuild.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	c, err := s.store.Counts(ctx)
	if err != nil {
		return Stats{}, repository.Persistence("counts", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Stats{Counts: c, WorkerCount: s.workerCount}
	if s.lastRebuild != nil {
		r := *s.lastRebuild
		out.LastRebuild = &r
	}
	return out, nil
}

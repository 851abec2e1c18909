// Package stats derives a user's career summary from their best records. The
// summary is always recomputed from scratch and written as a full
// replacement, never patched.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

// TxRunner runs a function inside a storage transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

// Summarize folds best records into a summary. With no records the last
// activity is now.
func Summarize(userID int64, bests []model.StageBest, now time.Time) model.CareerStats {
	s := model.CareerStats{UserID: userID, StagesCompleted: len(bests)}
	for _, b := range bests {
		s.TotalScore += b.Score
		s.TotalHintsUsed += b.HintsUsed
		s.TotalTimeSeconds += b.TimeSeconds
		if b.AchievedAt.After(s.LastActivityAt) {
			s.LastActivityAt = b.AchievedAt
		}
	}
	if len(bests) == 0 {
		s.LastActivityAt = now
	}
	s.LastActivityAt = s.LastActivityAt.UTC()
	return s
}

// Aggregator recomputes and stores summaries.
type Aggregator struct {
	runner TxRunner
	logger logger.Logger
	now    func() time.Time
}

// New creates an Aggregator.
func New(runner TxRunner, opts ...Option) *Aggregator {
	a := &Aggregator{runner: runner, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Named("stats")
	}
	return a
}

// Recompute rebuilds the summary of userID from every stage best and
// replaces the stored one.
func (a *Aggregator) Recompute(ctx context.Context, userID int64) (model.CareerStats, error) {
	var out model.CareerStats
	err := a.runner.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = a.RecomputeTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		metrics.RecordErrorByComponent("stats", "recompute")
		a.logger.Error(ctx, "career stats recompute failed", logger.Int64("user_id", userID), logger.Error(err))
		return model.CareerStats{}, repository.Persistence(fmt.Sprintf("recompute stats for %d", userID), err)
	}
	return out, nil
}

// RecomputeTx is Recompute inside a transaction the caller owns, so the
// summary commits or rolls back with the caller's other writes.
func (a *Aggregator) RecomputeTx(ctx context.Context, tx repository.Tx, userID int64) (model.CareerStats, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRecomputeLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	bests, err := tx.ListStageBests(ctx, userID)
	if err != nil {
		return model.CareerStats{}, err
	}
	out := Summarize(userID, bests, a.now())
	if err := tx.PutCareerStats(ctx, out); err != nil {
		return model.CareerStats{}, err
	}
	return out, nil
}

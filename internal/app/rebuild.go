package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/mq/queue"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/mq/worker"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
)

// ErrRebuildIncomplete is returned when at least one rebuild job failed.
var ErrRebuildIncomplete = errors.New("rebuild incomplete")

// Rebuilder processes rebuild jobs.
type Rebuilder struct {
	s *Service
}

var _ worker.Processor = (*Rebuilder)(nil)

// Rebuilder returns the job processor of the service.
func (s *Service) Rebuilder() *Rebuilder { return &Rebuilder{s: s} }

// Process implements worker.Processor.
func (r *Rebuilder) Process(ctx context.Context, j queue.Job) error {
	switch j.Kind {
	case queue.KindReplay:
		return r.Replay(ctx, j.UserID)
	case queue.KindRecompute:
		_, err := r.s.stats.Recompute(ctx, j.UserID)
		return err
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
}

// Replay feeds every ledger attempt of userID, oldest first, through the
// stage best upsert and then recomputes the career summary. Replaying twice
// changes nothing.
func (r *Rebuilder) Replay(ctx context.Context, userID int64) error {
	attempts, err := r.s.store.Attempts(ctx, userID)
	if err != nil {
		return fmt.Errorf("read ledger of %d: %w", userID, err)
	}
	for _, a := range attempts {
		_, _, err := r.s.best.UpsertStageBest(ctx, model.StageBest{
			UserID:      a.UserID,
			StageID:     a.StageID,
			Score:       a.Score,
			HintsUsed:   a.HintsUsed,
			TimeSeconds: a.TimeSeconds,
			Groups:      a.Groups,
			AttemptID:   a.ID,
			AchievedAt:  a.CompletedAt,
		})
		if err != nil {
			return fmt.Errorf("replay attempt %d: %w", a.ID, err)
		}
	}
	_, err = r.s.stats.Recompute(ctx, userID)
	return err
}

// RebuildReport summarizes one rebuild run.
type RebuildReport struct {
	Kind       string    `json:"kind"`
	Users      int       `json:"users"`
	Processed  int64     `json:"processed"`
	Failed     int64     `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Rebuild runs kind for every user in userIDs, or for every user with a
// ledger when userIDs is empty, on a pool of workers.
func (s *Service) Rebuild(ctx context.Context, kind string, userIDs []int64) (RebuildReport, error) {
	if kind != queue.KindReplay && kind != queue.KindRecompute {
		return RebuildReport{}, model.Reject(model.ErrInvalidInput, "kind", fmt.Sprintf("unknown rebuild kind %q", kind))
	}
	if len(userIDs) == 0 {
		ids, err := s.store.UsersWithAttempts(ctx)
		if err != nil {
			return RebuildReport{}, fmt.Errorf("list users: %w", err)
		}
		userIDs = ids
	}
	report := RebuildReport{Kind: kind, Users: len(userIDs), StartedAt: time.Now()}
	s.logger.Info(ctx, "rebuild started", logger.String("kind", kind), logger.Int("users", len(userIDs)),
		logger.Int("workers", s.workerCount))

	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueCapacity))
	pool := worker.NewPool(s.workerCount, q, s.Rebuilder(), worker.WithLogger(s.logger.Named("rebuild")))
	pool.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer q.Close()
		for _, id := range userIDs {
			if err := q.EnqueueWait(gctx, queue.NewJob(kind, id)); err != nil {
				return fmt.Errorf("enqueue user %d: %w", id, err)
			}
		}
		return nil
	})
	g.Go(func() error { return pool.Wait(gctx) })
	err := g.Wait()

	st := pool.Stats()
	report.Processed, report.Failed = st.Processed, st.Failed
	report.FinishedAt = time.Now()
	s.mu.Lock()
	s.lastRebuild = &report
	s.mu.Unlock()

	s.logger.Info(ctx, "rebuild finished",
		logger.Int64("processed", report.Processed),
		logger.Int64("failed", report.Failed),
		logger.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	if err != nil {
		return report, err
	}
	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d users failed", ErrRebuildIncomplete, report.Failed, report.Users)
	}
	return report, nil
}

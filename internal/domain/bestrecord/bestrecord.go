// Package bestrecord keeps one best record per (user, key) under concurrent
// writers.
//
// Every upsert is a small state machine:
//
//	ReadInitial -> AttemptInsert -> Success
//	                             -> ConflictDetected -> ReadExisting -> AttemptUpdate -> Success
//	ReadInitial -> AttemptUpdate -> Success
//
// A first insert that loses the race on the unique (user, key) constraint
// rolls back and is retried exactly once as an update against the row that
// now exists. Any failure on the retry is fatal. Work bound through a Unit
// shares the transaction, so a submission applies completely or not at all.
package bestrecord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

// Record kinds, used in logs and metric labels.
const (
	KindStageBest  = "stage_best"
	KindScopedBest = "scoped_best"
)

// State is a step of the upsert state machine.
type State int

// Upsert states.
const (
	StateReadInitial State = iota
	StateAttemptInsert
	StateAttemptUpdate
	StateConflictDetected
	StateReadExisting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReadInitial:
		return "ReadInitial"
	case StateAttemptInsert:
		return "AttemptInsert"
	case StateAttemptUpdate:
		return "AttemptUpdate"
	case StateConflictDetected:
		return "ConflictDetected"
	case StateReadExisting:
		return "ReadExisting"
	case StateSuccess:
		return "Success"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TxRunner runs a function inside a storage transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

// Store upserts best records.
type Store struct {
	runner   TxRunner
	logger   logger.Logger
	observer func(kind string, s State)
}

// New creates a Store on top of runner.
func New(runner TxRunner, opts ...Option) *Store {
	s := &Store{runner: runner}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("bestrecord")
	}
	return s
}

// StageBetter reports whether a strictly beats b: higher score, then fewer
// hints, then less time.
func StageBetter(a, b model.StageBest) bool {
	switch {
	case a.Score != b.Score:
		return a.Score > b.Score
	case a.HintsUsed != b.HintsUsed:
		return a.HintsUsed < b.HintsUsed
	default:
		return a.TimeSeconds < b.TimeSeconds
	}
}

// UpsertStageBest stores candidate when no record exists for its (user,
// stage) or when it strictly beats the stored one. It returns the record in
// force afterwards and whether candidate replaced it.
func (s *Store) UpsertStageBest(ctx context.Context, candidate model.StageBest) (model.StageBest, bool, error) {
	return s.UpsertStageBestWith(ctx, candidate, Unit[model.StageBest]{})
}

// UpsertStageBestWith is UpsertStageBest with extra work bound to the same
// transaction.
func (s *Store) UpsertStageBestWith(ctx context.Context, candidate model.StageBest, unit Unit[model.StageBest]) (model.StageBest, bool, error) {
	return run(ctx, s, policy[model.StageBest]{
		kind:      KindStageBest,
		candidate: candidate,
		unit:      unit,
		find: func(ctx context.Context, tx repository.Tx) (model.StageBest, bool, error) {
			return tx.FindStageBest(ctx, candidate.UserID, candidate.StageID, true)
		},
		insert: func(ctx context.Context, tx repository.Tx, b model.StageBest) error { return tx.InsertStageBest(ctx, b) },
		update: func(ctx context.Context, tx repository.Tx, b model.StageBest) error { return tx.UpdateStageBest(ctx, b) },
		merge: func(existing, candidate model.StageBest) (model.StageBest, bool, bool) {
			if StageBetter(candidate, existing) {
				return candidate, true, true
			}
			return existing, false, false
		},
	})
}

// ScoreSubmission is one single-score submission within a scope.
type ScoreSubmission struct {
	UserID      int64
	Scope       string
	CountryCode string
	Score       int
	At          time.Time
}

// UpsertScopedBest records a score in a scope. The max score moves only on a
// strictly greater score; the last score and its date always move. The
// boolean reports whether the max moved (a first submission counts).
func (s *Store) UpsertScopedBest(ctx context.Context, sub ScoreSubmission) (model.ScopedBest, bool, error) {
	return s.UpsertScopedBestWith(ctx, sub, Unit[model.ScopedBest]{})
}

// UpsertScopedBestWith is UpsertScopedBest with extra work bound to the same
// transaction.
func (s *Store) UpsertScopedBestWith(ctx context.Context, sub ScoreSubmission, unit Unit[model.ScopedBest]) (model.ScopedBest, bool, error) {
	fresh := model.ScopedBest{
		UserID: sub.UserID, Scope: sub.Scope, CountryCode: sub.CountryCode,
		MaxScore: sub.Score, MaxScoreAt: sub.At,
		LastScore: sub.Score, LastScoreAt: sub.At,
	}
	return run(ctx, s, policy[model.ScopedBest]{
		kind:      KindScopedBest,
		candidate: fresh,
		unit:      unit,
		find: func(ctx context.Context, tx repository.Tx) (model.ScopedBest, bool, error) {
			return tx.FindScopedBest(ctx, sub.UserID, sub.Scope, true)
		},
		insert: func(ctx context.Context, tx repository.Tx, b model.ScopedBest) error { return tx.InsertScopedBest(ctx, b) },
		update: func(ctx context.Context, tx repository.Tx, b model.ScopedBest) error { return tx.UpdateScopedBest(ctx, b) },
		merge: func(existing, c model.ScopedBest) (model.ScopedBest, bool, bool) {
			next := existing
			next.LastScore, next.LastScoreAt = c.LastScore, c.LastScoreAt
			if c.CountryCode != "" {
				next.CountryCode = c.CountryCode
			}
			improved := c.MaxScore > existing.MaxScore
			if improved {
				next.MaxScore, next.MaxScoreAt = c.MaxScore, c.MaxScoreAt
			}
			return next, true, improved
		},
	})
}

// Unit binds extra work to every transaction an upsert runs. Prepare runs
// first and may complete the candidate; Finish runs last with the record in
// force and whether it improved. An error from either rolls the whole
// transaction back. Both run again if the upsert is retried.
type Unit[R any] struct {
	Prepare func(ctx context.Context, tx repository.Tx, candidate *R) error
	Finish  func(ctx context.Context, tx repository.Tx, record R, improved bool) error
}

func (u Unit[R]) prepare(ctx context.Context, tx repository.Tx, candidate R) (R, error) {
	if u.Prepare == nil {
		return candidate, nil
	}
	err := u.Prepare(ctx, tx, &candidate)
	return candidate, err
}

func (u Unit[R]) finish(ctx context.Context, tx repository.Tx, record R, improved bool) error {
	if u.Finish == nil {
		return nil
	}
	return u.Finish(ctx, tx, record, improved)
}

// policy binds the state machine to one record kind. merge returns the next
// record, whether it must be written, and whether it is an improvement.
type policy[R any] struct {
	kind      string
	candidate R
	unit      Unit[R]
	find      func(ctx context.Context, tx repository.Tx) (R, bool, error)
	insert    func(ctx context.Context, tx repository.Tx, r R) error
	update    func(ctx context.Context, tx repository.Tx, r R) error
	merge     func(existing, candidate R) (R, bool, bool)
}

func run[R any](ctx context.Context, s *Store, p policy[R]) (R, bool, error) {
	var (
		zero     R
		result   R
		improved bool
	)

	s.observe(p.kind, StateReadInitial)
	err := s.runner.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		candidate, err := p.unit.prepare(ctx, tx, p.candidate)
		if err != nil {
			return err
		}
		existing, found, err := p.find(ctx, tx)
		if err != nil {
			return err
		}
		if found {
			result, improved, err = applyUpdate(ctx, s, tx, p, existing, candidate)
		} else {
			s.observe(p.kind, StateAttemptInsert)
			err = p.insert(ctx, tx, candidate)
			result, improved = candidate, true
		}
		if err != nil {
			return err
		}
		return p.unit.finish(ctx, tx, result, improved)
	})
	if err == nil {
		return succeed(s, p.kind, result, improved)
	}
	if !errors.Is(err, model.ErrWriteConflict) {
		return zero, false, s.fail(ctx, p.kind, err)
	}

	s.observe(p.kind, StateConflictDetected)
	s.logger.Debug(ctx, "first insert lost the race; retrying as update", logger.String("record", p.kind))
	err = s.runner.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		candidate, err := p.unit.prepare(ctx, tx, p.candidate)
		if err != nil {
			return err
		}
		s.observe(p.kind, StateReadExisting)
		existing, found, err := p.find(ctx, tx)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s missing after conflict", p.kind)
		}
		result, improved, err = applyUpdate(ctx, s, tx, p, existing, candidate)
		if err != nil {
			return err
		}
		return p.unit.finish(ctx, tx, result, improved)
	})
	if err != nil {
		metrics.RecordWriteConflict(p.kind, "exhausted")
		return zero, false, s.fail(ctx, p.kind, err)
	}
	metrics.RecordWriteConflict(p.kind, "retried")
	return succeed(s, p.kind, result, improved)
}

func applyUpdate[R any](ctx context.Context, s *Store, tx repository.Tx, p policy[R], existing, candidate R) (R, bool, error) {
	next, write, improved := p.merge(existing, candidate)
	if !write {
		return existing, false, nil
	}
	s.observe(p.kind, StateAttemptUpdate)
	if err := p.update(ctx, tx, next); err != nil {
		return existing, false, err
	}
	return next, improved, nil
}

func succeed[R any](s *Store, kind string, r R, improved bool) (R, bool, error) {
	s.observe(kind, StateSuccess)
	if improved {
		metrics.RecordBestImprovement(kind)
	}
	return r, improved, nil
}

func (s *Store) fail(ctx context.Context, kind string, err error) error {
	s.observe(kind, StateFailed)
	metrics.RecordErrorByComponent("bestrecord", kind)
	s.logger.Error(ctx, "best record upsert failed", logger.String("record", kind), logger.Error(err))
	switch {
	case errors.Is(err, model.ErrWriteConflict):
		return fmt.Errorf("upsert %s: %w: retry exhausted: %v", kind, model.ErrPersistence, err)
	case errors.Is(err, model.ErrPersistence):
		return err
	default:
		return fmt.Errorf("upsert %s: %w: %w", kind, model.ErrPersistence, err)
	}
}

func (s *Store) observe(kind string, st State) {
	if s.observer != nil {
		s.observer(kind, st)
	}
}

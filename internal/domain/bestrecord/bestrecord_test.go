package bestrecord_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository/memory"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/bestrecord"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// rivalRunner commits a rival row from another transaction right before the
// first insert of the wrapped transaction, then reports the unique violation
// the database would raise.
type rivalRunner struct {
	inner    *memory.Store
	rival    func(ctx context.Context, tx repository.Tx) error
	injected bool
}

func (r *rivalRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return r.inner.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &rivalTx{Tx: tx, r: r})
	})
}

type rivalTx struct {
	repository.Tx
	r *rivalRunner
}

func (t *rivalTx) inject(ctx context.Context) error {
	if t.r.injected {
		return nil
	}
	t.r.injected = true
	if err := t.r.inner.WithinTx(ctx, t.r.rival); err != nil {
		return err
	}
	return repository.ErrConflict
}

func (t *rivalTx) InsertStageBest(ctx context.Context, b model.StageBest) error {
	if err := t.inject(ctx); err != nil {
		return err
	}
	return t.Tx.InsertStageBest(ctx, b)
}

func (t *rivalTx) InsertScopedBest(ctx context.Context, b model.ScopedBest) error {
	if err := t.inject(ctx); err != nil {
		return err
	}
	return t.Tx.InsertScopedBest(ctx, b)
}

// brokenRunner always conflicts on insert and never finds the row.
type brokenRunner struct{ firstErr error }

func (b *brokenRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, &brokenTx{err: b.firstErr})
}

type brokenTx struct {
	repository.Tx
	err error
}

func (t *brokenTx) FindStageBest(context.Context, int64, string, bool) (model.StageBest, bool, error) {
	return model.StageBest{}, false, nil
}

func (t *brokenTx) InsertStageBest(context.Context, model.StageBest) error {
	if t.err != nil {
		return t.err
	}
	return repository.ErrConflict
}

type trace struct {
	mu     sync.Mutex
	states []bestrecord.State
}

func (tr *trace) observe(_ string, s bestrecord.State) {
	tr.mu.Lock()
	tr.states = append(tr.states, s)
	tr.mu.Unlock()
}

func stageBest(user int64, score, hints, secs int) model.StageBest {
	return model.StageBest{UserID: user, StageID: "3", Score: score, HintsUsed: hints, TimeSeconds: secs, AchievedAt: t0}
}

func TestStageBetter(t *testing.T) {
	Convey("Given two stage records", t, func() {
		Convey("Then a higher score wins", func() {
			So(bestrecord.StageBetter(stageBest(1, 150, 2, 90), stageBest(1, 140, 0, 10)), ShouldBeTrue)
		})
		Convey("Then on equal score fewer hints win", func() {
			So(bestrecord.StageBetter(stageBest(1, 150, 0, 90), stageBest(1, 150, 1, 10)), ShouldBeTrue)
		})
		Convey("Then on equal score and hints less time wins", func() {
			So(bestrecord.StageBetter(stageBest(1, 150, 1, 40), stageBest(1, 150, 1, 41)), ShouldBeTrue)
		})
		Convey("Then an identical record is not strictly better", func() {
			So(bestrecord.StageBetter(stageBest(1, 150, 1, 40), stageBest(1, 150, 1, 40)), ShouldBeFalse)
		})
	})
}

func TestUpsertStageBest(t *testing.T) {
	Convey("Given a best-record store on an empty repository", t, func() {
		ctx := context.Background()
		repo := memory.New()
		tr := &trace{}
		store := bestrecord.New(repo, bestrecord.WithLogger(logger.Nop()), bestrecord.WithObserver(tr.observe))

		Convey("When the first attempt arrives", func() {
			got, improved, err := store.UpsertStageBest(ctx, stageBest(1, 120, 1, 80))

			Convey("Then it is inserted", func() {
				So(err, ShouldBeNil)
				So(improved, ShouldBeTrue)
				So(got.Score, ShouldEqual, 120)
				So(tr.states, ShouldResemble, []bestrecord.State{
					bestrecord.StateReadInitial, bestrecord.StateAttemptInsert, bestrecord.StateSuccess,
				})
			})

			Convey("And a better attempt follows", func() {
				tr.states = nil
				later := stageBest(1, 120, 0, 95)
				later.AchievedAt = t0.Add(time.Hour)
				got, improved, err := store.UpsertStageBest(ctx, later)

				Convey("Then every field is replaced", func() {
					So(err, ShouldBeNil)
					So(improved, ShouldBeTrue)
					So(got.HintsUsed, ShouldEqual, 0)
					So(got.TimeSeconds, ShouldEqual, 95)
					So(got.AchievedAt, ShouldEqual, t0.Add(time.Hour))
					So(tr.states, ShouldResemble, []bestrecord.State{
						bestrecord.StateReadInitial, bestrecord.StateAttemptUpdate, bestrecord.StateSuccess,
					})
				})
			})

			Convey("And a worse attempt follows", func() {
				tr.states = nil
				got, improved, err := store.UpsertStageBest(ctx, stageBest(1, 120, 1, 81))

				Convey("Then the stored record is returned unchanged", func() {
					So(err, ShouldBeNil)
					So(improved, ShouldBeFalse)
					So(got.TimeSeconds, ShouldEqual, 80)
					So(tr.states, ShouldResemble, []bestrecord.State{bestrecord.StateReadInitial, bestrecord.StateSuccess})
				})
			})
		})
	})
}

func TestConflictRetry(t *testing.T) {
	Convey("Given a rival writer that commits first", t, func() {
		ctx := context.Background()
		repo := memory.New()
		tr := &trace{}

		Convey("When the rival record is worse than ours", func() {
			runner := &rivalRunner{inner: repo, rival: func(ctx context.Context, tx repository.Tx) error {
				return tx.InsertStageBest(ctx, stageBest(1, 100, 2, 100))
			}}
			store := bestrecord.New(runner, bestrecord.WithLogger(logger.Nop()), bestrecord.WithObserver(tr.observe))
			got, improved, err := store.UpsertStageBest(ctx, stageBest(1, 130, 0, 60))

			Convey("Then the insert is retried once as an update and ours wins", func() {
				So(err, ShouldBeNil)
				So(improved, ShouldBeTrue)
				So(got.Score, ShouldEqual, 130)
				So(tr.states, ShouldResemble, []bestrecord.State{
					bestrecord.StateReadInitial, bestrecord.StateAttemptInsert, bestrecord.StateConflictDetected,
					bestrecord.StateReadExisting, bestrecord.StateAttemptUpdate, bestrecord.StateSuccess,
				})
				bests, _ := repo.StageBests(ctx, 1)
				So(bests, ShouldHaveLength, 1)
				So(bests[0].Score, ShouldEqual, 130)
			})
		})

		Convey("When the rival record is better than ours", func() {
			runner := &rivalRunner{inner: repo, rival: func(ctx context.Context, tx repository.Tx) error {
				return tx.InsertStageBest(ctx, stageBest(1, 170, 0, 30))
			}}
			store := bestrecord.New(runner, bestrecord.WithLogger(logger.Nop()), bestrecord.WithObserver(tr.observe))
			got, improved, err := store.UpsertStageBest(ctx, stageBest(1, 130, 0, 60))

			Convey("Then the rival row stands and the conflict is not surfaced", func() {
				So(err, ShouldBeNil)
				So(improved, ShouldBeFalse)
				So(got.Score, ShouldEqual, 170)
				So(tr.states[len(tr.states)-1], ShouldEqual, bestrecord.StateSuccess)
			})
		})

		Convey("When the scoped rival commits 50 and we submit 80", func() {
			runner := &rivalRunner{inner: repo, rival: func(ctx context.Context, tx repository.Tx) error {
				return tx.InsertScopedBest(ctx, model.ScopedBest{UserID: 4, Scope: "america", MaxScore: 50, LastScore: 50, MaxScoreAt: t0, LastScoreAt: t0})
			}}
			store := bestrecord.New(runner, bestrecord.WithLogger(logger.Nop()))
			got, improved, err := store.UpsertScopedBest(ctx, bestrecord.ScoreSubmission{UserID: 4, Scope: "america", Score: 80, At: t0.Add(time.Minute)})

			Convey("Then the retry updates the existing row", func() {
				So(err, ShouldBeNil)
				So(improved, ShouldBeTrue)
				So(got.MaxScore, ShouldEqual, 80)
				rows, _ := repo.ScopedBests(ctx, 4)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].MaxScore, ShouldEqual, 80)
			})
		})
	})

	Convey("Given a repository where the retry also fails", t, func() {
		tr := &trace{}
		store := bestrecord.New(&brokenRunner{}, bestrecord.WithLogger(logger.Nop()), bestrecord.WithObserver(tr.observe))
		_, _, err := store.UpsertStageBest(context.Background(), stageBest(1, 10, 0, 10))

		Convey("Then the error is a persistence failure, never a write conflict", func() {
			So(errors.Is(err, model.ErrPersistence), ShouldBeTrue)
			So(errors.Is(err, model.ErrWriteConflict), ShouldBeFalse)
			So(tr.states[len(tr.states)-1], ShouldEqual, bestrecord.StateFailed)
		})
	})

	Convey("Given a storage error on the first attempt", t, func() {
		tr := &trace{}
		boom := errors.New("connection reset")
		store := bestrecord.New(&brokenRunner{firstErr: boom}, bestrecord.WithLogger(logger.Nop()), bestrecord.WithObserver(tr.observe))
		_, _, err := store.UpsertStageBest(context.Background(), stageBest(1, 10, 0, 10))

		Convey("Then it fails without a retry", func() {
			So(errors.Is(err, model.ErrPersistence), ShouldBeTrue)
			So(errors.Is(err, boom), ShouldBeTrue)
			So(tr.states, ShouldNotContain, bestrecord.StateConflictDetected)
		})
	})
}

func TestUpsertScopedBest(t *testing.T) {
	Convey("Given a scoped best", t, func() {
		ctx := context.Background()
		store := bestrecord.New(memory.New(), bestrecord.WithLogger(logger.Nop()))
		sub := func(score int, at time.Time) (model.ScopedBest, bool) {
			b, improved, err := store.UpsertScopedBest(ctx, bestrecord.ScoreSubmission{UserID: 9, Scope: "career", CountryCode: "UY", Score: score, At: at})
			So(err, ShouldBeNil)
			return b, improved
		}

		first, improved := sub(300, t0)
		So(improved, ShouldBeTrue)
		So(first.MaxScore, ShouldEqual, 300)

		Convey("When a lower score arrives", func() {
			b, improved := sub(120, t0.Add(time.Hour))

			Convey("Then only the last score moves", func() {
				So(improved, ShouldBeFalse)
				So(b.MaxScore, ShouldEqual, 300)
				So(b.MaxScoreAt, ShouldEqual, t0)
				So(b.LastScore, ShouldEqual, 120)
				So(b.LastScoreAt, ShouldEqual, t0.Add(time.Hour))
			})
		})

		Convey("When an equal score arrives", func() {
			b, improved := sub(300, t0.Add(time.Hour))

			Convey("Then the original record date is kept", func() {
				So(improved, ShouldBeFalse)
				So(b.MaxScoreAt, ShouldEqual, t0)
			})
		})
	})
}

func TestConcurrentUpserts(t *testing.T) {
	Convey("Given many concurrent attempts at the same stage", t, func() {
		ctx := context.Background()
		repo := memory.New()
		store := bestrecord.New(repo, bestrecord.WithLogger(logger.Nop()))
		candidates := []model.StageBest{
			stageBest(1, 90, 1, 70), stageBest(1, 160, 1, 70), stageBest(1, 160, 0, 99),
			stageBest(1, 160, 0, 80), stageBest(1, 40, 2, 100), stageBest(1, 155, 0, 20),
		}
		for i := 0; i < 4; i++ {
			candidates = append(candidates, candidates...)
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(candidates))
		for _, c := range candidates {
			wg.Add(1)
			go func(c model.StageBest) {
				defer wg.Done()
				if _, _, err := store.UpsertStageBest(ctx, c); err != nil {
					errs <- err
				}
			}(c)
		}
		wg.Wait()
		close(errs)

		Convey("Then exactly one record holds the max with the right tie-break", func() {
			So(len(errs), ShouldEqual, 0)
			bests, err := repo.StageBests(ctx, 1)
			So(err, ShouldBeNil)
			So(bests, ShouldHaveLength, 1)
			So(bests[0].Score, ShouldEqual, 160)
			So(bests[0].HintsUsed, ShouldEqual, 0)
			So(bests[0].TimeSeconds, ShouldEqual, 80)
		})
	})

	Convey("Given two concurrent first submissions to the america scope", t, func() {
		ctx := context.Background()
		repo := memory.New()
		store := bestrecord.New(repo, bestrecord.WithLogger(logger.Nop()))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, score := range []int{50, 80} {
			wg.Add(1)
			go func(i, score int) {
				defer wg.Done()
				_, _, errs[i] = store.UpsertScopedBest(ctx, bestrecord.ScoreSubmission{UserID: 2, Scope: "america", Score: score, At: t0})
			}(i, score)
		}
		wg.Wait()

		Convey("Then one row exists with max 80", func() {
			So(errs, ShouldResemble, []error{nil, nil})
			rows, _ := repo.ScopedBests(ctx, 2)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].MaxScore, ShouldEqual, 80)
		})
	})
}

func TestMonotonic(t *testing.T) {
	Convey("Given a random sequence of attempts", t, func() {
		ctx := context.Background()
		repo := memory.New()
		store := bestrecord.New(repo, bestrecord.WithLogger(logger.Nop()))
		rng := rand.New(rand.NewPCG(1, 2))

		Convey("Then the stored key never decreases", func() {
			var prev *model.StageBest
			for i := 0; i < 200; i++ {
				c := stageBest(5, rng.IntN(200), rng.IntN(3), 1+rng.IntN(140))
				got, _, err := store.UpsertStageBest(ctx, c)
				So(err, ShouldBeNil)
				if prev != nil {
					So(bestrecord.StageBetter(*prev, got), ShouldBeFalse)
				}
				prev = &got
			}
		})
	})
}

func TestUnit(t *testing.T) {
	Convey("Given an upsert with work bound to its transaction", t, func() {
		ctx := context.Background()
		repo := memory.New()
		var prepared, finished int
		var improvedSeen bool
		unit := bestrecord.Unit[model.StageBest]{
			Prepare: func(ctx context.Context, tx repository.Tx, c *model.StageBest) error {
				prepared++
				id, err := tx.AppendAttempt(ctx, model.StageAttempt{UserID: c.UserID, StageID: c.StageID, Score: c.Score, CompletedAt: c.AchievedAt})
				c.AttemptID = id
				return err
			},
			Finish: func(ctx context.Context, tx repository.Tx, b model.StageBest, improved bool) error {
				finished++
				improvedSeen = improved
				return tx.PutCareerStats(ctx, model.CareerStats{UserID: b.UserID, StagesCompleted: 1, TotalScore: b.Score, LastActivityAt: b.AchievedAt})
			},
		}

		Convey("When it succeeds", func() {
			store := bestrecord.New(repo, bestrecord.WithLogger(logger.Nop()))
			got, improved, err := store.UpsertStageBestWith(ctx, stageBest(1, 120, 0, 60), unit)

			Convey("Then every write lands and the record points at its attempt", func() {
				So(err, ShouldBeNil)
				So(improved, ShouldBeTrue)
				So(improvedSeen, ShouldBeTrue)
				attempts, _ := repo.Attempts(ctx, 1)
				So(attempts, ShouldHaveLength, 1)
				So(got.AttemptID, ShouldEqual, attempts[0].ID)
				st, err := repo.CareerStats(ctx, 1)
				So(err, ShouldBeNil)
				So(st.TotalScore, ShouldEqual, 120)
			})
		})

		Convey("When the finishing step fails", func() {
			boom := errors.New("summary write refused")
			unit.Finish = func(context.Context, repository.Tx, model.StageBest, bool) error { return boom }
			store := bestrecord.New(repo, bestrecord.WithLogger(logger.Nop()))
			_, _, err := store.UpsertStageBestWith(ctx, stageBest(1, 120, 0, 60), unit)

			Convey("Then nothing is written", func() {
				So(errors.Is(err, model.ErrPersistence), ShouldBeTrue)
				So(errors.Is(err, boom), ShouldBeTrue)
				c, _ := repo.Counts(ctx)
				So(c, ShouldResemble, repository.Counts{})
			})
		})

		Convey("When the first insert loses the race", func() {
			runner := &rivalRunner{inner: repo, rival: func(ctx context.Context, tx repository.Tx) error {
				return tx.InsertStageBest(ctx, stageBest(1, 100, 2, 100))
			}}
			store := bestrecord.New(runner, bestrecord.WithLogger(logger.Nop()))
			got, _, err := store.UpsertStageBestWith(ctx, stageBest(1, 130, 0, 60), unit)

			Convey("Then both steps run again and only the retry's writes remain", func() {
				So(err, ShouldBeNil)
				So(prepared, ShouldEqual, 2)
				So(finished, ShouldEqual, 1)
				attempts, _ := repo.Attempts(ctx, 1)
				So(attempts, ShouldHaveLength, 1)
				So(got.AttemptID, ShouldEqual, attempts[0].ID)
			})
		})
	})
}

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStore_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.UpsertPlayer(ctx, model.Player{ID: 1, Username: "ana"}); err != nil {
			return err
		}
		if _, err := tx.AppendAttempt(ctx, model.StageAttempt{UserID: 1, StageID: "1", Score: 90, CompletedAt: t0}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if _, err := s.Player(ctx, 1); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("rolled back player is visible: %v", err)
	}

	err = s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.UpsertPlayer(ctx, model.Player{ID: 1, Username: "ana"}); err != nil {
			return err
		}
		if err := tx.InsertStageBest(ctx, model.StageBest{UserID: 1, StageID: "2", Score: 50}); err != nil {
			return err
		}
		// Pending rows are visible inside the same transaction.
		b, ok, err := tx.FindStageBest(ctx, 1, "2", true)
		if err != nil || !ok || b.Score != 50 {
			t.Errorf("pending row not visible: %v %v %v", b, ok, err)
		}
		bests, _ := tx.ListStageBests(ctx, 1)
		if len(bests) != 1 {
			t.Errorf("expected 1 pending best, got %d", len(bests))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	bests, _ := s.StageBests(ctx, 1)
	if len(bests) != 1 || bests[0].Score != 50 {
		t.Errorf("unexpected bests after commit: %+v", bests)
	}
}

func TestStore_InsertConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	insert := func() error {
		return s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.InsertScopedBest(ctx, model.ScopedBest{UserID: 1, Scope: "career", MaxScore: 10, MaxScoreAt: t0})
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := insert()
	if !errors.Is(err, repository.ErrConflict) || !errors.Is(err, model.ErrWriteConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	err = s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdateScopedBest(ctx, model.ScopedBest{UserID: 2, Scope: "career", MaxScore: 10})
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found on update of missing row, got %v", err)
	}
}

func TestStore_ConcurrentInsertsSerialize(t *testing.T) {
	ctx := context.Background()
	s := New()
	const n = 32

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			errs <- s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				return tx.InsertStageBest(ctx, model.StageBest{UserID: 7, StageID: "3", Score: score})
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 insert and %d conflicts, got %d and %d", n-1, ok, conflicts)
	}
}

func TestStore_LockHonorsContext(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertStageBest(ctx, model.StageBest{UserID: 1, StageID: "1", Score: 1})
	}); err != nil {
		t.Fatal(err)
	}

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, _, err := tx.FindStageBest(ctx, 1, "1", true); err != nil {
				return err
			}
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := s.WithinTx(short, func(ctx context.Context, tx repository.Tx) error {
		_, _, err := tx.FindStageBest(ctx, 1, "1", true)
		return err
	})
	close(done)
	if !errors.Is(err, model.ErrPersistence) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
}

// A locked lookup of a missing row must keep a concurrent first insert out
// until the reader's transaction ends; otherwise the reader decides on a row
// that a later writer has already replaced.
func TestStore_LockedLookupOfMissingRowBlocksInsert(t *testing.T) {
	ctx := context.Background()
	type lookupCase struct {
		name   string
		find   func(ctx context.Context, tx repository.Tx) (bool, error)
		insert func(ctx context.Context, tx repository.Tx, score int) error
		stored func() int
	}
	s := New()
	cases := []lookupCase{
		{
			name: "stage best",
			find: func(ctx context.Context, tx repository.Tx) (bool, error) {
				_, ok, err := tx.FindStageBest(ctx, 5, "4", true)
				return ok, err
			},
			insert: func(ctx context.Context, tx repository.Tx, score int) error {
				return tx.InsertStageBest(ctx, model.StageBest{UserID: 5, StageID: "4", Score: score})
			},
			stored: func() int {
				bests, _ := s.StageBests(ctx, 5)
				if len(bests) == 0 {
					return -1
				}
				return bests[0].Score
			},
		},
		{
			name: "scoped best",
			find: func(ctx context.Context, tx repository.Tx) (bool, error) {
				_, ok, err := tx.FindScopedBest(ctx, 5, "asia", true)
				return ok, err
			},
			insert: func(ctx context.Context, tx repository.Tx, score int) error {
				return tx.InsertScopedBest(ctx, model.ScopedBest{UserID: 5, Scope: "asia", MaxScore: score, LastScore: score})
			},
			stored: func() int {
				rows, _ := s.ScopedBests(ctx, 5)
				if len(rows) == 0 {
					return -1
				}
				return rows[0].MaxScore
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rival := make(chan error, 1)
			err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				ok, err := tc.find(ctx, tx)
				if err != nil || ok {
					t.Fatalf("expected a missing row, got ok=%v err=%v", ok, err)
				}
				go func() {
					rival <- s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
						return tc.insert(ctx, tx, 90)
					})
				}()
				select {
				case err := <-rival:
					t.Fatalf("rival insert finished while the row was locked: %v", err)
				case <-time.After(30 * time.Millisecond):
				}
				if got := tc.stored(); got != -1 {
					t.Fatalf("rival row committed under a locked read: %d", got)
				}
				ok, err = tc.find(ctx, tx)
				if err != nil || ok {
					t.Fatalf("row appeared inside the transaction: ok=%v err=%v", ok, err)
				}
				return tc.insert(ctx, tx, 50)
			})
			if err != nil {
				t.Fatalf("locked writer failed: %v", err)
			}
			if err := <-rival; !errors.Is(err, repository.ErrConflict) {
				t.Fatalf("expected the rival to conflict, got %v", err)
			}
			if got := tc.stored(); got != 50 {
				t.Fatalf("expected the locked writer's row, got %d", got)
			}
		})
	}
}

func TestStore_RankingReads(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for _, p := range []model.Player{
			{ID: 1, Username: "ana", CountryCode: "UY"},
			{ID: 2, Username: "beto", CountryCode: "AR"},
			{ID: 3, Username: "caro", CountryCode: "UY"},
		} {
			if err := tx.UpsertPlayer(ctx, p); err != nil {
				return err
			}
		}
		for i, score := range []int{300, 500, 400} {
			id := int64(i + 1)
			if err := tx.PutCareerStats(ctx, model.CareerStats{UserID: id, StagesCompleted: 2, TotalScore: score, LastActivityAt: t0}); err != nil {
				return err
			}
			if err := tx.InsertScopedBest(ctx, model.ScopedBest{UserID: id, Scope: "career", MaxScore: score, MaxScoreAt: t0}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	page, err := s.CareerPage(ctx, repository.Page{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].UserID != 3 || page[1].UserID != 1 {
		t.Errorf("unexpected career page: %+v", page)
	}
	pos, err := s.CareerPosition(ctx, 1)
	if err != nil || pos.Better != 2 || pos.Total != 3 {
		t.Errorf("unexpected career position: %+v %v", pos, err)
	}

	uy := repository.ScoreFilter{Scope: "career", CountryCode: "UY"}
	rows, _ := s.ScorePage(ctx, uy, repository.Page{Limit: 10})
	if len(rows) != 2 || rows[0].UserID != 3 {
		t.Errorf("unexpected filtered page: %+v", rows)
	}
	spos, err := s.ScorePosition(ctx, uy, 1)
	if err != nil || spos.Better != 1 || spos.Total != 2 {
		t.Errorf("unexpected filtered position: %+v %v", spos, err)
	}
	if _, err := s.ScorePosition(ctx, uy, 2); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected user outside the filter to be missing, got %v", err)
	}

	// Renaming a player reindexes every board they appear on.
	if err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpsertPlayer(ctx, model.Player{ID: 1, Username: "ana", CountryCode: "AR"})
	}); err != nil {
		t.Fatal(err)
	}
	rows, _ = s.ScorePage(ctx, uy, repository.Page{Limit: 10})
	if len(rows) != 1 {
		t.Errorf("expected moved player to leave the UY board, got %+v", rows)
	}

	c, _ := s.Counts(ctx)
	if c.Players != 3 || c.CareerRows != 3 || c.ScopedBests != 3 {
		t.Errorf("unexpected counts: %+v", c)
	}
	if _, err := s.CareerPage(ctx, repository.Page{Limit: -1}); !errors.Is(err, repository.ErrInvalidPage) {
		t.Errorf("expected invalid page, got %v", err)
	}
}

func TestStore_Closed(t *testing.T) {
	s := New()
	_ = s.Close()
	err := s.WithinTx(context.Background(), func(context.Context, repository.Tx) error { return nil })
	if !errors.Is(err, repository.ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

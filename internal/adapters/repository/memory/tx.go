package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

// tx buffers writes until commit. Pending rows shadow committed ones for
// reads made through the same transaction.
type tx struct {
	s    *Store
	held map[any]struct{}
	ops  []func()

	stageBests map[stageKey]model.StageBest
	scoped     map[scopeKey]model.ScopedBest
}

var _ repository.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		s:          s,
		held:       make(map[any]struct{}),
		stageBests: make(map[stageKey]model.StageBest),
		scoped:     make(map[scopeKey]model.ScopedBest),
	}
}

func (t *tx) lock(ctx context.Context, key any) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := t.s.lock(ctx, key); err != nil {
		return err
	}
	t.held[key] = struct{}{}
	return nil
}

func (t *tx) release() {
	for key := range t.held {
		t.s.unlock(key)
	}
	t.held = nil
}

func (t *tx) UpsertPlayer(_ context.Context, p model.Player) error {
	t.ops = append(t.ops, func() { t.s.applyPlayer(p) })
	return nil
}

func (t *tx) AppendAttempt(_ context.Context, a model.StageAttempt) (int64, error) {
	t.s.mu.Lock()
	t.s.nextID++
	a.ID = t.s.nextID
	t.s.mu.Unlock()
	a.Groups = slices.Clone(a.Groups)
	t.ops = append(t.ops, func() {
		t.s.attempts[a.UserID] = append(t.s.attempts[a.UserID], a)
	})
	return a.ID, nil
}

func (t *tx) FindStageBest(ctx context.Context, userID int64, stageID string, lock bool) (model.StageBest, bool, error) {
	k := stageKey{userID: userID, stageID: stageID}
	if b, ok := t.stageBests[k]; ok {
		return b, true, nil
	}
	// A locked lookup holds the key lock even when the row is absent, so a
	// concurrent insert waits instead of committing under our read.
	if lock {
		if err := t.lock(ctx, k); err != nil {
			return model.StageBest{}, false, err
		}
	}
	t.s.mu.RLock()
	b, ok := t.s.stageBests[k]
	t.s.mu.RUnlock()
	return b, ok, nil
}

func (t *tx) committedStageBest(k stageKey) bool {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	_, ok := t.s.stageBests[k]
	return ok
}

func (t *tx) InsertStageBest(ctx context.Context, b model.StageBest) error {
	k := stageKey{userID: b.UserID, stageID: b.StageID}
	if err := t.lock(ctx, k); err != nil {
		return err
	}
	if _, pending := t.stageBests[k]; pending || t.committedStageBest(k) {
		return fmt.Errorf("insert stage best (%d, %s): %w", b.UserID, b.StageID, repository.ErrConflict)
	}
	t.putStageBest(k, b)
	return nil
}

func (t *tx) UpdateStageBest(ctx context.Context, b model.StageBest) error {
	k := stageKey{userID: b.UserID, stageID: b.StageID}
	if err := t.lock(ctx, k); err != nil {
		return err
	}
	if _, pending := t.stageBests[k]; !pending && !t.committedStageBest(k) {
		return fmt.Errorf("update stage best (%d, %s): %w", b.UserID, b.StageID, repository.ErrNotFound)
	}
	t.putStageBest(k, b)
	return nil
}

func (t *tx) putStageBest(k stageKey, b model.StageBest) {
	b.Groups = slices.Clone(b.Groups)
	t.stageBests[k] = b
	t.ops = append(t.ops, func() { t.s.stageBests[k] = b })
}

func (t *tx) ListStageBests(_ context.Context, userID int64) ([]model.StageBest, error) {
	t.s.mu.RLock()
	committed := t.s.stageBestsLocked(userID)
	t.s.mu.RUnlock()
	out := make([]model.StageBest, 0, len(committed))
	seen := make(map[string]struct{}, len(committed))
	for _, b := range committed {
		if p, ok := t.stageBests[stageKey{userID: userID, stageID: b.StageID}]; ok {
			b = p
		}
		seen[b.StageID] = struct{}{}
		out = append(out, b)
	}
	for k, b := range t.stageBests {
		if _, ok := seen[k.stageID]; !ok && k.userID == userID {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.StageBest) int {
		switch {
		case a.StageID < b.StageID:
			return -1
		case a.StageID > b.StageID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (t *tx) PutCareerStats(_ context.Context, st model.CareerStats) error {
	t.ops = append(t.ops, func() { t.s.applyCareer(st) })
	return nil
}

func (t *tx) FindScopedBest(ctx context.Context, userID int64, scope string, lock bool) (model.ScopedBest, bool, error) {
	k := scopeKey{userID: userID, scope: scope}
	if b, ok := t.scoped[k]; ok {
		return b, true, nil
	}
	if lock {
		if err := t.lock(ctx, k); err != nil {
			return model.ScopedBest{}, false, err
		}
	}
	t.s.mu.RLock()
	b, ok := t.s.scoped[k]
	t.s.mu.RUnlock()
	return b, ok, nil
}

func (t *tx) committedScoped(k scopeKey) bool {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	_, ok := t.s.scoped[k]
	return ok
}

func (t *tx) InsertScopedBest(ctx context.Context, b model.ScopedBest) error {
	k := scopeKey{userID: b.UserID, scope: b.Scope}
	if err := t.lock(ctx, k); err != nil {
		return err
	}
	if _, pending := t.scoped[k]; pending || t.committedScoped(k) {
		return fmt.Errorf("insert scoped best (%d, %s): %w", b.UserID, b.Scope, repository.ErrConflict)
	}
	t.putScoped(k, b)
	return nil
}

func (t *tx) UpdateScopedBest(ctx context.Context, b model.ScopedBest) error {
	k := scopeKey{userID: b.UserID, scope: b.Scope}
	if err := t.lock(ctx, k); err != nil {
		return err
	}
	if _, pending := t.scoped[k]; !pending && !t.committedScoped(k) {
		return fmt.Errorf("update scoped best (%d, %s): %w", b.UserID, b.Scope, repository.ErrNotFound)
	}
	t.putScoped(k, b)
	return nil
}

func (t *tx) putScoped(k scopeKey, b model.ScopedBest) {
	t.scoped[k] = b
	t.ops = append(t.ops, func() { t.s.applyScoped(b) })
}

// Package memory is an in-process implementation of repository.Store.
//
// Writes are buffered per transaction and applied atomically on commit.
// Row locks are per (user, key) and are held until the transaction ends. A
// locked lookup locks the key whether or not the row exists; an
// insert takes the row lock and fails with repository.ErrConflict when the
// row already exists, which mirrors a unique index under row-level locking.
// Leaderboards are kept in treap indexes so positions cost O(log n).
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

type stageKey struct {
	userID  int64
	stageID string
}

type scopeKey struct {
	userID int64
	scope  string
}

// Store is an in-memory repository.Store.
type Store struct {
	mu     sync.RWMutex
	closed bool

	players    map[int64]model.Player
	attempts   map[int64][]model.StageAttempt
	nextID     int64
	stageBests map[stageKey]model.StageBest
	career     map[int64]model.CareerStats
	scoped     map[scopeKey]model.ScopedBest
	userScopes map[int64]map[string]struct{}

	careerIdx  *treap[repository.CareerRow]
	careerRows map[int64]repository.CareerRow
	scoreIdx   map[string]*treap[repository.ScoreRow]
	scoreRows  map[scopeKey]repository.ScoreRow

	locksMu sync.Mutex
	locks   map[any]chan struct{}
}

var _ repository.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		players:    make(map[int64]model.Player),
		attempts:   make(map[int64][]model.StageAttempt),
		stageBests: make(map[stageKey]model.StageBest),
		career:     make(map[int64]model.CareerStats),
		scoped:     make(map[scopeKey]model.ScopedBest),
		userScopes: make(map[int64]map[string]struct{}),
		careerIdx:  newTreap(ranking.CareerLess),
		careerRows: make(map[int64]repository.CareerRow),
		scoreIdx:   make(map[string]*treap[repository.ScoreRow]),
		scoreRows:  make(map[scopeKey]repository.ScoreRow),
		locks:      make(map[any]chan struct{}),
	}
}

// WithinTx implements repository.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return repository.Persistence("begin", repository.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return repository.Persistence("begin", err)
	}

	t := newTx(s)
	defer t.release()
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return repository.Persistence("commit", err)
	}
	start := time.Now()
	s.mu.Lock()
	for _, op := range t.ops {
		op()
	}
	s.mu.Unlock()
	metrics.RecordRepositoryLatency("commit", float64(time.Since(start).Microseconds())/1000)
	return nil
}

// Close marks the store closed; later transactions fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// lock acquires the row lock for key, honoring ctx.
func (s *Store) lock(ctx context.Context, key any) error {
	s.locksMu.Lock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	s.locksMu.Unlock()
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return repository.Persistence("lock", ctx.Err())
	}
}

func (s *Store) unlock(key any) {
	s.locksMu.Lock()
	ch := s.locks[key]
	s.locksMu.Unlock()
	<-ch
}

// The apply* helpers run with s.mu held for writing.

func (s *Store) applyPlayer(p model.Player) {
	s.players[p.ID] = p
	if _, ok := s.career[p.ID]; ok {
		s.reindexCareer(p.ID)
	}
	for sc := range s.userScopes[p.ID] {
		s.reindexScoped(scopeKey{userID: p.ID, scope: sc})
	}
}

func (s *Store) applyCareer(st model.CareerStats) {
	s.career[st.UserID] = st
	s.reindexCareer(st.UserID)
}

func (s *Store) applyScoped(b model.ScopedBest) {
	k := scopeKey{userID: b.UserID, scope: b.Scope}
	s.scoped[k] = b
	if s.userScopes[b.UserID] == nil {
		s.userScopes[b.UserID] = make(map[string]struct{})
	}
	s.userScopes[b.UserID][b.Scope] = struct{}{}
	s.reindexScoped(k)
}

func (s *Store) reindexCareer(userID int64) {
	if old, ok := s.careerRows[userID]; ok {
		s.careerIdx.Delete(old)
	}
	row := repository.CareerRowFrom(s.career[userID], s.players[userID])
	s.careerIdx.Insert(row)
	s.careerRows[userID] = row
}

func (s *Store) reindexScoped(k scopeKey) {
	idx, ok := s.scoreIdx[k.scope]
	if !ok {
		idx = newTreap(ranking.ScoreLess)
		s.scoreIdx[k.scope] = idx
	}
	if old, ok := s.scoreRows[k]; ok {
		idx.Delete(old)
	}
	row := repository.ScoreRowFrom(s.scoped[k], s.players[k.userID])
	idx.Insert(row)
	s.scoreRows[k] = row
}

// Player implements repository.Reader.
func (s *Store) Player(_ context.Context, userID int64) (model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[userID]
	if !ok {
		return model.Player{}, fmt.Errorf("player %d: %w", userID, repository.ErrNotFound)
	}
	return p, nil
}

// CareerStats implements repository.Reader.
func (s *Store) CareerStats(_ context.Context, userID int64) (model.CareerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.career[userID]
	if !ok {
		return model.CareerStats{}, fmt.Errorf("career stats %d: %w", userID, repository.ErrNotFound)
	}
	return st, nil
}

// StageBests implements repository.Reader. Rows are ordered by stage id.
func (s *Store) StageBests(_ context.Context, userID int64) ([]model.StageBest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stageBestsLocked(userID), nil
}

func (s *Store) stageBestsLocked(userID int64) []model.StageBest {
	var out []model.StageBest
	for k, b := range s.stageBests {
		if k.userID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageID < out[j].StageID })
	return out
}

// ScopedBests implements repository.Reader. Rows are ordered by scope.
func (s *Store) ScopedBests(_ context.Context, userID int64) ([]model.ScopedBest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScopedBest, 0, len(s.userScopes[userID]))
	for sc := range s.userScopes[userID] {
		out = append(out, s.scoped[scopeKey{userID: userID, scope: sc}])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

// Attempts implements repository.Reader.
func (s *Store) Attempts(_ context.Context, userID int64) ([]model.StageAttempt, error) {
	s.mu.RLock()
	out := slices.Clone(s.attempts[userID])
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.Before(out[j].CompletedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UsersWithAttempts implements repository.Reader.
func (s *Store) UsersWithAttempts(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.attempts))
	for id := range s.attempts {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// CareerPage implements repository.Reader.
func (s *Store) CareerPage(_ context.Context, p repository.Page) ([]repository.CareerRow, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return nil, repository.ErrInvalidPage
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.careerIdx.Slice(p.Offset, p.Limit), nil
}

// CareerPosition implements repository.Reader.
func (s *Store) CareerPosition(_ context.Context, userID int64) (repository.CareerPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.careerRows[userID]
	if !ok {
		return repository.CareerPosition{}, fmt.Errorf("career position %d: %w", userID, repository.ErrNotFound)
	}
	return repository.CareerPosition{Row: row, Better: s.careerIdx.CountBefore(row), Total: s.careerIdx.Len()}, nil
}

// ScorePage implements repository.Reader.
func (s *Store) ScorePage(_ context.Context, f repository.ScoreFilter, p repository.Page) ([]repository.ScoreRow, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return nil, repository.ErrInvalidPage
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.scoreIdx[f.Scope]
	if !ok {
		return nil, nil
	}
	if f.CountryCode == "" {
		return idx.Slice(p.Offset, p.Limit), nil
	}
	var out []repository.ScoreRow
	skip := p.Offset
	idx.Ascend(func(r repository.ScoreRow) bool {
		if len(out) >= p.Limit {
			return false
		}
		if r.CountryCode != f.CountryCode {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}
		out = append(out, r)
		return true
	})
	return out, nil
}

// ScorePosition implements repository.Reader.
func (s *Store) ScorePosition(_ context.Context, f repository.ScoreFilter, userID int64) (repository.ScorePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.scoreRows[scopeKey{userID: userID, scope: f.Scope}]
	if !ok || (f.CountryCode != "" && row.CountryCode != f.CountryCode) {
		return repository.ScorePosition{}, fmt.Errorf("score position %d in %s: %w", userID, f.Scope, repository.ErrNotFound)
	}
	idx := s.scoreIdx[f.Scope]
	if f.CountryCode == "" {
		return repository.ScorePosition{Row: row, Better: idx.CountBefore(row), Total: idx.Len()}, nil
	}
	pos := repository.ScorePosition{Row: row}
	idx.Ascend(func(r repository.ScoreRow) bool {
		if r.CountryCode != f.CountryCode {
			return true
		}
		pos.Total++
		if ranking.ScoreLess(r, row) {
			pos.Better++
		}
		return true
	})
	return pos, nil
}

// Counts implements repository.Reader.
func (s *Store) Counts(_ context.Context) (repository.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := repository.Counts{
		Players:     int64(len(s.players)),
		StageBests:  int64(len(s.stageBests)),
		CareerRows:  int64(len(s.career)),
		ScopedBests: int64(len(s.scoped)),
	}
	for _, a := range s.attempts {
		c.Attempts += int64(len(a))
	}
	return c, nil
}

// Package repository defines the persistence contract of the engine: a
// transactional unit of work for writes and a reader for rankings.
package repository

import (
	"context"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

// Store provides transactional writes and ranking reads.
type Store interface {
	// WithinTx runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise; nothing fn wrote is visible to
	// other transactions before commit.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Reader
	Close() error
}

// Tx is the write side of one transaction. Find methods with lock=true take a
// row lock on an existing row until the transaction ends; a missing row
// locks nothing. Insert methods return an error wrapping ErrConflict when
// the (user, key) row already exists.
type Tx interface {
	UpsertPlayer(ctx context.Context, p model.Player) error

	AppendAttempt(ctx context.Context, a model.StageAttempt) (int64, error)

	FindStageBest(ctx context.Context, userID int64, stageID string, lock bool) (model.StageBest, bool, error)
	InsertStageBest(ctx context.Context, b model.StageBest) error
	UpdateStageBest(ctx context.Context, b model.StageBest) error
	ListStageBests(ctx context.Context, userID int64) ([]model.StageBest, error)

	PutCareerStats(ctx context.Context, s model.CareerStats) error

	FindScopedBest(ctx context.Context, userID int64, scope string, lock bool) (model.ScopedBest, bool, error)
	InsertScopedBest(ctx context.Context, b model.ScopedBest) error
	UpdateScopedBest(ctx context.Context, b model.ScopedBest) error
}

// Reader answers queries outside of any write transaction.
type Reader interface {
	Player(ctx context.Context, userID int64) (model.Player, error)
	CareerStats(ctx context.Context, userID int64) (model.CareerStats, error)
	StageBests(ctx context.Context, userID int64) ([]model.StageBest, error)
	ScopedBests(ctx context.Context, userID int64) ([]model.ScopedBest, error)

	// Attempts returns a user's ledger in completion order.
	Attempts(ctx context.Context, userID int64) ([]model.StageAttempt, error)
	UsersWithAttempts(ctx context.Context) ([]int64, error)

	CareerPage(ctx context.Context, p Page) ([]CareerRow, error)
	CareerPosition(ctx context.Context, userID int64) (CareerPosition, error)
	ScorePage(ctx context.Context, f ScoreFilter, p Page) ([]ScoreRow, error)
	ScorePosition(ctx context.Context, f ScoreFilter, userID int64) (ScorePosition, error)

	Counts(ctx context.Context) (Counts, error)
}

// Page selects a window of a leaderboard.
type Page struct {
	Limit  int
	Offset int
}

// ScoreFilter selects the rows of a score table. An empty CountryCode
// matches every country.
type ScoreFilter struct {
	Scope       string
	CountryCode string
}

// CareerRow is a career summary joined with its player.
type CareerRow struct {
	UserID           int64
	Username         string
	CountryCode      string
	StagesCompleted  int
	TotalScore       int
	TotalHintsUsed   int
	TotalTimeSeconds int
	LastActivityAt   time.Time
}

// ScoreRow is a scoped best joined with its player.
type ScoreRow struct {
	UserID      int64
	Username    string
	CountryCode string
	Scope       string
	MaxScore    int
	MaxScoreAt  time.Time
}

// CareerPosition locates a user in the career board. Better counts rows that
// rank strictly ahead; Total counts every row on the board.
type CareerPosition struct {
	Row    CareerRow
	Better int
	Total  int
}

// ScorePosition locates a user in a filtered score table.
type ScorePosition struct {
	Row    ScoreRow
	Better int
	Total  int
}

// Counts summarizes the size of the store.
type Counts struct {
	Players     int64 `json:"players"`
	Attempts    int64 `json:"attempts"`
	StageBests  int64 `json:"stage_bests"`
	CareerRows  int64 `json:"career_rows"`
	ScopedBests int64 `json:"scoped_bests"`
}

// CareerRowFrom joins a summary with its player.
func CareerRowFrom(s model.CareerStats, p model.Player) CareerRow {
	return CareerRow{
		UserID:           s.UserID,
		Username:         p.Username,
		CountryCode:      p.CountryCode,
		StagesCompleted:  s.StagesCompleted,
		TotalScore:       s.TotalScore,
		TotalHintsUsed:   s.TotalHintsUsed,
		TotalTimeSeconds: s.TotalTimeSeconds,
		LastActivityAt:   s.LastActivityAt,
	}
}

// ScoreRowFrom joins a scoped best with its player.
func ScoreRowFrom(b model.ScopedBest, p model.Player) ScoreRow {
	return ScoreRow{
		UserID:      b.UserID,
		Username:    p.Username,
		CountryCode: p.CountryCode,
		Scope:       b.Scope,
		MaxScore:    b.MaxScore,
		MaxScoreAt:  b.MaxScoreAt,
	}
}

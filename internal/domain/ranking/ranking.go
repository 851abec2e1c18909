// Package ranking answers leaderboard and rank queries.
//
// The career board orders summaries by stages completed, total score, total
// hints, total time and last activity. Score tables order scoped bests by max
// score, then by who set it first, then by username. Listings and ranks read
// the same order, so a user's rank always equals their listing position.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/scope"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/types"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

// Default paging and scope settings.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Kind selects a board.
type Kind string

// Boards.
const (
	KindCareer  Kind = "career"
	KindGlobal  Kind = "global"
	KindRegion  Kind = "region"
	KindCountry Kind = "country"
	KindUser    Kind = "user"
)

// ParseKind accepts a board name, case-insensitively. Empty means global.
func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case "":
		return KindGlobal, true
	case KindCareer, KindGlobal, KindRegion, KindCountry, KindUser:
		return k, true
	default:
		return "", false
	}
}

// Query selects a score table. Region is required for KindRegion and
// Country for KindCountry.
type Query struct {
	Kind    Kind
	Region  string
	Country string
}

// Summary is a user's overview across every score table.
type Summary struct {
	GlobalTop     []types.ScoreEntry `json:"global_top"`
	UserPositions []types.ScoreEntry `json:"user_positions"`
	UserBest      *types.ScoreEntry  `json:"user_best,omitempty"`
}

// Service answers ranking queries from a repository.Reader.
type Service struct {
	reader       repository.Reader
	logger       logger.Logger
	defaultLimit int
	maxLimit     int
	globalScope  string
	countryScope string
}

// New creates a Service.
func New(reader repository.Reader, opts ...Option) *Service {
	s := &Service{
		reader:       reader,
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		globalScope:  string(scope.Career),
		countryScope: string(scope.Career),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("ranking")
	}
	return s
}

// page validates limit and offset. A zero limit selects the default.
func (s *Service) page(limit, offset int) (repository.Page, error) {
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit < 1 || limit > s.maxLimit {
		return repository.Page{}, model.Reject(model.ErrInvalidInput, "limit", fmt.Sprintf("limit must be between 1 and %d", s.maxLimit))
	}
	if offset < 0 {
		return repository.Page{}, model.Reject(model.ErrInvalidInput, "offset", "offset must not be negative")
	}
	return repository.Page{Limit: limit, Offset: offset}, nil
}

// Filter maps a query to the score table it reads.
func (s *Service) Filter(q Query) (repository.ScoreFilter, error) {
	switch q.Kind {
	case KindGlobal, "":
		return repository.ScoreFilter{Scope: s.globalScope}, nil
	case KindRegion:
		r, ok := scope.Parse(q.Region)
		if !ok || !r.IsRegion() {
			return repository.ScoreFilter{}, model.Reject(model.ErrInvalidInput, "region", "unknown region")
		}
		return repository.ScoreFilter{Scope: string(r)}, nil
	case KindCountry:
		c := strings.ToUpper(strings.TrimSpace(q.Country))
		if c == "" {
			return repository.ScoreFilter{}, model.Reject(model.ErrInvalidInput, "country", "country is required")
		}
		return repository.ScoreFilter{Scope: s.countryScope, CountryCode: c}, nil
	default:
		return repository.ScoreFilter{}, model.Reject(model.ErrInvalidInput, "scope", fmt.Sprintf("scope %q has no score table", q.Kind))
	}
}

// CareerLeaderboard lists the career board.
func (s *Service) CareerLeaderboard(ctx context.Context, limit, offset int) ([]types.CareerEntry, error) {
	p, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	defer observe(KindCareer, "list", time.Now())
	rows, err := s.reader.CareerPage(ctx, p)
	if err != nil {
		return nil, s.readFailed(ctx, "career page", err)
	}
	out := make([]types.CareerEntry, len(rows))
	for i, r := range rows {
		out[i] = careerEntry(r, p.Offset+i+1)
	}
	return out, nil
}

// CareerRank locates a user on the career board.
func (s *Service) CareerRank(ctx context.Context, userID int64) (types.Position, types.CareerEntry, error) {
	defer observe(KindCareer, "rank", time.Now())
	pos, err := s.reader.CareerPosition(ctx, userID)
	if err != nil {
		return types.Position{}, types.CareerEntry{}, s.readFailed(ctx, "career position", err)
	}
	rank := pos.Better + 1
	return types.Position{Rank: rank, Score: pos.Row.TotalScore, TotalPlayers: pos.Total}, careerEntry(pos.Row, rank), nil
}

// ScoreLeaderboard lists a score table.
func (s *Service) ScoreLeaderboard(ctx context.Context, q Query, limit, offset int) ([]types.ScoreEntry, error) {
	f, err := s.Filter(q)
	if err != nil {
		return nil, err
	}
	p, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	defer observe(q.Kind, "list", time.Now())
	rows, err := s.reader.ScorePage(ctx, f, p)
	if err != nil {
		return nil, s.readFailed(ctx, "score page", err)
	}
	out := make([]types.ScoreEntry, len(rows))
	for i, r := range rows {
		out[i] = scoreEntry(r, p.Offset+i+1)
	}
	return out, nil
}

// ScoreRank locates a user in a score table.
func (s *Service) ScoreRank(ctx context.Context, q Query, userID int64) (types.Position, error) {
	f, err := s.Filter(q)
	if err != nil {
		return types.Position{}, err
	}
	defer observe(q.Kind, "rank", time.Now())
	pos, err := s.reader.ScorePosition(ctx, f, userID)
	if err != nil {
		return types.Position{}, s.readFailed(ctx, "score position", err)
	}
	return types.Position{Rank: pos.Better + 1, Score: pos.Row.MaxScore, TotalPlayers: pos.Total}, nil
}

// UserScores lists every scoped best of a user, each ranked within its own
// scope and paged like any other board.
func (s *Service) UserScores(ctx context.Context, userID int64, limit, offset int) ([]types.ScoreEntry, error) {
	p, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	defer observe(KindUser, "list", time.Now())
	rows, err := s.userPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.Offset >= len(rows) {
		return []types.ScoreEntry{}, nil
	}
	return rows[p.Offset:min(len(rows), p.Offset+p.Limit)], nil
}

func (s *Service) userPositions(ctx context.Context, userID int64) ([]types.ScoreEntry, error) {
	bests, err := s.reader.ScopedBests(ctx, userID)
	if err != nil {
		return nil, s.readFailed(ctx, "scoped bests", err)
	}
	out := make([]types.ScoreEntry, 0, len(bests))
	for _, b := range bests {
		pos, err := s.reader.ScorePosition(ctx, repository.ScoreFilter{Scope: b.Scope}, userID)
		if err != nil {
			return nil, s.readFailed(ctx, "score position", err)
		}
		out = append(out, scoreEntry(pos.Row, pos.Better+1))
	}
	return out, nil
}

// Summary returns the global top, the user's positions in every scope and
// their single best row.
func (s *Service) Summary(ctx context.Context, userID int64, top int) (Summary, error) {
	global, err := s.ScoreLeaderboard(ctx, Query{Kind: KindGlobal}, top, 0)
	if err != nil {
		return Summary{}, err
	}
	positions, err := s.userPositions(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	out := Summary{GlobalTop: global, UserPositions: positions}
	for i := range positions {
		if out.UserBest == nil || positions[i].Score > out.UserBest.Score {
			out.UserBest = &positions[i]
		}
	}
	return out, nil
}

func (s *Service) readFailed(ctx context.Context, op string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return err
	}
	metrics.RecordErrorByComponent("ranking", op)
	s.logger.Error(ctx, "ranking read failed", logger.String("op", op), logger.Error(err))
	if errors.Is(err, model.ErrPersistence) {
		return err
	}
	return repository.Persistence(op, err)
}

func observe(k Kind, op string, start time.Time) {
	metrics.RecordLeaderboardQuery(string(k), op, float64(time.Since(start).Microseconds())/1000)
}

func careerEntry(r repository.CareerRow, rank int) types.CareerEntry {
	return types.CareerEntry{
		Rank:             rank,
		UserID:           r.UserID,
		Username:         r.Username,
		CountryCode:      r.CountryCode,
		StagesCompleted:  r.StagesCompleted,
		TotalScore:       r.TotalScore,
		TotalHintsUsed:   r.TotalHintsUsed,
		TotalTimeSeconds: r.TotalTimeSeconds,
		LastActivityAt:   r.LastActivityAt,
	}
}

func scoreEntry(r repository.ScoreRow, rank int) types.ScoreEntry {
	return types.ScoreEntry{
		Rank:        rank,
		UserID:      r.UserID,
		Username:    r.Username,
		CountryCode: r.CountryCode,
		Scope:       r.Scope,
		Score:       r.MaxScore,
		MaxScoreAt:  r.MaxScoreAt,
	}
}

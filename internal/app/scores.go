package service

import (
	"context"
	"strings"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/bestrecord"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/guard"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/scope"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/types"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
)

// ScoreSubmission is a single-score game result. DurationSeconds is optional.
// Region may be a scope name or the legacy URL-like value sent by older
// clients.
type ScoreSubmission struct {
	Player          model.Player
	Score           int
	DurationSeconds *int
	Mode            string
	Region          string
	SubmissionID    string
	At              time.Time
}

// ScoreResult is the outcome of SubmitScore.
type ScoreResult struct {
	Persisted bool   `json:"persisted"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Score     int    `json:"score"`
	MaxScore  int    `json:"max_score"`
	LastScore int    `json:"last_score"`
	Improved  bool   `json:"is_new_record"`
	Flagged   bool   `json:"-"`
}

// SubmitScore validates a score and keeps it as the user's last score in its
// scope, moving the max only when it is strictly beaten. Scores of modes
// that are not authoritative, or whose scope cannot be determined, are
// accepted without being stored.
func (s *Service) SubmitScore(ctx context.Context, in ScoreSubmission) (res ScoreResult, err error) {
	outcome := "accepted"
	defer func() { s.submitted(kindScore, outcome, err) }()

	if err := checkPlayer(in.Player); err != nil {
		return ScoreResult{}, err
	}
	mode := strings.ToLower(strings.TrimSpace(in.Mode))
	if mode == "" && scope.ShouldPersist("", in.Region) {
		mode = model.ModeCareer
	}
	if err := s.guard.ValidateScore(ctx, guard.ScoreSubmission{Score: in.Score, Mode: mode, DurationSeconds: in.DurationSeconds}); err != nil {
		return ScoreResult{}, err
	}
	res.Score = in.Score

	if !scope.ShouldPersist(in.Mode, in.Region) {
		outcome = "skipped"
		return res, nil
	}
	sc, ok := scope.Resolve(in.Mode, in.Region)
	if !ok {
		s.logger.Debug(ctx, "no scope for submission, not persisted",
			logger.Int64("user_id", in.Player.ID), logger.String("region", in.Region))
		outcome = "skipped"
		return res, nil
	}
	res.Scope = string(sc)

	fresh, release := s.claim(ctx, kindScore, in.Player.ID, in.SubmissionID)
	if !fresh {
		res.Duplicate = true
		outcome = "duplicate"
		return res, nil
	}

	at := in.At
	if at.IsZero() {
		at = s.now()
	}
	sub := bestrecord.ScoreSubmission{
		UserID:      in.Player.ID,
		Scope:       string(sc),
		CountryCode: in.Player.CountryCode,
		Score:       in.Score,
		At:          at.UTC(),
	}
	var flagged bool
	best, improved, err := s.best.UpsertScopedBestWith(ctx, sub, bestrecord.Unit[model.ScopedBest]{
		Prepare: func(ctx context.Context, tx repository.Tx, _ *model.ScopedBest) error {
			if err := tx.UpsertPlayer(ctx, in.Player); err != nil {
				return err
			}
			prev, found, err := tx.FindScopedBest(ctx, sub.UserID, sub.Scope, false)
			if err != nil {
				return err
			}
			if found {
				flagged = s.guard.InspectHistory(ctx, in.Score, &prev)
			}
			return nil
		},
	})
	if err != nil {
		release()
		s.logger.Error(ctx, "score not persisted",
			logger.Int64("user_id", in.Player.ID), logger.String("scope", sub.Scope), logger.Error(err))
		return ScoreResult{}, err
	}

	res.Persisted = true
	res.MaxScore, res.LastScore = best.MaxScore, best.LastScore
	res.Improved = improved
	res.Flagged = flagged
	return res, nil
}

// Scores lists a score table. KindUser lists every scope of userID.
func (s *Service) Scores(ctx context.Context, q ranking.Query, userID int64, limit, offset int) ([]types.ScoreEntry, error) {
	if q.Kind == ranking.KindUser {
		if userID <= 0 {
			return nil, model.Reject(model.ErrInvalidInput, "user_id", "user_id is required for the user scope")
		}
		return s.ranking.UserScores(ctx, userID, limit, offset)
	}
	return s.ranking.ScoreLeaderboard(ctx, q, limit, offset)
}

// Position returns the rank of userID in a score table.
func (s *Service) Position(ctx context.Context, q ranking.Query, userID int64) (types.Position, error) {
	if userID <= 0 {
		return types.Position{}, model.Reject(model.ErrInvalidInput, "identity", "a positive user id is required")
	}
	return s.ranking.ScoreRank(ctx, q, userID)
}

// Summary returns the global top, the user's positions and their best row.
func (s *Service) Summary(ctx context.Context, userID int64, top int) (ranking.Summary, error) {
	if userID <= 0 {
		return ranking.Summary{}, model.Reject(model.ErrInvalidInput, "identity", "a positive user id is required")
	}
	return s.ranking.Summary(ctx, userID, top)
}

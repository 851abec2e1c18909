package service

import (
	"context"
	"errors"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/bestrecord"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/guard"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/scope"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/scoring"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/types"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

// StageCompletion is a finished career stage as reported by the client.
// PathStageID is the stage named by the route; StageID, when set, must agree
// with it.
type StageCompletion struct {
	Player       model.Player
	PathStageID  string
	StageID      string
	Score        int
	HintsUsed    int
	TimeSeconds  int
	Groups       []model.Group
	Mode         string
	Region       string
	SubmissionID string
	CompletedAt  time.Time
}

// BestView is the stage best returned to the client.
type BestView struct {
	Score       int       `json:"score"`
	HintsUsed   int       `json:"hints_used"`
	TimeSeconds int       `json:"time_seconds"`
	AchievedAt  time.Time `json:"achieved_at"`
}

// StatsView is a career summary returned to the client.
type StatsView struct {
	StagesCompleted  int `json:"stages_completed"`
	TotalScore       int `json:"total_score"`
	TotalHintsUsed   int `json:"total_hints_used"`
	TotalTimeSeconds int `json:"total_time_seconds"`
}

// StageResult is the outcome of CompleteStage. Persisted is false for
// submissions of a mode that is not authoritative and for duplicates.
type StageResult struct {
	Persisted        bool       `json:"persisted"`
	Duplicate        bool       `json:"duplicate,omitempty"`
	StageID          string     `json:"stage_id"`
	Score            int        `json:"score"`
	AttemptID        int64      `json:"stage_run_id,omitempty"`
	StageBestUpdated bool       `json:"stage_best_updated"`
	StageBest        *BestView  `json:"stage_best,omitempty"`
	CareerStats      *StatsView `json:"career_stats,omitempty"`
}

// CompleteStage validates a stage completion, replaces the claimed score
// with the computed one and, in a single transaction, appends it to the
// ledger, keeps the stage best and recomputes the career summary.
func (s *Service) CompleteStage(ctx context.Context, in StageCompletion) (res StageResult, err error) {
	outcome := "accepted"
	defer func() { s.submitted(kindStage, outcome, err) }()

	if err := checkPlayer(in.Player); err != nil {
		return StageResult{}, err
	}
	stageID := scoring.NormalizeStageID(in.PathStageID)
	if stageID == "" {
		return StageResult{}, model.Reject(model.ErrInvalidInput, "stage_id", "stage_id is required")
	}
	if in.StageID != "" && scoring.NormalizeStageID(in.StageID) != stageID {
		return StageResult{}, model.Reject(model.ErrInvalidInput, "stage_id", "stage_id mismatch between path and body")
	}
	res.StageID = stageID

	score := s.formula.ComputeStageScore(stageID, in.Groups, in.HintsUsed, in.TimeSeconds)
	if err := s.guard.ValidateStage(ctx, guard.StageSubmission{
		StageID:       stageID,
		Score:         in.Score,
		ComputedScore: score,
		MaxScore:      s.formula.MaxStageScore(stageID, in.Groups, 0),
		HintsUsed:     in.HintsUsed,
		TimeSeconds:   in.TimeSeconds,
		Groups:        in.Groups,
	}); err != nil {
		return StageResult{}, err
	}
	res.Score = score

	if !scope.ShouldPersist(in.Mode, in.Region) {
		s.logger.Debug(ctx, "stage completion outside career mode not persisted",
			logger.Int64("user_id", in.Player.ID), logger.String("mode", in.Mode))
		outcome = "skipped"
		return res, nil
	}

	if score != in.Score {
		metrics.RecordScoreMismatch()
		s.logger.Warn(ctx, "score mismatch, using computed score",
			logger.Int64("user_id", in.Player.ID),
			logger.String("stage", stageID),
			logger.Int("client_score", in.Score),
			logger.Int("computed_score", score))
	}

	fresh, release := s.claim(ctx, kindStage, in.Player.ID, in.SubmissionID)
	if !fresh {
		res.Duplicate = true
		outcome = "duplicate"
		return res, nil
	}

	at := in.CompletedAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	var (
		attemptID int64
		summary   model.CareerStats
	)
	candidate := model.StageBest{
		UserID:      in.Player.ID,
		StageID:     stageID,
		Score:       score,
		HintsUsed:   in.HintsUsed,
		TimeSeconds: in.TimeSeconds,
		Groups:      in.Groups,
		AchievedAt:  at,
	}
	best, improved, err := s.best.UpsertStageBestWith(ctx, candidate, bestrecord.Unit[model.StageBest]{
		Prepare: func(ctx context.Context, tx repository.Tx, c *model.StageBest) error {
			if err := tx.UpsertPlayer(ctx, in.Player); err != nil {
				return err
			}
			id, err := s.ledger.Append(ctx, tx, model.StageAttempt{
				UserID:      in.Player.ID,
				StageID:     stageID,
				Score:       score,
				ClientScore: in.Score,
				HintsUsed:   in.HintsUsed,
				TimeSeconds: in.TimeSeconds,
				Groups:      in.Groups,
				CompletedAt: at,
			})
			if err != nil {
				return err
			}
			attemptID, c.AttemptID = id, id
			return nil
		},
		Finish: func(ctx context.Context, tx repository.Tx, _ model.StageBest, _ bool) error {
			var err error
			summary, err = s.stats.RecomputeTx(ctx, tx, in.Player.ID)
			return err
		},
	})
	if err != nil {
		release()
		s.logger.Error(ctx, "stage completion not persisted",
			logger.Int64("user_id", in.Player.ID), logger.String("stage", stageID), logger.Error(err))
		return StageResult{}, err
	}

	res.Persisted = true
	res.AttemptID = attemptID
	res.StageBestUpdated = improved
	res.StageBest = &BestView{Score: best.Score, HintsUsed: best.HintsUsed, TimeSeconds: best.TimeSeconds, AchievedAt: best.AchievedAt}
	res.CareerStats = statsView(summary)
	return res, nil
}

func statsView(st model.CareerStats) *StatsView {
	return &StatsView{
		StagesCompleted:  st.StagesCompleted,
		TotalScore:       st.TotalScore,
		TotalHintsUsed:   st.TotalHintsUsed,
		TotalTimeSeconds: st.TotalTimeSeconds,
	}
}

// CareerSummary is a user's career summary with their leaderboard rank.
// Rank is nil for a user with no career yet.
type CareerSummary struct {
	StatsView
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	Rank           *int       `json:"rank"`
	TotalPlayers   int        `json:"total_players"`
}

// MyStats returns the career summary of userID and their rank, where rank is
// one plus the number of users strictly ahead on the career order.
func (s *Service) MyStats(ctx context.Context, userID int64) (CareerSummary, error) {
	if userID <= 0 {
		return CareerSummary{}, model.Reject(model.ErrInvalidInput, "identity", "a positive user id is required")
	}
	pos, entry, err := s.ranking.CareerRank(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return CareerSummary{StatsView: StatsView{}}, nil
	}
	if err != nil {
		return CareerSummary{}, err
	}
	last := entry.LastActivityAt
	rank := pos.Rank
	return CareerSummary{
		StatsView: StatsView{
			StagesCompleted:  entry.StagesCompleted,
			TotalScore:       entry.TotalScore,
			TotalHintsUsed:   entry.TotalHintsUsed,
			TotalTimeSeconds: entry.TotalTimeSeconds,
		},
		LastActivityAt: &last,
		Rank:           &rank,
		TotalPlayers:   pos.TotalPlayers,
	}, nil
}

// CareerLeaderboard lists the career board.
func (s *Service) CareerLeaderboard(ctx context.Context, limit, offset int) ([]types.CareerEntry, error) {
	return s.ranking.CareerLeaderboard(ctx, limit, offset)
}

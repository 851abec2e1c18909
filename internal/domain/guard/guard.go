// Package guard rejects implausible submissions before anything is persisted.
//
// Rules run in a fixed order and the first violated rule rejects:
//
//  1. field ranges (score, duration, hints)
//  2. per-group consistency (stage submissions)
//  3. career ceiling: above the safe ceiling is tolerated with a warning up to
//     the absolute sanity bound
//  4. speed: a high score in too little time, for career and for every mode
//
// Repeated perfect scores are inspected separately and only flagged.
package guard

import (
	"context"
	"fmt"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

// Rule names, used as metric labels.
const (
	RuleRange   = "range"
	RuleGroups  = "groups"
	RuleCeiling = "ceiling"
	RuleSpeed   = "speed"
)

const maxHints = 2

// Limits holds the thresholds of rules 3 to 5.
type Limits struct {
	MaxStageScoreSafe         int
	MaxScoreAbsolute          int
	SpeedScoreThreshold       int
	SpeedMinDurationSeconds   int
	CareerSpeedScoreThreshold int
	CareerMinDurationSeconds  int
	PerfectScoreThreshold     int
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxStageScoreSafe:         500,
		MaxScoreAbsolute:          1000,
		SpeedScoreThreshold:       500,
		SpeedMinDurationSeconds:   10,
		CareerSpeedScoreThreshold: 1500,
		CareerMinDurationSeconds:  90,
		PerfectScoreThreshold:     500,
	}
}

// StageSubmission is the raw play data of a career stage. Score is the
// client's claim; ComputedScore is the server-side score for the same groups
// and MaxScore the stage's theoretical maximum. Zero values skip the checks
// that use them.
type StageSubmission struct {
	StageID       string
	Score         int
	ComputedScore int
	MaxScore      int
	HintsUsed     int
	TimeSeconds   int
	Groups        []model.Group
}

// ScoreSubmission is a single-score submission. DurationSeconds is optional.
type ScoreSubmission struct {
	Score           int
	Mode            string
	DurationSeconds *int
}

// Guard validates submissions against Limits.
type Guard struct {
	limits Limits
	logger logger.Logger
}

// New creates a Guard.
func New(opts ...Option) *Guard {
	g := &Guard{limits: DefaultLimits()}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Named("guard")
	}
	return g
}

// Limits returns the thresholds in force.
func (g *Guard) Limits() Limits { return g.limits }

// ValidateStage checks a career stage submission.
func (g *Guard) ValidateStage(ctx context.Context, s StageSubmission) error {
	switch {
	case s.Score < 0:
		return g.reject(ctx, model.ErrInvalidInput, RuleRange, "score cannot be negative")
	case s.TimeSeconds <= 0:
		return g.reject(ctx, model.ErrInvalidInput, RuleRange, "time_seconds must be positive")
	case s.HintsUsed < 0 || s.HintsUsed > maxHints:
		return g.reject(ctx, model.ErrInvalidInput, RuleRange, fmt.Sprintf("hints_used must be between 0 and %d", maxHints))
	case len(s.Groups) == 0:
		return g.reject(ctx, model.ErrInvalidInput, RuleGroups, "at least one group is required")
	}
	for i, grp := range s.Groups {
		if grp.FlagsCount <= 0 {
			return g.reject(ctx, model.ErrInvalidInput, RuleGroups, fmt.Sprintf("group %d: flags_count must be positive", i))
		}
		if grp.Correct < 0 || grp.Correct > grp.FlagsCount {
			return g.reject(ctx, model.ErrInvalidInput, RuleGroups, fmt.Sprintf("group %d: correct must be between 0 and flags_count", i))
		}
	}
	if s.MaxScore > 0 && s.Score > s.MaxScore {
		g.logger.Warn(ctx, "claimed score above stage maximum",
			logger.String("stage", s.StageID),
			logger.Int("score", s.Score),
			logger.Int("stage_max", s.MaxScore))
		metrics.RecordSuspiciousScore("above_stage_max")
	}
	d := s.TimeSeconds
	if err := g.checkPlausibility(ctx, s.Score, model.ModeCareer, &d, s.MaxScore); err != nil {
		return err
	}
	// The computed score is what gets stored, so it passes the same rules.
	if s.ComputedScore != s.Score && s.ComputedScore > 0 {
		return g.checkPlausibility(ctx, s.ComputedScore, model.ModeCareer, &d, s.MaxScore)
	}
	return nil
}

// ValidateScore checks a single-score submission.
func (g *Guard) ValidateScore(ctx context.Context, s ScoreSubmission) error {
	if s.Score < 0 {
		return g.reject(ctx, model.ErrInvalidInput, RuleRange, "score cannot be negative")
	}
	if s.DurationSeconds != nil && *s.DurationSeconds <= 0 {
		return g.reject(ctx, model.ErrInvalidInput, RuleRange, "game_duration_seconds must be positive")
	}
	return g.checkPlausibility(ctx, s.Score, s.Mode, s.DurationSeconds, 0)
}

func (g *Guard) checkPlausibility(ctx context.Context, score int, mode string, duration *int, stageMax int) error {
	career := mode == model.ModeCareer
	if career && score > g.limits.MaxStageScoreSafe {
		if score > g.limits.MaxScoreAbsolute {
			return g.reject(ctx, model.ErrImplausibleScore, RuleCeiling, "score too high for the current stage configuration")
		}
		fields := []logger.Field{logger.Int("score", score), logger.String("mode", mode)}
		if stageMax > 0 {
			fields = append(fields, logger.Int("stage_max", stageMax))
		}
		g.logger.Warn(ctx, "score above safe ceiling", fields...)
		metrics.RecordSuspiciousScore("above_safe_ceiling")
	}
	if duration == nil {
		return nil
	}
	if career && score > g.limits.CareerSpeedScoreThreshold && *duration < g.limits.CareerMinDurationSeconds {
		return g.reject(ctx, model.ErrImplausibleScore, RuleSpeed, "game duration too short for such a high score")
	}
	if score > g.limits.SpeedScoreThreshold && *duration < g.limits.SpeedMinDurationSeconds {
		return g.reject(ctx, model.ErrImplausibleScore, RuleSpeed, "impossible game duration")
	}
	return nil
}

// InspectHistory flags a score at or above the perfect threshold submitted by
// a user whose best and last scores in the scope are already perfect. It
// never rejects; the return value only reports whether the flag was raised.
func (g *Guard) InspectHistory(ctx context.Context, score int, prev *model.ScopedBest) bool {
	t := g.limits.PerfectScoreThreshold
	if prev == nil || score < t || prev.MaxScore < t || prev.LastScore < t {
		return false
	}
	g.logger.Warn(ctx, "repeated perfect score",
		logger.Int64("user_id", prev.UserID),
		logger.String("scope", prev.Scope),
		logger.Int("score", score))
	metrics.RecordSuspiciousScore("repeated_perfect")
	return true
}

func (g *Guard) reject(ctx context.Context, kind error, rule, reason string) error {
	label := "invalid_input"
	if kind == model.ErrImplausibleScore {
		label = "implausible_score"
		g.logger.Warn(ctx, "submission rejected", logger.String("rule", rule), logger.String("reason", reason))
	}
	metrics.RecordRejection(label, rule)
	return model.Reject(kind, rule, reason)
}

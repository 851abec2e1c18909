// Package scoring computes the authoritative score of a career stage from raw
// play data. The computed value always replaces whatever the client claimed.
package scoring

import (
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

// Scoring constants.
const (
	pointsPerFlag     = 10
	errorPenalty      = 5
	hintsBreakEven    = 2
	pointsPerHint     = 10
	maxHintBonus      = 20
	timeBonusTop      = 15
	timeBonusMid      = 10
	timeBonusLow      = 5
	maxTimeBonus      = timeBonusTop
	defaultFlagsTotal = 14
)

// Scorer computes a stage score.
type Scorer interface {
	ComputeStageScore(stageID string, groups []model.Group, hintsUsed, timeSeconds int) int
}

// Breakdown is the itemized result of a stage score.
type Breakdown struct {
	Groups int `json:"groups"`
	Hints  int `json:"hints"`
	Time   int `json:"time"`
	Total  int `json:"total"`
}

// Formula implements Scorer on top of a stage catalog.
type Formula struct {
	catalog Catalog
}

var _ Scorer = (*Formula)(nil)

// New creates a Formula backed by the built-in catalog unless overridden.
func New(opts ...Option) *Formula {
	f := &Formula{catalog: DefaultCatalog()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ComputeStageScore returns the total score for a stage attempt.
func (f *Formula) ComputeStageScore(stageID string, groups []model.Group, hintsUsed, timeSeconds int) int {
	return f.Breakdown(stageID, groups, hintsUsed, timeSeconds).Total
}

// Breakdown returns the score itemized by component.
func (f *Formula) Breakdown(stageID string, groups []model.Group, hintsUsed, timeSeconds int) Breakdown {
	b := Breakdown{Hints: HintBonus(hintsUsed)}
	for _, g := range groups {
		b.Groups += GroupScore(g)
	}
	if cfg, ok := f.catalog.Lookup(stageID); ok {
		b.Time = TimeBonus(cfg, timeSeconds)
	}
	b.Total = b.Groups + b.Hints + b.Time
	return b
}

// MaxStageScore is the theoretical ceiling of a stage. The flag count is the
// explicit total when positive, else the sum of group sizes, else the
// catalog's value for the stage.
func (f *Formula) MaxStageScore(stageID string, groups []model.Group, flagsTotal int) int {
	return MaxScoreForFlags(f.FlagsTotal(stageID, groups, flagsTotal))
}

// FlagsTotal infers how many flags a stage attempt covered.
func (f *Formula) FlagsTotal(stageID string, groups []model.Group, explicit int) int {
	if explicit > 0 {
		return explicit
	}
	sum := 0
	for _, g := range groups {
		if g.FlagsCount > 0 {
			sum += g.FlagsCount
		}
	}
	if sum > 0 {
		return sum
	}
	if cfg, ok := f.catalog.Lookup(stageID); ok && cfg.FlagsTotal > 0 {
		return cfg.FlagsTotal
	}
	return defaultFlagsTotal
}

// MaxScoreForFlags is the best possible score with the given number of flags.
func MaxScoreForFlags(flags int) int {
	return pointsPerFlag*flags + maxHintBonus + maxTimeBonus
}

// GroupScore scores one group: 10 per correct flag, minus 5 when the group
// had errors and at least one correct answer, floored at zero.
func GroupScore(g model.Group) int {
	score := pointsPerFlag * g.Correct
	if g.HadErrors && g.Correct > 0 {
		score -= errorPenalty
	}
	return max(0, score)
}

// HintBonus is 20 with no hints, 10 per hint less, never negative.
func HintBonus(hintsUsed int) int {
	return min(max((hintsBreakEven-hintsUsed)*pointsPerHint, 0), maxHintBonus)
}

// TimeBonus awards 15, 10 or 5 points by the seconds left on the clock.
func TimeBonus(cfg model.StageConfig, timeSeconds int) int {
	remaining := max(0, cfg.TimeLimit-timeSeconds)
	switch {
	case remaining >= cfg.Threshold15:
		return timeBonusTop
	case remaining >= cfg.Threshold10:
		return timeBonusMid
	case remaining >= cfg.Threshold5:
		return timeBonusLow
	default:
		return 0
	}
}

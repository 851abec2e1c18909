package scoring

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

// Catalog is a read-only stage configuration lookup.
type Catalog interface {
	Lookup(stageID string) (model.StageConfig, bool)
}

// StaticCatalog is a Catalog backed by a map keyed by normalized stage id.
type StaticCatalog map[string]model.StageConfig

var (
	earlyStage = model.StageConfig{FlagsTotal: 14, TimeLimit: 115, Threshold15: 58, Threshold10: 29, Threshold5: 12}
	lateStage  = model.StageConfig{FlagsTotal: 18, TimeLimit: 140, Threshold15: 70, Threshold10: 35, Threshold5: 14}
)

// DefaultCatalog returns the built-in ten-stage career.
func DefaultCatalog() StaticCatalog {
	c := make(StaticCatalog, 10)
	for i := 1; i <= 10; i++ {
		if i <= 4 {
			c[strconv.Itoa(i)] = earlyStage
		} else {
			c[strconv.Itoa(i)] = lateStage
		}
	}
	return c
}

// Merge returns a copy of c with overrides applied on top.
func (c StaticCatalog) Merge(overrides map[string]model.StageConfig) StaticCatalog {
	out := make(StaticCatalog, len(c)+len(overrides))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range overrides {
		out[NormalizeStageID(k)] = v
	}
	return out
}

// Lookup returns the configuration of a stage. Ids may carry a "stage_" prefix.
func (c StaticCatalog) Lookup(stageID string) (model.StageConfig, bool) {
	cfg, ok := c[NormalizeStageID(stageID)]
	return cfg, ok
}

// NormalizeStageID strips whitespace and the optional "stage_" prefix.
func NormalizeStageID(stageID string) string {
	return strings.TrimPrefix(strings.TrimSpace(stageID), "stage_")
}

// ValidateStageConfig checks that a stage configuration is usable.
func ValidateStageConfig(id string, cfg model.StageConfig) error {
	switch {
	case cfg.FlagsTotal <= 0:
		return fmt.Errorf("stage %q: flags_total must be positive", id)
	case cfg.TimeLimit <= 0:
		return fmt.Errorf("stage %q: time_limit must be positive", id)
	case !(cfg.Threshold15 >= cfg.Threshold10 && cfg.Threshold10 >= cfg.Threshold5 && cfg.Threshold5 >= 0):
		return fmt.Errorf("stage %q: thresholds must be descending and non-negative", id)
	}
	return nil
}

package sqlstore

import (
	"strings"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
)

// Both boards are read through the same column expressions for ORDER BY and
// for the strictly-better predicate, so listing and rank share one order.

func (s *Store) careerColumn(name string) string {
	switch name {
	case "user_id":
		return "c.user_id"
	default:
		return "c." + name
	}
}

func (s *Store) scoreColumn(name string) string {
	switch name {
	case "username":
		// Byte order, matching the in-memory comparator.
		if s.dialect == dialectPostgres {
			return `p.username COLLATE "C"`
		}
		return "p.username"
	default:
		return "s." + name
	}
}

func careerValues(r repository.CareerRow) map[string]any {
	return map[string]any{
		"stages_completed":   r.StagesCompleted,
		"total_score":        r.TotalScore,
		"total_hints_used":   r.TotalHintsUsed,
		"total_time_seconds": r.TotalTimeSeconds,
		"last_activity_at":   ts(r.LastActivityAt),
		"user_id":            r.UserID,
	}
}

func scoreValues(r repository.ScoreRow) map[string]any {
	return map[string]any{
		"max_score":    r.MaxScore,
		"max_score_at": ts(r.MaxScoreAt),
		"username":     r.Username,
		"user_id":      r.UserID,
	}
}

func orderBy(keys []ranking.OrderKey, column func(string) string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		dir := " ASC"
		if k.Desc {
			dir = " DESC"
		}
		parts[i] = column(k.Column) + dir
	}
	return strings.Join(parts, ", ")
}

// betterThan builds the predicate matching rows that rank strictly ahead of
// a row with the given key values: ahead on the first key, or equal on it and
// ahead on the next, and so on.
func betterThan(keys []ranking.OrderKey, column func(string) string, vals map[string]any) (string, []any) {
	ors := make([]string, 0, len(keys))
	var args []any
	for i, k := range keys {
		ands := make([]string, 0, i+1)
		for _, prev := range keys[:i] {
			ands = append(ands, column(prev.Column)+" = ?")
			args = append(args, vals[prev.Column])
		}
		op := " < ?"
		if k.Desc {
			op = " > ?"
		}
		ands = append(ands, column(k.Column)+op)
		args = append(args, vals[k.Column])
		ors = append(ors, "("+strings.Join(ands, " AND ")+")")
	}
	return "(" + strings.Join(ors, " OR ") + ")", args
}

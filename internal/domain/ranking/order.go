package ranking

import "github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"

// OrderKey is one column of a leaderboard ordering.
type OrderKey struct {
	Column string
	Desc   bool
}

// CareerOrder is the career leaderboard order. user_id closes the order so
// listing positions and ranks never disagree.
var CareerOrder = []OrderKey{
	{Column: "stages_completed", Desc: true},
	{Column: "total_score", Desc: true},
	{Column: "total_hints_used"},
	{Column: "total_time_seconds"},
	{Column: "last_activity_at"},
	{Column: "user_id"},
}

// ScoreOrder is the score table order: earlier record setters win ties.
var ScoreOrder = []OrderKey{
	{Column: "max_score", Desc: true},
	{Column: "max_score_at"},
	{Column: "username"},
	{Column: "user_id"},
}

// CareerLess reports whether a ranks strictly ahead of b.
func CareerLess(a, b repository.CareerRow) bool {
	switch {
	case a.StagesCompleted != b.StagesCompleted:
		return a.StagesCompleted > b.StagesCompleted
	case a.TotalScore != b.TotalScore:
		return a.TotalScore > b.TotalScore
	case a.TotalHintsUsed != b.TotalHintsUsed:
		return a.TotalHintsUsed < b.TotalHintsUsed
	case a.TotalTimeSeconds != b.TotalTimeSeconds:
		return a.TotalTimeSeconds < b.TotalTimeSeconds
	case !a.LastActivityAt.Equal(b.LastActivityAt):
		return a.LastActivityAt.Before(b.LastActivityAt)
	default:
		return a.UserID < b.UserID
	}
}

// ScoreLess reports whether a ranks strictly ahead of b.
func ScoreLess(a, b repository.ScoreRow) bool {
	switch {
	case a.MaxScore != b.MaxScore:
		return a.MaxScore > b.MaxScore
	case !a.MaxScoreAt.Equal(b.MaxScoreAt):
		return a.MaxScoreAt.Before(b.MaxScoreAt)
	case a.Username != b.Username:
		return a.Username < b.Username
	default:
		return a.UserID < b.UserID
	}
}

// Package types contains the read shapes returned by leaderboard queries.
package types

import "time"

// CareerEntry is one row of the career leaderboard.
type CareerEntry struct {
	Rank             int       `json:"rank"`
	UserID           int64     `json:"user_id"`
	Username         string    `json:"username"`
	CountryCode      string    `json:"country_code,omitempty"`
	StagesCompleted  int       `json:"stages_completed"`
	TotalScore       int       `json:"total_score"`
	TotalHintsUsed   int       `json:"total_hints_used"`
	TotalTimeSeconds int       `json:"total_time_seconds"`
	LastActivityAt   time.Time `json:"last_activity_at"`
}

// ScoreEntry is one row of a score table (global, region or country).
type ScoreEntry struct {
	Rank        int       `json:"rank"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	CountryCode string    `json:"country_code,omitempty"`
	Scope       string    `json:"scope"`
	Score       int       `json:"score"`
	MaxScoreAt  time.Time `json:"date_of_max_score"`
}

// Position is a user's rank within a filtered board.
type Position struct {
	Rank         int `json:"rank"`
	Score        int `json:"score"`
	TotalPlayers int `json:"total_players"`
}

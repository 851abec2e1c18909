// Package model contains the records the engine reads and writes. Every
// record is owned by the persistence layer; the engine only holds copies for
// the duration of one operation.
package model

import "time"

// ModeCareer is the only game mode whose submissions are authoritative.
const ModeCareer = "career"

// Player is the identity collaborator's projection the engine needs for
// ranking: a stable id, the tie-break username and the declared country.
type Player struct {
	ID          int64
	Username    string
	CountryCode string
}

// Group is the per-group outcome of a stage attempt.
type Group struct {
	FlagsCount int  `json:"flags_count"`
	Correct    int  `json:"correct"`
	HadErrors  bool `json:"had_errors"`
}

// StageConfig describes one stage of the career. The three thresholds are
// seconds remaining on the clock needed for the 15, 10 and 5 point time
// bonus, in descending order.
type StageConfig struct {
	FlagsTotal  int `koanf:"flags_total" json:"flags_total"`
	TimeLimit   int `koanf:"time_limit" json:"time_limit"`
	Threshold15 int `koanf:"threshold_15" json:"threshold_15"`
	Threshold10 int `koanf:"threshold_10" json:"threshold_10"`
	Threshold5  int `koanf:"threshold_5" json:"threshold_5"`
}

// StageAttempt is an immutable run ledger entry.
type StageAttempt struct {
	ID          int64
	UserID      int64
	StageID     string
	Score       int
	ClientScore int
	HintsUsed   int
	TimeSeconds int
	Groups      []Group
	CompletedAt time.Time
}

// StageBest is the best known attempt of a user at a stage.
type StageBest struct {
	UserID      int64
	StageID     string
	Score       int
	HintsUsed   int
	TimeSeconds int
	Groups      []Group
	AttemptID   int64
	AchievedAt  time.Time
}

// CareerStats is the per-user summary derived from every StageBest row.
type CareerStats struct {
	UserID           int64
	StagesCompleted  int
	TotalScore       int
	TotalHintsUsed   int
	TotalTimeSeconds int
	LastActivityAt   time.Time
}

// ScopedBest is the single-score best of a user within a scope.
type ScopedBest struct {
	UserID      int64
	Scope       string
	MaxScore    int
	LastScore   int
	MaxScoreAt  time.Time
	LastScoreAt time.Time
	CountryCode string
}

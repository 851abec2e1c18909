package sqlstore

import (
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

type playerRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement:false"`
	Username    string `gorm:"size:64;not null"`
	CountryCode string `gorm:"size:8;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (playerRow) TableName() string { return "players" }

type attemptRow struct {
	ID          int64         `gorm:"primaryKey"`
	UserID      int64         `gorm:"not null;index:idx_stage_attempts_user_completed,priority:1"`
	StageID     string        `gorm:"size:32;not null"`
	Score       int           `gorm:"not null"`
	ClientScore int           `gorm:"not null;default:0"`
	HintsUsed   int           `gorm:"not null"`
	TimeSeconds int           `gorm:"not null"`
	Groups      []model.Group `gorm:"column:group_results;type:text;serializer:json"`
	CompletedAt time.Time     `gorm:"not null;index:idx_stage_attempts_user_completed,priority:2"`
	Player      playerRow     `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

func (attemptRow) TableName() string { return "stage_attempts" }

type stageBestRow struct {
	UserID      int64         `gorm:"primaryKey;autoIncrement:false"`
	StageID     string        `gorm:"primaryKey;size:32"`
	Score       int           `gorm:"not null"`
	HintsUsed   int           `gorm:"not null"`
	TimeSeconds int           `gorm:"not null"`
	Groups      []model.Group `gorm:"column:group_results;type:text;serializer:json"`
	AttemptID   int64
	AchievedAt  time.Time `gorm:"not null"`
	Player      playerRow `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

func (stageBestRow) TableName() string { return "stage_bests" }

type careerStatsRow struct {
	UserID           int64     `gorm:"primaryKey;autoIncrement:false"`
	StagesCompleted  int       `gorm:"not null;index:idx_career_stats_order,priority:1"`
	TotalScore       int       `gorm:"not null;index:idx_career_stats_order,priority:2"`
	TotalHintsUsed   int       `gorm:"not null"`
	TotalTimeSeconds int       `gorm:"not null"`
	LastActivityAt   time.Time `gorm:"not null"`
	Player           playerRow `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

func (careerStatsRow) TableName() string { return "career_stats" }

type scopedBestRow struct {
	UserID      int64     `gorm:"primaryKey;autoIncrement:false"`
	Scope       string    `gorm:"primaryKey;size:32;index:idx_scoped_best_order,priority:1"`
	MaxScore    int       `gorm:"not null;index:idx_scoped_best_order,priority:2"`
	LastScore   int       `gorm:"not null"`
	MaxScoreAt  time.Time `gorm:"not null"`
	LastScoreAt time.Time `gorm:"not null"`
	CountryCode string    `gorm:"size:8"`
	Player      playerRow `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

func (scopedBestRow) TableName() string { return "scoped_best_scores" }

// ts normalizes times to the precision every supported database keeps.
func ts(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }

func toAttemptRow(a model.StageAttempt) attemptRow {
	return attemptRow{
		UserID: a.UserID, StageID: a.StageID, Score: a.Score, ClientScore: a.ClientScore,
		HintsUsed: a.HintsUsed, TimeSeconds: a.TimeSeconds, Groups: a.Groups, CompletedAt: ts(a.CompletedAt),
	}
}

func (r attemptRow) model() model.StageAttempt {
	return model.StageAttempt{
		ID: r.ID, UserID: r.UserID, StageID: r.StageID, Score: r.Score, ClientScore: r.ClientScore,
		HintsUsed: r.HintsUsed, TimeSeconds: r.TimeSeconds, Groups: r.Groups, CompletedAt: r.CompletedAt.UTC(),
	}
}

func toStageBestRow(b model.StageBest) stageBestRow {
	return stageBestRow{
		UserID: b.UserID, StageID: b.StageID, Score: b.Score, HintsUsed: b.HintsUsed,
		TimeSeconds: b.TimeSeconds, Groups: b.Groups, AttemptID: b.AttemptID, AchievedAt: ts(b.AchievedAt),
	}
}

func (r stageBestRow) model() model.StageBest {
	return model.StageBest{
		UserID: r.UserID, StageID: r.StageID, Score: r.Score, HintsUsed: r.HintsUsed,
		TimeSeconds: r.TimeSeconds, Groups: r.Groups, AttemptID: r.AttemptID, AchievedAt: r.AchievedAt.UTC(),
	}
}

func toCareerStatsRow(s model.CareerStats) careerStatsRow {
	return careerStatsRow{
		UserID: s.UserID, StagesCompleted: s.StagesCompleted, TotalScore: s.TotalScore,
		TotalHintsUsed: s.TotalHintsUsed, TotalTimeSeconds: s.TotalTimeSeconds, LastActivityAt: ts(s.LastActivityAt),
	}
}

func (r careerStatsRow) model() model.CareerStats {
	return model.CareerStats{
		UserID: r.UserID, StagesCompleted: r.StagesCompleted, TotalScore: r.TotalScore,
		TotalHintsUsed: r.TotalHintsUsed, TotalTimeSeconds: r.TotalTimeSeconds, LastActivityAt: r.LastActivityAt.UTC(),
	}
}

func toScopedBestRow(b model.ScopedBest) scopedBestRow {
	return scopedBestRow{
		UserID: b.UserID, Scope: b.Scope, MaxScore: b.MaxScore, LastScore: b.LastScore,
		MaxScoreAt: ts(b.MaxScoreAt), LastScoreAt: ts(b.LastScoreAt), CountryCode: b.CountryCode,
	}
}

func (r scopedBestRow) model() model.ScopedBest {
	return model.ScopedBest{
		UserID: r.UserID, Scope: r.Scope, MaxScore: r.MaxScore, LastScore: r.LastScore,
		MaxScoreAt: r.MaxScoreAt.UTC(), LastScoreAt: r.LastScoreAt.UTC(), CountryCode: r.CountryCode,
	}
}

// allModels lists the tables in dependency order.
var allModels = []any{&playerRow{}, &attemptRow{}, &stageBestRow{}, &careerStatsRow{}, &scopedBestRow{}}

package sqlstore

import (
	"context"
	"fmt"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tx struct {
	db      *gorm.DB
	dialect string
}

var _ repository.Tx = (*tx)(nil)

// forUpdate adds a row lock where the dialect has one. SQLite transactions
// are opened immediate and already exclude other writers.
func (t *tx) forUpdate(q *gorm.DB, lock bool) *gorm.DB {
	if lock && t.dialect == dialectPostgres {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (t *tx) UpsertPlayer(ctx context.Context, p model.Player) error {
	row := playerRow{ID: p.ID, Username: p.Username, CountryCode: p.CountryCode}
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "country_code", "updated_at"}),
	}).Create(&row).Error
	return wrap("upsert player", err)
}

func (t *tx) AppendAttempt(ctx context.Context, a model.StageAttempt) (int64, error) {
	row := toAttemptRow(a)
	if err := t.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return 0, wrap("append attempt", err)
	}
	return row.ID, nil
}

func (t *tx) FindStageBest(ctx context.Context, userID int64, stageID string, lock bool) (model.StageBest, bool, error) {
	var rows []stageBestRow
	q := t.forUpdate(t.db.WithContext(ctx), lock).
		Where("user_id = ? AND stage_id = ?", userID, stageID).Limit(1)
	if err := q.Find(&rows).Error; err != nil {
		return model.StageBest{}, false, wrap("find stage best", err)
	}
	if len(rows) == 0 {
		return model.StageBest{}, false, nil
	}
	return rows[0].model(), true, nil
}

func (t *tx) InsertStageBest(ctx context.Context, b model.StageBest) error {
	row := toStageBestRow(b)
	err := t.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("insert stage best (%d, %s): %w", b.UserID, b.StageID, repository.ErrConflict)
	}
	return wrap("insert stage best", err)
}

func (t *tx) UpdateStageBest(ctx context.Context, b model.StageBest) error {
	row := toStageBestRow(b)
	res := t.db.WithContext(ctx).Model(&stageBestRow{}).
		Where("user_id = ? AND stage_id = ?", b.UserID, b.StageID).
		Select("score", "hints_used", "time_seconds", "group_results", "attempt_id", "achieved_at").
		Updates(&row)
	if res.Error != nil {
		return wrap("update stage best", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update stage best (%d, %s): %w", b.UserID, b.StageID, repository.ErrNotFound)
	}
	return nil
}

func (t *tx) ListStageBests(ctx context.Context, userID int64) ([]model.StageBest, error) {
	var rows []stageBestRow
	if err := t.db.WithContext(ctx).Where("user_id = ?", userID).Order("stage_id").Find(&rows).Error; err != nil {
		return nil, wrap("list stage bests", err)
	}
	out := make([]model.StageBest, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (t *tx) PutCareerStats(ctx context.Context, s model.CareerStats) error {
	row := toCareerStatsRow(s)
	err := t.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	return wrap("put career stats", err)
}

func (t *tx) FindScopedBest(ctx context.Context, userID int64, scope string, lock bool) (model.ScopedBest, bool, error) {
	var rows []scopedBestRow
	q := t.forUpdate(t.db.WithContext(ctx), lock).
		Where("user_id = ? AND scope = ?", userID, scope).Limit(1)
	if err := q.Find(&rows).Error; err != nil {
		return model.ScopedBest{}, false, wrap("find scoped best", err)
	}
	if len(rows) == 0 {
		return model.ScopedBest{}, false, nil
	}
	return rows[0].model(), true, nil
}

func (t *tx) InsertScopedBest(ctx context.Context, b model.ScopedBest) error {
	row := toScopedBestRow(b)
	err := t.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("insert scoped best (%d, %s): %w", b.UserID, b.Scope, repository.ErrConflict)
	}
	return wrap("insert scoped best", err)
}

func (t *tx) UpdateScopedBest(ctx context.Context, b model.ScopedBest) error {
	row := toScopedBestRow(b)
	res := t.db.WithContext(ctx).Model(&scopedBestRow{}).
		Where("user_id = ? AND scope = ?", b.UserID, b.Scope).
		Select("max_score", "last_score", "max_score_at", "last_score_at", "country_code").
		Updates(&row)
	if res.Error != nil {
		return wrap("update scoped best", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update scoped best (%d, %s): %w", b.UserID, b.Scope, repository.ErrNotFound)
	}
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return repository.Persistence(op, err)
}

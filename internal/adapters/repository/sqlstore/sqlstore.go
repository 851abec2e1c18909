// Package sqlstore implements repository.Store on a SQL database through
// gorm. PostgreSQL is the production backend; SQLite serves local runs and
// tests.
//
// A unique (user, key) primary key on every best-record table is what turns
// two racing first inserts into one success and one repository.ErrConflict.
// On PostgreSQL, locked lookups take SELECT ... FOR UPDATE. SQLite has no row
// locks, so its transactions begin immediate and the pool is pinned to a
// single connection.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// Store is a gorm-backed repository.Store.
type Store struct {
	db      *gorm.DB
	dialect string
	logger  logger.Logger
	closed  atomic.Bool
}

var _ repository.Store = (*Store)(nil)

// Open connects to driver ("postgres" or "sqlite") at dsn.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Named("sqlstore")
	}

	var dialector gorm.Dialector
	switch driver {
	case dialectPostgres:
		dialector = postgres.Open(dsn)
	case dialectSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         &gormLog{log: o.logger, level: gormlogger.Warn, slow: o.slowThreshold},
		TranslateError: true,
		NowFunc:        func() time.Time { return ts(time.Now()) },
	})
	if err != nil {
		return nil, repository.Persistence("open "+driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, repository.Persistence("open "+driver, err)
	}
	if driver == dialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(o.maxOpenConns)
		sqlDB.SetMaxIdleConns(o.maxIdleConns)
		sqlDB.SetConnMaxLifetime(o.connLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, repository.Persistence("ping "+driver, err)
	}

	s := &Store{db: db, dialect: driver, logger: o.logger}
	if o.autoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	o.logger.Info(ctx, "sql store ready", logger.String("driver", driver), logger.Bool("migrated", o.autoMigrate))
	return s, nil
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels...); err != nil {
		return repository.Persistence("migrate", err)
	}
	return nil
}

// WithinTx implements repository.Store. Errors returned by fn pass through
// unchanged; begin and commit failures are persistence errors.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if s.closed.Load() {
		return repository.Persistence("begin", repository.ErrClosed)
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryLatency("tx", float64(time.Since(start).Microseconds())/1000)
	}()

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		fnErr = fn(ctx, &tx{db: gtx, dialect: s.dialect})
		return fnErr
	})
	switch {
	case err == nil:
		return nil
	case fnErr != nil && errors.Is(err, fnErr):
		return fnErr
	default:
		return repository.Persistence("commit", err)
	}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) read(ctx context.Context, op string) (*gorm.DB, func()) {
	start := time.Now()
	return s.db.WithContext(ctx), func() {
		metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
	}
}

// Player implements repository.Reader.
func (s *Store) Player(ctx context.Context, userID int64) (model.Player, error) {
	db, done := s.read(ctx, "player")
	defer done()
	var rows []playerRow
	if err := db.Where("id = ?", userID).Limit(1).Find(&rows).Error; err != nil {
		return model.Player{}, wrap("player", err)
	}
	if len(rows) == 0 {
		return model.Player{}, fmt.Errorf("player %d: %w", userID, repository.ErrNotFound)
	}
	return model.Player{ID: rows[0].ID, Username: rows[0].Username, CountryCode: rows[0].CountryCode}, nil
}

// CareerStats implements repository.Reader.
func (s *Store) CareerStats(ctx context.Context, userID int64) (model.CareerStats, error) {
	db, done := s.read(ctx, "career_stats")
	defer done()
	var rows []careerStatsRow
	if err := db.Where("user_id = ?", userID).Limit(1).Find(&rows).Error; err != nil {
		return model.CareerStats{}, wrap("career stats", err)
	}
	if len(rows) == 0 {
		return model.CareerStats{}, fmt.Errorf("career stats %d: %w", userID, repository.ErrNotFound)
	}
	return rows[0].model(), nil
}

// StageBests implements repository.Reader.
func (s *Store) StageBests(ctx context.Context, userID int64) ([]model.StageBest, error) {
	db, done := s.read(ctx, "stage_bests")
	defer done()
	return (&tx{db: db, dialect: s.dialect}).ListStageBests(ctx, userID)
}

// ScopedBests implements repository.Reader.
func (s *Store) ScopedBests(ctx context.Context, userID int64) ([]model.ScopedBest, error) {
	db, done := s.read(ctx, "scoped_bests")
	defer done()
	var rows []scopedBestRow
	if err := db.Where("user_id = ?", userID).Order("scope").Find(&rows).Error; err != nil {
		return nil, wrap("scoped bests", err)
	}
	out := make([]model.ScopedBest, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// Attempts implements repository.Reader.
func (s *Store) Attempts(ctx context.Context, userID int64) ([]model.StageAttempt, error) {
	db, done := s.read(ctx, "attempts")
	defer done()
	var rows []attemptRow
	if err := db.Where("user_id = ?", userID).Order("completed_at, id").Find(&rows).Error; err != nil {
		return nil, wrap("attempts", err)
	}
	out := make([]model.StageAttempt, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// UsersWithAttempts implements repository.Reader.
func (s *Store) UsersWithAttempts(ctx context.Context) ([]int64, error) {
	db, done := s.read(ctx, "users_with_attempts")
	defer done()
	var ids []int64
	if err := db.Model(&attemptRow{}).Distinct("user_id").Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, wrap("users with attempts", err)
	}
	return ids, nil
}

const careerSelect = "c.user_id, p.username, p.country_code, c.stages_completed, c.total_score, " +
	"c.total_hints_used, c.total_time_seconds, c.last_activity_at"

func (s *Store) careerBase(db *gorm.DB) *gorm.DB {
	return db.Table("career_stats AS c").Select(careerSelect).Joins("JOIN players p ON p.id = c.user_id")
}

// CareerPage implements repository.Reader.
func (s *Store) CareerPage(ctx context.Context, p repository.Page) ([]repository.CareerRow, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return nil, repository.ErrInvalidPage
	}
	db, done := s.read(ctx, "career_page")
	defer done()
	var rows []repository.CareerRow
	err := s.careerBase(db).Order(orderBy(ranking.CareerOrder, s.careerColumn)).
		Limit(p.Limit).Offset(p.Offset).Scan(&rows).Error
	if err != nil {
		return nil, wrap("career page", err)
	}
	for i := range rows {
		rows[i].LastActivityAt = rows[i].LastActivityAt.UTC()
	}
	return rows, nil
}

// CareerPosition implements repository.Reader.
func (s *Store) CareerPosition(ctx context.Context, userID int64) (repository.CareerPosition, error) {
	db, done := s.read(ctx, "career_position")
	defer done()
	var rows []repository.CareerRow
	if err := s.careerBase(db).Where("c.user_id = ?", userID).Limit(1).Scan(&rows).Error; err != nil {
		return repository.CareerPosition{}, wrap("career position", err)
	}
	if len(rows) == 0 {
		return repository.CareerPosition{}, fmt.Errorf("career position %d: %w", userID, repository.ErrNotFound)
	}
	row := rows[0]
	row.LastActivityAt = row.LastActivityAt.UTC()

	cond, args := betterThan(ranking.CareerOrder, s.careerColumn, careerValues(row))
	var better, total int64
	if err := db.Table("career_stats AS c").Where(cond, args...).Count(&better).Error; err != nil {
		return repository.CareerPosition{}, wrap("career position", err)
	}
	if err := db.Table("career_stats AS c").Count(&total).Error; err != nil {
		return repository.CareerPosition{}, wrap("career position", err)
	}
	return repository.CareerPosition{Row: row, Better: int(better), Total: int(total)}, nil
}

const scoreSelect = "s.user_id, p.username, p.country_code, s.scope, s.max_score, s.max_score_at"

func (s *Store) scoreBase(db *gorm.DB, f repository.ScoreFilter, withSelect bool) *gorm.DB {
	q := db.Table("scoped_best_scores AS s").Joins("JOIN players p ON p.id = s.user_id").Where("s.scope = ?", f.Scope)
	if withSelect {
		q = q.Select(scoreSelect)
	}
	if f.CountryCode != "" {
		q = q.Where("p.country_code = ?", f.CountryCode)
	}
	return q
}

// ScorePage implements repository.Reader.
func (s *Store) ScorePage(ctx context.Context, f repository.ScoreFilter, p repository.Page) ([]repository.ScoreRow, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return nil, repository.ErrInvalidPage
	}
	db, done := s.read(ctx, "score_page")
	defer done()
	var rows []repository.ScoreRow
	err := s.scoreBase(db, f, true).Order(orderBy(ranking.ScoreOrder, s.scoreColumn)).
		Limit(p.Limit).Offset(p.Offset).Scan(&rows).Error
	if err != nil {
		return nil, wrap("score page", err)
	}
	for i := range rows {
		rows[i].MaxScoreAt = rows[i].MaxScoreAt.UTC()
	}
	return rows, nil
}

// ScorePosition implements repository.Reader.
func (s *Store) ScorePosition(ctx context.Context, f repository.ScoreFilter, userID int64) (repository.ScorePosition, error) {
	db, done := s.read(ctx, "score_position")
	defer done()
	var rows []repository.ScoreRow
	if err := s.scoreBase(db, f, true).Where("s.user_id = ?", userID).Limit(1).Scan(&rows).Error; err != nil {
		return repository.ScorePosition{}, wrap("score position", err)
	}
	if len(rows) == 0 {
		return repository.ScorePosition{}, fmt.Errorf("score position %d in %s: %w", userID, f.Scope, repository.ErrNotFound)
	}
	row := rows[0]
	row.MaxScoreAt = row.MaxScoreAt.UTC()

	cond, args := betterThan(ranking.ScoreOrder, s.scoreColumn, scoreValues(row))
	var better, total int64
	if err := s.scoreBase(db, f, false).Where(cond, args...).Count(&better).Error; err != nil {
		return repository.ScorePosition{}, wrap("score position", err)
	}
	if err := s.scoreBase(db, f, false).Count(&total).Error; err != nil {
		return repository.ScorePosition{}, wrap("score position", err)
	}
	return repository.ScorePosition{Row: row, Better: int(better), Total: int(total)}, nil
}

// Counts implements repository.Reader.
func (s *Store) Counts(ctx context.Context) (repository.Counts, error) {
	db, done := s.read(ctx, "counts")
	defer done()
	var c repository.Counts
	for _, q := range []struct {
		model any
		dst   *int64
	}{
		{&playerRow{}, &c.Players},
		{&attemptRow{}, &c.Attempts},
		{&stageBestRow{}, &c.StageBests},
		{&careerStatsRow{}, &c.CareerRows},
		{&scopedBestRow{}, &c.ScopedBests},
	} {
		if err := db.Model(q.model).Count(q.dst).Error; err != nil {
			return repository.Counts{}, wrap("counts", err)
		}
	}
	return c, nil
}

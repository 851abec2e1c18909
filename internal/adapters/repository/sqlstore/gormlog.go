package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLog routes gorm's logging into the application logger. Missing records
// are expected on the lookup paths and are never logged.
type gormLog struct {
	log   logger.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

var _ gormlogger.Interface = (*gormLog)(nil)

func (g *gormLog) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *g
	c.level = level
	return &c
}

func (g *gormLog) Info(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Info {
		g.log.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLog) Warn(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Warn {
		g.log.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLog) Error(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Error {
		g.log.Error(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && g.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound) && !isUniqueViolation(err):
		sql, rows := fc()
		g.log.Error(ctx, "query failed", logger.String("sql", sql), logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed), logger.Error(err))
	case g.slow > 0 && elapsed > g.slow && g.level >= gormlogger.Warn:
		sql, rows := fc()
		g.log.Warn(ctx, "slow query", logger.String("sql", sql), logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed))
	case g.level >= gormlogger.Info:
		sql, rows := fc()
		g.log.Debug(ctx, "query", logger.String("sql", sql), logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed))
	}
}

package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	slowQueryThreshold = 200 * time.Millisecond
	maxLoggedSQL       = 2048
)

// QueryLogger routes gorm's log output through slog. Not-found lookups are
// expected on the engagement path and are never reported as errors.
type QueryLogger struct {
	log   *slog.Logger
	level logger.LogLevel
	slow  time.Duration
}

var _ logger.Interface = (*QueryLogger)(nil)

// NewQueryLogger logs at level and flags statements slower than 200ms.
func NewQueryLogger(l *slog.Logger, level logger.LogLevel) *QueryLogger {
	return &QueryLogger{log: l, level: level, slow: slowQueryThreshold}
}

func (q *QueryLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *q
	cp.level = level
	return &cp
}

func (q *QueryLogger) Info(ctx context.Context, msg string, args ...any) {
	q.printf(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (q *QueryLogger) Warn(ctx context.Context, msg string, args ...any) {
	q.printf(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (q *QueryLogger) Error(ctx context.Context, msg string, args ...any) {
	q.printf(ctx, logger.Error, slog.LevelError, msg, args)
}

func (q *QueryLogger) printf(ctx context.Context, need logger.LogLevel, lvl slog.Level, msg string, args []any) {
	if q.level >= need {
		q.log.Log(ctx, lvl, fmt.Sprintf(msg, args...))
	}
}

// Trace logs one finished statement: failures at error, slow ones at warn,
// everything else at debug when the level is Info.
func (q *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slow > 0 && elapsed > q.slow

	var lvl slog.Level
	var msg string
	switch {
	case failed && q.level >= logger.Error:
		lvl, msg = slog.LevelError, "query failed"
	case slow && q.level >= logger.Warn:
		lvl, msg = slog.LevelWarn, "slow query"
	case q.level >= logger.Info:
		lvl, msg = slog.LevelDebug, "query"
	default:
		return
	}

	sql, rows := fc()
	if len(sql) > maxLoggedSQL {
		sql = sql[:maxLoggedSQL] + "..."
	}
	attrs := []slog.Attr{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if failed {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	q.log.LogAttrs(ctx, lvl, msg, attrs...)
}

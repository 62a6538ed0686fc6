package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/orderportal/pkg/logger"
)

// queryLogger routes gorm's statement log into the service logger. Only slow
// statements and unexpected failures are emitted; record-not-found is a
// normal outcome for lookups and stays quiet.
type queryLogger struct {
	logg      *logger.Logger
	slow      time.Duration
	level     gormlogger.LogLevel
	sqlInLogs bool
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn, sqlInLogs: true}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logg.Debug(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow
	if !failed && !slow {
		return
	}

	fields := map[string]any{"elapsed_ms": elapsed.Milliseconds()}
	if l.sqlInLogs {
		sql, rows := fc()
		fields["sql"] = sql
		fields["rows"] = rows
	}
	entry := l.logg.WithFields(ctx, fields)

	switch {
	case failed && IsTransient(err):
		l.logg.Warn(l.logg.WithField(entry, "error", err.Error()), "db.transient_failure")
	case failed && l.level >= gormlogger.Error:
		l.logg.Debug(l.logg.WithField(entry, "error", err.Error()), "db.query_failed")
	case slow && l.level >= gormlogger.Warn:
		l.logg.Warn(entry, "db.slow_query")
	}
}

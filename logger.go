package walfile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// Logger wraps slog.Logger with walfile-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPath adds the data file path to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithTx adds a transaction id field to the logger.
func (l *Logger) WithTx(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("tid", id),
	}
}

// LogCommit logs a commit. Use WithTx to attach the transaction id.
func (l *Logger) LogCommit(ctx context.Context, ops int, bytes int64, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"ops", ops,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "commit completed",
		"ops", ops,
		"size", humanize.IBytes(uint64(bytes)),
		"duration", d,
	)
}

// LogRollback logs a rollback.
func (l *Logger) LogRollback(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "rollback failed",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "rollback completed")
}

// LogSync logs a sync and the number of lingering records it retired.
func (l *Logger) LogSync(ctx context.Context, retired int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sync failed",
			"retired", retired,
			"error", err,
		)
		return
	}
	if retired > 0 {
		l.DebugContext(ctx, "sync completed",
			"retired", retired,
			"size", humanize.IBytes(uint64(bytes)),
		)
	}
}

// LogCheck logs a consistency check.
func (l *Logger) LogCheck(ctx context.Context, path string, r Report, err error) {
	if err != nil {
		l.ErrorContext(ctx, "journal check failed",
			"path", path,
			"error", err,
		)
		return
	}
	level := slog.LevelInfo
	if r.Broken+r.Corrupt+r.Invalid > 0 {
		level = slog.LevelWarn
	}
	l.Log(ctx, level, "journal check completed",
		"path", path,
		"total", r.Total,
		"in_progress", r.InProgress,
		"reapplied", r.Reapplied,
		"broken", r.Broken,
		"corrupt", r.Corrupt,
		"invalid", r.Invalid,
		"quarantined", r.Quarantined,
	)
}

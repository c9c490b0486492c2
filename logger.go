package docdb

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with docdb-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithTable adds a table field to the logger.
func (l *Logger) WithTable(table string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", table),
	}
}

// WithID adds an id field to the logger (useful for tagging operations).
func (l *Logger) WithID(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", id),
	}
}

// LogPut logs a put operation.
func (l *Logger) LogPut(table string, id uint64, err error) {
	if err != nil {
		l.Error("put failed",
			"table", table,
			"id", id,
			"error", err,
		)
	} else {
		l.Debug("put completed",
			"table", table,
			"id", id,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(table string, id uint64, removed bool, err error) {
	if err != nil {
		l.Error("delete failed",
			"table", table,
			"id", id,
			"error", err,
		)
	} else {
		l.Debug("delete completed",
			"table", table,
			"id", id,
			"removed", removed,
		)
	}
}

// LogFind logs a find operation.
func (l *Logger) LogFind(table string, conditions, results int, err error) {
	if err != nil {
		l.Error("find failed",
			"table", table,
			"conditions", conditions,
			"error", err,
		)
	} else {
		l.Debug("find completed",
			"table", table,
			"conditions", conditions,
			"results", results,
		)
	}
}

// LogSearch logs a vector similarity search.
func (l *Logger) LogSearch(collection string, limit, results int, err error) {
	if err != nil {
		l.Error("search failed",
			"collection", collection,
			"limit", limit,
			"error", err,
		)
	} else {
		l.Debug("search completed",
			"collection", collection,
			"limit", limit,
			"results", results,
		)
	}
}

// LogSave logs a model save.
func (l *Logger) LogSave(table string, id uint64, created bool, err error) {
	if err != nil {
		l.Error("save failed",
			"table", table,
			"id", id,
			"error", err,
		)
	} else {
		l.Debug("save completed",
			"table", table,
			"id", id,
			"created", created,
		)
	}
}

// LogReindex logs an index rebuild.
func (l *Logger) LogReindex(table string, err error) {
	if err != nil {
		l.Error("reindex failed",
			"table", table,
			"error", err,
		)
	} else {
		l.Info("reindex completed",
			"table", table,
		)
	}
}

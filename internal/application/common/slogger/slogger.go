// Package slogger provides the structured logging facade used across the
// application. All components log through this package so output format and
// level are controlled in one place.
package slogger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Fields represents structured logging fields.
type Fields map[string]interface{}

// Config controls logger construction.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

type loggerManager struct {
	mu     sync.RWMutex
	logger *slog.Logger
}

var (
	defaultManagerInstance *loggerManager //nolint:gochecknoglobals // Required for singleton logging infrastructure
	defaultManagerOnce     sync.Once      //nolint:gochecknoglobals // Required for thread-safe singleton initialization
)

func getDefaultManager() *loggerManager {
	defaultManagerOnce.Do(func() {
		defaultManagerInstance = &loggerManager{}
	})
	return defaultManagerInstance
}

func (lm *loggerManager) get() *slog.Logger {
	lm.mu.RLock()
	logger := lm.logger
	lm.mu.RUnlock()
	if logger != nil {
		return logger
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.logger == nil {
		lm.logger = newLogger(Config{Level: "info", Format: "json"})
	}
	return lm.logger
}

func (lm *loggerManager) set(logger *slog.Logger) {
	lm.mu.Lock()
	lm.logger = logger
	lm.mu.Unlock()
}

// newLogger builds a slog.Logger from config. Handlers are fanned out through
// slog-multi so additional sinks (files, collectors) can be attached later
// without touching call sites.
func newLogger(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(slogmulti.Fanout(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure replaces the global logger with one built from the given config.
// Called once at process start from the CLI layer.
func Configure(cfg Config) {
	getDefaultManager().set(newLogger(cfg))
}

// SetGlobalLogger allows setting a custom logger (useful for testing).
func SetGlobalLogger(logger *slog.Logger) {
	getDefaultManager().set(logger)
}

func getLogger() *slog.Logger {
	return getDefaultManager().get()
}

func attrs(fields Fields) []any {
	if len(fields) == 0 {
		return nil
	}
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, slog.Any(k, v))
	}
	return out
}

// Context-aware logging functions (preferred)

// Debug logs a debug message with context.
func Debug(ctx context.Context, msg string, fields Fields) {
	getLogger().DebugContext(ctx, msg, attrs(fields)...)
}

// Info logs an info message with context.
func Info(ctx context.Context, msg string, fields Fields) {
	getLogger().InfoContext(ctx, msg, attrs(fields)...)
}

// Warn logs a warning message with context.
func Warn(ctx context.Context, msg string, fields Fields) {
	getLogger().WarnContext(ctx, msg, attrs(fields)...)
}

// Error logs an error message with context.
func Error(ctx context.Context, msg string, fields Fields) {
	getLogger().ErrorContext(ctx, msg, attrs(fields)...)
}

// ErrorWithError logs an error message with an error object and context.
func ErrorWithError(ctx context.Context, err error, msg string, fields Fields) {
	merged := Fields{}
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	getLogger().ErrorContext(ctx, msg, attrs(merged)...)
}

// No-context fallback functions (for startup and shutdown paths)

// DebugNoCtx logs a debug message without context (uses background context).
func DebugNoCtx(msg string, fields Fields) {
	Debug(context.Background(), msg, fields)
}

// InfoNoCtx logs an info message without context (uses background context).
func InfoNoCtx(msg string, fields Fields) {
	Info(context.Background(), msg, fields)
}

// WarnNoCtx logs a warning message without context (uses background context).
func WarnNoCtx(msg string, fields Fields) {
	Warn(context.Background(), msg, fields)
}

// ErrorNoCtx logs an error message without context (uses background context).
func ErrorNoCtx(msg string, fields Fields) {
	Error(context.Background(), msg, fields)
}

// Field creates a Fields map with a single key-value pair.
func Field(key string, value interface{}) Fields {
	return Fields{key: value}
}

// Fields2 creates a Fields map with two key-value pairs.
func Fields2(k1 string, v1 interface{}, k2 string, v2 interface{}) Fields {
	return Fields{k1: v1, k2: v2}
}

// Fields3 creates a Fields map with three key-value pairs.
func Fields3(k1 string, v1 interface{}, k2 string, v2 interface{}, k3 string, v3 interface{}) Fields {
	return Fields{k1: v1, k2: v2, k3: v3}
}

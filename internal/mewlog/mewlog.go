// Package mewlog wraps a package-level log/slog.Logger the way the
// teacher's internal/debug gates fmt.Fprintf calls on BD_DEBUG, but
// structured: JSON to stderr, level controlled by MEW_LOG_LEVEL, and a
// component attribute on every line via For.
package mewlog

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu      sync.Mutex
	handler slog.Handler
)

func init() {
	handler = newHandler()
}

func newHandler() slog.Handler {
	return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: levelFromEnv()})
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("MEW_LOG_LEVEL")) {
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

// Default returns the package-level logger, writing JSON to stderr at the
// level named by MEW_LOG_LEVEL (default Info).
func Default() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return slog.New(handler)
}

// For returns a logger carrying a "component" attribute, so log lines
// from the transaction manager, journal, and rule engine can be filtered
// independently (e.g. mewlog.For("txn"), mewlog.For("wal")).
func For(component string) *slog.Logger {
	return Default().With("component", component)
}

// SetLevelForTesting overrides the handler's level, bypassing
// MEW_LOG_LEVEL; used by tests that need to assert on Debug-level output
// without mutating the process environment.
func SetLevelForTesting(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
}

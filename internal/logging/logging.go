// Package logging configures the process-wide slog handler, mirroring
// util/logutil.go's InitSlog: a text handler on stderr whose level is
// driven by the run configuration, overridable by an environment variable.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init builds a *slog.Logger for debugLevel ("low", "medium", "high", or
// "" for the default), overridden by RECONCILER_LOG_LEVEL when set, and
// installs it as slog's default logger. It also returns the logger so
// callers can thread it explicitly instead of relying on the package
// global.
func Init(debugLevel string) *slog.Logger {
	level := levelFor(debugLevel)
	if env, ok := os.LookupEnv("RECONCILER_LOG_LEVEL"); ok {
		level = levelFor(env)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func levelFor(debugLevel string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(debugLevel)) {
	case "low":
		return slog.LevelWarn
	case "medium", "true":
		return slog.LevelInfo
	case "high":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

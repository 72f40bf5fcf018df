// Package telemetry wires the ambient observability stack: slog setup, a
// Prometheus metrics registry, and the daily-stats rollup surfaced on the
// dashboard. None of it is load-bearing for a trading decision; every
// emitter here is best-effort and non-blocking.
package telemetry

import (
	"log/slog"
	"os"

	"hip3-taker/internal/config"
)

// NewLogger builds the process-wide slog.Logger from LoggingConfig: "json"
// picks slog.NewJSONHandler, anything else picks slog.NewTextHandler.
// cmd/bot/main.go builds it once the config has loaded and threads it
// through every component via constructor injection; config load and
// validation errors before that point go to slog's default logger.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

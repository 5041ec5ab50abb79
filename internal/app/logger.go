package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the service logger: JSON for structured sinks, text for
// local development. Every record carries the service name so shared log
// pipelines can filter on it.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "authgate"))
}

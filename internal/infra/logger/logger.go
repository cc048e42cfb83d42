package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. Every record carries the service name so
// the bot, the sweeper and any future worker are tellable apart in shared
// log storage.
func New(env, service string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}

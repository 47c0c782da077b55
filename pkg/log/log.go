// Package log provides slog setup helpers shared by the relay binaries.
package log

import (
	"log/slog"
	"os"
)

// Setup installs the process-wide default logger. Unknown levels fall back
// to info rather than failing startup.
func Setup(logLevel string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns a child of the default logger tagged with the module name.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

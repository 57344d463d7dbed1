package logging

import (
	"log/slog"
	"os"
)

// Init installs the default logger for participant commands, which stay
// quiet unless LOG_LEVEL asks for more.
func Init() {
	InitWithDefault(slog.LevelError)
}

// InitWithDefault installs a text logger on stderr. LOG_LEVEL overrides
// the given default level.
func InitWithDefault(level slog.Level) {
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = ParseLevel(l, level)
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}

// ParseLevel maps a LOG_LEVEL value to a slog level, returning fallback for
// anything it does not recognise.
func ParseLevel(value string, fallback slog.Level) slog.Level {
	switch value {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}

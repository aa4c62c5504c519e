// Package logs builds the process-wide slog logger from a textual level.
package logs

import (
	"log/slog"
	"os"
	"strings"
)

// GetLoggerFromString maps a LOG_LEVEL value to a text-handler logger on
// stdout. Unknown values fall back to INFO rather than failing startup.
func GetLoggerFromString(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

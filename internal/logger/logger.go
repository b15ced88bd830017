package logger

import (
	"log/slog"
	"os"
	"strings"
)

// L is the process-wide logger. Init replaces it; packages should prefer
// receiving a *slog.Logger and deriving component loggers with With.
var L = slog.Default()

// Init configures the global logger from config values.
// level is one of debug/info/warn/error; format is "text" or "json".
func Init(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	L = slog.New(handler)
	slog.SetDefault(L)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

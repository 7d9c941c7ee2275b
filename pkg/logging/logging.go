// Package logging configures structured logging for the bill board.
//
// Interactive terminals get colored output via tint; everything else
// gets JSON for log shipping.
//
// Usage:
//
//	logging.Setup("info", "console")
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Setup installs the default slog handler for the given level and
// format. Format "console" uses tint when stderr is a terminal and
// falls back to JSON otherwise; format "json" always uses JSON.
func Setup(level, format string) {
	lvl := parseLevel(level)

	var handler slog.Handler
	if format != "json" && isatty.IsTerminal(os.Stderr.Fd()) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
			AddSource:  lvl == slog.LevelDebug,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

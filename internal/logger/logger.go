// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Setup installs the default slog logger. format "text" uses a human-readable
// charmbracelet handler, anything else produces JSON lines.
func Setup(level, format string) *slog.Logger {
	return SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) *slog.Logger {
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		cl := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			Prefix:          "ppmchat",
		})
		cl.SetLevel(charmLevel(level))
		handler = cl
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slogLevel(level),
		})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

func slogLevel(level string) slog.Level {
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

func charmLevel(level string) charmlog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return charmlog.DebugLevel
	case "warn":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

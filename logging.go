package mailkit

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-cz/devslog"
)

// Log formats accepted by LoggingConfig.Format.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
	LogFormatDev  = "dev"
)

// newLogger builds the client logger. The returned closer is non-nil when
// logs go to a file the client owns.
func newLogger(cfg LoggingConfig) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer
		closer io.Closer
	)

	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		out, closer = f, f
	}

	level := parseLevel(cfg.Level)

	var handler slog.Handler
	switch cfg.Format {
	case LogFormatDev:
		handler = devslog.NewHandler(out, &devslog.Options{
			HandlerOptions: &slog.HandlerOptions{
				AddSource: true,
				Level:     level,
			},
			NewLineAfterLog:   true,
			MaxSlicePrintSize: 40,
			SortKeys:          true,
			TimeFormat:        "[15:04:05]",
			DebugColor:        devslog.Magenta,
			StringerFormatter: true,
		})
	case LogFormatText:
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler).With("component", "mailkit"), closer, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

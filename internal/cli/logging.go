package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file rotation limits.
const (
	logMaxSizeMB  = 50
	logMaxBackups = 5
	logMaxAgeDays = 28
)

// setupLogging installs the default slog logger. Records go to the
// configured log file, rotated by lumberjack, or to w. The returned closer
// is nil when nothing needs closing.
func setupLogging(w io.Writer, opts *RootOptions) (io.Closer, error) {
	level, err := parseLevel(opts.Config.LogLevel)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var closer io.Closer
	if opts.Config.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.Config.LogFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		w, closer = rotating, rotating
	}

	slog.SetDefault(slog.New(newHandler(w, opts.Format, level)))
	return closer, nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	hopts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
)

// Fields are structured attributes attached to a log line.
type Fields map[string]any

// attrs renders fields in key order so repeated runs log identically.
func (f Fields) attrs(extra ...slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(f)+len(extra))
	out = append(out, extra...)
	for _, k := range slices.Sorted(maps.Keys(f)) {
		out = append(out, slog.Any(k, f[k]))
	}
	return out
}

var levels = map[string]slog.Level{
	"":      slog.LevelInfo,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps the logging.level setting to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	level, ok := levels[name]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalidConfig, name)
	}
	return level, nil
}

// SetupLogger installs the default logger on stderr, leaving stdout to the
// stage summaries.
func SetupLogger(level slog.Level, format string) error {
	return SetupLoggerTo(os.Stderr, level, format)
}

// SetupLoggerTo installs the default logger writing to w in the given format
// ("console" or "json").
func SetupLoggerTo(w io.Writer, level slog.Level, format string) error {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "", "console":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// LogError logs msg at error level with err under the "error" key.
func LogError(err error, msg string, fields Fields) {
	slog.LogAttrs(context.Background(), slog.LevelError, msg, fields.attrs(slog.String("error", err.Error()))...)
}

// LogInfo logs msg at info level.
func LogInfo(msg string, fields Fields) {
	slog.LogAttrs(context.Background(), slog.LevelInfo, msg, fields.attrs()...)
}

// LogDebug logs msg at debug level.
func LogDebug(msg string, fields Fields) {
	slog.LogAttrs(context.Background(), slog.LevelDebug, msg, fields.attrs()...)
}

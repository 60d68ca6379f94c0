package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"go.opentelemetry.io/otel/trace"

	charmlog "github.com/charmbracelet/log"
)

// Format names a log output format.
type Format string

const (
	// FormatText is human-readable colored output for terminals.
	FormatText Format = "text"
	// FormatLogfmt is key=value output.
	FormatLogfmt Format = "logfmt"
	// FormatJSON is one JSON object per record.
	FormatJSON Format = "json"
)

var (
	ErrUnknownLevel  = errors.New("unknown log level")
	ErrUnknownFormat = errors.New("unknown log format")
)

var levels = map[string]slog.Level{
	"error":   slog.LevelError,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
}

// AllLevels and AllFormats list the accepted names, for flag completion.
var (
	AllLevels  = []string{"error", "warn", "info", "debug"}
	AllFormats = []string{string(FormatText), string(FormatLogfmt), string(FormatJSON)}
)

// ParseLevel parses a level name, ignoring case.
func ParseLevel(s string) (slog.Level, error) {
	lvl, ok := levels[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}

	return lvl, nil
}

// ParseFormat parses a format name, ignoring case.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	switch f {
	case FormatText, FormatLogfmt, FormatJSON:
		return f, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// NewHandler returns a [slog.Handler] writing records at level and above to
// w in format, both given by name.
func NewHandler(w io.Writer, level, format string) (slog.Handler, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: lvl}

	switch f {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	case FormatLogfmt:
		return slog.NewTextHandler(w, opts), nil
	default:
		return newTextHandler(w, lvl), nil
	}
}

func newTextHandler(w io.Writer, lvl slog.Level) slog.Handler {
	logger := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(lvl),
		ReportTimestamp: true,
		ReportCaller:    lvl <= slog.LevelDebug,
		TimeFormat:      time.TimeOnly,
		Prefix:          "orgz",
	})
	logger.SetColorProfile(termenv.ColorProfile())

	return logger
}

type loggerKey struct{}

// ContextWithLogger returns a copy of ctx that makes [WithContext] return
// logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithContext returns the logger stored in ctx. Otherwise it returns the
// default logger, tagged with a short trace ID when ctx carries a span.
func WithContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return slog.Default()
	}

	return slog.With(slog.String("trace_id", sc.TraceID().String()[:8]))
}

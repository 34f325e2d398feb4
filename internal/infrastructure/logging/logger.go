package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/airrelay/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "airrelay"

// Logger is the process logger. Every entry carries service and version;
// Component loggers add the subsystem that wrote it.
type Logger struct {
	*slog.Logger
}

// Option adjusts New.
type Option func(*options)

type options struct {
	writer io.Writer
}

// WithWriter sends entries to w, overriding cfg.Output.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// New builds a Logger from cfg. Output is "stdout" (default), "stderr" or
// "discard"; format is "json" (default) or "text".
func New(cfg config.LoggingConfig, version string, opts ...Option) *Logger {
	o := options{writer: outputFor(cfg.Output)}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(o.writer, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(o.writer, handlerOpts)
	}

	return &Logger{Logger: slog.New(handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	}))}
}

func outputFor(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// parseLevel maps debug, info, warn(ing) and error; anything else is info.
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

// With returns a child Logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child Logger tagged component=name.
//
//	channel.SetLogger(log.Component("gateway"))
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the startup logger used before configuration is loaded:
// JSON on stdout at info.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluetray/bluetray/internal/infrastructure/config"
)

// Logger is an slog.Logger whose level can be changed while the tray runs.
// Loggers derived with With share that level.
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger

	level  *slog.LevelVar
	closer io.Closer
}

// New builds the process logger from the logging section of config.yaml.
// Every record carries service=bluetray and the build version.
//
// The tray build has no console, so output "file" is the default there. A
// log file that cannot be opened degrades to stderr with a warning rather
// than failing startup.
func New(cfg config.LoggingConfig, version string) *Logger {
	out, closer, fileErr := openOutput(cfg)

	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	l := &Logger{
		Logger: slog.New(newHandler(out, cfg.Format, level)).With(
			slog.String("service", "bluetray"),
			slog.String("version", version),
		),
		level:  level,
		closer: closer,
	}
	if fileErr != nil {
		l.Warn("log file unavailable, using stderr", "path", cfg.File, "error", fileErr)
	}
	return l
}

// openOutput returns the destination for cfg.Output. closer is nil unless
// a file was opened. On a file error the writer is stderr.
func openOutput(cfg config.LoggingConfig) (w io.Writer, closer io.Closer, err error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if dir := filepath.Dir(cfg.File); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return os.Stderr, nil, err
			}
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path from local config
		if err != nil {
			return os.Stderr, nil, err
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps debug, info, warn (or warning) and error. Anything else
// is info.
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

// SetLevel changes the minimum level of l and of every logger sharing its
// level. Config hot reload calls this.
func (l *Logger) SetLevel(level string) {
	if l.level != nil {
		l.level.Set(parseLevel(level))
	}
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	if l.level == nil {
		return slog.LevelInfo
	}
	return l.level.Level()
}

// With returns a child logger with extra attributes:
//
//	trayLog := log.With("component", "tray")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Close releases the log file. Children from With do not own it, so Close
// on them does nothing.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default is a stderr text logger at info, for use before config loads and
// in tests.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, "dev")
}

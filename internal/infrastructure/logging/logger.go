package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
)

// ServiceName is the "service" attribute on every entry.
const ServiceName = "venusbridge"

// Logger is the bridge's structured logger. It embeds *slog.Logger, so
// Debug/Info/Warn/Error take slog key/value pairs. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel maps a config level name to slog; unknown names mean info.
func parseLevel(name string) slog.Level {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// New builds a logger for cfg, writing to stderr when cfg.Output says so
// and to stdout otherwise.
func New(cfg config.LoggingConfig, version string) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(cfg, version, out)
}

// NewWithWriter builds a logger writing to w. Format "text" selects
// slog's text handler; anything else is JSON.
//
// Parameters:
//   - cfg: Level and format (Output is ignored)
//   - version: Build version, attached as the "version" attribute
//   - w: Destination
//
// Returns:
//   - *Logger: Logger tagged with service and version
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With("service", ServiceName, "version", version)}
}

// Bootstrap is the logger used before config is loaded and for fatal
// startup errors: JSON on stderr at info.
func Bootstrap(version string) *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stderr"}, version)
}

// With returns a child logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags a child logger with component=name.
//
//	log.Component("poller").Info("cycle published") // component=poller
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

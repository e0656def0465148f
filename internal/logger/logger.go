package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var level = new(slog.LevelVar)

// SetLevel sets the global log level
func SetLevel(levelStr string) {
	level.Set(ParseLevel(levelStr))
}

// GetLevel returns the current log level as a string
func GetLevel() string {
	switch level.Level() {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelInfo:
		return "info"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel parses a string to an slog level. Unknown strings map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// lineHandler writes "[15:04:05] [LEVEL] message key=value" lines.
type lineHandler struct {
	outs  []io.Writer
	mu    *sync.Mutex
	attrs []string
	group string
}

// NewHandler returns the line handler gated by the global level.
func NewHandler(outputs ...io.Writer) slog.Handler {
	return &lineHandler{outs: outputs, mu: &sync.Mutex{}}
}

// Handle implements slog.Handler
func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	var sb strings.Builder
	sb.WriteString("[" + record.Time.Format("15:04:05") + "] [" + record.Level.String() + "] " + record.Message)
	for _, a := range h.attrs {
		sb.WriteString(" " + a)
	}
	record.Attrs(func(a slog.Attr) bool {
		sb.WriteString(" " + h.format(a))
		return true
	})
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.outs {
		if out != nil {
			_, _ = io.WriteString(out, sb.String())
		}
	}
	return nil
}

func (h *lineHandler) format(a slog.Attr) string {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	return key + "=" + a.Value.Resolve().String()
}

// WithAttrs implements slog.Handler
func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]string(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.format(a))
	}
	return &next
}

// WithGroup implements slog.Handler
func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	next.group = name
	return &next
}

// Enabled implements slog.Handler
func (h *lineHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= level.Level()
}

// InitLogger installs the line handler over one or more outputs as the
// default logger.
func InitLogger(outputs ...io.Writer) {
	slog.SetDefault(slog.New(NewHandler(outputs...)))
}

// InitJSONLogger installs a JSON handler gated by the global level, for
// deployments that ship logs to a collector.
func InitJSONLogger(out io.Writer) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
}

// Package logging sets up mnemo's structured logger: a JSON file handler
// plus an optional human-readable stderr handler, following the
// teacher's internal/logging setup almost directly.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config controls where and how verbosely mnemo logs.
type Config struct {
	Level         string
	FilePath      string
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for a data directory.
func DefaultConfig(dataDir string) Config {
	return Config{
		Level:         "info",
		FilePath:      filepath.Join(dataDir, "mnemo.log"),
		WriteToStderr: true,
	}
}

// Setup builds a *slog.Logger writing JSON records to FilePath (created
// if necessary) and, when WriteToStderr is set, a parallel human-readable
// stream to stderr when attached to a terminal.
func Setup(cfg Config) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = f
	level := parseLevel(cfg.Level)
	var handler slog.Handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})

	if cfg.WriteToStderr {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			handler = slog.NewTextHandler(io.MultiWriter(out, os.Stderr), &slog.HandlerOptions{Level: level})
		} else {
			handler = slog.NewJSONHandler(io.MultiWriter(out, os.Stderr), &slog.HandlerOptions{Level: level})
		}
	}

	logger := slog.New(handler)
	return logger, f.Close, nil
}

// NotifyHandler wraps an existing slog.Handler, forwarding every Warn-or-
// above record's message to sink in addition to passing the record
// through to next unchanged. Used by the serve command to mirror
// warnings/errors onto the SSE event stream once a Broadcaster exists,
// without disturbing the file/stderr handler wired up at startup.
type NotifyHandler struct {
	next slog.Handler
	sink func(level, message string)
}

// NewNotifyHandler builds a NotifyHandler around next.
func NewNotifyHandler(next slog.Handler, sink func(level, message string)) *NotifyHandler {
	return &NotifyHandler{next: next, sink: sink}
}

func (h *NotifyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *NotifyHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelWarn {
		h.sink(record.Level.String(), record.Message)
	}
	return h.next.Handle(ctx, record)
}

func (h *NotifyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &NotifyHandler{next: h.next.WithAttrs(attrs), sink: h.sink}
}

func (h *NotifyHandler) WithGroup(name string) slog.Handler {
	return &NotifyHandler{next: h.next.WithGroup(name), sink: h.sink}
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

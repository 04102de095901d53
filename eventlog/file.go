package eventlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jmcleod/irongate/internal/logger"
)

// FileLog appends one structured line per event to a file.
type FileLog struct {
	w      io.WriteCloser
	logger *slog.Logger
}

// OpenFile opens (or creates) path for appending. format is "text" or "json".
func OpenFile(path, format string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening event log %s: %w", path, err)
	}
	return NewFileLog(f, format), nil
}

// NewFileLog writes events to w, which is closed by Close.
func NewFileLog(w io.WriteCloser, format string) *FileLog {
	opts := &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Events carry their own timestamp.
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &FileLog{w: w, logger: slog.New(h)}
}

func (l *FileLog) Record(e Event) {
	e = Stamp(e)
	attrs := []slog.Attr{
		slog.String("time", e.Time.Format(time.RFC3339Nano)),
		slog.String("id", e.ID),
	}
	if e.SessionID != "" {
		attrs = append(attrs, slog.String(logger.KeySessionID, e.SessionID))
	}
	if e.RemoteIP != "" {
		attrs = append(attrs, slog.String(logger.KeyClientIP, e.RemoteIP))
	}
	if e.Username != "" {
		attrs = append(attrs, slog.String(logger.KeyUsername, e.Username))
	}
	if e.Detail != "" {
		attrs = append(attrs, slog.String("detail", e.Detail))
	}
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, string(e.Kind), attrs...)
}

// Close closes the underlying writer.
func (l *FileLog) Close() error {
	return l.w.Close()
}

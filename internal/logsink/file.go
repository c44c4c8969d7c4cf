package logsink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// TimeFormat is the timestamp layout of each log file line.
const TimeFormat = "2006-01-02 15:04:05.000000"

// FileHandler appends one "<timestamp> - <message>" line per record to a file.
// The file is opened and closed for every record so each line is on disk
// before Handle returns and no descriptor is held between records.
// Attributes and groups are not written.
type FileHandler struct {
	mu    *sync.Mutex
	level slog.Leveler
	path  string
}

// NewFileHandler creates a FileHandler for path. A nil opts or opts.Level
// defaults to slog.LevelInfo.
func NewFileHandler(path string, opts *slog.HandlerOptions) *FileHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &FileHandler{mu: &sync.Mutex{}, level: level, path: path}
}

func (h *FileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *FileHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := ts.Format(TimeFormat) + " - " + r.Message + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("write log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

func (h *FileHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *FileHandler) WithGroup(_ string) slog.Handler      { return h }

package logsink

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// ConsoleOptions configures the console mirror.
type ConsoleOptions struct {
	Level   slog.Leveler
	NoColor bool
}

// NewConsoleHandler returns a tint handler for w. Color is disabled when
// requested or when w is not a terminal.
func NewConsoleHandler(w io.Writer, opts ConsoleOptions) slog.Handler {
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    opts.NoColor || !IsTerminal(w),
	})
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// New builds the sync logger: every record goes to the log file at
// fileLevel and is mirrored to console at the console level.
func New(logFile string, console io.Writer, fileLevel slog.Leveler, opts ConsoleOptions) *slog.Logger {
	return slog.New(NewMultiHandler(
		NewFileHandler(logFile, &slog.HandlerOptions{Level: fileLevel}),
		NewConsoleHandler(console, opts),
	))
}

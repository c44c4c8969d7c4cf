package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrInvalid is wrapped by every Settings validation error.
var ErrInvalid = errors.New("invalid settings")

// Settings are the four required run parameters.
type Settings struct {
	SourceRoot  string
	ReplicaRoot string
	LogFile     string
	Interval    time.Duration
}

// Normalize makes the roots and the log file absolute and resolves symlinks
// in the source root and in whatever prefix of the other paths exists.
func (s *Settings) Normalize() error {
	var err error
	if s.SourceRoot, err = resolve(s.SourceRoot); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if s.ReplicaRoot, err = resolve(s.ReplicaRoot); err != nil {
		return fmt.Errorf("replica: %w", err)
	}
	if s.LogFile, err = resolve(s.LogFile); err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	return nil
}

// Validate checks that the settings describe a runnable sync.
func (s Settings) Validate() error {
	switch {
	case s.SourceRoot == "":
		return fmt.Errorf("%w: source folder is required", ErrInvalid)
	case s.ReplicaRoot == "":
		return fmt.Errorf("%w: replica folder is required", ErrInvalid)
	case s.LogFile == "":
		return fmt.Errorf("%w: log file is required", ErrInvalid)
	case s.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalid, s.Interval)
	}

	src := filepath.Clean(s.SourceRoot)
	replica := filepath.Clean(s.ReplicaRoot)
	if src == replica {
		return fmt.Errorf("%w: source and replica are the same folder: %s", ErrInvalid, src)
	}
	if within(replica, src) {
		return fmt.Errorf("%w: replica %s is inside source %s", ErrInvalid, replica, src)
	}
	if within(src, replica) {
		return fmt.Errorf("%w: source %s is inside replica %s", ErrInvalid, src, replica)
	}
	if within(filepath.Clean(s.LogFile), replica) {
		return fmt.Errorf("%w: log file %s is inside replica %s", ErrInvalid, s.LogFile, replica)
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: source folder: %w", ErrInvalid, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source %s is not a directory", ErrInvalid, src)
	}
	if err := unix.Access(src, unix.R_OK|unix.X_OK); err != nil {
		return fmt.Errorf("%w: source folder %s is not readable: %w", ErrInvalid, src, err)
	}
	return nil
}

// within reports whether path lies strictly below dir.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve returns path made absolute with symlinks evaluated in its longest
// existing prefix.
func resolve(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	existing, rest := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/foldersync/internal/config"
)

func validSettings(t *testing.T) config.Settings {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(src, 0o755))
	return config.Settings{
		SourceRoot:  src,
		ReplicaRoot: filepath.Join(dir, "replica"),
		LogFile:     filepath.Join(dir, "sync.log"),
		Interval:    time.Second,
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validSettings(t).Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *config.Settings)
		want   string
	}{
		{"missing source", func(s *config.Settings) { s.SourceRoot = "" }, "source folder is required"},
		{"missing replica", func(s *config.Settings) { s.ReplicaRoot = "" }, "replica folder is required"},
		{"missing log file", func(s *config.Settings) { s.LogFile = "" }, "log file is required"},
		{"zero interval", func(s *config.Settings) { s.Interval = 0 }, "interval must be positive"},
		{"negative interval", func(s *config.Settings) { s.Interval = -time.Second }, "interval must be positive"},
		{"same folder", func(s *config.Settings) { s.ReplicaRoot = s.SourceRoot + "/" }, "same folder"},
		{"replica in source", func(s *config.Settings) {
			s.ReplicaRoot = filepath.Join(s.SourceRoot, "mirror")
		}, "inside source"},
		{"source in replica", func(s *config.Settings) {
			s.ReplicaRoot = filepath.Dir(s.SourceRoot)
			s.LogFile = filepath.Join(os.TempDir(), "foldersync-test.log")
		}, "inside replica"},
		{"log in replica", func(s *config.Settings) {
			s.LogFile = filepath.Join(s.ReplicaRoot, "sync.log")
		}, "log file"},
		{"source missing", func(s *config.Settings) {
			s.SourceRoot = filepath.Join(s.SourceRoot, "nope")
		}, "source folder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings(t)
			tt.mutate(&s)
			err := s.Validate()
			require.ErrorIs(t, err, config.ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_SourceIsFile(t *testing.T) {
	s := validSettings(t)
	file := filepath.Join(filepath.Dir(s.SourceRoot), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	s.SourceRoot = file

	err := s.Validate()
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestNormalize_ResolvesSymlinks(t *testing.T) {
	s := validSettings(t)
	dir := filepath.Dir(s.SourceRoot)
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(s.SourceRoot, link))

	resolvedSrc, err := filepath.EvalSymlinks(s.SourceRoot)
	require.NoError(t, err)

	s.SourceRoot = link
	s.ReplicaRoot = filepath.Join(link, "..", "replica", "nested")
	require.NoError(t, s.Normalize())

	assert.Equal(t, resolvedSrc, s.SourceRoot)
	realDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(realDir, "replica", "nested"), s.ReplicaRoot)
}

func TestNormalize_MakesAbsolute(t *testing.T) {
	s := validSettings(t)
	t.Chdir(filepath.Dir(s.SourceRoot))
	s.SourceRoot = "src"
	s.LogFile = "sync.log"

	require.NoError(t, s.Normalize())
	assert.True(t, filepath.IsAbs(s.SourceRoot))
	assert.True(t, filepath.IsAbs(s.LogFile))
	assert.Equal(t, "sync.log", filepath.Base(s.LogFile))
}

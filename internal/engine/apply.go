package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/bamsammich/foldersync/internal/event"
	"github.com/bamsammich/foldersync/internal/fingerprint"
	"github.com/bamsammich/foldersync/internal/stats"
	"github.com/bamsammich/foldersync/internal/tree"
)

const copyBufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufferSize)
		return &b
	},
}

// ApplierConfig controls how edits are written to the replica.
type ApplierConfig struct {
	Fs    afero.Fs
	Clock clockwork.Clock
	Stats *stats.Collector
	// Emit receives one event per action that succeeded.
	Emit func(event.Event)
	// Limiter caps copy throughput when set.
	Limiter *rate.Limiter
	// Verify re-fingerprints each copied file against its source.
	Verify bool
}

// Applier executes an EditSet against the replica.
type Applier struct {
	cfg ApplierConfig
	tmp *tmpRegistry
}

// NewApplier creates an Applier. Nil Clock, Stats and Emit get working
// defaults.
func NewApplier(cfg ApplierConfig) *Applier {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	return newApplier(cfg, newTmpRegistry(cfg.Fs))
}

func newApplier(cfg ApplierConfig, tmp *tmpRegistry) *Applier {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector(cfg.Clock)
	}
	if cfg.Emit == nil {
		cfg.Emit = func(event.Event) {}
	}
	return &Applier{cfg: cfg, tmp: tmp}
}

// Apply runs the edit phases in order: replacements, directory creation,
// file copies, removals. It stops at the first failure; edits already
// applied stay applied.
func (a *Applier) Apply(ctx context.Context, set tree.EditSet) error {
	for _, e := range set.Replacements {
		removed, err := a.remove(e)
		if err != nil {
			return err
		}
		if removed {
			a.cfg.Stats.AddReplaced(1)
		}
	}
	for _, e := range set.CreateDirs {
		if err := a.createDir(e); err != nil {
			return err
		}
	}
	for _, e := range set.CopyFiles {
		if err := a.copyFile(ctx, e); err != nil {
			return err
		}
	}
	for _, e := range set.Removals {
		removed, err := a.remove(e)
		if err != nil {
			return err
		}
		if !removed {
			continue
		}
		if e.IsDir {
			a.cfg.Stats.AddDirsRemoved(1)
		} else {
			a.cfg.Stats.AddFilesRemoved(1)
		}
	}
	return nil
}

func (a *Applier) emit(typ event.Type, path string, size int64) {
	a.cfg.Emit(event.Event{Type: typ, Timestamp: a.cfg.Clock.Now(), Path: path, Size: size})
}

func (a *Applier) createDir(e tree.Edit) error {
	// Owner rwx is always kept so later passes can write into the directory.
	perm := e.Mode.Perm() | 0o700
	if err := a.cfg.Fs.MkdirAll(e.Replica, perm); err != nil {
		return fmt.Errorf("mkdir %s: %w", e.Replica, err)
	}
	a.cfg.Stats.AddDirsCreated(1)
	a.emit(event.DirCreated, e.Replica, 0)
	return nil
}

// copyFile writes the source into a temp file beside the target, copies
// metadata, and renames it into place. A source that vanished since the diff
// is not copied and is not an error.
//
//nolint:revive // cognitive-complexity: sequential open-copy-metadata-rename steps
func (a *Applier) copyFile(ctx context.Context, e tree.Edit) error {
	fsys := a.cfg.Fs

	srcInfo, err := fsys.Stat(e.Source)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.Source, err)
	}

	src, err := fsys.Open(e.Source)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Source, err)
	}
	defer src.Close()

	dir := filepath.Dir(e.Replica)
	tmpName := fmt.Sprintf(".%s.%s.sync-tmp", filepath.Base(e.Replica), uuid.New().String()[:8])
	tmpPath := filepath.Join(dir, tmpName)

	a.tmp.register(tmpPath)
	defer func() {
		a.tmp.deregister(tmpPath)
		_ = fsys.Remove(tmpPath) // no-op if rename succeeded
	}()

	dst, err := fsys.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, srcInfo.Mode().Perm()|0o200)
	if err != nil {
		return fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	var r io.Reader = src
	if a.cfg.Limiter != nil {
		r = newRateLimitedReader(ctx, src, a.cfg.Limiter)
	}

	bufp := bufPool.Get().(*[]byte)
	written, err := io.CopyBuffer(dst, r, *bufp)
	bufPool.Put(bufp)
	if err != nil {
		dst.Close()
		return fmt.Errorf("copy data %s: %w", e.Source, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}

	if err := setFileMetadata(fsys, tmpPath, srcInfo); err != nil {
		return fmt.Errorf("set metadata %s: %w", e.Replica, err)
	}

	if err := fsys.Rename(tmpPath, e.Replica); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, e.Replica, err)
	}

	if a.cfg.Verify {
		if err := a.verify(e); err != nil {
			return err
		}
	}

	a.cfg.Stats.AddFilesCopied(1)
	a.cfg.Stats.AddBytesCopied(written)
	a.emit(event.FileCopied, e.Replica, written)
	return nil
}

func (a *Applier) verify(e tree.Edit) error {
	srcFP, srcOK := fingerprint.Compute(a.cfg.Fs, e.Source)
	if !srcOK {
		// Source vanished after the copy; the next pass removes the replica.
		return nil
	}
	replicaFP, replicaOK := fingerprint.Compute(a.cfg.Fs, e.Replica)
	if !fingerprint.Equal(srcFP, srcOK, replicaFP, replicaOK) {
		return fmt.Errorf("verify %s: replica content does not match source", e.Replica)
	}
	a.cfg.Stats.AddFilesVerified(1)
	return nil
}

// remove deletes a replica file, or a directory and its entire contents.
// A target that is already gone reports removed == false.
func (a *Applier) remove(e tree.Edit) (removed bool, err error) {
	fsys := a.cfg.Fs

	if _, err := lstat(fsys, e.Replica); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if e.IsDir {
		err = fsys.RemoveAll(e.Replica)
	} else {
		err = fsys.Remove(e.Replica)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", e.Replica, err)
	}

	typ := event.FileRemoved
	if e.IsDir {
		typ = event.DirRemoved
	}
	a.emit(typ, e.Replica, 0)
	return true, nil
}

func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

package tree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"github.com/bamsammich/foldersync/internal/filter"
	"github.com/bamsammich/foldersync/internal/fingerprint"
)

// Differ walks a source and a replica tree on the same filesystem.
type Differ struct {
	fs     afero.Fs
	cache  *fingerprint.Cache
	filter *filter.Chain
}

// NewDiffer creates a Differ. chain may be nil to include every path.
func NewDiffer(fsys afero.Fs, cache *fingerprint.Cache, chain *filter.Chain) *Differ {
	return &Differ{fs: fsys, cache: cache, filter: chain}
}

// Diff returns the edits needed to make replicaRoot mirror sourceRoot. A
// missing replica root is treated as empty. Walk and stat failures other than
// entries vanishing mid-walk are returned as errors.
func (d *Differ) Diff(sourceRoot, replicaRoot string) (EditSet, error) {
	info, err := d.fs.Stat(sourceRoot)
	if err != nil {
		return EditSet{}, fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return EditSet{}, fmt.Errorf("source root %s is not a directory", sourceRoot)
	}

	var set EditSet
	if err := d.forward(sourceRoot, replicaRoot, &set); err != nil {
		return EditSet{}, err
	}
	if err := d.reverse(sourceRoot, replicaRoot, &set); err != nil {
		return EditSet{}, err
	}
	return set, nil
}

// forward queues creates and copies for every source entry. Symlinks to
// regular files are followed and copied as files; other symlinks and special
// files are skipped.
//
//nolint:revive // cognitive-complexity: one switch per entry type
func (d *Differ) forward(srcRoot, replicaRoot string, set *EditSet) error {
	// fresh holds directories that will be created this pass. Nothing below
	// them exists in the replica yet, whatever a lookup would find there now.
	fresh := make(map[string]struct{})

	return afero.Walk(d.fs, srcRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path != srcRoot && errors.Is(err, fs.ErrNotExist) {
				return nil // vanished after listing
			}
			return fmt.Errorf("walk source %s: %w", path, err)
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return fmt.Errorf("relative path %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}
		if !d.filter.Match(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := d.fs.Stat(path)
			if err != nil || !target.Mode().IsRegular() {
				set.Skipped = append(set.Skipped, rel)
				return nil
			}
			info = target
		}

		mirror := filepath.Join(replicaRoot, rel)
		edit := Edit{
			RelPath: rel,
			Source:  path,
			Replica: mirror,
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		}

		var (
			replicaInfo os.FileInfo
			exists      bool
		)
		if _, ok := fresh[filepath.Dir(rel)]; !ok {
			if replicaInfo, exists, err = d.lookup(mirror); err != nil {
				return err
			}
		}

		switch {
		case info.IsDir():
			if exists && !replicaInfo.IsDir() {
				set.Replacements = append(set.Replacements, replacement(rel, mirror, replicaInfo))
				exists = false
			}
			if !exists {
				set.CreateDirs = append(set.CreateDirs, edit)
				fresh[rel] = struct{}{}
			}
		case info.Mode().IsRegular():
			// A replica directory, symlink or special file in the way is
			// removed; the copy always lands as a regular file.
			if exists && !replicaInfo.Mode().IsRegular() {
				set.Replacements = append(set.Replacements, replacement(rel, mirror, replicaInfo))
				exists = false
			}
			// Existence first: never fingerprint a missing target.
			if !exists || !d.sameContent(path, mirror) {
				set.CopyFiles = append(set.CopyFiles, edit)
			}
		default:
			set.Skipped = append(set.Skipped, rel)
		}
		return nil
	})
}

// reverse queues removals for replica entries with no source counterpart.
// A directory queued for removal is not descended into.
func (d *Differ) reverse(srcRoot, replicaRoot string, set *EditSet) error {
	return afero.Walk(d.fs, replicaRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("walk replica %s: %w", path, err)
		}
		rel, err := filepath.Rel(replicaRoot, path)
		if err != nil {
			return fmt.Errorf("relative path %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}
		if !d.filter.Match(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		srcInfo, exists, err := d.lookup(filepath.Join(srcRoot, rel))
		if err != nil {
			return err
		}
		if exists {
			// A replica directory standing in for a source file was queued
			// as a replacement by the forward pass.
			if info.IsDir() && !srcInfo.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		set.Removals = append(set.Removals, Edit{RelPath: rel, Replica: path, IsDir: info.IsDir()})
		if info.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
}

func (d *Differ) sameContent(src, replica string) bool {
	srcFP, srcOK := d.cache.Get(src)
	replicaFP, replicaOK := d.cache.Get(replica)
	return fingerprint.Equal(srcFP, srcOK, replicaFP, replicaOK)
}

// lookup lstats path. A missing path, or one whose parent is not a
// directory, reports exists == false without error.
func (d *Differ) lookup(path string) (os.FileInfo, bool, error) {
	info, err := lstat(d.fs, path)
	if err == nil {
		return info, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("stat %s: %w", path, err)
}

func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

func replacement(rel, replica string, info os.FileInfo) Edit {
	return Edit{RelPath: rel, Replica: replica, IsDir: info.IsDir(), Mode: info.Mode()}
}

package engine

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// fileTimes returns the access and modification times of info. Filesystems
// that expose no access time report the modification time for both.
func fileTimes(info os.FileInfo) (atime, mtime time.Time) {
	mtime = info.ModTime()
	if at, ok := accessTime(info); ok {
		return at, mtime
	}
	return mtime, mtime
}

// setFileMetadata copies permission bits and times from info onto path, then
// tries to copy ownership. Ownership needs privileges and its failure is
// ignored.
func setFileMetadata(fsys afero.Fs, path string, info os.FileInfo) error {
	if err := fsys.Chmod(path, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}

	atime, mtime := fileTimes(info)
	if err := fsys.Chtimes(path, atime, mtime); err != nil {
		return fmt.Errorf("chtimes %s: %w", path, err)
	}

	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		_ = fsys.Chown(path, int(stat.Uid), int(stat.Gid))
	}
	return nil
}

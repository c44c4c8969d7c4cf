// Package tree compares a source tree against its replica and produces the
// edits that bring the replica in line with the source.
package tree

import (
	"os"
	"time"
)

// Edit is a single change to the replica. Source is empty for removals and
// replacements.
type Edit struct {
	ModTime time.Time
	RelPath string
	Source  string
	Replica string
	Size    int64
	Mode    os.FileMode
	IsDir   bool
}

// EditSet is the outcome of one diff. Its lists are consumed in order:
// Replacements, CreateDirs, CopyFiles, Removals.
type EditSet struct {
	// Replacements are replica paths whose type differs from the source:
	// a directory or symlink where a file belongs, or a non-directory where
	// a directory belongs. They are removed before anything is created.
	Replacements []Edit
	CreateDirs   []Edit
	CopyFiles    []Edit
	// Removals cover replica files and whole directories with no source
	// counterpart.
	Removals []Edit
	// Skipped lists source entries that are not mirrored: special files and
	// symlinks that do not resolve to a regular file.
	Skipped []string
}

// Len returns the number of edits that mutate the replica.
func (s EditSet) Len() int {
	return len(s.Replacements) + len(s.CreateDirs) + len(s.CopyFiles) + len(s.Removals)
}

// Empty reports whether applying the set would change nothing.
func (s EditSet) Empty() bool {
	return s.Len() == 0
}

// CopyBytes returns the total size of all files queued for copy.
func (s EditSet) CopyBytes() int64 {
	var total int64
	for _, e := range s.CopyFiles {
		total += e.Size
	}
	return total
}

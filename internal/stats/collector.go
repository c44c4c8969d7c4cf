// Package stats counts what a sync pass did.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
)

// Collector tracks per-pass statistics using lock-free atomic counters.
type Collector struct {
	clock         clockwork.Clock
	startTime     time.Time
	dirsCreated   atomic.Int64
	filesCopied   atomic.Int64
	bytesCopied   atomic.Int64
	filesRemoved  atomic.Int64
	dirsRemoved   atomic.Int64
	replaced      atomic.Int64
	skipped       atomic.Int64
	filesVerified atomic.Int64
}

// NewCollector creates a Collector whose elapsed time is measured on clock.
func NewCollector(clock clockwork.Clock) *Collector {
	return &Collector{clock: clock, startTime: clock.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	DirsCreated   int64
	FilesCopied   int64
	BytesCopied   int64
	FilesRemoved  int64
	DirsRemoved   int64
	Replaced      int64
	Skipped       int64
	FilesVerified int64
	Elapsed       time.Duration
}

func (c *Collector) AddDirsCreated(n int64)   { c.dirsCreated.Add(n) }
func (c *Collector) AddFilesCopied(n int64)   { c.filesCopied.Add(n) }
func (c *Collector) AddBytesCopied(n int64)   { c.bytesCopied.Add(n) }
func (c *Collector) AddFilesRemoved(n int64)  { c.filesRemoved.Add(n) }
func (c *Collector) AddDirsRemoved(n int64)   { c.dirsRemoved.Add(n) }
func (c *Collector) AddReplaced(n int64)      { c.replaced.Add(n) }
func (c *Collector) AddSkipped(n int64)       { c.skipped.Add(n) }
func (c *Collector) AddFilesVerified(n int64) { c.filesVerified.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		DirsCreated:   c.dirsCreated.Load(),
		FilesCopied:   c.filesCopied.Load(),
		BytesCopied:   c.bytesCopied.Load(),
		FilesRemoved:  c.filesRemoved.Load(),
		DirsRemoved:   c.dirsRemoved.Load(),
		Replaced:      c.replaced.Load(),
		Skipped:       c.skipped.Load(),
		FilesVerified: c.filesVerified.Load(),
		Elapsed:       c.clock.Since(c.startTime),
	}
}

// Mutations returns the number of replica changes recorded.
func (s Snapshot) Mutations() int64 {
	return s.DirsCreated + s.FilesCopied + s.FilesRemoved + s.DirsRemoved + s.Replaced
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"dirs=%d copied=%d (%s) removed=%d dirs_removed=%d replaced=%d skipped=%d",
		s.DirsCreated, s.FilesCopied, humanize.Bytes(uint64(max(s.BytesCopied, 0))),
		s.FilesRemoved, s.DirsRemoved, s.Replaced, s.Skipped,
	)
}

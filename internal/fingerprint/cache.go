package fingerprint

import (
	"sync"
	"time"

	"github.com/spf13/afero"
)

// cacheKey ties a digest to the file state it was computed from. A path whose
// size or mtime changes gets a fresh key and is re-hashed.
type cacheKey struct {
	modTime time.Time
	path    string
	size    int64
}

// Cache memoizes Compute for the lifetime of one engine. Entries are only ever
// added; there is no eviction.
type Cache struct {
	fs      afero.Fs
	entries map[cacheKey]Fingerprint
	mu      sync.Mutex
	hits    int64
	misses  int64
}

// NewCache returns an empty cache reading through fsys.
func NewCache(fsys afero.Fs) *Cache {
	return &Cache{fs: fsys, entries: make(map[cacheKey]Fingerprint)}
}

// Get returns the fingerprint of path, computing and storing it on a miss.
// Failed computations are not cached, so a transiently unreadable file can
// succeed on a later call.
func (c *Cache) Get(path string) (Fingerprint, bool) {
	info, err := c.fs.Stat(path)
	if err != nil || info.IsDir() {
		return Fingerprint{}, false
	}
	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime()}

	c.mu.Lock()
	fp, ok := c.entries[key]
	if ok {
		c.hits++
	}
	c.mu.Unlock()
	if ok {
		return fp, true
	}

	fp, ok = Compute(c.fs, path)
	if !ok {
		return Fingerprint{}, false
	}

	c.mu.Lock()
	c.entries[key] = fp
	c.misses++
	c.mu.Unlock()
	return fp, true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheStats is a point-in-time read of the hit/miss counters.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

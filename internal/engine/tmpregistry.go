package engine

import (
	"sync"

	"github.com/spf13/afero"
)

// tmpRegistry tracks in-progress temporary copy targets so a failed or
// interrupted pass does not leave them in the replica.
type tmpRegistry struct {
	fs    afero.Fs
	paths map[string]struct{}
	mu    sync.Mutex
}

func newTmpRegistry(fsys afero.Fs) *tmpRegistry {
	return &tmpRegistry{fs: fsys, paths: make(map[string]struct{})}
}

func (r *tmpRegistry) register(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[path] = struct{}{}
}

func (r *tmpRegistry) deregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

func (r *tmpRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

// cleanup removes every registered path and empties the registry.
func (r *tmpRegistry) cleanup() {
	r.mu.Lock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = make(map[string]struct{})
	r.mu.Unlock()

	for _, p := range paths {
		_ = r.fs.Remove(p)
	}
}

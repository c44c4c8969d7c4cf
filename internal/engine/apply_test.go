package engine

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/foldersync/internal/event"
	"github.com/bamsammich/foldersync/internal/stats"
	"github.com/bamsammich/foldersync/internal/tree"
)

func newTestApplier(fsys afero.Fs, verify bool) (*Applier, *[]event.Event, *stats.Collector) {
	var got []event.Event
	a := NewApplier(ApplierConfig{
		Fs:     fsys,
		Emit:   func(ev event.Event) { got = append(got, ev) },
		Verify: verify,
	})
	return a, &got, a.cfg.Stats
}

func TestApply_PhaseOrder(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/d/f.txt", "data")
	writeFile(t, fsys, "/replica/d", "in the way")
	writeFile(t, fsys, "/replica/old.txt", "old")

	a, got, st := newTestApplier(fsys, false)
	set := tree.EditSet{
		Replacements: []tree.Edit{{RelPath: "d", Replica: "/replica/d"}},
		CreateDirs:   []tree.Edit{{RelPath: "d", Replica: "/replica/d", Mode: os.ModeDir | 0o755, IsDir: true}},
		CopyFiles:    []tree.Edit{{RelPath: "d/f.txt", Source: "/src/d/f.txt", Replica: "/replica/d/f.txt"}},
		Removals:     []tree.Edit{{RelPath: "old.txt", Replica: "/replica/old.txt"}},
	}
	require.NoError(t, a.Apply(context.Background(), set))

	types := make([]event.Type, 0, len(*got))
	for _, ev := range *got {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []event.Type{event.FileRemoved, event.DirCreated, event.FileCopied, event.FileRemoved}, types)

	snap := st.Snapshot()
	assert.Equal(t, int64(1), snap.Replaced)
	assert.Equal(t, int64(1), snap.DirsCreated)
	assert.Equal(t, int64(1), snap.FilesCopied)
	assert.Equal(t, int64(4), snap.BytesCopied)
	assert.Equal(t, int64(1), snap.FilesRemoved)
}

func TestApply_RemoveMissingIsSilent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a, got, st := newTestApplier(fsys, false)

	set := tree.EditSet{Removals: []tree.Edit{
		{RelPath: "gone", Replica: "/replica/gone"},
		{RelPath: "gonedir", Replica: "/replica/gonedir", IsDir: true},
	}}
	require.NoError(t, a.Apply(context.Background(), set))
	assert.Empty(t, *got)
	assert.Zero(t, st.Snapshot().Mutations())
}

func TestApply_VanishedSourceIsSkipped(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/replica", 0o755))
	a, got, _ := newTestApplier(fsys, false)

	set := tree.EditSet{CopyFiles: []tree.Edit{{RelPath: "x", Source: "/src/x", Replica: "/replica/x"}}}
	require.NoError(t, a.Apply(context.Background(), set))
	assert.Empty(t, *got)

	exists, err := afero.Exists(fsys, "/replica/x")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestApply_DirectoryRemovalIsOneEvent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/replica/a/b/c.txt", "c")
	writeFile(t, fsys, "/replica/a/d.txt", "d")
	a, got, st := newTestApplier(fsys, false)

	set := tree.EditSet{Removals: []tree.Edit{{RelPath: "a", Replica: "/replica/a", IsDir: true}}}
	require.NoError(t, a.Apply(context.Background(), set))

	require.Len(t, *got, 1)
	assert.Equal(t, "Removed folder: /replica/a", (*got)[0].Message())
	assert.Equal(t, int64(1), st.Snapshot().DirsRemoved)
}

// failRenameFs fails every rename so a copy stops after writing its temp file.
type failRenameFs struct{ afero.Fs }

func (failRenameFs) Rename(string, string) error { return errors.New("rename refused") }

func TestApply_FailedCopyLeavesNoTempFile(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFile(t, base, "/src/f.txt", "data")
	require.NoError(t, base.MkdirAll("/replica", 0o755))

	a, got, _ := newTestApplier(failRenameFs{base}, false)
	set := tree.EditSet{CopyFiles: []tree.Edit{{RelPath: "f.txt", Source: "/src/f.txt", Replica: "/replica/f.txt"}}}

	err := a.Apply(context.Background(), set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rename refused")
	assert.Empty(t, *got)
	assert.Zero(t, a.tmp.len())

	for _, n := range dirNames(t, base, "/replica") {
		assert.False(t, strings.HasSuffix(n, ".sync-tmp"), "leftover %s", n)
	}
}

func TestApply_StopsAtFirstError(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFile(t, base, "/src/f.txt", "data")
	writeFile(t, base, "/replica/old.txt", "old")

	a, _, _ := newTestApplier(failRenameFs{base}, false)
	set := tree.EditSet{
		CopyFiles: []tree.Edit{{RelPath: "f.txt", Source: "/src/f.txt", Replica: "/replica/f.txt"}},
		Removals:  []tree.Edit{{RelPath: "old.txt", Replica: "/replica/old.txt"}},
	}
	require.Error(t, a.Apply(context.Background(), set))

	exists, err := afero.Exists(base, "/replica/old.txt")
	require.NoError(t, err)
	assert.True(t, exists, "removals run after copies")
}

func TestApply_CopyWithLimiter(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/f.txt", strings.Repeat("z", 4096))
	require.NoError(t, fsys.MkdirAll("/replica", 0o755))

	a := NewApplier(ApplierConfig{Fs: fsys, Limiter: NewBWLimiter(1 << 20), Verify: true})
	set := tree.EditSet{CopyFiles: []tree.Edit{{RelPath: "f.txt", Source: "/src/f.txt", Replica: "/replica/f.txt"}}}
	require.NoError(t, a.Apply(context.Background(), set))

	assert.Equal(t, strings.Repeat("z", 4096), readFile(t, fsys, "/replica/f.txt"))
	assert.Equal(t, int64(1), a.cfg.Stats.Snapshot().FilesVerified)
}

func TestTmpRegistry_Cleanup(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/replica/.a.1234.sync-tmp", "partial")
	writeFile(t, fsys, "/replica/keep", "keep")

	r := newTmpRegistry(fsys)
	r.register("/replica/.a.1234.sync-tmp")
	r.register("/replica/.b.5678.sync-tmp") // never created
	r.register("/replica/keep")
	r.deregister("/replica/keep")
	assert.Equal(t, 2, r.len())

	r.cleanup()
	assert.Zero(t, r.len())

	exists, err := afero.Exists(fsys, "/replica/.a.1234.sync-tmp")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = afero.Exists(fsys, "/replica/keep")
	require.NoError(t, err)
	assert.True(t, exists)
}

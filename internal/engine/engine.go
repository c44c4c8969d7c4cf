// Package engine runs synchronization passes that make a replica tree mirror
// a source tree, and schedules them at a fixed interval.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/bamsammich/foldersync/internal/event"
	"github.com/bamsammich/foldersync/internal/filter"
	"github.com/bamsammich/foldersync/internal/fingerprint"
	"github.com/bamsammich/foldersync/internal/stats"
	"github.com/bamsammich/foldersync/internal/tree"
)

// Config describes a source/replica pair and how to sync it.
type Config struct {
	// Fs defaults to the OS filesystem.
	Fs afero.Fs

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// Logger is the log sink; defaults to slog.Default().
	Logger *slog.Logger

	// Events, when set, receives a copy of every event. Sends never block.
	Events chan<- event.Event

	Filter      *filter.Chain
	SourceRoot  string
	ReplicaRoot string

	// BWLimit caps copy throughput in bytes per second; 0 means unlimited.
	BWLimit int64

	Verify bool
}

// Result is the outcome of one pass.
type Result struct {
	Err   error
	Stats stats.Snapshot
	Edits int
	// QueuedBytes is the total size of the files the diff queued for copy.
	QueuedBytes int64
}

// Engine holds the state that lives across passes: the fingerprint cache and
// the temp-file registry.
type Engine struct {
	cfg    Config
	cache  *fingerprint.Cache
	differ *tree.Differ
	tmp    *tmpRegistry

	// limiter is shared across passes; nil when unlimited.
	limiter *rate.Limiter
}

// New creates an Engine for cfg.
func New(cfg Config) *Engine {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cache := fingerprint.NewCache(cfg.Fs)
	e := &Engine{
		cfg:    cfg,
		cache:  cache,
		differ: tree.NewDiffer(cfg.Fs, cache, cfg.Filter),
		tmp:    newTmpRegistry(cfg.Fs),
	}
	if cfg.BWLimit > 0 {
		e.limiter = NewBWLimiter(cfg.BWLimit)
	}
	return e
}

// CacheStats reports fingerprint cache usage.
func (e *Engine) CacheStats() fingerprint.CacheStats {
	return e.cache.Stats()
}

// Close removes temp files left by interrupted copies.
func (e *Engine) Close() error {
	e.tmp.cleanup()
	return nil
}

// RunOnce performs one full pass. Errors and panics inside the pass are
// logged and returned in Result.Err; they never propagate. The pass is not
// cancelled by ctx.
func (e *Engine) RunOnce(ctx context.Context) (res Result) {
	ctx = context.WithoutCancel(ctx)
	collector := stats.NewCollector(e.cfg.Clock)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Stats = collector.Snapshot()
		if res.Err != nil {
			e.tmp.cleanup()
			e.emit(ctx, event.Event{Type: event.PassFailed, Error: res.Err})
			return
		}
		e.logSummary(ctx, res)
	}()

	var set tree.EditSet
	set, res.Err = e.pass(ctx, collector)
	res.Edits, res.QueuedBytes = set.Len(), set.CopyBytes()
	return res
}

func (e *Engine) pass(ctx context.Context, collector *stats.Collector) (tree.EditSet, error) {
	if err := e.ensureReplicaRoot(ctx); err != nil {
		return tree.EditSet{}, err
	}

	set, err := e.differ.Diff(e.cfg.SourceRoot, e.cfg.ReplicaRoot)
	if err != nil {
		return tree.EditSet{}, fmt.Errorf("diff: %w", err)
	}
	collector.AddSkipped(int64(len(set.Skipped)))
	for _, rel := range set.Skipped {
		e.cfg.Logger.DebugContext(ctx, "skipping entry that is not a file or directory", "path", rel)
	}

	applier := newApplier(ApplierConfig{
		Fs:      e.cfg.Fs,
		Clock:   e.cfg.Clock,
		Stats:   collector,
		Emit:    func(ev event.Event) { e.emit(ctx, ev) },
		Limiter: e.limiter,
		Verify:  e.cfg.Verify,
	}, e.tmp)

	if err := applier.Apply(ctx, set); err != nil {
		return set, fmt.Errorf("apply: %w", err)
	}
	return set, nil
}

// ensureReplicaRoot creates the replica root when it does not exist.
func (e *Engine) ensureReplicaRoot(ctx context.Context) error {
	info, err := e.cfg.Fs.Stat(e.cfg.ReplicaRoot)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("replica root %s is not a directory", e.cfg.ReplicaRoot)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("replica root: %w", err)
	}
	if err := e.cfg.Fs.MkdirAll(e.cfg.ReplicaRoot, 0o755); err != nil {
		return fmt.Errorf("create replica root: %w", err)
	}
	e.emit(ctx, event.Event{Type: event.ReplicaCreated, Path: e.cfg.ReplicaRoot})
	return nil
}

// emit writes ev to the log sink and forwards it to the events channel.
func (e *Engine) emit(ctx context.Context, ev event.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.cfg.Clock.Now()
	}

	level := slog.LevelInfo
	attrs := []slog.Attr{slog.String("op", ev.Type.String())}
	switch ev.Type {
	case event.PassFailed:
		level = slog.LevelError
	case event.FileCopied:
		attrs = append(attrs, slog.String("size", humanize.Bytes(uint64(max(ev.Size, 0)))))
	}
	e.cfg.Logger.LogAttrs(ctx, level, ev.Message(), attrs...)

	if e.cfg.Events == nil {
		return
	}
	select {
	case e.cfg.Events <- ev:
	default:
	}
}

func (e *Engine) logSummary(ctx context.Context, res Result) {
	ev := event.Event{Type: event.PassCompleted, Timestamp: e.cfg.Clock.Now()}
	e.cfg.Logger.LogAttrs(ctx, slog.LevelDebug, ev.Message(),
		slog.Int("edits", res.Edits),
		slog.String("queued", humanize.Bytes(uint64(max(res.QueuedBytes, 0)))),
		slog.String("stats", res.Stats.String()),
		slog.Duration("elapsed", res.Stats.Elapsed),
		slog.Int("cached_fingerprints", e.cache.Len()),
	)
	if e.cfg.Events == nil {
		return
	}
	select {
	case e.cfg.Events <- ev:
	default:
	}
}

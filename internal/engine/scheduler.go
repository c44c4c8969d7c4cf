package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Runner performs one synchronization pass.
type Runner interface {
	RunOnce(ctx context.Context) Result
}

// Scheduler repeats passes at a fixed interval. The interval is measured from
// the end of one pass to the start of the next.
type Scheduler struct {
	runner Runner
	clock  clockwork.Clock
	logger *slog.Logger

	passes   atomic.Int64
	failures atomic.Int64
}

// NewScheduler creates a Scheduler. A nil clock uses the real clock and a nil
// logger uses slog.Default().
func NewScheduler(r Runner, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: r, clock: clock, logger: logger}
}

// RunForever runs a pass, sleeps for interval, and repeats until ctx is
// cancelled. A failed pass does not stop the loop. Cancellation is observed
// only between passes; the returned error is ctx.Err().
func (s *Scheduler) RunForever(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("interval must be positive")
	}

	for {
		res := s.runner.RunOnce(ctx)
		s.passes.Add(1)
		if res.Err != nil {
			s.failures.Add(1)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		s.logger.DebugContext(ctx, "sleeping", "interval", interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(interval):
		}
	}
}

// Passes returns the number of passes run so far.
func (s *Scheduler) Passes() int64 { return s.passes.Load() }

// Failures returns the number of passes that reported an error.
func (s *Scheduler) Failures() int64 { return s.failures.Load() }

package engine

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurst bounds a single limiter wait so one large read cannot stall far
// past the configured rate.
const maxBurst = 1 << 20 // 1 MiB

// NewBWLimiter returns a limiter allowing bytesPerSec bytes per second. The
// burst is the smaller of the rate and 1 MiB.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := int(min(bytesPerSec, maxBurst))
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// throttledReader charges every read against a limiter shared by all copies
// of an engine.
type throttledReader struct {
	ctx     context.Context
	src     io.Reader
	limiter *rate.Limiter
}

func newRateLimitedReader(ctx context.Context, src io.Reader, limiter *rate.Limiter) *throttledReader {
	return &throttledReader{ctx: ctx, src: src, limiter: limiter}
}

// Read never asks for more than the burst, since WaitN rejects larger n.
func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.limiter.Burst(); burst > 0 && len(p) > burst {
		p = p[:burst]
	}
	n, err := t.src.Read(p)
	if n == 0 {
		return 0, err
	}
	if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
		return n, werr
	}
	return n, err
}

package ollama

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Governor enforces a minimum interval between request starts to one LLM
// server. One Governor is shared by every client of that server in the
// process, so concurrent batches are spaced out as well.
type Governor struct {
	limiter     *rate.Limiter
	minInterval time.Duration
}

// NewGovernor returns a governor allowing one request start per
// minInterval. A non-positive interval disables pacing.
func NewGovernor(minInterval time.Duration) *Governor {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Governor{
		limiter:     rate.NewLimiter(limit, 1),
		minInterval: minInterval,
	}
}

// Wait blocks until the caller may start a request, then stamps the start.
// A wait that would outlast ctx's deadline fails with
// context.DeadlineExceeded without sleeping.
func (g *Governor) Wait(ctx context.Context) error {
	err := g.limiter.Wait(ctx)
	if err != nil && ctx.Err() == nil {
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
	}
	return err
}

// MinInterval returns the configured spacing.
func (g *Governor) MinInterval() time.Duration {
	return g.minInterval
}

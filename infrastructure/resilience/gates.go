package resilience

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/inquestlabs/inquest/domain/probe"
)

// Gates decorates a probe.GateChecker with retry. Gate checks are cheap,
// read-only, and queried on the tick loop's critical path, so a transient
// failure should not surface as a halted investigation.
type Gates struct {
	inner   probe.GateChecker
	retrier retry.Retry[probe.GateReport]
}

// NewGates wraps inner with the given retry budget.
func NewGates(inner probe.GateChecker, maxAttempts int, initialDelay time.Duration) *Gates {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if initialDelay <= 0 {
		initialDelay = 50 * time.Millisecond
	}
	return &Gates{
		inner: inner,
		retrier: retry.New[probe.GateReport](retry.Config{
			MaxAttempts:   maxAttempts,
			InitialDelay:  initialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			NonRetryableErrors: []error{
				context.Canceled,
				context.DeadlineExceeded,
			},
		}),
	}
}

// CheckGates queries the inner checker, retrying transient failures.
// A report that says the gates are dead is a valid answer, not an error,
// and is returned as-is.
func (g *Gates) CheckGates(ctx context.Context, targetSystemRef string) (probe.GateReport, error) {
	return g.retrier.Do(ctx, func(ctx context.Context) (probe.GateReport, error) {
		return g.inner.CheckGates(ctx, targetSystemRef)
	})
}

var _ probe.GateChecker = (*Gates)(nil)

// Package resilience wraps the probe executor port with fortify's circuit
// breaker, retry, and bulkhead patterns. Only transport-class failures are
// retried; a probe that ran and reported a logical outcome is never re-run
// here, that call belongs to the evidence ladder.
package resilience

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/inquestlabs/inquest/domain/probe"
)

// Executor decorates a probe.Executor with resilience patterns.
type Executor struct {
	inner    probe.Executor
	bulkhead bulkhead.Bulkhead[probe.Result]
	breaker  circuitbreaker.CircuitBreaker[probe.Result]
	retrier  retry.Retry[probe.Result]
}

// ExecutorConfig configures the resilient probe executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent probe executions.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive transport
	// failures before the breaker opens.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts per probe.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           8,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
	}
}

// NewExecutor wraps inner with the configured resilience patterns.
func NewExecutor(inner probe.Executor, config ExecutorConfig) *Executor {
	// Ensure non-negative values for uint32 conversion (G115 fix)
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	threshold := config.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}

	return &Executor{
		inner: inner,
		bulkhead: bulkhead.New[probe.Result](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		breaker: circuitbreaker.New[probe.Result](circuitbreaker.Config{
			MaxRequests: uint32(maxConcurrent), // #nosec G115 -- bounds checked above
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
			},
		}),
		retrier: retry.New[probe.Result](retry.Config{
			MaxAttempts:   config.RetryMaxAttempts,
			InitialDelay:  config.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    config.RetryBackoffMultiplier,
			// A cancelled probe yields Unknown upstream; re-running it here
			// would hide the timeout from the retry-budget accounting.
			NonRetryableErrors: []error{
				probe.ErrCancelled,
				context.Canceled,
				context.DeadlineExceeded,
			},
		}),
	}
}

// NewDefaultExecutor wraps inner with default configuration.
func NewDefaultExecutor(inner probe.Executor) *Executor {
	return NewExecutor(inner, DefaultExecutorConfig())
}

// RunProbe executes a probe with resilience patterns applied.
// Composition order: Bulkhead -> Circuit Breaker -> Retry. The caller owns
// the deadline: the orchestrator puts a per-probe timeout on ctx already,
// so no timeout layer is stacked here.
func (e *Executor) RunProbe(ctx context.Context, req probe.Request) (probe.Result, error) {
	return e.bulkhead.Execute(ctx, func(ctx context.Context) (probe.Result, error) {
		return e.breaker.Execute(ctx, func(ctx context.Context) (probe.Result, error) {
			return e.retrier.Do(ctx, func(ctx context.Context) (probe.Result, error) {
				return e.inner.RunProbe(ctx, req)
			})
		})
	})
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (e *Executor) CircuitBreakerState() circuitbreaker.State {
	return e.breaker.State()
}

var _ probe.Executor = (*Executor)(nil)

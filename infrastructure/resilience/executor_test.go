package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inquestlabs/inquest/domain/probe"
)

// scriptedExecutor returns the queued outcomes in order, then keeps
// returning the last one.
type scriptedExecutor struct {
	calls    atomic.Int64
	outcomes []error
}

func (s *scriptedExecutor) RunProbe(_ context.Context, req probe.Request) (probe.Result, error) {
	n := int(s.calls.Add(1)) - 1
	if n >= len(s.outcomes) {
		n = len(s.outcomes) - 1
	}
	if err := s.outcomes[n]; err != nil {
		return probe.Result{}, err
	}
	return probe.Result{
		HypothesisID: req.HypothesisID,
		Anchor:       req.Anchor,
		Status:       probe.StatusPass,
	}, nil
}

func testRequest() probe.Request {
	return probe.Request{
		HypothesisID: "h-1",
		Anchor:       probe.AnchorDev,
		Spec:         json.RawMessage(`{"route":"direct"}`),
	}
}

func TestDefaultExecutorConfig(t *testing.T) {
	config := DefaultExecutorConfig()

	if config.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d, want 8", config.MaxConcurrent)
	}
	if config.CircuitBreakerThreshold != 5 {
		t.Errorf("CircuitBreakerThreshold = %d, want 5", config.CircuitBreakerThreshold)
	}
	if config.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want 3", config.RetryMaxAttempts)
	}
}

func TestExecutorPassThrough(t *testing.T) {
	inner := &scriptedExecutor{outcomes: []error{nil}}
	exec := NewDefaultExecutor(inner)

	res, err := exec.RunProbe(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("RunProbe() error = %v", err)
	}
	if res.Status != probe.StatusPass {
		t.Errorf("status = %s, want pass", res.Status)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("inner calls = %d, want 1", got)
	}
}

func TestExecutorRetriesTransportFailure(t *testing.T) {
	transient := fmt.Errorf("dialing probe runner: %w", probe.ErrTransport)
	inner := &scriptedExecutor{outcomes: []error{transient, transient, nil}}
	exec := NewExecutor(inner, ExecutorConfig{
		MaxConcurrent:           2,
		CircuitBreakerThreshold: 10,
		CircuitBreakerTimeout:   time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       time.Millisecond,
		RetryBackoffMultiplier:  1.0,
	})

	res, err := exec.RunProbe(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("RunProbe() error = %v, want success after retries", err)
	}
	if res.Status != probe.StatusPass {
		t.Errorf("status = %s, want pass", res.Status)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("inner calls = %d, want 3", got)
	}
}

func TestExecutorDoesNotRetryCancellation(t *testing.T) {
	inner := &scriptedExecutor{outcomes: []error{probe.ErrCancelled}}
	exec := NewExecutor(inner, ExecutorConfig{
		MaxConcurrent:           2,
		CircuitBreakerThreshold: 10,
		CircuitBreakerTimeout:   time.Second,
		RetryMaxAttempts:        5,
		RetryInitialDelay:       time.Millisecond,
		RetryBackoffMultiplier:  1.0,
	})

	_, err := exec.RunProbe(context.Background(), testRequest())
	if !errors.Is(err, probe.ErrCancelled) {
		t.Fatalf("RunProbe() error = %v, want ErrCancelled", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("inner calls = %d, want 1 (cancellation is final)", got)
	}
}

func TestExecutorBreakerOpensOnConsecutiveFailures(t *testing.T) {
	inner := &scriptedExecutor{outcomes: []error{probe.ErrTransport}}
	exec := NewExecutor(inner, ExecutorConfig{
		MaxConcurrent:           2,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   time.Minute,
		RetryMaxAttempts:        1,
		RetryInitialDelay:       time.Millisecond,
		RetryBackoffMultiplier:  1.0,
	})

	for i := 0; i < 5; i++ {
		_, _ = exec.RunProbe(context.Background(), testRequest())
	}

	calls := inner.calls.Load()
	if calls >= 5 {
		t.Errorf("inner calls = %d, want fewer than 5 once the breaker opens", calls)
	}
}

func TestNewExecutorWithOptions(t *testing.T) {
	inner := &scriptedExecutor{outcomes: []error{nil}}
	exec := NewExecutorWithOptions(inner,
		WithMaxConcurrent(2),
		WithCircuitBreakerThreshold(7),
		WithCircuitBreakerTimeout(time.Second),
		WithRetryAttempts(1),
		WithRetryDelay(time.Millisecond),
	)
	if exec == nil {
		t.Fatal("NewExecutorWithOptions() returned nil")
	}
	if _, err := exec.RunProbe(context.Background(), testRequest()); err != nil {
		t.Errorf("RunProbe() error = %v", err)
	}
}

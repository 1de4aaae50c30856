package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/inquestlabs/inquest/domain/hypothesis"
)

// Controller errors.
var (
	ErrAlreadyRunning = errors.New("investigation already running")
	ErrNotRunning     = errors.New("investigation not running")
)

// Seed pairs a target state with its initial hypotheses.
type Seed struct {
	Target     hypothesis.TargetState
	Hypotheses []hypothesis.Hypothesis
}

// Status is the operator-facing view of a running or finished investigation.
// Conclusion always distinguishes "nothing promoted yet" from "halted on
// error": the absence of a promoted hypothesis is never reported as a result.
type Status struct {
	Phase     Phase  `json:"phase"`
	Iteration uint64 `json:"iteration"`

	ActiveTargetID     string `json:"active_target_id,omitempty"`
	ActiveHypothesisID string `json:"active_hypothesis_id,omitempty"`
	ActiveLevel        string `json:"active_level,omitempty"`

	Targets        int `json:"targets"`
	Hypotheses     int `json:"hypotheses"`
	Findings       int `json:"findings"`
	InFlightProbes int `json:"in_flight_probes"`

	StallCounter int  `json:"stall_counter"`
	StallPending bool `json:"stall_pending"`

	CheckpointRef string `json:"checkpoint_ref,omitempty"`

	PromotedHypothesisID string `json:"promoted_hypothesis_id,omitempty"`
	HaltedError          string `json:"halted_error,omitempty"`

	Conclusion string `json:"conclusion"`

	Unknowns []string `json:"unknowns,omitempty"`
}

// Status reports the engine's current status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state

	st := Status{
		Phase:          s.Phase,
		Iteration:      s.Iteration,
		Targets:        len(s.Portfolio.Targets()),
		Findings:       s.Findings.Len(),
		InFlightProbes: s.Portfolio.InFlightCount(),
		StallCounter:   s.Stall.Counter,
		StallPending:   s.Stall.Pending != nil,
		CheckpointRef:  e.lastCheckpointRef,
		HaltedError:    s.HaltedError,
		Unknowns:       s.Unknowns,
	}
	for _, t := range s.Portfolio.Targets() {
		st.Hypotheses += len(s.Portfolio.Hypotheses(t.ID))
	}
	if t, ok := s.Portfolio.ActiveTarget(); ok {
		st.ActiveTargetID = t.ID
		if h, ok := s.Portfolio.ActiveHypothesis(t.ID); ok {
			st.ActiveHypothesisID = h.ID
			st.ActiveLevel = string(h.Level)
		}
	}
	if h, ok := s.Portfolio.PromotedHypothesis(); ok {
		st.PromotedHypothesisID = h.ID
	}

	switch {
	case s.HaltedError != "":
		st.Conclusion = "halted on error: " + s.HaltedError
	case s.Phase == PhasePromoted:
		st.Conclusion = "capability promoted"
	case s.Phase == PhaseExhausted:
		st.Conclusion = "search exhausted, awaiting new findings"
	default:
		st.Conclusion = "searching, no promoted hypothesis yet"
	}
	return st
}

// Controller owns an engine's lifecycle: seeding, background execution,
// status, and graceful stop.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	engine *Engine
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewController creates a controller for the given configuration.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Start seeds a fresh investigation and runs it in the background.
func (c *Controller) Start(ctx context.Context, seeds []Seed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		return ErrAlreadyRunning
	}

	eng, err := NewEngine(c.cfg)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		if err := eng.AddTarget(seed.Target); err != nil {
			return fmt.Errorf("seed target %s: %w", seed.Target.ID, err)
		}
		if len(seed.Hypotheses) > 0 {
			if err := eng.SeedHypotheses(seed.Target.ID, seed.Hypotheses...); err != nil {
				return fmt.Errorf("seed hypotheses on %s: %w", seed.Target.ID, err)
			}
		}
	}
	c.launch(ctx, eng)
	return nil
}

// Resume restores a checkpoint and continues the investigation. An empty ref
// resumes from the latest checkpoint head.
func (c *Controller) Resume(ctx context.Context, ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		return ErrAlreadyRunning
	}
	if c.cfg.Checkpoints == nil {
		return fmt.Errorf("%w: no checkpoint store configured", ErrCheckpointNotFound)
	}

	if ref == "" {
		var err error
		ref, err = c.cfg.Checkpoints.Latest(ctx)
		if err != nil {
			return fmt.Errorf("resolve latest checkpoint: %w", err)
		}
	}
	data, err := c.cfg.Checkpoints.Get(ctx, ref)
	if err != nil {
		return fmt.Errorf("load checkpoint %s: %w", ref, err)
	}
	snap, err := Decode(data)
	if err != nil {
		return err
	}
	eng, err := NewEngineFromSnapshot(c.cfg, snap)
	if err != nil {
		return err
	}
	eng.lastCheckpointRef = ref
	c.launch(ctx, eng)
	return nil
}

func (c *Controller) launch(ctx context.Context, eng *Engine) {
	runCtx, cancel := context.WithCancel(ctx)
	c.engine = eng
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		err := eng.Run(runCtx)
		c.mu.Lock()
		c.runErr = err
		c.mu.Unlock()
	}()
}

// Status reports the current investigation status.
func (c *Controller) Status() (Status, error) {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng == nil {
		return Status{}, ErrNotRunning
	}
	return eng.Status(), nil
}

// Stop halts the loop gracefully: in-flight probes finish, their results are
// applied, a final checkpoint is taken. Returns the run's error, if any.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.engine == nil {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Close()
	return c.runErr
}

// Wait blocks until the run finishes and returns its error.
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return ErrNotRunning
	}
	<-done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// Engine exposes the underlying engine, mainly for ingestion wiring.
func (c *Controller) Engine() *Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

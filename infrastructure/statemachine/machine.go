// Package statemachine provides the statekit chart for the investigation
// lifecycle.
package statemachine

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Lifecycle state ids. They match the orchestrator phase strings so the
// interpreter state round-trips through checkpoints unchanged.
const (
	StateInitializing statekit.StateID = "initializing"
	StateActive       statekit.StateID = "active"
	StatePromoted     statekit.StateID = "promoted"
	StateExhausted    statekit.StateID = "checkpoint_exhausted"
)

// Context carries the guard inputs for lifecycle transitions. The engine
// updates it before sending events.
type Context struct {
	// PrereqsVerified and CoverageMet gate activation.
	PrereqsVerified bool
	CoverageMet     bool

	// ExhaustionEligible gates the exhaustion checkpoint.
	ExhaustionEligible bool

	// NewFindings gates re-entry from the exhausted state.
	NewFindings bool
}

// NewInvestigationMachine builds the lifecycle chart. Promotion is the only
// final state; exhaustion re-enters Active when the model changes.
func NewInvestigationMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("investigation").
		WithInitial(StateInitializing).
		WithContext(&Context{}).
		WithGuard("canActivate", guardCanActivate).
		WithGuard("canExhaust", guardCanExhaust).
		WithGuard("hasNewFindings", guardHasNewFindings).
		State(StateInitializing).
			On("ACTIVATE").Target(StateActive).Guard("canActivate").
			Done().
		State(StateActive).
			On("PROMOTE").Target(StatePromoted).
			On("EXHAUST").Target(StateExhausted).Guard("canExhaust").
			Done().
		State(StateExhausted).
			On("REOPEN").Target(StateActive).Guard("hasNewFindings").
			Done().
		State(StatePromoted).
			Final().
			Done().
		Build()
}

func guardCanActivate(ctx *Context, _ statekit.Event) bool {
	return ctx.PrereqsVerified && ctx.CoverageMet
}

func guardCanExhaust(ctx *Context, _ statekit.Event) bool {
	return ctx.ExhaustionEligible
}

func guardHasNewFindings(ctx *Context, _ statekit.Event) bool {
	return ctx.NewFindings
}

// Lifecycle wraps the statekit interpreter with phase-level operations.
type Lifecycle struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewLifecycle creates and starts an interpreter over the investigation
// chart.
func NewLifecycle() (*Lifecycle, error) {
	machine, err := NewInvestigationMachine()
	if err != nil {
		return nil, fmt.Errorf("build investigation machine: %w", err)
	}
	ctx := &Context{}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) { *c = ctx })
	interp.Start()
	return &Lifecycle{interp: interp, ctx: ctx}, nil
}

// Phase returns the current lifecycle state id.
func (l *Lifecycle) Phase() string {
	return string(l.interp.State().Value)
}

// Context returns the guard input context for mutation before sending events.
func (l *Lifecycle) Context() *Context { return l.ctx }

// Send fires a lifecycle event and reports whether the state changed. Guards
// silently veto: an unsatisfied guard leaves the state alone.
func (l *Lifecycle) Send(event string) bool {
	before := l.interp.State().Value
	l.interp.Send(statekit.Event{Type: statekit.EventType(event)})
	return l.interp.State().Value != before
}

// ResumeAt restores the interpreter to a checkpointed phase.
func (l *Lifecycle) ResumeAt(phase string) error {
	snapshot := statekit.Snapshot[*Context]{
		MachineID:    "investigation",
		CurrentState: statekit.StateID(phase),
		Context:      l.ctx,
	}
	if err := l.interp.Restore(snapshot); err != nil {
		return fmt.Errorf("restore lifecycle phase %q: %w", phase, err)
	}
	return nil
}

// Done reports whether the lifecycle reached its final state.
func (l *Lifecycle) Done() bool { return l.interp.Done() }

// Package portfolio owns the target states and their hypothesis trees, the
// diversity bookkeeping, and the mutate/rotate selection rules.
package portfolio

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/inquestlabs/inquest/domain/hypothesis"
)

// MinHypotheses is the coverage floor per target state. It is a flag the
// decision engine acts on, not a hard cap on seeding.
const MinHypotheses = 3

// Portfolio errors.
var (
	ErrTargetNotFound     = errors.New("target state not found")
	ErrTargetExists       = errors.New("target state already exists")
	ErrHypothesisNotFound = errors.New("hypothesis not found")
	ErrProbeOutstanding   = errors.New("hypothesis has an outstanding probe")
	ErrNoRotation         = errors.New("no sibling hypothesis available for rotation")
	ErrNoFusionParents    = errors.New("fusion needs two prior hypotheses on the target")
)

// Coverage tracks the diversity flags per target state. A target is only
// eligible for exhaustion once all three shapes were attempted.
type Coverage struct {
	Simple        bool `json:"simple"`
	Fusion        bool `json:"fusion"`
	CrossBoundary bool `json:"cross_boundary"`
}

// Complete reports whether every diversity flag is set.
func (c Coverage) Complete() bool {
	return c.Simple && c.Fusion && c.CrossBoundary
}

func (c *Coverage) mark(s hypothesis.Shape) {
	switch s {
	case hypothesis.ShapeSimple:
		c.Simple = true
	case hypothesis.ShapeFusion:
		c.Fusion = true
	case hypothesis.ShapeCrossBoundary:
		c.CrossBoundary = true
	}
}

// entry is the per-target bookkeeping.
type entry struct {
	target   hypothesis.TargetState
	order    []string // hypothesis ids in creation order
	byID     map[string]hypothesis.Hypothesis
	activeID string
	coverage Coverage
	// attempted records operator ids tried anywhere in this target's tree.
	attempted map[string]bool
}

// Portfolio owns the target states and their hypothesis trees. It is not
// safe for concurrent use; the orchestrator serializes access through its
// tick loop.
type Portfolio struct {
	order    []string
	entries  map[string]*entry
	inflight map[string]bool // hypothesis ids with an outstanding probe
	activeID string          // active target id
	newID    func() string
}

// New creates an empty portfolio.
func New() *Portfolio {
	return &Portfolio{
		entries:  make(map[string]*entry),
		inflight: make(map[string]bool),
		newID:    func() string { return "h-" + uuid.NewString()[:8] },
	}
}

// AddTarget registers a new target state.
func (p *Portfolio) AddTarget(t hypothesis.TargetState) error {
	if _, exists := p.entries[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTargetExists, t.ID)
	}
	p.entries[t.ID] = &entry{
		target:    t,
		byID:      make(map[string]hypothesis.Hypothesis),
		attempted: make(map[string]bool),
	}
	p.order = append(p.order, t.ID)
	if p.activeID == "" {
		p.activeID = t.ID
	}
	return nil
}

// Seed attaches hypotheses to a target. The first seeded hypothesis becomes
// active; each seeded shape sets its diversity flag.
func (p *Portfolio) Seed(targetID string, hyps ...hypothesis.Hypothesis) error {
	e, ok := p.entries[targetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}
	for _, h := range hyps {
		h.TargetID = targetID
		if h.ID == "" {
			h.ID = p.newID()
		}
		if _, dup := e.byID[h.ID]; dup {
			continue
		}
		e.byID[h.ID] = h
		e.order = append(e.order, h.ID)
		e.coverage.mark(h.Shape)
		if e.activeID == "" {
			e.activeID = h.ID
		}
	}
	return nil
}

// Targets returns target states in registration order.
func (p *Portfolio) Targets() []hypothesis.TargetState {
	out := make([]hypothesis.TargetState, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.entries[id].target)
	}
	return out
}

// ActiveTarget returns the target state under active investigation.
func (p *Portfolio) ActiveTarget() (hypothesis.TargetState, bool) {
	e, ok := p.entries[p.activeID]
	if !ok {
		return hypothesis.TargetState{}, false
	}
	return e.target, true
}

// SwitchTarget moves the active focus to another open target.
func (p *Portfolio) SwitchTarget(targetID string) error {
	if _, ok := p.entries[targetID]; !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}
	p.activeID = targetID
	return nil
}

// NextOpenTarget returns the first open target after the active one in
// registration order, wrapping around. Used by the stall controller's
// switch-target escape.
func (p *Portfolio) NextOpenTarget() (string, bool) {
	if len(p.order) == 0 {
		return "", false
	}
	start := 0
	for i, id := range p.order {
		if id == p.activeID {
			start = i
			break
		}
	}
	for off := 1; off <= len(p.order); off++ {
		id := p.order[(start+off)%len(p.order)]
		if p.entries[id].target.Status == hypothesis.TargetOpen && id != p.activeID {
			return id, true
		}
	}
	return "", false
}

// Hypothesis returns a hypothesis by id, searching all targets.
func (p *Portfolio) Hypothesis(id string) (hypothesis.Hypothesis, bool) {
	for _, e := range p.entries {
		if h, ok := e.byID[id]; ok {
			return h, true
		}
	}
	return hypothesis.Hypothesis{}, false
}

// ActiveHypothesis returns the hypothesis under advancement for a target.
func (p *Portfolio) ActiveHypothesis(targetID string) (hypothesis.Hypothesis, bool) {
	e, ok := p.entries[targetID]
	if !ok || e.activeID == "" {
		return hypothesis.Hypothesis{}, false
	}
	h, ok := e.byID[e.activeID]
	return h, ok
}

// Hypotheses returns a target's hypotheses in creation order.
func (p *Portfolio) Hypotheses(targetID string) []hypothesis.Hypothesis {
	e, ok := p.entries[targetID]
	if !ok {
		return nil
	}
	out := make([]hypothesis.Hypothesis, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.byID[id])
	}
	return out
}

// Update replaces a stored hypothesis after a ladder transition and returns
// whether the transition was an evidence upgrade. Promotion flips the owning
// target's status.
func (p *Portfolio) Update(h hypothesis.Hypothesis) (upgraded bool, err error) {
	e, ok := p.entries[h.TargetID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTargetNotFound, h.TargetID)
	}
	prev, ok := e.byID[h.ID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrHypothesisNotFound, h.ID)
	}
	e.byID[h.ID] = h
	if h.Level == hypothesis.LevelPromoted {
		e.target.Status = hypothesis.TargetPromoted
	}
	return hypothesis.Upgraded(prev.Level, h.Level), nil
}

// Coverage returns the diversity flags for a target.
func (p *Portfolio) Coverage(targetID string) (Coverage, bool) {
	e, ok := p.entries[targetID]
	if !ok {
		return Coverage{}, false
	}
	return e.coverage, true
}

// BelowMinimum returns ids of open targets holding fewer than MinHypotheses
// hypotheses.
func (p *Portfolio) BelowMinimum() []string {
	var ids []string
	for _, id := range p.order {
		e := p.entries[id]
		if e.target.Status == hypothesis.TargetOpen && len(e.order) < MinHypotheses {
			ids = append(ids, id)
		}
	}
	return ids
}

// MarkInFlight records an outstanding probe for a hypothesis. At most one
// probe per hypothesis may be outstanding.
func (p *Portfolio) MarkInFlight(hypothesisID string) error {
	if p.inflight[hypothesisID] {
		return fmt.Errorf("%w: %s", ErrProbeOutstanding, hypothesisID)
	}
	p.inflight[hypothesisID] = true
	return nil
}

// ClearInFlight clears the outstanding-probe mark.
func (p *Portfolio) ClearInFlight(hypothesisID string) {
	delete(p.inflight, hypothesisID)
}

// InFlight reports whether a hypothesis has an outstanding probe.
func (p *Portfolio) InFlight(hypothesisID string) bool {
	return p.inflight[hypothesisID]
}

// InFlightCount returns the number of outstanding probes.
func (p *Portfolio) InFlightCount() int {
	return len(p.inflight)
}

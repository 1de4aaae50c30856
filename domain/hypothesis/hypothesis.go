package hypothesis

import (
	"fmt"
	"time"
)

// Shape classifies the structural flavor of a hypothesis route. A target
// state is only eligible for exhaustion once all three shapes have been
// attempted against it.
type Shape string

const (
	ShapeSimple        Shape = "simple"         // Short, direct route
	ShapeFusion        Shape = "fusion"         // Combines route fragments of two priors
	ShapeCrossBoundary Shape = "cross_boundary" // Crosses a module or trust boundary
)

// IsValid returns true if the shape is recognized.
func (s Shape) IsValid() bool {
	switch s {
	case ShapeSimple, ShapeFusion, ShapeCrossBoundary:
		return true
	default:
		return false
	}
}

// Hypothesis is one concrete candidate route toward a target state.
// Transitions never mutate in place; they return a copy with the new level so
// the caller controls when portfolio state changes.
type Hypothesis struct {
	ID       string `json:"id"`
	TargetID string `json:"target_id"`
	ParentID string `json:"parent_id,omitempty"`

	Level       EvidenceLevel `json:"level"`
	Shape       Shape         `json:"shape"`
	RouteSketch string        `json:"route_sketch"`

	// AppliedMutations lists operator ids in application order. The ladder
	// rejects duplicates; order is part of lineage.
	AppliedMutations []string `json:"applied_mutations,omitempty"`

	CapitalCost     float64 `json:"capital_cost,omitempty"`
	MeasuredDelta   float64 `json:"measured_delta,omitempty"`
	ExitMeasurement string  `json:"exit_measurement,omitempty"`

	// WhatKilledIt records the disproof or block reason for terminal
	// non-promoted hypotheses.
	WhatKilledIt string `json:"what_killed_it,omitempty"`

	// EvidenceFindings references the finding ids backing this hypothesis.
	EvidenceFindings []string `json:"evidence_findings,omitempty"`

	// ArtifactRefs references probe artifacts collected along the way.
	ArtifactRefs []string `json:"artifact_refs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// New creates a hypothesis at the bottom of the ladder.
func New(id, targetID, routeSketch string, shape Shape) Hypothesis {
	return Hypothesis{
		ID:          id,
		TargetID:    targetID,
		Level:       LevelModeled,
		Shape:       shape,
		RouteSketch: routeSketch,
		CreatedAt:   time.Now(),
	}
}

// HasMutation reports whether the operator id was already applied.
func (h Hypothesis) HasMutation(operatorID string) bool {
	for _, id := range h.AppliedMutations {
		if id == operatorID {
			return true
		}
	}
	return false
}

// WithMutation returns a child hypothesis with the operator id recorded.
// The child restarts at the bottom of the ladder with the parent's lineage.
func (h Hypothesis) WithMutation(childID, operatorID, routeSketch string) (Hypothesis, error) {
	if h.HasMutation(operatorID) {
		return Hypothesis{}, fmt.Errorf("%w: %s on %s", ErrDuplicateMutation, operatorID, h.ID)
	}
	child := Hypothesis{
		ID:               childID,
		TargetID:         h.TargetID,
		ParentID:         h.ID,
		Level:            LevelModeled,
		Shape:            h.Shape,
		RouteSketch:      routeSketch,
		AppliedMutations: append(append([]string(nil), h.AppliedMutations...), operatorID),
		CapitalCost:      h.CapitalCost,
		CreatedAt:        time.Now(),
	}
	return child, nil
}

// Lineage returns the chain of ids from root to this hypothesis, resolved
// through the supplied lookup. A broken chain stops at the last resolvable
// ancestor.
func (h Hypothesis) Lineage(lookup func(id string) (Hypothesis, bool)) []string {
	chain := []string{h.ID}
	cur := h
	for cur.ParentID != "" {
		parent, ok := lookup(cur.ParentID)
		if !ok {
			break
		}
		chain = append([]string{parent.ID}, chain...)
		cur = parent
	}
	return chain
}

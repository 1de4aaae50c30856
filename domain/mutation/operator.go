// Package mutation provides the static catalog of hypothesis transformation
// operators. Operators are pure: they never mutate a hypothesis in place,
// they produce a child with the operator id appended to its lineage.
package mutation

import (
	"fmt"

	"github.com/inquestlabs/inquest/domain/hypothesis"
)

// Kind distinguishes single-parent operators from the two-parent fusion
// variant.
type Kind string

const (
	KindSingle Kind = "single"
	KindFusion Kind = "fusion"
)

// Operator is a named transformation over a hypothesis. Exactly one of Apply
// or Fuse is set, matching Kind.
type Operator struct {
	// ID is the stable operator name. Registry order is selection order.
	ID string

	Kind Kind

	// Precondition reports whether the operator is applicable to the parent.
	Precondition func(hypothesis.Hypothesis) bool

	// Apply derives a child from one parent. Set for single-parent operators.
	Apply func(parent hypothesis.Hypothesis, childID string) (hypothesis.Hypothesis, error)

	// Fuse derives a child from two parents. Set for the fusion operator.
	Fuse func(a, b hypothesis.Hypothesis, childID string) (hypothesis.Hypothesis, error)
}

// single builds a single-parent operator whose apply rewrites the route
// sketch through the given transform.
func single(id string, pre func(hypothesis.Hypothesis) bool, sketch func(string) string) Operator {
	return Operator{
		ID:           id,
		Kind:         KindSingle,
		Precondition: pre,
		Apply: func(parent hypothesis.Hypothesis, childID string) (hypothesis.Hypothesis, error) {
			return parent.WithMutation(childID, id, sketch(parent.RouteSketch))
		},
	}
}

func always(hypothesis.Hypothesis) bool { return true }

// Builtin returns the ordered builtin operator catalog. The order is the
// selection order: the engine applies the first untried applicable operator.
func Builtin() []Operator {
	ops := []Operator{
		single("measurement-shift", always, func(s string) string {
			return s + " [measure at a different observation point]"
		}),
		single("ordering-flip", always, func(s string) string {
			return s + " [reverse the step ordering]"
		}),
		single("parameter-swap", always, func(s string) string {
			return s + " [swap the asset/parameter under manipulation]"
		}),
		single("amount-regime-shift", always, func(s string) string {
			return s + " [move amounts to the opposite regime: dust vs. whale]"
		}),
		single("time-shift", always, func(s string) string {
			return s + " [replay across an epoch/accrual boundary]"
		}),
		single("direction-flip", always, func(s string) string {
			return s + " [invert the flow direction]"
		}),
		fusion(),
		crossBoundaryWiden(),
	}
	return ops
}

// fusion is the two-parent operator: it splices the route fragments of two
// prior hypotheses on the same target into one route.
func fusion() Operator {
	const id = "fusion"
	return Operator{
		ID:           id,
		Kind:         KindFusion,
		Precondition: always,
		Fuse: func(a, b hypothesis.Hypothesis, childID string) (hypothesis.Hypothesis, error) {
			if a.TargetID != b.TargetID {
				return hypothesis.Hypothesis{}, fmt.Errorf("fusion parents target different states: %s vs %s", a.TargetID, b.TargetID)
			}
			child, err := a.WithMutation(childID, id, a.RouteSketch+" [fused with: "+b.RouteSketch+"]")
			if err != nil {
				return hypothesis.Hypothesis{}, err
			}
			child.Shape = hypothesis.ShapeFusion
			// Second parent recorded in lineage through the sketch; the tree
			// stays single-parented for reconstruction.
			child.EvidenceFindings = append(append([]string(nil), a.EvidenceFindings...), b.EvidenceFindings...)
			return child, nil
		},
	}
}

// crossBoundaryWiden widens the route across a module or trust boundary.
func crossBoundaryWiden() Operator {
	const id = "cross-boundary-widen"
	op := single(id, func(h hypothesis.Hypothesis) bool {
		// Widening a route that already crosses a boundary is a no-op.
		return h.Shape != hypothesis.ShapeCrossBoundary
	}, func(s string) string {
		return s + " [widen across the adjacent trust boundary]"
	})
	op.Apply = func(parent hypothesis.Hypothesis, childID string) (hypothesis.Hypothesis, error) {
		child, err := parent.WithMutation(childID, id, parent.RouteSketch+" [widen across the adjacent trust boundary]")
		if err != nil {
			return hypothesis.Hypothesis{}, err
		}
		child.Shape = hypothesis.ShapeCrossBoundary
		return child, nil
	}
	return op
}

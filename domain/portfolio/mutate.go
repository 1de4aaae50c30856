package portfolio

import (
	"fmt"

	"github.com/inquestlabs/inquest/domain/hypothesis"
	"github.com/inquestlabs/inquest/domain/mutation"
)

// Mutate derives a child from a disproved (or unknown-stuck) hypothesis
// using the first untried applicable operator in registry order. The child
// joins the target's tree and becomes the active hypothesis.
func (p *Portfolio) Mutate(hypothesisID string, reg *mutation.Registry) (hypothesis.Hypothesis, error) {
	parent, ok := p.Hypothesis(hypothesisID)
	if !ok {
		return hypothesis.Hypothesis{}, fmt.Errorf("%w: %s", ErrHypothesisNotFound, hypothesisID)
	}
	if p.inflight[hypothesisID] {
		return hypothesis.Hypothesis{}, fmt.Errorf("%w: %s", ErrProbeOutstanding, hypothesisID)
	}

	op, err := reg.SelectNext(parent)
	if err != nil {
		return hypothesis.Hypothesis{}, err
	}

	var child hypothesis.Hypothesis
	switch op.Kind {
	case mutation.KindFusion:
		second, ok := p.fusionPartner(parent)
		if !ok {
			// Fusion is inapplicable without a partner; retry selection with
			// fusion counted as tried on this lineage.
			marked := parent
			marked.AppliedMutations = append(append([]string(nil), parent.AppliedMutations...), op.ID)
			next, err := reg.SelectNext(marked)
			if err != nil {
				return hypothesis.Hypothesis{}, err
			}
			child, err = next.Apply(parent, p.newID())
			if err != nil {
				return hypothesis.Hypothesis{}, err
			}
			op = next
		} else {
			child, err = op.Fuse(parent, second, p.newID())
			if err != nil {
				return hypothesis.Hypothesis{}, err
			}
		}
	default:
		child, err = op.Apply(parent, p.newID())
		if err != nil {
			return hypothesis.Hypothesis{}, err
		}
	}

	e := p.entries[child.TargetID]
	e.byID[child.ID] = child
	e.order = append(e.order, child.ID)
	e.coverage.mark(child.Shape)
	e.attempted[op.ID] = true
	e.activeID = child.ID
	return child, nil
}

// ForceFusion derives a fusion child for the target's active hypothesis,
// used when the stall controller demands a fusion-type mutation.
func (p *Portfolio) ForceFusion(targetID string, reg *mutation.Registry) (hypothesis.Hypothesis, error) {
	e, ok := p.entries[targetID]
	if !ok {
		return hypothesis.Hypothesis{}, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}
	active, ok := p.ActiveHypothesis(targetID)
	if !ok {
		return hypothesis.Hypothesis{}, fmt.Errorf("%w: target %s has no active hypothesis", ErrHypothesisNotFound, targetID)
	}
	op, ok := reg.Get("fusion")
	if !ok || op.Fuse == nil {
		return hypothesis.Hypothesis{}, mutation.ErrOperatorNotFound
	}
	partner, ok := p.fusionPartner(active)
	if !ok {
		return hypothesis.Hypothesis{}, ErrNoFusionParents
	}
	child, err := op.Fuse(active, partner, p.newID())
	if err != nil {
		return hypothesis.Hypothesis{}, err
	}
	e.byID[child.ID] = child
	e.order = append(e.order, child.ID)
	e.coverage.mark(child.Shape)
	e.attempted[op.ID] = true
	e.activeID = child.ID
	return child, nil
}

// fusionPartner picks the most recent sibling distinct from the parent whose
// route can contribute a fragment. Preference order: disproved siblings
// first (their routes carry learnings), then any non-terminal sibling.
func (p *Portfolio) fusionPartner(parent hypothesis.Hypothesis) (hypothesis.Hypothesis, bool) {
	e, ok := p.entries[parent.TargetID]
	if !ok {
		return hypothesis.Hypothesis{}, false
	}
	var fallback hypothesis.Hypothesis
	var haveFallback bool
	for i := len(e.order) - 1; i >= 0; i-- {
		h := e.byID[e.order[i]]
		if h.ID == parent.ID {
			continue
		}
		if h.Level == hypothesis.LevelDisproved {
			return h, true
		}
		if !haveFallback && !h.Level.IsTerminal() {
			fallback, haveFallback = h, true
		}
	}
	return fallback, haveFallback
}

// Rotate moves the target's focus to the next sibling that can still make
// progress (non-terminal, no outstanding probe), in creation order after the
// current active hypothesis.
func (p *Portfolio) Rotate(targetID string) (string, error) {
	e, ok := p.entries[targetID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}
	id, ok := p.nextRotation(e)
	if !ok {
		return "", ErrNoRotation
	}
	e.activeID = id
	return id, nil
}

// nextRotation scans for the next rotatable sibling without moving focus.
func (p *Portfolio) nextRotation(e *entry) (string, bool) {
	if len(e.order) == 0 {
		return "", false
	}
	start := 0
	for i, id := range e.order {
		if id == e.activeID {
			start = i
			break
		}
	}
	for off := 1; off <= len(e.order); off++ {
		id := e.order[(start+off)%len(e.order)]
		h := e.byID[id]
		if h.Level.IsTerminal() || p.inflight[id] || id == e.activeID {
			continue
		}
		return id, true
	}
	return "", false
}

// CanAdvance reports whether the target's active hypothesis has a next move:
// a ladder step for live levels, a mutation or rotation for dead ones. When
// this is false for every target, the search has nothing left to do.
func (p *Portfolio) CanAdvance(targetID string, reg *mutation.Registry) bool {
	e, ok := p.entries[targetID]
	if !ok {
		return false
	}
	h, ok := p.ActiveHypothesis(targetID)
	if !ok {
		return false
	}
	if p.inflight[h.ID] || h.Level == hypothesis.LevelPromoted {
		return false
	}
	if !h.Level.IsTerminal() {
		return true
	}
	if reg != nil {
		for _, id := range reg.ApplicableIDs(h) {
			op, ok := reg.Get(id)
			if !ok {
				continue
			}
			if op.Kind == mutation.KindFusion {
				// Fusion needs a partner route to fuse with.
				if _, ok := p.fusionPartner(h); ok {
					return true
				}
				continue
			}
			return true
		}
	}
	_, ok = p.nextRotation(e)
	return ok
}

// AttemptedOperators returns the operator ids tried anywhere in the
// target's tree.
func (p *Portfolio) AttemptedOperators(targetID string) map[string]bool {
	e, ok := p.entries[targetID]
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(e.attempted))
	for id := range e.attempted {
		out[id] = true
	}
	return out
}

// ExhaustionEligible reports whether a target may be classified exhausted:
// all diversity flags set and every registry operator attempted at least
// once in its tree. The decision engine adds the no-pending-stall guard.
func (p *Portfolio) ExhaustionEligible(targetID string, reg *mutation.Registry) bool {
	e, ok := p.entries[targetID]
	if !ok {
		return false
	}
	if e.target.Status != hypothesis.TargetOpen {
		return true // promoted or already exhausted targets don't block
	}
	if !e.coverage.Complete() {
		return false
	}
	for _, id := range reg.IDs() {
		if !e.attempted[id] {
			return false
		}
	}
	return true
}

// MarkExhausted flips an open target to exhausted.
func (p *Portfolio) MarkExhausted(targetID string) error {
	e, ok := p.entries[targetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}
	if e.target.Status == hypothesis.TargetOpen {
		e.target.Status = hypothesis.TargetExhausted
	}
	return nil
}

// Reopen flips exhausted targets back to open after a model change (new
// findings arrived).
func (p *Portfolio) Reopen() {
	for _, e := range p.entries {
		if e.target.Status == hypothesis.TargetExhausted {
			e.target.Status = hypothesis.TargetOpen
		}
	}
}

// PromotedHypothesis returns the winning hypothesis, if any target promoted.
func (p *Portfolio) PromotedHypothesis() (hypothesis.Hypothesis, bool) {
	for _, id := range p.order {
		e := p.entries[id]
		for _, hid := range e.order {
			if h := e.byID[hid]; h.Level == hypothesis.LevelPromoted {
				return h, true
			}
		}
	}
	return hypothesis.Hypothesis{}, false
}

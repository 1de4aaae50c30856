package portfolio

import (
	"sort"

	"github.com/inquestlabs/inquest/domain/hypothesis"
)

// TargetSnapshot is the serializable form of one target's tree.
type TargetSnapshot struct {
	Target     hypothesis.TargetState  `json:"target"`
	Hypotheses []hypothesis.Hypothesis `json:"hypotheses"`
	ActiveID   string                  `json:"active_id,omitempty"`
	Coverage   Coverage                `json:"coverage"`
	Attempted  []string                `json:"attempted_operators,omitempty"`
}

// Snapshot is the serializable form of the whole portfolio. Outstanding
// probes are deliberately absent: a restored investigation re-dispatches
// them rather than trusting stale in-flight state.
type Snapshot struct {
	Targets      []TargetSnapshot `json:"targets"`
	ActiveTarget string           `json:"active_target,omitempty"`
}

// Snapshot captures the portfolio for checkpointing.
func (p *Portfolio) Snapshot() Snapshot {
	snap := Snapshot{ActiveTarget: p.activeID}
	for _, id := range p.order {
		e := p.entries[id]
		ts := TargetSnapshot{
			Target:   e.target,
			ActiveID: e.activeID,
			Coverage: e.coverage,
		}
		for _, hid := range e.order {
			ts.Hypotheses = append(ts.Hypotheses, e.byID[hid])
		}
		for op := range e.attempted {
			ts.Attempted = append(ts.Attempted, op)
		}
		sort.Strings(ts.Attempted)
		snap.Targets = append(snap.Targets, ts)
	}
	return snap
}

// FromSnapshot rebuilds a portfolio from a checkpoint.
func FromSnapshot(snap Snapshot) *Portfolio {
	p := New()
	for _, ts := range snap.Targets {
		_ = p.AddTarget(ts.Target)
		e := p.entries[ts.Target.ID]
		for _, h := range ts.Hypotheses {
			e.byID[h.ID] = h
			e.order = append(e.order, h.ID)
		}
		e.activeID = ts.ActiveID
		e.coverage = ts.Coverage
		for _, op := range ts.Attempted {
			e.attempted[op] = true
		}
	}
	if snap.ActiveTarget != "" {
		p.activeID = snap.ActiveTarget
	}
	return p
}

package orchestrator

// DefaultStallThreshold is the number of consecutive ticks without an
// evidence upgrade anywhere in the portfolio before escalation.
const DefaultStallThreshold = 5

// EscapeKind enumerates the escapes a stall constraint permits. The decision
// engine must take exactly one of them on its next selection.
type EscapeKind string

const (
	EscapeSwitchTarget EscapeKind = "switch_target"
	EscapeInjectTarget EscapeKind = "inject_target"
	EscapeForceFusion  EscapeKind = "force_fusion"
)

// Constraint is what the stall controller returns on escalation: not an
// action, a restriction on the next selection.
type Constraint struct {
	Options  []EscapeKind `json:"options"`
	RaisedAt uint64       `json:"raised_at"`
}

// Stall tracks ticks since the last evidence upgrade across the portfolio
// and escalates at a threshold. It is embedded in State so it checkpoints
// with everything else.
type Stall struct {
	Threshold int         `json:"threshold"`
	Counter   int         `json:"counter"`
	Pending   *Constraint `json:"pending,omitempty"`
}

// NewStall creates a controller with the given threshold (<=0 uses the
// default).
func NewStall(threshold int) Stall {
	if threshold <= 0 {
		threshold = DefaultStallThreshold
	}
	return Stall{Threshold: threshold}
}

// Observe advances the controller by one tick. Any upgrade anywhere resets
// the counter; otherwise it increments by exactly one. Reaching the
// threshold raises a constraint and resets the counter.
func (st *Stall) Observe(upgraded bool, iteration uint64) {
	if upgraded {
		st.Counter = 0
		return
	}
	st.Counter++
	if st.Counter >= st.Threshold && st.Pending == nil {
		st.Pending = &Constraint{
			Options:  []EscapeKind{EscapeSwitchTarget, EscapeInjectTarget, EscapeForceFusion},
			RaisedAt: iteration,
		}
		st.Counter = 0
	}
}

// Consume clears the pending constraint once the engine honored it.
func (st *Stall) Consume() {
	st.Pending = nil
}

// Package orchestrator is the decision layer of the investigation engine:
// the global state, the ordered rule table, the stall escalation policy, and
// the single-writer tick loop that drives everything.
package orchestrator

import (
	"time"

	"github.com/inquestlabs/inquest/domain/convergence"
	"github.com/inquestlabs/inquest/domain/finding"
	"github.com/inquestlabs/inquest/domain/portfolio"
	"github.com/inquestlabs/inquest/domain/probe"
)

// Phase is the investigation-level state.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseActive       Phase = "active"
	PhasePromoted     Phase = "promoted"
	// PhaseExhausted is the checkpoint-exhausted phase. Not terminal in the
	// strict sense: new findings re-enter Active.
	PhaseExhausted Phase = "checkpoint_exhausted"
)

// IsTerminal reports whether the phase ends the loop. Only promotion does;
// exhaustion waits for model changes.
func (p Phase) IsTerminal() bool { return p == PhasePromoted }

// TrailKind classifies audit trail entries.
type TrailKind string

const (
	TrailDecision   TrailKind = "decision"
	TrailTransition TrailKind = "transition"
	TrailProbe      TrailKind = "probe"
	TrailStall      TrailKind = "stall"
	TrailCheckpoint TrailKind = "checkpoint"
	TrailReport     TrailKind = "report"
	TrailDiagnostic TrailKind = "diagnostic"
)

// TrailEvent is one append-only audit record.
type TrailEvent struct {
	Iteration uint64    `json:"iteration"`
	Kind      TrailKind `json:"kind"`
	Detail    string    `json:"detail"`
	At        time.Time `json:"at"`
}

// MutationRecord is one entry of the mutation history.
type MutationRecord struct {
	Iteration  uint64 `json:"iteration"`
	ParentID   string `json:"parent_id"`
	ChildID    string `json:"child_id"`
	OperatorID string `json:"operator_id"`
}

// State is the global mutable state of one investigation. Single-writer: all
// mutation happens inside the orchestrator's tick loop, and it is the only
// unit that is checkpointed.
type State struct {
	Phase     Phase
	Iteration uint64

	Portfolio *portfolio.Portfolio
	Findings  *finding.Store

	Stall Stall

	// Gates holds the latest gating report; nil means not yet fetched for
	// the current investment window.
	Gates         *probe.GateReport
	GateIteration uint64

	// Ranking is the convergence ranking recomputed from the finding
	// snapshot at tick start. Derived, never checkpointed as truth.
	Ranking convergence.Ranking

	// RetryCounts tracks probe execution retries per hypothesis id.
	RetryCounts map[string]int

	MutationHistory []MutationRecord
	Trail           []TrailEvent
	Unknowns        []string

	// PrereqsVerified flips once the external collaborators answered.
	PrereqsVerified bool

	// ExhaustedAtSeq is the finding sequence captured when entering the
	// exhausted phase; a higher store sequence re-opens the search.
	ExhaustedAtSeq uint64

	// HaltedError is set when the loop aborted on a prerequisite or
	// invariant failure. Status reporting must never present this as a
	// benign conclusion.
	HaltedError string
}

// NewState creates an initializing state with empty stores.
func NewState() *State {
	return &State{
		Phase:       PhaseInitializing,
		Portfolio:   portfolio.New(),
		Findings:    finding.NewStore(),
		RetryCounts: make(map[string]int),
	}
}

// Record appends a trail event at the current iteration.
func (s *State) Record(kind TrailKind, detail string) {
	s.Trail = append(s.Trail, TrailEvent{
		Iteration: s.Iteration,
		Kind:      kind,
		Detail:    detail,
		At:        time.Now(),
	})
}

// RecordUnknown appends to the unknowns ledger.
func (s *State) RecordUnknown(question string) {
	s.Unknowns = append(s.Unknowns, question)
}

// GatesFresh reports whether a gating report exists and was fetched within
// ttl ticks of the current iteration.
func (s *State) GatesFresh(ttl uint64) bool {
	if s.Gates == nil {
		return false
	}
	return s.Iteration-s.GateIteration <= ttl
}

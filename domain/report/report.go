// Package report defines the structured records the engine emits at its two
// exits: a promoted capability claim, or an exhaustively-checkpointed
// search. There is no "safe" report.
package report

import (
	"context"
	"time"
)

// Kind classifies a report.
type Kind string

const (
	// KindPromoted is emitted the moment a hypothesis reaches promotion.
	KindPromoted Kind = "promoted"

	// KindExhausted is emitted on an exhaustion checkpoint: every diversity
	// flag set, every operator attempted, nothing pending. It never claims
	// safety; it states what was searched and what to mutate next.
	KindExhausted Kind = "exhausted"
)

// EvidenceChain links a report back to the raw material behind it.
type EvidenceChain struct {
	FindingIDs   []string `json:"finding_ids,omitempty"`
	ArtifactRefs []string `json:"artifact_refs,omitempty"`
}

// Report is the structured record emitted at an exit.
type Report struct {
	Kind Kind `json:"kind"`

	// Capability is the promoted claim statement. Present only on promotion.
	Capability string `json:"capability,omitempty"`

	TargetStateID string `json:"target_state_id,omitempty"`

	// Lineage is the winning hypothesis chain, root first.
	Lineage []string `json:"lineage,omitempty"`

	Evidence EvidenceChain `json:"evidence"`

	MeasuredDelta float64 `json:"measured_delta,omitempty"`

	// NextMutations is the planned mutation queue, present on exhaustion so
	// a resumed investigation knows where to pick up.
	NextMutations []string `json:"next_mutations,omitempty"`

	// Unknowns carries the open questions recorded during the run.
	Unknowns []string `json:"unknowns,omitempty"`

	Iteration   uint64    `json:"iteration"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Emitter delivers reports to the outside world. Rendering is out of scope;
// implementations may write JSON, markdown, or push to a queue.
type Emitter interface {
	Emit(ctx context.Context, r Report) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, r Report) error

// Emit calls the function.
func (f EmitterFunc) Emit(ctx context.Context, r Report) error { return f(ctx, r) }

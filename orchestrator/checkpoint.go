package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inquestlabs/inquest/domain/finding"
	"github.com/inquestlabs/inquest/domain/portfolio"
)

// SnapshotVersion identifies the checkpoint envelope format.
const SnapshotVersion = "inquest.checkpoint/v1"

// Checkpoint errors.
var (
	ErrUnknownSnapshotVersion = errors.New("unknown checkpoint version")
	ErrCheckpointNotFound     = errors.New("checkpoint not found")
)

// CheckpointStore persists opaque checkpoint blobs. The orchestrator owns
// serialization and the content-addressed ref; stores only move bytes.
type CheckpointStore interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
	// SetLatest/Latest track the resume head.
	SetLatest(ctx context.Context, ref string) error
	Latest(ctx context.Context) (string, error)
}

// Snapshot is the versioned, self-describing checkpoint payload: everything
// needed to resume the investigation on a fresh process.
type Snapshot struct {
	Version   string `json:"version"`
	Phase     Phase  `json:"phase"`
	Iteration uint64 `json:"iteration"`

	Portfolio portfolio.Snapshot `json:"portfolio"`
	Findings  []finding.Finding  `json:"findings"`

	Stall           Stall            `json:"stall"`
	MutationHistory []MutationRecord `json:"mutation_history,omitempty"`
	Trail           []TrailEvent     `json:"trail,omitempty"`
	Unknowns        []string         `json:"unknowns,omitempty"`
	RetryCounts     map[string]int   `json:"retry_counts,omitempty"`
	PrereqsVerified bool             `json:"prereqs_verified"`
	ExhaustedAtSeq  uint64           `json:"exhausted_at_seq,omitempty"`

	TakenAt time.Time `json:"taken_at"`
}

// Capture snapshots the state between ticks. Never call mid-transition; the
// tick loop guarantees that.
func Capture(s *State) Snapshot {
	return Snapshot{
		Version:         SnapshotVersion,
		Phase:           s.Phase,
		Iteration:       s.Iteration,
		Portfolio:       s.Portfolio.Snapshot(),
		Findings:        s.Findings.Snapshot(),
		Stall:           s.Stall,
		MutationHistory: s.MutationHistory,
		Trail:           s.Trail,
		Unknowns:        s.Unknowns,
		RetryCounts:     s.RetryCounts,
		PrereqsVerified: s.PrereqsVerified,
		ExhaustedAtSeq:  s.ExhaustedAtSeq,
		TakenAt:         time.Now(),
	}
}

// Restore rebuilds a State from a snapshot.
func Restore(snap Snapshot) (*State, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSnapshotVersion, snap.Version)
	}
	s := NewState()
	s.Phase = snap.Phase
	s.Iteration = snap.Iteration
	s.Portfolio = portfolio.FromSnapshot(snap.Portfolio)
	s.Findings.Restore(snap.Findings)
	s.Stall = snap.Stall
	s.MutationHistory = snap.MutationHistory
	s.Trail = snap.Trail
	s.Unknowns = snap.Unknowns
	if snap.RetryCounts != nil {
		s.RetryCounts = snap.RetryCounts
	}
	s.PrereqsVerified = snap.PrereqsVerified
	s.ExhaustedAtSeq = snap.ExhaustedAtSeq
	return s, nil
}

// Encode serializes a snapshot and returns its content-addressed ref: the
// hex sha256 of the canonical JSON payload. Saving the decoded form of a ref
// yields the same ref.
func Encode(snap Snapshot) (ref string, data []byte, err error) {
	data, err = json.Marshal(snap)
	if err != nil {
		return "", nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), data, nil
}

// Decode parses a checkpoint payload.
func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownSnapshotVersion, snap.Version)
	}
	return snap, nil
}

// Package probe defines the ports to the external falsification machinery:
// the probe executor that runs a hypothesis test against an environment
// anchor, and the gating check provider queried before probe investment.
package probe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// Anchor identifies the environment snapshot a probe runs against.
type Anchor string

const (
	// AnchorDev is the pinned development snapshot used for falsification.
	AnchorDev Anchor = "dev"

	// AnchorPromotion is the fresh snapshot required for promotion.
	AnchorPromotion Anchor = "promotion"
)

// IsValid returns true if the anchor is recognized.
func (a Anchor) IsValid() bool {
	return a == AnchorDev || a == AnchorPromotion
}

// Status is the outcome class of a probe execution.
type Status string

const (
	StatusPass  Status = "pass"  // Probe ran and the predicted delta occurred
	StatusFail  Status = "fail"  // Probe ran and the prediction did not hold
	StatusError Status = "error" // Probe could not be executed
)

// Request describes one probe execution.
type Request struct {
	HypothesisID string          `json:"hypothesis_id"`
	Anchor       Anchor          `json:"anchor"`
	Spec         json.RawMessage `json:"spec"`
}

// SpecHash returns a stable content hash for cache keying.
func (r Request) SpecHash() string {
	sum := sha256.Sum256(append([]byte(r.HypothesisID+"/"+string(r.Anchor)+"/"), r.Spec...))
	return hex.EncodeToString(sum[:])
}

// Result is the outcome of one probe execution.
type Result struct {
	HypothesisID  string  `json:"hypothesis_id"`
	Anchor        Anchor  `json:"anchor"`
	Status        Status  `json:"status"`
	MeasuredDelta float64 `json:"measured_delta"`
	ArtifactRef   string  `json:"artifact_ref,omitempty"`
	Diagnostic    string  `json:"diagnostic,omitempty"`
}

// Executor runs probes. Implementations must be safe for concurrent calls
// with distinct hypothesis ids.
type Executor interface {
	RunProbe(ctx context.Context, req Request) (Result, error)
}

// GateReport is the answer from the gating check provider.
type GateReport struct {
	Live    bool     `json:"live"`
	Reasons []string `json:"reasons,omitempty"`
}

// GateChecker answers whether the target system is live for probe
// investment. Queried before any probe and again before promotion.
type GateChecker interface {
	CheckGates(ctx context.Context, targetSystemRef string) (GateReport, error)
}

// Transport-class errors are retryable; logical outcomes never are.
var (
	// ErrTransport indicates the probe machinery itself failed. Retryable.
	ErrTransport = errors.New("probe transport failure")

	// ErrCancelled indicates the probe was cancelled, usually on timeout.
	// Yields an Unknown evidence level, never a disproof.
	ErrCancelled = errors.New("probe cancelled")
)

// Retryable reports whether an executor error may be retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

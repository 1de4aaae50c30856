// Package finding provides the append-only log of normalized observations
// produced by external analyzer lenses.
package finding

import (
	"encoding/json"
	"time"
)

// Scores carries the injected per-finding judgment axes. The engine never
// computes these; it only aggregates them (see domain/convergence).
type Scores struct {
	ValueImpact float64 `json:"value_impact"`
	Complexity  float64 `json:"complexity"`
	Novelty     float64 `json:"novelty"`
}

// Finding is a normalized observation from one analyzer lens about a region
// of the target system. Immutable once appended.
type Finding struct {
	// ID is the caller-supplied identifier; appends are idempotent on it.
	ID string `json:"id"`

	// LensID names the analyzer that produced the observation.
	LensID string `json:"lens_id"`

	// RegionKeys are the explicit match keys: function ids, storage or
	// value-equation ids, and call-chain-adjacency keys precomputed by the
	// analyzer. Two findings sharing any key describe the same region.
	RegionKeys []string `json:"region_keys"`

	// SeveritySignal is the lens's own severity hint, uninterpreted here.
	SeveritySignal string `json:"severity_signal,omitempty"`

	Scores Scores `json:"scores"`

	Payload json.RawMessage `json:"payload,omitempty"`

	// Sequence is assigned by the store at append time.
	Sequence uint64 `json:"sequence"`

	ReceivedAt time.Time `json:"received_at"`
}

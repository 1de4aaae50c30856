package hypothesis

import "time"

// TargetStatus is the lifecycle status of a target state.
type TargetStatus string

const (
	TargetOpen      TargetStatus = "open"
	TargetPromoted  TargetStatus = "promoted"
	TargetExhausted TargetStatus = "exhausted"
)

// TargetState names an invariant negation under investigation: "a normal
// actor can force bad state X". The id and description are fixed at creation;
// only the status moves.
type TargetState struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Status      TargetStatus `json:"status"`

	// RegionClassID links a mined target back to the convergence point that
	// suggested it, when there is one.
	RegionClassID string `json:"region_class_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewTargetState creates an open target state.
func NewTargetState(id, description string) TargetState {
	return TargetState{
		ID:          id,
		Description: description,
		Status:      TargetOpen,
		CreatedAt:   time.Now(),
	}
}

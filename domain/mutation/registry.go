package mutation

import (
	"errors"

	"github.com/inquestlabs/inquest/domain/hypothesis"
)

// Registry errors.
var (
	ErrOperatorNotFound = errors.New("mutation operator not found")
	ErrNoneApplicable   = errors.New("no untried mutation operator applicable")
	ErrDuplicateID      = errors.New("duplicate mutation operator id")
)

// Registry is a static, ordered catalog of operators loaded at startup.
type Registry struct {
	order []string
	byID  map[string]Operator
}

// NewRegistry builds a registry from the given operators, preserving order.
func NewRegistry(ops []Operator) (*Registry, error) {
	r := &Registry{byID: make(map[string]Operator, len(ops))}
	for _, op := range ops {
		if _, exists := r.byID[op.ID]; exists {
			return nil, errors.Join(ErrDuplicateID, errors.New(op.ID))
		}
		r.byID[op.ID] = op
		r.order = append(r.order, op.ID)
	}
	return r, nil
}

// NewBuiltinRegistry builds a registry with the builtin catalog.
func NewBuiltinRegistry() *Registry {
	r, err := NewRegistry(Builtin())
	if err != nil {
		// Builtin ids are compile-time constants; a collision is a bug.
		panic(err)
	}
	return r
}

// Get returns the operator with the given id.
func (r *Registry) Get(id string) (Operator, bool) {
	op, ok := r.byID[id]
	return op, ok
}

// IDs returns operator ids in selection order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered operators.
func (r *Registry) Len() int { return len(r.order) }

// SelectNext returns the first operator in registry order whose precondition
// holds for the parent and that is absent from the parent's applied set.
// Returns ErrNoneApplicable when the catalog is spent for this lineage; the
// caller must rotate instead.
func (r *Registry) SelectNext(parent hypothesis.Hypothesis) (Operator, error) {
	for _, id := range r.order {
		op := r.byID[id]
		if parent.HasMutation(id) {
			continue
		}
		if op.Precondition != nil && !op.Precondition(parent) {
			continue
		}
		return op, nil
	}
	return Operator{}, ErrNoneApplicable
}

// ApplicableIDs returns the ids of operators applicable to the parent that
// have not yet been applied, in selection order.
func (r *Registry) ApplicableIDs(parent hypothesis.Hypothesis) []string {
	var ids []string
	for _, id := range r.order {
		op := r.byID[id]
		if parent.HasMutation(id) {
			continue
		}
		if op.Precondition != nil && !op.Precondition(parent) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

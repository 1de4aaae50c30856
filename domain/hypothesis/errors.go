package hypothesis

import "errors"

// Domain errors for the hypothesis model.
var (
	// ErrIllegalTransition indicates an evidence ladder transition was
	// attempted out of order. This is a programming-contract failure and is
	// never recovered silently.
	ErrIllegalTransition = errors.New("illegal evidence transition")

	// ErrHypothesisTerminal indicates an operation was attempted on a
	// hypothesis whose evidence level is terminal.
	ErrHypothesisTerminal = errors.New("hypothesis already terminal")

	// ErrDuplicateMutation indicates the same mutation operator was applied
	// to a hypothesis twice.
	ErrDuplicateMutation = errors.New("duplicate mutation operator")

	// ErrGatesNotLive indicates the gating check did not pass.
	ErrGatesNotLive = errors.New("gating check not live")

	// ErrWrongAnchor indicates a promotion was attempted from a probe that
	// did not run against the promotion anchor.
	ErrWrongAnchor = errors.New("probe did not run against promotion anchor")
)

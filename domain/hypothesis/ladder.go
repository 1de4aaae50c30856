package hypothesis

import (
	"fmt"

	"github.com/inquestlabs/inquest/domain/probe"
)

// The evidence ladder. Transitions are monotonic forward (E0→E1→E2→E3);
// Disproved and Blocked may be reached from any non-promoted level. Every
// transition is a pure function of (current level, input) and returns a new
// hypothesis value.

// Observe advances E0→E1. It requires a live gating report: observing a
// route on a dead target proves nothing.
func Observe(h Hypothesis, gates probe.GateReport) (Hypothesis, error) {
	if h.Level != LevelModeled {
		return h, fmt.Errorf("%w: observe on %s (level %s)", ErrIllegalTransition, h.ID, h.Level)
	}
	if !gates.Live {
		out := h
		out.Level = LevelBlocked
		out.WhatKilledIt = blockReason(gates)
		return out, nil
	}
	out := h
	out.Level = LevelObserved
	return out, nil
}

// Falsify applies a dev-anchor probe result to an E1 hypothesis.
//
//	pass  → E2, delta and artifact recorded
//	fail  → Disproved, diagnostic recorded as what killed it
//	error → Unknown, eligible for retry; never conflated with disproof
func Falsify(h Hypothesis, res probe.Result) (Hypothesis, error) {
	if h.Level != LevelObserved {
		return h, fmt.Errorf("%w: falsify on %s (level %s)", ErrIllegalTransition, h.ID, h.Level)
	}
	out := h
	switch res.Status {
	case probe.StatusPass:
		out.Level = LevelFalsified
		out.MeasuredDelta = res.MeasuredDelta
		if res.ArtifactRef != "" {
			out.ArtifactRefs = append(out.ArtifactRefs, res.ArtifactRef)
		}
	case probe.StatusFail:
		out.Level = LevelDisproved
		out.WhatKilledIt = res.Diagnostic
		if res.ArtifactRef != "" {
			out.ArtifactRefs = append(out.ArtifactRefs, res.ArtifactRef)
		}
	case probe.StatusError:
		out.Level = LevelUnknown
	default:
		return h, fmt.Errorf("%w: unrecognized probe status %q", ErrIllegalTransition, res.Status)
	}
	return out, nil
}

// Reobserve returns an Unknown hypothesis to E1 for a retry. Unknown is the
// only non-ladder level that may re-enter the ladder.
func Reobserve(h Hypothesis) (Hypothesis, error) {
	if h.Level != LevelUnknown {
		return h, fmt.Errorf("%w: reobserve on %s (level %s)", ErrIllegalTransition, h.ID, h.Level)
	}
	out := h
	out.Level = LevelObserved
	return out, nil
}

// Block marks a hypothesis Blocked with a reason. Promoted hypotheses cannot
// be blocked.
func Block(h Hypothesis, reason string) (Hypothesis, error) {
	if h.Level == LevelPromoted {
		return h, fmt.Errorf("%w: block on promoted %s", ErrIllegalTransition, h.ID)
	}
	out := h
	out.Level = LevelBlocked
	out.WhatKilledIt = reason
	return out, nil
}

// Promote advances E2→E3. The probe must have run against the promotion
// anchor with a pass status, and the gate re-check must be live. Anything
// else leaves the hypothesis untouched and returns a diagnostic error the
// caller records; a failed promotion probe is a disproof like any other.
func Promote(h Hypothesis, res probe.Result, gates probe.GateReport) (Hypothesis, error) {
	if h.Level != LevelFalsified {
		return h, fmt.Errorf("%w: promote on %s (level %s)", ErrIllegalTransition, h.ID, h.Level)
	}
	if res.Anchor != probe.AnchorPromotion {
		return h, fmt.Errorf("%w: got %q", ErrWrongAnchor, res.Anchor)
	}
	if !gates.Live {
		return h, fmt.Errorf("%w: %s", ErrGatesNotLive, blockReason(gates))
	}
	out := h
	switch res.Status {
	case probe.StatusPass:
		out.Level = LevelPromoted
		out.MeasuredDelta = res.MeasuredDelta
		if res.ArtifactRef != "" {
			out.ArtifactRefs = append(out.ArtifactRefs, res.ArtifactRef)
		}
	case probe.StatusFail:
		out.Level = LevelDisproved
		out.WhatKilledIt = "promotion probe failed: " + res.Diagnostic
	case probe.StatusError:
		// Execution failure must not demote hard-won E2 evidence. The
		// hypothesis stays falsified; the caller counts the retry.
		return h, nil
	default:
		return h, fmt.Errorf("%w: unrecognized probe status %q", ErrIllegalTransition, res.Status)
	}
	return out, nil
}

func blockReason(gates probe.GateReport) string {
	if len(gates.Reasons) == 0 {
		return "gates not live"
	}
	reason := gates.Reasons[0]
	for _, r := range gates.Reasons[1:] {
		reason += "; " + r
	}
	return reason
}

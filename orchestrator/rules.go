package orchestrator

import "github.com/inquestlabs/inquest/domain/mutation"

// ActionKind names the single action a tick executes.
type ActionKind string

const (
	ActionVerifyPrereqs   ActionKind = "verify_prerequisites"
	ActionRefreshGates    ActionKind = "refresh_gates"
	ActionExpandCoverage  ActionKind = "expand_coverage"
	ActionAdvanceEvidence ActionKind = "advance_evidence"
	ActionSatisfyStall    ActionKind = "satisfy_stall"
	ActionExhaustionStop  ActionKind = "exhaustion_checkpoint"
)

// Rule is one row of the decision table: a predicate over the global state
// and the action taken when it is the first to hold.
type Rule struct {
	Name   string
	When   func(*State, *mutation.Registry) bool
	Action ActionKind
}

// gateTTL is how many ticks a gating report stays fresh.
const gateTTL = 10

// DefaultRules returns the ordered decision table. Evaluation is strictly
// top-to-bottom, first match wins, one action per tick. The table is data so
// each row is testable by constructing a state satisfying exactly one
// predicate.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "prerequisites-missing",
			When: func(s *State, _ *mutation.Registry) bool {
				return !s.PrereqsVerified
			},
			Action: ActionVerifyPrereqs,
		},
		{
			Name: "gating-data-missing",
			When: func(s *State, _ *mutation.Registry) bool {
				return !s.GatesFresh(gateTTL)
			},
			Action: ActionRefreshGates,
		},
		{
			Name: "coverage-below-minimum",
			When: func(s *State, _ *mutation.Registry) bool {
				return len(s.Portfolio.BelowMinimum()) > 0
			},
			Action: ActionExpandCoverage,
		},
		{
			Name: "evidence-advancement-due",
			When: func(s *State, reg *mutation.Registry) bool {
				// A pending stall constraint suspends normal advancement:
				// the controller's escape must be taken first.
				if s.Stall.Pending != nil {
					return false
				}
				target, ok := s.Portfolio.ActiveTarget()
				if !ok {
					return false
				}
				// Due means there is an actual next move: a ladder step, a
				// mutation, or a rotation. A hypothesis waiting on a probe,
				// or a dead one with a spent catalog, is not due.
				return s.Portfolio.CanAdvance(target.ID, reg)
			},
			Action: ActionAdvanceEvidence,
		},
		{
			Name: "stall-constraint-pending",
			When: func(s *State, _ *mutation.Registry) bool {
				return s.Stall.Pending != nil
			},
			Action: ActionSatisfyStall,
		},
		{
			Name: "exhaustion-checkpoint-eligible",
			When: func(s *State, reg *mutation.Registry) bool {
				if s.Stall.Pending != nil {
					return false
				}
				if s.Portfolio.InFlightCount() > 0 {
					return false
				}
				targets := s.Portfolio.Targets()
				if len(targets) == 0 {
					return false
				}
				for _, t := range targets {
					if !s.Portfolio.ExhaustionEligible(t.ID, reg) {
						return false
					}
				}
				return true
			},
			Action: ActionExhaustionStop,
		},
	}
}

// Decide evaluates the table and returns the first satisfied rule. A false
// second return means an idle tick: nothing due, waiting on probe results or
// new findings.
func Decide(rules []Rule, s *State, reg *mutation.Registry) (Rule, bool) {
	for _, r := range rules {
		if r.When(s, reg) {
			return r, true
		}
	}
	return Rule{}, false
}

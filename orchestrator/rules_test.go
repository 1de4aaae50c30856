package orchestrator

import (
	"testing"

	"github.com/inquestlabs/inquest/domain/hypothesis"
	"github.com/inquestlabs/inquest/domain/mutation"
	"github.com/inquestlabs/inquest/domain/probe"
)

// coveredState builds a state that satisfies every rule predicate up to
// evidence advancement: prerequisites verified, fresh live gates, one target
// at the coverage floor.
func coveredState(t *testing.T) *State {
	t.Helper()
	s := NewState()
	s.PrereqsVerified = true
	s.Gates = &probe.GateReport{Live: true}

	if err := s.Portfolio.AddTarget(hypothesis.NewTargetState("ts-1", "forced balance drift")); err != nil {
		t.Fatalf("AddTarget() error = %v", err)
	}
	err := s.Portfolio.Seed("ts-1",
		hypothesis.New("h-1", "ts-1", "direct route", hypothesis.ShapeSimple),
		hypothesis.New("h-2", "ts-1", "fused route", hypothesis.ShapeFusion),
		hypothesis.New("h-3", "ts-1", "boundary route", hypothesis.ShapeCrossBoundary),
	)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	return s
}

func decide(t *testing.T, s *State, reg *mutation.Registry) (Rule, bool) {
	t.Helper()
	return Decide(DefaultRules(), s, reg)
}

func TestDecidePrerequisitesFirst(t *testing.T) {
	t.Parallel()

	s := NewState()
	rule, ok := decide(t, s, mutation.NewBuiltinRegistry())
	if !ok || rule.Name != "prerequisites-missing" {
		t.Errorf("Decide() = %q, want prerequisites-missing", rule.Name)
	}
}

func TestDecideGatingDataMissing(t *testing.T) {
	t.Parallel()

	t.Run("never fetched", func(t *testing.T) {
		t.Parallel()
		s := coveredState(t)
		s.Gates = nil
		rule, ok := decide(t, s, mutation.NewBuiltinRegistry())
		if !ok || rule.Name != "gating-data-missing" {
			t.Errorf("Decide() = %q, want gating-data-missing", rule.Name)
		}
	})

	t.Run("stale report", func(t *testing.T) {
		t.Parallel()
		s := coveredState(t)
		s.GateIteration = 0
		s.Iteration = gateTTL + 1
		rule, ok := decide(t, s, mutation.NewBuiltinRegistry())
		if !ok || rule.Name != "gating-data-missing" {
			t.Errorf("Decide() = %q, want gating-data-missing", rule.Name)
		}
	})
}

func TestDecideCoverageBelowMinimum(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.PrereqsVerified = true
	s.Gates = &probe.GateReport{Live: true}
	if err := s.Portfolio.AddTarget(hypothesis.NewTargetState("ts-1", "forced balance drift")); err != nil {
		t.Fatalf("AddTarget() error = %v", err)
	}
	if err := s.Portfolio.Seed("ts-1", hypothesis.New("h-1", "ts-1", "direct route", hypothesis.ShapeSimple)); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	rule, ok := decide(t, s, mutation.NewBuiltinRegistry())
	if !ok || rule.Name != "coverage-below-minimum" {
		t.Errorf("Decide() = %q, want coverage-below-minimum", rule.Name)
	}
}

func TestDecideEvidenceAdvancementDue(t *testing.T) {
	t.Parallel()

	s := coveredState(t)
	rule, ok := decide(t, s, mutation.NewBuiltinRegistry())
	if !ok || rule.Name != "evidence-advancement-due" {
		t.Errorf("Decide() = %q, want evidence-advancement-due", rule.Name)
	}
}

func TestDecideStallSuspendsAdvancement(t *testing.T) {
	t.Parallel()

	s := coveredState(t)
	s.Stall.Pending = &Constraint{
		Options:  []EscapeKind{EscapeSwitchTarget, EscapeInjectTarget, EscapeForceFusion},
		RaisedAt: 3,
	}
	rule, ok := decide(t, s, mutation.NewBuiltinRegistry())
	if !ok || rule.Name != "stall-constraint-pending" {
		t.Errorf("Decide() = %q, want stall-constraint-pending (advancement must yield)", rule.Name)
	}
}

func TestDecideInFlightProbeIdles(t *testing.T) {
	t.Parallel()

	s := coveredState(t)
	if err := s.Portfolio.MarkInFlight("h-1"); err != nil {
		t.Fatalf("MarkInFlight() error = %v", err)
	}
	rule, ok := decide(t, s, mutation.NewBuiltinRegistry())
	if ok {
		t.Errorf("Decide() = %q, want idle tick while the active probe is outstanding", rule.Name)
	}
}

func TestDecideTerminalActiveWithSpentCatalogNotDue(t *testing.T) {
	t.Parallel()

	// Every hypothesis dead, no operators left: advancement must not claim
	// the tick, or exhaustion never fires.
	s := coveredState(t)
	reg, err := mutation.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	for _, h := range s.Portfolio.Hypotheses("ts-1") {
		h.Level = hypothesis.LevelDisproved
		if _, err := s.Portfolio.Update(h); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	rule, ok := decide(t, s, reg)
	if !ok || rule.Name != "exhaustion-checkpoint-eligible" {
		t.Errorf("Decide() = %q, want exhaustion-checkpoint-eligible", rule.Name)
	}
}

func TestDecideExhaustionBlockedByPendingWork(t *testing.T) {
	t.Parallel()

	s := coveredState(t)
	reg, err := mutation.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	for _, h := range s.Portfolio.Hypotheses("ts-1") {
		h.Level = hypothesis.LevelDisproved
		if _, err := s.Portfolio.Update(h); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	t.Run("pending stall", func(t *testing.T) {
		t.Parallel()
		st := coveredState(t)
		for _, h := range st.Portfolio.Hypotheses("ts-1") {
			h.Level = hypothesis.LevelDisproved
			if _, err := st.Portfolio.Update(h); err != nil {
				t.Fatalf("Update() error = %v", err)
			}
		}
		st.Stall.Pending = &Constraint{Options: []EscapeKind{EscapeForceFusion}}
		rule, ok := Decide(DefaultRules(), st, reg)
		if ok && rule.Name == "exhaustion-checkpoint-eligible" {
			t.Error("exhaustion fired with a pending stall constraint")
		}
	})

	t.Run("outstanding probe", func(t *testing.T) {
		t.Parallel()
		if err := s.Portfolio.MarkInFlight("h-2"); err != nil {
			t.Fatalf("MarkInFlight() error = %v", err)
		}
		rule, ok := Decide(DefaultRules(), s, reg)
		if ok && rule.Name == "exhaustion-checkpoint-eligible" {
			t.Error("exhaustion fired with an outstanding probe")
		}
	})
}

func TestDecideOrderIsStrict(t *testing.T) {
	t.Parallel()

	// A state satisfying several predicates takes the topmost rule only.
	s := coveredState(t)
	s.PrereqsVerified = false
	s.Gates = nil
	rule, ok := decide(t, s, mutation.NewBuiltinRegistry())
	if !ok || rule.Name != "prerequisites-missing" {
		t.Errorf("Decide() = %q, want prerequisites-missing (topmost match wins)", rule.Name)
	}
}

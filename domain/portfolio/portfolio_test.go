package portfolio_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/inquestlabs/inquest/domain/hypothesis"
	"github.com/inquestlabs/inquest/domain/mutation"
	"github.com/inquestlabs/inquest/domain/portfolio"
)

func seeded(t *testing.T) *portfolio.Portfolio {
	t.Helper()

	p := portfolio.New()
	if err := p.AddTarget(hypothesis.NewTargetState("x-1", "a normal actor can drain the vault")); err != nil {
		t.Fatalf("AddTarget() error = %v", err)
	}
	err := p.Seed("x-1",
		hypothesis.New("h-1", "x-1", "direct withdraw underflow", hypothesis.ShapeSimple),
		hypothesis.New("h-2", "x-1", "fee skim + rounding", hypothesis.ShapeSimple),
		hypothesis.New("h-3", "x-1", "oracle lag across modules", hypothesis.ShapeCrossBoundary),
	)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	return p
}

func TestSeedAndCoverage(t *testing.T) {
	t.Parallel()

	p := seeded(t)

	cov, ok := p.Coverage("x-1")
	if !ok {
		t.Fatal("Coverage() target missing")
	}
	if !cov.Simple || !cov.CrossBoundary {
		t.Errorf("coverage = %+v, want simple and cross-boundary set", cov)
	}
	if cov.Fusion {
		t.Error("fusion flag set before any fusion hypothesis")
	}
	if got := p.BelowMinimum(); len(got) != 0 {
		t.Errorf("BelowMinimum() = %v, want none with 3 seeded", got)
	}

	active, ok := p.ActiveHypothesis("x-1")
	if !ok || active.ID != "h-1" {
		t.Errorf("ActiveHypothesis() = %v, want h-1", active.ID)
	}
}

func TestBelowMinimum(t *testing.T) {
	t.Parallel()

	p := portfolio.New()
	_ = p.AddTarget(hypothesis.NewTargetState("x-1", "bad state"))
	_ = p.Seed("x-1", hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple))

	if got := p.BelowMinimum(); len(got) != 1 || got[0] != "x-1" {
		t.Errorf("BelowMinimum() = %v, want [x-1]", got)
	}
}

func TestMutateSelectsLowestUntried(t *testing.T) {
	t.Parallel()

	p := seeded(t)
	reg := mutation.NewBuiltinRegistry()

	child, err := p.Mutate("h-1", reg)
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if child.ParentID != "h-1" {
		t.Errorf("child.ParentID = %s, want h-1", child.ParentID)
	}
	if len(child.AppliedMutations) != 1 || child.AppliedMutations[0] != "measurement-shift" {
		t.Errorf("child.AppliedMutations = %v, want [measurement-shift]", child.AppliedMutations)
	}

	// The child becomes active and its operator is recorded for the target.
	active, _ := p.ActiveHypothesis("x-1")
	if active.ID != child.ID {
		t.Errorf("active = %s, want %s", active.ID, child.ID)
	}
	if !p.AttemptedOperators("x-1")["measurement-shift"] {
		t.Error("measurement-shift not recorded as attempted")
	}

	// Mutating the child picks the next operator, not a duplicate.
	grandchild, err := p.Mutate(child.ID, reg)
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if grandchild.HasMutation("measurement-shift") && grandchild.AppliedMutations[len(grandchild.AppliedMutations)-1] == "measurement-shift" {
		t.Error("duplicate operator applied to lineage")
	}
	if len(grandchild.AppliedMutations) != 2 {
		t.Errorf("grandchild.AppliedMutations = %v, want 2 entries", grandchild.AppliedMutations)
	}
}

func TestMutateRefusesInFlight(t *testing.T) {
	t.Parallel()

	p := seeded(t)
	reg := mutation.NewBuiltinRegistry()

	if err := p.MarkInFlight("h-1"); err != nil {
		t.Fatalf("MarkInFlight() error = %v", err)
	}
	if _, err := p.Mutate("h-1", reg); !errors.Is(err, portfolio.ErrProbeOutstanding) {
		t.Errorf("Mutate() error = %v, want ErrProbeOutstanding", err)
	}
}

func TestOneProbePerHypothesis(t *testing.T) {
	t.Parallel()

	p := seeded(t)
	if err := p.MarkInFlight("h-1"); err != nil {
		t.Fatalf("MarkInFlight() error = %v", err)
	}
	if err := p.MarkInFlight("h-1"); !errors.Is(err, portfolio.ErrProbeOutstanding) {
		t.Errorf("second MarkInFlight() error = %v, want ErrProbeOutstanding", err)
	}
	p.ClearInFlight("h-1")
	if err := p.MarkInFlight("h-1"); err != nil {
		t.Errorf("MarkInFlight() after clear error = %v", err)
	}
}

func TestRotate(t *testing.T) {
	t.Parallel()

	t.Run("advances to next live sibling", func(t *testing.T) {
		t.Parallel()

		p := seeded(t)
		next, err := p.Rotate("x-1")
		if err != nil {
			t.Fatalf("Rotate() error = %v", err)
		}
		if next != "h-2" {
			t.Errorf("Rotate() = %s, want h-2", next)
		}
	})

	t.Run("skips terminal siblings", func(t *testing.T) {
		t.Parallel()

		p := seeded(t)
		h2, _ := p.Hypothesis("h-2")
		h2.Level = hypothesis.LevelDisproved
		if _, err := p.Update(h2); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		next, err := p.Rotate("x-1")
		if err != nil {
			t.Fatalf("Rotate() error = %v", err)
		}
		if next != "h-3" {
			t.Errorf("Rotate() = %s, want h-3", next)
		}
	})

	t.Run("errors when nothing can rotate", func(t *testing.T) {
		t.Parallel()

		p := portfolio.New()
		_ = p.AddTarget(hypothesis.NewTargetState("x-1", "bad state"))
		_ = p.Seed("x-1", hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple))
		if _, err := p.Rotate("x-1"); !errors.Is(err, portfolio.ErrNoRotation) {
			t.Errorf("Rotate() error = %v, want ErrNoRotation", err)
		}
	})
}

func TestUpdateDetectsUpgrade(t *testing.T) {
	t.Parallel()

	p := seeded(t)

	h, _ := p.Hypothesis("h-1")
	h.Level = hypothesis.LevelObserved
	upgraded, err := p.Update(h)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !upgraded {
		t.Error("Update() modeled→observed should report an upgrade")
	}

	h.Level = hypothesis.LevelDisproved
	upgraded, err = p.Update(h)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if upgraded {
		t.Error("Update() observed→disproved must not report an upgrade")
	}
}

func TestPromotionFlipsTarget(t *testing.T) {
	t.Parallel()

	p := seeded(t)
	h, _ := p.Hypothesis("h-1")
	h.Level = hypothesis.LevelPromoted
	if _, err := p.Update(h); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	targets := p.Targets()
	if targets[0].Status != hypothesis.TargetPromoted {
		t.Errorf("target status = %s, want promoted", targets[0].Status)
	}
	winner, ok := p.PromotedHypothesis()
	if !ok || winner.ID != "h-1" {
		t.Errorf("PromotedHypothesis() = %v, %v; want h-1", winner.ID, ok)
	}
}

func TestExhaustionEligibility(t *testing.T) {
	t.Parallel()

	p := seeded(t)
	reg := mutation.NewBuiltinRegistry()

	if p.ExhaustionEligible("x-1", reg) {
		t.Error("fresh target must not be exhaustion-eligible")
	}

	// Walk one lineage through every operator.
	id := "h-1"
	for range reg.IDs() {
		child, err := p.Mutate(id, reg)
		if err != nil {
			break
		}
		id = child.ID
	}

	// Diversity flags: simple and cross-boundary came from seeding, fusion
	// from the fusion operator along the walk.
	cov, _ := p.Coverage("x-1")
	if !cov.Complete() {
		t.Fatalf("coverage = %+v, want complete after operator walk", cov)
	}
	if !p.ExhaustionEligible("x-1", reg) {
		attempted := p.AttemptedOperators("x-1")
		t.Errorf("target should be exhaustion-eligible; attempted = %v", attempted)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	p := seeded(t)
	reg := mutation.NewBuiltinRegistry()
	if _, err := p.Mutate("h-1", reg); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	snap := p.Snapshot()
	restored := portfolio.FromSnapshot(snap)

	if diff := cmp.Diff(snap, restored.Snapshot()); diff != "" {
		t.Errorf("snapshot round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSwitchAndNextOpenTarget(t *testing.T) {
	t.Parallel()

	p := seeded(t)
	_ = p.AddTarget(hypothesis.NewTargetState("x-2", "a keeper can wedge settlement"))

	next, ok := p.NextOpenTarget()
	if !ok || next != "x-2" {
		t.Fatalf("NextOpenTarget() = %s, %v; want x-2", next, ok)
	}
	if err := p.SwitchTarget(next); err != nil {
		t.Fatalf("SwitchTarget() error = %v", err)
	}
	active, _ := p.ActiveTarget()
	if active.ID != "x-2" {
		t.Errorf("ActiveTarget() = %s, want x-2", active.ID)
	}
}

package mutation_test

import (
	"errors"
	"testing"

	"github.com/inquestlabs/inquest/domain/hypothesis"
	"github.com/inquestlabs/inquest/domain/mutation"
)

func TestSelectNext(t *testing.T) {
	t.Parallel()

	reg := mutation.NewBuiltinRegistry()

	t.Run("selects first operator in catalog order", func(t *testing.T) {
		t.Parallel()

		h := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
		op, err := reg.SelectNext(h)
		if err != nil {
			t.Fatalf("SelectNext() error = %v", err)
		}
		if op.ID != "measurement-shift" {
			t.Errorf("SelectNext() = %s, want measurement-shift", op.ID)
		}
	})

	t.Run("skips applied operators", func(t *testing.T) {
		t.Parallel()

		h := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
		h.AppliedMutations = []string{"measurement-shift", "ordering-flip"}
		op, err := reg.SelectNext(h)
		if err != nil {
			t.Fatalf("SelectNext() error = %v", err)
		}
		if op.ID != "parameter-swap" {
			t.Errorf("SelectNext() = %s, want parameter-swap", op.ID)
		}
	})

	t.Run("skips failed preconditions", func(t *testing.T) {
		t.Parallel()

		h := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeCrossBoundary)
		h.AppliedMutations = reg.IDs()[:7] // everything except cross-boundary-widen
		_, err := reg.SelectNext(h)
		if !errors.Is(err, mutation.ErrNoneApplicable) {
			t.Errorf("SelectNext() error = %v, want ErrNoneApplicable (widen precondition must fail for cross-boundary shape)", err)
		}
	})

	t.Run("exhausted catalog requires rotation", func(t *testing.T) {
		t.Parallel()

		h := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
		h.AppliedMutations = reg.IDs()
		if _, err := reg.SelectNext(h); !errors.Is(err, mutation.ErrNoneApplicable) {
			t.Errorf("SelectNext() error = %v, want ErrNoneApplicable", err)
		}
	})
}

func TestApplyIsPure(t *testing.T) {
	t.Parallel()

	reg := mutation.NewBuiltinRegistry()
	parent := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)

	op, err := reg.SelectNext(parent)
	if err != nil {
		t.Fatalf("SelectNext() error = %v", err)
	}
	child, err := op.Apply(parent, "h-2")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if len(parent.AppliedMutations) != 0 {
		t.Error("Apply() mutated the parent")
	}
	if child.ParentID != parent.ID {
		t.Errorf("child.ParentID = %s, want %s", child.ParentID, parent.ID)
	}
	if !child.HasMutation(op.ID) {
		t.Errorf("child missing applied operator %s", op.ID)
	}
}

func TestFusion(t *testing.T) {
	t.Parallel()

	reg := mutation.NewBuiltinRegistry()
	op, ok := reg.Get("fusion")
	if !ok {
		t.Fatal("fusion operator not registered")
	}
	if op.Kind != mutation.KindFusion {
		t.Fatalf("fusion kind = %s, want %s", op.Kind, mutation.KindFusion)
	}

	t.Run("fuses two hypotheses on the same target", func(t *testing.T) {
		t.Parallel()

		a := hypothesis.New("h-1", "x-1", "skim fees", hypothesis.ShapeSimple)
		a.EvidenceFindings = []string{"f-1"}
		b := hypothesis.New("h-2", "x-1", "stale oracle read", hypothesis.ShapeSimple)
		b.EvidenceFindings = []string{"f-2"}

		child, err := op.Fuse(a, b, "h-3")
		if err != nil {
			t.Fatalf("Fuse() error = %v", err)
		}
		if child.Shape != hypothesis.ShapeFusion {
			t.Errorf("child.Shape = %s, want fusion", child.Shape)
		}
		if len(child.EvidenceFindings) != 2 {
			t.Errorf("child.EvidenceFindings = %v, want both parents' findings", child.EvidenceFindings)
		}
	})

	t.Run("rejects parents from different targets", func(t *testing.T) {
		t.Parallel()

		a := hypothesis.New("h-1", "x-1", "skim fees", hypothesis.ShapeSimple)
		b := hypothesis.New("h-2", "x-2", "stale oracle read", hypothesis.ShapeSimple)
		if _, err := op.Fuse(a, b, "h-3"); err == nil {
			t.Error("Fuse() expected error for cross-target parents")
		}
	})
}

func TestRegistryRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	ops := mutation.Builtin()
	ops = append(ops, ops[0])
	if _, err := mutation.NewRegistry(ops); !errors.Is(err, mutation.ErrDuplicateID) {
		t.Errorf("NewRegistry() error = %v, want ErrDuplicateID", err)
	}
}

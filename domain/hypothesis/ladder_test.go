package hypothesis_test

import (
	"errors"
	"testing"

	"github.com/inquestlabs/inquest/domain/hypothesis"
	"github.com/inquestlabs/inquest/domain/probe"
)

func liveGates() probe.GateReport {
	return probe.GateReport{Live: true}
}

func TestObserve(t *testing.T) {
	t.Parallel()

	t.Run("advances modeled to observed when gates are live", func(t *testing.T) {
		t.Parallel()

		h := hypothesis.New("h-1", "x-1", "drain via re-entry", hypothesis.ShapeSimple)
		out, err := hypothesis.Observe(h, liveGates())
		if err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
		if out.Level != hypothesis.LevelObserved {
			t.Errorf("Observe() level = %s, want %s", out.Level, hypothesis.LevelObserved)
		}
		if h.Level != hypothesis.LevelModeled {
			t.Error("Observe() mutated its input")
		}
	})

	t.Run("blocks when gates are not live", func(t *testing.T) {
		t.Parallel()

		h := hypothesis.New("h-1", "x-1", "drain via re-entry", hypothesis.ShapeSimple)
		out, err := hypothesis.Observe(h, probe.GateReport{Live: false, Reasons: []string{"paused", "no liquidity"}})
		if err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
		if out.Level != hypothesis.LevelBlocked {
			t.Errorf("Observe() level = %s, want %s", out.Level, hypothesis.LevelBlocked)
		}
		if out.WhatKilledIt != "paused; no liquidity" {
			t.Errorf("Observe() reason = %q", out.WhatKilledIt)
		}
	})

	t.Run("rejects observe above modeled", func(t *testing.T) {
		t.Parallel()

		h := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
		h.Level = hypothesis.LevelFalsified
		if _, err := hypothesis.Observe(h, liveGates()); !errors.Is(err, hypothesis.ErrIllegalTransition) {
			t.Errorf("Observe() error = %v, want ErrIllegalTransition", err)
		}
	})
}

func TestFalsify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    probe.Status
		wantLevel hypothesis.EvidenceLevel
	}{
		{"pass yields falsified", probe.StatusPass, hypothesis.LevelFalsified},
		{"fail yields disproved", probe.StatusFail, hypothesis.LevelDisproved},
		{"error yields unknown", probe.StatusError, hypothesis.LevelUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
			h.Level = hypothesis.LevelObserved

			out, err := hypothesis.Falsify(h, probe.Result{
				HypothesisID:  "h-1",
				Anchor:        probe.AnchorDev,
				Status:        tt.status,
				MeasuredDelta: 12.5,
				ArtifactRef:   "artifact://trace-1",
			})
			if err != nil {
				t.Fatalf("Falsify() error = %v", err)
			}
			if out.Level != tt.wantLevel {
				t.Errorf("Falsify() level = %s, want %s", out.Level, tt.wantLevel)
			}
			if tt.status == probe.StatusPass && out.MeasuredDelta != 12.5 {
				t.Errorf("Falsify() delta = %v, want 12.5", out.MeasuredDelta)
			}
		})
	}

	t.Run("rejects falsify on modeled", func(t *testing.T) {
		t.Parallel()

		h := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
		if _, err := hypothesis.Falsify(h, probe.Result{Status: probe.StatusPass}); !errors.Is(err, hypothesis.ErrIllegalTransition) {
			t.Errorf("Falsify() error = %v, want ErrIllegalTransition", err)
		}
	})
}

func TestPromote(t *testing.T) {
	t.Parallel()

	falsified := func() hypothesis.Hypothesis {
		h := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
		h.Level = hypothesis.LevelFalsified
		return h
	}

	t.Run("promotes on promotion anchor pass with live gates", func(t *testing.T) {
		t.Parallel()

		out, err := hypothesis.Promote(falsified(), probe.Result{
			Anchor:        probe.AnchorPromotion,
			Status:        probe.StatusPass,
			MeasuredDelta: 99,
		}, liveGates())
		if err != nil {
			t.Fatalf("Promote() error = %v", err)
		}
		if out.Level != hypothesis.LevelPromoted {
			t.Errorf("Promote() level = %s, want %s", out.Level, hypothesis.LevelPromoted)
		}
	})

	t.Run("rejects dev anchor", func(t *testing.T) {
		t.Parallel()

		_, err := hypothesis.Promote(falsified(), probe.Result{
			Anchor: probe.AnchorDev,
			Status: probe.StatusPass,
		}, liveGates())
		if !errors.Is(err, hypothesis.ErrWrongAnchor) {
			t.Errorf("Promote() error = %v, want ErrWrongAnchor", err)
		}
	})

	t.Run("rejects dead gates", func(t *testing.T) {
		t.Parallel()

		_, err := hypothesis.Promote(falsified(), probe.Result{
			Anchor: probe.AnchorPromotion,
			Status: probe.StatusPass,
		}, probe.GateReport{Live: false})
		if !errors.Is(err, hypothesis.ErrGatesNotLive) {
			t.Errorf("Promote() error = %v, want ErrGatesNotLive", err)
		}
	})

	t.Run("execution error keeps falsified level", func(t *testing.T) {
		t.Parallel()

		out, err := hypothesis.Promote(falsified(), probe.Result{
			Anchor: probe.AnchorPromotion,
			Status: probe.StatusError,
		}, liveGates())
		if err != nil {
			t.Fatalf("Promote() error = %v", err)
		}
		if out.Level != hypothesis.LevelFalsified {
			t.Errorf("Promote() level = %s, want %s", out.Level, hypothesis.LevelFalsified)
		}
	})

	t.Run("rejects promote below falsified", func(t *testing.T) {
		t.Parallel()

		h := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
		_, err := hypothesis.Promote(h, probe.Result{
			Anchor: probe.AnchorPromotion,
			Status: probe.StatusPass,
		}, liveGates())
		if !errors.Is(err, hypothesis.ErrIllegalTransition) {
			t.Errorf("Promote() error = %v, want ErrIllegalTransition", err)
		}
	})
}

func TestUpgraded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to hypothesis.EvidenceLevel
		want     bool
	}{
		{hypothesis.LevelModeled, hypothesis.LevelObserved, true},
		{hypothesis.LevelObserved, hypothesis.LevelFalsified, true},
		{hypothesis.LevelFalsified, hypothesis.LevelPromoted, true},
		{hypothesis.LevelObserved, hypothesis.LevelObserved, false},
		{hypothesis.LevelObserved, hypothesis.LevelDisproved, false},
		{hypothesis.LevelObserved, hypothesis.LevelUnknown, false},
		{hypothesis.LevelUnknown, hypothesis.LevelObserved, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := hypothesis.Upgraded(tt.from, tt.to); got != tt.want {
				t.Errorf("Upgraded(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestWithMutation(t *testing.T) {
	t.Parallel()

	t.Run("records operator and lineage", func(t *testing.T) {
		t.Parallel()

		parent := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
		child, err := parent.WithMutation("h-2", "time-shift", "route, one epoch later")
		if err != nil {
			t.Fatalf("WithMutation() error = %v", err)
		}
		if child.ParentID != "h-1" {
			t.Errorf("child.ParentID = %s, want h-1", child.ParentID)
		}
		if len(child.AppliedMutations) != 1 || child.AppliedMutations[0] != "time-shift" {
			t.Errorf("child.AppliedMutations = %v", child.AppliedMutations)
		}
		if child.Level != hypothesis.LevelModeled {
			t.Errorf("child.Level = %s, want modeled", child.Level)
		}
	})

	t.Run("rejects duplicate operator", func(t *testing.T) {
		t.Parallel()

		parent := hypothesis.New("h-1", "x-1", "route", hypothesis.ShapeSimple)
		child, err := parent.WithMutation("h-2", "time-shift", "shifted")
		if err != nil {
			t.Fatalf("WithMutation() error = %v", err)
		}
		if _, err := child.WithMutation("h-3", "time-shift", "shifted again"); !errors.Is(err, hypothesis.ErrDuplicateMutation) {
			t.Errorf("WithMutation() error = %v, want ErrDuplicateMutation", err)
		}
	})
}

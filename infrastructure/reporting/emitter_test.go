package reporting_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inquestlabs/inquest/domain/report"
	"github.com/inquestlabs/inquest/infrastructure/reporting"
)

func promotedReport() report.Report {
	return report.Report{
		Kind:          report.KindPromoted,
		Capability:    "a normal actor can force negative balance",
		TargetStateID: "ts-1",
		Lineage:       []string{"h-1", "h-4"},
		Evidence: report.EvidenceChain{
			FindingIDs:   []string{"f-1"},
			ArtifactRefs: []string{"artifact://run/42"},
		},
		MeasuredDelta: 12.5,
		Unknowns:      []string{"settlement reordering tolerance"},
		Iteration:     17,
		GeneratedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRenderPromoted(t *testing.T) {
	t.Parallel()

	doc := reporting.Render(promotedReport())
	for _, want := range []string{
		"# Promoted capability",
		"a normal actor can force negative balance",
		"`ts-1`",
		"1. `h-1`",
		"2. `h-4`",
		"finding `f-1`",
		"artifact `artifact://run/42`",
		"settlement reordering tolerance",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("rendered document missing %q:\n%s", want, doc)
		}
	}
}

func TestRenderExhaustedNeverClaimsSafety(t *testing.T) {
	t.Parallel()

	doc := reporting.Render(report.Report{
		Kind:          report.KindExhausted,
		NextMutations: []string{"ordering-flip", "time-shift"},
		Iteration:     40,
		GeneratedAt:   time.Now(),
	})
	if !strings.Contains(doc, "not a safety claim") {
		t.Error("exhaustion document must disavow safety claims")
	}
	if !strings.Contains(doc, "ordering-flip") {
		t.Error("next mutations missing")
	}
}

func TestFileEmitterWritesDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e, err := reporting.NewFileEmitter(filepath.Join(dir, "reports"))
	if err != nil {
		t.Fatalf("NewFileEmitter() error = %v", err)
	}

	if err := e.Emit(context.Background(), promotedReport()); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "reports"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("report count = %d, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "promoted-000017-") || !strings.HasSuffix(name, ".md") {
		t.Errorf("report filename = %q", name)
	}
}

func TestWriterEmitterStreamsJSONLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := reporting.NewWriterEmitter(&buf)

	if err := e.Emit(context.Background(), promotedReport()); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	var r report.Report
	if err := json.Unmarshal(buf.Bytes(), &r); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if r.Kind != report.KindPromoted || r.MeasuredDelta != 12.5 {
		t.Errorf("round trip = %+v", r)
	}
}

func TestMultiFansOutAndReportsFirstError(t *testing.T) {
	t.Parallel()

	boom := errors.New("sink down")
	var calls int
	ok := report.EmitterFunc(func(context.Context, report.Report) error {
		calls++
		return nil
	})
	bad := report.EmitterFunc(func(context.Context, report.Report) error {
		calls++
		return boom
	})

	err := reporting.Multi(ok, bad, nil, ok).Emit(context.Background(), promotedReport())
	if !errors.Is(err, boom) {
		t.Errorf("Emit() error = %v, want first failure", err)
	}
	if calls != 3 {
		t.Errorf("emitter calls = %d, want 3", calls)
	}
}

// Package reporting renders engine reports. The engine emits structured
// records; this package turns them into markdown documents on disk and
// JSON lines on a writer.
package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/inquestlabs/inquest/domain/report"
)

// FileEmitter writes one markdown document per report.
type FileEmitter struct {
	dir string
}

// NewFileEmitter creates an emitter writing into dir, creating it if needed.
func NewFileEmitter(dir string) (*FileEmitter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	return &FileEmitter{dir: dir}, nil
}

// Emit renders the report and writes it next to its siblings.
func (e *FileEmitter) Emit(_ context.Context, r report.Report) error {
	name := fmt.Sprintf("%s-%06d-%s.md", r.Kind, r.Iteration, r.GeneratedAt.UTC().Format("20060102T150405"))
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(Render(r)), 0o600); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Render produces the markdown document for a report.
func Render(r report.Report) string {
	var b strings.Builder

	switch r.Kind {
	case report.KindPromoted:
		b.WriteString("# Promoted capability\n\n")
		fmt.Fprintf(&b, "**Claim:** %s\n\n", r.Capability)
		fmt.Fprintf(&b, "- Target state: `%s`\n", r.TargetStateID)
		fmt.Fprintf(&b, "- Measured delta: %g\n", r.MeasuredDelta)
	case report.KindExhausted:
		b.WriteString("# Exhaustion checkpoint\n\n")
		b.WriteString("The search space was exhausted under the current finding model. ")
		b.WriteString("This is not a safety claim; it records what was searched.\n\n")
	default:
		fmt.Fprintf(&b, "# Report (%s)\n\n", r.Kind)
	}

	fmt.Fprintf(&b, "- Iteration: %d\n", r.Iteration)
	fmt.Fprintf(&b, "- Generated: %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))

	if len(r.Lineage) > 0 {
		b.WriteString("\n## Hypothesis lineage\n\n")
		for i, id := range r.Lineage {
			fmt.Fprintf(&b, "%d. `%s`\n", i+1, id)
		}
	}

	if len(r.Evidence.FindingIDs) > 0 || len(r.Evidence.ArtifactRefs) > 0 {
		b.WriteString("\n## Evidence\n\n")
		for _, id := range r.Evidence.FindingIDs {
			fmt.Fprintf(&b, "- finding `%s`\n", id)
		}
		for _, ref := range r.Evidence.ArtifactRefs {
			fmt.Fprintf(&b, "- artifact `%s`\n", ref)
		}
	}

	if len(r.NextMutations) > 0 {
		b.WriteString("\n## Next mutations\n\n")
		b.WriteString("Where a resumed investigation picks up:\n\n")
		for _, m := range r.NextMutations {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	if len(r.Unknowns) > 0 {
		b.WriteString("\n## Unknowns\n\n")
		for _, u := range r.Unknowns {
			fmt.Fprintf(&b, "- %s\n", u)
		}
	}

	return b.String()
}

var _ report.Emitter = (*FileEmitter)(nil)

// WriterEmitter streams reports as JSON lines.
type WriterEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterEmitter creates an emitter streaming to w.
func NewWriterEmitter(w io.Writer) *WriterEmitter {
	return &WriterEmitter{w: w}
}

// Emit writes the report as one JSON line.
func (e *WriterEmitter) Emit(_ context.Context, r report.Report) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	enc := json.NewEncoder(e.w)
	return enc.Encode(r)
}

var _ report.Emitter = (*WriterEmitter)(nil)

// Multi fans a report out to several emitters, returning the first error.
func Multi(emitters ...report.Emitter) report.Emitter {
	return report.EmitterFunc(func(ctx context.Context, r report.Report) error {
		var first error
		for _, e := range emitters {
			if e == nil {
				continue
			}
			if err := e.Emit(ctx, r); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

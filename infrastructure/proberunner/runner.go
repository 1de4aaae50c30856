// Package proberunner executes probes through an external runner command.
// The falsification machinery lives out of process: each probe spawns the
// configured command, writes the request as JSON on stdin, and reads one
// JSON result from stdout. Gating checks follow the same contract.
package proberunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/inquestlabs/inquest/domain/probe"
)

// ErrNoCommand is returned when a runner is built without a command.
var ErrNoCommand = errors.New("probe runner command is required")

// Runner runs probes by spawning a command per execution.
type Runner struct {
	argv []string
}

// NewRunner creates a runner for the given argv. The command is spawned
// once per probe; it must exit after writing its result.
func NewRunner(argv []string) (*Runner, error) {
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}
	return &Runner{argv: argv}, nil
}

// RunProbe spawns the runner command for one probe request. A command that
// cannot be spawned or that exits without a parseable result is a transport
// failure; logical outcomes travel inside the result's status field.
func (r *Runner) RunProbe(ctx context.Context, req probe.Request) (probe.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return probe.Result{}, fmt.Errorf("encoding probe request: %w", err)
	}

	out, err := r.exec(ctx, payload)
	if err != nil {
		return probe.Result{}, err
	}

	var res probe.Result
	if err := json.Unmarshal(out, &res); err != nil {
		return probe.Result{}, fmt.Errorf("%w: unparseable probe result: %v", probe.ErrTransport, err)
	}
	if res.HypothesisID == "" {
		res.HypothesisID = req.HypothesisID
	}
	if res.Anchor == "" {
		res.Anchor = req.Anchor
	}
	return res, nil
}

func (r *Runner) exec(ctx context.Context, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...) // #nosec G204 -- command comes from operator configuration
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", probe.ErrCancelled, ctx.Err())
		}
		detail := stderr.String()
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: runner exited: %s", probe.ErrTransport, detail)
	}
	return stdout.Bytes(), nil
}

var _ probe.Executor = (*Runner)(nil)

// GateCommand answers gating checks by spawning a command per query. The
// command receives {"target_system_ref": ...} on stdin and must write a
// gate report JSON document.
type GateCommand struct {
	argv []string
}

// NewGateCommand creates a gate checker for the given argv.
func NewGateCommand(argv []string) (*GateCommand, error) {
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}
	return &GateCommand{argv: argv}, nil
}

// CheckGates runs the gate command for the target system.
func (g *GateCommand) CheckGates(ctx context.Context, targetSystemRef string) (probe.GateReport, error) {
	payload, err := json.Marshal(struct {
		TargetSystemRef string `json:"target_system_ref"`
	}{TargetSystemRef: targetSystemRef})
	if err != nil {
		return probe.GateReport{}, fmt.Errorf("encoding gate query: %w", err)
	}

	runner := Runner{argv: g.argv}
	out, err := runner.exec(ctx, payload)
	if err != nil {
		return probe.GateReport{}, err
	}

	var rep probe.GateReport
	if err := json.Unmarshal(out, &rep); err != nil {
		return probe.GateReport{}, fmt.Errorf("unparseable gate report: %w", err)
	}
	return rep, nil
}

var _ probe.GateChecker = (*GateCommand)(nil)

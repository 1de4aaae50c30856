package proberunner_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/inquestlabs/inquest/domain/probe"
	"github.com/inquestlabs/inquest/infrastructure/proberunner"
)

func testRequest() probe.Request {
	return probe.Request{
		HypothesisID: "h-1",
		Anchor:       probe.AnchorDev,
		Spec:         json.RawMessage(`{"route":"direct"}`),
	}
}

func TestNewRunnerRequiresCommand(t *testing.T) {
	t.Parallel()

	if _, err := proberunner.NewRunner(nil); !errors.Is(err, proberunner.ErrNoCommand) {
		t.Errorf("NewRunner(nil) error = %v, want ErrNoCommand", err)
	}
	if _, err := proberunner.NewGateCommand(nil); !errors.Is(err, proberunner.ErrNoCommand) {
		t.Errorf("NewGateCommand(nil) error = %v, want ErrNoCommand", err)
	}
}

func TestRunProbeParsesResult(t *testing.T) {
	t.Parallel()

	r, err := proberunner.NewRunner([]string{"sh", "-c",
		`cat >/dev/null; echo '{"hypothesis_id":"h-1","anchor":"dev","status":"pass","measured_delta":4.5}'`})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	res, err := r.RunProbe(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("RunProbe() error = %v", err)
	}
	if res.Status != probe.StatusPass {
		t.Errorf("status = %s, want pass", res.Status)
	}
	if res.MeasuredDelta != 4.5 {
		t.Errorf("delta = %v, want 4.5", res.MeasuredDelta)
	}
}

func TestRunProbeFillsRequestIdentity(t *testing.T) {
	t.Parallel()

	r, err := proberunner.NewRunner([]string{"sh", "-c",
		`cat >/dev/null; echo '{"status":"fail"}'`})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	res, err := r.RunProbe(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("RunProbe() error = %v", err)
	}
	if res.HypothesisID != "h-1" || res.Anchor != probe.AnchorDev {
		t.Errorf("identity = %s/%s, want h-1/dev", res.HypothesisID, res.Anchor)
	}
}

func TestRunProbeNonZeroExitIsTransportError(t *testing.T) {
	t.Parallel()

	r, err := proberunner.NewRunner([]string{"sh", "-c", `cat >/dev/null; echo "runner broke" >&2; exit 3`})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	_, err = r.RunProbe(context.Background(), testRequest())
	if !errors.Is(err, probe.ErrTransport) {
		t.Fatalf("RunProbe() error = %v, want ErrTransport", err)
	}
	if !probe.Retryable(err) {
		t.Error("transport error not classified retryable")
	}
}

func TestRunProbeGarbageOutputIsTransportError(t *testing.T) {
	t.Parallel()

	r, err := proberunner.NewRunner([]string{"sh", "-c", `cat >/dev/null; echo "not json"`})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	if _, err := r.RunProbe(context.Background(), testRequest()); !errors.Is(err, probe.ErrTransport) {
		t.Errorf("RunProbe() error = %v, want ErrTransport", err)
	}
}

func TestRunProbeTimeoutIsCancellation(t *testing.T) {
	t.Parallel()

	r, err := proberunner.NewRunner([]string{"sh", "-c", `sleep 10`})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.RunProbe(ctx, testRequest()); !errors.Is(err, probe.ErrCancelled) {
		t.Errorf("RunProbe() error = %v, want ErrCancelled", err)
	}
}

func TestCheckGatesParsesReport(t *testing.T) {
	t.Parallel()

	g, err := proberunner.NewGateCommand([]string{"sh", "-c",
		`cat >/dev/null; echo '{"live":false,"reasons":["deploy frozen"]}'`})
	if err != nil {
		t.Fatalf("NewGateCommand() error = %v", err)
	}

	rep, err := g.CheckGates(context.Background(), "payments-staging")
	if err != nil {
		t.Fatalf("CheckGates() error = %v", err)
	}
	if rep.Live {
		t.Error("report live, want dead")
	}
	if len(rep.Reasons) != 1 || rep.Reasons[0] != "deploy frozen" {
		t.Errorf("reasons = %v", rep.Reasons)
	}
}

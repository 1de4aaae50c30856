package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"golang.org/x/sync/semaphore"

	"github.com/inquestlabs/inquest/domain/convergence"
	"github.com/inquestlabs/inquest/domain/finding"
	"github.com/inquestlabs/inquest/domain/hypothesis"
	"github.com/inquestlabs/inquest/domain/mutation"
	"github.com/inquestlabs/inquest/domain/probe"
	"github.com/inquestlabs/inquest/domain/report"
	"github.com/inquestlabs/inquest/infrastructure/logging"
	"github.com/inquestlabs/inquest/infrastructure/statemachine"
	"github.com/inquestlabs/inquest/infrastructure/telemetry"
)

// Engine errors.
var (
	// ErrPrerequisites means a required collaborator is missing. The loop
	// halts; this is never a benign conclusion.
	ErrPrerequisites = errors.New("prerequisite verification failed")

	// ErrInvestigationOver is returned by Tick after promotion.
	ErrInvestigationOver = errors.New("investigation already concluded")
)

// Defaults for the knobs Config leaves zero.
const (
	DefaultMaxConcurrentProbes = 4
	DefaultProbeTimeout        = 2 * time.Minute
	DefaultRetryLimit          = 3
	DefaultMutationCap         = 3
	DefaultTickInterval        = 50 * time.Millisecond
)

// Config wires the engine's collaborators and knobs.
type Config struct {
	Registry    *mutation.Registry
	Executor    probe.Executor
	Gates       probe.GateChecker
	Checkpoints CheckpointStore
	Reporter    report.Emitter

	// Rules overrides the decision table; nil means DefaultRules.
	Rules []Rule

	// Scorer overrides the convergence scorer; nil means max-aggregation.
	Scorer *convergence.Scorer

	// TargetSystemRef is passed to the gating check provider.
	TargetSystemRef string

	MaxConcurrentProbes int64
	ProbeTimeout        time.Duration

	// RetryLimit bounds probe execution retries per hypothesis before it is
	// blocked.
	RetryLimit int

	// MutationCap bounds applied mutations per lineage before rotation.
	MutationCap int

	// StallThreshold is ticks without an upgrade before escalation; zero
	// means the default.
	StallThreshold int

	TickInterval time.Duration

	Log *bolt.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *telemetry.MetricsProvider
}

func (c *Config) applyDefaults() {
	if c.Rules == nil {
		c.Rules = DefaultRules()
	}
	if c.Scorer == nil {
		c.Scorer = convergence.NewScorer(nil)
	}
	if c.MaxConcurrentProbes <= 0 {
		c.MaxConcurrentProbes = DefaultMaxConcurrentProbes
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = DefaultRetryLimit
	}
	if c.MutationCap <= 0 {
		c.MutationCap = DefaultMutationCap
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.Log == nil {
		c.Log = logging.Get()
	}
}

// probeOutcome is a completed probe execution waiting to be applied on the
// next tick.
type probeOutcome struct {
	hypothesisID string
	anchor       probe.Anchor
	res          probe.Result
	err          error
}

// Engine runs the investigation loop. All state mutation happens inside
// Tick, which holds the engine mutex; probe executions run concurrently but
// only deliver results into a channel the next tick drains. That keeps the
// checkpointed unit single-writer.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	state *State
	life  *statemachine.Lifecycle

	// probeCtx outlives the run context so a graceful stop lets in-flight
	// probes finish.
	probeCtx    context.Context
	probeCancel context.CancelFunc
	sem         *semaphore.Weighted
	results     chan probeOutcome
	wg          sync.WaitGroup

	// tickUpgraded flags an evidence upgrade performed directly by an action
	// (Observe happens inline, not through a probe result).
	tickUpgraded bool

	lastCheckpointRef string
	log               *bolt.Logger
}

// NewEngine creates an engine over a fresh state.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	life, err := statemachine.NewLifecycle()
	if err != nil {
		return nil, err
	}
	s := NewState()
	s.Stall = NewStall(cfg.StallThreshold)
	return newEngine(cfg, s, life)
}

// NewEngineFromSnapshot creates an engine resuming a checkpointed state.
func NewEngineFromSnapshot(cfg Config, snap Snapshot) (*Engine, error) {
	cfg.applyDefaults()
	s, err := Restore(snap)
	if err != nil {
		return nil, err
	}
	if s.Stall.Threshold == 0 {
		s.Stall.Threshold = DefaultStallThreshold
	}
	life, err := statemachine.NewLifecycle()
	if err != nil {
		return nil, err
	}
	if err := life.ResumeAt(string(s.Phase)); err != nil {
		return nil, err
	}
	return newEngine(cfg, s, life)
}

func newEngine(cfg Config, s *State, life *statemachine.Lifecycle) (*Engine, error) {
	probeCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg,
		state:       s,
		life:        life,
		probeCtx:    probeCtx,
		probeCancel: cancel,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrentProbes),
		results:     make(chan probeOutcome, int(cfg.MaxConcurrentProbes)*2+16),
		log:         cfg.Log,
	}, nil
}

// AddTarget registers a target state before or during the run.
func (e *Engine) AddTarget(t hypothesis.TargetState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Portfolio.AddTarget(t)
}

// SeedHypotheses attaches initial hypotheses to a target.
func (e *Engine) SeedHypotheses(targetID string, hyps ...hypothesis.Hypothesis) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Portfolio.Seed(targetID, hyps...)
}

// FindingStore exposes the finding store for ingestion adapters. The store
// serializes appends internally; the next tick reclusters.
func (e *Engine) FindingStore() *finding.Store {
	return e.state.Findings
}

// Phase returns the current investigation phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Phase
}

// CheckpointRef returns the ref of the most recent checkpoint.
func (e *Engine) CheckpointRef() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCheckpointRef
}

// Run drives ticks until promotion or context cancellation. Cancellation is
// the graceful stop: in-flight probes finish, their results are applied, and
// a final checkpoint is taken.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		if err := e.Tick(ctx); err != nil {
			if errors.Is(err, ErrInvestigationOver) {
				return nil
			}
			return err
		}
		if e.Phase() == PhasePromoted {
			return nil
		}
		select {
		case <-ctx.Done():
			return e.finalize(context.Background())
		case <-ticker.C:
		}
	}
}

// finalize waits for outstanding probes, applies their results, and takes a
// last checkpoint.
func (e *Engine) finalize(ctx context.Context) error {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainResults(ctx)
	e.state.Record(TrailCheckpoint, "graceful stop")
	return e.checkpoint(ctx)
}

// Close releases probe resources. In-flight probes are cancelled.
func (e *Engine) Close() {
	e.probeCancel()
	e.wg.Wait()
}

// Tick executes one decision loop iteration: apply completed probe results,
// recompute convergence, evaluate the rule table, execute at most one
// action, advance the stall controller, checkpoint.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state

	if s.Phase.IsTerminal() {
		return ErrInvestigationOver
	}

	tickStart := time.Now()
	defer func() {
		e.cfg.Metrics.RecordTickDuration(ctx, time.Since(tickStart), string(s.Phase))
	}()

	e.tickUpgraded = false
	upgraded := e.drainResults(ctx)

	e.recluster()
	e.maybeReopen()

	if s.Phase == PhaseInitializing || s.Phase == PhaseActive {
		if rule, ok := Decide(e.cfg.Rules, s, e.cfg.Registry); ok {
			s.Record(TrailDecision, rule.Name+" -> "+string(rule.Action))
			logging.NewEvent(e.log.Debug()).
				Add(logging.Tick(s.Iteration)).
				Add(logging.Rule(rule.Name)).
				Add(logging.Action(string(rule.Action))).
				Msg("rule matched")
			if err := e.execute(ctx, rule.Action); err != nil {
				if errors.Is(err, ErrPrerequisites) {
					s.HaltedError = err.Error()
					s.Record(TrailDiagnostic, err.Error())
					return err
				}
				s.Record(TrailDiagnostic, fmt.Sprintf("action %s: %v", rule.Action, err))
				logging.NewEvent(e.log.Warn()).
					Add(logging.Tick(s.Iteration)).
					Add(logging.Action(string(rule.Action))).
					Add(logging.ErrorField(err)).
					Msg("action failed")
			}
		}
	}

	if s.Phase == PhaseActive {
		s.Stall.Observe(upgraded || e.tickUpgraded, s.Iteration)
		if p := s.Stall.Pending; p != nil && p.RaisedAt == s.Iteration {
			s.Record(TrailStall, "stall threshold reached, escape constraint raised")
			logging.NewEvent(e.log.Info()).
				Add(logging.Tick(s.Iteration)).
				Add(logging.StallCounter(s.Stall.Threshold)).
				Msg("stall escalation")
		}
	}

	e.maybeActivate()

	s.Iteration++
	return e.checkpoint(ctx)
}

// recluster recomputes the convergence ranking from the current finding
// snapshot. Derived state: failures are recorded, never fatal.
func (e *Engine) recluster() {
	s := e.state
	classes := convergence.Cluster(s.Findings.Snapshot())
	ranking, err := e.cfg.Scorer.Score(classes, s.Findings.Get)
	if err != nil {
		s.Record(TrailDiagnostic, "convergence scoring: "+err.Error())
		return
	}
	s.Ranking = ranking
}

// maybeReopen re-enters the active phase when findings arrived after the
// exhaustion checkpoint.
func (e *Engine) maybeReopen() {
	s := e.state
	if s.Phase != PhaseExhausted || s.Findings.Sequence() <= s.ExhaustedAtSeq {
		return
	}
	e.life.Context().NewFindings = true
	if e.life.Send("REOPEN") {
		s.Portfolio.Reopen()
		s.Phase = PhaseActive
		s.Record(TrailTransition, "new findings after exhaustion, investigation reopened")
		// The new findings must translate into new work, or the next tick
		// would just re-exhaust. Mine the refreshed ranking for a target the
		// previous search never had.
		if id, ok := e.injectTarget(); ok {
			s.Record(TrailDecision, "reopened search injected target "+id)
		}
		logging.NewEvent(e.log.Info()).
			Add(logging.Tick(s.Iteration)).
			Add(logging.Phase(string(s.Phase))).
			Msg("reopened on new findings")
	}
}

// maybeActivate moves Initializing to Active once prerequisites and coverage
// hold.
func (e *Engine) maybeActivate() {
	s := e.state
	if s.Phase != PhaseInitializing || !s.PrereqsVerified {
		return
	}
	if len(s.Portfolio.Targets()) == 0 || len(s.Portfolio.BelowMinimum()) > 0 {
		return
	}
	lctx := e.life.Context()
	lctx.PrereqsVerified = true
	lctx.CoverageMet = true
	if e.life.Send("ACTIVATE") {
		s.Phase = PhaseActive
		s.Record(TrailTransition, "investigation active")
	}
}

// drainResults applies every completed probe outcome and reports whether any
// application was an evidence upgrade.
func (e *Engine) drainResults(ctx context.Context) bool {
	upgraded := false
	for {
		select {
		case out := <-e.results:
			if e.applyOutcome(ctx, out) {
				upgraded = true
			}
		default:
			return upgraded
		}
	}
}

// applyOutcome feeds one probe outcome through the evidence ladder.
func (e *Engine) applyOutcome(ctx context.Context, out probeOutcome) bool {
	s := e.state
	s.Portfolio.ClearInFlight(out.hypothesisID)
	h, ok := s.Portfolio.Hypothesis(out.hypothesisID)
	if !ok {
		s.Record(TrailDiagnostic, "probe result for unknown hypothesis "+out.hypothesisID)
		return false
	}

	if out.err != nil {
		return e.applyProbeError(ctx, h, out)
	}
	if out.res.Status == probe.StatusError {
		s.RetryCounts[h.ID]++
		s.RecordUnknown(fmt.Sprintf("probe for %s on %s anchor produced no observation: %s",
			h.ID, out.anchor, out.res.Diagnostic))
	}

	var next hypothesis.Hypothesis
	var terr error
	switch out.anchor {
	case probe.AnchorDev:
		next, terr = hypothesis.Falsify(h, out.res)
	case probe.AnchorPromotion:
		var gates probe.GateReport
		if s.Gates != nil {
			gates = *s.Gates
		}
		next, terr = hypothesis.Promote(h, out.res, gates)
	default:
		terr = fmt.Errorf("unrecognized probe anchor %q", out.anchor)
	}
	if terr != nil {
		s.Record(TrailDiagnostic, fmt.Sprintf("apply probe result to %s: %v", h.ID, terr))
		e.cfg.Metrics.RecordError(ctx, "evidence_transition", map[string]string{
			"hypothesis.id": h.ID,
			"probe.anchor":  string(out.anchor),
		})
		return false
	}
	if next.Level == h.Level {
		// Promotion probe execution error: evidence unchanged, retry counted.
		return false
	}

	up, err := s.Portfolio.Update(next)
	if err != nil {
		s.Record(TrailDiagnostic, fmt.Sprintf("update %s: %v", next.ID, err))
		return false
	}
	s.Record(TrailTransition, fmt.Sprintf("%s: %s -> %s", next.ID, h.Level, next.Level))
	e.cfg.Metrics.RecordLevelTransition(ctx, string(h.Level), string(next.Level), next.ID)
	logging.NewEvent(e.log.Info()).
		Add(logging.Tick(s.Iteration)).
		Add(logging.HypothesisID(next.ID)).
		Add(logging.FromLevel(string(h.Level))).
		Add(logging.ToLevel(string(next.Level))).
		Add(logging.Anchor(string(out.anchor))).
		Add(logging.ProbeStatus(string(out.res.Status))).
		Msg("evidence transition")

	if next.Level == hypothesis.LevelPromoted {
		e.concludePromoted(ctx, next)
	}
	return up
}

// applyProbeError handles executor failures: transport errors and timeouts
// are retried up to the limit, then the hypothesis is blocked. An execution
// failure is never a disproof.
func (e *Engine) applyProbeError(ctx context.Context, h hypothesis.Hypothesis, out probeOutcome) bool {
	s := e.state
	s.RetryCounts[h.ID]++
	s.Record(TrailProbe, fmt.Sprintf("probe error on %s: %v", h.ID, out.err))
	e.cfg.Metrics.RecordError(ctx, "probe_execution", map[string]string{
		"hypothesis.id": h.ID,
		"probe.anchor":  string(out.anchor),
	})

	if s.RetryCounts[h.ID] > e.cfg.RetryLimit {
		blocked, err := hypothesis.Block(h, "probe retries exhausted: "+out.err.Error())
		if err != nil {
			s.Record(TrailDiagnostic, err.Error())
			return false
		}
		if _, err := s.Portfolio.Update(blocked); err != nil {
			s.Record(TrailDiagnostic, err.Error())
			return false
		}
		s.Record(TrailTransition, fmt.Sprintf("%s: %s -> %s (retries exhausted)", h.ID, h.Level, blocked.Level))
		s.RecordUnknown(fmt.Sprintf("whether %s holds: probes kept failing (%v)", h.RouteSketch, out.err))
		return false
	}

	// A dev-anchor execution failure moves the hypothesis to Unknown so the
	// advancement rule re-observes it. Promotion failures leave E2 intact.
	if out.anchor == probe.AnchorDev && h.Level == hypothesis.LevelObserved {
		unknown, err := hypothesis.Falsify(h, probe.Result{
			HypothesisID: h.ID,
			Anchor:       out.anchor,
			Status:       probe.StatusError,
		})
		if err != nil {
			s.Record(TrailDiagnostic, err.Error())
			return false
		}
		if _, err := s.Portfolio.Update(unknown); err != nil {
			s.Record(TrailDiagnostic, err.Error())
		}
	}
	return false
}

// execute runs one decision action.
func (e *Engine) execute(ctx context.Context, action ActionKind) error {
	switch action {
	case ActionVerifyPrereqs:
		return e.verifyPrereqs()
	case ActionRefreshGates:
		return e.refreshGates(ctx)
	case ActionExpandCoverage:
		return e.expandCoverage()
	case ActionAdvanceEvidence:
		return e.advanceEvidence(ctx)
	case ActionSatisfyStall:
		return e.satisfyStall(ctx)
	case ActionExhaustionStop:
		return e.exhaustionStop(ctx)
	default:
		return fmt.Errorf("unrecognized action %q", action)
	}
}

func (e *Engine) verifyPrereqs() error {
	s := e.state
	var missing []string
	if e.cfg.Executor == nil {
		missing = append(missing, "probe executor")
	}
	if e.cfg.Gates == nil {
		missing = append(missing, "gating check provider")
	}
	if e.cfg.Checkpoints == nil {
		missing = append(missing, "checkpoint store")
	}
	if e.cfg.Registry == nil {
		missing = append(missing, "mutation registry")
	}
	if len(s.Portfolio.Targets()) == 0 {
		missing = append(missing, "seed target states")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrPrerequisites, missing)
	}
	s.PrereqsVerified = true
	s.Record(TrailDecision, "prerequisites verified")
	return nil
}

func (e *Engine) refreshGates(ctx context.Context) error {
	s := e.state
	cctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()
	rep, err := e.cfg.Gates.CheckGates(cctx, e.cfg.TargetSystemRef)
	if err != nil {
		// Recoverable: the rule fires again next tick.
		return fmt.Errorf("gating check: %w", err)
	}
	s.Gates = &rep
	s.GateIteration = s.Iteration
	detail := "gates live"
	if !rep.Live {
		detail = "gates dead"
		if len(rep.Reasons) > 0 {
			detail += ": " + rep.Reasons[0]
		}
	}
	s.Record(TrailDecision, detail)
	return nil
}

// expandCoverage seeds one hypothesis on the first under-covered target,
// choosing the first missing diversity shape. Sketches lean on the current
// convergence ranking when the target was mined from it.
func (e *Engine) expandCoverage() error {
	s := e.state
	below := s.Portfolio.BelowMinimum()
	if len(below) == 0 {
		return nil
	}
	targetID := below[0]
	var target hypothesis.TargetState
	for _, t := range s.Portfolio.Targets() {
		if t.ID == targetID {
			target = t
			break
		}
	}

	cov, _ := s.Portfolio.Coverage(targetID)
	var shape hypothesis.Shape
	switch {
	case !cov.Simple:
		shape = hypothesis.ShapeSimple
	case !cov.CrossBoundary:
		shape = hypothesis.ShapeCrossBoundary
	default:
		shape = hypothesis.ShapeSimple
	}

	n := len(s.Portfolio.Hypotheses(targetID))
	sketch := fmt.Sprintf("%s via %s route %d", target.Description, shape, n+1)
	if target.RegionClassID != "" {
		sketch += " through region " + target.RegionClassID
	}

	h := hypothesis.New("", targetID, sketch, shape)
	if err := s.Portfolio.Seed(targetID, h); err != nil {
		return err
	}
	s.Record(TrailDecision, fmt.Sprintf("seeded %s hypothesis on %s", shape, targetID))
	return nil
}

// advanceEvidence moves the active hypothesis one rung: observe, dispatch a
// falsification probe, retry an unknown, dispatch a promotion probe, or
// mutate/rotate past a dead end.
func (e *Engine) advanceEvidence(ctx context.Context) error {
	s := e.state
	target, ok := s.Portfolio.ActiveTarget()
	if !ok {
		return errors.New("no active target")
	}
	h, ok := s.Portfolio.ActiveHypothesis(target.ID)
	if !ok {
		return fmt.Errorf("target %s has no active hypothesis", target.ID)
	}

	switch h.Level {
	case hypothesis.LevelModeled:
		next, err := hypothesis.Observe(h, *s.Gates)
		if err != nil {
			return err
		}
		up, err := s.Portfolio.Update(next)
		if err != nil {
			return err
		}
		if up {
			e.tickUpgraded = true
		}
		s.Record(TrailTransition, fmt.Sprintf("%s: %s -> %s", h.ID, h.Level, next.Level))
		return nil

	case hypothesis.LevelObserved:
		return e.dispatchProbe(h, probe.AnchorDev)

	case hypothesis.LevelUnknown:
		if s.RetryCounts[h.ID] > e.cfg.RetryLimit {
			blocked, err := hypothesis.Block(h, "probe retries exhausted")
			if err != nil {
				return err
			}
			_, err = s.Portfolio.Update(blocked)
			return err
		}
		next, err := hypothesis.Reobserve(h)
		if err != nil {
			return err
		}
		if _, err := s.Portfolio.Update(next); err != nil {
			return err
		}
		s.Record(TrailTransition, fmt.Sprintf("%s: retrying after unknown", h.ID))
		return nil

	case hypothesis.LevelFalsified:
		// Promotion needs a gate answer from this investment window, not a
		// stale one. Invalidate and let the gating rule refetch.
		if !s.GatesFresh(1) {
			s.Gates = nil
			s.Record(TrailDecision, "gates invalidated before promotion attempt")
			return nil
		}
		if !s.Gates.Live {
			blocked, err := hypothesis.Block(h, "gates dead before promotion")
			if err != nil {
				return err
			}
			_, err = s.Portfolio.Update(blocked)
			return err
		}
		return e.dispatchProbe(h, probe.AnchorPromotion)

	case hypothesis.LevelDisproved, hypothesis.LevelBlocked:
		return e.mutateOrRotate(ctx, target.ID, h)

	default:
		return fmt.Errorf("no advancement from level %s", h.Level)
	}
}

// mutateOrRotate derives a child from a dead hypothesis, or rotates focus to
// a sibling once the lineage hit the mutation cap or the catalog ran dry.
func (e *Engine) mutateOrRotate(ctx context.Context, targetID string, h hypothesis.Hypothesis) error {
	s := e.state

	if len(h.AppliedMutations) >= e.cfg.MutationCap {
		if id, err := s.Portfolio.Rotate(targetID); err == nil {
			s.Record(TrailDecision, fmt.Sprintf("lineage of %s at mutation cap, rotated to %s", h.ID, id))
			e.cfg.Metrics.RecordRotation(ctx, targetID)
			return nil
		}
		// No sibling can progress; fall through and keep mutating.
	}

	child, err := s.Portfolio.Mutate(h.ID, e.cfg.Registry)
	if errors.Is(err, mutation.ErrNoneApplicable) {
		id, rerr := s.Portfolio.Rotate(targetID)
		if rerr != nil {
			// Nothing left on this target; the exhaustion rule takes over
			// once every target looks like this.
			s.Record(TrailDecision, fmt.Sprintf("no mutation or rotation left on %s", targetID))
			return nil
		}
		s.Record(TrailDecision, fmt.Sprintf("operator catalog exhausted for %s, rotated to %s", h.ID, id))
		e.cfg.Metrics.RecordRotation(ctx, targetID)
		return nil
	}
	if err != nil {
		return err
	}

	op := child.AppliedMutations[len(child.AppliedMutations)-1]
	s.MutationHistory = append(s.MutationHistory, MutationRecord{
		Iteration:  s.Iteration,
		ParentID:   h.ID,
		ChildID:    child.ID,
		OperatorID: op,
	})
	s.Record(TrailDecision, fmt.Sprintf("mutated %s with %s -> %s", h.ID, op, child.ID))
	e.cfg.Metrics.RecordMutation(ctx, op)
	logging.NewEvent(e.log.Info()).
		Add(logging.Tick(s.Iteration)).
		Add(logging.HypothesisID(child.ID)).
		Add(logging.Operator(op)).
		Add(logging.TargetState(targetID)).
		Msg("mutation applied")
	return nil
}

// satisfyStall takes exactly one of the pending constraint's escapes, in
// option order, first feasible wins.
func (e *Engine) satisfyStall(ctx context.Context) error {
	s := e.state
	p := s.Stall.Pending
	if p == nil {
		return nil
	}
	defer s.Stall.Consume()

	for _, opt := range p.Options {
		switch opt {
		case EscapeSwitchTarget:
			if id, ok := s.Portfolio.NextOpenTarget(); ok {
				if err := s.Portfolio.SwitchTarget(id); err != nil {
					continue
				}
				s.Record(TrailStall, "escape: switched target to "+id)
				e.cfg.Metrics.RecordStallConstraint(ctx, string(opt))
				return nil
			}
		case EscapeInjectTarget:
			if id, ok := e.injectTarget(); ok {
				s.Record(TrailStall, "escape: injected target "+id)
				e.cfg.Metrics.RecordStallConstraint(ctx, string(opt))
				return nil
			}
		case EscapeForceFusion:
			target, ok := s.Portfolio.ActiveTarget()
			if !ok {
				continue
			}
			child, err := s.Portfolio.ForceFusion(target.ID, e.cfg.Registry)
			if err != nil {
				continue
			}
			s.MutationHistory = append(s.MutationHistory, MutationRecord{
				Iteration:  s.Iteration,
				ParentID:   child.ParentID,
				ChildID:    child.ID,
				OperatorID: "fusion",
			})
			s.Record(TrailStall, "escape: forced fusion "+child.ID)
			e.cfg.Metrics.RecordStallConstraint(ctx, string(opt))
			return nil
		}
	}
	s.Record(TrailDiagnostic, "stall constraint had no feasible escape")
	return nil
}

// injectTarget mines the convergence ranking for a point no existing target
// covers and opens a target state on it.
func (e *Engine) injectTarget() (string, bool) {
	s := e.state
	used := make(map[string]bool)
	for _, t := range s.Portfolio.Targets() {
		if t.RegionClassID != "" {
			used[t.RegionClassID] = true
		}
	}
	for _, pt := range s.Ranking.Points {
		if used[pt.RegionClassID] {
			continue
		}
		id := "ts-" + pt.RegionClassID
		t := hypothesis.NewTargetState(id, "invariant negation in region "+pt.RegionClassID)
		t.RegionClassID = pt.RegionClassID
		if err := s.Portfolio.AddTarget(t); err != nil {
			continue
		}
		seed := hypothesis.New("", id,
			fmt.Sprintf("%s via simple route 1 through region %s", t.Description, pt.RegionClassID),
			hypothesis.ShapeSimple)
		if err := s.Portfolio.Seed(id, seed); err != nil {
			return id, true
		}
		_ = s.Portfolio.SwitchTarget(id)
		return id, true
	}
	return "", false
}

// exhaustionStop classifies every open target exhausted, captures the
// finding watermark, emits the exhaustion report, and leaves the loop parked
// until the model changes.
func (e *Engine) exhaustionStop(ctx context.Context) error {
	s := e.state

	var nextMutations []string
	for _, t := range s.Portfolio.Targets() {
		if h, ok := s.Portfolio.ActiveHypothesis(t.ID); ok {
			nextMutations = append(nextMutations, e.cfg.Registry.ApplicableIDs(h)...)
		}
		if err := s.Portfolio.MarkExhausted(t.ID); err != nil {
			return err
		}
	}
	s.ExhaustedAtSeq = s.Findings.Sequence()

	e.life.Context().ExhaustionEligible = true
	e.life.Send("EXHAUST")
	s.Phase = PhaseExhausted
	s.Record(TrailTransition, "search exhausted, checkpoint taken")

	r := report.Report{
		Kind:          report.KindExhausted,
		NextMutations: nextMutations,
		Unknowns:      s.Unknowns,
		Iteration:     s.Iteration,
		GeneratedAt:   time.Now(),
	}
	if e.cfg.Reporter != nil {
		if err := e.cfg.Reporter.Emit(ctx, r); err != nil {
			s.Record(TrailDiagnostic, "emit exhaustion report: "+err.Error())
		} else {
			s.Record(TrailReport, "exhaustion report emitted")
		}
	}
	logging.NewEvent(e.log.Info()).
		Add(logging.Tick(s.Iteration)).
		Add(logging.Phase(string(s.Phase))).
		Msg("exhaustion checkpoint")
	return nil
}

// concludePromoted emits the promotion report and ends the investigation.
func (e *Engine) concludePromoted(ctx context.Context, h hypothesis.Hypothesis) {
	s := e.state

	var capability string
	for _, t := range s.Portfolio.Targets() {
		if t.ID == h.TargetID {
			capability = t.Description
			break
		}
	}

	r := report.Report{
		Kind:          report.KindPromoted,
		Capability:    capability,
		TargetStateID: h.TargetID,
		Lineage:       h.Lineage(s.Portfolio.Hypothesis),
		Evidence: report.EvidenceChain{
			FindingIDs:   h.EvidenceFindings,
			ArtifactRefs: h.ArtifactRefs,
		},
		MeasuredDelta: h.MeasuredDelta,
		Unknowns:      s.Unknowns,
		Iteration:     s.Iteration,
		GeneratedAt:   time.Now(),
	}
	if e.cfg.Reporter != nil {
		if err := e.cfg.Reporter.Emit(ctx, r); err != nil {
			s.Record(TrailDiagnostic, "emit promotion report: "+err.Error())
		} else {
			s.Record(TrailReport, "promotion report emitted")
		}
	}

	e.life.Send("PROMOTE")
	s.Phase = PhasePromoted
	s.Record(TrailTransition, "hypothesis "+h.ID+" promoted, investigation concluded")
	logging.NewEvent(e.log.Info()).
		Add(logging.Tick(s.Iteration)).
		Add(logging.HypothesisID(h.ID)).
		Add(logging.TargetState(h.TargetID)).
		Msg("promotion")
}

// dispatchProbe launches one probe for the hypothesis. At most one probe per
// hypothesis is outstanding; the portfolio enforces it.
func (e *Engine) dispatchProbe(h hypothesis.Hypothesis, anchor probe.Anchor) error {
	if err := e.state.Portfolio.MarkInFlight(h.ID); err != nil {
		return err
	}
	req := probe.Request{
		HypothesisID: h.ID,
		Anchor:       anchor,
		Spec:         probeSpec(h),
	}
	e.state.Record(TrailProbe, fmt.Sprintf("dispatched %s probe for %s", anchor, h.ID))
	e.wg.Add(1)
	go e.runProbe(req)
	return nil
}

func (e *Engine) runProbe(req probe.Request) {
	defer e.wg.Done()
	e.cfg.Metrics.IncrementInFlightProbes(e.probeCtx)
	defer e.cfg.Metrics.DecrementInFlightProbes(e.probeCtx)
	if err := e.sem.Acquire(e.probeCtx, 1); err != nil {
		e.results <- probeOutcome{
			hypothesisID: req.HypothesisID,
			anchor:       req.Anchor,
			err:          fmt.Errorf("%w: %v", probe.ErrCancelled, err),
		}
		return
	}
	defer e.sem.Release(1)

	ctx, cancel := context.WithTimeout(e.probeCtx, e.cfg.ProbeTimeout)
	defer cancel()
	start := time.Now()
	res, err := e.cfg.Executor.RunProbe(ctx, req)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", probe.ErrCancelled, err)
	}
	status := string(res.Status)
	if err != nil {
		status = "error"
	}
	e.cfg.Metrics.RecordProbeExecution(e.probeCtx, req.HypothesisID, string(req.Anchor), status, time.Since(start))
	logging.NewEvent(e.log.Debug()).
		Add(logging.HypothesisID(req.HypothesisID)).
		Add(logging.Anchor(string(req.Anchor))).
		Add(logging.Duration(time.Since(start))).
		Add(logging.ErrorField(err)).
		Msg("probe completed")
	e.results <- probeOutcome{
		hypothesisID: req.HypothesisID,
		anchor:       req.Anchor,
		res:          res,
		err:          err,
	}
}

// probeSpec builds the executor-facing description of what to run.
func probeSpec(h hypothesis.Hypothesis) json.RawMessage {
	spec, err := json.Marshal(struct {
		TargetID  string   `json:"target_id"`
		Route     string   `json:"route"`
		Shape     string   `json:"shape"`
		Mutations []string `json:"mutations,omitempty"`
	}{
		TargetID:  h.TargetID,
		Route:     h.RouteSketch,
		Shape:     string(h.Shape),
		Mutations: h.AppliedMutations,
	})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return spec
}

// checkpoint captures and persists the state, updating the resume head.
func (e *Engine) checkpoint(ctx context.Context) error {
	if e.cfg.Checkpoints == nil {
		return nil
	}
	s := e.state
	ref, data, err := Encode(Capture(s))
	if err != nil {
		return err
	}
	if err := e.cfg.Checkpoints.Put(ctx, ref, data); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	if err := e.cfg.Checkpoints.SetLatest(ctx, ref); err != nil {
		return fmt.Errorf("advance checkpoint head: %w", err)
	}
	e.lastCheckpointRef = ref
	e.cfg.Metrics.RecordCheckpoint(ctx)
	return nil
}

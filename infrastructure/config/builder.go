package config

import (
	"fmt"

	"github.com/inquestlabs/inquest/domain/convergence"
	"github.com/inquestlabs/inquest/domain/mutation"
	"github.com/inquestlabs/inquest/domain/probe"
	"github.com/inquestlabs/inquest/domain/report"
	"github.com/inquestlabs/inquest/infrastructure/checkpoint/badger"
	"github.com/inquestlabs/inquest/infrastructure/checkpoint/filesystem"
	"github.com/inquestlabs/inquest/infrastructure/checkpoint/memory"
	"github.com/inquestlabs/inquest/infrastructure/resilience"
	"github.com/inquestlabs/inquest/orchestrator"
)

// Builder assembles engine components from configuration.
type Builder struct {
	config *InvestigationConfig
}

// NewBuilder creates a builder for the given configuration.
func NewBuilder(config *InvestigationConfig) *Builder {
	return &Builder{config: config}
}

// BuildResult contains the assembled components.
type BuildResult struct {
	// Engine is the orchestrator configuration, ready for NewController.
	Engine orchestrator.Config

	// closers release backend resources in reverse acquisition order.
	closers []func() error
}

// Close releases backend resources (the badger database, when used).
func (r *BuildResult) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build wires the configured checkpoint backend, probe cache, resilience
// decorators, and convergence scorer around the supplied ports.
func (b *Builder) Build(executor probe.Executor, gates probe.GateChecker, reporter report.Emitter) (*BuildResult, error) {
	cfg := b.config
	result := &BuildResult{}

	agg, err := convergence.AggregatorByName(aggregatorName(cfg.Convergence.Aggregator))
	if err != nil {
		return nil, fmt.Errorf("building scorer: %w", err)
	}

	if cfg.Resilience.Enabled && executor != nil {
		executor = resilience.NewExecutor(executor, resilience.ExecutorConfig{
			MaxConcurrent:           cfg.Engine.MaxConcurrentProbes,
			CircuitBreakerThreshold: cfg.Resilience.CircuitBreakerThreshold,
			CircuitBreakerTimeout:   cfg.Resilience.CircuitBreakerTimeout.Std(),
			RetryMaxAttempts:        cfg.Resilience.RetryMaxAttempts,
			RetryInitialDelay:       cfg.Resilience.RetryInitialDelay.Std(),
		})
		gates = resilience.NewGates(gates, cfg.Resilience.RetryMaxAttempts, cfg.Resilience.RetryInitialDelay.Std())
	}

	var checkpoints orchestrator.CheckpointStore
	switch cfg.Checkpoint.Backend {
	case BackendMemory, "":
		checkpoints = memory.NewStore()
	case BackendFilesystem:
		store, err := filesystem.NewStore(cfg.Checkpoint.Path)
		if err != nil {
			return nil, fmt.Errorf("building filesystem checkpoint store: %w", err)
		}
		checkpoints = store
	case BackendBadger:
		bcfg := badger.DefaultConfig(cfg.Checkpoint.Path)
		bcfg.SyncWrites = cfg.Checkpoint.SyncWrites
		store, err := badger.NewStore(bcfg)
		if err != nil {
			return nil, fmt.Errorf("building badger checkpoint store: %w", err)
		}
		checkpoints = store
		result.closers = append(result.closers, store.Close)

		if cfg.Checkpoint.CacheProbes && executor != nil {
			executor = badger.NewCachedExecutor(executor, store.DB(), cfg.Checkpoint.CacheTTL.Std())
		}
	default:
		return nil, fmt.Errorf("%w: checkpoint backend %q", ErrValidationFailed, cfg.Checkpoint.Backend)
	}

	result.Engine = orchestrator.Config{
		Registry:            mutation.NewBuiltinRegistry(),
		Executor:            executor,
		Gates:               gates,
		Checkpoints:         checkpoints,
		Reporter:            reporter,
		Scorer:              convergence.NewScorer(agg),
		TargetSystemRef:     cfg.TargetSystemRef,
		MaxConcurrentProbes: int64(cfg.Engine.MaxConcurrentProbes),
		ProbeTimeout:        cfg.Engine.ProbeTimeout.Std(),
		RetryLimit:          cfg.Engine.RetryLimit,
		MutationCap:         cfg.Engine.MutationCap,
		StallThreshold:      cfg.Engine.StallThreshold,
		TickInterval:        cfg.Engine.TickInterval.Std(),
	}
	return result, nil
}

func aggregatorName(name string) string {
	if name == "" {
		return "max"
	}
	return name
}

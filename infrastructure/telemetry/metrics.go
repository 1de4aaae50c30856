// Package telemetry provides OpenTelemetry metrics for the investigation
// engine: probe traffic, evidence transitions, portfolio churn, and the
// tick loop itself.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider provides access to metrics instruments.
type MetricsProvider struct {
	meter metric.Meter

	// Counters
	probeExecutions  metric.Int64Counter
	levelTransitions metric.Int64Counter
	mutations        metric.Int64Counter
	rotations        metric.Int64Counter
	stalls           metric.Int64Counter
	checkpoints      metric.Int64Counter
	findingsIngested metric.Int64Counter
	errors           metric.Int64Counter

	// Histograms
	probeDuration metric.Float64Histogram
	tickDuration  metric.Float64Histogram

	// Gauges (using UpDownCounter for OpenTelemetry)
	inFlightProbes metric.Int64UpDownCounter

	initOnce sync.Once
	initErr  error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter (default: "github.com/inquestlabs/inquest").
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// Attributes are default attributes to attach to all metrics.
	Attributes []attribute.KeyValue
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/inquestlabs/inquest",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config = DefaultMetricsConfig()
	}

	provider := otel.GetMeterProvider()
	meter := provider.Meter(
		config.MeterName,
		metric.WithInstrumentationVersion(config.MeterVersion),
	)

	mp := &MetricsProvider{
		meter: meter,
	}

	mp.initOnce.Do(func() {
		mp.initErr = mp.initInstruments()
	})

	return mp
}

// initInstruments initializes all metric instruments.
func (mp *MetricsProvider) initInstruments() error {
	var err error

	// Counters
	mp.probeExecutions, err = mp.meter.Int64Counter(
		"inquest.probe.executions",
		metric.WithDescription("Number of probe executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return err
	}

	mp.levelTransitions, err = mp.meter.Int64Counter(
		"inquest.evidence.transitions",
		metric.WithDescription("Number of evidence level transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return err
	}

	mp.mutations, err = mp.meter.Int64Counter(
		"inquest.portfolio.mutations",
		metric.WithDescription("Number of hypothesis mutations"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return err
	}

	mp.rotations, err = mp.meter.Int64Counter(
		"inquest.portfolio.rotations",
		metric.WithDescription("Number of focus rotations"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return err
	}

	mp.stalls, err = mp.meter.Int64Counter(
		"inquest.stall.constraints",
		metric.WithDescription("Number of stall escape constraints raised"),
		metric.WithUnit("{constraint}"),
	)
	if err != nil {
		return err
	}

	mp.checkpoints, err = mp.meter.Int64Counter(
		"inquest.checkpoints",
		metric.WithDescription("Number of checkpoints written"),
		metric.WithUnit("{checkpoint}"),
	)
	if err != nil {
		return err
	}

	mp.findingsIngested, err = mp.meter.Int64Counter(
		"inquest.findings.ingested",
		metric.WithDescription("Number of findings ingested"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return err
	}

	mp.errors, err = mp.meter.Int64Counter(
		"inquest.errors",
		metric.WithDescription("Number of errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	// Histograms
	mp.probeDuration, err = mp.meter.Float64Histogram(
		"inquest.probe.duration",
		metric.WithDescription("Duration of probe executions"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	mp.tickDuration, err = mp.meter.Float64Histogram(
		"inquest.tick.duration",
		metric.WithDescription("Duration of decision loop ticks"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	// Gauges (UpDownCounters)
	mp.inFlightProbes, err = mp.meter.Int64UpDownCounter(
		"inquest.probe.inflight",
		metric.WithDescription("Number of outstanding probes"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordProbeExecution records one completed probe.
func (mp *MetricsProvider) RecordProbeExecution(ctx context.Context, hypothesisID, anchor, status string, duration time.Duration) {
	if mp == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("hypothesis.id", hypothesisID),
		attribute.String("probe.anchor", anchor),
		attribute.String("probe.status", status),
	}

	mp.probeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	mp.probeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordLevelTransition records an evidence ladder move.
func (mp *MetricsProvider) RecordLevelTransition(ctx context.Context, fromLevel, toLevel, hypothesisID string) {
	if mp == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("level.from", fromLevel),
		attribute.String("level.to", toLevel),
		attribute.String("hypothesis.id", hypothesisID),
	}

	mp.levelTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMutation records a hypothesis mutation.
func (mp *MetricsProvider) RecordMutation(ctx context.Context, operatorID string) {
	if mp == nil {
		return
	}
	mp.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operator.id", operatorID),
	))
}

// RecordRotation records a focus rotation within a target.
func (mp *MetricsProvider) RecordRotation(ctx context.Context, targetID string) {
	if mp == nil {
		return
	}
	mp.rotations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target.id", targetID),
	))
}

// RecordStallConstraint records an escape constraint being raised.
func (mp *MetricsProvider) RecordStallConstraint(ctx context.Context, escape string) {
	if mp == nil {
		return
	}
	mp.stalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("escape.kind", escape),
	))
}

// RecordCheckpoint records a checkpoint write.
func (mp *MetricsProvider) RecordCheckpoint(ctx context.Context) {
	if mp == nil {
		return
	}
	mp.checkpoints.Add(ctx, 1)
}

// RecordFindingIngested records one ingested finding.
func (mp *MetricsProvider) RecordFindingIngested(ctx context.Context, lensID string) {
	if mp == nil {
		return
	}
	mp.findingsIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("lens.id", lensID),
	))
}

// RecordError records an error.
func (mp *MetricsProvider) RecordError(ctx context.Context, errorType string, details map[string]string) {
	if mp == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("error.type", errorType),
	}
	for k, v := range details {
		attrs = append(attrs, attribute.String(k, v))
	}

	mp.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTickDuration records the duration of one decision loop tick.
func (mp *MetricsProvider) RecordTickDuration(ctx context.Context, duration time.Duration, phase string) {
	if mp == nil {
		return
	}
	mp.tickDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("phase", phase),
	))
}

// IncrementInFlightProbes increments the outstanding probe gauge.
func (mp *MetricsProvider) IncrementInFlightProbes(ctx context.Context) {
	if mp == nil {
		return
	}
	mp.inFlightProbes.Add(ctx, 1)
}

// DecrementInFlightProbes decrements the outstanding probe gauge.
func (mp *MetricsProvider) DecrementInFlightProbes(ctx context.Context) {
	if mp == nil {
		return
	}
	mp.inFlightProbes.Add(ctx, -1)
}

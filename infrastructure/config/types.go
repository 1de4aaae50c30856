package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration errors.
var (
	// ErrConfigNotFound is returned when the config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidFormat is returned when the config cannot be parsed.
	ErrInvalidFormat = errors.New("invalid config format")

	// ErrUnsupportedFormat is returned for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrValidationFailed is returned when the config fails validation.
	ErrValidationFailed = errors.New("config validation failed")

	// ErrMissingEnvVar is returned when a required env var is unset.
	ErrMissingEnvVar = errors.New("missing environment variable")
)

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML parses a duration string from YAML.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON parses a duration string from JSON.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// InvestigationConfig is the root configuration document.
type InvestigationConfig struct {
	// Name is a human-readable name for this investigation.
	Name string `yaml:"name" json:"name"`

	// Version is the configuration schema version.
	Version string `yaml:"version" json:"version"`

	// TargetSystemRef identifies the system under investigation for the
	// gating check provider.
	TargetSystemRef string `yaml:"target_system_ref" json:"target_system_ref"`

	Engine      EngineConfig      `yaml:"engine" json:"engine"`
	Probe       ProbeConfig       `yaml:"probe" json:"probe"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint" json:"checkpoint"`
	Ingest      IngestConfig      `yaml:"ingest" json:"ingest"`
	Reports     ReportsConfig     `yaml:"reports" json:"reports"`
	Convergence ConvergenceConfig `yaml:"convergence" json:"convergence"`
	Resilience  ResilienceConfig  `yaml:"resilience" json:"resilience"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// ProbeConfig names the external probe machinery.
type ProbeConfig struct {
	// Command is the probe runner argv, spawned once per probe with the
	// request on stdin.
	Command []string `yaml:"command" json:"command"`

	// GateCommand is the gating check argv, same stdin/stdout contract.
	GateCommand []string `yaml:"gate_command" json:"gate_command"`
}

// ReportsConfig configures report rendering.
type ReportsConfig struct {
	// Dir receives one markdown document per emitted report. Empty means
	// reports stream to stdout as JSON lines only.
	Dir string `yaml:"dir" json:"dir"`
}

// EngineConfig tunes the tick loop.
type EngineConfig struct {
	// MaxConcurrentProbes caps outstanding probe executions.
	MaxConcurrentProbes int `yaml:"max_concurrent_probes" json:"max_concurrent_probes"`

	// ProbeTimeout bounds a single probe execution.
	ProbeTimeout Duration `yaml:"probe_timeout" json:"probe_timeout"`

	// RetryLimit is the per-hypothesis budget for unknown outcomes.
	RetryLimit int `yaml:"retry_limit" json:"retry_limit"`

	// MutationCap bounds the mutation chain depth per hypothesis line.
	MutationCap int `yaml:"mutation_cap" json:"mutation_cap"`

	// StallThreshold is the number of ticks without an evidence upgrade
	// before an escape constraint is raised.
	StallThreshold int `yaml:"stall_threshold" json:"stall_threshold"`

	// TickInterval is the pacing of the decision loop.
	TickInterval Duration `yaml:"tick_interval" json:"tick_interval"`
}

// CheckpointBackend names a checkpoint store implementation.
type CheckpointBackend string

const (
	BackendMemory     CheckpointBackend = "memory"
	BackendFilesystem CheckpointBackend = "filesystem"
	BackendBadger     CheckpointBackend = "badger"
)

// CheckpointConfig selects and tunes the checkpoint store.
type CheckpointConfig struct {
	// Backend is one of memory, filesystem, badger.
	Backend CheckpointBackend `yaml:"backend" json:"backend"`

	// Path is the store directory for the filesystem and badger backends.
	Path string `yaml:"path" json:"path"`

	// SyncWrites forces fsync on every badger write.
	SyncWrites bool `yaml:"sync_writes" json:"sync_writes"`

	// CacheProbes enables the badger-backed probe result cache.
	CacheProbes bool `yaml:"cache_probes" json:"cache_probes"`

	// CacheTTL bounds how long a cached probe result is trusted.
	CacheTTL Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// IngestConfig configures the findings drop directory watcher.
type IngestConfig struct {
	// Enabled turns the watcher on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Dir is the directory analyzer lenses drop finding documents into.
	Dir string `yaml:"dir" json:"dir"`
}

// ConvergenceConfig selects the score aggregation strategy.
type ConvergenceConfig struct {
	// Aggregator is one of max, mean, median.
	Aggregator string `yaml:"aggregator" json:"aggregator"`
}

// ResilienceConfig tunes the probe executor decorators.
type ResilienceConfig struct {
	// Enabled wraps the probe executor with retry and circuit breaking.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// RetryMaxAttempts is the maximum attempts per probe.
	RetryMaxAttempts int `yaml:"retry_max_attempts" json:"retry_max_attempts"`

	// RetryInitialDelay is the initial backoff delay.
	RetryInitialDelay Duration `yaml:"retry_initial_delay" json:"retry_initial_delay"`

	// CircuitBreakerThreshold is the consecutive-failure trip point.
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold" json:"circuit_breaker_threshold"`

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout Duration `yaml:"circuit_breaker_timeout" json:"circuit_breaker_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level" json:"level"`

	// Format is the output format (json or console).
	Format string `yaml:"format" json:"format"`
}

// Default returns a configuration with every knob at its default.
func Default() *InvestigationConfig {
	return &InvestigationConfig{
		Version: "1.0",
		Engine: EngineConfig{
			MaxConcurrentProbes: 4,
			ProbeTimeout:        Duration(2 * time.Minute),
			RetryLimit:          3,
			MutationCap:         3,
			StallThreshold:      5,
			TickInterval:        Duration(50 * time.Millisecond),
		},
		Checkpoint: CheckpointConfig{
			Backend:    BackendBadger,
			SyncWrites: true,
			CacheTTL:   Duration(time.Hour),
		},
		Convergence: ConvergenceConfig{Aggregator: "max"},
		Resilience: ResilienceConfig{
			Enabled:                 true,
			RetryMaxAttempts:        3,
			RetryInitialDelay:       Duration(100 * time.Millisecond),
			CircuitBreakerThreshold: 5,
			CircuitBreakerTimeout:   Duration(30 * time.Second),
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// ValidationErrors collects every validation failure in one pass.
type ValidationErrors struct {
	Errors []string
}

// HasErrors reports whether any failures were recorded.
func (v *ValidationErrors) HasErrors() bool { return len(v.Errors) > 0 }

func (v *ValidationErrors) add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Error joins the failures into one message.
func (v *ValidationErrors) Error() string {
	return strings.Join(v.Errors, "; ")
}

// Validate checks the configuration for internal consistency.
func Validate(cfg *InvestigationConfig) *ValidationErrors {
	errs := &ValidationErrors{}

	if cfg.Name == "" {
		errs.add("name is required")
	}
	if cfg.TargetSystemRef == "" {
		errs.add("target_system_ref is required")
	}
	if cfg.Engine.MaxConcurrentProbes < 0 {
		errs.add("engine.max_concurrent_probes must not be negative")
	}
	if cfg.Engine.RetryLimit < 0 {
		errs.add("engine.retry_limit must not be negative")
	}
	if cfg.Engine.MutationCap < 0 {
		errs.add("engine.mutation_cap must not be negative")
	}
	if cfg.Engine.StallThreshold < 0 {
		errs.add("engine.stall_threshold must not be negative")
	}

	switch cfg.Checkpoint.Backend {
	case BackendMemory, "":
	case BackendFilesystem, BackendBadger:
		if cfg.Checkpoint.Path == "" {
			errs.add("checkpoint.path is required for the %s backend", cfg.Checkpoint.Backend)
		}
	default:
		errs.add("checkpoint.backend %q is not one of memory, filesystem, badger", cfg.Checkpoint.Backend)
	}

	if cfg.Ingest.Enabled && cfg.Ingest.Dir == "" {
		errs.add("ingest.dir is required when ingest is enabled")
	}

	switch cfg.Convergence.Aggregator {
	case "", "max", "mean", "median":
	default:
		errs.add("convergence.aggregator %q is not one of max, mean, median", cfg.Convergence.Aggregator)
	}

	switch cfg.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs.add("logging.level %q is not a known level", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "", "json", "console":
	default:
		errs.add("logging.format %q is not one of json, console", cfg.Logging.Format)
	}

	return errs
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/inquestlabs/inquest/domain/report"
	"github.com/inquestlabs/inquest/infrastructure/config"
	"github.com/inquestlabs/inquest/infrastructure/ingest"
	"github.com/inquestlabs/inquest/infrastructure/logging"
	"github.com/inquestlabs/inquest/infrastructure/proberunner"
	"github.com/inquestlabs/inquest/infrastructure/reporting"
	"github.com/inquestlabs/inquest/infrastructure/telemetry"
	"github.com/inquestlabs/inquest/orchestrator"
)

// ErrProbeCommandRequired is returned when the config names no probe runner.
var ErrProbeCommandRequired = errors.New("probe.command and probe.gate_command are required to run")

// newRunCmd creates the run command.
func (a *App) newRunCmd() *cobra.Command {
	var (
		configPath string
		seedsPath  string
		resumeRef  string
		jsonOut    bool
		timeout    time.Duration
		verbose    bool
		metricsOut bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an investigation to promotion or exhaustion",
		Long: `Run seeds an investigation from a seed file and drives the tick loop
until a capability is promoted, the search space is exhausted, or the
process receives an interrupt. Interrupts stop gracefully: in-flight
probes finish, their results are applied, and a final checkpoint is
taken so --resume picks up where the run left off.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().LoadFile(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			logging.Init(logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: os.Stderr,
			})
			if verbose {
				logging.SetLevel("debug")
			}

			if len(cfg.Probe.Command) == 0 || len(cfg.Probe.GateCommand) == 0 {
				return ErrProbeCommandRequired
			}
			executor, err := proberunner.NewRunner(cfg.Probe.Command)
			if err != nil {
				return err
			}
			gates, err := proberunner.NewGateCommand(cfg.Probe.GateCommand)
			if err != nil {
				return err
			}

			var emitters []report.Emitter
			if cfg.Reports.Dir != "" {
				fe, err := reporting.NewFileEmitter(cfg.Reports.Dir)
				if err != nil {
					return err
				}
				emitters = append(emitters, fe)
			}
			if jsonOut || len(emitters) == 0 {
				emitters = append(emitters, reporting.NewWriterEmitter(a.stdout))
			}

			built, err := config.NewBuilder(cfg).Build(executor, gates, reporting.Multi(emitters...))
			if err != nil {
				return err
			}
			defer func() {
				if cerr := built.Close(); cerr != nil {
					logging.NewEvent(logging.Get().Warn()).
						Add(logging.Component("cli")).
						Add(logging.ErrorField(cerr)).
						Msg("closing backends")
				}
			}()
			if metricsOut {
				shutdown, err := telemetry.InitStdoutExporter(a.stderr, 30*time.Second)
				if err != nil {
					return err
				}
				defer func() { _ = shutdown(context.Background()) }()
			}
			metrics := telemetry.NewMetricsProvider(telemetry.DefaultMetricsConfig())
			built.Engine.Metrics = metrics

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			ctl := orchestrator.NewController(built.Engine)
			if resumeRef != "" {
				ref := resumeRef
				if ref == "latest" {
					ref = ""
				}
				if err := ctl.Resume(ctx, ref); err != nil {
					return fmt.Errorf("resuming: %w", err)
				}
			} else {
				seeds, err := loadSeeds(seedsPath)
				if err != nil {
					return err
				}
				if err := ctl.Start(ctx, seeds); err != nil {
					return fmt.Errorf("starting: %w", err)
				}
			}

			var watcher *ingest.Watcher
			if cfg.Ingest.Enabled {
				watcher, err = ingest.NewWatcher(cfg.Ingest.Dir, ctl.Engine().FindingStore(), logging.Get(),
					ingest.WithMetrics(metrics))
				if err != nil {
					_ = ctl.Stop(context.Background())
					return fmt.Errorf("starting ingest watcher: %w", err)
				}
				go func() { _ = watcher.Run(ctx) }()
			}

			runErr := ctl.Wait()
			if watcher != nil {
				_ = watcher.Close()
				<-watcher.Done()
			}

			st, err := ctl.Status()
			if err == nil {
				a.printStatus(st, jsonOut)
			}
			_ = ctl.Stop(context.Background())
			return runErr
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	cmd.Flags().StringVar(&seedsPath, "seeds", "", "path to seed file (targets and initial hypotheses)")
	cmd.Flags().StringVar(&resumeRef, "resume", "", "resume from a checkpoint ref (no value resumes the latest)")
	cmd.Flags().Lookup("resume").NoOptDefVal = "latest"
	cmd.Flags().BoolVar(&jsonOut, "json", false, "stream reports and final status as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop the investigation after this duration")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVar(&metricsOut, "metrics", false, "periodically export metrics to stderr")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// printStatus renders the final status, as JSON or a short text block.
func (a *App) printStatus(st orchestrator.Status, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(st)
		return
	}

	fmt.Fprintf(a.stdout, "phase:       %s\n", st.Phase)
	fmt.Fprintf(a.stdout, "iteration:   %d\n", st.Iteration)
	fmt.Fprintf(a.stdout, "targets:     %d\n", st.Targets)
	fmt.Fprintf(a.stdout, "hypotheses:  %d\n", st.Hypotheses)
	fmt.Fprintf(a.stdout, "findings:    %d\n", st.Findings)
	if st.PromotedHypothesisID != "" {
		fmt.Fprintf(a.stdout, "promoted:    %s\n", st.PromotedHypothesisID)
	}
	if st.CheckpointRef != "" {
		fmt.Fprintf(a.stdout, "checkpoint:  %s\n", st.CheckpointRef)
	}
	fmt.Fprintf(a.stdout, "conclusion:  %s\n", st.Conclusion)
	for _, u := range st.Unknowns {
		fmt.Fprintf(a.stdout, "unknown:     %s\n", u)
	}
}

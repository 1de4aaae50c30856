package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inquestlabs/inquest/infrastructure/config"
	"github.com/inquestlabs/inquest/orchestrator"
)

// newInspectCmd creates the inspect command.
func (a *App) newInspectCmd() *cobra.Command {
	var (
		configPath string
		ref        string
		trailTail  int
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Render a checkpoint from the configured store",
		Long: `Inspect loads a checkpoint from the store named in the configuration
and renders the investigation state it captured: phase, portfolio,
hypothesis levels, and the tail of the decision trail. With no --ref it
shows the resume head.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().LoadFile(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			built, err := config.NewBuilder(cfg).Build(nil, nil, nil)
			if err != nil {
				return err
			}
			defer func() { _ = built.Close() }()

			ctx := cmd.Context()
			store := built.Engine.Checkpoints
			if ref == "" {
				ref, err = store.Latest(ctx)
				if err != nil {
					return fmt.Errorf("resolving latest checkpoint: %w", err)
				}
			}
			data, err := store.Get(ctx, ref)
			if err != nil {
				return fmt.Errorf("loading checkpoint %s: %w", ref, err)
			}
			snap, err := orchestrator.Decode(data)
			if err != nil {
				return err
			}

			a.printSnapshot(ref, snap, trailTail)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	cmd.Flags().StringVar(&ref, "ref", "", "checkpoint ref (default: the resume head)")
	cmd.Flags().IntVar(&trailTail, "trail", 10, "number of trail events to show")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// printSnapshot renders a decoded checkpoint.
func (a *App) printSnapshot(ref string, snap orchestrator.Snapshot, trailTail int) {
	fmt.Fprintf(a.stdout, "checkpoint %s\n", ref)
	fmt.Fprintf(a.stdout, "  taken:     %s\n", snap.TakenAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(a.stdout, "  phase:     %s\n", snap.Phase)
	fmt.Fprintf(a.stdout, "  iteration: %d\n", snap.Iteration)
	fmt.Fprintf(a.stdout, "  findings:  %d\n", len(snap.Findings))
	fmt.Fprintf(a.stdout, "  stall:     %d/%d\n", snap.Stall.Counter, snap.Stall.Threshold)

	for _, ts := range snap.Portfolio.Targets {
		marker := " "
		if ts.Target.ID == snap.Portfolio.ActiveTarget {
			marker = "*"
		}
		fmt.Fprintf(a.stdout, "\n%s target %s [%s] %s\n", marker, ts.Target.ID, ts.Target.Status, ts.Target.Description)
		for _, h := range ts.Hypotheses {
			active := " "
			if h.ID == ts.ActiveID {
				active = "*"
			}
			fmt.Fprintf(a.stdout, "  %s %s level=%s shape=%s", active, h.ID, h.Level, h.Shape)
			if h.WhatKilledIt != "" {
				fmt.Fprintf(a.stdout, " killed=%q", h.WhatKilledIt)
			}
			fmt.Fprintln(a.stdout)
		}
	}

	var probes []orchestrator.TrailEvent
	for _, ev := range snap.Trail {
		if ev.Kind == orchestrator.TrailProbe {
			probes = append(probes, ev)
		}
	}
	if len(probes) > 3 {
		probes = probes[len(probes)-3:]
	}
	if len(probes) > 0 {
		fmt.Fprintln(a.stdout, "\nlast probe results:")
		for _, ev := range probes {
			fmt.Fprintf(a.stdout, "  [%d] %s\n", ev.Iteration, ev.Detail)
		}
	}

	if n := len(snap.MutationHistory); n > 0 {
		start := n - 3
		if start < 0 {
			start = 0
		}
		fmt.Fprintln(a.stdout, "\nrecent mutations:")
		for _, m := range snap.MutationHistory[start:] {
			fmt.Fprintf(a.stdout, "  [%d] %s: %s -> %s\n", m.Iteration, m.OperatorID, m.ParentID, m.ChildID)
		}
	}

	if len(snap.Unknowns) > 0 {
		fmt.Fprintln(a.stdout, "\nunknowns:")
		for _, u := range snap.Unknowns {
			fmt.Fprintf(a.stdout, "  - %s\n", u)
		}
	}

	if trailTail > 0 && len(snap.Trail) > 0 {
		start := len(snap.Trail) - trailTail
		if start < 0 {
			start = 0
		}
		fmt.Fprintln(a.stdout, "\ntrail:")
		for _, ev := range snap.Trail[start:] {
			fmt.Fprintf(a.stdout, "  [%d] %s: %s\n", ev.Iteration, ev.Kind, ev.Detail)
		}
	}
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/proofrun/proofrun/pkg/config"
	"github.com/proofrun/proofrun/pkg/pipeline"
	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

func newRunCommand(version string) *cobra.Command {
	var (
		depth     string
		limit     string
		targets   string
		tags      []string
		extraVars map[string]string
	)

	cmd := &cobra.Command{
		Use:   "run <spec-file>",
		Short: "Execute a run spec through the verification pipeline",
		Long: `Execute a run spec end to end: resolve the inventory, obtain the
artifact, pass the policy gate, run the verification stages, and seal
the evidence bundle.

The spec file may be CUE, YAML, or JSON. Flags override the
corresponding spec fields for this invocation only.

The process exit code mirrors the run outcome: 0 when the run
succeeded, 1 when it failed or was only partially idempotent.`,
		Example: `  # Execute a run spec at full depth
  proofrun run specs/cache.cue

  # Syntax-check the artifact without touching the fleet
  proofrun run specs/cache.cue --depth syntax

  # Override the target list for a staged rollout
  proofrun run specs/cache.cue --targets "canary1,canary2"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.LoadRunSpec(args[0])
			if err != nil {
				return err
			}
			if depth != "" {
				spec.Depth = depth
			}
			if limit != "" {
				spec.Limit = limit
			}
			if targets != "" {
				spec.Targets = targets
			}
			if len(tags) > 0 {
				spec.Tags = tags
			}
			for k, v := range extraVars {
				if spec.ExtraVars == nil {
					spec.ExtraVars = make(map[string]string)
				}
				spec.ExtraVars[k] = v
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tel, err := setupTelemetry(cfg, version)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			p, err := pipeline.New(cmd.Context(), cfg, pipeline.Deps{Telemetry: tel})
			if err != nil {
				return err
			}

			summary, err := p.Execute(cmd.Context(), spec)
			if err != nil {
				tel.Logger.WithError(err).Error("run did not start")
				return err
			}

			if err := printSummary(summary); err != nil {
				return err
			}
			if code := summary.ExitCode(); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&depth, "depth", "d", "", "verification depth (none, syntax, all)")
	cmd.Flags().StringVarP(&limit, "limit", "l", "", "restrict execution to a host subset")
	cmd.Flags().StringVarP(&targets, "targets", "t", "", "override the target specification")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "restrict execution to tagged tasks")
	cmd.Flags().StringToStringVarP(&extraVars, "extra-vars", "e", nil, "extra variables (key=value)")

	return cmd
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

// printSummary renders the run outcome, as JSON with --json or as a short
// human-readable report otherwise.
func printSummary(summary *run.Summary) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("Run %s: %s\n", summary.RunID, summary.OverallStatus)
	for _, st := range summary.Stages {
		outcome := "ok"
		switch {
		case st.Interrupted:
			outcome = "interrupted"
		case st.Failed():
			outcome = "failed"
		case st.Changed():
			outcome = "changed"
		}
		fmt.Printf("  %-14s %-12s exit=%d duration=%s\n",
			st.Stage, outcome, st.ExitCode, st.Duration.Round(time.Millisecond))
	}
	if summary.Aborted {
		fmt.Println("  run aborted before completing all stages")
	}
	if summary.BundlePath != "" {
		fmt.Printf("Evidence bundle: %s\n", summary.BundlePath)
	}
	return nil
}

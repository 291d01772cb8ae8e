// Package commands wires the proofrun CLI: run, generate, validate, and
// runs inspection, on top of the pipeline packages.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proofrun/proofrun/pkg/config"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// ExitError carries a process exit code through the cobra error path
// without printing an extra message.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "proofrun",
		Short: "ProofRun - verified configuration runs with evidence bundles",
		Long: `ProofRun executes configuration artifacts against a target fleet in
audited stages and seals the evidence into a portable bundle.

Every run walks the same ladder:
  1. syntax check   - the artifact must parse before it touches a target
  2. apply          - the artifact is executed against the inventory
  3. idempotency    - a second pass must report zero changes

Artifacts can be provided as files or generated from a prompt, and are
screened by a policy gate before any execution.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand(version))
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newValidateCommand(version))
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// loadConfig reads the configuration file and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupTelemetry builds the telemetry stack from the configuration and
// starts the metrics endpoint when enabled.
func setupTelemetry(cfg *config.Config, version string) (*telemetry.Telemetry, error) {
	tel, err := telemetry.NewTelemetry(cfg.Telemetry(version))
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		if err := tel.StartMetricsServer(); err != nil {
			tel.Logger.WithError(err).Warn("metrics endpoint failed to start")
		}
	}
	return tel, nil
}

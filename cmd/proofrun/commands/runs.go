package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/proofrun/proofrun/pkg/bundle"
	"github.com/proofrun/proofrun/pkg/report"
	"github.com/proofrun/proofrun/pkg/runctx"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect past runs and their evidence bundles",
	}
	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	return cmd
}

func newRunsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List completed runs in the runs directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			entries, err := os.ReadDir(cfg.Runs.BaseDir)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("no runs yet")
					return nil
				}
				return err
			}

			var dirs []string
			for _, e := range entries {
				if e.IsDir() {
					dirs = append(dirs, e.Name())
				}
			}
			sort.Strings(dirs)

			for _, name := range dirs {
				rc, err := runctx.Open(filepath.Join(cfg.Runs.BaseDir, name))
				if err != nil {
					continue
				}
				summary, err := report.Read(rc.SummaryPath())
				if err != nil {
					fmt.Printf("%-28s (no summary)\n", rc.ID)
					continue
				}
				fmt.Printf("%-28s %-16s stages=%d duration=%s\n",
					summary.RunID, summary.OverallStatus, len(summary.Stages),
					summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
			}
			return nil
		},
	}
}

func newRunsShowCommand() *cobra.Command {
	var listBundle bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the summary of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rc, err := runctx.Open(filepath.Join(cfg.Runs.BaseDir, "run_"+args[0]))
			if err != nil {
				return fmt.Errorf("unknown run %s: %w", args[0], err)
			}
			summary, err := report.Read(rc.SummaryPath())
			if err != nil {
				return err
			}
			if err := printSummary(&summary); err != nil {
				return err
			}

			if listBundle {
				files, err := bundle.List(rc.BundlePath())
				if err != nil {
					return err
				}
				fmt.Println("bundle contents:")
				for _, f := range files {
					fmt.Printf("  %s\n", f)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&listBundle, "bundle", false, "list the evidence bundle contents")
	return cmd
}

package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/proofrun/proofrun/pkg/artifact"
	"github.com/proofrun/proofrun/pkg/config"
	"github.com/proofrun/proofrun/pkg/inventory"
	"github.com/proofrun/proofrun/pkg/policy"
	"github.com/proofrun/proofrun/pkg/run"
)

func newValidateCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec-file>",
		Short: "Validate a run spec without executing it",
		Long: `Validate everything about a run spec that can be checked without
touching a target: the spec schema, the inventory resolution, the
artifact shape (for file-backed artifacts), and the policy gate.

Prompt-backed specs are validated up to generation; the artifact
itself does not exist until run time.`,
		Example: `  # Check a spec before handing it to run
  proofrun validate specs/cache.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.LoadRunSpec(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			inv, err := inventory.Resolve(inventory.Spec{
				Text:           spec.Targets,
				DefaultUser:    cfg.Inventory.DefaultUser,
				PrivateKeyFile: cfg.Inventory.PrivateKeyFile,
			})
			if err != nil {
				return err
			}
			fmt.Printf("inventory: %d host(s) in %d group(s)\n",
				len(inv.Hosts()), len(inv.GroupNames()))

			if spec.ArtifactFile == "" {
				fmt.Println("artifact: generated at run time, skipping shape and policy checks")
				return nil
			}

			data, err := os.ReadFile(spec.ArtifactFile)
			if err != nil {
				return fmt.Errorf("unreadable artifact file %s: %w", spec.ArtifactFile, err)
			}
			art := &artifact.Artifact{
				Name:    artifact.Slugify(spec.Name),
				Kind:    artifact.Kind(spec.Kind),
				Content: string(data),
			}
			if err := art.CheckShape(); err != nil {
				return err
			}
			fmt.Printf("artifact: %s (%s) parses cleanly\n", art.Name, art.Kind)

			tel, err := setupTelemetry(cfg, version)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			gate, err := policy.NewGate(tel.Logger)
			if err != nil {
				return err
			}
			if len(cfg.Policy.RulePaths) > 0 {
				if err := gate.LoadRules(cmd.Context(), cfg.Policy.RulePaths); err != nil {
					return err
				}
			}

			var document interface{}
			if err := yaml.Unmarshal([]byte(art.Content), &document); err != nil {
				document = nil
			}
			result, err := gate.Evaluate(cmd.Context(), policy.Input{
				Artifact: policy.ArtifactInput{
					Name:     art.Name,
					Kind:     string(art.Kind),
					Content:  art.Content,
					Document: document,
				},
				Targets:   inv.Hosts(),
				Depth:     spec.Depth,
				Timestamp: time.Now(),
			})
			if result != nil {
				for _, w := range result.Warnings {
					fmt.Printf("policy warning [%s]: %s\n", w.Rule, w.Message)
				}
				for _, v := range result.Violations {
					fmt.Printf("policy violation [%s]: %s\n", v.Rule, v.Message)
				}
			}
			if err != nil {
				if run.IsPolicyError(err) {
					return &ExitError{Code: 1}
				}
				return err
			}
			fmt.Printf("policy: allowed by %d rule(s)\n", len(result.EvaluatedRules))
			return nil
		},
	}
	return cmd
}

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/proofrun/proofrun/pkg/artifact"
)

func newGenerateCommand() *cobra.Command {
	var (
		kind   string
		name   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a configuration artifact from a prompt",
		Long: `Generate an artifact of the given kind from a natural-language prompt
using the configured generation backend, then sanitize and shape-check
it. The result is written to a file or stdout without being executed:
running it remains a separate, gated step.`,
		Example: `  # Generate a playbook and review it before running
  proofrun generate "install and start nginx" --kind config-playbook --out nginx.yml

  # Generate a cluster manifest to stdout
  proofrun generate "a three node etcd cluster" --kind cluster-manifest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			gen, err := artifact.NewChatGenerator(artifact.ChatConfig{
				BaseURL: cfg.Generator.BaseURL,
				APIKey:  os.Getenv(cfg.Generator.APIKeyEnv),
				Model:   cfg.Generator.Model,
				Timeout: cfg.Generator.Timeout,
			})
			if err != nil {
				return err
			}

			artifactKind := artifact.Kind(kind)
			if err := artifactKind.Validate(); err != nil {
				return err
			}

			raw, err := gen.Generate(cmd.Context(), artifactKind, args[0])
			if err != nil {
				return err
			}

			art := &artifact.Artifact{
				Name:    artifact.Slugify(name),
				Kind:    artifactKind,
				Content: artifact.Sanitize(raw),
			}
			if err := art.CheckShape(); err != nil {
				return err
			}

			if output == "" {
				fmt.Print(art.Content)
				return nil
			}
			if err := os.WriteFile(output, []byte(art.Content), 0644); err != nil {
				return fmt.Errorf("failed to write artifact: %w", err)
			}
			fmt.Fprintf(os.Stderr, "wrote %s artifact to %s\n", art.Kind, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(artifact.KindPlaybook), "artifact kind (config-playbook, cluster-manifest, stack-template)")
	cmd.Flags().StringVarP(&name, "name", "n", "generated", "artifact name")
	cmd.Flags().StringVarP(&output, "out", "o", "", "output file (default: stdout)")

	return cmd
}

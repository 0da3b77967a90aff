package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Render returns the render command.
func Render() *cobra.Command {
	var (
		configPath string
		toVersion  string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the manifests of a migration run as YAML",
		Long: `Render prints the resources launch would create as a multi-document
YAML stream without contacting the cluster. Nothing is printed when no
migration is needed.

Example:
  stagehand render -c stagehand.yaml | kubectl apply -f -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Render(cmd.Context(), configPath, toVersion, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to migration configuration file (required)")
	cmd.Flags().StringVar(&toVersion, "to-version", "", "Override the target version from the configuration")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

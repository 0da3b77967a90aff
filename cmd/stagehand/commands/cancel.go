package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Cancel returns the cancel command.
func Cancel() *cobra.Command {
	var (
		configPath string
		toVersion  string
		kubeconfig string
	)

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a running migration",
		Long: `Cancel marks the run's status record failed, signals every waiting stage
to give up and deletes the run's stage jobs.

Stages are not transactional. Work a stage body already committed stays in
place; the artifact store and the status record are kept for inspection.

Example:
  stagehand cancel -c stagehand.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Cancel(cmd.Context(), configPath, toVersion, kubeconfig)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to migration configuration file (required)")
	cmd.Flags().StringVar(&toVersion, "to-version", "", "Override the target version from the configuration")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (default: KUBECONFIG or ~/.kube/config)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

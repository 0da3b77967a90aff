package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Launch returns the launch command.
//
// The launch command runs the version gate and, when a migration is needed,
// submits the stage chain. It returns once the Jobs are created.
func Launch() *cobra.Command {
	var (
		configPath string
		toVersion  string
		kubeconfig string
	)

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Decide whether a migration is needed and submit its stage chain",
		Long: `Launch evaluates the migration settings and, when an upgrade needs a
migration, submits one Kubernetes Job per stage:

  1. extract         list installed providers into the plugin manifest
  2. install         install the manifest's plugins through the marketplace
  3. schema-upgrade  apply the schema migrations of the version range
  4. data-migrate    rewrite provider references to plugin identifiers

Each stage waits for the previous stage's completion marker before it starts.
Launching the same version pair twice submits a single chain.

Example:
  stagehand launch -c stagehand.yaml --to-version 1.4.2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Launch(cmd.Context(), configPath, toVersion, kubeconfig)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to migration configuration file (required)")
	cmd.Flags().StringVar(&toVersion, "to-version", "", "Override the target version from the configuration")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (default: KUBECONFIG or ~/.kube/config)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

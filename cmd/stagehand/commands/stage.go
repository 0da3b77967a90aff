package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Stage returns the stage command group used inside stage pods.
func Stage() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "stage",
		Short:  "Commands executed inside stage pods",
		Hidden: true,
	}
	cmd.AddCommand(stageRun())
	return cmd
}

func stageRun() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one stage of a migration chain",
		Long: `Run executes one stage inside its pod. The run configuration is read
from STAGEHAND_* environment variables set by the stage job.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.StageRun(cmd.Context(), name)
		},
	}

	cmd.Flags().StringVar(&name, "stage", "", "Stage to run: extract, install, schema-upgrade or data-migrate (required)")
	_ = cmd.MarkFlagRequired("stage")

	return cmd
}

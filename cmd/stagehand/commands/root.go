// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"os"

	"github.com/spf13/cobra"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Root returns the root command for the stagehand CLI.
func Root() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:           "stagehand",
		Short:         "Run version-upgrade migrations as a chain of Kubernetes Jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logf.SetLogger(zap.New(
				zap.UseDevMode(debug || os.Getenv("DEBUG") == "true"),
				zap.WriteTo(cmd.ErrOrStderr()),
			))
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging")

	// Deployment commands
	cmd.AddCommand(Launch())
	cmd.AddCommand(Status())
	cmd.AddCommand(Cancel())
	cmd.AddCommand(Render())

	// In-pod runner
	cmd.AddCommand(Stage())

	cmd.AddCommand(Version())

	return cmd
}

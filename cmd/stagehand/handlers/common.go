// Package handlers implements the stagehand commands.
package handlers

import (
	"errors"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/k8s"
	"github.com/imamik/stagehand/internal/migration/chain"
	"github.com/imamik/stagehand/internal/migration/orchestrator"
	"github.com/imamik/stagehand/internal/util/retry"
)

// Factory function variables - can be replaced in tests.
var (
	// loadConfig reads and validates the launch configuration.
	loadConfig = config.LoadFile

	// newKubeClient connects to the cluster from a kubeconfig path.
	newKubeClient = k8s.NewFromKubeconfigPath

	// newOrchestrator creates the orchestrator for a configuration.
	newOrchestrator = func(client k8s.Client, cfg *config.Config) *orchestrator.Orchestrator {
		return orchestrator.New(client, cfg)
	}
)

// ExitCode maps a command error to the process exit code. Terminal stage
// failures use the code the stage Job's failure policy stops on.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if retry.IsFatal(err) {
		return int(chain.TerminalExitCode)
	}
	return 1
}

// setup loads the configuration and connects to the cluster.
func setup(configPath, toVersion, kubeconfig string) (*config.Config, *orchestrator.Orchestrator, error) {
	cfg, err := loadConfig(configPath, config.WithToVersion(toVersion))
	if err != nil {
		return nil, nil, err
	}
	client, err := newKubeClient(kubeconfig)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newOrchestrator(client, cfg), nil
}

// isRunExists reports whether err says the run was launched before.
func isRunExists(err error) bool {
	return errors.Is(err, orchestrator.ErrRunExists)
}

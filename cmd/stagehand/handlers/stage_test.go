package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/k8s"
	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/artifact"
	"github.com/imamik/stagehand/internal/migration/chain"
	"github.com/imamik/stagehand/internal/migration/stages"
	"github.com/imamik/stagehand/internal/migration/status"
	"github.com/imamik/stagehand/internal/platform/postgres"
	"github.com/imamik/stagehand/internal/util/retry"
)

type fakeCatalog struct {
	providers map[string][]postgres.Provider
}

func (c *fakeCatalog) ListTenants(_ context.Context) ([]string, error) {
	var tenants []string
	for tenant := range c.providers {
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

func (c *fakeCatalog) ListProviders(_ context.Context, tenantID string) ([]postgres.Provider, error) {
	return c.providers[tenantID], nil
}

// setupStagePod prepares the environment of an extract pod backed by a
// volume in a temp dir and a fake cluster holding a pending status record.
func setupStagePod(t *testing.T) (string, *status.Store) {
	t.Helper()
	saveAndRestoreFactories(t)

	dir := t.TempDir()
	t.Setenv(config.EnvRunID, "0123456789ab")
	t.Setenv(config.EnvNamespace, "apps")
	t.Setenv(config.EnvStatusRecord, "shop-migration-0123456789ab-status")
	t.Setenv(config.EnvChain, "extract,install")
	t.Setenv(config.EnvFromVersion, "1.0.0")
	t.Setenv(config.EnvToVersion, "1.4.2")
	t.Setenv(config.EnvArtifactBackend, string(config.BackendVolume))
	t.Setenv(config.EnvArtifactDir, dir)
	t.Setenv(config.EnvPushgatewayURL, "")

	//nolint:staticcheck // SA1019: NewSimpleClientset is sufficient for our testing needs
	client := k8s.NewFromClientset(fake.NewSimpleClientset())
	newInClusterClient = func() (k8s.Client, error) { return client, nil }

	store := status.NewStore(client, "apps", "shop-migration-0123456789ab-status")
	require.NoError(t, store.Create(context.Background(), status.Record{
		Status:      status.StatePending,
		FromVersion: "1.0.0",
		ToVersion:   "1.4.2",
		RunID:       "0123456789ab",
		Timestamp:   testNow,
		UpdatedAt:   testNow,
	}, nil))

	return dir, store
}

func TestStageRun_Extract(t *testing.T) {
	dir, store := setupStagePod(t)
	ctx := context.Background()

	buildDeps = func(_ context.Context, stage migration.StageName, _ *config.StageEnv) (stages.Deps, func(), error) {
		require.Equal(t, migration.StageExtract, stage)
		return stages.Deps{Catalog: &fakeCatalog{providers: map[string][]postgres.Provider{
			"tenant-a": {{Kind: "tool", Name: "acme/search"}, {Kind: "model", Name: "OpenAI"}},
		}}}, func() {}, nil
	}

	require.NoError(t, StageRun(ctx, "extract"))

	volume, err := artifact.NewVolume(dir)
	require.NoError(t, err)
	artifacts := artifact.New(volume)

	done, err := artifacts.HasMarker(ctx, migration.StageExtract)
	require.NoError(t, err)
	assert.True(t, done)

	manifest, err := artifacts.ReadFile(ctx, artifact.ManifestFile)
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "acme/search")
	assert.Contains(t, string(manifest), "official/openai")

	rec, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.StageState(migration.StageExtract), rec.Status)
}

func TestStageRun_UnknownStage(t *testing.T) {
	saveAndRestoreFactories(t)

	err := StageRun(context.Background(), "backup")
	require.Error(t, err)
}

func TestStageRun_MissingEnvironment(t *testing.T) {
	saveAndRestoreFactories(t)
	loadStageEnv = func() (*config.StageEnv, error) {
		return nil, errors.New("STAGEHAND_RUN_ID is required")
	}

	err := StageRun(context.Background(), "extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load stage environment")
}

func TestStageRun_DependencyError(t *testing.T) {
	dir, store := setupStagePod(t)
	ctx := context.Background()
	buildDeps = func(context.Context, migration.StageName, *config.StageEnv) (stages.Deps, func(), error) {
		return stages.Deps{}, func() {}, errors.New("failed to connect to database: refused")
	}

	err := StageRun(ctx, "extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.False(t, retry.IsFatal(err), "early attempts are left to the job's retry policy")

	volume, err := artifact.NewVolume(dir)
	require.NoError(t, err)
	artifacts := artifact.New(volume)

	attempts, err := artifacts.IncrementAttempts(ctx, migration.StageExtract)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts, "the failed wiring counted as an attempt")

	_, failed, err := artifacts.Failure(ctx, migration.StageExtract)
	require.NoError(t, err)
	assert.False(t, failed)

	rec, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.StageState(migration.StageExtract), rec.Status)
}

func TestStageRun_DependencyErrorOnLastAttempt(t *testing.T) {
	dir, store := setupStagePod(t)
	ctx := context.Background()
	t.Setenv(config.EnvRetryLimit, "0")

	calls := 0
	buildDeps = func(context.Context, migration.StageName, *config.StageEnv) (stages.Deps, func(), error) {
		calls++
		return stages.Deps{}, func() {}, errors.New("failed to connect to database: password authentication failed")
	}

	err := StageRun(ctx, "extract")
	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
	assert.Equal(t, int(chain.TerminalExitCode), ExitCode(err))

	volume, err := artifact.NewVolume(dir)
	require.NoError(t, err)
	artifacts := artifact.New(volume)

	msg, failed, err := artifacts.Failure(ctx, migration.StageExtract)
	require.NoError(t, err)
	assert.True(t, failed)
	assert.Contains(t, msg, "password authentication failed")

	rec, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.StateFailed, rec.Status)
	assert.Contains(t, rec.Message, "password authentication failed")

	// A rescheduled pod stops at the failure marker without wiring again.
	err = StageRun(ctx, "extract")
	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
	assert.Equal(t, 1, calls)
}

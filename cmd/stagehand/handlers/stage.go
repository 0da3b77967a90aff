package handlers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/k8s"
	"github.com/imamik/stagehand/internal/metrics"
	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/artifact"
	"github.com/imamik/stagehand/internal/migration/runner"
	"github.com/imamik/stagehand/internal/migration/stages"
	"github.com/imamik/stagehand/internal/migration/status"
	"github.com/imamik/stagehand/internal/platform/marketplace"
	"github.com/imamik/stagehand/internal/platform/postgres"
	"github.com/imamik/stagehand/internal/platform/s3"
)

// Factory function variables for the in-pod runner - can be replaced in tests.
var (
	loadStageEnv = config.LoadStageEnv

	newInClusterClient = k8s.NewInCluster

	openArtifacts = defaultOpenArtifacts

	// buildDeps wires the collaborators of a stage body. The returned
	// function releases them.
	buildDeps = defaultBuildDeps
)

// StageRun handles the hidden stage run command executed inside stage pods.
func StageRun(ctx context.Context, name string) error {
	stage, err := migration.ParseStageName(name)
	if err != nil {
		return err
	}

	env, err := loadStageEnv()
	if err != nil {
		return fmt.Errorf("failed to load stage environment: %w", err)
	}

	logger := logf.FromContext(ctx).WithValues("runId", env.RunID, "stage", stage)
	ctx = logf.IntoContext(ctx, logger)

	backend, err := openArtifacts(ctx, env)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}
	store := artifact.New(backend)

	client, err := newInClusterClient()
	if err != nil {
		return fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	statusStore := status.NewStore(client, env.Namespace, env.StatusRecord)

	logger.Info("starting stage", "chain", config.FormatChain(env.Chain))
	return runner.New(runner.OptionsFromEnv(env, stage), store, statusStore, lazyBody(stage, env, store), metrics.NewRecorder()).Run(ctx)
}

// lazyBody wires the stage's collaborators when the body runs, so wiring
// failures count as failed attempts.
func lazyBody(stage migration.StageName, env *config.StageEnv, files *artifact.Store) stages.Body {
	return stages.BodyFunc(func(ctx context.Context) error {
		deps, release, err := buildDeps(ctx, stage, env)
		if err != nil {
			return err
		}
		defer release()
		deps.Files = files

		body, err := stages.New(stage, deps, stages.Settings{
			RunID:           env.RunID,
			FromVersion:     env.FromVersion,
			ToVersion:       env.ToVersion,
			PluginNamespace: env.PluginNamespace,
			ExtractWorkers:  env.ExtractWorkers,
			InstallWorkers:  env.InstallWorkers,
			BackupEnabled:   env.BackupEnabled,
		})
		if err != nil {
			return err
		}
		return body.Run(ctx)
	})
}

func defaultOpenArtifacts(ctx context.Context, env *config.StageEnv) (artifact.Backend, error) {
	if env.ArtifactBackend != config.BackendS3 {
		return artifact.NewVolume(env.ArtifactDir)
	}
	client, err := s3.NewClient(ctx, s3.Options{
		Endpoint:  env.S3Endpoint,
		Region:    env.S3Region,
		AccessKey: env.S3AccessKey,
		SecretKey: env.S3SecretKey,
		PathStyle: env.S3PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return artifact.NewBucket(client, env.S3Bucket, env.RunID), nil
}

func defaultBuildDeps(ctx context.Context, stage migration.StageName, env *config.StageEnv) (stages.Deps, func(), error) {
	noop := func() {}

	if stage == migration.StageInstall {
		return stages.Deps{Installer: marketplace.NewClient(env.MarketplaceURL)}, noop, nil
	}

	// Extract fans out over tenants; size the pool to the worker count.
	maxConns := int32(0)
	if stage == migration.StageExtract && env.ExtractWorkers > 0 {
		maxConns = int32(env.ExtractWorkers) + 1
	}
	pool, err := postgres.Connect(ctx, env.DatabaseURL(), maxConns)
	if err != nil {
		return stages.Deps{}, noop, fmt.Errorf("failed to connect to database: %w", err)
	}

	deps, err := databaseDeps(stage, pool)
	if err != nil {
		pool.Close()
		return stages.Deps{}, noop, err
	}
	return deps, pool.Close, nil
}

func databaseDeps(stage migration.StageName, pool *pgxpool.Pool) (stages.Deps, error) {
	switch stage {
	case migration.StageExtract:
		return stages.Deps{Catalog: postgres.NewCatalog(pool)}, nil
	case migration.StageSchemaUpgrade:
		migrator, err := postgres.NewMigrator(pool)
		if err != nil {
			return stages.Deps{}, err
		}
		return stages.Deps{Migrator: migrator}, nil
	default:
		return stages.Deps{DB: pool}, nil
	}
}

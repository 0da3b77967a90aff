package stages

import (
	"context"
	"fmt"

	"github.com/imamik/stagehand/internal/migration"
)

// Body is the work a stage performs between its entry and exit actions.
type Body interface {
	Run(ctx context.Context) error
}

// BodyFunc adapts a function to Body.
type BodyFunc func(ctx context.Context) error

// Run calls f.
func (f BodyFunc) Run(ctx context.Context) error { return f(ctx) }

// Files is the part of the artifact store the bodies read and write.
type Files interface {
	WriteFile(ctx context.Context, key string, data []byte) error
	ReadFile(ctx context.Context, key string) ([]byte, error)
}

// Deps are the collaborators a body may need. Only the ones used by the
// requested stage have to be set.
type Deps struct {
	Files     Files
	Catalog   Catalog
	Installer Installer
	Migrator  SchemaMigrator
	DB        Database
}

// Settings are the run parameters the bodies share.
type Settings struct {
	RunID           string
	FromVersion     string
	ToVersion       string
	PluginNamespace string
	ExtractWorkers  int
	InstallWorkers  int
	BackupEnabled   bool
}

// New returns the body of the named stage.
func New(name migration.StageName, deps Deps, s Settings) (Body, error) {
	switch name {
	case migration.StageExtract:
		if deps.Catalog == nil || deps.Files == nil {
			return nil, fmt.Errorf("%s requires a catalog and an artifact store", name)
		}
		return &Extract{Catalog: deps.Catalog, Files: deps.Files, Namespace: s.PluginNamespace, Workers: s.ExtractWorkers}, nil
	case migration.StageInstall:
		if deps.Installer == nil || deps.Files == nil {
			return nil, fmt.Errorf("%s requires a marketplace client and an artifact store", name)
		}
		return &Install{Installer: deps.Installer, Files: deps.Files, Workers: s.InstallWorkers}, nil
	case migration.StageSchemaUpgrade:
		if deps.Migrator == nil {
			return nil, fmt.Errorf("%s requires a schema migrator", name)
		}
		return &SchemaUpgrade{Migrator: deps.Migrator, FromVersion: s.FromVersion, ToVersion: s.ToVersion}, nil
	case migration.StageDataMigrate:
		if deps.DB == nil || deps.Files == nil {
			return nil, fmt.Errorf("%s requires a database and an artifact store", name)
		}
		return &DataMigrate{
			DB:          deps.DB,
			Files:       deps.Files,
			RunID:       s.RunID,
			FromVersion: s.FromVersion,
			ToVersion:   s.ToVersion,
			Namespace:   s.PluginNamespace,
			Backup:      s.BackupEnabled,
		}, nil
	}
	return nil, fmt.Errorf("unknown stage %q", name)
}

package stages

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// SchemaMigrator applies the schema migrations of a version range.
type SchemaMigrator interface {
	Migrate(ctx context.Context, fromVersion, toVersion string) ([]string, error)
}

// SchemaUpgrade upgrades the database schema from FromVersion to ToVersion.
type SchemaUpgrade struct {
	Migrator    SchemaMigrator
	FromVersion string
	ToVersion   string
}

func (s *SchemaUpgrade) Run(ctx context.Context) error {
	applied, err := s.Migrator.Migrate(ctx, s.FromVersion, s.ToVersion)
	if err != nil {
		return fmt.Errorf("failed to upgrade schema from %s to %s: %w", s.FromVersion, s.ToVersion, err)
	}
	log.FromContext(ctx).Info("Schema upgraded",
		"from", s.FromVersion, "to", s.ToVersion, "applied", len(applied), "migrations", applied)
	return nil
}

package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/artifact"
	"github.com/imamik/stagehand/internal/platform/postgres"
)

// Database is the connection the data migration writes through.
type Database interface {
	postgres.Execer
	postgres.TxBeginner
}

// DataMigrate rewrites provider references to plugin identifiers. The
// rewrite is not reversible; Backup keeps a copy of the affected tables.
type DataMigrate struct {
	DB          Database
	Files       Files
	RunID       string
	FromVersion string
	ToVersion   string
	Namespace   string
	Backup      bool

	now func() time.Time
}

func (d *DataMigrate) Run(ctx context.Context) error {
	logger := log.FromContext(ctx)

	var backups []string
	if d.Backup {
		var err error
		backups, err = postgres.Backup(ctx, d.DB, d.RunID)
		if err != nil {
			return fmt.Errorf("failed to back up provider tables: %w", err)
		}
		logger.Info("Provider tables backed up", "tables", backups)
	}

	result, err := postgres.RewriteProviderNames(ctx, d.DB, d.Namespace)
	if err != nil {
		return fmt.Errorf("failed to rewrite provider names: %w", err)
	}
	logger.Info("Provider names rewritten", "rows", result.Total())

	if err := d.Files.WriteFile(ctx, artifact.NoteKey(migration.StageDataMigrate), d.note(backups, result)); err != nil {
		return fmt.Errorf("failed to write completion note: %w", err)
	}
	return nil
}

func (d *DataMigrate) note(backups []string, result postgres.RewriteResult) []byte {
	now := time.Now
	if d.now != nil {
		now = d.now
	}

	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\n", d.RunID)
	fmt.Fprintf(&b, "versions: %s -> %s\n", d.FromVersion, d.ToVersion)
	fmt.Fprintf(&b, "completed: %s\n", now().UTC().Format(time.RFC3339))
	if len(backups) > 0 {
		fmt.Fprintf(&b, "backups: %s\n", strings.Join(backups, ", "))
	} else {
		b.WriteString("backups: none\n")
	}

	tables := make([]string, 0, len(result))
	for t := range result {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Fprintf(&b, "rewritten %s: %d\n", t, result[t])
	}
	return []byte(b.String())
}

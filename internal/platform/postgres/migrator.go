package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey serializes schema migrations across processes.
const advisoryLockKey = 7316452

// Migration is one versioned schema change. Files are named
// <version>_<description>.sql; the version is the application release that
// introduced the change.
type Migration struct {
	ID      string
	Version *semver.Version
	SQL     string
}

// LoadMigrations reads the embedded migrations ordered by version.
func LoadMigrations() ([]Migration, error) {
	return loadMigrations(migrationsFS, "migrations")
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".sql")
		raw, _, _ := strings.Cut(id, "_")
		version, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("migration %s: invalid version %q: %w", entry.Name(), raw, err)
		}

		content, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{ID: id, Version: version, SQL: string(content)})
	}

	sort.SliceStable(migrations, func(i, j int) bool {
		if c := migrations[i].Version.Compare(migrations[j].Version); c != 0 {
			return c < 0
		}
		return migrations[i].ID < migrations[j].ID
	})
	return migrations, nil
}

// Select returns the migrations introduced after fromVersion up to and
// including toVersion. When either version is not a semantic version the
// range cannot be decided and every migration is returned; applied ones are
// skipped later through schema_migrations.
func Select(all []Migration, fromVersion, toVersion string) []Migration {
	from, errFrom := semver.NewVersion(fromVersion)
	to, errTo := semver.NewVersion(toVersion)
	if errFrom != nil || errTo != nil {
		return all
	}

	var selected []Migration
	for _, m := range all {
		if m.Version.GreaterThan(from) && !m.Version.GreaterThan(to) {
			selected = append(selected, m)
		}
	}
	return selected
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	pool       *pgxpool.Pool
	migrations []Migration
}

// NewMigrator creates a new Migrator.
func NewMigrator(pool *pgxpool.Pool) (*Migrator, error) {
	migrations, err := LoadMigrations()
	if err != nil {
		return nil, err
	}
	return &Migrator{pool: pool, migrations: migrations}, nil
}

// Migrate applies the pending migrations of the version range in order, each
// in its own transaction, and returns the ids it applied. A session advisory
// lock on a dedicated connection keeps concurrent migrators apart.
func (m *Migrator) Migrate(ctx context.Context, fromVersion, toVersion string) ([]string, error) {
	logger := log.FromContext(ctx)

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
	}()

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}

	applied := map[string]bool{}
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}

	var done []string
	for _, mig := range Select(m.migrations, fromVersion, toVersion) {
		if applied[mig.ID] {
			logger.V(1).Info("Migration already applied", "migration", mig.ID)
			continue
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			return done, fmt.Errorf("begin tx for %s: %w", mig.ID, err)
		}

		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return done, fmt.Errorf("execute migration %s: %w", mig.ID, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, mig.ID); err != nil {
			_ = tx.Rollback(ctx)
			return done, fmt.Errorf("record migration %s: %w", mig.ID, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return done, fmt.Errorf("commit migration %s: %w", mig.ID, err)
		}

		logger.Info("Applied migration", "migration", mig.ID)
		done = append(done, mig.ID)
	}

	return done, nil
}

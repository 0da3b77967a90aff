package stages

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/imamik/stagehand/internal/migration/artifact"
	"github.com/imamik/stagehand/internal/platform/marketplace"
	"github.com/imamik/stagehand/internal/platform/postgres"
)

type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[string][]byte{}}
}

func (m *memFiles) WriteFile(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = append([]byte(nil), data...)
	return nil
}

func (m *memFiles) ReadFile(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, artifact.ErrNotFound)
	}
	return data, nil
}

type fakeCatalog struct {
	tenants   []string
	providers map[string][]postgres.Provider
	failFor   string
}

func (c *fakeCatalog) ListTenants(context.Context) ([]string, error) {
	return c.tenants, nil
}

func (c *fakeCatalog) ListProviders(_ context.Context, tenantID string) ([]postgres.Provider, error) {
	if tenantID == c.failFor {
		return nil, fmt.Errorf("connection reset")
	}
	return c.providers[tenantID], nil
}

type installCall struct {
	tenant string
	plugin string
}

type fakeInstaller struct {
	mu      sync.Mutex
	calls   []installCall
	respond func(call installCall, n int) (marketplace.InstallResult, error)
}

func (f *fakeInstaller) Install(_ context.Context, tenantID, pluginID string) (marketplace.InstallResult, error) {
	f.mu.Lock()
	call := installCall{tenant: tenantID, plugin: pluginID}
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.respond == nil {
		return marketplace.Installed, nil
	}
	return f.respond(call, n)
}

type fakeMigrator struct {
	from, to string
	applied  []string
	err      error
}

func (m *fakeMigrator) Migrate(_ context.Context, from, to string) ([]string, error) {
	m.from, m.to = from, to
	return m.applied, m.err
}

// fakeDB records executed statements. Statements starting with UPDATE report
// rowsPerUpdate affected rows.
type fakeDB struct {
	mu            sync.Mutex
	statements    []string
	committed     bool
	rowsPerUpdate int
	failOn        string
}

func (d *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn != "" && strings.Contains(sql, d.failOn) {
		return pgconn.CommandTag{}, fmt.Errorf("statement failed")
	}
	d.statements = append(d.statements, sql)
	if strings.HasPrefix(sql, "UPDATE") {
		return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", d.rowsPerUpdate)), nil
	}
	return pgconn.NewCommandTag("SELECT 0"), nil
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{db: d}, nil
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

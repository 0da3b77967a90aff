package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ProviderTable is a table holding provider names per tenant.
type ProviderTable struct {
	Kind   string
	Table  string
	Column string
}

// ProviderTables lists every table whose provider names the plugin system replaces.
var ProviderTables = []ProviderTable{
	{Kind: "model", Table: "providers", Column: "provider_name"},
	{Kind: "tool", Table: "tool_builtin_providers", Column: "provider"},
}

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Provider is one installed provider of a tenant.
type Provider struct {
	Kind string
	Name string
}

// Catalog reads tenants and their installed providers.
type Catalog struct {
	db Querier
}

// NewCatalog returns a catalog reading through db.
func NewCatalog(db Querier) *Catalog {
	return &Catalog{db: db}
}

// ListTenants returns all tenant ids in ascending order.
func (c *Catalog) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := c.db.Query(ctx, `SELECT id::text FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan tenants: %w", err)
	}
	return ids, nil
}

// ListProviders returns the distinct providers a tenant has configured, model
// providers first, each kind sorted by name.
func (c *Catalog) ListProviders(ctx context.Context, tenantID string) ([]Provider, error) {
	var providers []Provider
	for _, t := range ProviderTables {
		rows, err := c.db.Query(ctx, providerQuery(t), tenantID)
		if err != nil {
			return nil, fmt.Errorf("query %s providers of tenant %s: %w", t.Kind, tenantID, err)
		}
		names, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return nil, fmt.Errorf("scan %s providers of tenant %s: %w", t.Kind, tenantID, err)
		}
		for _, name := range names {
			providers = append(providers, Provider{Kind: t.Kind, Name: name})
		}
	}
	return providers, nil
}

func providerQuery(t ProviderTable) string {
	col := pgx.Identifier{t.Column}.Sanitize()
	return fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE tenant_id::text = $1 ORDER BY %s`,
		col, pgx.Identifier{t.Table}.Sanitize(), col)
}

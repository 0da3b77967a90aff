package stages

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/artifact"
	"github.com/imamik/stagehand/internal/platform/postgres"
	"github.com/imamik/stagehand/internal/util/async"
)

// Catalog lists tenants and the providers they have configured.
type Catalog interface {
	ListTenants(ctx context.Context) ([]string, error)
	ListProviders(ctx context.Context, tenantID string) ([]postgres.Provider, error)
}

// Extract builds the plugin manifest from the source database.
type Extract struct {
	Catalog   Catalog
	Files     Files
	Namespace string
	Workers   int
}

// Run lists every tenant's providers with at most Workers tenants in flight
// and writes the sorted manifest.
func (e *Extract) Run(ctx context.Context) error {
	logger := log.FromContext(ctx)

	tenants, err := e.Catalog.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}
	logger.Info("Extracting installed providers", "tenants", len(tenants), "workers", e.Workers)

	perTenant := make([][]Entry, len(tenants))
	tasks := make([]async.Task, len(tenants))
	for i, tenant := range tenants {
		tasks[i] = async.Task{
			Name: "tenant " + tenant,
			Func: func(ctx context.Context) error {
				providers, err := e.Catalog.ListProviders(ctx, tenant)
				if err != nil {
					return err
				}
				perTenant[i] = e.entries(tenant, providers)
				return nil
			},
		}
	}
	if err := async.RunBounded(ctx, e.Workers, tasks); err != nil {
		return fmt.Errorf("failed to extract providers: %w", err)
	}

	var entries []Entry
	for _, list := range perTenant {
		entries = append(entries, list...)
	}
	SortEntries(entries)

	data, err := EncodeManifest(entries)
	if err != nil {
		return err
	}
	if err := e.Files.WriteFile(ctx, artifact.ManifestFile, data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	logger.Info("Manifest written", "entries", len(entries), "tenants", len(tenants))
	return nil
}

// entries converts providers to manifest entries, one per distinct plugin.
func (e *Extract) entries(tenant string, providers []postgres.Provider) []Entry {
	seen := make(map[string]bool, len(providers))
	var out []Entry
	for _, p := range providers {
		id := migration.PluginID(e.Namespace, p.Name)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Entry{TenantID: tenant, PluginID: id, Kind: p.Kind, Provider: p.Name})
	}
	return out
}

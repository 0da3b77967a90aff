package stages

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/artifact"
	"github.com/imamik/stagehand/internal/platform/marketplace"
	"github.com/imamik/stagehand/internal/platform/postgres"
	"github.com/imamik/stagehand/internal/util/retry"
)

func TestManifestRoundTrip(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{TenantID: "t2", PluginID: "official/openai", Kind: "model", Provider: "OpenAI"},
		{TenantID: "t1", PluginID: "official/tavily", Kind: "tool", Provider: "tavily"},
		{TenantID: "t1", PluginID: "official/anthropic", Kind: "model", Provider: "anthropic"},
	}
	SortEntries(entries)
	assert.Equal(t, "official/anthropic", entries[0].PluginID)
	assert.Equal(t, "t2", entries[2].TenantID)

	data, err := EncodeManifest(entries)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))

	decoded, err := DecodeManifest(append(data, '\n'))
	require.NoError(t, err)
	assert.Equal(t, entries, decoded)
}

func TestDecodeManifest_Invalid(t *testing.T) {
	t.Parallel()

	_, err := DecodeManifest([]byte("{\"tenant_id\":\"t1\"}\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = DecodeManifest([]byte("not json\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestExtract(t *testing.T) {
	t.Parallel()

	files := newMemFiles()
	body := &Extract{
		Catalog: &fakeCatalog{
			tenants: []string{"t2", "t1", "t3"},
			providers: map[string][]postgres.Provider{
				"t1": {{Kind: "model", Name: "OpenAI"}, {Kind: "tool", Name: "openai"}, {Kind: "tool", Name: "acme/search"}},
				"t2": {{Kind: "model", Name: "anthropic"}},
			},
		},
		Files:     files,
		Namespace: "official",
		Workers:   2,
	}
	require.NoError(t, body.Run(context.Background()))

	data, err := files.ReadFile(context.Background(), artifact.ManifestFile)
	require.NoError(t, err)
	entries, err := DecodeManifest(data)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{TenantID: "t1", PluginID: "acme/search", Kind: "tool", Provider: "acme/search"},
		{TenantID: "t1", PluginID: "official/openai", Kind: "model", Provider: "OpenAI"},
		{TenantID: "t2", PluginID: "official/anthropic", Kind: "model", Provider: "anthropic"},
	}, entries)
}

func TestExtract_ProviderQueryFails(t *testing.T) {
	t.Parallel()

	files := newMemFiles()
	body := &Extract{
		Catalog: &fakeCatalog{tenants: []string{"t1", "t2"}, failFor: "t2"},
		Files:   files,
		Workers: 1,
	}
	err := body.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant t2")

	_, err = files.ReadFile(context.Background(), artifact.ManifestFile)
	assert.ErrorIs(t, err, artifact.ErrNotFound, "no partial manifest is written")
}

func writeManifest(t *testing.T, files *memFiles, entries ...Entry) {
	t.Helper()
	data, err := EncodeManifest(entries)
	require.NoError(t, err)
	require.NoError(t, files.WriteFile(context.Background(), artifact.ManifestFile, data))
}

func fastRetry() []retry.Option {
	return []retry.Option{retry.WithInitialDelay(time.Millisecond), retry.WithMaxDelay(time.Millisecond)}
}

func TestInstall(t *testing.T) {
	t.Parallel()

	files := newMemFiles()
	writeManifest(t, files,
		Entry{TenantID: "t1", PluginID: "official/openai"},
		Entry{TenantID: "t1", PluginID: "official/tavily"},
		Entry{TenantID: "t2", PluginID: "official/openai"},
	)

	installer := &fakeInstaller{
		respond: func(call installCall, n int) (marketplace.InstallResult, error) {
			switch {
			case call.plugin == "official/tavily":
				return marketplace.AlreadyInstalled, nil
			case call.tenant == "t2" && n == 0:
				return 0, &marketplace.StatusError{Code: http.StatusBadGateway}
			}
			return marketplace.Installed, nil
		},
	}
	body := &Install{Installer: installer, Files: files, Workers: 2, RetryOptions: fastRetry()}
	require.NoError(t, body.Run(context.Background()))

	assert.Len(t, installer.calls, 4, "the transient failure is retried once")
}

func TestInstall_FatalErrorStopsRetrying(t *testing.T) {
	t.Parallel()

	files := newMemFiles()
	writeManifest(t, files, Entry{TenantID: "t1", PluginID: "official/unknown"})

	installer := &fakeInstaller{
		respond: func(installCall, int) (marketplace.InstallResult, error) {
			return 0, retry.Fatal(&marketplace.StatusError{Code: http.StatusNotFound})
		},
	}
	body := &Install{Installer: installer, Files: files, Workers: 1, RetryOptions: fastRetry()}
	err := body.Run(context.Background())
	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
	assert.Len(t, installer.calls, 1)
}

func TestInstall_MissingManifest(t *testing.T) {
	t.Parallel()

	body := &Install{Installer: &fakeInstaller{}, Files: newMemFiles(), Workers: 1}
	err := body.Run(context.Background())
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestInstall_EmptyManifest(t *testing.T) {
	t.Parallel()

	files := newMemFiles()
	writeManifest(t, files)
	installer := &fakeInstaller{}
	body := &Install{Installer: installer, Files: files, Workers: 1}
	require.NoError(t, body.Run(context.Background()))
	assert.Empty(t, installer.calls)
}

func TestSchemaUpgrade(t *testing.T) {
	t.Parallel()

	m := &fakeMigrator{applied: []string{"1.1.0_plugin_tables"}}
	body := &SchemaUpgrade{Migrator: m, FromVersion: "1.0.0", ToVersion: "1.4.2"}
	require.NoError(t, body.Run(context.Background()))
	assert.Equal(t, "1.0.0", m.from)
	assert.Equal(t, "1.4.2", m.to)

	m.err = errors.New("syntax error")
	err := body.Run(context.Background())
	assert.ErrorContains(t, err, "failed to upgrade schema from 1.0.0 to 1.4.2")
}

func TestDataMigrate(t *testing.T) {
	t.Parallel()

	db := &fakeDB{rowsPerUpdate: 3}
	files := newMemFiles()
	body := &DataMigrate{
		DB:          db,
		Files:       files,
		RunID:       "0123456789ab",
		FromVersion: "1.0.0",
		ToVersion:   "1.4.2",
		Namespace:   "official",
		Backup:      true,
		now:         func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	require.NoError(t, body.Run(context.Background()))

	require.Len(t, db.statements, 4)
	assert.Contains(t, db.statements[0], `CREATE TABLE IF NOT EXISTS "providers_backup_0123456789ab"`)
	assert.Contains(t, db.statements[2], `UPDATE "providers"`)
	assert.True(t, db.committed)

	note, err := files.ReadFile(context.Background(), artifact.NoteKey(migration.StageDataMigrate))
	require.NoError(t, err)
	assert.Contains(t, string(note), "completed: 2026-01-02T03:04:05Z")
	assert.Contains(t, string(note), "rewritten providers: 3")
	assert.Contains(t, string(note), "backups: providers_backup_0123456789ab, tool_builtin_providers_backup_0123456789ab")
}

func TestDataMigrate_WithoutBackup(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	body := &DataMigrate{DB: db, Files: newMemFiles(), RunID: "abc", Namespace: "official"}
	require.NoError(t, body.Run(context.Background()))
	for _, stmt := range db.statements {
		assert.NotContains(t, stmt, "CREATE TABLE")
	}
}

func TestDataMigrate_RewriteFails(t *testing.T) {
	t.Parallel()

	db := &fakeDB{failOn: "tool_builtin_providers"}
	body := &DataMigrate{DB: db, Files: newMemFiles(), RunID: "abc", Namespace: "official"}
	err := body.Run(context.Background())
	assert.ErrorContains(t, err, "failed to rewrite provider names")
	assert.False(t, db.committed)
}

func TestNew(t *testing.T) {
	t.Parallel()

	deps := Deps{
		Files:     newMemFiles(),
		Catalog:   &fakeCatalog{},
		Installer: &fakeInstaller{},
		Migrator:  &fakeMigrator{},
		DB:        &fakeDB{},
	}
	for _, name := range migration.Stages {
		body, err := New(name, deps, Settings{})
		require.NoError(t, err, name)
		assert.NotNil(t, body)
	}

	_, err := New(migration.StageExtract, Deps{}, Settings{})
	assert.Error(t, err)

	_, err = New("unknown", deps, Settings{})
	assert.Error(t, err)
}

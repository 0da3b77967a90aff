package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(migrations []Migration) []string {
	out := make([]string, len(migrations))
	for i, m := range migrations {
		out[i] = m.ID
	}
	return out
}

func TestLoadMigrations_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i := 1; i < len(migrations); i++ {
		assert.False(t, migrations[i].Version.LessThan(migrations[i-1].Version), "migrations are ordered by version")
	}
	for _, m := range migrations {
		assert.NotEmpty(t, m.SQL, m.ID)
	}
}

func TestLoadMigrations_OrdersBySemver(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"m/1.10.0_late.sql": {Data: []byte("SELECT 3")},
		"m/1.2.0_b.sql":     {Data: []byte("SELECT 2")},
		"m/1.2.0_a.sql":     {Data: []byte("SELECT 1")},
		"m/README.md":       {Data: []byte("ignored")},
		"m/0.9.0_early.sql": {Data: []byte("SELECT 0")},
	}

	migrations, err := loadMigrations(fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"0.9.0_early", "1.2.0_a", "1.2.0_b", "1.10.0_late"}, ids(migrations))
}

func TestLoadMigrations_InvalidVersion(t *testing.T) {
	t.Parallel()

	_, err := loadMigrations(fstest.MapFS{"m/initial.sql": {Data: []byte("SELECT 1")}}, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version")
}

func TestSelect(t *testing.T) {
	t.Parallel()

	all, err := loadMigrations(fstest.MapFS{
		"m/1.1.0_a.sql": {Data: []byte("SELECT 1")},
		"m/1.3.0_b.sql": {Data: []byte("SELECT 1")},
		"m/1.4.0_c.sql": {Data: []byte("SELECT 1")},
		"m/2.0.0_d.sql": {Data: []byte("SELECT 1")},
	}, "m")
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to string
		want     []string
	}{
		{"range is exclusive of from and inclusive of to", "1.1.0", "1.4.0", []string{"1.3.0_b", "1.4.0_c"}},
		{"patch release in between", "1.0.0", "1.4.2", []string{"1.1.0_a", "1.3.0_b", "1.4.0_c"}},
		{"same version", "1.4.2", "1.4.2", nil},
		{"downgrade selects nothing", "2.0.0", "1.0.0", nil},
		{"v prefix is accepted", "v1.3.0", "v2.0.0", []string{"1.4.0_c", "2.0.0_d"}},
		{"unparseable source selects all", "nightly", "1.4.2", []string{"1.1.0_a", "1.3.0_b", "1.4.0_c", "2.0.0_d"}},
		{"unparseable target selects all", "1.0.0", "main", []string{"1.1.0_a", "1.3.0_b", "1.4.0_c", "2.0.0_d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Select(all, tt.from, tt.to)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolume_PutGet(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	v, err := NewVolume(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, v.Put(ctx, "markers/1-extract.done", []byte("first")))
	require.NoError(t, v.Put(ctx, "markers/1-extract.done", []byte("second")))

	data, err := v.Get(ctx, "markers/1-extract.done")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "markers"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files are left behind")
	assert.Equal(t, "1-extract.done", entries[0].Name())

	exists, err := v.Exists(ctx, "markers/1-extract.done")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestVolume_Missing(t *testing.T) {
	t.Parallel()
	v, err := NewVolume(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = v.Get(ctx, "manifest.jsonl")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := v.Exists(ctx, "manifest.jsonl")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVolume_RejectsEscapingKeys(t *testing.T) {
	t.Parallel()
	v, err := NewVolume(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"../outside", "/etc/passwd", ".", ""} {
		assert.Error(t, v.Put(ctx, key, []byte("x")), key)
	}
}

func TestNewVolume_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := NewVolume(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = NewVolume(file)
	assert.Error(t, err)
}

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "machines", "web-1", "snapshot.json")

	require.NoError(t, WriteFile(target, []byte(`{"a":1}`), 0644))
	require.NoError(t, WriteFile(target, []byte(`{"a":2}`), 0644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestReadFileMissing(t *testing.T) {
	data, err := ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "nope")))
}

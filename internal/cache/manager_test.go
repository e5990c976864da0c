package cache

import (
	"path/filepath"
	"testing"

	"github.com/ahn-nath/confevo/internal/logging"
	"github.com/ahn-nath/confevo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "cache", "commits.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_PutGet(t *testing.T) {
	m := openTestCache(t)
	files := []models.ChangedFile{
		{Name: "config/Matxin.yaml", Patch: "@@ h @@\n+eu:\n+  - es"},
		{Name: "README.md", Patch: "+docs"},
	}

	require.NoError(t, m.Put("abc123", files))

	got, found, err := m.Get("abc123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, files, got)

	n, err := m.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManager_Miss(t *testing.T) {
	m := openTestCache(t)

	got, found, err := m.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestManager_EmptyFileListIsAHit(t *testing.T) {
	m := openTestCache(t)
	require.NoError(t, m.Put("empty", []models.ChangedFile{}))

	_, found, err := m.Get("empty")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestManager_Clear(t *testing.T) {
	m := openTestCache(t)
	require.NoError(t, m.Put("abc", nil))
	require.NoError(t, m.Clear())

	_, found, err := m.Get("abc")
	require.NoError(t, err)
	assert.False(t, found)
}

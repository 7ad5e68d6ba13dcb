package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSecretStore_RoundTrip(t *testing.T) {
	store, err := NewFileSecretStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("oauth:access-token", "tok-123"))

	value, ok, err := store.Get("oauth:access-token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-123", value)
}

func TestFileSecretStore_MissingKey(t *testing.T) {
	store, err := NewFileSecretStore(t.TempDir())
	require.NoError(t, err)

	value, ok, err := store.Get("never-set")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestFileSecretStore_Remove(t *testing.T) {
	store, err := NewFileSecretStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("k", "v"))
	require.NoError(t, store.Remove("k"))

	_, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing a missing key is not an error.
	assert.NoError(t, store.Remove("k"))
}

func TestFileSecretStore_Overwrite(t *testing.T) {
	store, err := NewFileSecretStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("k", "first"))
	require.NoError(t, store.Set("k", "second"))

	value, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", value)
}

func TestFileSecretStore_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSecretStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("k", "v"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Key strings must not leak into file names.
	assert.NotContains(t, entries[0].Name(), "k")
	assert.Equal(t, ".secret", filepath.Ext(entries[0].Name()))
}

func TestSessionStore(t *testing.T) {
	s := NewSessionStore()

	assert.Empty(t, s.Get("missing"))

	s.Set("oauth:state", "abc")
	assert.Equal(t, "abc", s.Get("oauth:state"))

	s.Remove("oauth:state")
	assert.Empty(t, s.Get("oauth:state"))

	s.Set("a", "1")
	s.Set("b", "2")
	s.Clear()
	assert.Empty(t, s.Get("a"))
	assert.Empty(t, s.Get("b"))
}

func TestMemorySecretStore(t *testing.T) {
	s := NewMemorySecretStore()

	require.NoError(t, s.Set("k", "v"))
	value, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", value)

	require.NoError(t, s.Remove("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

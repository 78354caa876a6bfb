package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"therapist-effects/domain/core"
	"therapist-effects/ports"
)

func backends(t *testing.T) map[string]ports.CacheStore {
	t.Helper()
	file, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	kv, err := OpenBadgerStore(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	return map[string]ports.CacheStore{
		"memory": NewMemoryStore(),
		"file":   file,
		"badger": kv,
	}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "confounding-0011223344556677")
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrCacheMiss)
			assert.True(t, core.IsCacheMiss(err))

			require.NoError(t, store.Store(ctx, "confounding-0011223344556677", []byte(`{"a":1}`)))
			require.NoError(t, store.Store(ctx, "coverage-8899aabbccddeeff", []byte(`{"b":2}`)))

			got, err := store.Load(ctx, "confounding-0011223344556677")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"a":1}`), got)

			require.NoError(t, store.Store(ctx, "confounding-0011223344556677", []byte(`{"a":3}`)))
			got, err = store.Load(ctx, "confounding-0011223344556677")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"a":3}`), got)

			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"confounding-0011223344556677", "coverage-8899aabbccddeeff"}, keys)

			require.NoError(t, store.Delete(ctx, "confounding-0011223344556677"))
			require.NoError(t, store.Delete(ctx, "confounding-0011223344556677"), "deleting twice is fine")
			_, err = store.Load(ctx, "confounding-0011223344556677")
			assert.ErrorIs(t, err, core.ErrCacheMiss)

			keys, err = store.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"coverage-8899aabbccddeeff"}, keys)
		})
	}
}

func TestStores_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Store(ctx, "k", []byte("v")), context.Canceled)
			_, err := store.Load(ctx, "k")
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestMemoryStore_CopiesPayload(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	payload := []byte("abc")
	require.NoError(t, store.Store(ctx, "k", payload))
	payload[0] = 'x'

	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), "main-abc", []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "main-abc.json", entries[0].Name())

	// stray files are not keys
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main-abc"}, keys)
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
		assert.Error(t, store.Store(context.Background(), key, []byte("x")), key)
	}

	_, err = NewFileStore("")
	assert.True(t, core.IsConfigurationError(err))
}

func TestBadgerStore_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, "coverage-1", []byte("payload")))
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx, "coverage-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openMem(t)

	ok, err := store.Exists(ctx, "indices/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.WriteAll(ctx, "indices/a.txt", []byte("hello"), "text/plain"))
	require.NoError(t, store.Write(ctx, "indices/b.txt", strings.NewReader("world"), ""))

	ok, err = store.Exists(ctx, "indices/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.ReadAll(ctx, "indices/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	keys, err := store.List(ctx, IndexPrefix)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"indices/a.txt", "indices/b.txt"}, keys)

	require.NoError(t, store.Delete(ctx, "indices/a.txt"))
	require.NoError(t, store.Delete(ctx, "indices/a.txt"), "deleting a missing key is a no-op")

	_, err = store.ReadAll(ctx, "indices/a.txt")
	require.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestOpenLocalDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir() + "/nested/data"
	store, err := Open(ctx, dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.WriteAll(ctx, MetadataKey("NGC 123"), []byte("{}"), "application/json"))
	ok, err := store.Exists(ctx, MetadataKey("NGC 123"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenRejectsEmptyLocation(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}

func TestLayout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "indices/G-000000-000200-000000-120000.txt", ResultKey("G-000000-000200-000000-120000"))
	assert.Equal(t, "indices/G-000000-000200-000000-120000.request.txt", MarkerKey("G-000000-000200-000000-120000"))
	assert.True(t, IsResultKey(ResultKey("k")))
	assert.False(t, IsResultKey(MarkerKey("k")))
	assert.False(t, IsResultKey("objects/x/metadata.json"))

	assert.Equal(t, "objects/NGC%20123/metadata.json", MetadataKey("NGC 123"))
	assert.Equal(t, "objects/SDSS%20J1%2F2%2E5/image-3.jpeg", ImageKey("SDSS J1/2.5", 3, "jpeg"))
	assert.Equal(t, "objects/%2E%2E/metadata.json", MetadataKey(".."))
	assert.True(t, IsImageKey("NGC 123", ImageKey("NGC 123", 0, "png")))
	assert.False(t, IsImageKey("NGC 123", MetadataKey("NGC 123")))

	assert.Equal(t, "screenshots/err-1700000000123.png", ScreenshotKey(time.UnixMilli(1700000000123)))
}

package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/storage"
)

func TestListResultsExcludesMarkers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := storage.Open(ctx, "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, key := range []string{
		storage.ResultKey("QSO-000200-000400-000000-120000"),
		storage.ResultKey("G-000000-000200-000000-120000"),
		storage.MarkerKey("G-000200-000400-000000-120000"),
		storage.MetadataKey("NGC 123"),
	} {
		require.NoError(t, store.WriteAll(ctx, key, []byte("x"), "text/plain"))
	}

	keys, err := ListResults(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"indices/G-000000-000200-000000-120000.txt",
		"indices/QSO-000200-000400-000000-120000.txt",
	}, keys)
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := storage.Open(ctx, "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	key := storage.ResultKey("G-000000-000200-000000-120000")
	require.NoError(t, store.WriteAll(ctx, key, []byte("No.|Object Name\n1|NGC 1\n"), "text/plain"))

	records, err := ParseKey(ctx, store, key)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "NGC 1", records[0].ObjectID())

	_, err = ParseKey(ctx, store, storage.ResultKey("missing"))
	require.ErrorIs(t, err, harvest.ErrNotFound)
}

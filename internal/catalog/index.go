package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/storage"
)

// ListResults returns every completed partition result key, sorted.
// Dispatch markers are excluded.
func ListResults(ctx context.Context, store harvest.Store) ([]string, error) {
	keys, err := store.List(ctx, storage.IndexPrefix)
	if err != nil {
		return nil, fmt.Errorf("list indices: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if storage.IsResultKey(key) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

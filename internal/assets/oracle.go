package assets

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/storage"
)

// RecognizedExtensions are the image extensions accepted as a downloaded
// blob when judging completeness.
var RecognizedExtensions = []string{"jpeg", "jpg", "png", "gif"}

// Oracle decides whether persisted output already satisfies an object.
type Oracle struct {
	store  harvest.Store
	logger *zap.Logger
}

// NewOracle builds an Oracle over store.
func NewOracle(store harvest.Store, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{store: store, logger: logger}
}

// state is what the store holds for one object.
type state struct {
	metadata Metadata
	found    bool
	blobs    map[string]struct{}
}

func (o *Oracle) inspect(ctx context.Context, objectID string) (state, error) {
	data, err := o.store.ReadAll(ctx, storage.MetadataKey(objectID))
	if errors.Is(err, harvest.ErrNotFound) {
		return state{}, nil
	}
	if err != nil {
		return state{}, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		o.logger.Warn("unreadable metadata; treating object as not harvested",
			zap.String("key", objectID), zap.Error(err))
		return state{}, nil
	}
	keys, err := o.store.List(ctx, storage.ObjectDir(objectID))
	if err != nil {
		return state{}, err
	}
	blobs := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		blobs[key] = struct{}{}
	}
	return state{metadata: md, found: true, blobs: blobs}, nil
}

// complete reports whether st satisfies a run requesting strategy.
func (st state) complete(objectID string, requested harvest.Strategy) bool {
	if !st.found || !st.metadata.Strategy.Satisfies(requested) {
		return false
	}
	for i := range st.metadata.Images {
		if !st.hasImage(objectID, i) {
			return false
		}
	}
	return true
}

func (st state) hasImage(objectID string, index int) bool {
	for _, ext := range RecognizedExtensions {
		if _, ok := st.blobs[storage.ImageKey(objectID, index, ext)]; ok {
			return true
		}
	}
	return false
}

// IsComplete reports whether objectID's metadata exists, every descriptor
// in it has a downloaded blob with a recognized extension, and the strategy
// that produced it is acceptable for requested.
func (o *Oracle) IsComplete(ctx context.Context, objectID string, requested harvest.Strategy) (bool, error) {
	st, err := o.inspect(ctx, objectID)
	if err != nil {
		return false, err
	}
	return st.complete(objectID, requested), nil
}

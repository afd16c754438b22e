package assets

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

// Metadata is the persisted description of one object: its catalog record
// fields merged with the discovered image descriptors and the strategy that
// discovered them. It is stored as a single flat JSON object.
type Metadata struct {
	ObjectID string
	Fields   harvest.Record
	Images   []harvest.Descriptor
	Strategy harvest.Strategy
}

var reservedFields = map[string]struct{}{
	harvest.FieldObjectID: {},
	harvest.FieldImages:   {},
	harvest.FieldStrategy: {},
}

// NewMetadata merges record with the discovered descriptors.
func NewMetadata(objectID string, record harvest.Record, images []harvest.Descriptor, strategy harvest.Strategy) Metadata {
	fields := make(harvest.Record, len(record))
	for k, v := range record {
		if _, reserved := reservedFields[k]; !reserved {
			fields[k] = v
		}
	}
	if images == nil {
		images = []harvest.Descriptor{}
	}
	return Metadata{ObjectID: objectID, Fields: fields, Images: images, Strategy: strategy}
}

// MarshalJSON flattens the record fields alongside the reserved keys.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+3)
	for k, v := range m.Fields {
		out[k] = v
	}
	images := m.Images
	if images == nil {
		images = []harvest.Descriptor{}
	}
	out[harvest.FieldObjectID] = m.ObjectID
	out[harvest.FieldImages] = images
	out[harvest.FieldStrategy] = m.Strategy
	return json.Marshal(out)
}

// UnmarshalJSON splits the reserved keys back out. Metadata written before
// the strategy flag existed decodes as harvest.StrategyFull.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	decoded := Metadata{Fields: harvest.Record{}, Images: []harvest.Descriptor{}, Strategy: harvest.StrategyFull}
	for k, v := range raw {
		switch k {
		case harvest.FieldObjectID:
			if err := json.Unmarshal(v, &decoded.ObjectID); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
		case harvest.FieldImages:
			if err := json.Unmarshal(v, &decoded.Images); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
		case harvest.FieldStrategy:
			var name string
			if err := json.Unmarshal(v, &name); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			strategy, err := harvest.ParseStrategy(name)
			if err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			decoded.Strategy = strategy
		default:
			var value any
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			decoded.Fields[k] = value
		}
	}
	*m = decoded
	return nil
}

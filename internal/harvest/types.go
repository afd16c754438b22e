package harvest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// AxisSpan is the full extent of both query axes (right ascension and
// declination are both expressed in hour-angle units on the remote form).
const AxisSpan = 24 * time.Hour

// Strategy selects how image descriptors are discovered for a record.
type Strategy string

// Supported extraction strategies.
const (
	// StrategyFull navigates to the record's detail view and scrapes its image table.
	StrategyFull Strategy = "full"
	// StrategyGuess synthesizes a single descriptor URL without navigation.
	StrategyGuess Strategy = "guess"
)

// ParseStrategy validates a strategy name. An empty name selects StrategyFull.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StrategyFull:
		return StrategyFull, nil
	case StrategyGuess:
		return StrategyGuess, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want %q or %q)", raw, StrategyFull, StrategyGuess)
	}
}

// Satisfies reports whether output produced under s is acceptable for a run
// requesting the given strategy. Guessed descriptors are never accepted by a
// full-extraction run.
func (s Strategy) Satisfies(requested Strategy) bool {
	switch requested {
	case StrategyGuess:
		return s == StrategyFull || s == StrategyGuess
	default:
		return s == StrategyFull
	}
}

// Partition is one bounded slice of the query space: a primary and secondary
// angle range plus an object category. Ranges are half-open except where the
// Closed flag marks the final bucket of an axis.
type Partition struct {
	PrimaryMin      time.Duration
	PrimaryMax      time.Duration
	PrimaryClosed   bool
	SecondaryMin    time.Duration
	SecondaryMax    time.Duration
	SecondaryClosed bool
	Category        string
}

// Key returns the canonical identity of the partition, used to name its
// result file and dispatch marker.
func (p Partition) Key() string {
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		p.Category,
		compactHMS(p.PrimaryMin),
		compactHMS(p.PrimaryMax),
		compactHMS(p.SecondaryMin),
		compactHMS(p.SecondaryMax),
	)
}

// FormHMS renders an axis value as H:MM:SS for the remote form.
func FormHMS(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

func compactHMS(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d%02d%02d", total/3600, (total/60)%60, total%60)
}

// Record is one parsed catalog row keyed by canonical field name. Values are
// either string or float64.
type Record map[string]any

// ObjectID returns the record's identity field.
func (r Record) ObjectID() string {
	if v, ok := r[FieldObjectID].(string); ok {
		return v
	}
	if v, ok := r[FieldObjectID]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Float returns a numeric field, if present.
func (r Record) Float(field string) (float64, bool) {
	v, ok := r[field].(float64)
	return v, ok
}

// Number returns field as a float64, also accepting text that parses as a
// number. Signed values such as declinations stay text in parsed records.
func (r Record) Number(field string) (float64, bool) {
	switch v := r[field].(type) {
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Canonical field names referenced outside the catalog parser.
const (
	FieldObjectID    = "objectID"
	FieldRA          = "rightAscensionDegrees"
	FieldDec         = "declinationDegrees"
	FieldImages      = "images"
	FieldStrategy    = "strategy"
	DescriptorSource = "src"
)

// Descriptor describes one discoverable image: its source URL under the
// "src" key plus optional descriptive fields.
type Descriptor map[string]string

// Source returns the descriptor's download URL.
func (d Descriptor) Source() string {
	return d[DescriptorSource]
}

// TableCell is the extracted content of one rendered table cell.
type TableCell struct {
	Text  string `json:"text"`
	Link  string `json:"link"`
	Image string `json:"image"`
}

// TableRow is one rendered table row.
type TableRow []TableCell

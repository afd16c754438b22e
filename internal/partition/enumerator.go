// Package partition enumerates the query space as a deterministic grid of
// (primary angle bucket x secondary angle bucket x category) partitions.
package partition

import (
	"fmt"
	"time"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

// Default bucket sizes: two minutes of right ascension by twelve hours of
// declination keeps each remote result set small enough to be served.
const (
	DefaultPrimaryBucket   = 2 * time.Minute
	DefaultSecondaryBucket = 12 * time.Hour
)

// Config sizes the grid. An empty Categories list selects every known category.
type Config struct {
	PrimaryBucket   time.Duration
	SecondaryBucket time.Duration
	Categories      []string
}

// Enumerator is a restartable iterator over the partition grid. It owns all
// of its position state; it is not safe for concurrent use.
type Enumerator struct {
	primary    time.Duration
	secondary  time.Duration
	categories []string

	pi, si, ci int
}

// New validates cfg and returns an Enumerator positioned at the first
// partition. Unknown categories fail with harvest.ErrInvalidCategory.
func New(cfg Config) (*Enumerator, error) {
	if err := validateBucket("primary", cfg.PrimaryBucket); err != nil {
		return nil, err
	}
	if err := validateBucket("secondary", cfg.SecondaryBucket); err != nil {
		return nil, err
	}
	categories := cfg.Categories
	if len(categories) == 0 {
		categories = Categories()
	}
	seen := make(map[string]struct{}, len(categories))
	for _, name := range categories {
		if _, err := Lookup(name); err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		seen[name] = struct{}{}
	}
	return &Enumerator{
		primary:    cfg.PrimaryBucket,
		secondary:  cfg.SecondaryBucket,
		categories: append([]string(nil), categories...),
	}, nil
}

func validateBucket(axis string, size time.Duration) error {
	switch {
	case size <= 0:
		return fmt.Errorf("%s bucket must be > 0", axis)
	case size%time.Second != 0:
		return fmt.Errorf("%s bucket %s must be a whole number of seconds", axis, size)
	case harvest.AxisSpan%size != 0:
		return fmt.Errorf("%s bucket %s must divide %s evenly", axis, size, harvest.AxisSpan)
	}
	return nil
}

// Total returns the number of partitions in the grid.
func (e *Enumerator) Total() int {
	return e.primaryBuckets() * e.secondaryBuckets() * len(e.categories)
}

func (e *Enumerator) primaryBuckets() int {
	return int(harvest.AxisSpan / e.primary)
}

func (e *Enumerator) secondaryBuckets() int {
	return int(harvest.AxisSpan / e.secondary)
}

// Next returns the next partition, or false once the grid is exhausted.
func (e *Enumerator) Next() (harvest.Partition, bool) {
	if e.pi >= e.primaryBuckets() {
		return harvest.Partition{}, false
	}
	p := harvest.Partition{
		PrimaryMin:      time.Duration(e.pi) * e.primary,
		PrimaryMax:      time.Duration(e.pi+1) * e.primary,
		PrimaryClosed:   e.pi == e.primaryBuckets()-1,
		SecondaryMin:    time.Duration(e.si) * e.secondary,
		SecondaryMax:    time.Duration(e.si+1) * e.secondary,
		SecondaryClosed: e.si == e.secondaryBuckets()-1,
		Category:        e.categories[e.ci],
	}
	e.advance()
	return p, true
}

func (e *Enumerator) advance() {
	e.ci++
	if e.ci < len(e.categories) {
		return
	}
	e.ci = 0
	e.si++
	if e.si < e.secondaryBuckets() {
		return
	}
	e.si = 0
	e.pi++
}

// Reset rewinds the enumerator to the first partition.
func (e *Enumerator) Reset() {
	e.pi, e.si, e.ci = 0, 0, 0
}

// FormUpperBound corrects an upper bound for submission: the axis wraparound
// value reads as zero on the remote form, so it is clamped to the last
// representable second before it.
func FormUpperBound(bound time.Duration) time.Duration {
	if bound >= harvest.AxisSpan {
		return harvest.AxisSpan - time.Second
	}
	return bound
}

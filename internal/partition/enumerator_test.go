package partition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

func drain(t *testing.T, e *Enumerator) []harvest.Partition {
	t.Helper()
	var out []harvest.Partition
	for {
		p, ok := e.Next()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}

func TestEnumeratorCountInvariant(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		primary    time.Duration
		secondary  time.Duration
		categories []string
	}{
		{"hours", 6 * time.Hour, 12 * time.Hour, []string{"G", "QSO", "SN"}},
		{"single bucket", 24 * time.Hour, 24 * time.Hour, []string{"G"}},
		{"minutes", 30 * time.Minute, 8 * time.Hour, []string{"G", "PN"}},
		{"all categories", 4 * time.Hour, 12 * time.Hour, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e, err := New(Config{PrimaryBucket: tc.primary, SecondaryBucket: tc.secondary, Categories: tc.categories})
			require.NoError(t, err)

			categories := len(tc.categories)
			if categories == 0 {
				categories = len(Categories())
			}
			want := int(24*time.Hour/tc.primary) * int(24*time.Hour/tc.secondary) * categories
			assert.Equal(t, want, e.Total())

			parts := drain(t, e)
			require.Len(t, parts, want)

			keys := make(map[string]struct{}, len(parts))
			for _, p := range parts {
				_, dup := keys[p.Key()]
				require.False(t, dup, "duplicate key %s", p.Key())
				keys[p.Key()] = struct{}{}
			}
		})
	}
}

func TestEnumeratorOrderAndClosedBuckets(t *testing.T) {
	t.Parallel()

	e, err := New(Config{PrimaryBucket: 12 * time.Hour, SecondaryBucket: 12 * time.Hour, Categories: []string{"QSO", "G"}})
	require.NoError(t, err)

	parts := drain(t, e)
	require.Len(t, parts, 8)

	assert.Equal(t, "QSO", parts[0].Category)
	assert.Equal(t, "G", parts[1].Category)
	assert.Equal(t, time.Duration(0), parts[0].PrimaryMin)
	assert.Equal(t, 12*time.Hour, parts[2].SecondaryMin)
	assert.Equal(t, 12*time.Hour, parts[4].PrimaryMin)

	assert.False(t, parts[0].PrimaryClosed)
	assert.False(t, parts[0].SecondaryClosed)
	assert.True(t, parts[3].SecondaryClosed)
	last := parts[len(parts)-1]
	assert.True(t, last.PrimaryClosed)
	assert.True(t, last.SecondaryClosed)
	assert.Equal(t, 24*time.Hour, last.PrimaryMax)
}

func TestEnumeratorReset(t *testing.T) {
	t.Parallel()

	e, err := New(Config{PrimaryBucket: 8 * time.Hour, SecondaryBucket: 24 * time.Hour, Categories: []string{"G"}})
	require.NoError(t, err)

	first := drain(t, e)
	_, ok := e.Next()
	assert.False(t, ok)

	e.Reset()
	assert.Equal(t, first, drain(t, e))
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{PrimaryBucket: 7 * time.Hour, SecondaryBucket: 12 * time.Hour})
	require.Error(t, err)

	_, err = New(Config{PrimaryBucket: 0, SecondaryBucket: 12 * time.Hour})
	require.Error(t, err)

	_, err = New(Config{PrimaryBucket: 1500 * time.Millisecond, SecondaryBucket: 12 * time.Hour})
	require.Error(t, err)

	_, err = New(Config{PrimaryBucket: time.Hour, SecondaryBucket: time.Hour, Categories: []string{"G", "G"}})
	require.Error(t, err)

	_, err = New(Config{PrimaryBucket: time.Hour, SecondaryBucket: time.Hour, Categories: []string{"Comet"}})
	require.True(t, errors.Is(err, harvest.ErrInvalidCategory))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	opt, err := Lookup("WD")
	require.NoError(t, err)
	assert.Equal(t, Option{Group: 3, Index: 21}, opt)

	_, err = Lookup("wd")
	require.ErrorIs(t, err, harvest.ErrInvalidCategory)
	assert.Len(t, Categories(), 40)
}

func TestFormUpperBound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 23*time.Hour+59*time.Minute+59*time.Second, FormUpperBound(24*time.Hour))
	assert.Equal(t, 12*time.Hour, FormUpperBound(12*time.Hour))
	assert.Equal(t, "23:59:59", harvest.FormHMS(FormUpperBound(harvest.AxisSpan)))
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterDelaysSecondRequestPerHost(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	l, err := New(Config{RequestsPerSecond: 10, Burst: 1, Registerer: reg})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://ned.example.org/byparams"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://ned.example.org/uri/x"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://other.example.org/"))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "hosts have independent buckets")

	assert.Equal(t, 1, testutil.CollectAndCount(l.delay, "harvester_rate_limit_delay_seconds"))
}

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l, err := New(Config{})
	require.NoError(t, err)
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(context.Background(), "https://ned.example.org/"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l, err := New(Config{RequestsPerSecond: 0.01, Burst: 1})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "not a url"))
	require.Error(t, l.Wait(ctx, "not a url"))
}

func TestNilLimiterIsNoop(t *testing.T) {
	t.Parallel()

	var l *Limiter
	require.NoError(t, l.Wait(context.Background(), "https://ned.example.org/"))
}

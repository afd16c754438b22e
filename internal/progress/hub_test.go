package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFlushesWhenBatchIsFull(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageItemStart))
	hub.Emit(sampleEvent(StageItemDone))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushesOnTimer(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 20 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageItemStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubCloseDrainsAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)

	hub.Emit(sampleEvent(StageItemError))
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, StageItemError, batches[0][0].Stage)
	assert.True(t, sink.Closed())

	hub.Emit(sampleEvent(StageItemDone))
	assert.Len(t, sink.Batches(), 1, "emit after close is ignored")
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{Stage: StageItemDone})
	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
}

func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{cfg: Config{}.withDefaults(), events: make(chan Event)}
	start := time.Now()
	for range 10 {
		hub.Emit(sampleEvent(StageItemStart))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(9), hub.dropped.Load(), "first drop is logged and resets the counter")
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := sampleEvent(StageItemDone)
	require.NoError(t, valid.Validate())

	unknown := valid
	unknown.Stage = "JOB_START"
	require.Error(t, unknown.Validate())

	noPool := valid
	noPool.Pool = ""
	require.Error(t, noPool.Validate())

	negative := valid
	negative.Dur = -time.Second
	require.Error(t, negative.Validate())

	assert.True(t, StageItemSkipped.Terminal())
	assert.False(t, StageItemStart.Terminal())
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func (s *recordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID: NewRunID(),
		TS:    time.Now().UTC(),
		Stage: stage,
		Pool:  "indices",
		Key:   "G-000000-000200-000000-120000",
	}
}

package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/ned-harvester/internal/progress"
)

// PoolSnapshot summarizes one pool's items as seen by a Tracker.
type PoolSnapshot struct {
	Pool      string    `json:"pool"`
	RunID     string    `json:"run_id"`
	Started   int       `json:"started"`
	Completed int       `json:"completed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	InFlight  int       `json:"in_flight"`
	LastKey   string    `json:"last_key,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker keeps an in-memory snapshot of every pool's progress for the
// status endpoint.
type Tracker struct {
	mu    sync.RWMutex
	pools map[string]*PoolSnapshot
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{pools: make(map[string]*PoolSnapshot)}
}

// Consume folds batch into the snapshots.
func (t *Tracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		snap, ok := t.pools[evt.Pool]
		if !ok || snap.RunID != evt.RunID.String() {
			snap = &PoolSnapshot{Pool: evt.Pool, RunID: evt.RunID.String()}
			t.pools[evt.Pool] = snap
		}
		switch evt.Stage {
		case progress.StageItemStart:
			snap.Started++
			snap.InFlight++
		case progress.StageItemDone:
			snap.Completed++
			snap.InFlight--
		case progress.StageItemSkipped:
			snap.Skipped++
			snap.InFlight--
		case progress.StageItemError:
			snap.Failed++
			snap.InFlight--
			snap.LastError = evt.Note
		}
		snap.LastKey = evt.Key
		if evt.TS.After(snap.UpdatedAt) {
			snap.UpdatedAt = evt.TS
		}
	}
	return nil
}

// Snapshot returns every pool's snapshot sorted by pool name.
func (t *Tracker) Snapshot() []PoolSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PoolSnapshot, 0, len(t.pools))
	for _, snap := range t.pools {
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pool < out[j].Pool })
	return out
}

// Pool returns one pool's snapshot.
func (t *Tracker) Pool(name string) (PoolSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.pools[name]
	if !ok {
		return PoolSnapshot{}, false
	}
	return *snap, true
}

// Close implements progress.Sink.
func (t *Tracker) Close(context.Context) error {
	return nil
}

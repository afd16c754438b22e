// Package pool runs lazily supplied work items with bounded concurrency.
// Item failures are terminal for that item only; they are logged, counted,
// and never abort the pool or sibling items.
package pool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/progress"
)

// Outcome classifies an item that settled without error.
type Outcome int

const (
	// Completed means the item performed work and produced output.
	Completed Outcome = iota
	// Skipped means prior output already satisfied the item.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Item is one unit of work: an identity plus the function that performs it.
type Item struct {
	Key string
	Run func(ctx context.Context) (Outcome, error)
}

// Supplier hands out items one at a time. The second return value is false
// once the supply is exhausted. Run calls Next from a single goroutine.
type Supplier interface {
	Next() (Item, bool)
}

// SupplierFunc adapts a function to Supplier.
type SupplierFunc func() (Item, bool)

// Next implements Supplier.
func (f SupplierFunc) Next() (Item, bool) {
	return f()
}

// Map builds a Supplier from an iterator-style next function.
func Map[T any](next func() (T, bool), build func(T) Item) Supplier {
	return SupplierFunc(func() (Item, bool) {
		v, ok := next()
		if !ok {
			return Item{}, false
		}
		return build(v), true
	})
}

// Slice builds a Supplier over a fixed slice. Position state belongs to the
// returned Supplier.
func Slice[T any](values []T, build func(T) Item) Supplier {
	i := 0
	return Map(func() (T, bool) {
		var zero T
		if i >= len(values) {
			return zero, false
		}
		v := values[i]
		i++
		return v, true
	}, build)
}

// Options configures a single Run.
type Options struct {
	// Name labels log lines and progress events, e.g. "indices".
	Name string
	// Concurrency is the in-flight ceiling; values below 1 are treated as 1.
	Concurrency int
	Logger      *zap.Logger
	Emitter     progress.Emitter
	RunID       uuid.UUID
	Clock       harvest.Clock
}

// Summary reports how a run's items settled.
type Summary struct {
	Completed int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

// Total is the number of settled items.
func (s Summary) Total() int {
	return s.Completed + s.Skipped + s.Failed
}

type runner struct {
	opts      Options
	logger    *zap.Logger
	completed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// Run pulls items from supply and executes at most opts.Concurrency of them
// at once. It returns when the supply is exhausted (or ctx is done) and every
// started item has settled.
func Run(ctx context.Context, supply Supplier, opts Options) Summary {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emitter == nil {
		opts.Emitter = progress.Discard
	}
	if opts.Clock == nil {
		opts.Clock = harvest.SystemClock{}
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = progress.NewRunID()
	}
	r := &runner{opts: opts, logger: opts.Logger.With(zap.String("pool", opts.Name))}
	start := opts.Clock.Now()

	var group errgroup.Group
	group.SetLimit(opts.Concurrency)
	for ctx.Err() == nil {
		item, ok := supply.Next()
		if !ok {
			break
		}
		group.Go(func() error {
			r.runItem(ctx, item)
			return nil
		})
	}
	_ = group.Wait()

	return Summary{
		Completed: int(r.completed.Load()),
		Skipped:   int(r.skipped.Load()),
		Failed:    int(r.failed.Load()),
		Elapsed:   opts.Clock.Now().Sub(start),
	}
}

func (r *runner) runItem(ctx context.Context, item Item) {
	started := r.opts.Clock.Now()
	r.emit(progress.StageItemStart, item.Key, 0, "")

	outcome, err := r.invoke(ctx, item)
	dur := r.opts.Clock.Now().Sub(started)
	if err != nil {
		r.failed.Add(1)
		r.logger.Error("item failed", zap.String("key", item.Key), zap.Duration("dur", dur), zap.Error(err))
		r.emit(progress.StageItemError, item.Key, dur, err.Error())
		return
	}
	if outcome == Skipped {
		r.skipped.Add(1)
		r.logger.Debug("item already complete", zap.String("key", item.Key))
		r.emit(progress.StageItemSkipped, item.Key, dur, "")
		return
	}
	r.completed.Add(1)
	r.logger.Info("item completed", zap.String("key", item.Key), zap.Duration("dur", dur))
	r.emit(progress.StageItemDone, item.Key, dur, "")
}

func (r *runner) invoke(ctx context.Context, item Item) (outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("item panicked: %v", rec)
		}
	}()
	if item.Run == nil {
		return Completed, fmt.Errorf("item %q has no run function", item.Key)
	}
	return item.Run(ctx)
}

func (r *runner) emit(stage progress.Stage, key string, dur time.Duration, note string) {
	r.opts.Emitter.Emit(progress.Event{
		RunID: r.opts.RunID,
		TS:    r.opts.Clock.Now(),
		Stage: stage,
		Pool:  r.opts.Name,
		Key:   key,
		Dur:   dur,
		Note:  note,
	})
}

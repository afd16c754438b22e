package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes which point of an item's lifecycle an Event records.
type Stage string

// Supported progress stages.
const (
	StageItemStart   Stage = "ITEM_START"
	StageItemDone    Stage = "ITEM_DONE"
	StageItemSkipped Stage = "ITEM_SKIPPED"
	StageItemError   Stage = "ITEM_ERROR"
)

// Event records one transition of a single work item.
type Event struct {
	// RunID identifies the command invocation that produced the event.
	RunID uuid.UUID
	// TS is the UTC time the event was emitted.
	TS time.Time
	Stage Stage
	// Pool names the work pool ("indices" or "objects").
	Pool string
	// Key is the partition key or object identifier.
	Key string
	// Dur is the item's run time; set on terminal stages.
	Dur time.Duration
	// Note holds low-volume context such as error text.
	Note string
}

// Terminal reports whether the stage settles an item.
func (s Stage) Terminal() bool {
	return s == StageItemDone || s == StageItemSkipped || s == StageItemError
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Pool == "" {
		return errors.New("pool is required")
	}
	switch e.Stage {
	case StageItemStart, StageItemDone, StageItemSkipped, StageItemError:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// NewRunID returns a time-ordered run identifier.
func NewRunID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

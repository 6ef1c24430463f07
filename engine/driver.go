package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/flpablo/winflow/log"
	"github.com/flpablo/winflow/mtime"
	"github.com/flpablo/winflow/typex"
)

// Dispatcher is what the BatchDriver needs from whichever runner
// (ReduceFnRunner or StatefulRunner) it is driving: a way to hand a fired
// timer back to the runner, and a way to finalize state once the key's
// input is exhausted.
type Dispatcher interface {
	DispatchTimer(t Timer) error
	Persist() error
}

// BatchDriver drives timer draining for a given key: it advances watermarks to +infinity
// at end of input, drains all eligible timers, invokes
// the window-expiration hook once timers are quiescent, and finalizes
// persistence.
type BatchDriver struct {
	id      string
	timers  *TimerStore
	run     Dispatcher
	expired func() error // StatefulRunner.OnWindowExpiration, or nil
}

// NewBatchDriver builds a driver over timers for the given dispatcher. Each
// driver is stamped with a random id, logged alongside every timer it
// fires, so that a host reading several keys' logs interleaved can still
// tell one key's invocation apart from another's.
// expired may be nil when the runner has no window-expiration hook (the
// ReduceFnRunner path never sets one).
func NewBatchDriver(timers *TimerStore, run Dispatcher, expired func() error) *BatchDriver {
	return &BatchDriver{id: uuid.NewString(), timers: timers, run: run, expired: expired}
}

// Drain runs the timer drain loop to exhaustion at the timer store's
// current watermarks, without advancing them. Useful for draining timers
// that became ready mid-stream (e.g. a window merge's GC reschedule).
func (d *BatchDriver) Drain() error {
	ctx := context.Background()
	for {
		fired := false
		for {
			t, ok := d.timers.RemoveNextEventTimer()
			if !ok {
				break
			}
			log.Debugf(ctx, "driver %s: firing event timer %s @ %v", d.id, t.ID.Name, t.Timestamp)
			if err := d.run.DispatchTimer(t); err != nil {
				return err
			}
			fired = true
		}
		for {
			t, ok := d.timers.RemoveNextProcessingTimer()
			if !ok {
				break
			}
			log.Debugf(ctx, "driver %s: firing processing timer %s @ %v", d.id, t.ID.Name, t.Timestamp)
			if err := d.run.DispatchTimer(t); err != nil {
				return err
			}
			fired = true
		}
		for {
			t, ok := d.timers.RemoveNextSyncProcessingTimer()
			if !ok {
				break
			}
			log.Debugf(ctx, "driver %s: firing sync-processing timer %s @ %v", d.id, t.ID.Name, t.Timestamp)
			if err := d.run.DispatchTimer(t); err != nil {
				return err
			}
			fired = true
		}
		if !fired {
			return nil
		}
	}
}

// Finish implements the end-of-input lifecycle: advance
// every watermark to +infinity, drain all remaining timers, run the
// window-expiration hook (if any) once timers are quiescent, and persist.
func (d *BatchDriver) Finish() error {
	log.Debugf(context.Background(), "driver %s: finishing, advancing all watermarks to +infinity", d.id)
	if err := d.timers.AdvanceInputWatermark(mtime.MaxTimestamp); err != nil {
		return err
	}
	if err := d.timers.AdvanceProcessingTime(mtime.MaxTimestamp); err != nil {
		return err
	}
	if err := d.timers.AdvanceSyncProcessingTime(mtime.MaxTimestamp); err != nil {
		return err
	}
	if err := d.Drain(); err != nil {
		return err
	}
	if d.expired != nil {
		if err := d.expired(); err != nil {
			return err
		}
	}
	return d.run.Persist()
}

// AdvanceProcessingClocks moves processing time and synchronized
// processing time to now in one atomic transition; intermediate values in
// between are not observable to the host.
func (d *BatchDriver) AdvanceProcessingClocks(now typex.EventTime) error {
	if err := d.timers.AdvanceProcessingTime(now); err != nil {
		return err
	}
	return d.timers.AdvanceSyncProcessingTime(now)
}

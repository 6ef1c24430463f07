package engine

import (
	"fmt"
	"time"

	"github.com/flpablo/winflow/typex"
	"github.com/flpablo/winflow/window"
)

const (
	timerNameEndOfWindow = "eow"
	timerFamilyGABW      = "gabw"
)

var bufferCell = Bag[Element]{ID: "elements", Fingerprint: "engine.Element"}

// ReduceFnRunner is the group-also-by-window core: it consumes every
// element for one key, drives window assignment and merging, feeds the
// trigger machine, and emits grouped panes.
type ReduceFnRunner struct {
	fn       *window.Fn
	strategy window.Strategy
	machine  *TriggerMachine
	store    *Store
	timers   *TimerStore
	metrics  *Metrics
	opts     Options
	out      Receiver

	active       map[string]typex.Window
	paneIndex    map[string]int64
	nonSpecIndex map[string]int64
	closed       map[string]bool
}

// NewReduceFnRunner builds a runner for one key, sharing store/timers with
// whatever else is processing that key (the BatchDriver owns their
// lifecycle).
func NewReduceFnRunner(strategy window.Strategy, store *Store, timers *TimerStore, metrics *Metrics, opts Options, out Receiver) (*ReduceFnRunner, error) {
	tm, err := NewTriggerMachine(strategy.Trigger)
	if err != nil {
		return nil, err
	}
	return &ReduceFnRunner{
		fn:           &strategy.Fn,
		strategy:     strategy,
		machine:      tm,
		store:        store,
		timers:       timers,
		metrics:      metrics,
		opts:         opts,
		out:          out,
		active:       map[string]typex.Window{},
		paneIndex:    map[string]int64{},
		nonSpecIndex: map[string]int64{},
		closed:       map[string]bool{},
	}, nil
}

func (r *ReduceFnRunner) allowedLateness() time.Duration {
	if r.opts.AllowedLatenessOverride != nil {
		return *r.opts.AllowedLatenessOverride
	}
	return r.strategy.AllowedLateness
}

// ProcessElements processes a batch of elements
// belonging to this runner's key: assign windows, buffer, merge, and emit
// any panes that become ready as a result.
func (r *ReduceFnRunner) ProcessElements(elements []Element) error {
	for _, e := range elements {
		windows := e.Windows
		if len(windows) == 0 {
			windows = r.fn.Assign(e.Timestamp)
		}
		for _, w := range windows {
			if err := r.admit(w, e.WithWindow(w)); err != nil {
				return err
			}
		}
	}
	if r.fn.IsMergeable() {
		if err := r.runMergePass(); err != nil {
			return err
		}
	}
	return r.fireReady()
}

func (r *ReduceFnRunner) admit(w typex.Window, e Element) error {
	key := windowKey(w)
	if r.closed[key] {
		// The window already fired its final pane and was garbage
		// collected; anything arriving for it now is unrecoverably late.
		r.metrics.incDroppedDueToLateness()
		return nil
	}
	_, known := r.active[key]
	if !known {
		r.active[key] = w
	}
	ns := WindowNamespace(w)
	if err := bufferCell.Add(r.store, ns, e); err != nil {
		return err
	}
	r.machine.OnElement(w, 1, false, r.timers.ProcessingWatermark())
	r.metrics.incProcessedElements()
	if !known {
		r.scheduleEndOfWindow(w)
	}
	return nil
}

func (r *ReduceFnRunner) scheduleEndOfWindow(w typex.Window) {
	fire := w.MaxTimestamp().Add(r.allowedLateness())
	r.timers.Set(Timer{
		ID: TimerID{
			Namespace: WindowNamespace(w),
			Name:      timerNameEndOfWindow,
			Family:    timerFamilyGABW,
			Domain:    EventTime,
		},
		Timestamp:       fire,
		OutputTimestamp: fire,
	})
}

// runMergePass merges active windows, moving
// buffered elements and reconciling trigger state into the destination.
func (r *ReduceFnRunner) runMergePass() error {
	for {
		actives := make([]typex.Window, 0, len(r.active))
		for _, w := range r.active {
			actives = append(actives, w)
		}
		actions := r.fn.MergeWindows(actives)
		if len(actions) == 0 {
			return nil
		}
		for _, action := range actions {
			if err := r.applyMerge(action); err != nil {
				return err
			}
		}
	}
}

func (r *ReduceFnRunner) applyMerge(action window.MergeAction) error {
	to := action.To
	if r.closed[windowKey(to)] {
		return newFault(MergeConflict, "engine.ReduceFnRunner",
			fmt.Sprintf("merge target %v was already finalized and garbage collected", to), nil)
	}
	toNs := WindowNamespace(to)
	var fromWindows []typex.Window
	for _, from := range action.From {
		if from.Equals(to) {
			continue
		}
		fromNs := WindowNamespace(from)
		elems, err := bufferCell.Read(r.store, fromNs)
		if err != nil {
			return err
		}
		for _, e := range elems {
			if err := bufferCell.Add(r.store, toNs, e); err != nil {
				return err
			}
		}
		if err := r.store.MergeCombiningCells(fromNs, toNs); err != nil {
			return err
		}
		r.store.Clear(fromNs)
		r.timers.Delete(TimerID{Namespace: fromNs, Name: timerNameEndOfWindow, Family: timerFamilyGABW, Domain: EventTime})
		delete(r.active, windowKey(from))
		fromWindows = append(fromWindows, from)
	}
	if len(fromWindows) == 0 {
		return nil
	}
	r.machine.OnMerge(fromWindows, to)
	r.active[windowKey(to)] = to
	r.scheduleEndOfWindow(to)
	return nil
}

// fireReady emits a pane for every active window whose trigger is ready.
func (r *ReduceFnRunner) fireReady() error {
	for key, w := range r.active {
		if r.closed[key] {
			continue
		}
		if r.machine.ShouldFire(w) {
			if err := r.emit(w, false); err != nil {
				return err
			}
			r.machine.OnFire(w)
		}
	}
	return nil
}

func (r *ReduceFnRunner) emit(w typex.Window, isLast bool) error {
	ns := WindowNamespace(w)
	elems, err := bufferCell.Read(r.store, ns)
	if err != nil {
		return err
	}
	key := windowKey(w)
	idx := r.paneIndex[key]
	r.paneIndex[key] = idx + 1
	timing := typex.OnTime
	switch {
	case r.timers.InputWatermark() < w.MaxTimestamp():
		timing = typex.Early
	case r.nonSpecIndex[key] > 0:
		timing = typex.Late
	}
	nonSpec := r.nonSpecIndex[key]
	if timing != typex.Early {
		r.nonSpecIndex[key] = nonSpec + 1
	}
	values := make([]any, len(elems))
	for i, e := range elems {
		values[i] = e.Value
	}
	r.out(Pane{
		Window: w,
		Info: typex.PaneInfo{
			IsFirst:             idx == 0,
			IsLast:              isLast,
			Timing:              timing,
			Index:               idx,
			NonSpeculativeIndex: nonSpec,
		},
		Values: values,
	})
	r.metrics.incPanesEmitted()
	if r.strategy.Accumulation == window.Discarding {
		if err := bufferCell.Clear(r.store, ns); err != nil {
			return err
		}
	}
	return nil
}

// DispatchTimer implements the end-of-window timer this runner owns; it
// satisfies the driver's generic timer-dispatch contract.
func (r *ReduceFnRunner) DispatchTimer(t Timer) error {
	if t.ID.Name != timerNameEndOfWindow {
		return nil
	}
	w, ok := t.ID.Namespace.Window()
	if !ok {
		return nil
	}
	key := windowKey(w)
	if r.closed[key] {
		return nil
	}
	r.machine.OnTimer(w, true, r.timers.ProcessingWatermark())
	r.metrics.incTimersFired()
	fired := false
	if r.machine.ShouldFire(w) {
		if err := r.emit(w, false); err != nil {
			return err
		}
		r.machine.OnFire(w)
		fired = true
	}
	if r.machine.IsClosed(w) {
		if !fired {
			final := r.strategy.Closing == window.FireAlways
			if !final {
				elems, err := bufferCell.Read(r.store, WindowNamespace(w))
				if err != nil {
					return err
				}
				final = len(elems) > 0
			}
			if final {
				if err := r.emit(w, true); err != nil {
					return err
				}
			}
		}
		r.store.Clear(WindowNamespace(w))
		r.machine.Forget(w)
		r.closed[key] = true
		r.metrics.incWindowsGarbageCollected()
	}
	return nil
}

// Persist is idempotent: the Store already is the runner's durable state,
// so Persist has nothing to copy; calling it twice with no intervening
// mutation is a no-op both times.
func (r *ReduceFnRunner) Persist() error { return nil }

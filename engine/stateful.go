package engine

import (
	"sort"
	"time"

	"golang.org/x/exp/maps"

	"github.com/flpablo/winflow/typex"
	"github.com/flpablo/winflow/window"
)

const (
	timerNameGC        = "gc"
	timerNameSortFlush = "sort-flush"
	timerFamilyUser    = "user"
	timerFamilyRunner  = "runner"
)

var sortBufferCell = Bag[Element]{ID: "sort-buffer", Fingerprint: "engine.Element"}

// UserFn is a compile-time record of the callbacks a stateful user
// function exposes, built once and handed to the runner as data, so the
// runner never reflects on it at runtime.
type UserFn struct {
	// RequiresTimeSortedInput, when true, makes the runner buffer each
	// window's elements and deliver them to ProcessElement only once the
	// window's sort-flush timer fires, in ascending (timestamp,
	// insertion-sequence) order.
	RequiresTimeSortedInput bool

	// ProcessElement is invoked once per admitted element (immediately, or
	// in sorted-replay order if RequiresTimeSortedInput).
	ProcessElement func(w typex.Window, e Element, store *Store, timers *TimerStore, out StatefulReceiver) error

	// OnTimer is invoked for every user-scheduled timer that is not the
	// runner's own GC or sort-flush marker.
	OnTimer func(w typex.Window, t Timer, store *Store, timers *TimerStore, out StatefulReceiver) error

	// OnWindowExpiration, if non-nil, is invoked once per window touched,
	// after all timers have drained. It is given no expiration timestamp.
	OnWindowExpiration func(w typex.Window, store *Store, out StatefulReceiver) error
}

// StatefulRunner drives a user element function per (key,
// window), exposing state/timer access, handling late-data drop, on-timer
// dispatch, window-expiration callback, and optional event-time sorting.
type StatefulRunner struct {
	fn       window.Fn
	strategy window.Strategy
	user     UserFn
	store    *Store
	timers   *TimerStore
	metrics  *Metrics
	opts     Options
	out      StatefulReceiver

	touched map[string]typex.Window
}

// NewStatefulRunner builds a runner for one key. If opts.OrderingRequested
// is set, the runner buffers and sorts every window's elements regardless
// of what user.RequiresTimeSortedInput says, since this runner always has
// the buffering machinery to honor it.
func NewStatefulRunner(strategy window.Strategy, user UserFn, store *Store, timers *TimerStore, metrics *Metrics, opts Options, out StatefulReceiver) *StatefulRunner {
	if opts.OrderingRequested {
		user.RequiresTimeSortedInput = true
	}
	return &StatefulRunner{
		fn:       strategy.Fn,
		strategy: strategy,
		user:     user,
		store:    store,
		timers:   timers,
		metrics:  metrics,
		opts:     opts,
		out:      out,
		touched:  map[string]typex.Window{},
	}
}

// StartBundle begins a bundle; this runner keeps no bundle-scoped state of
// its own, so it is currently a no-op, present for symmetry with the
// public surface and as a hook for future batching.
func (r *StatefulRunner) StartBundle() {}

// effectiveStrategy returns the runner's windowing strategy with
// AllowedLateness replaced by opts.AllowedLatenessOverride when one was
// supplied, so every lateness-derived computation below reads from one
// place.
func (r *StatefulRunner) effectiveStrategy() window.Strategy {
	s := r.strategy
	if r.opts.AllowedLatenessOverride != nil {
		s.AllowedLateness = *r.opts.AllowedLatenessOverride
	}
	return s
}

func (r *StatefulRunner) gcTime(w typex.Window) typex.EventTime {
	return r.effectiveStrategy().GCTime(w, r.gcDelay())
}

func (r *StatefulRunner) gcDelay() time.Duration {
	if r.opts.GCDelay > 0 {
		return r.opts.GCDelay
	}
	return GCDelay
}

// ProcessElement admits a single element,
// which may belong to more than one window.
func (r *StatefulRunner) ProcessElement(e Element) error {
	windows := e.Windows
	if len(windows) == 0 {
		windows = r.fn.Assign(e.Timestamp)
	}
	for _, w := range windows {
		if err := r.admitToWindow(w, e.WithWindow(w)); err != nil {
			return err
		}
	}
	return nil
}

func (r *StatefulRunner) admitToWindow(w typex.Window, e Element) error {
	if r.effectiveStrategy().IsLate(e.Timestamp, r.timers.InputWatermark()) {
		r.metrics.incDroppedDueToLateness()
		return nil
	}

	r.touched[windowKey(w)] = w
	r.ensureGCTimer(w)

	if r.user.RequiresTimeSortedInput {
		ns := WindowNamespace(w)
		if err := sortBufferCell.Add(r.store, ns, e); err != nil {
			return err
		}
		r.scheduleSortFlush(w)
		return nil
	}

	r.metrics.incProcessedElements()
	if r.user.ProcessElement == nil {
		return nil
	}
	if err := r.user.ProcessElement(w, e, r.store, r.timers, r.out); err != nil {
		return newFault(UserCodeFailure, "engine.StatefulRunner", "ProcessElement", err)
	}
	return nil
}

func (r *StatefulRunner) ensureGCTimer(w typex.Window) {
	r.timers.Set(Timer{
		ID: TimerID{
			Namespace: WindowNamespace(w),
			Name:      timerNameGC,
			Family:    timerFamilyRunner,
			Domain:    EventTime,
		},
		Timestamp:       r.gcTime(w),
		OutputTimestamp: r.gcTime(w),
		lowPriority:     true,
	})
}

func (r *StatefulRunner) scheduleSortFlush(w typex.Window) {
	fire := r.effectiveStrategy().GCTime(w, 0)
	r.timers.Set(Timer{
		ID: TimerID{
			Namespace: WindowNamespace(w),
			Name:      timerNameSortFlush,
			Family:    timerFamilyRunner,
			Domain:    EventTime,
		},
		Timestamp:       fire,
		OutputTimestamp: fire,
	})
}

// DispatchTimer routes a fired timer: the garbage-collection marker clears
// state and emits nothing; sort-flush marker drains the ordered buffer;
// anything else is the user's own @onTimer.
func (r *StatefulRunner) DispatchTimer(t Timer) error {
	w, ok := t.ID.Namespace.Window()
	if !ok {
		return nil
	}
	r.metrics.incTimersFired()

	switch {
	case t.ID.Name == timerNameGC && t.ID.Family == timerFamilyRunner:
		r.store.Clear(WindowNamespace(w))
		r.metrics.incWindowsGarbageCollected()
		return nil

	case t.ID.Name == timerNameSortFlush && t.ID.Family == timerFamilyRunner:
		return r.flushSorted(w)

	default:
		if r.user.OnTimer == nil {
			return nil
		}
		if err := r.user.OnTimer(w, t, r.store, r.timers, r.out); err != nil {
			return newFault(UserCodeFailure, "engine.StatefulRunner", "OnTimer", err)
		}
		return nil
	}
}

func (r *StatefulRunner) flushSorted(w typex.Window) error {
	ns := WindowNamespace(w)
	elems, err := sortBufferCell.Read(r.store, ns)
	if err != nil {
		return err
	}
	sort.SliceStable(elems, func(i, j int) bool { return elems[i].Timestamp < elems[j].Timestamp })
	if err := sortBufferCell.Clear(r.store, ns); err != nil {
		return err
	}
	// No per-element lateness recheck here: admitToWindow already applied
	// Strategy.IsLate before buffering, and by the time the sort-flush timer
	// fires the watermark has only reached this window's own GCTime — every
	// buffered element's own timestamp is already behind that by design, so
	// re-applying the same per-element check here would drop the buffer's
	// entire contents instead of just the elements that were actually late
	// on arrival.
	for _, e := range elems {
		r.metrics.incProcessedElements()
		if r.user.ProcessElement == nil {
			continue
		}
		if err := r.user.ProcessElement(w, e, r.store, r.timers, r.out); err != nil {
			return newFault(UserCodeFailure, "engine.StatefulRunner", "ProcessElement", err)
		}
	}
	return nil
}

// OnWindowExpiration invokes the user's window-expiration handler, if any,
// for every window this runner touched. The driver calls this once all
// timers have drained and before FinishBundle.
func (r *StatefulRunner) OnWindowExpiration() error {
	if r.user.OnWindowExpiration == nil {
		return nil
	}
	// Iterate touched windows in a deterministic order rather than Go's
	// randomized map order, so a host driving the same input twice sees the
	// same callback sequence.
	keys := maps.Keys(r.touched)
	sort.Strings(keys)
	for _, k := range keys {
		w := r.touched[k]
		if err := r.user.OnWindowExpiration(w, r.store, r.out); err != nil {
			return newFault(UserCodeFailure, "engine.StatefulRunner", "OnWindowExpiration", err)
		}
	}
	return nil
}

// FinishBundle ends the bundle; present for symmetry with the public
// surface.
func (r *StatefulRunner) FinishBundle() {}

// Persist is idempotent for the same reason as ReduceFnRunner.Persist: the
// Store already is the durable state.
func (r *StatefulRunner) Persist() error { return nil }

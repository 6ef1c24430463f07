package window

import (
	"time"

	"github.com/flpablo/winflow/trigger"
	"github.com/flpablo/winflow/typex"
)

// AccumulationMode controls whether a window's state is cleared after each
// firing or retained and accumulated into.
type AccumulationMode int

const (
	// Discarding clears a window's accumulated state immediately after each
	// pane fires: the next pane reflects only newly arrived elements.
	Discarding AccumulationMode = iota
	// Accumulating retains a window's state across firings: each pane
	// reflects all elements seen so far in the window.
	Accumulating
)

func (m AccumulationMode) String() string {
	if m == Accumulating {
		return "ACCUMULATING"
	}
	return "DISCARDING"
}

// ClosingBehavior controls whether a window fires once more when it is
// finally garbage collected, even if its trigger has already finished.
type ClosingBehavior int

const (
	// FireIfNonEmpty emits a final pane at window expiration only if the
	// window's buffer still holds elements (under Discarding, those that
	// arrived since the last firing).
	FireIfNonEmpty ClosingBehavior = iota
	// FireAlways always emits a final pane at window expiration.
	FireAlways
)

// OnTimeBehavior controls whether the on-time pane fires even when the
// window holds no new data at the point the watermark passes its end.
// engine.ReduceFnRunner does not read this setting: it fires at the end of
// the window whenever the trigger is ready, whichever value is set.
type OnTimeBehavior int

const (
	// FireIfNonEmptyOnTime suppresses the on-time pane when there is no new
	// data to report.
	FireIfNonEmptyOnTime OnTimeBehavior = iota
	// FireAlwaysOnTime always fires the on-time pane.
	FireAlwaysOnTime
)

// TimestampCombiner chooses the output timestamp for a pane from the
// timestamps of the elements (and, for merged windows, the prior holds)
// that contributed to it. The engine does not read this setting, and
// engine.Pane carries no output timestamp.
type TimestampCombiner int

const (
	// EndOfWindow outputs the window's own end/maxTimestamp, regardless of
	// element timestamps.
	EndOfWindow TimestampCombiner = iota
	// EarliestElement outputs the minimum contributing element timestamp.
	EarliestElement
	// LatestElement outputs the maximum contributing element timestamp.
	LatestElement
)

// Strategy bundles everything needed to window, trigger, and finalize a
// PCollection-like stream of elements: the WindowFn that assigns and merges
// windows, the trigger controlling pane emission, and the policies that
// govern lateness, accumulation, and output timestamps.
type Strategy struct {
	Fn Fn

	Trigger         trigger.Trigger
	AllowedLateness time.Duration

	Accumulation      AccumulationMode
	Closing           ClosingBehavior
	OnTimeFiring      OnTimeBehavior
	TimestampCombiner TimestampCombiner
}

// DefaultStrategy returns the strategy used when a caller does not
// explicitly configure one: global window, the given trigger, discarding,
// no allowed lateness.
func DefaultStrategy(trig trigger.Trigger) Strategy {
	return Strategy{
		Fn:                *NewGlobalWindows(),
		Trigger:           trig,
		AllowedLateness:   0,
		Accumulation:      Discarding,
		Closing:           FireIfNonEmpty,
		OnTimeFiring:      FireAlwaysOnTime,
		TimestampCombiner: EndOfWindow,
	}
}

// IsLate reports whether an element with the given timestamp has already
// fallen behind the input watermark by more than the allowed lateness. This
// is deliberately a per-element check, not a per-window one: a window's own
// garbage-collection horizon (see GCTime) answers "can this window's state
// still be touched at all", while IsLate answers "should this specific
// element be admitted right now" — the two diverge whenever an element's
// timestamp sits well before its window's end, which is the common case for
// any window wider than an instant.
func (s Strategy) IsLate(elementTimestamp, inputWatermark typex.EventTime) bool {
	return elementTimestamp.Add(s.AllowedLateness) < inputWatermark
}

// GCTime returns the instant at which a window's state may be discarded:
// its max timestamp, plus allowed lateness, plus a fixed GC delay (see
// engine.GCDelay) to give any timer firing exactly at expiration room to
// run before cleanup.
func (s Strategy) GCTime(w typex.Window, gcDelay time.Duration) typex.EventTime {
	return w.MaxTimestamp().Add(s.AllowedLateness).Add(gcDelay)
}

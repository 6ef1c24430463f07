package engine

import (
	"fmt"
	"sync/atomic"
)

// counter is a named, atomically-updated sum metric cell, scaled down to
// the narrow set of counters the runner itself needs: no SDK-facing
// namespace registry, just a handful of named cells owned by one runner.
type counter struct {
	name  string
	value int64
}

func newCounter(name string) *counter { return &counter{name: name} }

func (c *counter) inc(v int64) { atomic.AddInt64(&c.value, v) }

func (c *counter) get() int64 { return atomic.LoadInt64(&c.value) }

func (c *counter) String() string { return fmt.Sprintf("%s: %d", c.name, c.value) }

// Metrics holds the counters a StatefulRunner/ReduceFnRunner maintains
// while processing a key. DisableMetrics in Options makes inc() a no-op
// without changing any call site.
type Metrics struct {
	disabled bool

	droppedDueToLateness *counter
	processedElements    *counter
	panesEmitted         *counter
	timersFired          *counter
	windowsGarbageCollected *counter
}

// NewMetrics builds a Metrics bound to the given Options.
func NewMetrics(opts Options) *Metrics {
	return &Metrics{
		disabled:                opts.DisableMetrics,
		droppedDueToLateness:    newCounter("droppedDueToLateness"),
		processedElements:       newCounter("processedElements"),
		panesEmitted:            newCounter("panesEmitted"),
		timersFired:             newCounter("timersFired"),
		windowsGarbageCollected: newCounter("windowsGarbageCollected"),
	}
}

func (m *Metrics) incDroppedDueToLateness() {
	if m.disabled {
		return
	}
	m.droppedDueToLateness.inc(1)
}

func (m *Metrics) incProcessedElements() {
	if m.disabled {
		return
	}
	m.processedElements.inc(1)
}

func (m *Metrics) incPanesEmitted() {
	if m.disabled {
		return
	}
	m.panesEmitted.inc(1)
}

func (m *Metrics) incTimersFired() {
	if m.disabled {
		return
	}
	m.timersFired.inc(1)
}

func (m *Metrics) incWindowsGarbageCollected() {
	if m.disabled {
		return
	}
	m.windowsGarbageCollected.inc(1)
}

// DroppedDueToLateness returns the running count of elements dropped as
// late: by StatefulRunner when the element's timestamp plus allowed lateness
// is behind the input watermark, and by ReduceFnRunner when the element's
// window has already been closed and garbage collected.
func (m *Metrics) DroppedDueToLateness() int64 { return m.droppedDueToLateness.get() }

// ProcessedElements returns the running count of elements delivered to
// user reduce/state logic.
func (m *Metrics) ProcessedElements() int64 { return m.processedElements.get() }

// PanesEmitted returns the running count of panes emitted by the trigger
// machine across all windows.
func (m *Metrics) PanesEmitted() int64 { return m.panesEmitted.get() }

// TimersFired returns the running count of timers that fired (event,
// processing, or synchronized-processing time).
func (m *Metrics) TimersFired() int64 { return m.timersFired.get() }

// WindowsGarbageCollected returns the running count of windows whose state
// was discarded at their GC horizon.
func (m *Metrics) WindowsGarbageCollected() int64 { return m.windowsGarbageCollected.get() }

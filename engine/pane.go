package engine

import "github.com/flpablo/winflow/typex"

// Pane is one firing of a window, pushed to the output receiver. Values
// holds the raw buffered elements for that firing, value-only (Timestamp
// and Windows stripped), in the order ReduceFnRunner buffered them.
type Pane struct {
	Window typex.Window
	Info   typex.PaneInfo
	Values []any
}

// Receiver is the push sink panes are delivered through: synchronous, ordered by
// emission sequence, invoked from within ProcessElements/DispatchTimer.
type Receiver func(Pane)

// DefaultOutputTag names the output of a stateful function that emits to
// only one destination. A function with more than one output picks its
// own distinct tags to route each emitted value.
const DefaultOutputTag = ""

// StatefulReceiver is the push sink a stateful user function emits
// through: one windowed value per call, tagged to route it to one of
// possibly several outputs. This is the per-element analog of Receiver —
// Receiver carries a GABW firing's whole buffered Pane, which has no
// single timestamp of its own and no notion of a destination tag, so it
// cannot stand in for a stateful function's element-at-a-time, optionally
// multiplexed output.
type StatefulReceiver func(tag string, out Element)

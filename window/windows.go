package window

import (
	"fmt"

	"github.com/flpablo/winflow/mtime"
	"github.com/flpablo/winflow/typex"
)

// SingleGlobalWindow is a convenience slice holding just the global window.
var SingleGlobalWindow = []typex.Window{GlobalWindow{}}

// GlobalWindow is the singleton window used when no windowing is applied.
type GlobalWindow struct{}

// MaxTimestamp returns the maximum timestamp of the global window.
func (GlobalWindow) MaxTimestamp() typex.EventTime {
	return mtime.EndOfGlobalWindowTime
}

// Equals reports whether o is also the global window.
func (GlobalWindow) Equals(o typex.Window) bool {
	_, ok := o.(GlobalWindow)
	return ok
}

func (GlobalWindow) String() string { return "[*]" }

// IntervalWindow is a half-open event-time interval [Start, End).
type IntervalWindow struct {
	Start, End typex.EventTime
}

// MaxTimestamp returns the last millisecond included in the window.
func (w IntervalWindow) MaxTimestamp() typex.EventTime {
	return typex.EventTime(w.End.Milliseconds() - 1)
}

// Equals reports whether o is an IntervalWindow with the same bounds.
func (w IntervalWindow) Equals(o typex.Window) bool {
	ow, ok := o.(IntervalWindow)
	return ok && w.Start == ow.Start && w.End == ow.End
}

func (w IntervalWindow) String() string {
	return fmt.Sprintf("[%v:%v)", w.Start, w.End)
}

// IsEqualList reports whether two ordered lists of windows are equal
// element-wise. Ordering matters; this is not set equality.
func IsEqualList(from, to []typex.Window) bool {
	if len(from) != len(to) {
		return false
	}
	for i, w := range from {
		if !w.Equals(to[i]) {
			return false
		}
	}
	return true
}

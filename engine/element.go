package engine

import "github.com/flpablo/winflow/typex"

// Element is one timestamped value flowing through the runner, assigned to
// the windows its timestamp falls into. Carries no reflect handles: this
// package never reflects on user data at runtime (see DESIGN.md's note on
// signature descriptors).
type Element struct {
	Value     any
	Timestamp typex.EventTime
	Windows   []typex.Window
	Pane      typex.PaneInfo
}

// WithWindow returns a copy of e scoped to a single window, used once an
// element's windows have been assigned or merged and each window needs its
// own buffered copy.
func (e Element) WithWindow(w typex.Window) Element {
	e.Windows = []typex.Window{w}
	return e
}

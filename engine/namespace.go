package engine

import (
	"fmt"

	"github.com/flpablo/winflow/typex"
)

// Namespace qualifies the state cells and timers belonging to one window,
// or to the key as a whole (Global). Two Namespace values for the same
// window must compare equal so they can key a map; we use the window's
// String() representation as the stable identity.
type Namespace struct {
	global bool
	key    string
	window typex.Window
}

// GlobalNamespace is the single namespace outside any window, used for
// per-key state that outlives every window (e.g. a user bag keyed only by
// the processing key).
var GlobalNamespace = Namespace{global: true, key: "global"}

// windowKey derives a stable map-key string for a window. typex.Window
// itself has no String method (Equals is the only identity contract it
// promises), so this falls back to formatting the window's fields, which is
// stable as long as a window's concrete type has no unexported pointer or
// slice fields that vary across equal instances; IntervalWindow and
// GlobalWindow both satisfy that.
func windowKey(w typex.Window) string {
	return fmt.Sprintf("%v", w)
}

// WindowNamespace returns the namespace for state/timers scoped to w.
func WindowNamespace(w typex.Window) Namespace {
	return Namespace{key: "window:" + windowKey(w), window: w}
}

// String returns the namespace's stable identity, suitable as a map key
// component.
func (n Namespace) String() string { return n.key }

// Window returns the window this namespace is scoped to, and false if this
// is the global namespace.
func (n Namespace) Window() (typex.Window, bool) {
	if n.global {
		return nil, false
	}
	return n.window, true
}

package engine

import (
	"github.com/flpablo/winflow/mtime"
	drigger "github.com/flpablo/winflow/trigger"
	"github.com/flpablo/winflow/typex"
)

// TriggerMachine is a finite state machine, instantiated once from a
// declarative trigger tree, that answers "should this window fire now?"
// for every window a key touches. It never reads user state; each window
// gets its own triggerState, namespaced by the window's identity, so the
// same machine tree can drive arbitrarily many concurrently-open windows.
type TriggerMachine struct {
	root machine
	decl drigger.Trigger

	perWindow map[string]*triggerState
}

// NewTriggerMachine derives a TriggerMachine from a declarative trigger
// tree. Returns a TriggerContract Fault if the tree references an
// unrecognized or malformed node.
func NewTriggerMachine(decl drigger.Trigger) (*TriggerMachine, error) {
	root, err := Translate(decl)
	if err != nil {
		return nil, err
	}
	return &TriggerMachine{root: root, decl: decl, perWindow: map[string]*triggerState{}}, nil
}

func (tm *TriggerMachine) stateFor(w typex.Window) *triggerState {
	key := windowKey(w)
	ts, ok := tm.perWindow[key]
	if !ok {
		ts = newTriggerState()
		tm.perWindow[key] = ts
	}
	return ts
}

// OnElement updates w's trigger state for newElementCount new elements
// arriving, records whether the window's end has been passed, and the
// current processing time.
func (tm *TriggerMachine) OnElement(w typex.Window, newElementCount int, endOfWindowReached bool, procNow mtime.Time) {
	tm.root.onElement(machineInput{
		newElementCount:    newElementCount,
		endOfWindowReached: endOfWindowReached,
		procNow:            procNow,
	}, tm.stateFor(w))
}

// OnTimer re-evaluates w's trigger state against updated processing time,
// without counting new elements. ReduceFnRunner calls it when the
// window's end-of-window event-time timer fires.
func (tm *TriggerMachine) OnTimer(w typex.Window, endOfWindowReached bool, procNow mtime.Time) {
	tm.OnElement(w, 0, endOfWindowReached, procNow)
}

// OnMerge reconciles w's trigger state across a set of source windows
// being merged into toWindow: every source window's cells are discarded
// (their mergeable content has already moved into the destination's state
// cells by the caller) and the destination starts from a clean machine
// state, since none of the executable triggers in this package carry
// cross-window merge semantics of their own.
func (tm *TriggerMachine) OnMerge(from []typex.Window, to typex.Window) {
	for _, w := range from {
		delete(tm.perWindow, windowKey(w))
	}
	delete(tm.perWindow, windowKey(to))
}

// ShouldFire reports whether w's trigger is currently ready to fire.
func (tm *TriggerMachine) ShouldFire(w typex.Window) bool {
	return tm.root.shouldFire(tm.stateFor(w))
}

// OnFire commits that w's trigger has fired: post-fire state transitions
// (reset for repeated firings, finish for one-shot triggers) happen here.
func (tm *TriggerMachine) OnFire(w typex.Window) {
	tm.root.onFire(tm.stateFor(w))
}

// IsClosed reports whether w's trigger has permanently finished firing.
func (tm *TriggerMachine) IsClosed(w typex.Window) bool {
	ts := tm.stateFor(w)
	return ts.get(tm.root).finished
}

// Forget discards w's trigger state entirely, once w has been garbage
// collected.
func (tm *TriggerMachine) Forget(w typex.Window) {
	delete(tm.perWindow, windowKey(w))
}

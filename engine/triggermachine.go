package engine

import (
	"fmt"
	"time"

	"github.com/flpablo/winflow/mtime"
	drigger "github.com/flpablo/winflow/trigger"
)

// machineInput carries what an executable trigger needs to decide whether
// it is ready to fire: how many new elements arrived since the last check,
// whether the watermark has passed the window's end, and the current
// processing time.
type machineInput struct {
	newElementCount    int
	endOfWindowReached bool
	procNow            mtime.Time
}

// triggerCellState is the per-(window, trigger-node) bookkeeping an
// executable trigger keeps: whether it has finished firing for good, and
// an arbitrary extra payload (an element count, a firing-time record, an
// end-of-window flag) private to that node's implementation.
type triggerCellState struct {
	finished bool
	extra    any
}

// triggerState holds every node's triggerCellState for one window,
// indexed by pointer identity of the executable node, kept separate from
// the user-facing Store so the trigger machine never touches user state
// cells directly.
type triggerState struct {
	cells map[machine]triggerCellState
}

func newTriggerState() *triggerState {
	return &triggerState{cells: map[machine]triggerCellState{}}
}

func (ts *triggerState) get(m machine) triggerCellState { return ts.cells[m] }
func (ts *triggerState) set(m machine, cs triggerCellState) {
	ts.cells[m] = cs
}
func (ts *triggerState) delete(m machine) { delete(ts.cells, m) }

// machine is the executable counterpart of a declarative trigger.Trigger
// node. Exactly one machine tree is built per WindowingStrategy (not per
// window): all per-window mutable state lives in triggerState, addressed
// by the node's own identity, so the same tree can drive every window a
// key touches.
type machine interface {
	fmt.Stringer
	reset(ts *triggerState)
	onElement(in machineInput, ts *triggerState)
	shouldFire(ts *triggerState) bool
	onFire(ts *triggerState)
}

func machineClearAndFinish(m machine, ts *triggerState) {
	m.reset(ts)
	cs := ts.get(m)
	cs.finished = true
	ts.set(m, cs)
}

// nullMachine supplies no-op defaults for leaf/composite machines that
// don't need them.
type nullMachine struct{}

func (nullMachine) onElement(machineInput, *triggerState) {}
func (nullMachine) onFire(*triggerState)                  {}
func (nullMachine) reset(*triggerState)                   {}

// machineNever never fires.
type machineNever struct{ nullMachine }

func (*machineNever) shouldFire(*triggerState) bool { return false }
func (*machineNever) String() string                { return "Never" }

// machineAlways fires on every element: it is ready once at least one
// element has arrived since its last firing.
type machineAlways struct{ nullMachine }

func (m *machineAlways) onElement(in machineInput, ts *triggerState) {
	if in.newElementCount > 0 {
		ts.set(m, triggerCellState{extra: true})
	}
}
func (m *machineAlways) shouldFire(ts *triggerState) bool {
	pending, _ := ts.get(m).extra.(bool)
	return pending
}
func (m *machineAlways) onFire(ts *triggerState) { ts.delete(m) }
func (m *machineAlways) reset(ts *triggerState)  { ts.delete(m) }
func (*machineAlways) String() string            { return "Always" }

func subMachinesOnElement(m machine, in machineInput, ts *triggerState, subs []machine) {
	if ts.get(m).finished {
		return
	}
	for _, sub := range subs {
		sub.onElement(in, ts)
	}
}

func subMachinesReset(m machine, ts *triggerState, subs []machine) {
	for _, sub := range subs {
		sub.reset(ts)
	}
	ts.delete(m)
}

// machineAfterAll fires once every sub-machine has fired at least once.
type machineAfterAll struct{ subs []machine }

func (m *machineAfterAll) onElement(in machineInput, ts *triggerState) {
	subMachinesOnElement(m, in, ts, m.subs)
}
func (m *machineAfterAll) shouldFire(ts *triggerState) bool {
	if ts.get(m).finished {
		return false
	}
	ready := true
	for _, sub := range m.subs {
		ready = ready && sub.shouldFire(ts)
	}
	return ready
}
func (m *machineAfterAll) onFire(ts *triggerState) {
	unfinished := false
	for _, sub := range m.subs {
		if sub.shouldFire(ts) {
			sub.onFire(ts)
		}
		if !ts.get(sub).finished {
			unfinished = true
		}
	}
	if !unfinished {
		machineClearAndFinish(m, ts)
	}
}
func (m *machineAfterAll) reset(ts *triggerState) { subMachinesReset(m, ts, m.subs) }
func (m *machineAfterAll) String() string         { return fmt.Sprintf("AfterAll%v", m.subs) }

// machineAfterAny fires the first time any sub-machine fires.
type machineAfterAny struct{ subs []machine }

func (m *machineAfterAny) onElement(in machineInput, ts *triggerState) {
	subMachinesOnElement(m, in, ts, m.subs)
}
func (m *machineAfterAny) shouldFire(ts *triggerState) bool {
	if ts.get(m).finished {
		return false
	}
	for _, sub := range m.subs {
		if sub.shouldFire(ts) {
			return true
		}
	}
	return false
}
func (m *machineAfterAny) onFire(ts *triggerState) {
	if m.shouldFire(ts) {
		machineClearAndFinish(m, ts)
	}
}
func (m *machineAfterAny) reset(ts *triggerState) { subMachinesReset(m, ts, m.subs) }
func (m *machineAfterAny) String() string         { return fmt.Sprintf("AfterAny%v", m.subs) }

// machineAfterEach advances through its sub-machines strictly in order.
type machineAfterEach struct{ subs []machine }

func (m *machineAfterEach) onElement(in machineInput, ts *triggerState) {
	if ts.get(m).finished {
		return
	}
	for _, sub := range m.subs {
		if ts.get(sub).finished {
			continue
		}
		sub.onElement(in, ts)
		return
	}
}
func (m *machineAfterEach) shouldFire(ts *triggerState) bool {
	if ts.get(m).finished {
		return false
	}
	for _, sub := range m.subs {
		if ts.get(sub).finished {
			continue
		}
		return sub.shouldFire(ts)
	}
	return false
}
func (m *machineAfterEach) onFire(ts *triggerState) {
	if !m.shouldFire(ts) {
		return
	}
	for _, sub := range m.subs {
		if ts.get(sub).finished {
			continue
		}
		sub.onFire(ts)
		if !ts.get(sub).finished {
			return
		}
	}
	machineClearAndFinish(m, ts)
}
func (m *machineAfterEach) reset(ts *triggerState) { subMachinesReset(m, ts, m.subs) }
func (m *machineAfterEach) String() string         { return fmt.Sprintf("AfterEach%v", m.subs) }

// machineElementCount fires once at least count elements have arrived
// since its last reset.
type machineElementCount struct{ count int32 }

func (m *machineElementCount) onElement(in machineInput, ts *triggerState) {
	cs := ts.get(m)
	if cs.finished {
		return
	}
	n, _ := cs.extra.(int)
	cs.extra = n + in.newElementCount
	ts.set(m, cs)
}
func (m *machineElementCount) shouldFire(ts *triggerState) bool {
	cs := ts.get(m)
	if cs.finished || cs.extra == nil {
		return false
	}
	return cs.extra.(int) >= int(m.count)
}
func (m *machineElementCount) onFire(ts *triggerState) {
	if !m.shouldFire(ts) {
		return
	}
	cs := ts.get(m)
	cs.finished = true
	cs.extra = nil
	ts.set(m, cs)
}
func (m *machineElementCount) reset(ts *triggerState) { ts.delete(m) }
func (m *machineElementCount) String() string         { return fmt.Sprintf("ElementCount[%d]", m.count) }

// machineOrFinally fires whenever Main fires, until Finally fires, at
// which point it finishes for good.
type machineOrFinally struct{ main, finally machine }

func (m *machineOrFinally) onElement(in machineInput, ts *triggerState) {
	if ts.get(m).finished {
		return
	}
	m.main.onElement(in, ts)
	m.finally.onElement(in, ts)
}
func (m *machineOrFinally) shouldFire(ts *triggerState) bool {
	if ts.get(m).finished {
		return false
	}
	return m.main.shouldFire(ts) || m.finally.shouldFire(ts)
}
func (m *machineOrFinally) onFire(ts *triggerState) {
	if !m.shouldFire(ts) {
		return
	}
	if m.finally.shouldFire(ts) {
		m.finally.onFire(ts)
		cs := ts.get(m)
		cs.finished = true
		ts.set(m, cs)
		return
	}
	m.main.onFire(ts)
	if ts.get(m.main).finished {
		m.main.reset(ts)
	}
}
func (m *machineOrFinally) reset(ts *triggerState) {
	m.main.reset(ts)
	m.finally.reset(ts)
	ts.delete(m)
}
func (m *machineOrFinally) String() string {
	return fmt.Sprintf("OrFinally[main=%v finally=%v]", m.main, m.finally)
}

// machineRepeatedly fires whenever its wrapped machine fires, resetting it
// immediately afterward so it can fire again.
type machineRepeatedly struct{ repeated machine }

func (m *machineRepeatedly) onElement(in machineInput, ts *triggerState) { m.repeated.onElement(in, ts) }
func (m *machineRepeatedly) shouldFire(ts *triggerState) bool           { return m.repeated.shouldFire(ts) }
func (m *machineRepeatedly) onFire(ts *triggerState) {
	if !m.shouldFire(ts) {
		return
	}
	m.repeated.onFire(ts)
	if ts.get(m.repeated).finished {
		m.repeated.reset(ts)
	}
}
func (m *machineRepeatedly) reset(ts *triggerState) {
	m.repeated.reset(ts)
	ts.delete(m)
}
func (m *machineRepeatedly) String() string { return fmt.Sprintf("Repeat[%v]", m.repeated) }

// machineAfterEndOfWindow runs an early machine (implicitly repeated)
// before the watermark passes the window's end, then a late machine
// (implicitly repeated) afterward. A nil late machine means late data
// never fires again once the window has closed.
type machineAfterEndOfWindow struct{ early, late machine }

func (m *machineAfterEndOfWindow) onElement(in machineInput, ts *triggerState) {
	cs := ts.get(m)
	if cs.finished {
		return
	}
	wasEOW, _ := cs.extra.(bool)
	if !wasEOW && in.endOfWindowReached {
		if m.early != nil {
			machineClearAndFinish(m.early, ts)
		}
		if m.late == nil {
			machineClearAndFinish(m, ts)
			return
		}
	}
	cs.extra = in.endOfWindowReached
	ts.set(m, cs)

	if m.early != nil && !ts.get(m.early).finished {
		m.early.onElement(in, ts)
		return
	}
	if m.late != nil && in.endOfWindowReached {
		m.late.onElement(in, ts)
	}
}
func (m *machineAfterEndOfWindow) shouldFire(ts *triggerState) bool {
	cs := ts.get(m)
	if cs.finished {
		return false
	}
	eow, _ := cs.extra.(bool)
	if m.early != nil && !ts.get(m.early).finished {
		return m.early.shouldFire(ts) || eow
	}
	if m.late != nil && eow {
		return m.late.shouldFire(ts)
	}
	return false
}
func (m *machineAfterEndOfWindow) onFire(ts *triggerState) {
	cs := ts.get(m)
	if cs.finished {
		return
	}
	if m.early != nil && !ts.get(m.early).finished {
		if m.early.shouldFire(ts) {
			m.early.onFire(ts)
			if ts.get(m.early).finished {
				m.early.reset(ts)
			}
		}
		return
	}
	if m.late == nil {
		return
	}
	eow, _ := cs.extra.(bool)
	if eow {
		m.late.onFire(ts)
		if ts.get(m.late).finished {
			m.late.reset(ts)
		}
	}
}
func (m *machineAfterEndOfWindow) reset(ts *triggerState) {
	if m.early != nil {
		m.early.reset(ts)
	}
	if m.late != nil {
		m.late.reset(ts)
	}
	ts.delete(m)
}
func (m *machineAfterEndOfWindow) String() string {
	return fmt.Sprintf("AfterEndOfWindow[early=%v late=%v]", m.early, m.late)
}

// machineDefault fires once at the end of window and then finishes for
// good: matching trigger.DefaultTrigger's contract that late data is
// discarded, since no late firing is ever configured for it.
type machineDefault struct{}

func (m *machineDefault) onElement(in machineInput, ts *triggerState) {
	cs := ts.get(m)
	if cs.finished {
		return
	}
	if in.endOfWindowReached {
		cs.extra = true
	}
	ts.set(m, cs)
}
func (m *machineDefault) shouldFire(ts *triggerState) bool {
	cs := ts.get(m)
	if cs.finished {
		return false
	}
	eow, _ := cs.extra.(bool)
	return eow
}
func (m *machineDefault) onFire(ts *triggerState) {
	cs := ts.get(m)
	cs.finished = true
	ts.set(m, cs)
}
func (m *machineDefault) reset(ts *triggerState) { ts.delete(m) }
func (m *machineDefault) String() string         { return "Default" }

// timestampTransform is the executable counterpart of
// trigger.TimestampTransform.
type timestampTransform struct {
	delay         time.Duration
	alignToPeriod time.Duration
	alignToOffset time.Duration
}

// machineAfterProcessingTime fires once processing time passes a firing
// instant computed, on first element, from the element's arrival time
// transformed by a fixed chain of delay/alignment steps.
type machineAfterProcessingTime struct {
	transforms []timestampTransform
}

type afterProcessingTimeExtra struct {
	procNow            mtime.Time
	firingTime         mtime.Time
	endOfWindowReached bool
}

func (m *machineAfterProcessingTime) applyTransforms(start mtime.Time) mtime.Time {
	ret := start
	for _, tr := range m.transforms {
		ret = ret.Add(tr.delay)
		if tr.alignToPeriod > 0 {
			period := mtime.FromDuration(tr.alignToPeriod)
			offset := mtime.FromDuration(tr.alignToOffset)
			adjusted := ret - offset
			aligned := adjusted - (adjusted % period) + period + offset
			ret = aligned
		}
	}
	return ret
}

func (m *machineAfterProcessingTime) onElement(in machineInput, ts *triggerState) {
	cs := ts.get(m)
	if cs.finished {
		return
	}
	if cs.extra == nil {
		cs.extra = afterProcessingTimeExtra{
			procNow:            in.procNow,
			firingTime:         m.applyTransforms(in.procNow),
			endOfWindowReached: in.endOfWindowReached,
		}
	} else {
		e := cs.extra.(afterProcessingTimeExtra)
		e.procNow = in.procNow
		e.endOfWindowReached = in.endOfWindowReached
		cs.extra = e
	}
	ts.set(m, cs)
}
func (m *machineAfterProcessingTime) shouldFire(ts *triggerState) bool {
	cs := ts.get(m)
	if cs.finished || cs.extra == nil {
		return false
	}
	e := cs.extra.(afterProcessingTimeExtra)
	return e.procNow >= e.firingTime
}
func (m *machineAfterProcessingTime) onFire(ts *triggerState) {
	cs := ts.get(m)
	if cs.finished {
		return
	}
	cs.finished = true
	ts.set(m, cs)
}
func (m *machineAfterProcessingTime) reset(ts *triggerState) {
	cs := ts.get(m)
	if cs.extra != nil && cs.extra.(afterProcessingTimeExtra).endOfWindowReached {
		ts.delete(m)
		return
	}
	cs.finished = false
	e := cs.extra.(afterProcessingTimeExtra)
	e.firingTime = m.applyTransforms(e.firingTime)
	cs.extra = e
	ts.set(m, cs)
}
func (m *machineAfterProcessingTime) String() string {
	return fmt.Sprintf("AfterProcessingTime%v", m.transforms)
}

// Translate converts a declarative trigger tree into its executable
// machine form. It is run once per WindowingStrategy; the resulting tree
// is then driven, per window, through a shared triggerState.
func Translate(t drigger.Trigger) (machine, error) {
	switch v := t.(type) {
	case *drigger.DefaultTrigger:
		return &machineDefault{}, nil
	case *drigger.AlwaysTrigger:
		return &machineAlways{}, nil
	case *drigger.NeverTrigger:
		return &machineNever{}, nil
	case *drigger.AfterCountTrigger:
		return &machineElementCount{count: v.Count}, nil
	case *drigger.RepeatTrigger:
		sub, err := Translate(v.Sub)
		if err != nil {
			return nil, err
		}
		return &machineRepeatedly{repeated: sub}, nil
	case *drigger.AfterEndOfWindowTrigger:
		var early, late machine
		var err error
		if v.EarlyFire != nil {
			early, err = Translate(v.EarlyFire)
			if err != nil {
				return nil, err
			}
		}
		if v.LateFire != nil {
			late, err = Translate(v.LateFire)
			if err != nil {
				return nil, err
			}
		}
		return &machineAfterEndOfWindow{early: early, late: late}, nil
	case *drigger.AfterAnyTrigger:
		subs, err := translateAll(v.Subs)
		if err != nil {
			return nil, err
		}
		return &machineAfterAny{subs: subs}, nil
	case *drigger.AfterAllTrigger:
		subs, err := translateAll(v.Subs)
		if err != nil {
			return nil, err
		}
		return &machineAfterAll{subs: subs}, nil
	case *drigger.AfterEachTrigger:
		subs, err := translateAll(v.Subs)
		if err != nil {
			return nil, err
		}
		return &machineAfterEach{subs: subs}, nil
	case *drigger.OrFinallyTrigger:
		main, err := Translate(v.Main)
		if err != nil {
			return nil, err
		}
		finally, err := Translate(v.Finally)
		if err != nil {
			return nil, err
		}
		return &machineOrFinally{main: main, finally: finally}, nil
	case *drigger.AfterProcessingTimeTrigger:
		transforms, err := translateTransforms(v.Transforms)
		if err != nil {
			return nil, err
		}
		return &machineAfterProcessingTime{transforms: transforms}, nil
	case *drigger.AfterSynchronizedProcessingTimeTrigger:
		// Synchronized-processing-time readiness is driven the same way as
		// processing time within this single-key batch core: both
		// watermarks advance monotonically to now() then to +inf, so a
		// trigger that fires "once sync-processing time catches up" is
		// equivalent here to one that fires once procNow has reached the
		// instant it started watching; with no transforms that instant is
		// the procNow of the first element, so it is ready at that same
		// evaluation.
		return &machineAfterProcessingTime{}, nil
	default:
		return nil, newFault(TriggerContract, "engine.Translate",
			fmt.Sprintf("unrecognized trigger node %T", t), nil)
	}
}

func translateAll(ts []drigger.Trigger) ([]machine, error) {
	out := make([]machine, 0, len(ts))
	for _, t := range ts {
		if t == nil {
			return nil, newFault(TriggerContract, "engine.Translate", "nil sub-trigger", nil)
		}
		m, err := Translate(t)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func translateTransforms(ts []drigger.TimestampTransform) ([]timestampTransform, error) {
	out := make([]timestampTransform, 0, len(ts))
	for _, t := range ts {
		switch v := t.(type) {
		case drigger.DelayTransform:
			out = append(out, timestampTransform{delay: v.Delay})
		case drigger.AlignToTransform:
			out = append(out, timestampTransform{alignToPeriod: v.Period, alignToOffset: v.Offset})
		default:
			return nil, newFault(TriggerContract, "engine.Translate",
				fmt.Sprintf("unrecognized timestamp transform %T", t), nil)
		}
	}
	return out, nil
}

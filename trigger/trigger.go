// Package trigger provides the declarative trigger tree used to configure a
// window.Strategy. A declarative trigger describes the intended firing
// policy; engine.Translate converts it into the executable state machine
// that actually tracks element counts, timers, and finality.
package trigger

import (
	"fmt"
	"time"
)

// Trigger describes when a window should emit a pane.
type Trigger interface {
	fmt.Stringer
	trigger()
}

// Default fires once after the watermark passes the end of the window.
// Late data is discarded (no late firings configured).
type DefaultTrigger struct{}

func (DefaultTrigger) trigger()          {}
func (DefaultTrigger) String() string    { return "Default()" }
func Default() *DefaultTrigger           { return &DefaultTrigger{} }

// Always fires immediately on every element. Equivalent to
// Repeat(AfterCount(1)).
type AlwaysTrigger struct{}

func (AlwaysTrigger) trigger()       {}
func (*AlwaysTrigger) String() string { return "Always()" }
func Always() *AlwaysTrigger          { return &AlwaysTrigger{} }

// AfterCountTrigger fires once at least Count elements have been seen in
// the current pane.
type AfterCountTrigger struct {
	Count int32
}

func (AfterCountTrigger) trigger() {}
func (t *AfterCountTrigger) String() string {
	return fmt.Sprintf("AfterCount(%d)", t.Count)
}

// AfterCount constructs a trigger that fires after count elements have
// been buffered since the last firing.
func AfterCount(count int32) *AfterCountTrigger {
	if count < 1 {
		panic(fmt.Errorf("trigger.AfterCount(%v) must be a positive integer", count))
	}
	return &AfterCountTrigger{Count: count}
}

// TimestampTransform describes how the timestamp of the first element of a
// pane is transformed into the instant an AfterProcessingTime trigger
// fires. A series of transforms is applied in order.
type TimestampTransform interface {
	timestampTransform()
}

// DelayTransform adds a fixed delay.
type DelayTransform struct {
	Delay time.Duration
}

func (DelayTransform) timestampTransform() {}

// AlignToTransform rounds up to the next multiple of Period past Offset.
type AlignToTransform struct {
	Period, Offset time.Duration
}

func (AlignToTransform) timestampTransform() {}

// AfterProcessingTimeTrigger fires a fixed span of processing time after
// the first element of the pane arrives.
type AfterProcessingTimeTrigger struct {
	Transforms []TimestampTransform
}

func (AfterProcessingTimeTrigger) trigger() {}
func (t *AfterProcessingTimeTrigger) String() string {
	return fmt.Sprintf("AfterProcessingTime(%v)", t.Transforms)
}

// AfterProcessingTime constructs a trigger that fires relative to when the
// first element of a pane arrived. Must be followed by PlusDelay and/or
// AlignedTo to be meaningful.
func AfterProcessingTime() *AfterProcessingTimeTrigger {
	return &AfterProcessingTimeTrigger{}
}

// PlusDelay appends a fixed delay, no smaller than a millisecond.
func (t *AfterProcessingTimeTrigger) PlusDelay(delay time.Duration) *AfterProcessingTimeTrigger {
	if delay < time.Millisecond {
		panic(fmt.Errorf("can't apply processing delay of less than a millisecond. Got: %v", delay))
	}
	t.Transforms = append(t.Transforms, DelayTransform{Delay: delay})
	return t
}

// AlignedTo appends an alignment to the smallest multiple of period past
// offset that is greater than the current timestamp.
func (t *AfterProcessingTimeTrigger) AlignedTo(period time.Duration, offset time.Duration) *AfterProcessingTimeTrigger {
	if period < time.Millisecond {
		panic(fmt.Errorf("can't apply an alignment period of less than a millisecond. Got: %v", period))
	}
	t.Transforms = append(t.Transforms, AlignToTransform{Period: period, Offset: offset})
	return t
}

// RepeatTrigger fires its sub-trigger, resets it, and waits for it to be
// ready again, indefinitely.
type RepeatTrigger struct {
	Sub Trigger
}

func (RepeatTrigger) trigger() {}
func (t *RepeatTrigger) String() string {
	return fmt.Sprintf("Repeat(%v)", t.Sub)
}

// Repeat wraps t so that it fires repeatedly instead of once.
//
// Repeat(AfterCount(1)) is equivalent to Always().
func Repeat(t Trigger) *RepeatTrigger {
	if t == nil {
		panic("trigger argument to trigger.Repeat() cannot be nil")
	}
	return &RepeatTrigger{Sub: t}
}

// AfterEndOfWindowTrigger fires an early sub-trigger repeatedly before the
// watermark passes the end of the window, then switches to a late
// sub-trigger (also fired repeatedly) afterward.
type AfterEndOfWindowTrigger struct {
	EarlyFire Trigger
	LateFire  Trigger
}

func (AfterEndOfWindowTrigger) trigger() {}
func (t *AfterEndOfWindowTrigger) String() string {
	return fmt.Sprintf("AfterEndOfWindow(early=%v, late=%v)", t.EarlyFire, t.LateFire)
}

// AfterEndOfWindow constructs a trigger whose early firing defaults to
// Default() (effectively a no-op before the end of window) and whose late
// firing defaults to nil (late data dropped). Configure with EarlyFiring
// and/or LateFiring.
func AfterEndOfWindow() *AfterEndOfWindowTrigger {
	return &AfterEndOfWindowTrigger{EarlyFire: Default()}
}

// EarlyFiring sets the (implicitly repeated) trigger applied before the end
// of the window.
func (t *AfterEndOfWindowTrigger) EarlyFiring(early Trigger) *AfterEndOfWindowTrigger {
	t.EarlyFire = early
	return t
}

// LateFiring sets the (implicitly repeated) trigger applied after the end
// of the window. Leaving this unset means late data never fires.
func (t *AfterEndOfWindowTrigger) LateFiring(late Trigger) *AfterEndOfWindowTrigger {
	t.LateFire = late
	return t
}

// AfterAnyTrigger fires as soon as any sub-trigger fires.
type AfterAnyTrigger struct {
	Subs []Trigger
}

func (AfterAnyTrigger) trigger() {}
func (t *AfterAnyTrigger) String() string {
	return fmt.Sprintf("AfterAny(%v)", t.Subs)
}

// AfterAny requires at least two sub-triggers.
func AfterAny(triggers []Trigger) *AfterAnyTrigger {
	if len(triggers) <= 1 {
		panic("trigger.AfterAny() requires more than one sub-trigger")
	}
	return &AfterAnyTrigger{Subs: triggers}
}

// AfterAllTrigger fires once every sub-trigger has fired at least once.
type AfterAllTrigger struct {
	Subs []Trigger
}

func (AfterAllTrigger) trigger() {}
func (t *AfterAllTrigger) String() string {
	return fmt.Sprintf("AfterAll(%v)", t.Subs)
}

// AfterAll requires at least two sub-triggers.
func AfterAll(triggers []Trigger) *AfterAllTrigger {
	if len(triggers) <= 1 {
		panic("trigger.AfterAll() requires more than one sub-trigger")
	}
	return &AfterAllTrigger{Subs: triggers}
}

// OrFinallyTrigger fires whenever Main fires, but stops firing permanently
// (finishes the window's trigger) once Finally fires.
type OrFinallyTrigger struct {
	Main, Finally Trigger
}

func (OrFinallyTrigger) trigger() {}
func (t *OrFinallyTrigger) String() string {
	return fmt.Sprintf("OrFinally(main=%v, finally=%v)", t.Main, t.Finally)
}

// OrFinally requires both Main and Finally to be non-nil.
func OrFinally(main, finally Trigger) *OrFinallyTrigger {
	if main == nil || finally == nil {
		panic("main and finally trigger arguments to trigger.OrFinally() cannot be nil")
	}
	return &OrFinallyTrigger{Main: main, Finally: finally}
}

// NeverTrigger never fires on its own; a window governed only by Never
// still gets an on-time pane (if OnTimeBehavior requires it) and a final
// pane at garbage collection.
type NeverTrigger struct{}

func (NeverTrigger) trigger()         {}
func (*NeverTrigger) String() string  { return "Never()" }
func Never() *NeverTrigger            { return &NeverTrigger{} }

// AfterSynchronizedProcessingTimeTrigger fires once synchronized
// processing time (the minimum processing time across all elements still
// to be processed) catches up to the time this trigger started watching.
type AfterSynchronizedProcessingTimeTrigger struct{}

func (AfterSynchronizedProcessingTimeTrigger) trigger() {}
func (*AfterSynchronizedProcessingTimeTrigger) String() string {
	return "AfterSynchronizedProcessingTime()"
}
func AfterSynchronizedProcessingTime() *AfterSynchronizedProcessingTimeTrigger {
	return &AfterSynchronizedProcessingTimeTrigger{}
}

// AfterEachTrigger fires each sub-trigger once, strictly in order: the
// second sub-trigger isn't even watched until the first has fired.
type AfterEachTrigger struct {
	Subs []Trigger
}

func (AfterEachTrigger) trigger() {}
func (t *AfterEachTrigger) String() string {
	return fmt.Sprintf("AfterEach(%v)", t.Subs)
}
func AfterEach(subs []Trigger) *AfterEachTrigger {
	return &AfterEachTrigger{Subs: subs}
}

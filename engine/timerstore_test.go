package engine

import (
	"errors"
	"testing"

	"github.com/flpablo/winflow/mtime"
)

func TestTimerStoreSetAndRemoveNextEventTimer(t *testing.T) {
	ts := NewTimerStore()
	id := TimerID{Namespace: GlobalNamespace, Name: "t1", Family: "user", Domain: EventTime}
	ts.Set(Timer{ID: id, Timestamp: 100, OutputTimestamp: 100})

	if _, ok := ts.RemoveNextEventTimer(); ok {
		t.Fatalf("RemoveNextEventTimer() before watermark advances returned ok=true")
	}

	if err := ts.AdvanceInputWatermark(100); err != nil {
		t.Fatalf("AdvanceInputWatermark() error = %v", err)
	}
	got, ok := ts.RemoveNextEventTimer()
	if !ok {
		t.Fatalf("RemoveNextEventTimer() ok = false, want true")
	}
	if got.ID != id || got.Timestamp != 100 {
		t.Errorf("RemoveNextEventTimer() = %+v, want ID=%v Timestamp=100", got, id)
	}
	if _, ok := ts.RemoveNextEventTimer(); ok {
		t.Errorf("RemoveNextEventTimer() after drain ok = true, want false")
	}
}

func TestTimerStoreSetReplacesExistingID(t *testing.T) {
	ts := NewTimerStore()
	id := TimerID{Namespace: GlobalNamespace, Name: "t1", Family: "user", Domain: EventTime}
	ts.Set(Timer{ID: id, Timestamp: 100, OutputTimestamp: 100})
	ts.Set(Timer{ID: id, Timestamp: 200, OutputTimestamp: 200})

	if err := ts.AdvanceInputWatermark(200); err != nil {
		t.Fatalf("AdvanceInputWatermark() error = %v", err)
	}
	got, ok := ts.RemoveNextEventTimer()
	if !ok {
		t.Fatalf("RemoveNextEventTimer() ok = false, want true")
	}
	if got.Timestamp != 200 {
		t.Errorf("RemoveNextEventTimer().Timestamp = %v, want 200 (replacement should win)", got.Timestamp)
	}
	if _, ok := ts.RemoveNextEventTimer(); ok {
		t.Errorf("expected only one timer pending after replacement, found a second")
	}
}

func TestTimerStoreDeleteIsNoopWhenAbsent(t *testing.T) {
	ts := NewTimerStore()
	ts.Delete(TimerID{Namespace: GlobalNamespace, Name: "missing", Family: "user", Domain: EventTime})
	if ts.HasPending() {
		t.Errorf("HasPending() = true after deleting a never-set timer")
	}
}

func TestTimerStoreDeleteRemovesPending(t *testing.T) {
	ts := NewTimerStore()
	id := TimerID{Namespace: GlobalNamespace, Name: "t1", Family: "user", Domain: EventTime}
	ts.Set(Timer{ID: id, Timestamp: 100, OutputTimestamp: 100})
	ts.Delete(id)

	if err := ts.AdvanceInputWatermark(1000); err != nil {
		t.Fatalf("AdvanceInputWatermark() error = %v", err)
	}
	if _, ok := ts.RemoveNextEventTimer(); ok {
		t.Errorf("RemoveNextEventTimer() ok = true after Delete(), want false")
	}
}

func TestTimerStoreLowPriorityTieBreak(t *testing.T) {
	ts := NewTimerStore()
	gc := TimerID{Namespace: GlobalNamespace, Name: "gc", Family: "runner", Domain: EventTime}
	user := TimerID{Namespace: GlobalNamespace, Name: "user-timer", Family: "user", Domain: EventTime}

	// GC timer set first, user timer set second, both at the same instant:
	// the user timer must still dequeue first.
	ts.Set(Timer{ID: gc, Timestamp: 500, OutputTimestamp: 500, lowPriority: true})
	ts.Set(Timer{ID: user, Timestamp: 500, OutputTimestamp: 500})

	if err := ts.AdvanceInputWatermark(500); err != nil {
		t.Fatalf("AdvanceInputWatermark() error = %v", err)
	}
	first, ok := ts.RemoveNextEventTimer()
	if !ok {
		t.Fatalf("RemoveNextEventTimer() ok = false, want true")
	}
	if first.ID != user {
		t.Errorf("first timer dequeued = %v, want the non-lowPriority user timer %v", first.ID, user)
	}
	second, ok := ts.RemoveNextEventTimer()
	if !ok {
		t.Fatalf("RemoveNextEventTimer() (second) ok = false, want true")
	}
	if second.ID != gc {
		t.Errorf("second timer dequeued = %v, want the lowPriority gc timer %v", second.ID, gc)
	}
}

func TestTimerStoreDomainsAreIndependent(t *testing.T) {
	ts := NewTimerStore()
	evt := TimerID{Namespace: GlobalNamespace, Name: "e", Family: "user", Domain: EventTime}
	proc := TimerID{Namespace: GlobalNamespace, Name: "p", Family: "user", Domain: ProcessingTime}
	sync := TimerID{Namespace: GlobalNamespace, Name: "s", Family: "user", Domain: SyncProcessingTime}
	ts.Set(Timer{ID: evt, Timestamp: 10, OutputTimestamp: 10})
	ts.Set(Timer{ID: proc, Timestamp: 10, OutputTimestamp: 10})
	ts.Set(Timer{ID: sync, Timestamp: 10, OutputTimestamp: 10})

	if _, ok := ts.RemoveNextProcessingTimer(); ok {
		t.Fatalf("RemoveNextProcessingTimer() fired before its own watermark advanced")
	}
	if err := ts.AdvanceProcessingTime(10); err != nil {
		t.Fatalf("AdvanceProcessingTime() error = %v", err)
	}
	if _, ok := ts.RemoveNextProcessingTimer(); !ok {
		t.Errorf("RemoveNextProcessingTimer() ok = false after advancing its watermark, want true")
	}
	if _, ok := ts.RemoveNextEventTimer(); ok {
		t.Errorf("RemoveNextEventTimer() ok = true, want false: event watermark never advanced")
	}
	if _, ok := ts.RemoveNextSyncProcessingTimer(); ok {
		t.Errorf("RemoveNextSyncProcessingTimer() ok = true, want false: sync watermark never advanced")
	}
}

func TestTimerStoreAdvanceRejectsBackwardMovement(t *testing.T) {
	ts := NewTimerStore()
	if err := ts.AdvanceInputWatermark(100); err != nil {
		t.Fatalf("AdvanceInputWatermark(100) error = %v", err)
	}
	err := ts.AdvanceInputWatermark(50)
	if !errors.Is(err, InvalidWatermark) {
		t.Errorf("AdvanceInputWatermark(50) after 100 error = %v, want InvalidWatermark", err)
	}
	if ts.InputWatermark() != 100 {
		t.Errorf("InputWatermark() = %v after a rejected regression, want unchanged 100", ts.InputWatermark())
	}
}

func TestTimerStoreAdvanceAllowsEqualMovement(t *testing.T) {
	ts := NewTimerStore()
	if err := ts.AdvanceInputWatermark(100); err != nil {
		t.Fatalf("AdvanceInputWatermark(100) error = %v", err)
	}
	if err := ts.AdvanceInputWatermark(100); err != nil {
		t.Errorf("AdvanceInputWatermark(100) again (no-op) error = %v, want nil", err)
	}
}

func TestTimerStoreOutputWatermarkHold(t *testing.T) {
	ts := NewTimerStore()
	if got := ts.OutputWatermarkHold(); got != mtime.MaxTimestamp {
		t.Errorf("OutputWatermarkHold() on empty store = %v, want +infinity", got)
	}

	id1 := TimerID{Namespace: GlobalNamespace, Name: "a", Family: "user", Domain: EventTime}
	id2 := TimerID{Namespace: GlobalNamespace, Name: "b", Family: "user", Domain: ProcessingTime}
	ts.Set(Timer{ID: id1, Timestamp: 500, OutputTimestamp: 300})
	ts.Set(Timer{ID: id2, Timestamp: 600, OutputTimestamp: 700})

	if got := ts.OutputWatermarkHold(); got != 300 {
		t.Errorf("OutputWatermarkHold() = %v, want the minimum OutputTimestamp 300", got)
	}

	ts.Delete(id1)
	if got := ts.OutputWatermarkHold(); got != 700 {
		t.Errorf("OutputWatermarkHold() after removing the lowest hold = %v, want 700", got)
	}
}

func TestTimerStoreOutputWatermarkNeverExceedsInputWatermark(t *testing.T) {
	ts := NewTimerStore()
	id := TimerID{Namespace: GlobalNamespace, Name: "hold", Family: "user", Domain: EventTime}
	ts.Set(Timer{ID: id, Timestamp: 1000, OutputTimestamp: 1000})

	if err := ts.AdvanceInputWatermark(5000); err != nil {
		t.Fatalf("AdvanceInputWatermark() error = %v", err)
	}
	if got := ts.OutputWatermark(); got != 1000 {
		t.Errorf("OutputWatermark() = %v, want the pending hold 1000, not the input watermark 5000", got)
	}

	if err := ts.AdvanceInputWatermark(5000); err != nil {
		t.Fatalf("AdvanceInputWatermark() (idempotent) error = %v", err)
	}
	if _, ok := ts.RemoveNextEventTimer(); !ok {
		t.Fatalf("RemoveNextEventTimer() ok = false, want true")
	}
	if got := ts.OutputWatermark(); got != 5000 {
		t.Errorf("OutputWatermark() after releasing the hold = %v, want the input watermark 5000", got)
	}
}

func TestTimerStoreHasPending(t *testing.T) {
	ts := NewTimerStore()
	if ts.HasPending() {
		t.Errorf("HasPending() on empty store = true, want false")
	}
	id := TimerID{Namespace: GlobalNamespace, Name: "x", Family: "user", Domain: SyncProcessingTime}
	ts.Set(Timer{ID: id, Timestamp: 1, OutputTimestamp: 1})
	if !ts.HasPending() {
		t.Errorf("HasPending() = false with one timer set, want true")
	}
	ts.Delete(id)
	if ts.HasPending() {
		t.Errorf("HasPending() = true after deleting the only pending timer, want false")
	}
}

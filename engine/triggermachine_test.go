package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/flpablo/winflow/mtime"
	drigger "github.com/flpablo/winflow/trigger"
	"github.com/flpablo/winflow/typex"
	"github.com/flpablo/winflow/window"
)

func TestTranslateUnrecognizedTriggerIsTriggerContract(t *testing.T) {
	_, err := Translate(nil)
	if !errors.Is(err, TriggerContract) {
		t.Errorf("Translate(nil) error = %v, want TriggerContract", err)
	}
}

func TestTranslateAfterAnyRejectsNilSub(t *testing.T) {
	bad := &drigger.AfterAnyTrigger{Subs: []drigger.Trigger{drigger.Always(), nil}}
	_, err := Translate(bad)
	if !errors.Is(err, TriggerContract) {
		t.Errorf("Translate() with a nil sub-trigger error = %v, want TriggerContract", err)
	}
}

func window1() window.IntervalWindow { return window.IntervalWindow{Start: 0, End: 1000} }
func window2() window.IntervalWindow { return window.IntervalWindow{Start: 1000, End: 2000} }
func window3() window.IntervalWindow { return window.IntervalWindow{Start: 0, End: 2000} }

func mtimeFromSeconds(s int64) mtime.Time {
	return mtime.FromDuration(time.Duration(s) * time.Second)
}

func newMachine(t *testing.T, decl drigger.Trigger) *TriggerMachine {
	t.Helper()
	tm, err := NewTriggerMachine(decl)
	if err != nil {
		t.Fatalf("NewTriggerMachine() error = %v", err)
	}
	return tm
}

func TestMachineAlwaysFiresEveryElement(t *testing.T) {
	tm := newMachine(t, drigger.Always())
	w := window1()
	if tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() before any element = true, want false")
	}
	tm.OnElement(w, 1, false, 0)
	if !tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() after one element = false, want true")
	}
	tm.OnFire(w)
	if tm.IsClosed(w) {
		t.Errorf("IsClosed() after Always fires = true, want false: Always never finishes")
	}
}

func TestMachineNeverNeverFires(t *testing.T) {
	tm := newMachine(t, drigger.Never())
	w := window1()
	tm.OnElement(w, 100, true, 0)
	if tm.ShouldFire(w) {
		t.Errorf("ShouldFire() for Never() = true, want false")
	}
}

func TestMachineAfterCountFiresOnceThresholdReached(t *testing.T) {
	tm := newMachine(t, drigger.AfterCount(3))
	w := window1()
	tm.OnElement(w, 2, false, 0)
	if tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() after 2/3 elements = true, want false")
	}
	tm.OnElement(w, 1, false, 0)
	if !tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() after 3/3 elements = false, want true")
	}
	tm.OnFire(w)
	if !tm.IsClosed(w) {
		t.Errorf("IsClosed() after AfterCount fires = false, want true: AfterCount is one-shot")
	}
}

func TestMachineRepeatedlyResetsAfterFiring(t *testing.T) {
	tm := newMachine(t, drigger.Repeat(drigger.AfterCount(2)))
	w := window1()
	tm.OnElement(w, 2, false, 0)
	if !tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() after first 2 elements = false, want true")
	}
	tm.OnFire(w)
	if tm.IsClosed(w) {
		t.Fatalf("IsClosed() after Repeat fires = true, want false: Repeat never finishes")
	}
	if tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() immediately after firing = true, want false: count should reset")
	}
	tm.OnElement(w, 2, false, 0)
	if !tm.ShouldFire(w) {
		t.Errorf("ShouldFire() after a second batch of 2 = false, want true")
	}
}

func TestMachineAfterAllRequiresEverySubToFire(t *testing.T) {
	tm := newMachine(t, drigger.AfterAll([]drigger.Trigger{drigger.AfterCount(1), drigger.AfterCount(2)}))
	w := window1()
	tm.OnElement(w, 1, false, 0)
	if tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() with only the first sub ready = true, want false")
	}
	tm.OnElement(w, 1, false, 0)
	if !tm.ShouldFire(w) {
		t.Errorf("ShouldFire() once both subs are ready = false, want true")
	}
}

func TestMachineAfterAnyFiresAsSoonAsOneSubFires(t *testing.T) {
	tm := newMachine(t, drigger.AfterAny([]drigger.Trigger{drigger.AfterCount(1), drigger.AfterCount(100)}))
	w := window1()
	tm.OnElement(w, 1, false, 0)
	if !tm.ShouldFire(w) {
		t.Errorf("ShouldFire() once the faster sub is ready = false, want true")
	}
}

func TestMachineAfterEachAdvancesInOrder(t *testing.T) {
	tm := newMachine(t, drigger.AfterEach([]drigger.Trigger{drigger.AfterCount(1), drigger.AfterCount(1)}))
	w := window1()
	tm.OnElement(w, 1, false, 0)
	if !tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() after the first sub is ready = false, want true")
	}
	tm.OnFire(w)
	if tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() right after the first firing = true, want false: second sub hasn't seen an element yet")
	}
	tm.OnElement(w, 1, false, 0)
	if !tm.ShouldFire(w) {
		t.Errorf("ShouldFire() after the second sub sees its element = false, want true")
	}
	tm.OnFire(w)
	if !tm.IsClosed(w) {
		t.Errorf("IsClosed() after both subs fire = false, want true")
	}
}

func TestMachineOrFinallyStopsOnFinally(t *testing.T) {
	tm := newMachine(t, drigger.OrFinally(drigger.Repeat(drigger.AfterCount(1)), drigger.AfterCount(5)))
	w := window1()
	tm.OnElement(w, 1, false, 0)
	if !tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() after one element = false, want true (main is ready)")
	}
	tm.OnFire(w)
	if tm.IsClosed(w) {
		t.Fatalf("IsClosed() after a main-only firing = true, want false")
	}

	tm.OnElement(w, 4, false, 0)
	if !tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() once finally's count is reached = false, want true")
	}
	tm.OnFire(w)
	if !tm.IsClosed(w) {
		t.Errorf("IsClosed() after finally fires = false, want true")
	}
}

func TestMachineAfterEndOfWindowSwitchesAtWatermark(t *testing.T) {
	decl := drigger.AfterEndOfWindow().
		EarlyFiring(drigger.Repeat(drigger.AfterCount(1))).
		LateFiring(drigger.Repeat(drigger.AfterCount(1)))
	tm := newMachine(t, decl)
	w := window1()

	tm.OnElement(w, 1, false, 0)
	if !tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() before end of window with an early firing ready = false, want true")
	}
	tm.OnFire(w)

	tm.OnElement(w, 1, true, 0)
	if !tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() exactly at end of window (eow triggers its own on-time firing) = false, want true")
	}
	tm.OnFire(w)

	tm.OnElement(w, 1, true, 0)
	if !tm.ShouldFire(w) {
		t.Errorf("ShouldFire() for late data after end of window = false, want true: late firing is configured")
	}
}

func TestMachineAfterEndOfWindowClosesWithNoLateFiring(t *testing.T) {
	// With no late firing configured, reaching end of window finishes the
	// trigger outright instead of exposing one last ShouldFire: any final
	// pane for this case comes from the runner's window-closing behavior,
	// not from this trigger.
	tm := newMachine(t, drigger.AfterEndOfWindow())
	w := window1()
	tm.OnElement(w, 1, true, 0)
	if !tm.IsClosed(w) {
		t.Errorf("IsClosed() right after reaching end of window with no late firing = false, want true")
	}
	if tm.ShouldFire(w) {
		t.Errorf("ShouldFire() on an already-closed trigger = true, want false")
	}
}

func TestMachineDefaultFiresOnceThenFinishes(t *testing.T) {
	tm := newMachine(t, drigger.Default())
	w := window1()
	tm.OnElement(w, 1, false, 0)
	if tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() before end of window = true, want false")
	}
	tm.OnElement(w, 1, true, 0)
	if !tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() once end of window is reached = false, want true")
	}
	tm.OnFire(w)
	if !tm.IsClosed(w) {
		t.Errorf("IsClosed() after Default fires = false, want true: late data is discarded")
	}
	// A further late element must not reopen it.
	tm.OnElement(w, 1, true, 0)
	if tm.ShouldFire(w) {
		t.Errorf("ShouldFire() for late data after Default already fired = true, want false")
	}
}

func TestMachineAfterProcessingTimeFiresOncePastFiringInstant(t *testing.T) {
	decl := drigger.AfterProcessingTime().PlusDelay(10 * time.Second)
	tm := newMachine(t, decl)
	w := window1()
	tm.OnElement(w, 1, false, 0)
	if tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() immediately after the first element = true, want false")
	}
	tm.OnTimer(w, false, mtimeFromSeconds(9))
	if tm.ShouldFire(w) {
		t.Fatalf("ShouldFire() before the delay elapses = true, want false")
	}
	tm.OnTimer(w, false, mtimeFromSeconds(10))
	if !tm.ShouldFire(w) {
		t.Errorf("ShouldFire() once the delay elapses = false, want true")
	}
}

func TestMachineOnMergeForgetsSourceWindowsAndDestination(t *testing.T) {
	tm := newMachine(t, drigger.Repeat(drigger.AfterCount(1)))
	from1, from2, to := window1(), window2(), window3()
	tm.OnElement(from1, 1, false, 0)
	tm.OnElement(from2, 1, false, 0)
	if !tm.ShouldFire(from1) || !tm.ShouldFire(from2) {
		t.Fatalf("setup: both source windows should be ready to fire before the merge")
	}

	tm.OnMerge([]typex.Window{from1, from2}, to)
	if tm.ShouldFire(to) {
		t.Errorf("ShouldFire(to) right after OnMerge = true, want false: destination starts from a clean state")
	}
}

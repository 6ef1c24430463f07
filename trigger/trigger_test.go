package trigger

import (
	"testing"
	"time"
)

func TestAfterCountPanicsOnNonPositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for non-positive count")
		}
	}()
	AfterCount(0)
}

func TestAfterEndOfWindowDefaults(t *testing.T) {
	trig := AfterEndOfWindow()
	if _, ok := trig.EarlyFire.(*DefaultTrigger); !ok {
		t.Errorf("expected default early firing, got %v", trig.EarlyFire)
	}
	if trig.LateFire != nil {
		t.Errorf("expected nil late firing by default, got %v", trig.LateFire)
	}
}

func TestAfterEndOfWindowConfigured(t *testing.T) {
	trig := AfterEndOfWindow().
		EarlyFiring(Repeat(AfterCount(1))).
		LateFiring(Repeat(AfterCount(1)))
	if _, ok := trig.EarlyFire.(*RepeatTrigger); !ok {
		t.Errorf("expected repeat early firing, got %v", trig.EarlyFire)
	}
	if _, ok := trig.LateFire.(*RepeatTrigger); !ok {
		t.Errorf("expected repeat late firing, got %v", trig.LateFire)
	}
}

func TestAfterAnyRequiresMultiple(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for single sub-trigger")
		}
	}()
	AfterAny([]Trigger{AfterCount(1)})
}

func TestAfterAllRequiresMultiple(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for single sub-trigger")
		}
	}()
	AfterAll([]Trigger{AfterCount(1)})
}

func TestOrFinallyRequiresNonNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil sub-trigger")
		}
	}()
	OrFinally(nil, AfterCount(1))
}

func TestAfterProcessingTimeBuildsTransforms(t *testing.T) {
	trig := AfterProcessingTime().PlusDelay(5 * time.Second).AlignedTo(time.Minute, 0)
	if len(trig.Transforms) != 2 {
		t.Fatalf("got %d transforms, want 2", len(trig.Transforms))
	}
	if _, ok := trig.Transforms[0].(DelayTransform); !ok {
		t.Errorf("transform 0 = %T, want DelayTransform", trig.Transforms[0])
	}
	if _, ok := trig.Transforms[1].(AlignToTransform); !ok {
		t.Errorf("transform 1 = %T, want AlignToTransform", trig.Transforms[1])
	}
}

func TestStringers(t *testing.T) {
	triggers := []Trigger{
		Default(),
		Always(),
		AfterCount(3),
		Never(),
		AfterSynchronizedProcessingTime(),
		Repeat(AfterCount(1)),
		AfterAny([]Trigger{AfterCount(1), AfterCount(2)}),
		AfterAll([]Trigger{AfterCount(1), AfterCount(2)}),
		AfterEach([]Trigger{AfterCount(1), AfterCount(2)}),
		OrFinally(Repeat(AfterCount(1)), AfterCount(5)),
	}
	for _, trig := range triggers {
		if trig.String() == "" {
			t.Errorf("%T.String() returned empty string", trig)
		}
	}
}

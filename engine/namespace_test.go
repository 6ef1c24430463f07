package engine

import (
	"testing"

	"github.com/flpablo/winflow/window"
)

func TestGlobalNamespaceHasNoWindow(t *testing.T) {
	if _, ok := GlobalNamespace.Window(); ok {
		t.Errorf("GlobalNamespace.Window() ok = true, want false")
	}
}

func TestWindowNamespaceRoundTrips(t *testing.T) {
	w := window.IntervalWindow{Start: 0, End: 1000}
	ns := WindowNamespace(w)
	got, ok := ns.Window()
	if !ok {
		t.Fatalf("ns.Window() ok = false, want true")
	}
	if !got.Equals(w) {
		t.Errorf("ns.Window() = %v, want %v", got, w)
	}
}

func TestWindowNamespaceIdentityMatchesStringRepresentation(t *testing.T) {
	w1 := window.IntervalWindow{Start: 0, End: 1000}
	w2 := window.IntervalWindow{Start: 0, End: 1000}
	if WindowNamespace(w1) != WindowNamespace(w2) {
		t.Errorf("namespaces for equal windows should compare equal")
	}

	w3 := window.IntervalWindow{Start: 0, End: 2000}
	if WindowNamespace(w1) == WindowNamespace(w3) {
		t.Errorf("namespaces for distinct windows should not compare equal")
	}
}

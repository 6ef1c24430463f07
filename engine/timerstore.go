package engine

import (
	"container/heap"
	"fmt"

	"github.com/flpablo/winflow/mtime"
)

// Domain identifies which watermark a timer is ordered against.
type Domain int

const (
	EventTime Domain = iota
	ProcessingTime
	SyncProcessingTime
)

func (d Domain) String() string {
	switch d {
	case EventTime:
		return "event"
	case ProcessingTime:
		return "processing"
	case SyncProcessingTime:
		return "sync-processing"
	default:
		return "unknown"
	}
}

// TimerID identifies a timer for replacement and cancellation:
// (namespace, timerName, family, domain). The key itself is carried by the
// TimerStore, not the id, since a store is already scoped to one key's
// invocation.
type TimerID struct {
	Namespace Namespace
	Name      string
	Family    string
	Domain    Domain
}

// Timer is a pending timer entry.
type Timer struct {
	ID              TimerID
	Timestamp       mtime.Time // fire instant
	OutputTimestamp mtime.Time // watermark hold while pending
	seq             int64      // insertion sequence, for tie-breaking

	// lowPriority breaks ties at an identical Timestamp in favor of any
	// other pending timer: the garbage-collection timer sets this so that
	// a user timer scheduled for the exact instant cleanup also fires
	// always runs first.
	lowPriority bool
}

// timerHeap orders entries by (Timestamp, lowPriority, seq): replacement
// via Set keeps the old seq when the Timestamp is unchanged, so ties at
// that Timestamp still resolve by original arrival order; seq is
// monotonically increasing across the store's lifetime.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].Timestamp != h[j].Timestamp {
		return h[i].Timestamp < h[j].Timestamp
	}
	if h[i].lowPriority != h[j].lowPriority {
		return !h[i].lowPriority
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*Timer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// mtimeHeap is a min-heap of mtime.Time, used by holdTracker to find the
// earliest pending output-watermark hold.
type mtimeHeap []mtime.Time

func (h mtimeHeap) Len() int            { return len(h) }
func (h mtimeHeap) Less(i, j int) bool   { return h[i] < h[j] }
func (h mtimeHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *mtimeHeap) Push(x any)          { *h = append(*h, x.(mtime.Time)) }
func (h *mtimeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
func (h *mtimeHeap) Remove(toRemove mtime.Time) {
	for i, v := range *h {
		if v == toRemove {
			heap.Remove(h, i)
			return
		}
	}
}

// holdTracker counts watermark holds by instant so the output watermark
// can be computed as the minimum held instant, even when several timers
// hold the same instant.
type holdTracker struct {
	heap   mtimeHeap
	counts map[mtime.Time]int
}

func newHoldTracker() *holdTracker {
	return &holdTracker{counts: map[mtime.Time]int{}}
}

func (ht *holdTracker) Add(hold mtime.Time) {
	ht.counts[hold]++
	if len(ht.counts) != len(ht.heap) {
		heap.Push(&ht.heap, hold)
	}
}

func (ht *holdTracker) Drop(hold mtime.Time) {
	n := ht.counts[hold] - 1
	if n > 0 {
		ht.counts[hold] = n
		return
	}
	if n < 0 {
		panic(fmt.Sprintf("engine: negative watermark hold count %v for time %v", n, hold))
	}
	delete(ht.counts, hold)
	ht.heap.Remove(hold)
}

func (ht *holdTracker) Min() mtime.Time {
	if len(ht.heap) == 0 {
		return mtime.MaxTimestamp
	}
	return ht.heap[0]
}

// TimerStore holds the pending timers for one key across the three time
// domains. It is not safe for concurrent use; a key's invocation
// owns exactly one instance.
type TimerStore struct {
	domains  [3]timerHeap
	byID     map[TimerID]*Timer
	holds    *holdTracker
	watermark [3]mtime.Time
	nextSeq  int64
}

// NewTimerStore returns an empty TimerStore with all three watermarks at
// -infinity.
func NewTimerStore() *TimerStore {
	return &TimerStore{
		byID:      map[TimerID]*Timer{},
		holds:     newHoldTracker(),
		watermark: [3]mtime.Time{mtime.MinTimestamp, mtime.MinTimestamp, mtime.MinTimestamp},
	}
}

// Set inserts timer, replacing any existing pending timer with the same
// ID. If the new Timestamp equals the replaced entry's Timestamp,
// the replaced entry's relative tie-break position is preserved by giving
// the new entry the old entry's seq instead of a fresh one.
func (ts *TimerStore) Set(t Timer) {
	if existing, ok := ts.byID[t.ID]; ok {
		ts.removeEntry(existing)
		if existing.Timestamp == t.Timestamp {
			t.seq = existing.seq
		}
	}
	if t.seq == 0 {
		ts.nextSeq++
		t.seq = ts.nextSeq
	}
	entry := t
	ts.byID[t.ID] = &entry
	heap.Push(&ts.domains[t.ID.Domain], &entry)
	ts.holds.Add(t.OutputTimestamp)
}

// Delete removes any pending timer with id; it is not an error if none is
// pending.
func (ts *TimerStore) Delete(id TimerID) {
	existing, ok := ts.byID[id]
	if !ok {
		return
	}
	ts.removeEntry(existing)
}

func (ts *TimerStore) removeEntry(t *Timer) {
	delete(ts.byID, t.ID)
	ts.holds.Drop(t.OutputTimestamp)
	h := &ts.domains[t.ID.Domain]
	for i, e := range *h {
		if e == t {
			heap.Remove(h, i)
			return
		}
	}
}

// removeNextReady pops and returns the earliest timer in domain whose
// Timestamp is at or before the domain's current watermark.
func (ts *TimerStore) removeNextReady(d Domain) (Timer, bool) {
	h := &ts.domains[d]
	if h.Len() == 0 {
		return Timer{}, false
	}
	if (*h)[0].Timestamp > ts.watermark[d] {
		return Timer{}, false
	}
	t := heap.Pop(h).(*Timer)
	delete(ts.byID, t.ID)
	ts.holds.Drop(t.OutputTimestamp)
	return *t, true
}

// RemoveNextEventTimer pops the earliest ready event-time timer, if any.
func (ts *TimerStore) RemoveNextEventTimer() (Timer, bool) { return ts.removeNextReady(EventTime) }

// RemoveNextProcessingTimer pops the earliest ready processing-time timer, if any.
func (ts *TimerStore) RemoveNextProcessingTimer() (Timer, bool) {
	return ts.removeNextReady(ProcessingTime)
}

// RemoveNextSyncProcessingTimer pops the earliest ready synchronized-processing-time timer, if any.
func (ts *TimerStore) RemoveNextSyncProcessingTimer() (Timer, bool) {
	return ts.removeNextReady(SyncProcessingTime)
}

func (ts *TimerStore) advance(d Domain, t mtime.Time) error {
	if t < ts.watermark[d] {
		return newFault(InvalidWatermark, "engine.TimerStore",
			fmt.Sprintf("%v watermark cannot move backward from %v to %v", d, ts.watermark[d], t), nil)
	}
	ts.watermark[d] = t
	return nil
}

// AdvanceInputWatermark advances the event-time watermark; t must be >= the
// current value.
func (ts *TimerStore) AdvanceInputWatermark(t mtime.Time) error { return ts.advance(EventTime, t) }

// AdvanceProcessingTime advances the processing-time watermark.
func (ts *TimerStore) AdvanceProcessingTime(t mtime.Time) error { return ts.advance(ProcessingTime, t) }

// AdvanceSyncProcessingTime advances the synchronized-processing-time
// watermark.
func (ts *TimerStore) AdvanceSyncProcessingTime(t mtime.Time) error {
	return ts.advance(SyncProcessingTime, t)
}

// InputWatermark returns the current event-time watermark.
func (ts *TimerStore) InputWatermark() mtime.Time { return ts.watermark[EventTime] }

// ProcessingWatermark returns the current processing-time watermark.
func (ts *TimerStore) ProcessingWatermark() mtime.Time { return ts.watermark[ProcessingTime] }

// SyncProcessingWatermark returns the current synchronized-processing-time
// watermark.
func (ts *TimerStore) SyncProcessingWatermark() mtime.Time { return ts.watermark[SyncProcessingTime] }

// OutputWatermarkHold returns the minimum OutputTimestamp across all
// pending timers, or +infinity if none are pending.
func (ts *TimerStore) OutputWatermarkHold() mtime.Time { return ts.holds.Min() }

// OutputWatermark derives the output watermark as
// min(inputWatermark, outputWatermarkHold()); the output watermark never
// exceeds the input watermark, which follows directly from this
// definition.
func (ts *TimerStore) OutputWatermark() mtime.Time {
	return mtime.Min(ts.InputWatermark(), ts.OutputWatermarkHold())
}

// HasPending reports whether any timer remains in any domain.
func (ts *TimerStore) HasPending() bool {
	for _, h := range ts.domains {
		if h.Len() > 0 {
			return true
		}
	}
	return false
}

package engine

import "fmt"

// CellKind distinguishes the state-cell variants a Store can hold. A given
// (namespace, id) pair is created with one Kind and must be accessed with
// that same Kind for its lifetime; accessing it as another Kind is a
// StateTypeMismatch Fault.
type CellKind int

const (
	CellValue CellKind = iota
	CellBag
	CellSet
	CellCombining
	CellMap
)

func (k CellKind) String() string {
	switch k {
	case CellValue:
		return "Value"
	case CellBag:
		return "Bag"
	case CellSet:
		return "Set"
	case CellCombining:
		return "Combining"
	case CellMap:
		return "Map"
	default:
		return "unknown"
	}
}

// cellKey identifies one cell within a namespace: an id plus a coder
// fingerprint. The fingerprint is opaque to the store; callers that
// round-trip through different encodings of the same logical type must
// agree on a fingerprint themselves.
type cellKey struct {
	id          string
	fingerprint string
}

// cell is the type-erased backing storage for one state cell. Only the
// fields relevant to its Kind are populated.
type cell struct {
	kind        CellKind
	fingerprint string

	hasValue bool
	value    any

	bag []any

	set map[any]struct{}

	combInit  func() any
	combAdd   func(acc, in any) any
	combMerge func(toAcc, fromAcc any) any
	combAcc   any
	combSet   bool

	m map[any]any
}

func (c *cell) isEmpty() bool {
	switch c.kind {
	case CellValue:
		return !c.hasValue
	case CellBag:
		return len(c.bag) == 0
	case CellSet:
		return len(c.set) == 0
	case CellCombining:
		return !c.combSet
	case CellMap:
		return len(c.m) == 0
	default:
		return true
	}
}

// Store is the per-key map of named, typed state cells: cells are lazily
// created, scoped by Namespace, and support clear-by-namespace for garbage
// collection and merge-by-namespace for session-window combining. A Store
// belongs to exactly one key's invocation; nothing in this package
// synchronizes access to it, matching the single-threaded-per-key
// concurrency model.
type Store struct {
	cells map[Namespace]map[cellKey]*cell
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{cells: map[Namespace]map[cellKey]*cell{}}
}

func (s *Store) cellFor(ns Namespace, id, fingerprint string, kind CellKind) (*cell, error) {
	nsCells, ok := s.cells[ns]
	if !ok {
		nsCells = map[cellKey]*cell{}
		s.cells[ns] = nsCells
	}
	key := cellKey{id: id, fingerprint: fingerprint}
	c, ok := nsCells[key]
	if !ok {
		c = &cell{kind: kind, fingerprint: fingerprint}
		nsCells[key] = c
		return c, nil
	}
	if c.kind != kind {
		return nil, newFault(StateTypeMismatch, "engine.Store",
			fmt.Sprintf("cell %q accessed as %v, created as %v", id, kind, c.kind), nil)
	}
	return c, nil
}

// Clear drops every cell in ns. This is the operation the GC timer invokes
// on window expiration.
func (s *Store) Clear(ns Namespace) {
	delete(s.cells, ns)
}

// MergeCombiningCells folds every combining cell present in from into its
// counterpart in to, using the Init/Add behavior captured when some
// Combining handle first touched the cell, then clears the source cell.
// It leaves every other cell kind in from untouched; a caller migrating a
// full namespace (bags, sets, maps) still does that itself and still calls
// Clear(from) once everything relevant has been moved.
func (s *Store) MergeCombiningCells(from, to Namespace) error {
	fromCells, ok := s.cells[from]
	if !ok {
		return nil
	}
	for key, fromCell := range fromCells {
		if fromCell.kind != CellCombining || !fromCell.combSet {
			continue
		}
		toCell, err := s.cellFor(to, key.id, key.fingerprint, CellCombining)
		if err != nil {
			return err
		}
		switch {
		case !toCell.combSet:
			toCell.combAcc = fromCell.combAcc
			toCell.combSet = true
			toCell.combInit = fromCell.combInit
			toCell.combAdd = fromCell.combAdd
			toCell.combMerge = fromCell.combMerge
		case toCell.combMerge != nil:
			toCell.combAcc = toCell.combMerge(toCell.combAcc, fromCell.combAcc)
		}
		fromCell.combSet = false
		fromCell.combAcc = nil
	}
	return nil
}

// IsNamespaceEmpty reports whether every cell in ns is empty (or ns has no
// cells at all).
func (s *Store) IsNamespaceEmpty(ns Namespace) bool {
	nsCells, ok := s.cells[ns]
	if !ok {
		return true
	}
	for _, c := range nsCells {
		if !c.isEmpty() {
			return false
		}
	}
	return true
}

// Value is a handle to a single-value state cell of type T.
type Value[T any] struct {
	ID          string
	Fingerprint string
}

func (v Value[T]) cell(s *Store, ns Namespace) (*cell, error) {
	return s.cellFor(ns, v.ID, v.Fingerprint, CellValue)
}

// Read returns the current value and true, or the zero value and false if
// the cell has never been written (or was cleared).
func (v Value[T]) Read(s *Store, ns Namespace) (T, bool, error) {
	c, err := v.cell(s, ns)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if !c.hasValue {
		var zero T
		return zero, false, nil
	}
	return c.value.(T), true, nil
}

// Write sets the cell's value.
func (v Value[T]) Write(s *Store, ns Namespace, val T) error {
	c, err := v.cell(s, ns)
	if err != nil {
		return err
	}
	c.value = val
	c.hasValue = true
	return nil
}

// Clear empties the cell.
func (v Value[T]) Clear(s *Store, ns Namespace) error {
	c, err := v.cell(s, ns)
	if err != nil {
		return err
	}
	c.hasValue = false
	c.value = nil
	return nil
}

// Bag is a handle to an append-only, order-preserving multiset cell of
// type T, the shape the ReduceFnRunner uses to buffer a window's elements.
type Bag[T any] struct {
	ID          string
	Fingerprint string
}

func (b Bag[T]) cell(s *Store, ns Namespace) (*cell, error) {
	return s.cellFor(ns, b.ID, b.Fingerprint, CellBag)
}

// Read returns a copy of the bag's contents, oldest first.
func (b Bag[T]) Read(s *Store, ns Namespace) ([]T, error) {
	c, err := b.cell(s, ns)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(c.bag))
	for i, v := range c.bag {
		out[i] = v.(T)
	}
	return out, nil
}

// Add appends val to the bag.
func (b Bag[T]) Add(s *Store, ns Namespace, val T) error {
	c, err := b.cell(s, ns)
	if err != nil {
		return err
	}
	c.bag = append(c.bag, val)
	return nil
}

// Clear empties the bag.
func (b Bag[T]) Clear(s *Store, ns Namespace) error {
	c, err := b.cell(s, ns)
	if err != nil {
		return err
	}
	c.bag = nil
	return nil
}

// Set is a handle to a deduplicating set cell of comparable type T.
type Set[T comparable] struct {
	ID          string
	Fingerprint string
}

func (st Set[T]) cell(s *Store, ns Namespace) (*cell, error) {
	return s.cellFor(ns, st.ID, st.Fingerprint, CellSet)
}

// Add inserts val into the set.
func (st Set[T]) Add(s *Store, ns Namespace, val T) error {
	c, err := st.cell(s, ns)
	if err != nil {
		return err
	}
	if c.set == nil {
		c.set = map[any]struct{}{}
	}
	c.set[val] = struct{}{}
	return nil
}

// Contains reports whether val is in the set.
func (st Set[T]) Contains(s *Store, ns Namespace, val T) (bool, error) {
	c, err := st.cell(s, ns)
	if err != nil {
		return false, err
	}
	_, ok := c.set[val]
	return ok, nil
}

// Read returns the set's current contents, in no particular order.
func (st Set[T]) Read(s *Store, ns Namespace) ([]T, error) {
	c, err := st.cell(s, ns)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(c.set))
	for v := range c.set {
		out = append(out, v.(T))
	}
	return out, nil
}

// Clear empties the set.
func (st Set[T]) Clear(s *Store, ns Namespace) error {
	c, err := st.cell(s, ns)
	if err != nil {
		return err
	}
	c.set = nil
	return nil
}

// Combining is a handle to a cell that accumulates values of type In into
// an accumulator of type Acc, extracted as Out. init builds a fresh
// accumulator and add folds one input into it; both are supplied by the
// caller rather than reflected, matching this package's general policy of
// never reflecting on user-supplied functions or types at runtime.
type Combining[In, Acc, Out any] struct {
	ID          string
	Fingerprint string
	Init        func() Acc
	Add         func(acc Acc, in In) Acc
	Extract     func(acc Acc) Out
}

func (cc Combining[In, Acc, Out]) cell(s *Store, ns Namespace) (*cell, error) {
	c, err := s.cellFor(ns, cc.ID, cc.Fingerprint, CellCombining)
	if err != nil {
		return nil, err
	}
	// Capture this handle's Init/Add/merge behavior as type-erased closures
	// on first touch, so a later namespace-to-namespace merge
	// (Store.MergeCombiningCells) can fold two accumulators together
	// without the caller needing to know In/Acc/Out.
	if c.combAdd == nil {
		c.combInit = func() any { return cc.Init() }
		c.combAdd = func(acc, in any) any { return cc.Add(acc.(Acc), in.(In)) }
		c.combMerge = func(toAcc, fromAcc any) any {
			// As in Merge below, folding an Acc into an Add that expects In is
			// only defined when Acc == In, true of the common sum/count/min/max
			// accumulators. Anything else keeps toAcc unchanged.
			if in, ok := fromAcc.(In); ok {
				return cc.Add(toAcc.(Acc), in)
			}
			return toAcc
		}
	}
	return c, nil
}

// Merge folds from's accumulator (if any) into cc's accumulator for to,
// then clears from. ReduceFnRunner's session merge does not call it; it
// uses Store.MergeCombiningCells.
func (cc Combining[In, Acc, Out]) Merge(s *Store, from, to Namespace) error {
	fromCell, err := cc.cell(s, from)
	if err != nil {
		return err
	}
	if !fromCell.combSet {
		return nil
	}
	toCell, err := cc.cell(s, to)
	if err != nil {
		return err
	}
	if !toCell.combSet {
		toCell.combAcc = fromCell.combAcc
		toCell.combSet = true
	} else {
		// Fold the source accumulator's contribution through Add is not
		// generally defined for Acc as In; callers with a genuine merge
		// function should combine accumulators directly. For the common
		// sum/count/min/max accumulators Acc == In, so Add composes.
		if in, ok := any(fromCell.combAcc).(In); ok {
			toCell.combAcc = cc.Add(toCell.combAcc.(Acc), in)
		}
	}
	fromCell.combSet = false
	fromCell.combAcc = nil
	return nil
}

// AddValue folds in into the accumulator, initializing it first if this is the
// cell's first write.
func (cc Combining[In, Acc, Out]) AddValue(s *Store, ns Namespace, in In) error {
	c, err := cc.cell(s, ns)
	if err != nil {
		return err
	}
	if !c.combSet {
		c.combAcc = cc.Init()
		c.combSet = true
	}
	c.combAcc = cc.Add(c.combAcc.(Acc), in)
	return nil
}

// Read extracts the accumulator's current output, and false if the cell
// has never been written.
func (cc Combining[In, Acc, Out]) Read(s *Store, ns Namespace) (Out, bool, error) {
	c, err := cc.cell(s, ns)
	if err != nil {
		var zero Out
		return zero, false, err
	}
	if !c.combSet {
		var zero Out
		return zero, false, nil
	}
	return cc.Extract(c.combAcc.(Acc)), true, nil
}

// Clear resets the accumulator.
func (cc Combining[In, Acc, Out]) Clear(s *Store, ns Namespace) error {
	c, err := cc.cell(s, ns)
	if err != nil {
		return err
	}
	c.combSet = false
	c.combAcc = nil
	return nil
}

// Map is a handle to a keyed-map state cell.
type Map[K comparable, V any] struct {
	ID          string
	Fingerprint string
}

func (m Map[K, V]) cell(s *Store, ns Namespace) (*cell, error) {
	return s.cellFor(ns, m.ID, m.Fingerprint, CellMap)
}

// Put sets key to val.
func (m Map[K, V]) Put(s *Store, ns Namespace, key K, val V) error {
	c, err := m.cell(s, ns)
	if err != nil {
		return err
	}
	if c.m == nil {
		c.m = map[any]any{}
	}
	c.m[key] = val
	return nil
}

// Get returns the value for key, and false if absent.
func (m Map[K, V]) Get(s *Store, ns Namespace, key K) (V, bool, error) {
	c, err := m.cell(s, ns)
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, ok := c.m[key]
	if !ok {
		var zero V
		return zero, false, nil
	}
	return v.(V), true, nil
}

// Remove deletes key from the map.
func (m Map[K, V]) Remove(s *Store, ns Namespace, key K) error {
	c, err := m.cell(s, ns)
	if err != nil {
		return err
	}
	delete(c.m, key)
	return nil
}

// Clear empties the map.
func (m Map[K, V]) Clear(s *Store, ns Namespace) error {
	c, err := m.cell(s, ns)
	if err != nil {
		return err
	}
	c.m = nil
	return nil
}

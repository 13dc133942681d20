package interp

import "math"

// Table is the hashed Value→Value map described in spec.md §3/§4.1. It is
// backed by a Go map keyed on Value.hashKey() rather than the original
// C sources' bucketed TableEntry linked lists (original_source/lib/table.c)
// — spec.md §4.1 explicitly permits ("but does not require") rehashing, so
// a native Go map satisfies every invariant while staying idiomatic.
type Table struct {
	hash map[interface{}]tentry
	meta *Table

	// metaProt holds the __metatable protection value; metaProtSet
	// distinguishes "no protection" from "protected with Nil".
	metaProt    Value
	metaProtSet bool

	// iterCache is the traversal order snapshotted on the first Next(Nil)
	// call of a walk; reused by subsequent Next calls in the same walk so
	// that Go's per-range map randomization can't reorder keys out from
	// under an in-progress pairs() loop. Removing a key mid-walk leaves
	// its slot in the cache as a tombstone (Next skips entries no longer
	// present), so the `t[k] = nil` inside `for k in pairs(t)` idiom
	// visits every remaining key; only inserting a NEW key invalidates
	// the snapshot (insert-during-traversal is undefined in this family).
	iterCache []interface{}
}

type tentry struct {
	key Value
	val Value
}

func NewTable() *Table {
	return &Table{hash: make(map[interface{}]tentry)}
}

// errNaNKeyMsg is raised (as a Go error, wrapped into a RuntimeError by
// callers) when a table operation is given a NaN key — spec.md §3(i).
const errNaNKeyMsg = "table index is NaN"

func isNaN(v Value) bool {
	return v.kind == VKNum && math.IsNaN(v.n)
}

// RawGet returns the value stored at k with no metamethod dispatch
// (spec.md §4.1 raw_get). The second return is false when absent.
func (t *Table) RawGet(k Value) (Value, bool) {
	if k.IsNil() {
		return VNil(), false
	}
	e, ok := t.hash[k.hashKey()]
	if !ok {
		return VNil(), false
	}
	return e.val, true
}

// RawSet stores v at k with no metamethod dispatch (spec.md §4.1
// raw_set). Setting Nil removes the entry (spec.md §3(ii)/(iii)).
func (t *Table) RawSet(k, v Value) error {
	if isNaN(k) {
		return errString(errNaNKeyMsg)
	}
	if k.IsNil() {
		return errString("table index is nil")
	}
	hk := k.hashKey()
	if v.IsNil() {
		// The deleted key stays in iterCache as a tombstone; Next skips it.
		delete(t.hash, hk)
		return nil
	}
	if _, existed := t.hash[hk]; !existed {
		t.iterCache = nil
	}
	t.hash[hk] = tentry{key: k, val: v}
	return nil
}

// Len computes a border: an index n≥0 such that t[n]≠Nil and t[n+1]=Nil
// (spec.md §3(iv), §4.1). It never probes index 0 and never loops forever
// on holes: a doubling probe finds an upper bound with a Nil, then a
// binary search narrows to a border between the last non-Nil index found
// and that upper bound.
func (t *Table) Len() int64 {
	if _, ok := t.RawGet(VInt(1)); !ok {
		return 0
	}
	i, j := int64(1), int64(2)
	for {
		if _, ok := t.RawGet(VInt(j)); !ok {
			break
		}
		i = j
		if j > (math.MaxInt64 / 2) {
			// Pathological: fall back to linear scan from i upward.
			for {
				if _, ok := t.RawGet(VInt(i + 1)); !ok {
					return i
				}
				i++
			}
		}
		j *= 2
	}
	for j-i > 1 {
		m := i + (j-i)/2
		if _, ok := t.RawGet(VInt(m)); ok {
			i = m
		} else {
			j = m
		}
	}
	return i
}

// Foreach calls fn for every (key, value) pair in unspecified order,
// matching spec.md §4.1's foreach(callback). Returning a non-nil error
// from fn stops iteration and propagates it.
func (t *Table) Foreach(fn func(k, v Value) error) error {
	for _, e := range t.hash {
		if err := fn(e.key, e.val); err != nil {
			return err
		}
	}
	return nil
}

// Next implements the `next` primitive backing `pairs`: given a key (or
// Nil to start), returns the following (key, value) pair, or ok=false when
// iteration is exhausted. Table iteration order is otherwise unspecified,
// so Next establishes an arbitrary but stable-for-the-walk order by
// snapshotting keys the first time it is invoked in a "fresh" walk
// (key == Nil) and reusing that snapshot for subsequent steps — Go's map
// iteration order is randomized per range, so recomputing it on every
// call would let a Set made mid-walk reshuffle keys already visited.
func (t *Table) Next(key Value) (Value, Value, bool) {
	if key.IsNil() {
		t.iterCache = t.snapshotOrder()
		return t.nextFrom(t.iterCache, 0)
	}
	order := t.iterCache
	if order == nil {
		order = t.snapshotOrder()
	}
	hk := key.hashKey()
	for idx, k := range order {
		if k == hk {
			return t.nextFrom(order, idx+1)
		}
	}
	return VNil(), VNil(), false
}

// nextFrom returns the first entry of order at or after start that is
// still present in the table, skipping tombstoned slots left behind by a
// mid-walk removal.
func (t *Table) nextFrom(order []interface{}, start int) (Value, Value, bool) {
	for ; start < len(order); start++ {
		if e, ok := t.hash[order[start]]; ok {
			return e.key, e.val, true
		}
	}
	return VNil(), VNil(), false
}

func (t *Table) snapshotOrder() []interface{} {
	order := make([]interface{}, 0, len(t.hash))
	for k := range t.hash {
		order = append(order, k)
	}
	return order
}

// Metatable returns the raw metatable, bypassing __metatable protection
// (used internally by dispatch; the getmetatable builtin applies
// protection itself).
func (t *Table) Metatable() *Table { return t.meta }

// SetMetatableRaw installs mt with no protection check; used by
// setmetatable after the protection check has already passed.
func (t *Table) SetMetatableRaw(mt *Table) { t.meta = mt }

// ProtectedValue returns the value getmetatable() should return when a
// __metatable field is present, and whether one is set (spec.md §3(v)).
func (t *Table) ProtectedValue() (Value, bool) {
	return t.metaProt, t.metaProtSet
}

func (t *Table) setProtection(v Value) {
	t.metaProt = v
	t.metaProtSet = true
}

// errString is a small helper so table.go doesn't need to import errors
// for a one-line sentinel; RuntimeError (errors.go) wraps these at the
// raise boundary.
type plainError string

func (e plainError) Error() string { return string(e) }

func errString(s string) error { return plainError(s) }

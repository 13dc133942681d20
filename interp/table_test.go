package interp

import "testing"

func TestTableRawSetGet(t *testing.T) {
	tb := NewTable()
	if err := tb.RawSet(VStrFromC("k"), VInt(10)); err != nil {
		t.Fatal(err)
	}
	v, ok := tb.RawGet(VStrFromC("k"))
	if !ok || v.Int() != 10 {
		t.Fatalf("RawGet = %v, %v, want 10, true", v, ok)
	}
}

func TestTableSetNilRemoves(t *testing.T) {
	tb := NewTable()
	_ = tb.RawSet(VInt(1), VInt(5))
	_ = tb.RawSet(VInt(1), VNil())
	if _, ok := tb.RawGet(VInt(1)); ok {
		t.Error("expected entry removed after setting Nil")
	}
}

func TestTableRawSetNaNKeyRejected(t *testing.T) {
	tb := NewTable()
	nan := VNum(nanValue())
	if err := tb.RawSet(nan, VInt(1)); err == nil {
		t.Error("expected NaN key to be rejected")
	}
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestTableLenNoGaps(t *testing.T) {
	tb := NewTable()
	for i := int64(1); i <= 5; i++ {
		_ = tb.RawSet(VInt(i), VInt(i*10))
	}
	if got := tb.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}
}

func TestTableLenNeverProbesZero(t *testing.T) {
	tb := NewTable()
	// No index 1 set: Len must report 0 without ever consulting index 0.
	_ = tb.RawSet(VInt(0), VInt(999))
	if got := tb.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0 (index 0 must never be probed)", got)
	}
}

func TestTableLenWithHolesReturnsAnyBorder(t *testing.T) {
	tb := NewTable()
	_ = tb.RawSet(VInt(1), VInt(1))
	_ = tb.RawSet(VInt(2), VInt(2))
	_ = tb.RawSet(VInt(4), VInt(4)) // hole at 3
	got := tb.Len()
	if got != 2 && got != 4 {
		t.Errorf("Len() with a hole = %d, want a valid border (2 or 4)", got)
	}
}

func TestTableNextVisitsEveryKeyExactlyOnce(t *testing.T) {
	tb := NewTable()
	want := map[string]bool{}
	for i := int64(1); i <= 20; i++ {
		k := VStrFromC("k" + ToString(VInt(i)))
		_ = tb.RawSet(k, VInt(i))
		want[k.Str().String()] = true
	}

	seen := map[string]bool{}
	k := VNil()
	for {
		nk, _, ok := tb.Next(k)
		if !ok {
			break
		}
		name := nk.Str().String()
		if seen[name] {
			t.Fatalf("Next revisited key %q", name)
		}
		seen[name] = true
		k = nk
	}
	if len(seen) != len(want) {
		t.Fatalf("Next visited %d keys, want %d", len(seen), len(want))
	}
}

func TestTableMetatableProtection(t *testing.T) {
	tb := NewTable()
	mt := NewTable()
	mt.setProtection(VStrFromC("locked"))
	tb.SetMetatableRaw(mt)

	if err := SetMetatable(tb, nil); err == nil {
		t.Error("expected protected metatable to reject setmetatable")
	}
	if got := GetMetatable(VTable(tb)); got.TypeName() != "string" || got.Str().String() != "locked" {
		t.Errorf("GetMetatable = %v, want protection value", got)
	}
}

func TestTableNextSurvivesDeletingCurrentKey(t *testing.T) {
	tb := NewTable()
	for i := int64(1); i <= 8; i++ {
		_ = tb.RawSet(VStrFromC("k"+ToString(VInt(i))), VInt(i))
	}

	// `for k in pairs(t) do t[k] = nil end`: removing the key just
	// visited must not end or derail the walk.
	visited := 0
	k := VNil()
	for {
		nk, _, ok := tb.Next(k)
		if !ok {
			break
		}
		visited++
		_ = tb.RawSet(nk, VNil())
		k = nk
	}
	if visited != 8 {
		t.Fatalf("visited %d keys, want all 8 despite mid-walk removals", visited)
	}
	if len(tb.hash) != 0 {
		t.Fatalf("%d entries remain, want the table emptied", len(tb.hash))
	}
}

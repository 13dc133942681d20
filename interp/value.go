package interp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// vkind tags a Value's variant, matching spec.md §3's tagged sum and
// original_source/include/types.h's ValTag enum one-for-one.
type vkind uint8

const (
	VKNil vkind = iota
	VKBool
	VKInt
	VKNum
	VKStr
	VKTable
	VKNativeFn
	VKClosure
	VKCoroutine
	VKMulti
)

// Value is the tagged sum type every expression reduces to (spec.md §3).
// Small payloads (bool/int/float) are stored inline; handle variants
// (string/table/closure/coroutine/native fn/multi) are carried by
// reference, matching "values are shared by handle" (spec.md §3 Lifecycles).
type Value struct {
	kind vkind
	b    bool
	i    int64
	n    float64
	s    *LString
	t    *Table
	fn   *NativeFn
	cl   *Closure
	co   *Coroutine
	m    []Value
}

// LString is an immutable byte string. It may contain embedded NULs;
// len(s.data) is authoritative, never a C-style NUL scan.
type LString struct {
	data string
}

func NewLString(s string) *LString { return &LString{data: s} }

func (s *LString) String() string { return s.data }
func (s *LString) Len() int       { return len(s.data) }

// hash mixes bytes FNV-style, per spec.md §3 ("hashing by FNV-like byte
// mix") — original_source's lib/table.c uses a custom byte mixer rather
// than a library hash, so we follow the original's algorithm shape instead
// of reaching for hash/fnv.
func (s *LString) hash() uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s.data); i++ {
		h ^= uint64(s.data[i])
		h *= 1099511628211
	}
	return h
}

// Constructors — the public API named in spec.md §6.
func VNil() Value                  { return Value{kind: VKNil} }
func VBool(b bool) Value           { return Value{kind: VKBool, b: b} }
func VInt(i int64) Value           { return Value{kind: VKInt, i: i} }
func VNum(n float64) Value         { return Value{kind: VKNum, n: n} }
func VStrFromC(s string) Value     { return Value{kind: VKStr, s: NewLString(s)} }
func VStr(s *LString) Value        { return Value{kind: VKStr, s: s} }
func VTable(t *Table) Value        { return Value{kind: VKTable, t: t} }
func VNativeFn(f *NativeFn) Value  { return Value{kind: VKNativeFn, fn: f} }
func VClosure(c *Closure) Value    { return Value{kind: VKClosure, cl: c} }
func VCoroutine(c *Coroutine) Value { return Value{kind: VKCoroutine, co: c} }
func VMulti(vs []Value) Value      { return Value{kind: VKMulti, m: vs} }

func (v Value) Kind() vkind  { return v.kind }
func (v Value) IsNil() bool  { return v.kind == VKNil }
func (v Value) IsInt() bool  { return v.kind == VKInt }
func (v Value) IsNum() bool  { return v.kind == VKNum }
func (v Value) IsNumeric() bool { return v.kind == VKInt || v.kind == VKNum }
func (v Value) IsStr() bool  { return v.kind == VKStr }
func (v Value) IsTable() bool { return v.kind == VKTable }
func (v Value) IsCallable() bool {
	return v.kind == VKNativeFn || v.kind == VKClosure
}

func (v Value) Bool() bool       { return v.b }
func (v Value) Int() int64      { return v.i }
func (v Value) Num() float64    { return v.n }
func (v Value) Str() *LString   { return v.s }
func (v Value) Table() *Table   { return v.t }
func (v Value) NativeFn() *NativeFn { return v.fn }
func (v Value) Closure() *Closure   { return v.cl }
func (v Value) Coroutine() *Coroutine { return v.co }
func (v Value) Multi() []Value  { return v.m }

// AsFloat returns v's numeric value widened to float64. Caller must have
// checked IsNumeric first.
func (v Value) AsFloat() float64 {
	if v.kind == VKInt {
		return float64(v.i)
	}
	return v.n
}

// Truthy implements spec.md §4.3's "Falsey = Nil ∪ Bool(false)".
func (v Value) Truthy() bool {
	switch v.kind {
	case VKNil:
		return false
	case VKBool:
		return v.b
	default:
		return true
	}
}

// TypeName implements the `type()` builtin's string (Component 11).
func (v Value) TypeName() string {
	switch v.kind {
	case VKNil:
		return "nil"
	case VKBool:
		return "boolean"
	case VKInt, VKNum:
		return "number"
	case VKStr:
		return "string"
	case VKTable:
		return "table"
	case VKNativeFn, VKClosure:
		return "function"
	case VKCoroutine:
		return "thread"
	case VKMulti:
		return "multi" // never user-observable; collapses before reaching type()
	default:
		return "unknown"
	}
}

// RawEqual implements raw (metamethod-free) equality: spec.md §3 "Equality
// on tables is reference equality unless __eq dispatch succeeds" — this is
// the "unless" branch's fallback, and the rule for every other kind.
func RawEqual(a, b Value) bool {
	if a.kind != b.kind {
		// Int/Num cross-kind equality still compares numerically.
		if a.IsNumeric() && b.IsNumeric() {
			return a.AsFloat() == b.AsFloat()
		}
		return false
	}
	switch a.kind {
	case VKNil:
		return true
	case VKBool:
		return a.b == b.b
	case VKInt:
		return a.i == b.i
	case VKNum:
		return a.n == b.n
	case VKStr:
		return a.s.data == b.s.data
	case VKTable:
		return a.t == b.t
	case VKNativeFn:
		return a.fn == b.fn
	case VKClosure:
		return a.cl == b.cl
	case VKCoroutine:
		return a.co == b.co
	default:
		return false
	}
}

// hashKey returns a comparable Go value usable as a map key. NaN keys never
// reach a stored entry: Table.RawSet rejects them with an error first, and
// a NaN lookup key simply matches nothing.
func (v Value) hashKey() interface{} {
	switch v.kind {
	case VKNil:
		return nil
	case VKBool:
		return v.b
	case VKInt:
		return v.i
	case VKNum:
		// Integral floats key identically to the equivalent Int, so that
		// t[1] and t[1.0] address the same slot, matching Lua-family
		// table semantics.
		if v.n == math.Trunc(v.n) && !math.IsInf(v.n, 0) {
			return int64(v.n)
		}
		return v.n
	case VKStr:
		return v.s.data
	case VKTable:
		return v.t
	case VKNativeFn:
		return v.fn
	case VKClosure:
		return v.cl
	case VKCoroutine:
		return v.co
	default:
		return v
	}
}

// ToString implements the default (metamethod-free) tostring conversion;
// __tostring dispatch lives in builtins.go's biToString and calls this as
// its fallback.
func ToString(v Value) string {
	switch v.kind {
	case VKNil:
		return "nil"
	case VKBool:
		if v.b {
			return "true"
		}
		return "false"
	case VKInt:
		return strconv.FormatInt(v.i, 10)
	case VKNum:
		return formatFloat(v.n)
	case VKStr:
		return v.s.data
	case VKTable:
		return fmt.Sprintf("table: %p", v.t)
	case VKNativeFn:
		return fmt.Sprintf("function: builtin: %p", v.fn)
	case VKClosure:
		return fmt.Sprintf("function: %p", v.cl)
	case VKCoroutine:
		return fmt.Sprintf("thread: %p", v.co)
	default:
		return "<multi>"
	}
}

// formatFloat produces the "stable decimal representation" spec.md §4.3
// requires for number-to-string conversion in arithmetic/concat, and the
// round-trip property of §8 (tostring(tonumber(s)) == s for canonical
// forms).
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', 14, 64)
}

// ToNumber parses s the way Lua-family `tonumber` does: integer literals
// (decimal or 0x-hex) produce VKInt, everything else that parses as a
// float produces VKNum. Returns (Value{}, false) on failure.
func ToNumber(s string) (Value, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return VInt(i), true
	}
	if h := strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+"); len(h) > 2 && (h[:2] == "0x" || h[:2] == "0X") && !strings.Contains(h, "_") {
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return VInt(i), true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return VNum(f), true
	}
	return Value{}, false
}

// NativeFn wraps a Go-implemented builtin or library function.
type NativeFn struct {
	Name string
	Fn   func(vm *VM, args []Value) ([]Value, error)
}

// Closure is (params, vararg flag, body, captured environment) per
// spec.md §3. Closures are shared by reference: two Value{kind:VKClosure}
// built from the same *Closure see the same captured Env identity.
type Closure struct {
	Name      string
	Params    []string
	HasVararg bool
	Body      *Node
	Env       *Env
}

package interp

// Metamethod field names, spec.md §4.2.
const (
	mmIndex    = "__index"
	mmNewIndex = "__newindex"
	mmAdd      = "__add"
	mmSub      = "__sub"
	mmMul      = "__mul"
	mmDiv      = "__div"
	mmMod      = "__mod"
	mmPow      = "__pow"
	mmIDiv     = "__idiv"
	mmUnm      = "__unm"
	mmConcat   = "__concat"
	mmLen      = "__len"
	mmEq       = "__eq"
	mmLT       = "__lt"
	mmLE       = "__le"
	mmCall     = "__call"
	mmClose    = "__close"
	mmToString = "__tostring"
	mmMetatable = "__metatable"
)

// metatableOf returns v's metatable, or nil if v has none or cannot carry
// one. Only tables carry metatables directly in this port (spec.md §3(v));
// strings/numbers have no metatable slot of their own, consistent with the
// scope of spec.md's Table component.
func metatableOf(v Value) *Table {
	if v.kind == VKTable {
		return v.t.Metatable()
	}
	return nil
}

// lookupMetamethod resolves field `name` on v's metatable, per spec.md
// §4.2's single-operand lookup (used for __index/__newindex/__len/__unm/
// __close/__tostring/__call).
func lookupMetamethod(v Value, name string) (Value, bool) {
	mt := metatableOf(v)
	if mt == nil {
		return VNil(), false
	}
	mm, ok := mt.RawGet(VStrFromC(name))
	if !ok || mm.IsNil() {
		return VNil(), false
	}
	return mm, true
}

// resolveBinaryMM implements spec.md §4.2's operand-order rule: "the
// resolver first checks a's metatable for __op; if absent, checks b's."
func resolveBinaryMM(a, b Value, name string) (Value, bool) {
	if mm, ok := lookupMetamethod(a, name); ok {
		return mm, true
	}
	return lookupMetamethod(b, name)
}

const maxIndexChase = 100 // spec.md §4.2 "cycle guard ≥100 levels"

// Index implements `t[k]` read dispatch (spec.md §4.2): raw hit wins,
// otherwise __index is consulted (recursing through table __index chains
// up to maxIndexChase, or calling a callable __index with (t, k)).
func Index(vm *VM, target, key Value) (Value, error) {
	cur := target
	for depth := 0; depth < maxIndexChase; depth++ {
		if cur.kind == VKTable {
			if v, ok := cur.t.RawGet(key); ok {
				return v, nil
			}
			mm, ok := lookupMetamethod(cur, mmIndex)
			if !ok {
				return VNil(), nil
			}
			if mm.IsCallable() {
				res, err := Call(vm, mm, []Value{cur, key})
				if err != nil {
					return VNil(), err
				}
				return first(res), nil
			}
			cur = mm
			continue
		}
		mm, ok := lookupMetamethod(cur, mmIndex)
		if !ok {
			return VNil(), typeErrorf("attempt to index a %s value", cur.TypeName())
		}
		if mm.IsCallable() {
			res, err := Call(vm, mm, []Value{cur, key})
			if err != nil {
				return VNil(), err
			}
			return first(res), nil
		}
		cur = mm
	}
	return VNil(), errString("'__index' chain too long; possible loop")
}

// NewIndex implements `t[k]=v` write dispatch (spec.md §4.2): a raw hit
// (existing entry) writes raw; otherwise __newindex is consulted with the
// same table/callable distinction as Index.
func NewIndex(vm *VM, target, key, val Value) error {
	cur := target
	for depth := 0; depth < maxIndexChase; depth++ {
		if cur.kind != VKTable {
			mm, ok := lookupMetamethod(cur, mmNewIndex)
			if !ok {
				return typeErrorf("attempt to index a %s value", cur.TypeName())
			}
			if mm.IsCallable() {
				_, err := Call(vm, mm, []Value{cur, key, val})
				return err
			}
			cur = mm
			continue
		}
		if _, ok := cur.t.RawGet(key); ok {
			return cur.t.RawSet(key, val)
		}
		mm, ok := lookupMetamethod(cur, mmNewIndex)
		if !ok {
			return cur.t.RawSet(key, val)
		}
		if mm.IsCallable() {
			_, err := Call(vm, mm, []Value{cur, key, val})
			return err
		}
		cur = mm
	}
	return errString("'__newindex' chain too long; possible loop")
}

// GetMetatable implements the getmetatable() builtin's __metatable
// protection (spec.md §3(v)).
func GetMetatable(v Value) Value {
	mt := metatableOf(v)
	if mt == nil {
		return VNil()
	}
	if prot, ok := mt.ProtectedValue(); ok {
		return prot
	}
	return VTable(mt)
}

// SetMetatable implements the setmetatable() builtin, including the
// protected-metatable error (spec.md §3(v), §7).
func SetMetatable(t *Table, mt *Table) error {
	if cur := t.Metatable(); cur != nil {
		if _, ok := cur.ProtectedValue(); ok {
			return errString("cannot change a protected metatable")
		}
	}
	t.SetMetatableRaw(mt)
	if mt != nil {
		if prot, ok := mt.RawGet(VStrFromC(mmMetatable)); ok && !prot.IsNil() {
			mt.setProtection(prot)
		}
	}
	return nil
}

func first(vs []Value) Value {
	if len(vs) == 0 {
		return VNil()
	}
	return vs[0]
}

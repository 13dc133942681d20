package interp

import "math"

// varargIdent is the reserved environment slot name varargs are bound
// under, analogous to Lua's "...".
const varargIdent = "..."

// Eval reduces a single expression Node to a Value (spec.md §4.3). When n
// can produce a multi-return (a call or "..."), Eval returns only the
// first result, per §4.6 ("the caller ... takes only the first [value]
// elsewhere").
func Eval(vm *VM, n *Node) (Value, error) {
	vs, err := evalMulti(vm, n)
	if err != nil {
		return VNil(), err
	}
	return first(vs), nil
}

// evalMulti evaluates n and returns every value it can produce: a single-
// element slice for ordinary expressions, and the full result sequence
// for calls and "...". Positions that should expand a trailing multi-
// return (return lists, argument lists, multi-assignment RHS, table
// constructors) call this directly on the last element; everywhere else
// callers use Eval and get just the first value.
func evalMulti(vm *VM, n *Node) ([]Value, error) {
	switch n.kind {
	case nNil:
		return []Value{VNil()}, nil
	case nBool:
		return []Value{VBool(n.bval)}, nil
	case nNumber:
		if n.isInt {
			return []Value{VInt(int64(n.nval))}, nil
		}
		return []Value{VNum(n.nval)}, nil
	case nString:
		return []Value{VStrFromC(n.sval)}, nil
	case nVararg:
		v, ok := vm.env.Lookup(varargIdent)
		if !ok {
			return nil, typeErrorf("cannot use '...' outside a vararg function")
		}
		if v.kind == VKMulti {
			return append([]Value(nil), v.m...), nil
		}
		return []Value{v}, nil
	case nIdent:
		v, ok := vm.env.Lookup(n.ident)
		if !ok {
			return []Value{VNil()}, nil
		}
		return []Value{v}, nil
	case nUnary:
		v, err := evalUnary(vm, n)
		return []Value{v}, err
	case nBinary:
		v, err := evalBinary(vm, n)
		return []Value{v}, err
	case nIndex:
		t, err := Eval(vm, n.target)
		if err != nil {
			return nil, err
		}
		k, err := Eval(vm, n.key)
		if err != nil {
			return nil, err
		}
		v, err := Index(vm, t, k)
		return []Value{v}, err
	case nField:
		t, err := Eval(vm, n.target)
		if err != nil {
			return nil, err
		}
		v, err := Index(vm, t, VStrFromC(n.field))
		return []Value{v}, err
	case nFuncLit:
		return []Value{VClosure(&Closure{
			Params:    n.params,
			HasVararg: n.hasVararg,
			Body:      n.body,
			Env:       vm.env,
		})}, nil
	case nTableLit:
		v, err := evalTableLit(vm, n)
		return []Value{v}, err
	case nCall:
		return evalCall(vm, n)
	case nMethodCall:
		return evalMethodCall(vm, n)
	default:
		return nil, typeErrorf("cannot evaluate node kind %v as expression", n.kind)
	}
}

// evalExpandList evaluates an expression list where only the LAST element
// expands its multi-return (spec.md §4.3 Calls, §4.6): every element but
// the last contributes exactly one value.
func evalExpandList(vm *VM, nodes []*Node) ([]Value, error) {
	out := make([]Value, 0, len(nodes))
	for i, e := range nodes {
		if i == len(nodes)-1 {
			vs, err := evalMulti(vm, e)
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
			continue
		}
		v, err := Eval(vm, e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func evalCall(vm *VM, n *Node) ([]Value, error) {
	callee, err := Eval(vm, n.callee)
	if err != nil {
		return nil, err
	}
	args, err := evalExpandList(vm, n.args)
	if err != nil {
		return nil, err
	}
	return Call(vm, callee, args)
}

// evalMethodCall desugars a:m(args) into Index(a,"m") called with a
// prepended, evaluating `a` exactly once (SPEC_FULL supplemented feature
// 6).
func evalMethodCall(vm *VM, n *Node) ([]Value, error) {
	recv, err := Eval(vm, n.target)
	if err != nil {
		return nil, err
	}
	method, err := Index(vm, recv, VStrFromC(n.field))
	if err != nil {
		return nil, err
	}
	rest, err := evalExpandList(vm, n.args)
	if err != nil {
		return nil, err
	}
	args := append([]Value{recv}, rest...)
	return Call(vm, method, args)
}

func evalTableLit(vm *VM, n *Node) (Value, error) {
	t := NewTable()
	arrayIdx := int64(1)
	for i := range n.tvals {
		key := n.tkeys[i]
		val := n.tvals[i]
		if key != nil {
			k, err := Eval(vm, key)
			if err != nil {
				return VNil(), err
			}
			v, err := Eval(vm, val)
			if err != nil {
				return VNil(), err
			}
			if err := t.RawSet(k, v); err != nil {
				return VNil(), err
			}
			continue
		}
		// Array-positional entry; the trailing one may expand a
		// multi-return into consecutive indices (spec.md §4.3 Table
		// constructor).
		if i == len(n.tvals)-1 {
			vs, err := evalMulti(vm, val)
			if err != nil {
				return VNil(), err
			}
			for _, v := range vs {
				if err := t.RawSet(VInt(arrayIdx), v); err != nil {
					return VNil(), err
				}
				arrayIdx++
			}
			continue
		}
		v, err := Eval(vm, val)
		if err != nil {
			return VNil(), err
		}
		if err := t.RawSet(VInt(arrayIdx), v); err != nil {
			return VNil(), err
		}
		arrayIdx++
	}
	return VTable(t), nil
}

func evalUnary(vm *VM, n *Node) (Value, error) {
	v, err := Eval(vm, n.left)
	if err != nil {
		return VNil(), err
	}
	switch n.op {
	case opNeg:
		if v.kind == VKInt {
			return VInt(-v.i), nil
		}
		if v.kind == VKNum {
			return VNum(-v.n), nil
		}
		if mm, ok := lookupMetamethod(v, mmUnm); ok {
			res, err := Call(vm, mm, []Value{v, v})
			return first(res), err
		}
		return VNil(), typeErrorf("attempt to perform arithmetic on a %s value", v.TypeName())
	case opNot:
		return VBool(!v.Truthy()), nil
	case opLen:
		return evalLen(vm, v)
	case opBNot:
		if v.kind == VKInt {
			return VInt(^v.i), nil
		}
		return VNil(), typeErrorf("attempt to perform bitwise operation on a %s value", v.TypeName())
	default:
		return VNil(), typeErrorf("unknown unary operator")
	}
}

func evalLen(vm *VM, v Value) (Value, error) {
	switch v.kind {
	case VKStr:
		return VInt(int64(v.s.Len())), nil
	case VKTable:
		if mm, ok := lookupMetamethod(v, mmLen); ok {
			res, err := Call(vm, mm, []Value{v})
			return first(res), err
		}
		return VInt(v.t.Len()), nil
	default:
		return VNil(), typeErrorf("attempt to get length of a %s value", v.TypeName())
	}
}

func evalBinary(vm *VM, n *Node) (Value, error) {
	switch n.op {
	case opAnd:
		l, err := Eval(vm, n.left)
		if err != nil {
			return VNil(), err
		}
		if !l.Truthy() {
			return l, nil
		}
		return Eval(vm, n.right)
	case opOr:
		l, err := Eval(vm, n.left)
		if err != nil {
			return VNil(), err
		}
		if l.Truthy() {
			return l, nil
		}
		return Eval(vm, n.right)
	}

	l, err := Eval(vm, n.left)
	if err != nil {
		return VNil(), err
	}
	r, err := Eval(vm, n.right)
	if err != nil {
		return VNil(), err
	}

	switch n.op {
	case opAdd, opSub, opMul, opMod, opIDiv:
		return evalArith(vm, n.op, l, r)
	case opDiv, opPow:
		return evalFloatArith(vm, n.op, l, r)
	case opConcat:
		return evalConcat(vm, l, r)
	case opEq:
		eq, err := valuesEqual(vm, l, r)
		return VBool(eq), err
	case opNE:
		eq, err := valuesEqual(vm, l, r)
		return VBool(!eq), err
	case opLT:
		return evalCompare(vm, l, r, mmLT)
	case opLE:
		return evalCompare(vm, l, r, mmLE)
	case opGT:
		// a > b reduces to b < a (spec.md §4.2).
		return evalCompare(vm, r, l, mmLT)
	case opGE:
		return evalCompare(vm, r, l, mmLE)
	default:
		return VNil(), typeErrorf("unknown binary operator")
	}
}

var arithMM = map[op]string{
	opAdd: mmAdd, opSub: mmSub, opMul: mmMul, opMod: mmMod, opIDiv: mmIDiv,
	opDiv: mmDiv, opPow: mmPow,
}

// evalArith implements spec.md §4.3's integer-preserving arithmetic:
// Int op Int stays Int for +,-,*,%, integer-div; Int/Num mixes promote to
// Num.
func evalArith(vm *VM, o op, l, r Value) (Value, error) {
	if l.kind == VKInt && r.kind == VKInt {
		switch o {
		case opAdd:
			return VInt(l.i + r.i), nil
		case opSub:
			return VInt(l.i - r.i), nil
		case opMul:
			return VInt(l.i * r.i), nil
		case opMod:
			if r.i == 0 {
				return VNil(), typeErrorf("attempt to perform 'n%%0'")
			}
			m := l.i % r.i
			if m != 0 && (m^r.i) < 0 {
				m += r.i
			}
			return VInt(m), nil
		case opIDiv:
			if r.i == 0 {
				return VNil(), typeErrorf("attempt to perform 'n//0'")
			}
			q := l.i / r.i
			if (l.i%r.i != 0) && ((l.i < 0) != (r.i < 0)) {
				q--
			}
			return VInt(q), nil
		}
	}
	if l.IsNumeric() && r.IsNumeric() {
		lf, rf := l.AsFloat(), r.AsFloat()
		switch o {
		case opAdd:
			return VNum(lf + rf), nil
		case opSub:
			return VNum(lf - rf), nil
		case opMul:
			return VNum(lf * rf), nil
		case opMod:
			return VNum(lf - math.Floor(lf/rf)*rf), nil
		case opIDiv:
			return VNum(math.Floor(lf / rf)), nil
		}
	}
	if res, ok, err := tryArithMM(vm, o, l, r); ok {
		return res, err
	}
	bad := l
	if l.IsNumeric() {
		bad = r
	}
	return VNil(), typeErrorf("attempt to perform arithmetic on a %s value", bad.TypeName())
}

// evalFloatArith implements `/` and `^`, which always produce floats
// (spec.md §4.3).
func evalFloatArith(vm *VM, o op, l, r Value) (Value, error) {
	if l.IsNumeric() && r.IsNumeric() {
		lf, rf := l.AsFloat(), r.AsFloat()
		if o == opDiv {
			return VNum(lf / rf), nil
		}
		return VNum(math.Pow(lf, rf)), nil
	}
	if res, ok, err := tryArithMM(vm, o, l, r); ok {
		return res, err
	}
	bad := l
	if l.IsNumeric() {
		bad = r
	}
	return VNil(), typeErrorf("attempt to perform arithmetic on a %s value", bad.TypeName())
}

func tryArithMM(vm *VM, o op, l, r Value) (Value, bool, error) {
	name := arithMM[o]
	mm, ok := resolveBinaryMM(l, r, name)
	if !ok {
		return VNil(), false, nil
	}
	res, err := Call(vm, mm, []Value{l, r})
	return first(res), true, err
}

// evalConcat implements `..` (spec.md §4.3): accepts Str|Int|Num on both
// sides, with a stable decimal representation for numbers; otherwise
// falls back to __concat.
func evalConcat(vm *VM, l, r Value) (Value, error) {
	if isConcatable(l) && isConcatable(r) {
		return VStrFromC(ToString(l) + ToString(r)), nil
	}
	if mm, ok := resolveBinaryMM(l, r, mmConcat); ok {
		res, err := Call(vm, mm, []Value{l, r})
		return first(res), err
	}
	bad := l
	if isConcatable(l) {
		bad = r
	}
	return VNil(), typeErrorf("attempt to concatenate a %s value", bad.TypeName())
}

func isConcatable(v Value) bool {
	return v.kind == VKStr || v.IsNumeric()
}

// ValueEqual is the __eq-aware equality entry point exposed to library
// code (spec.md §6's value_equal); RawEqual is the metamethod-free form.
func ValueEqual(vm *VM, a, b Value) (bool, error) {
	return valuesEqual(vm, a, b)
}

// valuesEqual implements `==`/`~=` (spec.md §4.2/§4.3): raw equality
// first, then __eq when both operands are tables and raw comparison
// failed.
func valuesEqual(vm *VM, l, r Value) (bool, error) {
	if RawEqual(l, r) {
		return true, nil
	}
	if l.kind != VKTable || r.kind != VKTable {
		return false, nil
	}
	mm, ok := resolveBinaryMM(l, r, mmEq)
	if !ok {
		return false, nil
	}
	res, err := Call(vm, mm, []Value{l, r})
	if err != nil {
		return false, err
	}
	return first(res).Truthy(), nil
}

// evalCompare implements `<`/`<=` (spec.md §4.3): Num↔Num and Str↔Str
// compare directly; otherwise __lt/__le is attempted, else "attempt to
// compare X with Y".
func evalCompare(vm *VM, l, r Value, mm string) (Value, error) {
	if l.IsNumeric() && r.IsNumeric() {
		lf, rf := l.AsFloat(), r.AsFloat()
		if mm == mmLT {
			return VBool(lf < rf), nil
		}
		return VBool(lf <= rf), nil
	}
	if l.kind == VKStr && r.kind == VKStr {
		if mm == mmLT {
			return VBool(l.s.data < r.s.data), nil
		}
		return VBool(l.s.data <= r.s.data), nil
	}
	if fn, ok := resolveBinaryMM(l, r, mm); ok {
		res, err := Call(vm, fn, []Value{l, r})
		return VBool(first(res).Truthy()), err
	}
	return VNil(), typeErrorf("attempt to compare %s with %s", l.TypeName(), r.TypeName())
}

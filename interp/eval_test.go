package interp

import "testing"

func numLit(v float64, isInt bool) *Node {
	return &Node{kind: nNumber, nval: v, isInt: isInt}
}

func strLit(s string) *Node { return &Node{kind: nString, sval: s} }

func binNode(o op, l, r *Node) *Node { return &Node{kind: nBinary, op: o, left: l, right: r} }

func newTestVM(t *testing.T) *VM {
	t.Helper()
	return NewVM(Options{})
}

func TestEvalIntArithStaysInt(t *testing.T) {
	vm := newTestVM(t)
	v, err := Eval(vm, binNode(opAdd, numLit(2, true), numLit(3, true)))
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind() != VKInt || v.Int() != 5 {
		t.Errorf("2+3 = %v, want Int(5)", v)
	}
}

func TestEvalIntFloatMixPromotes(t *testing.T) {
	vm := newTestVM(t)
	v, err := Eval(vm, binNode(opAdd, numLit(2, true), numLit(0.5, false)))
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind() != VKNum || v.Num() != 2.5 {
		t.Errorf("2+0.5 = %v, want Num(2.5)", v)
	}
}

func TestEvalDivAlwaysFloat(t *testing.T) {
	vm := newTestVM(t)
	v, err := Eval(vm, binNode(opDiv, numLit(4, true), numLit(2, true)))
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind() != VKNum || v.Num() != 2.0 {
		t.Errorf("4/2 = %v, want Num(2.0)", v)
	}
}

func TestEvalModFloorsTowardNegativeInfinity(t *testing.T) {
	vm := newTestVM(t)
	v, err := Eval(vm, binNode(opMod, numLit(-1, true), numLit(5, true)))
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind() != VKInt || v.Int() != 4 {
		t.Errorf("-1 %% 5 = %v, want Int(4)", v)
	}
}

func TestEvalConcatMixedTypes(t *testing.T) {
	vm := newTestVM(t)
	v, err := Eval(vm, &Node{kind: nBinary, op: opConcat, left: strLit("n="), right: numLit(7, true)})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind() != VKStr || v.Str().String() != "n=7" {
		t.Errorf("concat = %v, want \"n=7\"", v)
	}
}

func TestEvalAndOrShortCircuit(t *testing.T) {
	vm := newTestVM(t)

	v, err := Eval(vm, &Node{kind: nBinary, op: opAnd, left: &Node{kind: nBool, bval: false}, right: numLit(1, true)})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind() != VKBool || v.Bool() {
		t.Errorf("false and 1 = %v, want false", v)
	}

	v, err = Eval(vm, &Node{kind: nBinary, op: opOr, left: &Node{kind: nBool, bval: true}, right: numLit(1, true)})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind() != VKBool || !v.Bool() {
		t.Errorf("true or 1 = %v, want true", v)
	}
}

func TestEvalCompareGTReducesToLT(t *testing.T) {
	vm := newTestVM(t)
	v, err := Eval(vm, binNode(opGT, numLit(5, true), numLit(3, true)))
	if err != nil {
		t.Fatal(err)
	}
	if !v.Bool() {
		t.Errorf("5 > 3 = %v, want true", v)
	}
}

func TestEvalIndexDispatchesMetamethod(t *testing.T) {
	vm := newTestVM(t)
	base := NewTable()
	_ = base.RawSet(VStrFromC("greeting"), VStrFromC("hi"))
	mt := NewTable()
	_ = mt.RawSet(VStrFromC(mmIndex), VTable(base))
	tb := NewTable()
	tb.SetMetatableRaw(mt)

	vm.env.Declare("t", VTable(tb), true)
	v, err := Eval(vm, &Node{kind: nField, target: &Node{kind: nIdent, ident: "t"}, field: "greeting"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind() != VKStr || v.Str().String() != "hi" {
		t.Errorf("t.greeting = %v, want \"hi\"", v)
	}
}

func TestEvalTableLitExpandsTrailingMultiReturn(t *testing.T) {
	vm := newTestVM(t)
	multi := &Node{kind: nVararg}
	vm.env.Declare(varargIdent, VMulti([]Value{VInt(1), VInt(2), VInt(3)}), true)

	v, err := Eval(vm, &Node{kind: nTableLit, tkeys: []*Node{nil}, tvals: []*Node{multi}})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind() != VKTable {
		t.Fatalf("want table, got %v", v)
	}
	if v.Table().Len() != 3 {
		t.Errorf("table len = %d, want 3", v.Table().Len())
	}
}

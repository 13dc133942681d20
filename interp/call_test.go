package interp

import "testing"

func TestCallClosureBindsParamsAndVarargs(t *testing.T) {
	vm := newTestVM(t)
	cl := &Closure{
		Params:    []string{"a", "b"},
		HasVararg: true,
		Body: block(&Node{kind: nReturn, values: []*Node{
			binNode(opAdd, &Node{kind: nIdent, ident: "a"}, &Node{kind: nIdent, ident: "b"}),
			&Node{kind: nVararg},
		}}),
		Env: vm.env,
	}
	res, err := Call(vm, VClosure(cl), []Value{VInt(1), VInt(2), VInt(3), VInt(4)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 3 || res[0].Int() != 3 || res[1].Int() != 3 || res[2].Int() != 4 {
		t.Fatalf("res = %v, want [3, 3, 4] (a+b, then the expanded varargs)", res)
	}
}

func TestCallClosureMissingArgsPadNil(t *testing.T) {
	vm := newTestVM(t)
	cl := &Closure{
		Params: []string{"a", "b"},
		Body: block(&Node{kind: nReturn, values: []*Node{
			{kind: nIdent, ident: "b"},
		}}),
		Env: vm.env,
	}
	res, err := Call(vm, VClosure(cl), []Value{VInt(1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || !res[0].IsNil() {
		t.Errorf("res = %v, want [nil]", res)
	}
}

func TestCallControlFlowIsolatedAcrossCalls(t *testing.T) {
	vm := newTestVM(t)
	vm.breakPending = true // simulate an enclosing loop's pending break

	cl := &Closure{
		Body: block(&Node{kind: nReturn, values: []*Node{numLit(1, true)}}),
		Env:  vm.env,
	}
	if _, err := Call(vm, VClosure(cl), nil); err != nil {
		t.Fatal(err)
	}
	if !vm.breakPending {
		t.Error("caller's breakPending must be restored after the call returns")
	}
}

func TestCallNonCallableDispatchesToCallMetamethod(t *testing.T) {
	vm := newTestVM(t)
	tb := NewTable()
	mt := NewTable()
	_ = mt.RawSet(VStrFromC(mmCall), VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		return []Value{VInt(int64(len(args)))}, nil
	}}))
	tb.SetMetatableRaw(mt)

	res, err := Call(vm, VTable(tb), []Value{VInt(1), VInt(2)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Int() != 3 {
		t.Errorf("res = %v, want [3] (self prepended to the 2 args)", res)
	}
}

func TestCallUncallableValueErrors(t *testing.T) {
	vm := newTestVM(t)
	if _, err := Call(vm, VInt(5), nil); err == nil {
		t.Error("expected error calling a non-callable, non-__call number")
	}
}

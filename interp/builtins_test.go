package interp

import "testing"

func callBuiltin(t *testing.T, vm *VM, name string, args ...Value) []Value {
	t.Helper()
	fn, ok := vm.universe.Lookup(name)
	if !ok {
		t.Fatalf("builtin %q not registered", name)
	}
	res, err := Call(vm, fn, args)
	if err != nil {
		t.Fatalf("%s(%v) returned error: %v", name, args, err)
	}
	return res
}

func TestBuiltinTypeNames(t *testing.T) {
	vm := newTestVM(t)
	cases := []struct {
		v    Value
		want string
	}{
		{VNil(), "nil"},
		{VBool(true), "boolean"},
		{VInt(1), "number"},
		{VStrFromC("x"), "string"},
		{VTable(NewTable()), "table"},
	}
	for _, c := range cases {
		res := callBuiltin(t, vm, "type", c.v)
		if res[0].Str().String() != c.want {
			t.Errorf("type(%v) = %q, want %q", c.v, res[0].Str().String(), c.want)
		}
	}
}

func TestBuiltinAssertPassesThroughMessageVerbatim(t *testing.T) {
	vm := newTestVM(t)
	fn, _ := vm.universe.Lookup("assert")
	customErr := VTable(NewTable())
	_, err := Call(vm, fn, []Value{VBool(false), customErr})
	if err == nil {
		t.Fatal("expected assert(false, ...) to raise")
	}
	if errValueOf(err).Table() != customErr.Table() {
		t.Error("assert must raise the custom message value verbatim, not a coerced string")
	}
}

func TestBuiltinSelectHashReturnsCount(t *testing.T) {
	vm := newTestVM(t)
	res := callBuiltin(t, vm, "select", VStrFromC("#"), VInt(1), VInt(2), VInt(3))
	if res[0].Int() != 3 {
		t.Errorf("select('#', 1,2,3) = %v, want 3", res[0])
	}
}

func TestBuiltinSelectNReturnsTail(t *testing.T) {
	vm := newTestVM(t)
	res := callBuiltin(t, vm, "select", VInt(2), VInt(10), VInt(20), VInt(30))
	if len(res) != 2 || res[0].Int() != 20 || res[1].Int() != 30 {
		t.Errorf("select(2, 10,20,30) = %v, want [20, 30]", res)
	}
}

func TestBuiltinRawsetRawgetBypassMetamethods(t *testing.T) {
	vm := newTestVM(t)
	tb := NewTable()
	mt := NewTable()
	_ = mt.RawSet(VStrFromC(mmNewIndex), VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		t.Fatal("__newindex must not be consulted by rawset")
		return nil, nil
	}}))
	tb.SetMetatableRaw(mt)

	callBuiltin(t, vm, "rawset", VTable(tb), VStrFromC("k"), VInt(9))
	res := callBuiltin(t, vm, "rawget", VTable(tb), VStrFromC("k"))
	if res[0].Int() != 9 {
		t.Errorf("rawget after rawset = %v, want 9", res[0])
	}
}

func TestBuiltinUnpackExpandsRange(t *testing.T) {
	vm := newTestVM(t)
	tb := NewTable()
	_ = tb.RawSet(VInt(1), VInt(10))
	_ = tb.RawSet(VInt(2), VInt(20))
	_ = tb.RawSet(VInt(3), VInt(30))

	res := callBuiltin(t, vm, "unpack", VTable(tb))
	if len(res) != 3 || res[0].Int() != 10 || res[2].Int() != 30 {
		t.Errorf("unpack(t) = %v, want [10, 20, 30]", res)
	}

	res = callBuiltin(t, vm, "unpack", VTable(tb), VInt(2), VInt(3))
	if len(res) != 2 || res[0].Int() != 20 {
		t.Errorf("unpack(t, 2, 3) = %v, want [20, 30]", res)
	}
}

func TestBuiltinSetmetatableRejectsProtected(t *testing.T) {
	vm := newTestVM(t)
	tb := NewTable()
	mt := NewTable()
	mt.setProtection(VStrFromC("locked"))
	tb.SetMetatableRaw(mt)

	fn, _ := vm.universe.Lookup("setmetatable")
	_, err := Call(vm, fn, []Value{VTable(tb), VTable(NewTable())})
	if err == nil {
		t.Error("expected setmetatable to reject a protected metatable")
	}
}

func TestBuiltinPcallWrapsResultWithBoolean(t *testing.T) {
	vm := newTestVM(t)
	failing := VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		return nil, typeErrorf("nope")
	}})
	res := callBuiltin(t, vm, "pcall", failing)
	if res[0].Bool() != false {
		t.Fatalf("pcall(failing) first value = %v, want false", res[0])
	}
	if res[1].Str().String() != "nope" {
		t.Errorf("pcall(failing) error value = %v, want \"nope\"", res[1])
	}
}

func TestPackagePreloadNewIndexTrampolineRegistersModule(t *testing.T) {
	vm := newTestVM(t)
	pkg, ok := vm.universe.Lookup("package")
	if !ok {
		t.Fatal("package global not registered")
	}
	preloadV, err := Index(vm, pkg, VStrFromC("preload"))
	if err != nil {
		t.Fatal(err)
	}
	fn := VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		return []Value{VInt(1)}, nil
	}})
	if err := NewIndex(vm, preloadV, VStrFromC("m"), fn); err != nil {
		t.Fatal(err)
	}
	if _, ok := vm.pkg.preload["m"]; !ok {
		t.Error("assigning package.preload.m must mirror into PackageState.preload")
	}
}

func TestOsExitRaisesSentinelThroughPcall(t *testing.T) {
	vm := newTestVM(t)
	osV, ok := vm.universe.Lookup("os")
	if !ok {
		t.Fatal("os global not registered")
	}
	exitFn, err := Index(vm, osV, VStrFromC("exit"))
	if err != nil {
		t.Fatal(err)
	}

	// pcall must not swallow the exit request: it unwinds past the
	// protected frame untouched.
	pcallFn, _ := vm.universe.Lookup("pcall")
	_, err = Call(vm, pcallFn, []Value{exitFn, VInt(3)})
	exit, ok := err.(*ExitError)
	if !ok {
		t.Fatalf("err = %v, want *ExitError", err)
	}
	if exit.Code != 3 {
		t.Errorf("exit code = %d, want 3", exit.Code)
	}
}

func TestOsExitFalseMapsToCodeOne(t *testing.T) {
	vm := newTestVM(t)
	_, err := biOsExit(vm, []Value{VBool(false)})
	exit, ok := err.(*ExitError)
	if !ok || exit.Code != 1 {
		t.Fatalf("os.exit(false) = %v, want exit code 1", err)
	}
}

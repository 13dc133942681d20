package interp

import "testing"

func TestEnvDeclareLookupShadowing(t *testing.T) {
	parent := NewEnv(nil)
	parent.Declare("x", VInt(1), true)
	child := NewEnv(parent)
	child.Declare("x", VInt(2), true)

	v, ok := child.Lookup("x")
	if !ok || v.Int() != 2 {
		t.Fatalf("child lookup = %v, %v, want 2, true", v, ok)
	}
	v, ok = parent.Lookup("x")
	if !ok || v.Int() != 1 {
		t.Fatalf("parent lookup = %v, %v, want 1, true", v, ok)
	}
}

func TestEnvAssignGlobalFallback(t *testing.T) {
	root := NewEnv(nil)
	child := NewEnv(root)
	child.Assign("g", VInt(42)) // "g" declared nowhere: falls back to root

	if v, ok := root.Lookup("g"); !ok || v.Int() != 42 {
		t.Fatalf("root lookup after fallback assign = %v, %v, want 42, true", v, ok)
	}
}

func TestEnvAssignFindsNearestBinding(t *testing.T) {
	root := NewEnv(nil)
	root.Declare("x", VInt(1), false)
	child := NewEnv(root)
	child.Assign("x", VInt(99))

	v, _ := root.Lookup("x")
	if v.Int() != 99 {
		t.Errorf("expected assign to mutate existing root binding, got %v", v)
	}
}

func TestRunClosersRunsInReverseOrderOnce(t *testing.T) {
	vm := &VM{}
	env := NewEnv(nil)
	var order []string

	mkCloser := func(name string) Value {
		t := NewTable()
		mt := NewTable()
		_ = mt.RawSet(VStrFromC(mmClose), VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
			order = append(order, name)
			return nil, nil
		}}))
		t.SetMetatableRaw(mt)
		return VTable(t)
	}

	env.DeclareClose("a", mkCloser("a"))
	env.DeclareClose("b", mkCloser("b"))

	if err := env.RunClosers(vm, VNil()); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("close order = %v, want [b a]", order)
	}

	// A second RunClosers call must not re-invoke already-closed slots.
	if err := env.RunClosers(vm, VNil()); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 {
		t.Fatalf("closers ran again: %v", order)
	}
}

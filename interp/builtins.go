package interp

import "fmt"

// installBuiltins populates vm's global environment with Component 11's
// glue functions plus the coroutine/package/os surface spec.md §4.8/§4.9/
// §6 name, following other_examples' MilkLua baselib.go's
// "name -> func(L) int" registration-table shape, adapted to this port's
// func(vm, args) ([]Value, error) native signature.
func installBuiltins(vm *VM) {
	reg := func(name string, fn func(vm *VM, args []Value) ([]Value, error)) {
		vm.universe.Declare(name, VNativeFn(&NativeFn{Name: name, Fn: fn}), false)
	}

	reg("type", biType)
	reg("tostring", biToString)
	reg("tonumber", biToNumber)
	reg("pairs", biPairs)
	reg("ipairs", biIPairs)
	reg("next", biNext)
	reg("select", biSelect)
	reg("assert", biAssert)
	reg("rawget", biRawGet)
	reg("rawset", biRawSet)
	reg("rawequal", biRawEqual)
	reg("rawlen", biRawLen)
	reg("setmetatable", biSetMetatable)
	reg("getmetatable", biGetMetatable)
	reg("collectgarbage", biCollectGarbage)
	reg("print", biPrint)
	reg("error", biError)
	reg("pcall", biPCall)
	reg("xpcall", biXPCall)
	reg("unpack", biUnpack)
	reg("require", biRequire)

	vm.universe.Declare("_G", VTable(globalsTable(vm)), false)

	osTable := NewTable()
	_ = osTable.RawSet(VStrFromC("exit"), VNativeFn(&NativeFn{Name: "os.exit", Fn: biOsExit}))
	vm.universe.Declare("os", VTable(osTable), false)

	vm.universe.Declare("coroutine", VTable(coroutineTable()), false)
	vm.universe.Declare("package", VTable(packageTable(vm)), false)
}

// globalsTable implements `_G`: a live view isn't representable without
// threading the Env through Table's protocol, so per spec.md's "Builtins
// glue" scope (no bundled stdlib reflection is promised) this is a
// snapshot of the universe scope's own slots at startup time, sufficient
// for the `for k,v in pairs(_G)` introspection pattern scripts actually
// rely on.
func globalsTable(vm *VM) *Table {
	t := NewTable()
	for _, s := range vm.universe.slots {
		_ = t.RawSet(VStrFromC(s.name), s.value)
	}
	return t
}

func biType(vm *VM, args []Value) ([]Value, error) {
	return []Value{VStrFromC(first(args).TypeName())}, nil
}

func biToString(vm *VM, args []Value) ([]Value, error) {
	v := first(args)
	if mm, ok := lookupMetamethod(v, mmToString); ok {
		res, err := Call(vm, mm, []Value{v})
		if err != nil {
			return nil, err
		}
		return []Value{first(res)}, nil
	}
	return []Value{VStrFromC(ToString(v))}, nil
}

func biToNumber(vm *VM, args []Value) ([]Value, error) {
	v := first(args)
	if v.IsNumeric() {
		return []Value{v}, nil
	}
	if v.IsStr() {
		if n, ok := ToNumber(v.Str().String()); ok {
			return []Value{n}, nil
		}
	}
	return []Value{VNil()}, nil
}

// biPairs implements pairs(t) (spec.md §4.4 Generic for): returns the
// (next, t, Nil) triple packed into a table, per the fallback contract
// execForIn's unpackIterTriple reads back out.
func biPairs(vm *VM, args []Value) ([]Value, error) {
	t := first(args)
	if !t.IsTable() {
		return nil, typeErrorf("bad argument #1 to 'pairs' (table expected, got %s)", t.TypeName())
	}
	triple := NewTable()
	_ = triple.RawSet(VInt(1), VNativeFn(&NativeFn{Name: "next", Fn: biNext}))
	_ = triple.RawSet(VInt(2), t)
	_ = triple.RawSet(VInt(3), VNil())
	return []Value{VTable(triple)}, nil
}

// biIPairs implements ipairs(t): an (iter, t, 0) triple whose iter walks
// consecutive integer keys starting at 1 until the first Nil.
func biIPairs(vm *VM, args []Value) ([]Value, error) {
	t := first(args)
	if !t.IsTable() {
		return nil, typeErrorf("bad argument #1 to 'ipairs' (table expected, got %s)", t.TypeName())
	}
	iter := VNativeFn(&NativeFn{
		Name: "ipairs-iterator",
		Fn: func(vm *VM, args []Value) ([]Value, error) {
			tbl := args[0].Table()
			i := args[1].Int() + 1
			v, ok := tbl.RawGet(VInt(i))
			if !ok {
				return []Value{VNil()}, nil
			}
			return []Value{VInt(i), v}, nil
		},
	})
	triple := NewTable()
	_ = triple.RawSet(VInt(1), iter)
	_ = triple.RawSet(VInt(2), t)
	_ = triple.RawSet(VInt(3), VInt(0))
	return []Value{VTable(triple)}, nil
}

func biNext(vm *VM, args []Value) ([]Value, error) {
	t := first(args)
	if !t.IsTable() {
		return nil, typeErrorf("bad argument #1 to 'next' (table expected, got %s)", t.TypeName())
	}
	var key Value
	if len(args) > 1 {
		key = args[1]
	}
	k, v, ok := t.Table().Next(key)
	if !ok {
		return []Value{VNil()}, nil
	}
	return []Value{k, v}, nil
}

// biSelect implements select('#', ...) / select(n, ...) (spec.md §4.6).
func biSelect(vm *VM, args []Value) ([]Value, error) {
	if len(args) == 0 {
		return nil, typeErrorf("bad argument #1 to 'select' (number expected, got no value)")
	}
	rest := args[1:]
	if args[0].IsStr() && args[0].Str().String() == "#" {
		return []Value{VInt(int64(len(rest)))}, nil
	}
	n := int(args[0].AsFloat())
	if n < 0 {
		n = len(rest) + n + 1
	}
	if n < 1 || n > len(rest) {
		return []Value{}, nil
	}
	return rest[n-1:], nil
}

// biAssert implements assert(v, message, ...) — SUPPLEMENTED FEATURE 5:
// a custom message argument (of any type, not just string) is passed
// through verbatim as the raised error value, rather than being coerced
// to a string first.
func biAssert(vm *VM, args []Value) ([]Value, error) {
	if len(args) == 0 || !args[0].Truthy() {
		if len(args) > 1 {
			return nil, vm.raise(args[1])
		}
		return nil, vm.raise(VStrFromC("assertion failed!"))
	}
	return args, nil
}

func biRawGet(vm *VM, args []Value) ([]Value, error) {
	if len(args) < 2 || !args[0].IsTable() {
		return nil, typeErrorf("bad argument #1 to 'rawget' (table expected)")
	}
	v, _ := args[0].Table().RawGet(args[1])
	return []Value{v}, nil
}

func biRawSet(vm *VM, args []Value) ([]Value, error) {
	if len(args) < 3 || !args[0].IsTable() {
		return nil, typeErrorf("bad argument #1 to 'rawset' (table expected)")
	}
	if err := args[0].Table().RawSet(args[1], args[2]); err != nil {
		return nil, newRuntimeError(err)
	}
	return []Value{args[0]}, nil
}

func biRawEqual(vm *VM, args []Value) ([]Value, error) {
	if len(args) < 2 {
		return []Value{VBool(false)}, nil
	}
	return []Value{VBool(RawEqual(args[0], args[1]))}, nil
}

func biRawLen(vm *VM, args []Value) ([]Value, error) {
	v := first(args)
	switch {
	case v.IsTable():
		return []Value{VInt(v.Table().Len())}, nil
	case v.IsStr():
		return []Value{VInt(int64(v.Str().Len()))}, nil
	default:
		return nil, typeErrorf("table or string expected")
	}
}

func biSetMetatable(vm *VM, args []Value) ([]Value, error) {
	if len(args) == 0 || !args[0].IsTable() {
		return nil, typeErrorf("bad argument #1 to 'setmetatable' (table expected, got %s)", first(args).TypeName())
	}
	var mt *Table
	if len(args) > 1 && args[1].IsTable() {
		mt = args[1].Table()
	} else if len(args) > 1 && !args[1].IsNil() {
		return nil, typeErrorf("bad argument #2 to 'setmetatable' (nil or table expected)")
	}
	if err := SetMetatable(args[0].Table(), mt); err != nil {
		return nil, newRuntimeError(err)
	}
	return []Value{args[0]}, nil
}

func biGetMetatable(vm *VM, args []Value) ([]Value, error) {
	return []Value{GetMetatable(first(args))}, nil
}

// biCollectGarbage implements collectgarbage(opt, ...) over the GCShim
// placeholder (SUPPLEMENTED FEATURE 3).
func biCollectGarbage(vm *VM, args []Value) ([]Value, error) {
	opt := "collect"
	if len(args) > 0 && args[0].IsStr() {
		opt = args[0].Str().String()
	}
	g := vm.gc
	switch opt {
	case "collect":
		g.Collect()
		return []Value{VInt(0)}, nil
	case "stop":
		g.Stop()
		return nil, nil
	case "restart":
		g.Restart()
		return nil, nil
	case "isrunning":
		return []Value{VBool(g.IsRunning())}, nil
	case "step":
		return []Value{VBool(g.Step())}, nil
	case "count":
		return []Value{VNum(float64(g.TotalBytes()) / 1024)}, nil
	case "incremental":
		pause, stepmul := 0, 0
		if len(args) > 1 {
			pause = int(args[1].AsFloat())
		}
		if len(args) > 2 {
			stepmul = int(args[2].AsFloat())
		}
		g.SetIncremental(pause, stepmul)
		return nil, nil
	case "generational":
		minormul, majormul := 0, 0
		if len(args) > 1 {
			minormul = int(args[1].AsFloat())
		}
		if len(args) > 2 {
			majormul = int(args[2].AsFloat())
		}
		g.SetGenerational(minormul, majormul)
		return nil, nil
	default:
		return nil, typeErrorf("invalid option '%s' to 'collectgarbage'", opt)
	}
}

func biPrint(vm *VM, args []Value) ([]Value, error) {
	parts := make([]interface{}, len(args))
	for i, a := range args {
		parts[i] = ToString(a)
	}
	line := ""
	for i, p := range parts {
		if i > 0 {
			line += "\t"
		}
		line += fmt.Sprint(p)
	}
	fmt.Fprintln(vm.stdout, line)
	return nil, nil
}

// biError implements error(message, level) (spec.md §7 "User errors"): a
// string message is decorated with the source position of the statement
// that called error() when level >= 1 (level defaults to 1; level 0
// suppresses the prefix); any other value is raised verbatim.
func biError(vm *VM, args []Value) ([]Value, error) {
	v := first(args)
	level := int64(1)
	if len(args) > 1 && args[1].IsNumeric() {
		level = int64(args[1].AsFloat())
	}
	if v.IsStr() && level > 0 {
		if p := vm.Position(vm.currentPos); p.IsValid() {
			v = VStrFromC(fmt.Sprintf("%s:%d: %s", p.Filename, p.Line, v.Str().String()))
		}
	}
	return nil, vm.raise(v)
}

func biPCall(vm *VM, args []Value) ([]Value, error) {
	if len(args) == 0 {
		return nil, typeErrorf("bad argument #1 to 'pcall' (value expected)")
	}
	ok, res, err := PCall(vm, args[0], args[1:])
	if err != nil {
		return nil, err
	}
	return append([]Value{VBool(ok)}, res...), nil
}

func biXPCall(vm *VM, args []Value) ([]Value, error) {
	if len(args) < 2 {
		return nil, typeErrorf("bad argument #2 to 'xpcall' (value expected)")
	}
	ok, res, err := XPCall(vm, args[0], args[1], args[2:])
	if err != nil {
		return nil, err
	}
	return append([]Value{VBool(ok)}, res...), nil
}

// biUnpack implements unpack(t, i, j) — SUPPLEMENTED FEATURE's Open
// Question 2 resolution (spec.md §9): produces a genuine Multi so a call
// like `f(unpack(t))` expands t's elements as separate arguments, fixing
// the packed-table bug the C original's unpack left undocumented.
func biUnpack(vm *VM, args []Value) ([]Value, error) {
	if len(args) == 0 || !args[0].IsTable() {
		return nil, typeErrorf("bad argument #1 to 'unpack' (table expected, got %s)", first(args).TypeName())
	}
	t := args[0].Table()
	i := int64(1)
	if len(args) > 1 && args[1].IsNumeric() {
		i = int64(args[1].AsFloat())
	}
	j := t.Len()
	if len(args) > 2 && args[2].IsNumeric() {
		j = int64(args[2].AsFloat())
	}
	var out []Value
	for k := i; k <= j; k++ {
		v, _ := t.RawGet(VInt(k))
		out = append(out, v)
	}
	return out, nil
}

func biRequire(vm *VM, args []Value) ([]Value, error) {
	if len(args) == 0 || !args[0].IsStr() {
		return nil, typeErrorf("bad argument #1 to 'require' (string expected, got %s)", first(args).TypeName())
	}
	v, err := Require(vm, args[0].Str().String())
	if err != nil {
		return nil, err
	}
	return []Value{v}, nil
}

// biOsExit raises an *ExitError sentinel rather than calling os.Exit
// directly, so close-registered locals still run as the request unwinds
// and embedding hosts (or the CLI driver) decide how to terminate.
func biOsExit(vm *VM, args []Value) ([]Value, error) {
	code := 0
	if len(args) > 0 {
		switch {
		case args[0].Kind() == VKBool && !args[0].Bool():
			code = 1
		case args[0].IsNumeric():
			code = int(args[0].AsFloat())
		}
	}
	return nil, &ExitError{Code: code}
}

// coroutineTable implements the `coroutine` library (spec.md §4.8).
func coroutineTable() *Table {
	t := NewTable()
	set := func(name string, fn func(vm *VM, args []Value) ([]Value, error)) {
		_ = t.RawSet(VStrFromC(name), VNativeFn(&NativeFn{Name: "coroutine." + name, Fn: fn}))
	}
	set("create", func(vm *VM, args []Value) ([]Value, error) {
		f := first(args)
		if !f.IsCallable() {
			return nil, typeErrorf("bad argument #1 to 'create' (function expected, got %s)", f.TypeName())
		}
		return []Value{VCoroutine(NewCoroutine(f))}, nil
	})
	set("resume", func(vm *VM, args []Value) ([]Value, error) {
		if len(args) == 0 || args[0].Kind() != VKCoroutine {
			return nil, typeErrorf("bad argument #1 to 'resume' (coroutine expected)")
		}
		ok, res := args[0].Coroutine().Resume(vm, args[1:])
		return append([]Value{VBool(ok)}, res...), nil
	})
	set("yield", func(vm *VM, args []Value) ([]Value, error) {
		co := vm.activeCoroutine
		if co == nil {
			return nil, typeErrorf("attempt to yield from outside a coroutine")
		}
		return co.Yield(args), nil
	})
	set("status", func(vm *VM, args []Value) ([]Value, error) {
		if len(args) == 0 || args[0].Kind() != VKCoroutine {
			return nil, typeErrorf("bad argument #1 to 'status' (coroutine expected)")
		}
		return []Value{VStrFromC(args[0].Coroutine().Status().String())}, nil
	})
	set("running", func(vm *VM, args []Value) ([]Value, error) {
		co, isMain := coroutineRunning(vm)
		if co == nil {
			return []Value{VNil(), VBool(isMain)}, nil
		}
		return []Value{VCoroutine(co), VBool(isMain)}, nil
	})
	set("isyieldable", func(vm *VM, args []Value) ([]Value, error) {
		return []Value{VBool(coroutineIsYieldable(vm))}, nil
	})
	set("wrap", func(vm *VM, args []Value) ([]Value, error) {
		f := first(args)
		if !f.IsCallable() {
			return nil, typeErrorf("bad argument #1 to 'wrap' (function expected, got %s)", f.TypeName())
		}
		return []Value{VNativeFn(WrapCoroutine(f))}, nil
	})
	return t
}

// packageTable implements the `package` global (spec.md §4.9): a live
// `preload` table, path/cpath strings, and a `loaded` table that is a
// snapshot of PackageState's cache taken when the VM is built; modules
// require() loads later are cached in PackageState only and do not appear
// in package.loaded.
func packageTable(vm *VM) *Table {
	t := NewTable()
	_ = t.RawSet(VStrFromC("path"), VStrFromC(vm.pkg.path))
	_ = t.RawSet(VStrFromC("cpath"), VStrFromC(vm.pkg.cpath))
	_ = t.RawSet(VStrFromC("loaded"), VTable(vm.pkg.LoadedTable()))

	preload := NewTable()
	_ = t.RawSet(VStrFromC("preload"), VTable(preload))
	// The table itself stays empty: __newindex writes go to
	// PackageState.preload and __index reads come from it, so
	// `package.preload["m"] = fn` (the idiomatic registration form) and
	// Preload() (used by embedding hosts wiring native modules) share one
	// backing store.
	trampoline := NewTable()
	_ = trampoline.RawSet(VStrFromC(mmNewIndex), VNativeFn(&NativeFn{
		Name: "package.preload.__newindex",
		Fn: func(vm *VM, args []Value) ([]Value, error) {
			if len(args) < 3 || !args[1].IsStr() {
				return nil, typeErrorf("package.preload keys must be strings")
			}
			if args[2].IsNil() {
				delete(vm.pkg.preload, args[1].Str().String())
				return nil, nil
			}
			vm.pkg.Preload(args[1].Str().String(), args[2])
			return nil, nil
		},
	}))
	_ = trampoline.RawSet(VStrFromC(mmIndex), VNativeFn(&NativeFn{
		Name: "package.preload.__index",
		Fn: func(vm *VM, args []Value) ([]Value, error) {
			if len(args) < 2 || !args[1].IsStr() {
				return []Value{VNil()}, nil
			}
			return []Value{vm.pkg.preload[args[1].Str().String()]}, nil
		},
	}))
	preload.SetMetatableRaw(trampoline)
	return t
}

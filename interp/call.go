package interp

// Call dispatches callee(args...) per spec.md §4.5: native functions run
// directly; closures get a fresh environment parented at their capture
// site, with formals bound (padded with Nil) and "..." bound to the
// excess arguments; non-callables fall back to __call with the operand
// prepended. VM control-flow flags are saved and restored around the
// call (spec.md §5's re-entrancy requirement), mirroring the teacher's
// own frame.clone()/save-restore discipline around callBin/runCfg.
func Call(vm *VM, callee Value, args []Value) ([]Value, error) {
	switch callee.kind {
	case VKNativeFn:
		return callNative(vm, callee.fn, args)
	case VKClosure:
		return callClosure(vm, callee.cl, args)
	default:
		mm, ok := lookupMetamethod(callee, mmCall)
		if !ok {
			return nil, typeErrorf("attempt to call a %s value", callee.TypeName())
		}
		return Call(vm, mm, append([]Value{callee}, args...))
	}
}

func callNative(vm *VM, fn *NativeFn, args []Value) ([]Value, error) {
	saved := vm.resetControlFlow()
	defer vm.restoreControlFlow(saved)
	return fn.Fn(vm, args)
}

func callClosure(vm *VM, cl *Closure, args []Value) (result []Value, rerr error) {
	callEnv := NewEnv(cl.Env)
	for i, name := range cl.Params {
		var v Value
		if i < len(args) {
			v = args[i]
		}
		callEnv.Declare(name, v, true)
	}
	if cl.HasVararg {
		var extra []Value
		if len(args) > len(cl.Params) {
			extra = append(extra, args[len(cl.Params):]...)
		}
		callEnv.Declare(varargIdent, VMulti(extra), true)
	}

	saved := vm.resetControlFlow()
	savedEnv := vm.env
	vm.env = callEnv
	defer func() {
		errv := vm.errObj
		if rerr != nil {
			errv = errValueOf(rerr)
		}
		if closeErr := callEnv.RunClosers(vm, errv); closeErr != nil && rerr == nil {
			rerr = closeErr
			result = nil
		}
		vm.env = savedEnv
		vm.restoreControlFlow(saved)
	}()

	if rerr = ExecBlock(vm, cl.Body); rerr != nil {
		return nil, rerr
	}
	if vm.returnPending {
		return vm.returnValue, nil
	}
	return nil, nil
}

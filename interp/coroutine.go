package interp

import (
	"fmt"
)

// CoStatus is one of the four coroutine states spec.md §4.8 names.
type CoStatus int

const (
	CoSuspended CoStatus = iota
	CoRunning
	CoNormal // resumed another coroutine and is waiting on it
	CoDead
)

func (s CoStatus) String() string {
	switch s {
	case CoSuspended:
		return "suspended"
	case CoRunning:
		return "running"
	case CoNormal:
		return "normal"
	case CoDead:
		return "dead"
	default:
		return "dead"
	}
}

// Coroutine is a cooperative green thread. spec.md §9's Open Question 4
// leaves the suspension mechanism unspecified beyond "some representation
// of a paused call stack"; the original_source/ C engine saves a
// (block,pc) pair and re-enters the block walker at that offset on
// resume. This Go port instead runs the coroutine body on its own real
// goroutine and blocks it on an unbuffered channel at every yield point:
// the goroutine's own Go call stack IS the paused continuation, which is
// the natural idiom once yield doesn't have to unwind back through
// ExecBlock by hand (spec.md §9's own invitation to pick "whatever
// representation is natural in the host language").
type Coroutine struct {
	status CoStatus
	fn     Value // the function the coroutine body runs

	resumeCh chan []Value // main -> coroutine: arguments for Resume/first call
	yieldCh  chan coResult // coroutine -> main: yielded/returned values or error

	started bool
	parent  *Coroutine // the coroutine (or nil for the main thread) that resumed this one
}

type coResult struct {
	values []Value
	err    error
	done   bool // true once the coroutine function returns or errors (CoDead)
}

// NewCoroutine implements coroutine.create(f) (spec.md §4.8).
func NewCoroutine(fn Value) *Coroutine {
	return &Coroutine{
		status:   CoSuspended,
		fn:       fn,
		resumeCh: make(chan []Value),
		yieldCh:  make(chan coResult),
	}
}

// Resume implements coroutine.resume(co, ...) (spec.md §4.8): transfers
// control to co, blocking the caller until co yields, returns, or errors.
// Resuming a non-suspended coroutine is a documented failure, reported as
// (false, "cannot resume ...") rather than a raised error, matching the
// Lua-family convention spec.md §4.8 follows.
func (co *Coroutine) Resume(vm *VM, args []Value) (bool, []Value) {
	if co.status != CoSuspended {
		return false, []Value{VStrFromC(fmt.Sprintf("cannot resume %s coroutine", co.status))}
	}

	caller := vm.activeCoroutine
	if caller != nil {
		caller.status = CoNormal
	}
	co.parent = caller
	co.status = CoRunning
	vm.activeCoroutine = co

	if !co.started {
		co.started = true
		go co.run(vm, args)
	} else {
		co.resumeCh <- args
	}

	res := <-co.yieldCh

	vm.activeCoroutine = caller
	if caller != nil {
		caller.status = CoRunning
	}
	if res.done {
		co.status = CoDead
	} else {
		co.status = CoSuspended
	}

	if res.err != nil {
		return false, []Value{errValueOf(res.err)}
	}
	return true, res.values
}

// run is the coroutine's own goroutine body. It executes fn to
// completion, reporting the final return (or error) as a done coResult;
// any Yield call made from within fn's call tree (via co.Yield, which
// is only ever invoked while this goroutine is the one calling it —
// spec.md §4.8's "yield is only valid inside the coroutine that is
// currently running") blocks on co.yieldCh/co.resumeCh directly, with no
// further involvement from run itself.
func (co *Coroutine) run(vm *VM, args []Value) {
	coVM := vm.forCoroutine(co)
	res, err := Call(coVM, co.fn, args)
	co.yieldCh <- coResult{values: res, err: err, done: true}
}

// Yield implements coroutine.yield(...) (spec.md §4.8): suspends the
// currently running coroutine, handing vals back to whoever resumed it,
// and blocks until the next Resume call supplies the arguments this
// yield expression evaluates to.
func (co *Coroutine) Yield(vals []Value) []Value {
	co.yieldCh <- coResult{values: vals, done: false}
	return <-co.resumeCh
}

// Status implements coroutine.status(co) (spec.md §4.8).
func (co *Coroutine) Status() CoStatus { return co.status }

// forCoroutine returns a VM view scoped to co: a shallow copy sharing the
// global environment and package state but with its own control-flow
// flags and error-frame stack, since a coroutine's call stack and a
// pcall nesting are independent of whichever goroutine resumed it.
func (vm *VM) forCoroutine(co *Coroutine) *VM {
	child := &VM{
		env:               vm.universe,
		universe:          vm.universe,
		fset:              vm.fset,
		pkg:               vm.pkg,
		gc:                vm.gc,
		stdin:             vm.stdin,
		stdout:            vm.stdout,
		stderr:            vm.stderr,
		diagnostics:       vm.diagnostics,
		maxLoopIterations: vm.maxLoopIterations,
		sourceLoader:      vm.sourceLoader,
		activeCoroutine:   co,
	}
	return child
}

// ActiveCoroutine exposes the VM's currently running coroutine (nil at
// the top level) to embedding hosts — e.g. a native function registered
// from outside this package that needs to call Yield on whichever
// coroutine is executing it, the same access coroutine.yield's own
// builtin (builtins.go) has via the unexported field directly.
func (vm *VM) ActiveCoroutine() (*Coroutine, bool) {
	return coroutineRunning(vm)
}

// coroutineRunning implements coroutine.running() (spec.md §4.8): returns
// the active coroutine and whether it is the "main" coroutine (nil
// activeCoroutine means the top-level thread, reported as isMain=true).
func coroutineRunning(vm *VM) (*Coroutine, bool) {
	if vm.activeCoroutine == nil {
		return nil, true
	}
	return vm.activeCoroutine, false
}

// coroutineIsYieldable implements coroutine.isyieldable() (spec.md §4.8):
// true whenever running inside some coroutine (not the main thread).
func coroutineIsYieldable(vm *VM) bool {
	return vm.activeCoroutine != nil
}

// WrapCoroutine implements coroutine.wrap(f) (spec.md §4.8): creates one
// coroutine over f and returns a native function that resumes it on every
// call, propagating a resume failure as a raised error
// instead of a (false, msg) pair (the wrap()/resume() distinction spec.md
// documents).
func WrapCoroutine(fn Value) *NativeFn {
	co := NewCoroutine(fn)
	return &NativeFn{
		Name: "wrapped coroutine",
		Fn: func(vm *VM, args []Value) ([]Value, error) {
			ok, res := co.Resume(vm, args)
			if !ok {
				return nil, typeErrorf("%s", ToString(first(res)))
			}
			return res, nil
		},
	}
}

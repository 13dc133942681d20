package interp

import (
	"fmt"
	"go/token"
	"io"
	"os"
)

// errorFrame is one entry of the LIFO protected-call stack (spec.md §4.7).
// It has no jump target (unlike the C original's setjmp target): errors
// travel as ordinary Go error returns, and each scope runs its own
// closers in a defer as they pass, so an errorFrame only records the
// environment at push time.
type errorFrame struct {
	env *Env
}

// VM bundles the state described in spec.md §3 "VM": the current
// environment, transient control-flow flags, the error-frame stack, and
// the active coroutine. There is no resume-point descriptor: a suspended
// coroutine waits on its own goroutine (coroutine.go).
type VM struct {
	env *Env

	breakPending  bool
	returnPending bool
	returnValue   []Value
	gotoPending   bool
	gotoLabel     string
	coYielding    bool

	errFrames []errorFrame
	errObj    Value

	// currentPos tracks the position of the statement being executed, for
	// error annotation and error()'s level-1 message decoration (§6/§7:
	// diagnostics include the source line number when known).
	currentPos token.Pos

	activeCoroutine *Coroutine

	fset *token.FileSet

	pkg *PackageState // require()/package table state, interp/require.go

	gc *GCShim

	stdin          io.Reader
	stdout, stderr io.Writer
	diagnostics    func(msg string)

	maxLoopIterations int64

	universe *Env // global environment; VM.env always descends from this

	sourceLoader SourceLoaderFunc
}

// SourceLoaderFunc hands a resolved module path and its require() name to
// the embedding host, which owns the lexer/parser (spec.md §1 scopes
// those out of this module): it should parse and execute path's source
// under vm, returning whatever the chunk's top-level return produces.
type SourceLoaderFunc func(vm *VM, path, name string) ([]Value, error)

// DefaultMaxLoopIterations is the iteration cap spec.md §4.4 requires for
// while/repeat loops, matching original_source/include/interpreter.h's
// LUA_PLUS_MAX_LOOP_ITERS.
const DefaultMaxLoopIterations = 10_000_000

// NewVM constructs a VM with a fresh global environment and the builtins
// installed (interp/builtins.go).
func NewVM(opts Options) *VM {
	global := NewEnv(nil)
	vm := &VM{
		env:               global,
		universe:          global,
		fset:              token.NewFileSet(),
		gc:                newGCShim(),
		stdin:             opts.stdinOr(os.Stdin),
		stdout:            opts.stdoutOr(os.Stdout),
		stderr:            opts.stderrOr(os.Stderr),
		diagnostics:       opts.Diagnostics,
		maxLoopIterations: opts.maxLoopIterationsOr(DefaultMaxLoopIterations),
		sourceLoader:      opts.SourceLoader,
	}
	vm.pkg = newPackageState(vm, opts)
	installBuiltins(vm)
	return vm
}

// GC exposes the placeholder collector (interp/gcshim.go) for hosts that
// want to drive collectgarbage()-equivalent tuning from outside a script
// (e.g. cmd/luax's luax.toml [gc] section).
func (vm *VM) GC() *GCShim { return vm.gc }

// Position renders pos using the VM's shared FileSet, the same
// fset.Position(pos) idiom the teacher uses throughout interp.go.
func (vm *VM) Position(pos token.Pos) token.Position {
	if vm.fset == nil || pos == token.NoPos {
		return token.Position{}
	}
	return vm.fset.Position(pos)
}

// resetControlFlow clears the transient per-statement flags; used by call
// machinery (save/restore across re-entrant calls, spec.md §5) and by
// loop/block boundaries that consume a flag.
func (vm *VM) resetControlFlow() (saved vmFlags) {
	saved = vmFlags{
		breakPending:  vm.breakPending,
		returnPending: vm.returnPending,
		returnValue:   vm.returnValue,
		gotoPending:   vm.gotoPending,
		gotoLabel:     vm.gotoLabel,
		coYielding:    vm.coYielding,
	}
	vm.breakPending = false
	vm.returnPending = false
	vm.returnValue = nil
	vm.gotoPending = false
	vm.gotoLabel = ""
	vm.coYielding = false
	return saved
}

type vmFlags struct {
	breakPending  bool
	returnPending bool
	returnValue   []Value
	gotoPending   bool
	gotoLabel     string
	coYielding    bool
}

func (vm *VM) restoreControlFlow(saved vmFlags) {
	vm.breakPending = saved.breakPending
	vm.returnPending = saved.returnPending
	vm.returnValue = saved.returnValue
	vm.gotoPending = saved.gotoPending
	vm.gotoLabel = saved.gotoLabel
	vm.coYielding = saved.coYielding
}

// diagf routes a non-fatal diagnostic through the configured sink, or to
// stderr with the CLI's "[LuaX]:" prefix when no sink is set.
func (vm *VM) diagf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if vm.diagnostics != nil {
		vm.diagnostics(msg)
		return
	}
	fmt.Fprintf(vm.stderr, "[LuaX]: %s\n", msg)
}

// loopCapDiagnostic reports a while/repeat/for loop hitting the iteration
// cap (spec.md §4.4/§5: the cap "emits a diagnostic and exits").
func (vm *VM) loopCapDiagnostic() {
	vm.diagf("loop exceeded %d iterations; terminating", vm.maxLoopIterations)
}

// zeroStepDiagnostic reports a numeric for with step 0, which runs zero
// iterations (spec.md §4.4, §7: warning only, not an error).
func (vm *VM) zeroStepDiagnostic() {
	vm.diagf("'for' step is zero; loop skipped")
}

// anyControlFlowPending reports whether the statement executor should stop
// walking the current block (spec.md §4.4).
func (vm *VM) anyControlFlowPending() bool {
	return vm.breakPending || vm.returnPending || vm.gotoPending || vm.coYielding
}

// Options configures a VM/Interpreter, mirroring the teacher's own Options
// struct shape (GoPath/BuildTags/Stdin/Stdout/Stderr/Args/Env/
// SourcecodeFilesystem/Unrestricted) adapted to LuaX's domain.
type Options struct {
	// LuaPath/LuaCPath become the first segment of package.path/
	// package.cpath (spec.md §6), with the built-in default appended after
	// it; when empty, the LUA_PATH/LUA_CPATH environment variable takes
	// that place, and with neither set the default is used alone.
	LuaPath  string
	LuaCPath string

	Stdin          io.Reader
	Stdout, Stderr io.Writer

	// Diagnostics receives non-fatal warnings (loop-cap overflow, zero
	// for-step) instead of the default "[LuaX]:"-prefixed stderr line.
	Diagnostics func(msg string)

	Args []string
	Env  map[string]string

	MaxLoopIterations int64

	Unrestricted bool

	// Parse supplies Interpreter.Eval/EvalPath's lexer+parser front end
	// (spec.md §1 scopes lexing/parsing out of this module); left nil,
	// the VM can still be driven directly via ExecBlock/Call.
	Parse ParseFunc

	// SourceLoader lets the embedding host (cmd/luax, or a test harness)
	// supply the parse-then-exec pipeline require()'s file searcher needs;
	// nil means require() can resolve preloaded modules but not .lua files.
	SourceLoader SourceLoaderFunc
}

func (o Options) stdinOr(d io.Reader) io.Reader {
	if o.Stdin != nil {
		return o.Stdin
	}
	return d
}

func (o Options) stdoutOr(d io.Writer) io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return d
}

func (o Options) stderrOr(d io.Writer) io.Writer {
	if o.Stderr != nil {
		return o.Stderr
	}
	return d
}

func (o Options) maxLoopIterationsOr(d int64) int64 {
	if o.MaxLoopIterations > 0 {
		return o.MaxLoopIterations
	}
	return d
}

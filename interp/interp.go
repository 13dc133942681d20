package interp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync/atomic"
)

// Interpreter is the embeddable entry point named in spec.md §6: it owns
// one VM plus the Go-side bookkeeping (cancellation id, Panic capture)
// the teacher's own Interpreter carries, adapted from a Go-compilation
// front end to LuaX's parse-then-exec pipeline. The parser itself is an
// external collaborator (spec.md §1); Interpreter.Eval/EvalPath delegate
// parsing to Options.Parse, the hand-off point an embedding host fills in
// with a concrete parser (cmd/luax leaves it nil).
type Interpreter struct {
	vm   *VM
	opts Options

	id uint64 // bumped by EvalWithContext when its context is cancelled; the evaluation goroutine does not read it

	stdin          io.Reader
	stdout, stderr io.Writer
}

// ParseFunc turns source text into a LuaX chunk body (an AST_BLOCK Node)
// ready for ExecBlock; it is supplied by the embedding host since
// lexing/parsing are out of this module's scope (spec.md §1 Non-goals).
type ParseFunc func(src, chunkName string) (*Node, error)

// New builds an Interpreter the way the teacher's own New(Options)
// constructs an *Interpreter: resolve IO defaults, build the underlying
// engine (here a *VM via NewVM), and return immediately with nothing
// evaluated yet.
func New(options Options) *Interpreter {
	vm := NewVM(options)
	return &Interpreter{
		vm:     vm,
		opts:   options,
		stdin:  vm.stdin,
		stdout: vm.stdout,
		stderr: vm.stderr,
	}
}

// Panic mirrors the teacher's own Panic struct: a recovered Go panic
// (which should never legitimately occur inside this module's own
// control flow — every error path uses ordinary `error` returns — but
// can still arise from a buggy native function registered by an
// embedding host) captured with a readable call stack.
type Panic struct {
	Value interface{}
	// Callers is the raw call stack as returned by runtime.Callers.
	Callers []uintptr
	// Stack is the human-readable form produced by debug.Stack.
	Stack []byte
}

func (p Panic) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Eval parses and executes src as a fresh chunk, returning the values of
// its top-level return statement, or none if no return ran (spec.md §6's
// "the main entry evaluates a chunk and returns its results"). Eval requires opts.Parse to be set;
// an Interpreter built without a parser can still run code built
// programmatically by calling ExecBlock/Call directly.
func (interp *Interpreter) Eval(src string) (res []Value, err error) {
	return interp.EvalWithContext(context.Background(), src)
}

// EvalWithContext is Eval with cancellation, mirroring the teacher's own
// EvalWithContext: run the evaluation on its own goroutine, recover any
// panic into a Panic value (the native-function-misbehaves case noted
// above), and race it against ctx.Done().
func (interp *Interpreter) EvalWithContext(ctx context.Context, src string) (res []Value, err error) {
	if interp.opts.Parse == nil {
		return nil, errors.New("interp: no Parse function configured (Options.Parse is required for Eval)")
	}

	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var pc [64]uintptr
				n := runtime.Callers(1, pc[:])
				err = Panic{Value: r, Callers: pc[:n], Stack: debug.Stack()}
			}
			close(done)
		}()
		res, err = interp.evalChunk(src, DefaultChunkName)
	}()

	select {
	case <-ctx.Done():
		atomic.AddUint64(&interp.id, 1)
		return nil, ctx.Err()
	case <-done:
	}
	return res, err
}

// DefaultChunkName names an anonymous chunk the way the teacher's own
// DefaultSourceName names its REPL/string-eval input.
const DefaultChunkName = "<luax>"

func (interp *Interpreter) evalChunk(src, name string) ([]Value, error) {
	body, err := interp.opts.Parse(src, name)
	if err != nil {
		return nil, err
	}
	chunkEnv := NewEnv(interp.vm.universe)
	interp.vm.env = chunkEnv
	saved := interp.vm.resetControlFlow()
	defer func() {
		_ = chunkEnv.RunClosers(interp.vm, interp.vm.errObj)
		interp.vm.env = interp.vm.universe
		interp.vm.restoreControlFlow(saved)
	}()
	if err := ExecBlock(interp.vm, body); err != nil {
		return nil, err
	}
	if interp.vm.returnPending {
		return interp.vm.returnValue, nil
	}
	return nil, nil
}

// EvalPath reads and evaluates the chunk at path (spec.md §6 `luax
// file.lua`).
func (interp *Interpreter) EvalPath(path string) ([]Value, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return interp.evalChunk(string(b), path)
}

// VM exposes the underlying engine for hosts that need direct access
// (registering native functions, inspecting the global environment).
func (interp *Interpreter) VM() *VM { return interp.vm }

// REPL runs a read-eval-print loop over the Interpreter's configured
// stdin/stdout/stderr, following the teacher's own REPL structure:
// a scanner goroutine feeding a lines channel, a signal-trapping
// goroutine cancelling the in-flight Eval on Ctrl-C, and a select loop
// driving prompt/eval/print — adapted from Go source chunks to LuaX
// source chunks.
func (interp *Interpreter) REPL() ([]Value, error) {
	in, out, errs := interp.stdin, interp.stdout, interp.stderr
	ctx, cancel := context.WithCancel(context.Background())
	end := make(chan struct{})
	sig := make(chan os.Signal, 1)
	lines := make(chan string)
	prompt := getPrompt(in, out)
	s := bufio.NewScanner(in)
	var res []Value
	var err error
	src := ""

	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	prompt(nil)

	go func() {
		defer close(end)
		for s.Scan() {
			lines <- s.Text()
		}
		if e := s.Err(); e != nil {
			fmt.Fprintln(errs, e)
		}
	}()

	go func() {
		for {
			select {
			case <-sig:
				cancel()
				lines <- ""
			case <-end:
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-end:
			cancel()
			return res, err
		case line = <-lines:
			src += line + "\n"
		}

		res, err = interp.EvalWithContext(ctx, src)
		if err != nil {
			if exit, ok := err.(*ExitError); ok {
				cancel()
				return res, exit
			}
			switch e := err.(type) {
			case Panic:
				fmt.Fprintln(errs, e.Value)
				fmt.Fprintln(errs, string(e.Stack))
			default:
				fmt.Fprintln(errs, "[LuaX]:", err)
			}
		} else {
			for _, v := range res {
				fmt.Fprintln(out, ":", ToString(v))
			}
		}
		if errors.Is(err, context.Canceled) {
			ctx, cancel = context.WithCancel(context.Background())
		}
		src = ""
		prompt(res)
	}
}

func doPrompt(out io.Writer) func([]Value) {
	return func(res []Value) {
		fmt.Fprint(out, "> ")
	}
}

// getPrompt returns a function which prints a prompt only if input is a
// terminal, exactly the teacher's own getPrompt/YAEGI_PROMPT override
// idiom (renamed to this module's own env var).
func getPrompt(in io.Reader, out io.Writer) func([]Value) {
	forcePrompt, _ := strconv.ParseBool(os.Getenv("LUAX_PROMPT"))
	if forcePrompt {
		return doPrompt(out)
	}
	s, ok := in.(interface{ Stat() (os.FileInfo, error) })
	if !ok {
		return func([]Value) {}
	}
	stat, err := s.Stat()
	if err == nil && stat.Mode()&os.ModeCharDevice != 0 {
		return doPrompt(out)
	}
	return func([]Value) {}
}

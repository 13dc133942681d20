// Command luax runs LuaX source: a file, a literal "--" source argument,
// or (with no argument) standard input, per spec.md §6's CLI surface.
//
// No parser is linked into this command (Options.Parse is nil), so every
// source form, and each REPL line, ends in Interpreter.Eval's
// missing-parser error; -selftest drives the interpreter directly and
// runs to completion.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	_ "go.uber.org/automaxprocs" // tune GOMAXPROCS to the container's cgroup quota before anything else runs
	"golang.org/x/sync/errgroup"

	"github.com/kenseitehdev/luaX-sub000/internal/config"
	"github.com/kenseitehdev/luaX-sub000/interp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "-selftest" {
		return runSelfTest(stdout, stderr)
	}
	dump := false
	if len(args) > 0 && args[0] == "-dump" {
		dump = true
		args = args[1:]
	}

	cfg, err := config.Load("luax.toml")
	if err != nil {
		fmt.Fprintf(stderr, "[LuaX]: %v\n", err)
		return 1
	}

	var luaPath, luaCPath string
	var maxLoop int64
	luaPath = os.Getenv("LUA_PATH")
	luaCPath = os.Getenv("LUA_CPATH")
	cfg.ApplyTo(&luaPath, &luaCPath, &maxLoop)

	it := interp.New(interp.Options{
		LuaPath:           luaPath,
		LuaCPath:          luaCPath,
		MaxLoopIterations: maxLoop,
		Stdin:             stdin,
		Stdout:            stdout,
		Stderr:            stderr,
		Args:              args,
		Parse:             nil, // supplied by the embedding host's lexer/parser (spec.md §1)
	})
	applyGCConfig(it.VM(), cfg)

	src, name, err := sourceFor(args, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "[LuaX]: %v\n", err)
		return 1
	}
	if src == "" && name == "" {
		_, err := it.REPL()
		if err != nil {
			var exit *interp.ExitError
			if errors.As(err, &exit) {
				return exit.Code
			}
			return 1
		}
		return 0
	}

	res, err := it.Eval(src)
	if err != nil {
		var exit *interp.ExitError
		if errors.As(err, &exit) {
			return exit.Code
		}
		printDiagnostic(it, err, stderr)
		return 1
	}
	for _, v := range res {
		if dump {
			fmt.Fprintln(stdout, interp.DumpValue(v))
			continue
		}
		fmt.Fprintln(stdout, interp.ToString(v))
	}
	return 0
}

// sourceFor resolves spec.md §6's three invocation forms: a file path
// (.lua/.lx), a literal source string after "--", or stdin when args is
// empty. An empty (src="", name="") return with a nil error means "run
// the REPL instead."
func sourceFor(args []string, stdin io.Reader) (src, name string, err error) {
	switch {
	case len(args) == 0:
		if f, ok := stdin.(*os.File); ok {
			if fi, statErr := f.Stat(); statErr == nil && fi.Mode()&os.ModeCharDevice != 0 {
				return "", "", nil // interactive terminal, no piped input: start the REPL
			}
		}
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", err
		}
		return string(b), "<stdin>", nil
	case args[0] == "--":
		if len(args) < 2 {
			return "", "", fmt.Errorf("expected a source literal after '--'")
		}
		return args[1], "<argument>", nil
	default:
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", err
		}
		return string(b), args[0], nil
	}
}

// printDiagnostic writes err with spec.md §6's "[LuaX]:" prefix, folding
// in the source position when the error carries one.
func printDiagnostic(it *interp.Interpreter, err error, stderr io.Writer) {
	if p, ok := err.(interp.Panic); ok {
		fmt.Fprintf(stderr, "[LuaX]: %v\n", p.Value)
		return
	}
	fmt.Fprintf(stderr, "[LuaX]: %v\n", err)
}

// runSelfTest implements a `-selftest` smoke check: fan out a batch of
// independent interpreters, each driving a resume/yield round-trip
// through its own coroutine, collected via errgroup.Group — concurrency
// of independent *VMs* on the host process, not of a single evaluator
// (spec.md §5 scopes single-VM execution as strictly cooperative; this
// only exercises many separate VMs making progress at once, the same use
// `interp/coroutine_test.go`'s concurrent test makes of errgroup).
func runSelfTest(stdout, stderr io.Writer) int {
	const n = 16
	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			vm := interp.NewVM(interp.Options{})
			body := interp.VNativeFn(&interp.NativeFn{Fn: func(vm *interp.VM, args []interp.Value) ([]interp.Value, error) {
				co, _ := vm.ActiveCoroutine()
				got := co.Yield([]interp.Value{interp.VInt(int64(i))})
				return []interp.Value{interp.VInt(got[0].Int() + args[0].Int())}, nil
			}})
			co := interp.NewCoroutine(body)
			ok, res := co.Resume(vm, []interp.Value{interp.VInt(int64(i))})
			if !ok || res[0].Int() != int64(i) {
				return fmt.Errorf("selftest %d: first yield = %v, want %d", i, res, i)
			}
			ok, res = co.Resume(vm, []interp.Value{interp.VInt(int64(i))})
			if !ok || res[0].Int() != int64(2*i) {
				return fmt.Errorf("selftest %d: final return = %v, want %d", i, res, 2*i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(stderr, "[LuaX]: selftest failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "selftest ok: %d coroutines\n", n)
	return 0
}

func applyGCConfig(vm *interp.VM, cfg *config.File) {
	gc := vm.GC()
	switch cfg.GC.Mode {
	case "generational":
		gc.SetGenerational(cfg.GC.MinorMul, cfg.GC.MajorMul)
	case "incremental", "":
		if cfg.GC.Pause != 0 || cfg.GC.StepMul != 0 {
			gc.SetIncremental(cfg.GC.Pause, cfg.GC.StepMul)
		}
	}
}

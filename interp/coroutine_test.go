package interp

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCoroutineResumeYieldRoundTrip(t *testing.T) {
	vm := newTestVM(t)

	body := VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		co, _ := coroutineRunning(vm)
		require.NotNil(t, co, "a running coroutine body must see itself as activeCoroutine")

		got := co.Yield([]Value{VInt(1)})
		require.Len(t, got, 1)
		return []Value{VInt(got[0].Int() + args[0].Int())}, nil
	}})

	co := NewCoroutine(body)
	require.Equal(t, CoSuspended, co.Status())

	ok, res := co.Resume(vm, []Value{VInt(10)})
	require.True(t, ok)
	if diff := cmp.Diff([]Value{VInt(1)}, res, valueCmp); diff != "" {
		t.Errorf("first yield mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, CoSuspended, co.Status())

	ok, res = co.Resume(vm, []Value{VInt(100)})
	require.True(t, ok)
	if diff := cmp.Diff([]Value{VInt(110)}, res, valueCmp); diff != "" {
		t.Errorf("final return mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, CoDead, co.Status())
}

func TestCoroutineResumeDeadFails(t *testing.T) {
	vm := newTestVM(t)
	body := VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		return []Value{VInt(1)}, nil
	}})
	co := NewCoroutine(body)

	ok, _ := co.Resume(vm, nil)
	require.True(t, ok)
	require.Equal(t, CoDead, co.Status())

	ok, res := co.Resume(vm, nil)
	require.False(t, ok)
	require.Len(t, res, 1)
	require.Contains(t, res[0].Str().String(), "cannot resume")
}

func TestCoroutineResumePropagatesError(t *testing.T) {
	vm := newTestVM(t)
	body := VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		return nil, typeErrorf("coroutine body failed")
	}})
	co := NewCoroutine(body)

	ok, res := co.Resume(vm, nil)
	require.False(t, ok)
	require.Equal(t, "coroutine body failed", res[0].Str().String())
	require.Equal(t, CoDead, co.Status())
}

func TestWrapCoroutineRaisesInsteadOfReturningFalse(t *testing.T) {
	vm := newTestVM(t)
	wrapped := WrapCoroutine(VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		return nil, typeErrorf("wrapped failure")
	}}))

	_, err := Call(vm, VNativeFn(wrapped), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "wrapped failure")
}

func TestCoroutineIsYieldableOnlyInsideCoroutine(t *testing.T) {
	vm := newTestVM(t)
	require.False(t, coroutineIsYieldable(vm))

	body := VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		require.True(t, coroutineIsYieldable(vm))
		return nil, nil
	}})
	co := NewCoroutine(body)
	co.Resume(vm, nil)
}

// TestManyIndependentCoroutinesConcurrently runs N independent
// resume/yield round-trips in parallel, each against its own *VM, via an
// errgroup.Group — concurrency of independent *test harnesses*, not of a
// single VM's evaluator (spec.md §5 forbids the latter; nothing forbids
// many separate VMs making progress on separate goroutines at once).
func TestManyIndependentCoroutinesConcurrently(t *testing.T) {
	const n = 32
	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			vm := newTestVM(t)
			body := VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
				got := vm.activeCoroutine.Yield([]Value{VInt(int64(i))})
				return []Value{VInt(got[0].Int() + args[0].Int())}, nil
			}})
			co := NewCoroutine(body)
			ok, res := co.Resume(vm, []Value{VInt(int64(i))})
			if !ok || res[0].Int() != int64(i) {
				t.Errorf("coroutine %d: first yield = %v, want %d", i, res, i)
			}
			ok, res = co.Resume(vm, []Value{VInt(int64(i))})
			if !ok || res[0].Int() != int64(2*i) {
				t.Errorf("coroutine %d: final return = %v, want %d", i, res, 2*i)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

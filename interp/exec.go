package interp

import "go/token"

// ExecBlock walks block.stmts under vm.env, honouring the five transient
// control-flow signals described in spec.md §4.4: return/break propagate
// immediately; goto jumps to a same-block label or propagates outward;
// an error return unwinds through Go's own call stack (see errors.go).
// ExecBlock does NOT introduce a new scope itself — callers that need a
// fresh lexical scope for the block (every statement position except a
// function body, which reuses its call environment) use execScopedBlock.
func ExecBlock(vm *VM, block *Node) error {
	labels := scanLabels(block.stmts)
	pc := 0
	for pc < len(block.stmts) {
		stmt := block.stmts[pc]
		if err := execStmt(vm, stmt); err != nil {
			return vm.annotate(err)
		}
		if vm.gotoPending {
			if idx, ok := labels[vm.gotoLabel]; ok {
				vm.gotoPending = false
				pc = idx
				continue
			}
			// Not declared here: propagate outward (spec.md §4.4 Goto).
			return nil
		}
		if vm.anyControlFlowPending() {
			return nil
		}
		pc++
	}
	return nil
}

// scanLabels pre-scans a block's statements for AST_LABEL nodes, per
// spec.md §4.4's "a block pre-scans its statements for labels." This is
// redone on every ExecBlock call (the teacher-adjacent O(labels×stmts)
// trade-off spec.md §9 Open Question 3 accepts for a tree-walker).
func scanLabels(stmts []*Node) map[string]int {
	labels := map[string]int{}
	for i, s := range stmts {
		if s.kind == nLabel {
			labels[s.label] = i
		}
	}
	return labels
}

// execScopedBlock runs block under a fresh child environment of the
// current vm.env, running that environment's close-registered locals on
// every exit path (normal, break, return, goto, or error) via defer —
// the idiomatic replacement for the C original's manual env-chain walk
// in raise() (spec.md §9).
func execScopedBlock(vm *VM, block *Node) (rerr error) {
	scope := NewEnv(vm.env)
	saved := vm.env
	vm.env = scope
	defer func() {
		errv := vm.errObj
		if rerr != nil {
			errv = errValueOf(rerr)
		}
		if closeErr := scope.RunClosers(vm, errv); closeErr != nil && rerr == nil {
			rerr = closeErr
		}
		vm.env = saved
	}()
	rerr = ExecBlock(vm, block)
	return rerr
}

func execStmt(vm *VM, n *Node) error {
	if n.pos != token.NoPos {
		vm.currentPos = n.pos
	}
	switch n.kind {
	case nExprStmt:
		_, err := evalMulti(vm, n.left)
		return err
	case nVarDecl:
		return execVarDecl(vm, n)
	case nAssignList:
		return execAssignList(vm, n)
	case nCompoundAssign:
		return execCompoundAssign(vm, n)
	case nBlock:
		return execScopedBlock(vm, n)
	case nIf:
		return execIf(vm, n)
	case nWhile:
		return execWhile(vm, n)
	case nRepeat:
		return execRepeat(vm, n)
	case nForNum:
		return execForNum(vm, n)
	case nForIn:
		return execForIn(vm, n)
	case nReturn:
		return execReturn(vm, n)
	case nBreak:
		vm.breakPending = true
		return nil
	case nGoto:
		vm.gotoPending = true
		vm.gotoLabel = n.label
		return nil
	case nLabel:
		return nil
	case nFuncStmt:
		return execFuncStmt(vm, n)
	case nLocalFuncStmt:
		return execLocalFuncStmt(vm, n)
	case nTry:
		return execTry(vm, n)
	default:
		return typeErrorf("cannot execute node kind %v as statement", n.kind)
	}
}

func execVarDecl(vm *VM, n *Node) error {
	var v Value
	if n.init != nil {
		var err error
		v, err = Eval(vm, n.init)
		if err != nil {
			return err
		}
	}
	if n.isClose {
		vm.env.DeclareClose(n.ident, v)
	} else {
		vm.env.Declare(n.ident, v, n.isLocal)
	}
	return nil
}

// execAssignList implements spec.md §4.4's multi-assignment: evaluate all
// RHS left-to-right (last one expanding its multi-return), pad with Nil
// short / truncate long, then perform stores in lvals order.
func execAssignList(vm *VM, n *Node) error {
	rvals, err := evalExpandList(vm, n.rvals)
	if err != nil {
		return err
	}
	for i, lv := range n.lvals {
		var v Value
		if i < len(rvals) {
			v = rvals[i]
		}
		if err := storeLValue(vm, lv, v); err != nil {
			return err
		}
	}
	return nil
}

// storeLValue writes v to the location described by lv: a bare name uses
// global-fallback assignment (spec.md §4.4); t.f/t[k] use the index-write
// metamethod protocol (§4.2).
func storeLValue(vm *VM, lv *Node, v Value) error {
	switch lv.kind {
	case nIdent:
		vm.env.Assign(lv.ident, v)
		return nil
	case nField:
		t, err := Eval(vm, lv.target)
		if err != nil {
			return err
		}
		return NewIndex(vm, t, VStrFromC(lv.field), v)
	case nIndex:
		t, err := Eval(vm, lv.target)
		if err != nil {
			return err
		}
		k, err := Eval(vm, lv.key)
		if err != nil {
			return err
		}
		return NewIndex(vm, t, k, v)
	default:
		return typeErrorf("invalid assignment target")
	}
}

// execCompoundAssign implements SPEC_FULL supplemented feature 2
// (`target op= value`): read target, apply op, store back through the
// same protocol as plain assignment. For a t.f or t[k] target, the table
// and key expressions are evaluated once for the read and again for the
// store.
func execCompoundAssign(vm *VM, n *Node) error {
	cur, err := Eval(vm, n.target)
	if err != nil {
		return err
	}
	rhs, err := Eval(vm, n.right)
	if err != nil {
		return err
	}
	res, err := evalArith(vm, n.op, cur, rhs)
	if err != nil {
		return err
	}
	return storeLValue(vm, n.target, res)
}

func execIf(vm *VM, n *Node) error {
	cond, err := Eval(vm, n.cond)
	if err != nil {
		return err
	}
	if cond.Truthy() {
		return execScopedBlock(vm, n.thenBlk)
	}
	if n.elseBlk != nil {
		return execScopedBlock(vm, n.elseBlk)
	}
	return nil
}

// execWhile implements spec.md §4.4 While: re-evaluates the condition
// each iteration, under the iteration cap that protects against
// pathological loops.
func execWhile(vm *VM, n *Node) error {
	var iters int64
	for {
		cond, err := Eval(vm, n.cond)
		if err != nil {
			return err
		}
		if !cond.Truthy() {
			return nil
		}
		if err := execScopedBlock(vm, n.body); err != nil {
			return err
		}
		if vm.breakPending {
			vm.breakPending = false
			return nil
		}
		if vm.returnPending || vm.gotoPending {
			return nil
		}
		iters++
		if iters >= vm.maxLoopIterations {
			vm.loopCapDiagnostic()
			return nil
		}
	}
}

// execRepeat implements spec.md §4.4 Repeat/until: body runs first, then
// cond is evaluated in an environment that still includes the body's
// locals — so, unlike While, the body and the until-condition share one
// scope per iteration.
func execRepeat(vm *VM, n *Node) (rerr error) {
	var iters int64
	for {
		scope := NewEnv(vm.env)
		saved := vm.env
		vm.env = scope
		err := ExecBlock(vm, n.body)
		var condVal Value
		var condErr error
		if err == nil && !vm.breakPending && !vm.returnPending && !vm.gotoPending {
			condVal, condErr = Eval(vm, n.cond)
		}
		closeErr := scope.RunClosers(vm, vm.errObj)
		vm.env = saved
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
		if vm.breakPending {
			vm.breakPending = false
			return nil
		}
		if vm.returnPending || vm.gotoPending {
			return nil
		}
		if condErr != nil {
			return condErr
		}
		if condVal.Truthy() {
			return nil
		}
		iters++
		if iters >= vm.maxLoopIterations {
			vm.loopCapDiagnostic()
			return nil
		}
	}
}

// execForNum implements spec.md §4.4 Numeric for: start/end/step
// (default 1) evaluate once at entry; all-integer operands keep an
// integer loop variable, otherwise all three coerce to float. step==0 is
// a diagnostic (no error) and the loop runs zero times.
func execForNum(vm *VM, n *Node) error {
	startV, err := Eval(vm, n.forStart)
	if err != nil {
		return err
	}
	endV, err := Eval(vm, n.forEnd)
	if err != nil {
		return err
	}
	stepV := VInt(1)
	if n.forStep != nil {
		stepV, err = Eval(vm, n.forStep)
		if err != nil {
			return err
		}
	}

	allInt := startV.kind == VKInt && endV.kind == VKInt && stepV.kind == VKInt
	if allInt {
		step := stepV.i
		if step == 0 {
			vm.zeroStepDiagnostic()
			return nil
		}
		var iters int64
		for i := startV.i; (step > 0 && i <= endV.i) || (step < 0 && i >= endV.i); i += step {
			if err := runForBody(vm, n, VInt(i)); err != nil {
				return err
			}
			if done, err := forLoopShouldStop(vm, &iters); done || err != nil {
				return err
			}
		}
		return nil
	}

	start, end, step := startV.AsFloat(), endV.AsFloat(), stepV.AsFloat()
	if step == 0 {
		vm.zeroStepDiagnostic()
		return nil
	}
	var iters int64
	for f := start; (step > 0 && f <= end) || (step < 0 && f >= end); f += step {
		if err := runForBody(vm, n, VNum(f)); err != nil {
			return err
		}
		if done, err := forLoopShouldStop(vm, &iters); done || err != nil {
			return err
		}
	}
	return nil
}

func runForBody(vm *VM, n *Node, loopVar Value) error {
	scope := NewEnv(vm.env)
	scope.Declare(n.forVar, loopVar, true)
	saved := vm.env
	vm.env = scope
	defer func() {
		_ = scope.RunClosers(vm, vm.errObj)
		vm.env = saved
	}()
	return ExecBlock(vm, n.body)
}

// forLoopShouldStop consumes break/return/goto signals and enforces the
// iteration cap, shared by numeric and generic for.
func forLoopShouldStop(vm *VM, iters *int64) (bool, error) {
	if vm.breakPending {
		vm.breakPending = false
		return true, nil
	}
	if vm.returnPending || vm.gotoPending {
		return true, nil
	}
	*iters++
	if *iters >= vm.maxLoopIterations {
		vm.loopCapDiagnostic()
		return true, nil
	}
	return false, nil
}

// execForIn implements spec.md §4.4 Generic for: evaluate the explist for
// up to three values (iter, state, ctrl); if it is exactly one table
// value shaped like pairs()/ipairs()'s return, unpack it; otherwise, if
// the sole value is a bare table, fall back to raw iteration over its
// entries (spec.md's documented fallback).
func execForIn(vm *VM, n *Node) error {
	exprs, err := evalExpandList(vm, n.forIters)
	if err != nil {
		return err
	}

	var iter, state, ctrl Value
	switch {
	case len(exprs) >= 3:
		iter, state, ctrl = exprs[0], exprs[1], exprs[2]
	case len(exprs) == 1 && exprs[0].IsTable():
		if unpacked, ok := unpackIterTriple(exprs[0].Table()); ok {
			iter, state, ctrl = unpacked[0], unpacked[1], unpacked[2]
			break
		}
		return execForInRawTable(vm, n, exprs[0].Table())
	default:
		for len(exprs) < 3 {
			exprs = append(exprs, VNil())
		}
		iter, state, ctrl = exprs[0], exprs[1], exprs[2]
	}

	var iters int64
	for {
		res, err := Call(vm, iter, []Value{state, ctrl})
		if err != nil {
			return err
		}
		if len(res) == 0 || res[0].IsNil() {
			return nil
		}
		ctrl = res[0]
		if err := runForInBody(vm, n, res); err != nil {
			return err
		}
		if done, err := forLoopShouldStop(vm, &iters); done || err != nil {
			return err
		}
	}
}

// unpackIterTriple recognizes the (iter, state, ctrl) triple format
// pairs()/ipairs() return packed into a table, per spec.md §4.4's
// "form returned by pairs/ipairs".
func unpackIterTriple(t *Table) ([3]Value, bool) {
	iter, ok1 := t.RawGet(VInt(1))
	state, ok2 := t.RawGet(VInt(2))
	ctrl, _ := t.RawGet(VInt(3)) // absent when ctrl is Nil, as pairs() returns it
	if ok1 && iter.IsCallable() && ok2 {
		return [3]Value{iter, state, ctrl}, true
	}
	return [3]Value{}, false
}

func execForInRawTable(vm *VM, n *Node, t *Table) error {
	var iters int64
	var rerr error
	t.Foreach(func(k, v Value) error {
		if rerr != nil {
			return rerr
		}
		if err := runForInBody(vm, n, []Value{k, v}); err != nil {
			rerr = err
			return err
		}
		done, err := forLoopShouldStop(vm, &iters)
		if err != nil {
			rerr = err
			return err
		}
		if done {
			rerr = errStopIteration
			return rerr
		}
		return nil
	})
	if rerr == errStopIteration {
		return nil
	}
	return rerr
}

var errStopIteration = errString("stop")

func runForInBody(vm *VM, n *Node, vals []Value) error {
	scope := NewEnv(vm.env)
	for i, name := range n.forNames {
		var v Value
		if i < len(vals) {
			v = vals[i]
		}
		scope.Declare(name, v, true)
	}
	saved := vm.env
	vm.env = scope
	defer func() {
		_ = scope.RunClosers(vm, vm.errObj)
		vm.env = saved
	}()
	return ExecBlock(vm, n.body)
}

func execReturn(vm *VM, n *Node) error {
	vals, err := evalExpandList(vm, n.values)
	if err != nil {
		return err
	}
	vm.returnPending = true
	vm.returnValue = vals
	return nil
}

// execFuncStmt implements `function a.b.c(...) ... end` / `function
// a:m(...) ... end` (method sugar prepends an implicit self parameter,
// spec.md §6 "nameChain"). The resulting closure is stored through the
// same assignment protocol as a plain assignment to the name chain.
func execFuncStmt(vm *VM, n *Node) error {
	params := n.params
	if n.isMethod {
		params = append([]string{"self"}, params...)
	}
	cl := VClosure(&Closure{
		Params:    params,
		HasVararg: n.hasVararg,
		Body:      n.body,
		Env:       vm.env,
	})
	if n.nameChain.kind == nIdent {
		if n.isLocal {
			vm.env.Declare(n.nameChain.ident, cl, true)
		} else {
			vm.env.Assign(n.nameChain.ident, cl)
		}
		return nil
	}
	return storeLValue(vm, n.nameChain, cl)
}

// execLocalFuncStmt implements SPEC_FULL supplemented feature 2.5: the
// local slot is created (bound to Nil) before the function literal is
// evaluated, so a recursive local function can reference itself through
// its own captured environment.
func execLocalFuncStmt(vm *VM, n *Node) error {
	vm.env.Declare(n.ident, VNil(), true)
	cl := VClosure(&Closure{
		Params:    n.params,
		HasVararg: n.hasVararg,
		Body:      n.body,
		Env:       vm.env,
	})
	vm.env.Assign(n.ident, cl)
	return nil
}

// execTry implements SPEC_FULL supplemented feature 1 (try/catch/finally
// sugar over pcall): run tryBlock under a pushed error frame; on unwind,
// bind catchVar and run catchBlock with the error value; always run
// finallyBlock; re-raise when there is no catchBlock and an error
// occurred.
func execTry(vm *VM, n *Node) error {
	vm.pushFrame()
	err := execScopedBlock(vm, n.tryBlock)
	vm.popFrame()

	if err != nil {
		if _, fatal := err.(*ExitError); fatal {
			return err
		}
		if n.catchBlock != nil {
			vm.errObj = VNil()
			scope := NewEnv(vm.env)
			scope.Declare(n.catchVar, errValueOf(err), true)
			saved := vm.env
			vm.env = scope
			cerr := ExecBlock(vm, n.catchBlock)
			closeVal := VNil()
			if cerr != nil {
				closeVal = errValueOf(cerr)
			}
			closeErr := scope.RunClosers(vm, closeVal)
			vm.env = saved
			err = cerr
			if err == nil {
				err = closeErr
			}
		}
	}

	if n.finallyBlock != nil {
		// finally always runs; a finally-block error takes precedence
		// over a pending try/catch error, matching ordinary unwind
		// semantics (the innermost unwind wins).
		if ferr := execScopedBlock(vm, n.finallyBlock); ferr != nil {
			return ferr
		}
	}
	return err
}

package interp

import "testing"

func block(stmts ...*Node) *Node { return &Node{kind: nBlock, stmts: stmts} }

func TestExecForNumIntegerSum(t *testing.T) {
	vm := newTestVM(t)
	vm.env.Declare("sum", VInt(0), false)

	// sum = sum + i, for i = 1, 3
	body := &Node{kind: nBlock, stmts: []*Node{
		{kind: nAssignList,
			lvals: []*Node{{kind: nIdent, ident: "sum"}},
			rvals: []*Node{binNode(opAdd, &Node{kind: nIdent, ident: "sum"}, &Node{kind: nIdent, ident: "i"})},
		},
	}}
	forNode := &Node{kind: nForNum, forVar: "i", forStart: numLit(1, true), forEnd: numLit(3, true), body: body}

	if err := execStmt(vm, forNode); err != nil {
		t.Fatal(err)
	}
	v, _ := vm.env.Lookup("sum")
	if v.Int() != 6 {
		t.Errorf("sum = %v, want 6", v)
	}
}

func TestExecForNumZeroStepRunsZeroTimes(t *testing.T) {
	vm := newTestVM(t)
	vm.env.Declare("count", VInt(0), false)
	body := block(&Node{kind: nAssignList,
		lvals: []*Node{{kind: nIdent, ident: "count"}},
		rvals: []*Node{binNode(opAdd, &Node{kind: nIdent, ident: "count"}, numLit(1, true))},
	})
	forNode := &Node{kind: nForNum, forVar: "i", forStart: numLit(1, true), forEnd: numLit(5, true), forStep: numLit(0, true), body: body}

	if err := execStmt(vm, forNode); err != nil {
		t.Fatal(err)
	}
	v, _ := vm.env.Lookup("count")
	if v.Int() != 0 {
		t.Errorf("count = %v, want 0 (step==0 must run zero iterations)", v)
	}
}

func TestExecWhileBreak(t *testing.T) {
	vm := newTestVM(t)
	vm.env.Declare("i", VInt(0), false)

	body := block(
		&Node{kind: nAssignList,
			lvals: []*Node{{kind: nIdent, ident: "i"}},
			rvals: []*Node{binNode(opAdd, &Node{kind: nIdent, ident: "i"}, numLit(1, true))},
		},
		&Node{kind: nIf,
			cond:    binNode(opEq, &Node{kind: nIdent, ident: "i"}, numLit(3, true)),
			thenBlk: block(&Node{kind: nBreak}),
		},
	)
	whileNode := &Node{kind: nWhile, cond: &Node{kind: nBool, bval: true}, body: body}

	if err := execStmt(vm, whileNode); err != nil {
		t.Fatal(err)
	}
	v, _ := vm.env.Lookup("i")
	if v.Int() != 3 {
		t.Errorf("i = %v, want 3", v)
	}
	if vm.breakPending {
		t.Error("breakPending should be consumed by the loop that owns it")
	}
}

func TestExecGotoJumpsWithinBlock(t *testing.T) {
	vm := newTestVM(t)
	vm.env.Declare("x", VInt(0), false)

	b := block(
		&Node{kind: nGoto, label: "skip"},
		&Node{kind: nAssignList,
			lvals: []*Node{{kind: nIdent, ident: "x"}},
			rvals: []*Node{numLit(999, true)},
		},
		&Node{kind: nLabel, label: "skip"},
		&Node{kind: nAssignList,
			lvals: []*Node{{kind: nIdent, ident: "x"}},
			rvals: []*Node{numLit(1, true)},
		},
	)
	if err := ExecBlock(vm, b); err != nil {
		t.Fatal(err)
	}
	v, _ := vm.env.Lookup("x")
	if v.Int() != 1 {
		t.Errorf("x = %v, want 1 (goto must skip the assignment to 999)", v)
	}
}

func TestExecForInRawTableFallback(t *testing.T) {
	vm := newTestVM(t)
	tb := NewTable()
	_ = tb.RawSet(VInt(1), VInt(10))
	_ = tb.RawSet(VInt(2), VInt(20))
	vm.env.Declare("t", VTable(tb), true)
	vm.env.Declare("total", VInt(0), false)

	forIn := &Node{
		kind:     nForIn,
		forNames: []string{"k", "v"},
		forIters: []*Node{{kind: nIdent, ident: "t"}},
		body: block(&Node{kind: nAssignList,
			lvals: []*Node{{kind: nIdent, ident: "total"}},
			rvals: []*Node{binNode(opAdd, &Node{kind: nIdent, ident: "total"}, &Node{kind: nIdent, ident: "v"})},
		}),
	}
	if err := execStmt(vm, forIn); err != nil {
		t.Fatal(err)
	}
	v, _ := vm.env.Lookup("total")
	if v.Int() != 30 {
		t.Errorf("total = %v, want 30", v)
	}
}

func TestExecTryCatchBindsErrorValue(t *testing.T) {
	vm := newTestVM(t)
	vm.env.Declare("caught", VNil(), false)

	tryNode := &Node{
		kind:     nTry,
		tryBlock: block(&Node{kind: nExprStmt, left: &Node{kind: nCall, callee: &Node{kind: nIdent, ident: "boom"}}}),
		catchVar: "e",
		catchBlock: block(&Node{kind: nAssignList,
			lvals: []*Node{{kind: nIdent, ident: "caught"}},
			rvals: []*Node{{kind: nIdent, ident: "e"}},
		}),
	}

	vm.env.Declare("boom", VNativeFn(&NativeFn{Fn: func(vm *VM, args []Value) ([]Value, error) {
		return nil, typeErrorf("boom failed")
	}}), true)

	if err := execStmt(vm, tryNode); err != nil {
		t.Fatal(err)
	}
	v, _ := vm.env.Lookup("caught")
	if v.Kind() != VKStr || v.Str().String() != "boom failed" {
		t.Errorf("caught = %v, want \"boom failed\"", v)
	}
}

func TestExecLoopDiagnosticsRouteThroughSink(t *testing.T) {
	var msgs []string
	vm := NewVM(Options{Diagnostics: func(msg string) { msgs = append(msgs, msg) }})

	forNode := &Node{kind: nForNum, forVar: "i",
		forStart: numLit(1, true), forEnd: numLit(5, true), forStep: numLit(0, true),
		body: block()}
	if err := execStmt(vm, forNode); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("diagnostics = %v, want exactly one zero-step warning", msgs)
	}
}

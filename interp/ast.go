package interp

import "go/token"

// nkind tags the shape of an AST node. LuaX's parser and lexer are external
// collaborators (spec.md §1) — this file only declares the node shapes the
// evaluator consumes (spec.md §6), following the teacher's own convention of
// a single tagged node struct reused across every kind rather than a family
// of concrete node interfaces.
type nkind int

const (
	nInvalid nkind = iota

	// Expressions.
	nNil
	nBool
	nNumber
	nString
	nIdent
	nUnary
	nBinary
	nCall
	nIndex
	nField
	nMethodCall // a:m(args) sugar, SPEC_FULL supplemented feature 6
	nTableLit
	nFuncLit
	nVararg

	// Statements.
	nExprStmt
	nVarDecl
	nAssignList
	nCompoundAssign // SPEC_FULL supplemented feature 2
	nBlock
	nIf
	nWhile
	nRepeat
	nForNum
	nForIn
	nReturn
	nBreak
	nGoto
	nLabel
	nFuncStmt
	nLocalFuncStmt // SPEC_FULL supplemented feature 2.5
	nTry           // SPEC_FULL supplemented feature 1
)

// op identifies a unary or binary operator.
type op int

const (
	opNone op = iota
	opNeg
	opNot
	opLen
	opBNot
	opAdd
	opSub
	opMul
	opDiv
	opIDiv
	opMod
	opPow
	opConcat
	opEq
	opNE
	opLT
	opLE
	opGT
	opGE
	opAnd
	opOr
)

// Node is the single AST node type consumed by the evaluator. Only the
// fields relevant to n.kind are populated; this mirrors the teacher's own
// `node` struct in interp.go, which carries fields for every node role
// (AST and CFG) rather than a tagged-interface hierarchy.
type Node struct {
	kind nkind
	pos  token.Pos

	// Literals / identifiers.
	bval bool
	nval float64 // numeric literal value; isInt distinguishes 3 from 3.0
	isInt bool
	sval string
	ident string

	// Unary / binary / method-call.
	op    op
	left  *Node
	right *Node

	// Calls, index, field.
	callee *Node
	args   []*Node
	target *Node
	key    *Node
	field  string

	// Table constructor: keys[i] may be nil for array-style entries.
	tkeys []*Node
	tvals []*Node

	// Function literal / statement.
	params     []string
	hasVararg  bool
	body       *Node // AST_BLOCK
	isLocal    bool
	isClose    bool
	nameChain  *Node // Ident or Field chain, for FuncStmt
	isMethod   bool  // nameChain ends in a:m, implicit self prepended

	// Block / statement lists.
	stmts []*Node

	// If / loops.
	cond    *Node
	thenBlk *Node
	elseBlk *Node

	// while/repeat use cond + body; numeric/generic for use the fields below.
	forVar   string
	forStart *Node
	forEnd   *Node
	forStep  *Node

	forNames []string
	forIters []*Node

	// Return / goto / label / var decl.
	values []*Node
	label  string
	init   *Node

	// Assignment lists.
	lvals []*Node
	rvals []*Node

	// Try/catch/finally.
	tryBlock     *Node
	catchBlock   *Node
	catchVar     string
	finallyBlock *Node
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return nkindNames[n.kind]
}

var nkindNames = map[nkind]string{
	nInvalid:       "invalid",
	nNil:           "nil",
	nBool:          "bool",
	nNumber:        "number",
	nString:        "string",
	nIdent:         "ident",
	nUnary:         "unary",
	nBinary:        "binary",
	nCall:          "call",
	nIndex:         "index",
	nField:         "field",
	nMethodCall:    "methodcall",
	nTableLit:      "table",
	nFuncLit:       "funclit",
	nVararg:        "vararg",
	nExprStmt:      "exprstmt",
	nVarDecl:       "vardecl",
	nAssignList:    "assignlist",
	nCompoundAssign: "compoundassign",
	nBlock:         "block",
	nIf:            "if",
	nWhile:         "while",
	nRepeat:        "repeat",
	nForNum:        "fornum",
	nForIn:         "forin",
	nReturn:        "return",
	nBreak:         "break",
	nGoto:          "goto",
	nLabel:         "label",
	nFuncStmt:      "funcstmt",
	nLocalFuncStmt: "localfuncstmt",
	nTry:           "try",
}

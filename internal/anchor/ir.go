package anchor

import (
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// Lightweight IR for account-handling analysis. Built from a tree-sitter Rust tree, it
// only keeps what the fact extractor reasons about: functions, their account
// declarations, statements with control flow, and uniform expression trees.

type ExprKind int

const (
	ExprOther ExprKind = iota
	ExprIdent
	ExprPath
	ExprLiteral
	ExprField
	ExprCall
	ExprMethod
	ExprBinary
	ExprUnary
	ExprRef
	ExprIndex
	ExprTry
	ExprCast
	ExprMacro
	ExprAssign
	ExprBlock
	ExprParen
	ExprArray
	ExprRange
)

var exprKindNames = [...]string{"other", "ident", "path", "literal", "field", "call", "method",
	"binary", "unary", "ref", "index", "try", "cast", "macro", "assign", "block", "paren", "array", "range"}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return "unknown"
}

// Expr is a uniform expression node.
//
//	ident/path/literal: Name is the text
//	field:   Name is the field, Args[0] the receiver
//	call:    Name is the callee path without turbofish, Type the turbofish, Args the arguments
//	method:  Name is the method, Args[0] the receiver, Args[1:] the arguments
//	binary:  Op is the operator, Args = [left, right]
//	unary:   Op is one of "!", "-", "*"
//	ref:     Op is "&" or "&mut"
//	index:   Args = [target, index]
//	cast:    Type is the target type
//	macro:   Name is the macro name, Args its parsed arguments
//	assign:  Op is "=" or a compound operator, Args = [lhs, rhs]
//	block:   Args are the value-carrying sub-expressions of a nested block
//	other:   Name is the tree-sitter node type that could not be classified
type Expr struct {
	Kind ExprKind   `json:"kind"`
	Name string     `json:"name,omitempty"`
	Op   string     `json:"op,omitempty"`
	Type string     `json:"type,omitempty"`
	Args []*Expr    `json:"args,omitempty"`
	Text string     `json:"text"`
	Span model.Span `json:"span"`
}

func (e *Expr) Arg(i int) *Expr {
	if e == nil || i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// Walk visits e and every sub-expression in pre-order until fn returns false.
func (e *Expr) Walk(fn func(*Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, a := range e.Args {
		a.Walk(fn)
	}
}

// Unparen strips parentheses.
func (e *Expr) Unparen() *Expr {
	for e != nil && e.Kind == ExprParen && len(e.Args) == 1 {
		e = e.Args[0]
	}
	return e
}

// Last returns the last path segment of a call or path name.
func (e *Expr) Last() string {
	if e == nil {
		return ""
	}
	name := e.Name
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	return name
}

type StmtKind int

const (
	StmtExpr StmtKind = iota
	StmtLet
	StmtIf
	StmtLoop
	StmtMatch
	StmtReturn
	StmtBreak
	StmtContinue
	StmtAssert
	StmtPanic
	StmtBlock
)

var stmtKindNames = [...]string{"expr", "let", "if", "loop", "match", "return", "break",
	"continue", "assert", "panic", "block"}

func (k StmtKind) String() string {
	if int(k) < len(stmtKindNames) {
		return stmtKindNames[k]
	}
	return "unknown"
}

// Stmt is one statement. X holds the expression, let value, condition, scrutinee,
// return value or asserted predicate depending on Kind.
type Stmt struct {
	Kind  StmtKind   `json:"kind"`
	X     *Expr      `json:"x,omitempty"`
	Names []string   `json:"names,omitempty"`
	Then  *Block     `json:"then,omitempty"`
	Else  *Block     `json:"else,omitempty"`
	Body  *Block     `json:"body,omitempty"`
	Arms  []*Block   `json:"arms,omitempty"`
	Loop  string     `json:"loop,omitempty"` // while | loop | for
	Tail  bool       `json:"tail,omitempty"`
	Span  model.Span `json:"span"`
}

type Block struct {
	Stmts []*Stmt    `json:"stmts"`
	Span  model.Span `json:"span"`
}

// AccountDecl is an account reachable from a function: either a field of the linked
// #[derive(Accounts)] struct or an AccountInfo parameter.
type AccountDecl struct {
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Constraints []string   `json:"constraints,omitempty"`
	Mutable     bool       `json:"mutable"`
	Signer      bool       `json:"signer"`
	Init        bool       `json:"init"`
	Zero        bool       `json:"zero"`
	Owner       bool       `json:"owner"`
	Seeds       bool       `json:"seeds"`
	Bump        bool       `json:"bump"`
	Source      string     `json:"source"`
	Span        model.Span `json:"span"`
}

// Typed reports whether the Anchor wrapper type performs owner/discriminator checks.
func (a AccountDecl) Typed() bool {
	t := strings.TrimSpace(a.Type)
	for _, p := range []string{"Account<", "AccountLoader<", "Program<", "Sysvar<", "Box<Account<", "InterfaceAccount<", "Interface<"} {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

type Param struct {
	Name string     `json:"name"`
	Type string     `json:"type"`
	Span model.Span `json:"span"`
}

type FunctionIR struct {
	Name          string        `json:"name"`
	Span          model.Span    `json:"span"`
	Public        bool          `json:"public"`
	InProgram     bool          `json:"inProgram"`
	ReturnType    string        `json:"returnType,omitempty"`
	Params        []Param       `json:"params"`
	Context       string        `json:"context,omitempty"`       // name of the Context<T> parameter
	AccountsType  string        `json:"accountsType,omitempty"`  // T of Context<T>
	Accounts      []AccountDecl `json:"accounts,omitempty"`
	AccountSlices []string      `json:"accountSlices,omitempty"` // &[AccountInfo] parameters
	Body          *Block        `json:"body,omitempty"`
	Malformed     bool          `json:"malformed,omitempty"`
	Issues        []Issue       `json:"issues,omitempty"`
}

func (f *FunctionIR) ReturnsBool() bool { return strings.TrimSpace(f.ReturnType) == "bool" }

// Issue is a construct the adapter could not model.
type Issue struct {
	Kind    string     `json:"kind"`
	Message string     `json:"message"`
	Span    model.Span `json:"span"`
}

type AccountsStruct struct {
	Name   string        `json:"name"`
	Fields []AccountDecl `json:"fields"`
	Span   model.Span    `json:"span"`
}

type FileIR struct {
	File      string                     `json:"file"`
	Functions []*FunctionIR              `json:"functions"`
	Structs   map[string]*AccountsStruct `json:"structs,omitempty"`
	Issues    []Issue                    `json:"issues,omitempty"`
}

// Function returns the first function with the given name.
func (f *FileIR) Function(name string) *FunctionIR {
	for _, fn := range f.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

package facts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/analysis"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// function name prefixes that mark the mutable accounts of a handler as being created
var freshPrefixes = []string{"create", "init", "initialize", "new", "open", "register"}

type extractor struct {
	fs   *FactSet
	fn   *anchor.FunctionIR
	g    *analysis.CFG
	d    *analysis.DFG
	file string

	rentLocals map[string]bool
}

// Extract builds the fact set of one function. A malformed function yields an empty
// fact set and ErrMalformedFunction. When ctx expires mid-way the facts gathered so far
// are returned with ctx.Err().
func Extract(ctx context.Context, file string, fn *anchor.FunctionIR) (*FactSet, error) {
	fs := &FactSet{File: file, Function: fn.Name, Span: stamp(fn.Span, file), ReturnsBool: fn.ReturnsBool()}
	if fn.Malformed {
		return fs, fmt.Errorf("%s: %w", fn.Name, ErrMalformedFunction)
	}
	g, err := analysis.BuildCFG(fn)
	if err != nil {
		return fs, fmt.Errorf("%s: %w", fn.Name, err)
	}
	fs.CFG = g
	x := &extractor{fs: fs, fn: fn, g: g, d: analysis.BuildDFG(fn), file: file}
	x.bindings()
	x.collectRentLocals()
	for _, n := range g.Nodes {
		if err := ctx.Err(); err != nil {
			x.finish()
			return fs, err
		}
		x.node(n)
	}
	x.finish()
	for _, is := range fn.Issues {
		fs.Issues = append(fs.Issues, Issue{Message: is.Message, Span: stamp(is.Span, file)})
	}
	return fs, nil
}

func stamp(sp model.Span, file string) model.Span {
	sp.File = file
	return sp
}

func (x *extractor) span(sp model.Span) model.Span { return stamp(sp, x.file) }

func (x *extractor) bindings() {
	freshFn := false
	lower := strings.ToLower(x.fn.Name)
	for _, p := range freshPrefixes {
		if strings.HasPrefix(lower, p) {
			freshFn = true
		}
	}
	for _, a := range x.fn.Accounts {
		b := Binding{
			Name:         a.Name,
			Type:         a.Type,
			Mutable:      a.Mutable,
			Signer:       a.Signer,
			Source:       a.Source,
			Span:         x.span(a.Span),
			OwnerChecked: a.Typed() || a.Owner || a.Init,
			RentExempt:   a.Init || a.Zero,
			Initialized:  a.Init || a.Zero || a.Typed(),
			PDAValidated: a.Seeds && a.Bump,
			Fresh:        a.Init || a.Zero || strings.HasPrefix(a.Name, "new_") || freshFn && a.Mutable,
		}
		x.fs.Bindings = append(x.fs.Bindings, b)
		x.declare(b, a)
	}
	locals := make([]string, 0, len(x.d.Locals))
	for name := range x.d.Locals {
		locals = append(locals, name)
	}
	sort.Strings(locals)
	for _, name := range locals {
		x.fs.Bindings = append(x.fs.Bindings, Binding{
			Name:    name,
			Mutable: true,
			Source:  "local",
			Span:    x.span(x.d.Locals[name]),
			Fresh:   strings.HasPrefix(name, "new_") || freshFn,
		})
	}
}

// declare turns declaration-site constraints into guards on the entry node, so
// detectors see type annotations and runtime checks through one model.
func (x *extractor) declare(b Binding, a anchor.AccountDecl) {
	add := func(k GuardKind, via string) {
		x.fs.Guards = append(x.fs.Guards, Guard{
			Kind: k, Subject: b.Name, Node: x.g.Entry, Declared: true, Via: via, Span: b.Span, Text: a.Type,
		})
	}
	if b.Signer {
		add(SignerCheck, "signer")
	}
	if b.OwnerChecked {
		add(OwnerCheck, declVia(a, "owner"))
	}
	if b.RentExempt {
		add(RentExemptCheck, declVia(a, "init"))
	}
	if b.Initialized {
		add(InitializedCheck, declVia(a, "init"))
	}
	if b.PDAValidated {
		add(PdaCheck, "seeds")
	}
}

func declVia(a anchor.AccountDecl, constraint string) string {
	switch {
	case constraint == "owner" && a.Owner:
		return "owner"
	case a.Init:
		return "init"
	case a.Zero:
		return "zero"
	}
	return "type"
}

func (x *extractor) node(n *analysis.Node) {
	switch n.Kind {
	case analysis.NodeAssume:
		if n.Cond != nil && !n.Pattern {
			x.classify(n.Cond, n.Holds, n.ID)
		}
	case analysis.NodeStmt:
		if n.Expr == nil {
			return
		}
		x.operations(n)
		x.statementGuards(n)
		if x.fs.ReturnsBool && n.Stmt != nil && (n.Stmt.Kind == anchor.StmtReturn || n.Stmt.Tail && n.Stmt.Kind == anchor.StmtExpr) {
			// the value a validation helper returns is the check it performs
			x.classify(n.Expr, true, n.ID)
		}
		n.Expr.Walk(func(e *anchor.Expr) bool {
			if e.Kind == anchor.ExprOther && (e.Name == "macro_argument" || e.Name == "ERROR" || e.Name == "MISSING") {
				x.fs.Issues = append(x.fs.Issues, Issue{Message: "unclassified construct " + strings.TrimSpace(e.Text), Span: x.span(e.Span)})
			}
			return true
		})
	}
}

// finish attaches to every operation the guards whose node dominates it and marks
// accounts whose is_initialized flag the function sets as fresh.
func (x *extractor) finish() {
	for _, op := range x.fs.Operations {
		if op.Kind == AccountDataWrite && op.Method == "is_initialized" {
			for i := range x.fs.Bindings {
				if x.fs.Bindings[i].Name == op.Subject() {
					x.fs.Bindings[i].Fresh = true
				}
			}
		}
	}
	for i := range x.fs.Operations {
		op := &x.fs.Operations[i]
		op.Guards = nil
		for _, g := range x.fs.Guards {
			if g.Declared || g.Node == op.Node || x.g.Dominates(g.Node, op.Node) {
				op.Guards = append(op.Guards, g)
			}
		}
	}
}

func (x *extractor) addGuard(k GuardKind, subject string, node int, via string, e *anchor.Expr) {
	for _, g := range x.fs.Guards {
		if g.Kind == k && g.Subject == subject && g.Node == node && !g.Declared {
			return
		}
	}
	x.fs.Guards = append(x.fs.Guards, Guard{
		Kind: k, Subject: subject, Node: node, Via: via, Span: x.span(e.Span), Text: strings.TrimSpace(e.Text),
	})
}

func (x *extractor) addOp(op Operation, e *anchor.Expr, node int) {
	op.Node = node
	op.Span = x.span(e.Span)
	if op.Text == "" {
		op.Text = strings.TrimSpace(e.Text)
	}
	x.fs.Operations = append(x.fs.Operations, op)
}

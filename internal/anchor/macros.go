package anchor

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// assertion macros and the comparison they encode; "" means the first argument is the
// predicate itself
var assertMacros = map[string]string{
	"require":          "",
	"assert":           "",
	"debug_assert":     "",
	"require_eq":       "==",
	"require_keys_eq":  "==",
	"assert_eq":        "==",
	"debug_assert_eq":  "==",
	"require_neq":      "!=",
	"require_keys_neq": "!=",
	"assert_ne":        "!=",
	"debug_assert_ne":  "!=",
	"require_gt":       ">",
	"require_gte":      ">=",
}

var panicMacros = map[string]bool{
	"panic": true, "unreachable": true, "todo": true, "unimplemented": true,
}

func macroPath(n *sitter.Node) *sitter.Node {
	if m := n.ChildByFieldName("macro"); m != nil {
		return m
	}
	return firstNamed(n)
}

func macroName(path string) string {
	path = strings.TrimSuffix(strings.TrimSpace(path), "!")
	if i := strings.LastIndex(path, "::"); i >= 0 {
		path = path[i+2:]
	}
	return path
}

func tokenTree(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if ch := n.NamedChild(i); ch != nil && ch.Type() == "token_tree" {
			return ch
		}
	}
	return nil
}

func (c *converter) macroStmt(n *sitter.Node, s *Stmt) {
	name := macroName(c.text(macroPath(n)))
	if panicMacros[name] {
		s.Kind = StmtPanic
		s.X = &Expr{Kind: ExprMacro, Name: name, Text: c.text(n), Span: c.span(n)}
		return
	}
	op, ok := assertMacros[name]
	if !ok {
		s.Kind = StmtExpr
		s.X = c.expr(n)
		return
	}
	s.Kind = StmtAssert
	args := c.macroArgs(n, true)
	switch {
	case op == "" && len(args) >= 1:
		s.X = args[0]
	case op != "" && len(args) >= 2:
		s.X = &Expr{Kind: ExprBinary, Op: op, Args: []*Expr{args[0], args[1]}, Text: c.text(n), Span: c.span(n)}
	default:
		s.X = &Expr{Kind: ExprOther, Name: "macro_invocation", Text: c.text(n), Span: c.span(n)}
	}
}

// macroArgs re-parses the comma separated arguments of a macro call as expressions.
// Token trees are opaque to the grammar, so each argument is wrapped in a throwaway
// function body and parsed on its own. strict records an issue when an argument cannot
// be read; otherwise it degrades to a literal.
func (c *converter) macroArgs(n *sitter.Node, strict bool) []*Expr {
	tt := tokenTree(n)
	if tt == nil {
		return nil
	}
	raw := strings.TrimSpace(c.text(tt))
	if len(raw) < 2 {
		return nil
	}
	inner := raw[1 : len(raw)-1]
	sp := c.span(n)
	var out []*Expr
	for _, part := range splitTopLevel(inner, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if e := c.snippet(part, sp); e != nil {
			out = append(out, e)
			continue
		}
		if strict {
			c.ir.Issues = append(c.ir.Issues, Issue{Kind: "macro-argument", Message: "cannot read macro argument " + part, Span: sp})
			out = append(out, &Expr{Kind: ExprOther, Name: "macro_argument", Text: part, Span: sp})
			continue
		}
		out = append(out, &Expr{Kind: ExprLiteral, Name: part, Text: part, Span: sp})
	}
	return out
}

// snippet parses code as a lone expression; every node gets the span sp.
func (c *converter) snippet(code string, sp model.Span) *Expr {
	if c.parser == nil {
		return nil
	}
	src := []byte("fn __panda_snippet() {\n" + code + "\n}\n")
	tree, err := c.parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil
	}
	defer tree.Close()
	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil
	}
	fn := firstNamed(root)
	if fn == nil || fn.Type() != "function_item" {
		return nil
	}
	stmts := namedChildren(fn.ChildByFieldName("body"))
	if len(stmts) != 1 {
		return nil
	}
	node := stmts[0]
	if node.Type() == "expression_statement" {
		node = firstNamed(node)
	}
	sub := &converter{src: src, file: c.file, parser: c.parser, ir: c.ir, fixed: &sp}
	return sub.expr(node)
}

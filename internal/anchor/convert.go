package anchor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

type converter struct {
	src    []byte
	file   string
	parser *sitter.Parser
	ir     *FileIR
	// fixed overrides node positions for snippets re-parsed out of macro token trees
	fixed *model.Span
}

func (c *converter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

func (c *converter) span(n *sitter.Node) model.Span {
	if c.fixed != nil {
		return *c.fixed
	}
	if n == nil {
		return model.Span{File: c.file}
	}
	return model.Span{File: c.file, StartLine: int(n.StartPoint().Row) + 1, EndLine: int(n.EndPoint().Row) + 1}
}

func isComment(n *sitter.Node) bool {
	switch n.Type() {
	case "line_comment", "block_comment":
		return true
	}
	return false
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		ch := n.NamedChild(i)
		if ch == nil || isComment(ch) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if ch := namedChildren(n); len(ch) > 0 {
		return ch[0]
	}
	return nil
}

// items walks a source file, module body, impl body or trait body.
func (c *converter) items(list *sitter.Node, inProgram bool) {
	var attrs []string
	for i := 0; i < int(list.NamedChildCount()); i++ {
		n := list.NamedChild(i)
		if n == nil {
			continue
		}
		switch n.Type() {
		case "line_comment", "block_comment":
			continue
		case "attribute_item":
			attrs = append(attrs, c.text(n))
			continue
		case "function_item":
			c.function(n, inProgram)
		case "mod_item":
			if body := n.ChildByFieldName("body"); body != nil {
				c.items(body, inProgram || hasAttr(attrs, "program"))
			}
		case "impl_item", "trait_item":
			if body := n.ChildByFieldName("body"); body != nil {
				c.items(body, inProgram)
			}
		case "struct_item":
			if hasDerive(attrs, "Accounts") {
				c.accountsStruct(n)
			}
		case "ERROR":
			c.ir.Issues = append(c.ir.Issues, Issue{Kind: "syntax", Message: "unparseable source region", Span: c.span(n)})
			c.items(n, inProgram)
		}
		attrs = nil
	}
}

func (c *converter) function(n *sitter.Node, inProgram bool) {
	fn := &FunctionIR{
		Name:      c.text(n.ChildByFieldName("name")),
		Span:      c.span(n),
		InProgram: inProgram,
		Malformed: n.HasError(),
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if ch := n.Child(i); ch != nil && ch.Type() == "visibility_modifier" {
			fn.Public = strings.HasPrefix(c.text(ch), "pub")
		}
	}
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		fn.ReturnType = c.text(rt)
	}
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		if p.Type() != "parameter" {
			continue
		}
		param := Param{
			Name: strings.TrimPrefix(c.text(p.ChildByFieldName("pattern")), "mut "),
			Type: c.text(p.ChildByFieldName("type")),
			Span: c.span(p),
		}
		fn.Params = append(fn.Params, param)
		typ := compactType(param.Type)
		switch {
		case strings.HasPrefix(typ, "Context<"):
			fn.Context = param.Name
			fn.AccountsType = contextAccounts(typ)
		case strings.Contains(typ, "[AccountInfo"):
			fn.AccountSlices = append(fn.AccountSlices, param.Name)
		case strings.Contains(typ, "AccountInfo"):
			fn.Accounts = append(fn.Accounts, AccountDecl{Name: param.Name, Type: param.Type, Source: "parameter", Span: param.Span})
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		fn.Body = c.block(body)
	}
	c.ir.Functions = append(c.ir.Functions, fn)
}

func (c *converter) accountsStruct(n *sitter.Node) {
	st := &AccountsStruct{Name: c.text(n.ChildByFieldName("name")), Span: c.span(n)}
	var attrs []string
	for _, ch := range namedChildren(n.ChildByFieldName("body")) {
		switch ch.Type() {
		case "attribute_item":
			attrs = append(attrs, c.text(ch))
		case "field_declaration":
			decl := AccountDecl{
				Name:   c.text(ch.ChildByFieldName("name")),
				Type:   c.text(ch.ChildByFieldName("type")),
				Source: "accounts-struct",
				Span:   c.span(ch),
			}
			applyAccountAttrs(&decl, attrs)
			st.Fields = append(st.Fields, decl)
			attrs = nil
		}
	}
	c.ir.Structs[st.Name] = st
}

func (c *converter) block(n *sitter.Node) *Block {
	b := &Block{Span: c.span(n)}
	if n == nil {
		return b
	}
	if n.Type() != "block" {
		// unsafe/async/labelled wrappers hold the real block as a child
		for _, ch := range namedChildren(n) {
			if ch.Type() == "block" {
				return c.block(ch)
			}
		}
	}
	children := namedChildren(n)
	for i, ch := range children {
		switch ch.Type() {
		case "empty_statement", "attribute_item", "inner_attribute_item", "use_declaration", "label",
			"function_item", "struct_item", "enum_item", "impl_item", "trait_item", "const_item",
			"static_item", "mod_item", "type_item", "macro_definition", "extern_crate_declaration":
			continue
		case "expression_statement":
			if inner := firstNamed(ch); inner != nil {
				b.Stmts = append(b.Stmts, c.stmt(inner, false))
			}
		case "let_declaration":
			b.Stmts = append(b.Stmts, c.let(ch))
		default:
			b.Stmts = append(b.Stmts, c.stmt(ch, i == len(children)-1))
		}
	}
	return b
}

func (c *converter) let(n *sitter.Node) *Stmt {
	s := &Stmt{Kind: StmtLet, Span: c.span(n)}
	s.Names = c.patternNames(n.ChildByFieldName("pattern"))
	s.X = c.expr(n.ChildByFieldName("value"))
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		s.Else = c.block(alt)
	}
	return s
}

// patternNames collects the identifiers a pattern binds, in source order. Wildcards and
// underscore-prefixed names keep their position so tuple destructuring stays aligned.
func (c *converter) patternNames(n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return []string{c.text(n)}
	case "mut_pattern", "ref_pattern", "reference_pattern", "captured_pattern":
		for _, ch := range namedChildren(n) {
			if names := c.patternNames(ch); len(names) > 0 {
				return names
			}
		}
		return nil
	}
	if n.Type() == "tuple_pattern" && n.NamedChildCount() < n.ChildCount() {
		var out []string
		for i := 0; i < int(n.ChildCount()); i++ {
			ch := n.Child(i)
			switch {
			case ch == nil:
			case ch.Type() == "_":
				out = append(out, "_")
			case ch.IsNamed() && !isComment(ch):
				names := c.patternNames(ch)
				if len(names) == 0 {
					names = []string{"_"}
				}
				out = append(out, names...)
			}
		}
		return out
	}
	var out []string
	for _, ch := range namedChildren(n) {
		out = append(out, c.patternNames(ch)...)
	}
	return out
}

func (c *converter) stmt(n *sitter.Node, tail bool) *Stmt {
	s := &Stmt{Span: c.span(n), Tail: tail}
	switch n.Type() {
	case "if_expression", "if_let_expression":
		c.ifStmt(n, s)
	case "match_expression":
		s.Kind = StmtMatch
		s.X = c.expr(n.ChildByFieldName("value"))
		for _, arm := range namedChildren(n.ChildByFieldName("body")) {
			if arm.Type() != "match_arm" && arm.Type() != "last_match_arm" {
				continue
			}
			v := arm.ChildByFieldName("value")
			if v != nil && v.Type() == "block" {
				s.Arms = append(s.Arms, c.block(v))
			} else if v != nil {
				s.Arms = append(s.Arms, &Block{Stmts: []*Stmt{c.stmt(v, true)}, Span: c.span(arm)})
			} else {
				s.Arms = append(s.Arms, &Block{Span: c.span(arm)})
			}
		}
	case "while_expression", "while_let_expression":
		s.Kind, s.Loop = StmtLoop, "while"
		c.condition(n, s)
		s.Body = c.block(n.ChildByFieldName("body"))
	case "loop_expression":
		s.Kind, s.Loop = StmtLoop, "loop"
		s.Body = c.block(n.ChildByFieldName("body"))
	case "for_expression":
		s.Kind, s.Loop = StmtLoop, "for"
		s.Names = c.patternNames(n.ChildByFieldName("pattern"))
		s.X = c.expr(n.ChildByFieldName("value"))
		s.Body = c.block(n.ChildByFieldName("body"))
	case "return_expression":
		s.Kind = StmtReturn
		s.X = c.expr(firstNamed(n))
	case "break_expression":
		s.Kind = StmtBreak
	case "continue_expression":
		s.Kind = StmtContinue
	case "block", "unsafe_block", "async_block":
		s.Kind = StmtBlock
		s.Body = c.block(n)
	case "macro_invocation":
		c.macroStmt(n, s)
	default:
		s.Kind = StmtExpr
		s.X = c.expr(n)
	}
	return s
}

func (c *converter) ifStmt(n *sitter.Node, s *Stmt) {
	s.Kind = StmtIf
	c.condition(n, s)
	s.Then = c.block(n.ChildByFieldName("consequence"))
	alt := n.ChildByFieldName("alternative")
	if alt == nil {
		return
	}
	if alt.Type() == "else_clause" {
		alt = firstNamed(alt)
	}
	switch {
	case alt == nil:
	case alt.Type() == "block":
		s.Else = c.block(alt)
	default:
		s.Else = &Block{Stmts: []*Stmt{c.stmt(alt, false)}, Span: c.span(alt)}
	}
}

// condition fills X with the branch predicate. Pattern conditions (if let / while let)
// put the bound names in Names; they never become guards.
func (c *converter) condition(n *sitter.Node, s *Stmt) {
	if p := n.ChildByFieldName("pattern"); p != nil {
		s.Names = c.patternNames(p)
		s.X = c.expr(n.ChildByFieldName("value"))
		return
	}
	cond := n.ChildByFieldName("condition")
	if cond == nil {
		return
	}
	switch cond.Type() {
	case "let_condition":
		s.Names = c.patternNames(cond.ChildByFieldName("pattern"))
		s.X = c.expr(cond.ChildByFieldName("value"))
		if len(s.Names) == 0 {
			s.Names = []string{"_"}
		}
	case "let_chain":
		s.Names = []string{"_"}
		s.X = c.expr(cond)
	default:
		s.X = c.expr(cond)
	}
}

// compound expression nodes whose children are converted but which carry no meaning of
// their own for the fact extractor
var opaqueKinds = map[string]bool{
	"if_expression": true, "if_let_expression": true, "match_expression": true, "match_block": true,
	"match_arm": true, "last_match_arm": true, "match_pattern": true, "while_expression": true,
	"while_let_expression": true, "loop_expression": true, "for_expression": true,
	"closure_expression": true, "closure_parameters": true, "struct_expression": true,
	"field_initializer_list": true, "field_initializer": true, "shorthand_field_initializer": true,
	"base_field_initializer": true, "return_expression": true, "break_expression": true,
	"continue_expression": true, "let_condition": true, "let_chain": true, "else_clause": true,
	"arguments": true, "block": true, "unsafe_block": true, "async_block": true, "const_block": true,
	"let_declaration": true, "expression_statement": true, "tuple_pattern": true,
	"tuple_struct_pattern": true, "struct_pattern": true, "field_pattern": true, "ref_pattern": true,
	"mut_pattern": true, "reference_pattern": true, "captured_pattern": true, "or_pattern": true,
	"slice_pattern": true, "remaining_field_pattern": true, "generic_type": true,
	"reference_type": true, "array_type": true, "tuple_type": true, "type_arguments": true,
	"pointer_type": true, "function_type": true, "abstract_type": true, "dynamic_type": true,
	"generic_function": true, "token_tree": true, "yield_expression": true, "label": true,
	"bracketed_type": true, "qualified_type": true, "lifetime": true, "mutable_specifier": true,
}

func (c *converter) expr(n *sitter.Node) *Expr {
	if n == nil || isComment(n) {
		return nil
	}
	e := &Expr{Text: c.text(n), Span: c.span(n)}
	switch n.Type() {
	case "identifier", "self", "crate", "super", "metavariable", "shorthand_field_identifier", "field_identifier":
		e.Kind, e.Name = ExprIdent, e.Text
	case "scoped_identifier", "scoped_type_identifier", "type_identifier", "primitive_type":
		e.Kind, e.Name = ExprPath, stripTurbofish(e.Text)
	case "integer_literal", "float_literal", "string_literal", "raw_string_literal", "char_literal",
		"boolean_literal", "unit_expression", "negative_literal", "true", "false":
		e.Kind, e.Name = ExprLiteral, e.Text
	case "field_expression":
		e.Kind = ExprField
		e.Name = c.text(n.ChildByFieldName("field"))
		e.Args = []*Expr{c.expr(n.ChildByFieldName("value"))}
	case "call_expression":
		c.call(n, e)
	case "binary_expression":
		e.Kind, e.Op = ExprBinary, c.operator(n)
		e.Args = []*Expr{c.expr(n.ChildByFieldName("left")), c.expr(n.ChildByFieldName("right"))}
	case "compound_assignment_expr":
		e.Kind, e.Op = ExprAssign, c.operator(n)
		e.Args = []*Expr{c.expr(n.ChildByFieldName("left")), c.expr(n.ChildByFieldName("right"))}
	case "assignment_expression":
		e.Kind, e.Op = ExprAssign, "="
		e.Args = []*Expr{c.expr(n.ChildByFieldName("left")), c.expr(n.ChildByFieldName("right"))}
	case "unary_expression":
		e.Kind = ExprUnary
		if op := n.Child(0); op != nil {
			e.Op = op.Type()
		}
		e.Args = []*Expr{c.expr(firstNamed(n))}
	case "reference_expression":
		e.Kind, e.Op = ExprRef, "&"
		for i := 0; i < int(n.ChildCount()); i++ {
			if ch := n.Child(i); ch != nil && ch.Type() == "mutable_specifier" {
				e.Op = "&mut"
			}
		}
		v := n.ChildByFieldName("value")
		if v == nil {
			ch := namedChildren(n)
			if len(ch) > 0 {
				v = ch[len(ch)-1]
			}
		}
		e.Args = []*Expr{c.expr(v)}
	case "try_expression":
		e.Kind = ExprTry
		e.Args = []*Expr{c.expr(firstNamed(n))}
	case "parenthesized_expression", "await_expression":
		e.Kind = ExprParen
		e.Args = []*Expr{c.expr(firstNamed(n))}
	case "index_expression":
		e.Kind = ExprIndex
		e.Args = c.exprs(namedChildren(n))
	case "type_cast_expression":
		e.Kind = ExprCast
		e.Type = c.text(n.ChildByFieldName("type"))
		e.Args = []*Expr{c.expr(n.ChildByFieldName("value"))}
	case "array_expression", "tuple_expression":
		e.Kind = ExprArray
		e.Args = c.exprs(namedChildren(n))
	case "range_expression":
		e.Kind = ExprRange
		e.Args = c.exprs(namedChildren(n))
	case "macro_invocation":
		e.Kind = ExprMacro
		e.Name = macroName(c.text(macroPath(n)))
		e.Args = c.macroArgs(n, false)
	default:
		if opaqueKinds[n.Type()] {
			e.Kind = ExprBlock
		} else {
			e.Kind, e.Name = ExprOther, n.Type()
		}
		e.Args = c.exprs(namedChildren(n))
	}
	return e
}

func (c *converter) exprs(nodes []*sitter.Node) []*Expr {
	out := make([]*Expr, 0, len(nodes))
	for _, n := range nodes {
		if n.Type() == "attribute_item" {
			continue
		}
		if e := c.expr(n); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (c *converter) call(n *sitter.Node, e *Expr) {
	fnNode := n.ChildByFieldName("function")
	args := c.exprs(namedChildren(n.ChildByFieldName("arguments")))
	if fnNode != nil && fnNode.Type() == "generic_function" {
		e.Type = c.text(fnNode.ChildByFieldName("type_arguments"))
		fnNode = fnNode.ChildByFieldName("function")
	}
	if fnNode != nil && fnNode.Type() == "field_expression" {
		e.Kind = ExprMethod
		e.Name = c.text(fnNode.ChildByFieldName("field"))
		e.Args = append([]*Expr{c.expr(fnNode.ChildByFieldName("value"))}, args...)
		return
	}
	e.Kind = ExprCall
	e.Name = stripTurbofish(c.text(fnNode))
	e.Args = args
}

func (c *converter) operator(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return c.text(op)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if ch := n.Child(i); ch != nil && !ch.IsNamed() {
			return ch.Type()
		}
	}
	return ""
}

// compactType removes references, lifetimes and whitespace so type checks can use
// prefixes.
func compactType(t string) string {
	t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "&"))
	if strings.HasPrefix(t, "'") {
		j := 1
		for j < len(t) && isIdentByte(t[j]) {
			j++
		}
		t = strings.TrimSpace(t[j:])
	}
	if strings.HasPrefix(t, "mut ") {
		t = strings.TrimSpace(t[4:])
	}
	return strings.Join(strings.Fields(t), "")
}

// contextAccounts extracts T from Context<'a, 'b, 'c, 'info, T<'info>>.
func contextAccounts(typ string) string {
	open := strings.Index(typ, "<")
	end := strings.LastIndex(typ, ">")
	if open < 0 || end <= open {
		return ""
	}
	args := splitTopLevel(typ[open+1:end], ',')
	for i := len(args) - 1; i >= 0; i-- {
		a := strings.TrimSpace(args[i])
		if a == "" || strings.HasPrefix(a, "'") {
			continue
		}
		if j := strings.Index(a, "<"); j >= 0 {
			a = a[:j]
		}
		if j := strings.LastIndex(a, "::"); j >= 0 {
			a = a[j+2:]
		}
		return a
	}
	return ""
}

func stripTurbofish(s string) string {
	if !strings.Contains(s, "::<") {
		return strings.Join(strings.Fields(s), "")
	}
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		if depth == 0 && strings.HasPrefix(s[i:], "::<") {
			depth = 1
			i += 2
			continue
		}
		if depth > 0 {
			switch s[i] {
			case '<':
				depth++
			case '>':
				depth--
			}
			continue
		}
		if s[i] != ' ' && s[i] != '\n' && s[i] != '\t' && s[i] != '\r' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

package facts

import (
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
)

// members whose test is a data length / initialization check
var initMembers = map[string]bool{
	"is_empty": true, "len": true, "data_len": true, "data_is_empty": true, "is_initialized": true,
}

var comparisons = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

// classify records the guards implied by cond evaluating to holds at node.
func (x *extractor) classify(cond *anchor.Expr, holds bool, node int) {
	e := normalizeCond(cond)
	if e == nil {
		return
	}
	switch {
	case e.Kind == anchor.ExprUnary && e.Op == "!":
		x.classify(e.Arg(0), !holds, node)
		return
	case e.Kind == anchor.ExprBinary && e.Op == "&&":
		if holds {
			x.classify(e.Arg(0), true, node)
			x.classify(e.Arg(1), true, node)
		}
		return
	case e.Kind == anchor.ExprBinary && e.Op == "||":
		if !holds {
			x.classify(e.Arg(0), false, node)
			x.classify(e.Arg(1), false, node)
		}
		return
	case e.Kind == anchor.ExprBinary && (e.Op == "==" || e.Op == "!=") && isBoolLiteral(e.Arg(1)):
		// x == true, x != false, ...
		x.classify(e.Arg(0), holds == (e.Op == "==") == (e.Arg(1).Name == "true"), node)
		return
	}
	x.atom(e, holds, node)
}

// normalizeCond strips parentheses and rewrites a.eq(&b) / a.ne(&b) as comparisons.
func normalizeCond(e *anchor.Expr) *anchor.Expr {
	e = e.Unparen()
	if e == nil || e.Kind != anchor.ExprMethod || len(e.Args) != 2 {
		return e
	}
	switch e.Name {
	case "eq":
		return &anchor.Expr{Kind: anchor.ExprBinary, Op: "==", Args: e.Args, Text: e.Text, Span: e.Span}
	case "ne":
		return &anchor.Expr{Kind: anchor.ExprBinary, Op: "!=", Args: e.Args, Text: e.Text, Span: e.Span}
	}
	return e
}

func isBoolLiteral(e *anchor.Expr) bool {
	e = e.Unparen()
	return e != nil && e.Kind == anchor.ExprLiteral && (e.Name == "true" || e.Name == "false")
}

// atom classifies a single predicate.
func (x *extractor) atom(e *anchor.Expr, holds bool, node int) {
	x.signerAtom(e, holds, node)
	x.initializedAtom(e, node)
	x.rentAtom(e, holds, node)
	if e.Kind == anchor.ExprBinary && comparisons[e.Op] {
		x.comparisonAtom(e, holds, node)
		return
	}
	if e.Kind == anchor.ExprMethod && e.Name == "is_owned_by" && holds {
		x.addGuard(OwnerCheck, x.d.AccountOf(e.Arg(0)), node, "is_owned_by", e)
	}
}

func (x *extractor) signerAtom(e *anchor.Expr, holds bool, node int) {
	if !holds {
		return
	}
	switch {
	case e.Kind == anchor.ExprField && e.Name == "is_signer",
		e.Kind == anchor.ExprMethod && e.Name == "is_signer":
		if acct := x.d.AccountOf(e.Arg(0)); acct != "" {
			x.addGuard(SignerCheck, acct, node, "is_signer", e)
		}
	}
}

// initializedAtom records emptiness and length checks regardless of polarity: either
// branch of `if data.is_empty()` has looked at the account's initialization state.
func (x *extractor) initializedAtom(e *anchor.Expr, node int) {
	e.Walk(func(s *anchor.Expr) bool {
		if (s.Kind == anchor.ExprMethod || s.Kind == anchor.ExprField) && initMembers[s.Name] {
			if acct := x.d.AccountOf(s.Arg(0)); acct != "" {
				x.addGuard(InitializedCheck, acct, node, s.Name, e)
			}
		}
		return s.Kind != anchor.ExprBlock
	})
}

// rentAtom matches rent.is_exempt(lamports, len) and lamports >= rent.minimum_balance(len).
func (x *extractor) rentAtom(e *anchor.Expr, holds bool, node int) {
	if e.Kind == anchor.ExprMethod && (e.Name == "is_exempt" || e.Name == "is_rent_exempt") && holds {
		x.addGuard(RentExemptCheck, x.accountIn(e.Args[1:]), node, e.Name, e)
		return
	}
	if e.Kind != anchor.ExprBinary || !comparisons[e.Op] || !containsCall(e, "minimum_balance") {
		return
	}
	onRight := containsCall(e.Arg(1), "minimum_balance")
	// with the threshold on the right, `>=` / `>` must hold; mirrored on the left
	ok := false
	switch e.Op {
	case ">=", ">":
		ok = holds == onRight
	case "<=", "<":
		ok = holds != onRight
	case "==":
		ok = holds
	case "!=":
		ok = !holds
	}
	if ok {
		x.addGuard(RentExemptCheck, x.accountIn(e.Args), node, "minimum_balance", e)
	}
}

func (x *extractor) comparisonAtom(e *anchor.Expr, holds bool, node int) {
	l, r := e.Arg(0).Unparen(), e.Arg(1).Unparen()
	if l == nil || r == nil {
		return
	}
	equal := e.Op == "==" && holds || e.Op == "!=" && !holds
	if equal {
		x.equalityAtom(e, l, r, node)
	}
	if isZeroLiteral(r) || isZeroLiteral(l) {
		x.nonZeroAtom(e, l, r, holds, node)
	}
}

// equalityAtom handles owner, key and PDA comparisons known to be equal at node.
func (x *extractor) equalityAtom(e, l, r *anchor.Expr, node int) {
	for _, side := range [][2]*anchor.Expr{{l, r}, {r, l}} {
		a, b := side[0], side[1]
		if pda := x.d.PDAOf(a); pda != "" {
			x.addPdaGuard(x.d.AccountOf(b), pda, node, e)
			return
		}
		if inline := findPDACall(a); inline != nil {
			x.addPdaGuard(x.d.AccountOf(b), inlineKey(inline), node, e)
			return
		}
	}
	for _, side := range []*anchor.Expr{l, r} {
		if m := member(side); m == "owner" || m == "key" {
			if acct := x.d.AccountOf(side); acct != "" {
				x.addGuard(OwnerCheck, acct, node, m, e)
			}
		}
	}
}

func (x *extractor) addPdaGuard(subject, target string, node int, e *anchor.Expr) {
	for _, g := range x.fs.Guards {
		if g.Kind == PdaCheck && g.Target == target && g.Node == node {
			return
		}
	}
	x.fs.Guards = append(x.fs.Guards, Guard{
		Kind: PdaCheck, Subject: subject, Target: target, Node: node, Via: "key", Span: x.span(e.Span), Text: strings.TrimSpace(e.Text),
	})
}

func (x *extractor) nonZeroAtom(e, l, r *anchor.Expr, holds bool, node int) {
	op := e.Op
	other := l
	if isZeroLiteral(l) {
		other = r
		op = mirror(op)
	}
	nonZero := false
	switch op {
	case "!=", ">":
		nonZero = holds
	case "==", "<=":
		nonZero = !holds
	}
	if nonZero {
		x.addGuard(NonZeroCheck, normText(other), node, op, e)
	}
}

func mirror(op string) string {
	switch op {
	case "<":
		return ">"
	case ">":
		return "<"
	case "<=":
		return ">="
	case ">=":
		return "<="
	}
	return op
}

// member returns the trailing field or accessor name of e: `a.owner`, `a.key()`, `*a.owner`.
func member(e *anchor.Expr) string {
	for e != nil {
		switch e.Kind {
		case anchor.ExprField:
			return e.Name
		case anchor.ExprMethod:
			switch e.Name {
			case "clone", "as_ref", "to_owned", "deref":
				e = e.Arg(0)
				continue
			}
			return e.Name
		case anchor.ExprRef, anchor.ExprUnary, anchor.ExprParen:
			e = e.Arg(0)
		default:
			return ""
		}
	}
	return ""
}

// accountIn returns the first account referenced by exprs, or "".
func (x *extractor) accountIn(exprs []*anchor.Expr) string {
	acct := ""
	for _, a := range exprs {
		a.Walk(func(s *anchor.Expr) bool {
			if acct == "" {
				acct = x.d.AccountOf(s)
			}
			return acct == ""
		})
		if acct != "" {
			return acct
		}
	}
	return ""
}

func containsCall(e *anchor.Expr, name string) bool {
	found := false
	e.Walk(func(s *anchor.Expr) bool {
		if (s.Kind == anchor.ExprMethod || s.Kind == anchor.ExprCall) && s.Last() == name {
			found = true
		}
		return !found
	})
	return found
}

func findPDACall(e *anchor.Expr) *anchor.Expr {
	var out *anchor.Expr
	e.Walk(func(s *anchor.Expr) bool {
		if out == nil && s.Kind == anchor.ExprCall && pdaCalls[s.Last()] {
			out = s
		}
		return out == nil
	})
	return out
}

func inlineKey(call *anchor.Expr) string {
	return "@" + normText(call)
}

func isZeroLiteral(e *anchor.Expr) bool {
	e = e.Unparen()
	if e == nil || e.Kind != anchor.ExprLiteral {
		return false
	}
	s := strings.ReplaceAll(e.Name, "_", "")
	if !strings.HasPrefix(s, "0") {
		return false
	}
	rest := strings.TrimLeft(s, "0")
	return rest == "" || rest[0] == 'u' || rest[0] == 'i' || rest == ".0" || strings.HasPrefix(rest, ".0f")
}

func isLiteral(e *anchor.Expr) bool {
	e = e.Unparen()
	return e != nil && e.Kind == anchor.ExprLiteral
}

// normText is e's source text without whitespace or enclosing parentheses.
func normText(e *anchor.Expr) string {
	e = e.Unparen()
	if e == nil {
		return ""
	}
	return strings.Join(strings.Fields(e.Text), "")
}

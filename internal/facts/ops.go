package facts

import (
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/analysis"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
)

var pdaCalls = map[string]bool{
	"find_program_address": true, "try_find_program_address": true, "create_program_address": true,
}

var creationCalls = map[string]bool{
	"create_account": true, "create_account_with_seed": true, "allocate": true, "allocate_with_seed": true,
}

// decoders that reinterpret bytes without checking length or layout
var rawDecoders = map[string]bool{
	"transmute": true, "transmute_copy": true, "from_raw_parts": true, "from_raw_parts_mut": true,
	"from_bytes_unchecked": true, "try_from_slice_unchecked": true, "unpack_unchecked": true,
	"try_deserialize_unchecked": true, "read_unaligned": true,
}

// decoders that validate length (and for Anchor types, the discriminator)
var checkedDecoders = map[string]bool{
	"try_from_slice": true, "deserialize": true, "try_deserialize": true, "unpack": true,
	"unpack_from_slice": true, "from_le_bytes": true, "from_be_bytes": true, "from_bytes": true,
	"try_from_bytes": true, "try_from_bytes_mut": true, "pod_from_bytes": true, "pod_from_bytes_mut": true,
	"deserialize_data": true,
}

var dataWriteMethods = map[string]bool{
	"copy_from_slice": true, "clone_from_slice": true, "fill": true, "copy_within": true,
	"swap_with_slice": true, "write_all": true,
}

var serializeCalls = map[string]bool{
	"serialize": true, "try_serialize": true, "pack": true, "pack_into_slice": true,
	"sol_memcpy": true, "sol_memset": true, "copy_nonoverlapping": true, "write_bytes": true,
}

var arithOps = map[string]ArithKind{"+": Add, "-": Sub, "*": Mul, "/": Div, "%": Rem}

var compoundOps = map[string]ArithKind{"+=": Add, "-=": Sub, "*=": Mul, "/=": Div, "%=": Rem}

var checkedPrefixes = []string{"checked_", "saturating_", "wrapping_", "overflowing_"}

// operations emits the sensitive operations evaluated at n.
func (x *extractor) operations(n *analysis.Node) {
	result := ""
	if s := n.Stmt; s != nil && s.Kind == anchor.StmtLet && len(s.Names) > 0 && !strings.HasPrefix(s.Names[0], "_") {
		result = s.Names[0]
	}
	n.Expr.Walk(func(e *anchor.Expr) bool {
		switch e.Kind {
		case anchor.ExprAssign:
			x.assignment(e, n.ID)
		case anchor.ExprBinary:
			x.binary(e, n.ID)
		case anchor.ExprMethod:
			x.method(e, n.ID)
		case anchor.ExprCall:
			x.call(e, n.ID, result)
		case anchor.ExprCast:
			x.cast(e, n.ID)
		}
		return true
	})
}

// transfers that move lamports into an account: system_instruction::transfer(from, to, n)
// and system_program::transfer(cpi_ctx, n)
var transferCalls = map[string]bool{"transfer": true, "transfer_with_seed": true}

// position of the lamports argument in the system_instruction builders; the CPI
// helpers take it right after the context
var lamportsIndex = map[string]int{
	"create_account": 2, "create_account_with_seed": 4, "transfer": 2, "transfer_with_seed": 5,
}

// statementGuards credits rent exemption to the account a creation or transfer funds
// with rent.minimum_balance. Branch conditions are classified on their assume nodes.
func (x *extractor) statementGuards(n *analysis.Node) {
	if s := n.Stmt; s != nil {
		switch s.Kind {
		case anchor.StmtIf, anchor.StmtLoop, anchor.StmtMatch, anchor.StmtAssert:
			return
		}
	}
	n.Expr.Walk(func(e *anchor.Expr) bool {
		if e.Kind != anchor.ExprCall {
			return true
		}
		name := e.Last()
		if !creationCalls[name] && !transferCalls[name] {
			return true
		}
		if !x.rentFunded(x.lamportsArg(e, name)) {
			return true
		}
		if acct := x.createdAccount(e); acct != "" {
			x.addGuard(RentExemptCheck, acct, n.ID, "minimum_balance", e)
		}
		return true
	})
}

func (x *extractor) lamportsArg(call *anchor.Expr, name string) *anchor.Expr {
	if i, ok := lamportsIndex[name]; ok && len(call.Args) > i && x.d.AccountOf(call.Arg(1)) != "" {
		return call.Args[i]
	}
	return call.Arg(1)
}

// rentFunded reports whether e is computed from rent.minimum_balance, directly or
// through a local bound to it.
func (x *extractor) rentFunded(e *anchor.Expr) bool {
	if e == nil {
		return false
	}
	found := false
	e.Walk(func(s *anchor.Expr) bool {
		switch {
		case (s.Kind == anchor.ExprMethod || s.Kind == anchor.ExprCall) && s.Last() == "minimum_balance":
			found = true
		case s.Kind == anchor.ExprIdent && x.rentLocals[s.Name]:
			found = true
		}
		return !found
	})
	return found
}

// collectRentLocals records the locals whose value derives from rent.minimum_balance.
func (x *extractor) collectRentLocals() {
	x.rentLocals = map[string]bool{}
	for _, n := range x.g.Nodes {
		s := n.Stmt
		if s == nil || s.Kind != anchor.StmtLet || len(s.Names) != 1 || n.Expr == nil {
			continue
		}
		if x.rentFunded(n.Expr) {
			x.rentLocals[s.Names[0]] = true
		}
	}
}

func (x *extractor) assignment(e *anchor.Expr, node int) {
	lhs, rhs := e.Arg(0), e.Arg(1)
	if lhs == nil {
		return
	}
	arith, compound := compoundOps[e.Op]
	if isLamportPlace(lhs) {
		op := Operation{Kind: LamportMutation, Direction: Set}
		switch e.Op {
		case "-=":
			op.Direction = Debit
		case "+=":
			op.Direction = Credit
		}
		if acct := x.d.AccountOf(lhs); acct != "" {
			op.Subjects = []string{acct}
		}
		x.addOp(op, e, node)
		if compound {
			// lamport balances are account state, so the operand is always tainted
			x.addOp(Operation{Kind: ArithmeticOp, Arith: arith, Tainted: true, Subjects: op.Subjects, Divisor: divisor(arith, rhs)}, e, node)
		}
		return
	}
	if acct, field := x.writtenAccount(lhs); acct != "" {
		x.addOp(Operation{Kind: AccountDataWrite, Subjects: []string{acct}, Method: field}, e, node)
	}
	if compound {
		x.addOp(Operation{
			Kind:    ArithmeticOp,
			Arith:   arith,
			Tainted: x.d.IsTainted(lhs) || x.d.IsTainted(rhs),
			Divisor: divisor(arith, rhs),
		}, e, node)
	}
}

// isLamportPlace matches **acct.try_borrow_mut_lamports()?, **acct.lamports.borrow_mut()
// and acct.lamports.
func isLamportPlace(e *anchor.Expr) bool {
	found := false
	e.Walk(func(s *anchor.Expr) bool {
		switch {
		case s.Kind == anchor.ExprMethod && s.Name == "try_borrow_mut_lamports",
			s.Kind == anchor.ExprField && s.Name == "lamports":
			found = true
		}
		return !found && s.Kind != anchor.ExprIndex
	})
	return found
}

// writtenAccount resolves an assignment target to the account whose data it changes.
func (x *extractor) writtenAccount(lhs *anchor.Expr) (string, string) {
	place := lhs.Unparen()
	for place != nil && place.Kind == anchor.ExprUnary && place.Op == "*" {
		place = place.Arg(0).Unparen()
	}
	if place == nil {
		return "", ""
	}
	switch place.Kind {
	case anchor.ExprIndex:
		if acct := x.d.DataOf(place.Arg(0)); acct != "" {
			return acct, ""
		}
		if base := rootIdent(place.Arg(0)); base != "" {
			if acct, ok := x.d.Deserialized[base]; ok {
				return acct, ""
			}
		}
	case anchor.ExprField:
		if acct, ok := x.d.Deserialized[rootIdent(place)]; ok {
			return acct, place.Name
		}
		// typed account state: ctx.accounts.vault.amount, or an alias of it
		if acct := x.d.AccountOf(place.Arg(0)); acct != "" {
			return acct, place.Name
		}
	}
	return "", ""
}

func rootIdent(e *anchor.Expr) string {
	for e != nil {
		switch e.Kind {
		case anchor.ExprIdent:
			return e.Name
		case anchor.ExprField, anchor.ExprIndex, anchor.ExprUnary, anchor.ExprParen, anchor.ExprRef, anchor.ExprMethod:
			e = e.Arg(0)
		default:
			return ""
		}
	}
	return ""
}

func (x *extractor) binary(e *anchor.Expr, node int) {
	arith, ok := arithOps[e.Op]
	if !ok {
		return
	}
	l, r := e.Arg(0), e.Arg(1)
	if isLiteral(l) && isLiteral(r) {
		return
	}
	x.addOp(Operation{
		Kind:    ArithmeticOp,
		Arith:   arith,
		Tainted: x.d.IsTainted(l) || x.d.IsTainted(r),
		Divisor: divisor(arith, r),
	}, e, node)
}

// divisor is the normalized right operand of a division, or "" for non-zero constants.
func divisor(arith ArithKind, r *anchor.Expr) string {
	if arith != Div && arith != Rem || r == nil {
		return ""
	}
	if isLiteral(r) && !isZeroLiteral(r) {
		return ""
	}
	r = r.Unparen()
	if (r.Kind == anchor.ExprPath || r.Kind == anchor.ExprIdent) && isConstName(r.Last()) {
		return ""
	}
	return normText(r)
}

// isConstName matches SCREAMING_CASE identifiers.
func isConstName(s string) bool {
	upper := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c == '_' || c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return upper
}

func (x *extractor) method(e *anchor.Expr, node int) {
	name := e.Name
	recv := e.Arg(0)
	for _, p := range checkedPrefixes {
		if !strings.HasPrefix(name, p) {
			continue
		}
		if arith, ok := arithOps[arithSymbol(strings.TrimPrefix(name, p))]; ok {
			x.addOp(Operation{
				Kind:    ArithmeticOp,
				Arith:   arith,
				Checked: true,
				Tainted: x.d.IsTainted(recv) || len(e.Args) > 1 && x.d.IsTainted(e.Args[1]),
				Method:  name,
			}, e, node)
		}
		return
	}
	switch {
	case name == "sub_lamports" || name == "add_lamports" || name == "set_lamports":
		op := Operation{Kind: LamportMutation, Direction: Set, Method: name}
		if name == "sub_lamports" {
			op.Direction = Debit
		} else if name == "add_lamports" {
			op.Direction = Credit
		}
		if acct := x.d.AccountOf(recv); acct != "" {
			op.Subjects = []string{acct}
		}
		x.addOp(op, e, node)
	case dataWriteMethods[name]:
		if acct := x.d.DataOf(recv); acct != "" {
			x.addOp(Operation{Kind: AccountDataWrite, Subjects: []string{acct}, Method: name}, e, node)
		} else if acct := x.deserializedRoot(recv); acct != "" {
			x.addOp(Operation{Kind: AccountDataWrite, Subjects: []string{acct}, Method: name}, e, node)
		}
	case serializeCalls[name]:
		if acct := x.dataArg(e.Args[1:]); acct != "" {
			x.addOp(Operation{Kind: AccountDataWrite, Subjects: []string{acct}, Method: name}, e, node)
		}
	case name == "deserialize_data":
		if acct := x.d.AccountOf(recv); acct != "" {
			x.addOp(Operation{Kind: RawDeserialization, Checked: true, Subjects: []string{acct}, Method: name}, e, node)
		}
	case name == "unwrap" || name == "expect":
		inner := recv.Unparen()
		if inner == nil {
			return
		}
		if inner.Kind == anchor.ExprCall || inner.Kind == anchor.ExprMethod || inner.Kind == anchor.ExprIdent && x.d.Fallible[inner.Name] {
			op := Operation{Kind: ForceUnwrap, Method: name}
			if acct := x.d.AccountOf(inner); acct != "" {
				op.Subjects = []string{acct}
			}
			x.addOp(op, e, node)
		}
	}
}

func arithSymbol(word string) string {
	switch word {
	case "add":
		return "+"
	case "sub":
		return "-"
	case "mul":
		return "*"
	case "div":
		return "/"
	case "rem":
		return "%"
	}
	return ""
}

func (x *extractor) deserializedRoot(e *anchor.Expr) string {
	if base := rootIdent(e); base != "" {
		return x.d.Deserialized[base]
	}
	return ""
}

// dataArg returns the account whose bytes one of args refers to.
func (x *extractor) dataArg(args []*anchor.Expr) string {
	for _, a := range args {
		if acct := x.d.ReadsData(a); acct != "" {
			return acct
		}
	}
	return ""
}

func (x *extractor) call(e *anchor.Expr, node int, result string) {
	name := e.Last()
	switch {
	case pdaCalls[name]:
		op := Operation{Kind: PdaDerivation, Method: name, Result: inlineKey(e)}
		if result != "" && x.isBoundCall(e) {
			op.Result = result
		}
		x.addOp(op, e, node)
	case creationCalls[name]:
		op := Operation{Kind: AccountCreation, Method: name}
		if acct := x.createdAccount(e); acct != "" {
			op.Subjects = []string{acct}
		}
		x.addOp(op, e, node)
	case rawDecoders[name] || name == "read" && strings.Contains(e.Name, "ptr::"):
		op := Operation{Kind: RawDeserialization, Method: name}
		if acct := x.dataArg(e.Args); acct != "" {
			op.Subjects = []string{acct}
		}
		x.addOp(op, e, node)
	case checkedDecoders[name]:
		if acct := x.dataArg(e.Args); acct != "" {
			x.addOp(Operation{Kind: RawDeserialization, Checked: true, Subjects: []string{acct}, Method: name}, e, node)
		}
	case serializeCalls[name]:
		if acct := x.dataArg(e.Args); acct != "" {
			x.addOp(Operation{Kind: AccountDataWrite, Subjects: []string{acct}, Method: name}, e, node)
		}
	case name == "try_from" || name == "from_account_info":
		// Account::<T>::try_from(&info) validates owner and discriminator
		if acct := x.d.AccountOf(e.Arg(0)); acct != "" && strings.Contains(e.Name, "Account") {
			x.addOp(Operation{Kind: RawDeserialization, Checked: true, Subjects: []string{acct}, Method: name}, e, node)
		}
	}
}

// isBoundCall reports whether call is the value of the enclosing let, possibly behind
// `?`, unwrap or parentheses.
func (x *extractor) isBoundCall(call *anchor.Expr) bool {
	for _, n := range x.g.Nodes {
		if n.Stmt == nil || n.Stmt.Kind != anchor.StmtLet || n.Expr == nil {
			continue
		}
		v := n.Expr
		for v != nil && v != call {
			switch {
			case v.Kind == anchor.ExprTry || v.Kind == anchor.ExprParen:
				v = v.Arg(0)
			case v.Kind == anchor.ExprMethod && (v.Name == "unwrap" || v.Name == "expect"):
				v = v.Arg(0)
			default:
				v = nil
			}
		}
		if v == call {
			return true
		}
	}
	return false
}

// createdAccount picks the new account out of system_instruction::create_account(from,
// to, ...) or an Anchor CPI context.
func (x *extractor) createdAccount(e *anchor.Expr) string {
	if len(e.Args) >= 2 {
		if acct := x.d.AccountOf(e.Args[1]); acct != "" {
			return acct
		}
	}
	var acct string
	e.Walk(func(s *anchor.Expr) bool {
		if acct != "" {
			return false
		}
		// CreateAccount { from, to } inside a CpiContext
		if s.Kind == anchor.ExprBlock && strings.HasPrefix(strings.TrimSpace(s.Text), "to:") {
			acct = x.accountIn(s.Args)
		}
		return acct == ""
	})
	if acct == "" && len(e.Args) == 1 {
		acct = x.accountIn(e.Args)
	}
	return acct
}

func (x *extractor) cast(e *anchor.Expr, node int) {
	t := strings.Join(strings.Fields(e.Type), "")
	if !strings.HasPrefix(t, "*const") && !strings.HasPrefix(t, "*mut") {
		return
	}
	target := strings.TrimPrefix(strings.TrimPrefix(t, "*const"), "*mut")
	if target == "u8" || target == "[u8]" {
		return
	}
	if acct := x.d.ReadsData(e.Arg(0)); acct != "" {
		x.addOp(Operation{Kind: RawDeserialization, Subjects: []string{acct}, Method: "pointer-cast"}, e, node)
	}
}

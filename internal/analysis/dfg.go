package analysis

import (
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// DFG is a flow-insensitive summary of the locals of one function: which name refers
// to which account, which names hold raw account bytes or a decoded view of them, which
// names hold derived PDAs, and which values are controlled by the caller.
type DFG struct {
	Context  string
	Accounts map[string]bool
	// Locals are accounts obtained in the body (next_account_info, slice indexing).
	Locals       map[string]model.Span
	Aliases      map[string]string
	DataAliases  map[string]string
	Deserialized map[string]string
	PDAs         map[string]model.Span
	Tainted      map[string]bool
	// Fallible are locals holding the unhandled result of a call.
	Fallible map[string]bool
	slices   map[string]bool
}

// methods that hand back (a view of) their receiver's account
var passThroughMethods = map[string]bool{
	"clone": true, "to_account_info": true, "as_ref": true, "as_mut": true, "deref": true,
	"deref_mut": true, "unwrap": true, "expect": true, "borrow": true, "borrow_mut": true,
	"try_borrow_data": true, "try_borrow_mut_data": true, "data": true, "load": true,
	"load_mut": true, "load_init": true, "into_inner": true, "iter": true,
}

var dataMethods = map[string]bool{
	"try_borrow_data": true, "try_borrow_mut_data": true, "data": true,
}

// decoders over account bytes; true when the result is a view that writes through to
// the account rather than an owned copy
var deserializeCalls = map[string]bool{
	"transmute": true, "transmute_copy": false, "read": false, "read_unaligned": false,
	"from_raw_parts": true, "from_raw_parts_mut": true, "from_bytes": true, "from_bytes_mut": true,
	"from_bytes_unchecked": true, "try_from_slice": false, "try_from_slice_unchecked": false,
	"deserialize": false, "try_deserialize": false, "try_deserialize_unchecked": false,
	"unpack": false, "unpack_unchecked": false, "unpack_from_slice": false, "from_le_bytes": false,
	"from_be_bytes": false, "from_account_info": true, "try_from": true, "load": true,
	"load_mut": true, "cast": true, "cast_mut": true, "try_from_bytes": true,
	"try_from_bytes_mut": true, "pod_from_bytes": true, "pod_from_bytes_mut": true,
}

// BuildDFG computes aliases and taint for fn. It iterates to a fixpoint so uses that
// precede their definition inside loops are resolved.
func BuildDFG(fn *anchor.FunctionIR) *DFG {
	d := &DFG{
		Context:      fn.Context,
		Accounts:     map[string]bool{},
		Locals:       map[string]model.Span{},
		Aliases:      map[string]string{},
		DataAliases:  map[string]string{},
		Deserialized: map[string]string{},
		PDAs:         map[string]model.Span{},
		Tainted:      map[string]bool{},
		Fallible:     map[string]bool{},
		slices:       map[string]bool{},
	}
	for _, a := range fn.Accounts {
		d.Accounts[a.Name] = true
	}
	for _, s := range fn.AccountSlices {
		d.slices[s] = true
	}
	for _, p := range fn.Params {
		if p.Name == fn.Context || d.Accounts[p.Name] || d.slices[p.Name] {
			continue
		}
		d.Tainted[p.Name] = true
	}
	var lets []*anchor.Stmt
	collectBindings(fn.Body, &lets)
	for i := 0; i < 4; i++ {
		before := d.size()
		for _, s := range lets {
			d.bind(s)
		}
		if d.size() == before {
			break
		}
	}
	return d
}

func (d *DFG) size() int {
	return len(d.Locals) + len(d.Aliases) + len(d.DataAliases) + len(d.Deserialized) + len(d.PDAs) + len(d.Tainted)
}

// collectBindings gathers statements that bind names: let, for loops and if-let / while
// let conditions.
func collectBindings(b *anchor.Block, out *[]*anchor.Stmt) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		if len(s.Names) > 0 && s.X != nil {
			*out = append(*out, s)
		}
		collectBindings(s.Then, out)
		collectBindings(s.Else, out)
		collectBindings(s.Body, out)
		for _, arm := range s.Arms {
			collectBindings(arm, out)
		}
	}
}

func (d *DFG) bind(s *anchor.Stmt) {
	x := s.X
	first := s.Names[0]
	if first == "_" || strings.HasPrefix(first, "_") && len(s.Names) == 1 {
		return
	}
	if s.Kind == anchor.StmtLet && s.Else == nil && len(s.Names) == 1 && isCallResult(x) {
		d.Fallible[first] = true
	}
	if isPDADerivation(x) {
		if _, ok := d.PDAs[first]; !ok {
			d.PDAs[first] = x.Span
		}
		return
	}
	if s.Kind == anchor.StmtLoop && d.iteratesSlice(x) || s.Kind == anchor.StmtLet && d.isLocalAccount(x) {
		if _, ok := d.Locals[first]; !ok {
			d.Locals[first] = s.Span
		}
		return
	}
	if acct, view := d.deserializedFrom(x); acct != "" {
		if view {
			d.Deserialized[first] = acct
		}
		d.markTainted(s.Names)
		return
	}
	if acct := d.DataOf(x); acct != "" {
		d.DataAliases[first] = acct
		d.markTainted(s.Names)
		return
	}
	if acct := d.AccountOf(x); acct != "" && s.Kind != anchor.StmtLoop {
		if root := x.Unparen(); root.Kind == anchor.ExprField || root.Kind == anchor.ExprIdent || root.Kind == anchor.ExprRef || passThrough(root) {
			d.Aliases[first] = acct
			return
		}
	}
	if d.IsTainted(x) {
		d.markTainted(s.Names)
	}
}

// isCallResult matches a call whose result is bound as is, without `?` or an unwrap.
func isCallResult(e *anchor.Expr) bool {
	e = e.Unparen()
	switch {
	case e == nil:
		return false
	case e.Kind == anchor.ExprCall:
		return true
	case e.Kind == anchor.ExprMethod:
		return !strings.HasPrefix(e.Name, "unwrap") && !strings.HasPrefix(e.Name, "expect")
	}
	return false
}

func passThrough(e *anchor.Expr) bool {
	return e.Kind == anchor.ExprMethod && passThroughMethods[e.Name] || e.Kind == anchor.ExprTry
}

func (d *DFG) markTainted(names []string) {
	for _, n := range names {
		if n != "_" {
			d.Tainted[n] = true
		}
	}
}

func isPDADerivation(e *anchor.Expr) bool {
	e = stripWrappers(e)
	if e == nil || e.Kind != anchor.ExprCall {
		return false
	}
	switch e.Last() {
	case "find_program_address", "try_find_program_address", "create_program_address":
		return true
	}
	return false
}

// stripWrappers removes `?`, parentheses, references and unwrap/expect.
func stripWrappers(e *anchor.Expr) *anchor.Expr {
	for e != nil {
		switch {
		case e.Kind == anchor.ExprParen || e.Kind == anchor.ExprTry || e.Kind == anchor.ExprRef:
			e = e.Arg(0)
		case e.Kind == anchor.ExprMethod && (e.Name == "unwrap" || e.Name == "expect" || e.Name == "unwrap_or_default"):
			e = e.Arg(0)
		default:
			return e
		}
	}
	return nil
}

func (d *DFG) isLocalAccount(e *anchor.Expr) bool {
	e = stripWrappers(e)
	if e == nil {
		return false
	}
	switch e.Kind {
	case anchor.ExprCall:
		return e.Last() == "next_account_info"
	case anchor.ExprIndex:
		base := stripWrappers(e.Arg(0))
		return base != nil && base.Kind == anchor.ExprIdent && d.slices[base.Name]
	case anchor.ExprMethod:
		if e.Name != "next" {
			return false
		}
		if d.iteratesSlice(e.Arg(0)) {
			return true
		}
		recv := stripWrappers(e.Arg(0))
		return recv != nil && recv.Kind == anchor.ExprIdent && strings.Contains(recv.Name, "account")
	}
	return false
}

// iteratesSlice matches accounts.iter(), accounts.iter().skip(1) and the like.
func (d *DFG) iteratesSlice(e *anchor.Expr) bool {
	e = stripWrappers(e)
	for e != nil && e.Kind == anchor.ExprMethod {
		e = stripWrappers(e.Arg(0))
	}
	return e != nil && e.Kind == anchor.ExprIdent && d.slices[e.Name]
}

// IsAccount reports whether name is a declared, local or aliased account.
func (d *DFG) IsAccount(name string) bool {
	if d.Accounts[name] {
		return true
	}
	if _, ok := d.Locals[name]; ok {
		return true
	}
	_, ok := d.Aliases[name]
	return ok
}

func (d *DFG) resolve(name string) string {
	if d.Accounts[name] {
		return name
	}
	if _, ok := d.Locals[name]; ok {
		return name
	}
	if a, ok := d.Aliases[name]; ok {
		return a
	}
	if a, ok := d.DataAliases[name]; ok {
		return a
	}
	if a, ok := d.Deserialized[name]; ok {
		return a
	}
	return ""
}

// AccountOf returns the account an expression is rooted at, following field chains,
// method receivers, references and locals. ctx.accounts.vault.data resolves to vault.
func (d *DFG) AccountOf(e *anchor.Expr) string {
	for e != nil {
		switch e.Kind {
		case anchor.ExprIdent:
			return d.resolve(e.Name)
		case anchor.ExprField:
			if d.isAccountsField(e.Arg(0)) {
				return e.Name
			}
			e = e.Arg(0)
		case anchor.ExprMethod, anchor.ExprRef, anchor.ExprUnary, anchor.ExprTry, anchor.ExprParen,
			anchor.ExprCast, anchor.ExprIndex:
			e = e.Arg(0)
		case anchor.ExprCall:
			switch e.Last() {
			case "try_from", "from", "new", "try_from_unchecked", "from_account_info":
				e = e.Arg(0)
			default:
				return ""
			}
		default:
			return ""
		}
	}
	return ""
}

// isAccountsField matches `ctx.accounts`.
func (d *DFG) isAccountsField(e *anchor.Expr) bool {
	e = e.Unparen()
	if e == nil || e.Kind != anchor.ExprField || e.Name != "accounts" {
		return false
	}
	recv := e.Arg(0).Unparen()
	return recv != nil && recv.Kind == anchor.ExprIdent && (recv.Name == d.Context || d.Context == "" && recv.Name == "ctx")
}

// DataOf returns the account whose raw bytes e reads: `acct.data`, `acct.try_borrow_data()`,
// a data alias, or an index/slice/borrow of one of those.
func (d *DFG) DataOf(e *anchor.Expr) string {
	for e != nil {
		switch e.Kind {
		case anchor.ExprIdent:
			return d.DataAliases[e.Name]
		case anchor.ExprField:
			if e.Name == "data" {
				if acct := d.AccountOf(e.Arg(0)); acct != "" {
					return acct
				}
			}
			return ""
		case anchor.ExprMethod:
			if dataMethods[e.Name] {
				if acct := d.AccountOf(e.Arg(0)); acct != "" {
					return acct
				}
			}
			if !passThroughMethods[e.Name] && e.Name != "try_into" && e.Name != "to_vec" {
				return ""
			}
			e = e.Arg(0)
		case anchor.ExprRef, anchor.ExprUnary, anchor.ExprTry, anchor.ExprParen, anchor.ExprIndex, anchor.ExprCast:
			e = e.Arg(0)
		default:
			return ""
		}
	}
	return ""
}

// ReadsData reports the first account whose bytes appear anywhere inside e.
func (d *DFG) ReadsData(e *anchor.Expr) string {
	acct := ""
	e.Walk(func(x *anchor.Expr) bool {
		if acct != "" {
			return false
		}
		acct = d.DataOf(x)
		return acct == ""
	})
	return acct
}

func (d *DFG) deserializedFrom(e *anchor.Expr) (acct string, view bool) {
	e.Walk(func(x *anchor.Expr) bool {
		if acct != "" {
			return false
		}
		name := x.Last()
		isView, known := deserializeCalls[name]
		if !known || x.Kind != anchor.ExprCall && x.Kind != anchor.ExprMethod {
			return true
		}
		if x.Kind == anchor.ExprMethod && name != "load" && name != "load_mut" {
			return true
		}
		view = isView
		for _, a := range x.Args {
			if got := d.ReadsData(a); got != "" {
				acct = got
				return false
			}
		}
		if x.Kind == anchor.ExprMethod || name == "try_from" || name == "from_account_info" {
			acct = d.AccountOf(x.Arg(0))
		}
		return acct == ""
	})
	return acct, view
}

// IsTainted reports whether e depends on instruction arguments or account-controlled
// state.
func (d *DFG) IsTainted(e *anchor.Expr) bool {
	tainted := false
	e.Walk(func(x *anchor.Expr) bool {
		if tainted {
			return false
		}
		switch x.Kind {
		case anchor.ExprIdent:
			tainted = d.Tainted[x.Name]
		case anchor.ExprField:
			// state read straight off an account: ctx.accounts.vault.amount, acct.lamports
			if d.isAccountsField(x.Arg(0)) {
				return false
			}
			if acct := d.AccountOf(x.Arg(0)); acct != "" && x.Name != "key" && x.Name != "owner" {
				tainted = true
			}
		case anchor.ExprMethod:
			if x.Name == "lamports" || dataMethods[x.Name] {
				tainted = d.AccountOf(x.Arg(0)) != ""
			}
		}
		return !tainted
	})
	return tainted
}

// PDAOf returns the PDA variable e names, if any.
func (d *DFG) PDAOf(e *anchor.Expr) string {
	e = stripWrappers(e)
	for e != nil && (e.Kind == anchor.ExprUnary || e.Kind == anchor.ExprMethod && (e.Name == "key" || e.Name == "clone" || e.Name == "as_ref")) {
		e = stripWrappers(e.Arg(0))
	}
	if e == nil || e.Kind != anchor.ExprIdent {
		return ""
	}
	if _, ok := d.PDAs[e.Name]; ok {
		return e.Name
	}
	return ""
}

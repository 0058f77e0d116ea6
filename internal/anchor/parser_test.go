package anchor

import (
	"context"
	"testing"
)

const program = `
use anchor_lang::prelude::*;

#[program]
pub mod escrow {
    use super::*;

    pub fn settle(ctx: Context<Settle>, amount: u64) -> Result<()> {
        require_keys_eq!(ctx.accounts.vault.owner, crate::ID, EscrowError::Owner);
        if amount == 0 {
            return err!(EscrowError::Zero);
        }
        for i in 0..3 {
            msg!("{}", i);
        }
        Ok(())
    }
}

#[derive(Accounts)]
pub struct Settle<'info> {
    #[account(mut, has_one = authority)]
    pub vault: Account<'info, Vault>,
    #[account(init, payer = authority, space = 8 + 32, seeds = [b"x", authority.key().as_ref()], bump)]
    pub receipt: Account<'info, Receipt>,
    pub authority: Signer<'info>,
    /// CHECK: raw
    pub raw: AccountInfo<'info>,
}

fn helper(account: &AccountInfo, others: &[AccountInfo]) -> bool {
    account.data_len() > 0
}
`

func parse(t *testing.T, src string) *FileIR {
	t.Helper()
	ir, err := NewParser().Parse(context.Background(), "lib.rs", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return ir
}

func TestParseLinksAccountsStruct(t *testing.T) {
	ir := parse(t, program)
	fn := ir.Function("settle")
	if fn == nil {
		t.Fatal("settle not found")
	}
	if !fn.InProgram || !fn.Public || fn.Context != "ctx" || fn.AccountsType != "Settle" {
		t.Fatalf("unexpected handler header %+v", fn)
	}
	if len(fn.Accounts) != 4 {
		t.Fatalf("expected 4 linked accounts, got %d", len(fn.Accounts))
	}
	byName := map[string]AccountDecl{}
	for _, a := range fn.Accounts {
		byName[a.Name] = a
	}
	tests := []struct {
		name                                      string
		mutable, signer, init, seeds, bump, typed bool
	}{
		{"vault", true, false, false, false, false, true},
		{"receipt", true, false, true, true, true, true},
		{"authority", false, true, false, false, false, false},
		{"raw", false, false, false, false, false, false},
	}
	for _, tc := range tests {
		a, ok := byName[tc.name]
		if !ok {
			t.Fatalf("account %s missing", tc.name)
		}
		if a.Mutable != tc.mutable || a.Signer != tc.signer || a.Init != tc.init || a.Seeds != tc.seeds || a.Bump != tc.bump || a.Typed() != tc.typed {
			t.Errorf("%s: got %+v", tc.name, a)
		}
	}
	if got := byName["vault"].Span.StartLine; got != 23 {
		t.Errorf("vault declared on line %d, want 23", got)
	}
}

func TestParseStatements(t *testing.T) {
	ir := parse(t, program)
	fn := ir.Function("settle")
	stmts := fn.Body.Stmts
	if len(stmts) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(stmts))
	}
	assert := stmts[0]
	if assert.Kind != StmtAssert || assert.X == nil || assert.X.Kind != ExprBinary || assert.X.Op != "==" {
		t.Fatalf("require_keys_eq! should become an equality assertion: %+v", assert)
	}
	if l := assert.X.Arg(0); l == nil || l.Kind != ExprField || l.Name != "owner" {
		t.Fatalf("left operand = %+v", assert.X.Arg(0))
	}
	if assert.X.Span.StartLine != 9 {
		t.Errorf("assertion span starts on %d, want 9", assert.X.Span.StartLine)
	}
	if stmts[1].Kind != StmtIf || stmts[1].Then == nil || stmts[1].Then.Stmts[0].Kind != StmtReturn {
		t.Fatalf("if/return not modelled: %+v", stmts[1])
	}
	if stmts[2].Kind != StmtLoop || stmts[2].Loop != "for" || len(stmts[2].Names) != 1 || stmts[2].Names[0] != "i" {
		t.Fatalf("for loop not modelled: %+v", stmts[2])
	}
	if !stmts[3].Tail {
		t.Fatalf("Ok(()) should be the tail expression")
	}
}

func TestParseFreeFunction(t *testing.T) {
	ir := parse(t, program)
	fn := ir.Function("helper")
	if fn == nil {
		t.Fatal("helper not found")
	}
	if fn.Public || fn.InProgram || !fn.ReturnsBool() {
		t.Fatalf("unexpected header %+v", fn)
	}
	if len(fn.Accounts) != 1 || fn.Accounts[0].Name != "account" || fn.Accounts[0].Source != "parameter" {
		t.Fatalf("parameter account missing: %+v", fn.Accounts)
	}
	if len(fn.AccountSlices) != 1 || fn.AccountSlices[0] != "others" {
		t.Fatalf("account slice missing: %+v", fn.AccountSlices)
	}
}

func TestParseMarksMalformedFunctions(t *testing.T) {
	src := `
pub fn good(a: u64) -> u64 { a }

pub fn bad(a: u64) -> u64 {
    let x = a +;
    x
}
`
	ir := parse(t, src)
	if fn := ir.Function("good"); fn == nil || fn.Malformed {
		t.Fatalf("good should parse cleanly: %+v", fn)
	}
	if fn := ir.Function("bad"); fn == nil || !fn.Malformed {
		t.Fatalf("bad should be malformed: %+v", fn)
	}
}

func TestUnresolvedAccountsStruct(t *testing.T) {
	ir := parse(t, `pub fn run(ctx: Context<Missing>) -> Result<()> { Ok(()) }`)
	fn := ir.Function("run")
	if len(fn.Issues) != 1 || fn.Issues[0].Kind != "unresolved-accounts" {
		t.Fatalf("issues = %+v", fn.Issues)
	}
}

func TestSplitTopLevel(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"mut", 1},
		{"mut, seeds = [b\"a\", b\"b\"], bump", 3},
		{"constraint = f(a, b) @ E::X, has_one = c", 2},
		{"", 0},
	}
	for _, tc := range tests {
		if got := len(splitTopLevel(tc.in, ',')); got != tc.want {
			t.Errorf("splitTopLevel(%q) = %d parts, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCompactTypeAndContext(t *testing.T) {
	if got := compactType("&'a mut AccountInfo<'info>"); got != "AccountInfo<'info>" {
		t.Errorf("compactType = %q", got)
	}
	if got := contextAccounts("Context<'_, '_, '_, 'info, Settle<'info>>"); got != "Settle" {
		t.Errorf("contextAccounts = %q", got)
	}
	if got := stripTurbofish("std::mem::transmute::<&[u8], &Meta>"); got != "std::mem::transmute" {
		t.Errorf("stripTurbofish = %q", got)
	}
}

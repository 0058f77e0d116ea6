package plugins

import (
	"context"
	"testing"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

func factsFor(t *testing.T, src, name string) *facts.FactSet {
	t.Helper()
	ir, err := anchor.NewParser().Parse(context.Background(), "lib.rs", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fn := ir.Function(name)
	if fn == nil {
		t.Fatalf("function %s not found", name)
	}
	fs, err := facts.Extract(context.Background(), "lib.rs", fn)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return fs
}

func TestDetectors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		fn   string
		rule string
		want int
		line int
		conf model.Confidence
	}{
		{
			name: "debit without signer",
			src: `
pub fn pay(from: &AccountInfo, to: &AccountInfo, amount: u64) -> ProgramResult {
    **from.try_borrow_mut_lamports()? -= amount;
    **to.try_borrow_mut_lamports()? += amount;
    Ok(())
}`,
			fn: "pay", rule: "MissingSignerCheck", want: 1, line: 3, conf: model.ConfidenceCertain,
		},
		{
			name: "debit after early return on missing signature",
			src: `
pub fn pay(from: &AccountInfo, to: &AccountInfo, amount: u64) -> ProgramResult {
    if !from.is_signer {
        return Err(ProgramError::MissingRequiredSignature);
    }
    **from.try_borrow_mut_lamports()? -= amount;
    **to.try_borrow_mut_lamports()? += amount;
    Ok(())
}`,
			fn: "pay", rule: "MissingSignerCheck", want: 0,
		},
		{
			name: "write without owner check",
			src: `
pub fn stamp(info: &AccountInfo) -> ProgramResult {
    let mut data = info.try_borrow_mut_data()?;
    data[0] = 1;
    data[1] = 2;
    Ok(())
}`,
			fn: "stamp", rule: "UncheckedOwnership", want: 1, line: 4, conf: model.ConfidenceLikely,
		},
		{
			name: "write after owner check",
			src: `
pub fn stamp(info: &AccountInfo, program_id: &Pubkey) -> ProgramResult {
    if info.owner != program_id {
        return Err(ProgramError::IncorrectProgramId);
    }
    let mut data = info.try_borrow_mut_data()?;
    data[0] = 1;
    Ok(())
}`,
			fn: "stamp", rule: "UncheckedOwnership", want: 0,
		},
		{
			name: "transmute of account bytes",
			src: `
pub fn load(info: &AccountInfo) -> ProgramResult {
    let data = info.try_borrow_data()?;
    let header = unsafe { std::mem::transmute::<&[u8], &Header>(&data[..]) };
    Ok(())
}`,
			fn: "load", rule: "UnsafeDeserialization", want: 1, line: 4, conf: model.ConfidenceCertain,
		},
		{
			name: "checked decoder",
			src: `
pub fn load(info: &AccountInfo) -> ProgramResult {
    let data = info.try_borrow_data()?;
    let state = State::try_from_slice(&data)?;
    Ok(())
}`,
			fn: "load", rule: "UnsafeDeserialization", want: 0,
		},
		{
			name: "multiplication by instruction argument",
			src: `
pub fn scale(balance: u64, factor: u64) -> u64 {
    balance * factor
}`,
			fn: "scale", rule: "UncheckedArithmetic", want: 1, line: 3, conf: model.ConfidenceCertain,
		},
		{
			name: "checked multiplication",
			src: `
pub fn scale(balance: u64, factor: u64) -> Option<u64> {
    balance.checked_mul(factor)
}`,
			fn: "scale", rule: "UncheckedArithmetic", want: 0,
		},
		{
			name: "division is left to the division rule",
			src: `
pub fn share(total: u64, parts: u64) -> u64 {
    total / parts
}`,
			fn: "share", rule: "UncheckedArithmetic", want: 0,
		},
		{
			name: "constant arithmetic",
			src: `
pub fn size() -> usize {
    let n = 8 + 32;
    n
}`,
			fn: "size", rule: "UncheckedArithmetic", want: 0,
		},
		{
			name: "discarded pda",
			src: `
pub fn make(ctx: Context<Make>, seed: String) -> Result<()> {
    let (expected, _bump) = Pubkey::find_program_address(&[seed.as_bytes()], ctx.program_id);
    Ok(())
}`,
			fn: "make", rule: "MissingPdaBumpValidation", want: 1, line: 3, conf: model.ConfidenceCertain,
		},
		{
			name: "pda compared with supplied key",
			src: `
pub fn make(ctx: Context<Make>, seed: String) -> Result<()> {
    let (expected, _bump) = Pubkey::find_program_address(&[seed.as_bytes()], ctx.program_id);
    if ctx.accounts.pda.key() != expected {
        return err!(ErrorCode::BadPda);
    }
    Ok(())
}`,
			fn: "make", rule: "MissingPdaBumpValidation", want: 0,
		},
		{
			name: "length-only validation helper",
			src: `
pub fn is_valid(account: &AccountInfo) -> bool {
    account.data_len() > 0
}`,
			fn: "is_valid", rule: "WeakAccountValidation", want: 1, line: 3, conf: model.ConfidencePossible,
		},
		{
			name: "helper that also checks the owner",
			src: `
pub fn is_valid(account: &AccountInfo, program_id: &Pubkey) -> bool {
    account.owner == program_id && account.data_len() > 0
}`,
			fn: "is_valid", rule: "WeakAccountValidation", want: 0,
		},
		{
			name: "division by unchecked value",
			src: `
pub fn share(total: u64, parts: u64) -> u64 {
    total / parts
}`,
			fn: "share", rule: "UnhandledDivisionOrError", want: 1, line: 3, conf: model.ConfidenceCertain,
		},
		{
			name: "division after zero check",
			src: `
pub fn share(total: u64, parts: u64) -> u64 {
    if parts == 0 {
        return 0;
    }
    total / parts
}`,
			fn: "share", rule: "UnhandledDivisionOrError", want: 0,
		},
		{
			name: "division by constant",
			src: `
pub fn half(total: u64) -> u64 {
    total / 2
}`,
			fn: "half", rule: "UnhandledDivisionOrError", want: 0,
		},
		{
			name: "unwrap of fallible call",
			src: `
pub fn peek(info: &AccountInfo) -> ProgramResult {
    let data = info.try_borrow_data().unwrap();
    Ok(())
}`,
			fn: "peek", rule: "UnhandledDivisionOrError", want: 1, line: 3, conf: model.ConfidenceCertain,
		},
		{
			name: "fresh account written blindly",
			src: `
pub fn create(new_account: &AccountInfo) -> ProgramResult {
    let mut data = new_account.try_borrow_mut_data()?;
    data[0] = 1;
    Ok(())
}`,
			fn: "create", rule: "UninitializedAccountAccess", want: 1, line: 4, conf: model.ConfidenceLikely,
		},
		{
			name: "fresh account checked for emptiness",
			src: `
pub fn create(new_account: &AccountInfo) -> ProgramResult {
    let mut data = new_account.try_borrow_mut_data()?;
    if !data.is_empty() {
        return Err(ProgramError::AccountAlreadyInitialized);
    }
    data[0] = 1;
    Ok(())
}`,
			fn: "create", rule: "UninitializedAccountAccess", want: 0,
		},
		{
			name: "fresh account without rent check",
			src: `
pub fn create(new_account: &AccountInfo) -> ProgramResult {
    let mut data = new_account.try_borrow_mut_data()?;
    data[0] = 1;
    Ok(())
}`,
			fn: "create", rule: "MissingRentExemption", want: 1, line: 4, conf: model.ConfidenceLikely,
		},
		{
			name: "fresh account with rent check",
			src: `
pub fn create(new_account: &AccountInfo) -> ProgramResult {
    let rent = Rent::get()?;
    if !rent.is_exempt(new_account.lamports(), new_account.data_len()) {
        return Err(ProgramError::AccountNotRentExempt);
    }
    let mut data = new_account.try_borrow_mut_data()?;
    data[0] = 1;
    Ok(())
}`,
			fn: "create", rule: "MissingRentExemption", want: 0,
		},
		{
			name: "creation after a failed rent test",
			src: `
pub fn fund(payer: &AccountInfo, vault: &AccountInfo, rent: &Rent, program_id: &Pubkey) -> ProgramResult {
    if vault.lamports() < rent.minimum_balance(100) {
        msg!("vault is short");
    }
    invoke(&system_instruction::create_account(payer.key, vault.key, 1_000, 100, program_id), &[])?;
    Ok(())
}`,
			fn: "fund", rule: "MissingRentExemption", want: 1, line: 6, conf: model.ConfidenceLikely,
		},
		{
			name: "creation on the branch where the rent test failed",
			src: `
pub fn fund(payer: &AccountInfo, vault: &AccountInfo, rent: &Rent, program_id: &Pubkey) -> ProgramResult {
    if vault.lamports() < rent.minimum_balance(100) {
        invoke(&system_instruction::create_account(payer.key, vault.key, 1_000, 100, program_id), &[])?;
    }
    Ok(())
}`,
			fn: "fund", rule: "MissingRentExemption", want: 1, line: 4, conf: model.ConfidenceLikely,
		},
		{
			name: "creation on the branch where the rent test held",
			src: `
pub fn fund(payer: &AccountInfo, vault: &AccountInfo, rent: &Rent, program_id: &Pubkey) -> ProgramResult {
    if vault.lamports() >= rent.minimum_balance(100) {
        invoke(&system_instruction::create_account(payer.key, vault.key, 1_000, 100, program_id), &[])?;
    }
    Ok(())
}`,
			fn: "fund", rule: "MissingRentExemption", want: 0,
		},
		{
			name: "creation funded with the rent minimum",
			src: `
pub fn fund(payer: &AccountInfo, vault: &AccountInfo, rent: &Rent, program_id: &Pubkey) -> ProgramResult {
    let lamports = rent.minimum_balance(100);
    invoke(&system_instruction::create_account(payer.key, vault.key, lamports, 100, program_id), &[])?;
    Ok(())
}`,
			fn: "fund", rule: "MissingRentExemption", want: 0,
		},
		{
			name: "length check on a non-account value",
			src: `
pub fn has_seeds(seeds: &Vec<u8>) -> bool {
    seeds.len() > 0
}`,
			fn: "has_seeds", rule: "WeakAccountValidation", want: 0,
		},
		{
			name: "unwrap of a bound fallible result",
			src: `
pub fn peek(info: &AccountInfo) -> ProgramResult {
    let r = info.try_borrow_data();
    let data = r.unwrap();
    Ok(())
}`,
			fn: "peek", rule: "UnhandledDivisionOrError", want: 1, line: 4, conf: model.ConfidenceCertain,
		},
		{
			name: "unwrap of a value that is not a call result",
			src: `
pub fn peek(limit: Option<u64>) -> u64 {
    let v = limit;
    v.unwrap()
}`,
			fn: "peek", rule: "UnhandledDivisionOrError", want: 0,
		},
		{
			name: "pda compared on one branch only",
			src: `
pub fn make(ctx: Context<Make>, seed: String, strict: bool) -> Result<()> {
    let (expected, _bump) = Pubkey::find_program_address(&[seed.as_bytes()], ctx.program_id);
    if strict {
        require_keys_eq!(ctx.accounts.pda.key(), expected, ErrorCode::BadPda);
    }
    Ok(())
}`,
			fn: "make", rule: "MissingPdaBumpValidation", want: 1, line: 3, conf: model.ConfidenceCertain,
		},
		{
			name: "pda compared before every regular return",
			src: `
pub fn make(ctx: Context<Make>, seed: String) -> Result<()> {
    let (expected, _bump) = Pubkey::find_program_address(&[seed.as_bytes()], ctx.program_id);
    let clock = Clock::get()?;
    require_keys_eq!(ctx.accounts.pda.key(), expected, ErrorCode::BadPda);
    Ok(())
}`,
			fn: "make", rule: "MissingPdaBumpValidation", want: 0,
		},
	}
	reg := Builtin()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := factsFor(t, tc.src, tc.fn)
			d, ok := reg.Lookup(tc.rule)
			if !ok {
				t.Fatalf("rule %s not registered", tc.rule)
			}
			got, err := d.Detect(fs)
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d findings, want %d: %+v\nfacts: %+v", len(got), tc.want, got, fs.Operations)
			}
			if tc.want == 0 {
				return
			}
			f := got[0]
			if f.Span.StartLine != tc.line {
				t.Errorf("line = %d, want %d", f.Span.StartLine, tc.line)
			}
			if f.Confidence != tc.conf {
				t.Errorf("confidence = %s, want %s", f.Confidence, tc.conf)
			}
			if f.Severity != d.Meta().Severity || f.Function != tc.fn || f.File != "lib.rs" || f.Fingerprint == "" {
				t.Errorf("finding fields not filled: %+v", f)
			}
		})
	}
}

func TestDeclaredSignerSuppressesSignerFinding(t *testing.T) {
	src := `
#[program]
pub mod bank {
    pub fn withdraw(ctx: Context<Withdraw>, amount: u64) -> Result<()> {
        **ctx.accounts.owner.try_borrow_mut_lamports()? -= amount;
        Ok(())
    }
}

#[derive(Accounts)]
pub struct Withdraw<'info> {
    #[account(mut)]
    pub owner: Signer<'info>,
}
`
	fs := factsFor(t, src, "withdraw")
	got, err := (&missingSignerCheck{}).Detect(fs)
	if err != nil || len(got) != 0 {
		t.Fatalf("declared signer should satisfy the rule: %+v %v", got, err)
	}
}

func TestSetLamportsIsLikely(t *testing.T) {
	src := `
pub fn drain(vault: &AccountInfo) -> ProgramResult {
    **vault.lamports.borrow_mut() = 0;
    Ok(())
}`
	fs := factsFor(t, src, "drain")
	got, _ := (&missingSignerCheck{}).Detect(fs)
	if len(got) != 1 || got[0].Confidence != model.ConfidenceLikely {
		t.Fatalf("want one likely finding, got %+v", got)
	}
}

func TestDetectorsRejectNilFactSet(t *testing.T) {
	for _, d := range Builtin().Detectors() {
		if _, err := d.Detect(nil); err != ErrMalformedFactSet {
			t.Errorf("%s: err = %v", d.Meta().ID, err)
		}
	}
}

func TestMetaIsComplete(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Builtin().Detectors() {
		m := d.Meta()
		if m.ID == "" || m.Title == "" || m.Version == "" || m.CWE == "" || m.Rationale == "" || m.Remediation == "" {
			t.Errorf("incomplete meta %+v", m)
		}
		if seen[m.ID] {
			t.Errorf("duplicate id %s", m.ID)
		}
		seen[m.ID] = true
	}
	if len(seen) != 9 {
		t.Fatalf("expected 9 builtin detectors, got %d", len(seen))
	}
}

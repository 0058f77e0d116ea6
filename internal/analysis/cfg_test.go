package analysis

import (
	"context"
	"testing"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
)

func buildCFG(t *testing.T, src, name string) *CFG {
	t.Helper()
	ir, err := anchor.NewParser().Parse(context.Background(), "lib.rs", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fn := ir.Function(name)
	if fn == nil {
		t.Fatalf("function %s not found", name)
	}
	g, err := BuildCFG(fn)
	if err != nil {
		t.Fatalf("build cfg: %v", err)
	}
	return g
}

// loc names a node by its kind and source line; assume nodes also by polarity and
// whether they bind a pattern.
type loc struct {
	kind    NodeKind
	line    int
	holds   bool
	pattern bool
}

func stmt(line int) loc { return loc{kind: NodeStmt, line: line} }

func assume(line int, holds bool) loc { return loc{kind: NodeAssume, line: line, holds: holds} }

func matched(line int, holds bool) loc {
	return loc{kind: NodeAssume, line: line, holds: holds, pattern: true}
}

func (l loc) find(t *testing.T, g *CFG) int {
	t.Helper()
	for _, n := range g.Nodes {
		if n.Kind != l.kind || n.Span.StartLine != l.line {
			continue
		}
		if l.kind == NodeAssume && (n.Holds != l.holds || n.Pattern != l.pattern) {
			continue
		}
		return n.ID
	}
	t.Fatalf("no %s node for %+v in\n%s", l.kind, l, g)
	return -1
}

const whileSrc = `
pub fn spin(a: &AccountInfo, n: u64) -> ProgramResult {
    let mut i = 0;
    while i < n {
        assert!(a.is_signer);
        i += 1;
    }
    a.data_len();
    Ok(())
}`

const loopBreakSrc = `
pub fn once(a: &AccountInfo) -> ProgramResult {
    loop {
        assert!(a.is_signer);
        break;
    }
    a.data_len();
    Ok(())
}`

const continueSrc = `
pub fn sum(items: &[u64]) -> u64 {
    let mut total = 0;
    for x in items.iter() {
        if *x == 0 {
            continue;
        }
        total = *x;
    }
    total
}`

const letElseSrc = `
pub fn pick(a: Option<u64>) -> u64 {
    let Some(v) = a else {
        return 0;
    };
    v
}`

const matchSrc = `
pub fn route(k: u8, a: &AccountInfo) -> ProgramResult {
    match k {
        0 => { assert!(a.is_signer); }
        _ => { msg!("other"); }
    }
    a.data_len();
    Ok(())
}`

const trySrc = `
pub fn read(a: &AccountInfo) -> ProgramResult {
    let d = a.try_borrow_data()?;
    a.data_len();
    Ok(())
}`

func TestDominates(t *testing.T) {
	tests := []struct {
		name string
		src  string
		fn   string
		a, b loc
		want bool
	}{
		{"check inside while body guards the body", whileSrc, "spin", assume(5, true), stmt(6), true},
		{"check inside while body does not guard code after the loop", whileSrc, "spin", assume(5, true), stmt(8), false},
		{"while condition false holds after the loop", whileSrc, "spin", assume(4, false), stmt(8), true},
		{"loop with check then break guards code after it", loopBreakSrc, "once", assume(4, true), stmt(7), true},
		{"non-zero item reaches the rest of the body", continueSrc, "sum", assume(5, false), stmt(8), true},
		{"continue does not dominate the rest of the body", continueSrc, "sum", stmt(6), stmt(8), false},
		{"let-else match holds after the statement", letElseSrc, "pick", matched(3, true), stmt(6), true},
		{"let-else diverging branch does not dominate the tail", letElseSrc, "pick", stmt(4), stmt(6), false},
		{"check in one match arm does not guard the join", matchSrc, "route", assume(4, true), stmt(7), false},
		{"scrutinee dominates the join", matchSrc, "route", stmt(3), stmt(7), true},
		{"statement with ? dominates the next one", trySrc, "read", stmt(3), stmt(4), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := buildCFG(t, tc.src, tc.fn)
			a, b := tc.a.find(t, g), tc.b.find(t, g)
			if got := g.Dominates(a, b); got != tc.want {
				t.Fatalf("Dominates(%d, %d) = %t, want %t\n%s", a, b, got, tc.want, g)
			}
		})
	}
}

func TestTryEdgesIntoExit(t *testing.T) {
	g := buildCFG(t, trySrc, "read")
	n := stmt(3).find(t, g)
	found := false
	for _, s := range g.Nodes[n].Succs {
		if s == g.Exit {
			found = true
		}
	}
	if !found {
		t.Fatalf("`?` should add an early exit edge\n%s", g)
	}
	if idom := g.Idom(g.Exit); idom != n {
		t.Fatalf("idom(exit) = %d, want the `?` statement %d\n%s", idom, n, g)
	}
}

func TestPostDominates(t *testing.T) {
	src := `
pub fn settle(a: &AccountInfo, strict: bool, quick: bool) -> ProgramResult {
    if strict {
        assert!(a.is_signer);
    }
    if a.lamports() == 0 {
        return Err(ProgramError::InsufficientFunds);
    }
    let d = a.try_borrow_data()?;
    if quick {
        return Ok(());
    }
    a.data_len();
    Ok(())
}`
	g := buildCFG(t, src, "settle")
	tests := []struct {
		name string
		a, b loc
		want bool
	}{
		{"error return is not a way around", assume(6, false), stmt(3), true},
		{"failed ? is not a way around", stmt(9), stmt(6), true},
		{"check on one branch", assume(4, true), stmt(3), false},
		{"early regular return is a way around", stmt(13), stmt(9), false},
		{"a node post-dominates itself", stmt(9), stmt(9), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, b := tc.a.find(t, g), tc.b.find(t, g)
			if got := g.PostDominates(a, b); got != tc.want {
				t.Fatalf("PostDominates(%d, %d) = %t, want %t\n%s", a, b, got, tc.want, g)
			}
		})
	}
}

func TestUnreachableCode(t *testing.T) {
	src := `
pub fn stop(a: u64) -> u64 {
    return a;
    a + 1
}`
	g := buildCFG(t, src, "stop")
	after := stmt(4).find(t, g)
	if g.Reachable(after) {
		t.Fatalf("code after return should be unreachable\n%s", g)
	}
	if !g.Dominates(stmt(3).find(t, g), after) {
		t.Fatal("unreachable nodes are dominated by everything")
	}
}

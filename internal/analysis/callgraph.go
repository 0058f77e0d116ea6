package analysis

import (
	"sort"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
)

// CallGraph links the functions of one file by name. Calls to functions outside the
// file are not recorded.
type CallGraph struct {
	Calls   map[string][]string
	Entries []string
}

// BuildCallGraph records direct and method calls between functions of ir. Entry points
// are instruction handlers (functions inside #[program] or taking a Context) and
// public functions.
func BuildCallGraph(ir *anchor.FileIR) *CallGraph {
	cg := &CallGraph{Calls: map[string][]string{}}
	local := map[string]bool{}
	for _, fn := range ir.Functions {
		local[fn.Name] = true
	}
	for _, fn := range ir.Functions {
		if fn.InProgram || fn.Public || fn.Context != "" {
			cg.Entries = append(cg.Entries, fn.Name)
		}
		seen := map[string]bool{}
		walkExprs(fn.Body, func(e *anchor.Expr) {
			var callee string
			switch e.Kind {
			case anchor.ExprCall:
				callee = e.Last()
			case anchor.ExprMethod:
				callee = e.Name
			default:
				return
			}
			if local[callee] && callee != fn.Name && !seen[callee] {
				seen[callee] = true
				cg.Calls[fn.Name] = append(cg.Calls[fn.Name], callee)
			}
		})
		sort.Strings(cg.Calls[fn.Name])
	}
	sort.Strings(cg.Entries)
	return cg
}

// Reachable returns every function reachable from an entry point.
func (cg *CallGraph) Reachable() map[string]bool {
	out := map[string]bool{}
	stack := append([]string(nil), cg.Entries...)
	for len(stack) > 0 {
		fn := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[fn] {
			continue
		}
		out[fn] = true
		stack = append(stack, cg.Calls[fn]...)
	}
	return out
}

// walkExprs visits every expression of a block, including nested blocks.
func walkExprs(b *anchor.Block, fn func(*anchor.Expr)) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		s.X.Walk(func(e *anchor.Expr) bool {
			fn(e)
			return true
		})
		walkExprs(s.Then, fn)
		walkExprs(s.Else, fn)
		walkExprs(s.Body, fn)
		for _, arm := range s.Arms {
			walkExprs(arm, fn)
		}
	}
}

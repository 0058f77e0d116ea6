package analysis

import (
	"fmt"
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

type NodeKind int

const (
	NodeEntry NodeKind = iota
	NodeExit
	NodeStmt
	// NodeAssume sits on a branch edge; Cond is known to evaluate to Holds there.
	NodeAssume
	NodeJoin
)

func (k NodeKind) String() string {
	switch k {
	case NodeEntry:
		return "entry"
	case NodeExit:
		return "exit"
	case NodeStmt:
		return "stmt"
	case NodeAssume:
		return "assume"
	case NodeJoin:
		return "join"
	}
	return "unknown"
}

// Node is one statement-level CFG node. Stmt nodes carry the expression evaluated at
// that point (statement expression, let value, branch condition, loop iterator,
// asserted predicate, returned value).
type Node struct {
	ID    int
	Kind  NodeKind
	Stmt  *anchor.Stmt
	Expr  *anchor.Expr
	Cond  *anchor.Expr
	Holds bool
	// Pattern marks assume nodes of `if let` / `while let` / match arms; they bind
	// names rather than test a predicate.
	Pattern bool
	Span    model.Span
	Preds   []int
	Succs   []int
}

type Edge struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// CFG of one function body with explicit entry and exit nodes.
type CFG struct {
	Function string
	Nodes    []*Node
	Entry    int
	Exit     int

	idom []int
	rpo  []int // reverse postorder index, -1 when unreachable

	// normalExit marks nodes whose edge into Exit is a regular return rather than an
	// error (`?`, Err, panic, failed assertion).
	normalExit map[int]bool
	ipdom      []int
	prpo       []int
}

type loopFrame struct {
	head   int
	breaks []int
}

type cfgBuilder struct {
	g     *CFG
	loops []*loopFrame
}

const dead = -1

// BuildCFG lowers a function body into a statement-level CFG and computes its dominator
// tree. Early exits (return, `?`, panics, failed assertions) edge into Exit, so checks
// of the form `if !ok { return Err(..) }` narrow the rest of the body.
func BuildCFG(fn *anchor.FunctionIR) (*CFG, error) {
	if fn == nil {
		return nil, fmt.Errorf("build cfg: nil function")
	}
	b := &cfgBuilder{g: &CFG{Function: fn.Name, normalExit: map[int]bool{}}}
	b.g.Entry = b.add(&Node{Kind: NodeEntry, Span: fn.Span})
	b.g.Exit = b.add(&Node{Kind: NodeExit, Span: fn.Span})
	cur := b.g.Entry
	if fn.Body != nil {
		cur = b.block(fn.Body, cur)
	}
	b.edge(cur, b.g.Exit)
	if cur != dead {
		b.g.normalExit[cur] = true
	}
	b.g.computeDominators()
	b.g.computePostDominators()
	return b.g, nil
}

func (b *cfgBuilder) add(n *Node) int {
	n.ID = len(b.g.Nodes)
	b.g.Nodes = append(b.g.Nodes, n)
	return n.ID
}

func (b *cfgBuilder) edge(from, to int) {
	if from == dead || to == dead {
		return
	}
	b.g.Nodes[from].Succs = append(b.g.Nodes[from].Succs, to)
	b.g.Nodes[to].Preds = append(b.g.Nodes[to].Preds, from)
}

// stmtNode appends a node after cur. Code after a diverging statement still gets
// nodes; they simply have no predecessors.
func (b *cfgBuilder) stmtNode(s *anchor.Stmt, x *anchor.Expr, cur int) int {
	id := b.add(&Node{Kind: NodeStmt, Stmt: s, Expr: x, Span: s.Span})
	b.edge(cur, id)
	if containsTry(x) {
		b.edge(id, b.g.Exit)
	}
	return id
}

func (b *cfgBuilder) assume(cond *anchor.Expr, holds, pattern bool, sp model.Span, from int) int {
	id := b.add(&Node{Kind: NodeAssume, Cond: cond, Holds: holds, Pattern: pattern, Span: sp})
	b.edge(from, id)
	return id
}

func (b *cfgBuilder) join(sp model.Span, preds ...int) int {
	var live []int
	for _, p := range preds {
		if p != dead {
			live = append(live, p)
		}
	}
	switch len(live) {
	case 0:
		return dead
	case 1:
		return live[0]
	}
	id := b.add(&Node{Kind: NodeJoin, Span: sp})
	for _, p := range live {
		b.edge(p, id)
	}
	return id
}

func (b *cfgBuilder) block(blk *anchor.Block, cur int) int {
	if blk == nil {
		return cur
	}
	for _, s := range blk.Stmts {
		cur = b.stmt(s, cur)
	}
	return cur
}

func (b *cfgBuilder) stmt(s *anchor.Stmt, cur int) int {
	switch s.Kind {
	case anchor.StmtLet:
		n := b.stmtNode(s, s.X, cur)
		if s.Else == nil {
			return n
		}
		// let-else: the else block must diverge; the pattern match holds afterwards
		b.block(s.Else, b.assume(s.X, false, true, s.Span, n))
		return b.assume(s.X, true, true, s.Span, n)
	case anchor.StmtIf:
		n := b.stmtNode(s, s.X, cur)
		pattern := len(s.Names) > 0
		sp := s.Span
		if s.X != nil {
			sp = s.X.Span
		}
		thenEnd := b.block(s.Then, b.assume(s.X, true, pattern, sp, n))
		elseEnd := b.assume(s.X, false, pattern, sp, n)
		if s.Else != nil {
			elseEnd = b.block(s.Else, elseEnd)
		}
		return b.join(s.Span, thenEnd, elseEnd)
	case anchor.StmtLoop:
		return b.loop(s, cur)
	case anchor.StmtMatch:
		n := b.stmtNode(s, s.X, cur)
		if len(s.Arms) == 0 {
			return n
		}
		ends := make([]int, 0, len(s.Arms))
		for _, arm := range s.Arms {
			ends = append(ends, b.block(arm, b.assume(s.X, true, true, arm.Span, n)))
		}
		return b.join(s.Span, ends...)
	case anchor.StmtReturn, anchor.StmtPanic:
		n := b.stmtNode(s, s.X, cur)
		b.edge(n, b.g.Exit)
		if s.Kind == anchor.StmtReturn && !isErrorValue(s.X) {
			b.g.normalExit[n] = true
		}
		return dead
	case anchor.StmtBreak:
		n := b.stmtNode(s, nil, cur)
		if len(b.loops) > 0 {
			f := b.loops[len(b.loops)-1]
			f.breaks = append(f.breaks, n)
		}
		return dead
	case anchor.StmtContinue:
		n := b.stmtNode(s, nil, cur)
		if len(b.loops) > 0 {
			b.edge(n, b.loops[len(b.loops)-1].head)
		}
		return dead
	case anchor.StmtAssert:
		n := b.stmtNode(s, s.X, cur)
		b.edge(b.assume(s.X, false, false, s.Span, n), b.g.Exit)
		return b.assume(s.X, true, false, s.Span, n)
	case anchor.StmtBlock:
		return b.block(s.Body, cur)
	default:
		return b.stmtNode(s, s.X, cur)
	}
}

func (b *cfgBuilder) loop(s *anchor.Stmt, cur int) int {
	head := b.add(&Node{Kind: NodeStmt, Stmt: s, Expr: s.X, Span: s.Span})
	b.edge(cur, head)
	if containsTry(s.X) {
		b.edge(head, b.g.Exit)
	}
	f := &loopFrame{head: head}
	b.loops = append(b.loops, f)
	var bodyStart, exit int
	switch s.Loop {
	case "while":
		pattern := len(s.Names) > 0
		bodyStart = b.assume(s.X, true, pattern, s.Span, head)
		exit = b.assume(s.X, false, pattern, s.Span, head)
	case "loop":
		bodyStart, exit = head, dead
	default:
		bodyStart, exit = head, head
	}
	end := b.block(s.Body, bodyStart)
	b.edge(end, head)
	b.loops = b.loops[:len(b.loops)-1]
	return b.join(s.Span, append([]int{exit}, f.breaks...)...)
}

func containsTry(e *anchor.Expr) bool {
	found := false
	e.Walk(func(x *anchor.Expr) bool {
		if x.Kind == anchor.ExprTry {
			found = true
		}
		return !found && x.Kind != anchor.ExprBlock
	})
	return found
}

// isErrorValue matches Err(..), err!(..) and error!(..).
func isErrorValue(e *anchor.Expr) bool {
	e = e.Unparen()
	if e == nil {
		return false
	}
	t := strings.TrimSpace(e.Text)
	return strings.HasPrefix(t, "Err(") || strings.HasPrefix(t, "err!(") || strings.HasPrefix(t, "error!(")
}

// computeDominators builds the dominator tree rooted at Entry.
func (g *CFG) computeDominators() {
	g.idom, g.rpo = dominatorTree(len(g.Nodes), g.Entry,
		func(v int) []int { return g.Nodes[v].Succs },
		func(v int) []int { return g.Nodes[v].Preds })
}

// computePostDominators builds the post-dominator tree rooted at Exit over regular
// exits only, so error paths do not count as ways around a node.
func (g *CFG) computePostDominators() {
	succs := func(v int) []int {
		if v != g.Exit {
			return g.Nodes[v].Preds
		}
		var out []int
		for _, p := range g.Nodes[v].Preds {
			if g.normalExit[p] {
				out = append(out, p)
			}
		}
		return out
	}
	preds := func(v int) []int {
		var out []int
		for _, s := range g.Nodes[v].Succs {
			if s != g.Exit || g.normalExit[v] {
				out = append(out, s)
			}
		}
		return out
	}
	g.ipdom, g.prpo = dominatorTree(len(g.Nodes), g.Exit, succs, preds)
}

// dominatorTree runs the Cooper-Harvey-Kennedy iterative algorithm over the nodes
// reachable from root.
func dominatorTree(n, root int, succs, preds func(int) []int) (idom, rpo []int) {
	rpo = make([]int, n)
	idom = make([]int, n)
	for i := range rpo {
		rpo[i] = dead
		idom[i] = dead
	}
	var post []int
	seen := make([]bool, n)
	var visit func(int)
	visit = func(v int) {
		seen[v] = true
		for _, s := range succs(v) {
			if !seen[s] {
				visit(s)
			}
		}
		post = append(post, v)
	}
	visit(root)
	order := make([]int, 0, len(post))
	for i := len(post) - 1; i >= 0; i-- {
		rpo[post[i]] = len(order)
		order = append(order, post[i])
	}

	intersect := func(a, b int) int {
		for a != b {
			for rpo[a] > rpo[b] {
				a = idom[a]
			}
			for rpo[b] > rpo[a] {
				b = idom[b]
			}
		}
		return a
	}
	idom[root] = root
	for changed := true; changed; {
		changed = false
		for _, v := range order[1:] {
			newIdom := dead
			for _, p := range preds(v) {
				if idom[p] == dead {
					continue
				}
				if newIdom == dead {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != idom[v] {
				idom[v] = newIdom
				changed = true
			}
		}
	}
	return idom, rpo
}

func (g *CFG) Reachable(id int) bool {
	return id >= 0 && id < len(g.rpo) && g.rpo[id] != dead
}

// Idom returns the immediate dominator of id, or -1 for the entry node and unreachable
// nodes.
func (g *CFG) Idom(id int) int {
	if !g.Reachable(id) || id == g.Entry {
		return dead
	}
	return g.idom[id]
}

// Dominates reports whether every path from Entry to b passes through a. Unreachable
// nodes are dominated by everything.
func (g *CFG) Dominates(a, b int) bool {
	if !g.Reachable(b) {
		return true
	}
	if !g.Reachable(a) {
		return false
	}
	for v := b; ; v = g.idom[v] {
		if v == a {
			return true
		}
		if v == g.Entry {
			return false
		}
	}
}

// PostDominates reports whether every path from b that leaves the function through a
// regular return passes through a. Nodes that can only fail are post-dominated by
// everything.
func (g *CFG) PostDominates(a, b int) bool {
	if b < 0 || b >= len(g.prpo) || g.prpo[b] == dead {
		return true
	}
	if a < 0 || a >= len(g.prpo) || g.prpo[a] == dead {
		return false
	}
	for v := b; ; v = g.ipdom[v] {
		if v == a {
			return true
		}
		if v == g.Exit {
			return false
		}
	}
}

func (g *CFG) Edges() []Edge {
	var out []Edge
	for _, n := range g.Nodes {
		for _, s := range n.Succs {
			out = append(out, Edge{From: n.ID, To: s})
		}
	}
	return out
}

// String renders the graph one node per line, for debugging and tests.
func (g *CFG) String() string {
	var sb strings.Builder
	for _, n := range g.Nodes {
		fmt.Fprintf(&sb, "%d %s L%d", n.ID, n.Kind, n.Span.StartLine)
		if n.Kind == NodeAssume && n.Cond != nil {
			fmt.Fprintf(&sb, " [%t] %s", n.Holds, n.Cond.Text)
		}
		fmt.Fprintf(&sb, " -> %v\n", n.Succs)
	}
	return sb.String()
}

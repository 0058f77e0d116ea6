package analysis

import (
	"sort"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
)

// ProjectContext holds the parsed artifacts of one scan.
type ProjectContext struct {
	RootPath     string
	Files        []string
	FileContents map[string][]byte
	IR           map[string]*anchor.FileIR
	CallGraphs   map[string]*CallGraph
	reachable    map[string]map[string]bool
}

func NewProjectContext(root string) *ProjectContext {
	return &ProjectContext{
		RootPath:     root,
		FileContents: map[string][]byte{},
		IR:           map[string]*anchor.FileIR{},
		CallGraphs:   map[string]*CallGraph{},
		reachable:    map[string]map[string]bool{},
	}
}

// AddFile registers a parsed file and its call graph.
func (p *ProjectContext) AddFile(path string, content []byte, ir *anchor.FileIR) {
	if _, ok := p.FileContents[path]; !ok {
		p.Files = append(p.Files, path)
		sort.Strings(p.Files)
	}
	p.FileContents[path] = content
	if ir != nil {
		p.IR[path] = ir
		cg := BuildCallGraph(ir)
		p.CallGraphs[path] = cg
		p.reachable[path] = cg.Reachable()
	}
}

// Analyzable reports whether fn should be analyzed: it is an entry point or reachable
// from one within its file. Safe for concurrent use once all files are added.
func (p *ProjectContext) Analyzable(path string, fn *anchor.FunctionIR) bool {
	reach, ok := p.reachable[path]
	if !ok {
		return true
	}
	return reach[fn.Name]
}

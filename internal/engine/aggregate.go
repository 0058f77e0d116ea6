package engine

import (
	"sort"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// Aggregate merges duplicates, drops findings subsumed by a narrower finding of the same
// rule in the same function, and sorts the rest. It is a pure function of the input set:
// any permutation of the same findings yields the same output.
func Aggregate(in []model.Finding) []model.Finding {
	// diagnostics are distinct per message: two faulting detectors share a span
	type gkey struct {
		model.Key
		diag string
	}
	groups := map[gkey]model.Finding{}
	for _, f := range in {
		k := gkey{Key: f.Key()}
		if model.IsDiagnostic(f.RuleID) {
			k.diag = f.Message
		}
		if have, ok := groups[k]; ok {
			f = merge(have, f)
		}
		groups[k] = f
	}

	type scope struct{ rule, function, file string }
	byScope := map[scope][]model.Span{}
	for k, f := range groups {
		s := scope{k.RuleID, k.Function, f.File}
		byScope[s] = append(byScope[s], k.Span)
	}
	out := make([]model.Finding, 0, len(groups))
	for k, f := range groups {
		if subsumes(k.Span, byScope[scope{k.RuleID, k.Function, f.File}]) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// subsumes reports whether sp strictly contains another span of the same scope.
func subsumes(sp model.Span, spans []model.Span) bool {
	for _, o := range spans {
		if o != sp && sp.Contains(o) {
			return true
		}
	}
	return false
}

// merge picks one of two findings with the same key independent of their order: the
// higher severity, then the higher confidence, then the smaller message.
func merge(a, b model.Finding) model.Finding {
	if a.Severity != b.Severity {
		if a.Severity.Rank() > b.Severity.Rank() {
			return a
		}
		return b
	}
	if a.Confidence != b.Confidence {
		if a.Confidence.Score() > b.Confidence.Score() {
			return a
		}
		return b
	}
	if b.Message < a.Message || b.Message == a.Message && b.Fingerprint < a.Fingerprint {
		return b
	}
	return a
}

func less(a, b model.Finding) bool {
	if a.Severity != b.Severity {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	if a.Function != b.Function {
		return a.Function < b.Function
	}
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Span.StartLine != b.Span.StartLine {
		return a.Span.StartLine < b.Span.StartLine
	}
	if a.Span.EndLine != b.Span.EndLine {
		return a.Span.EndLine < b.Span.EndLine
	}
	if a.RuleID != b.RuleID {
		return a.RuleID < b.RuleID
	}
	return a.Message < b.Message
}

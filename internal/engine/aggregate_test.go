package engine

import (
	"reflect"
	"testing"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

func fnd(rule string, sev model.Severity, fn string, start, end int) model.Finding {
	return model.Finding{RuleID: rule, Severity: sev, Confidence: model.ConfidenceLikely, Function: fn, File: "lib.rs",
		Span: model.Span{StartLine: start, EndLine: end}, Message: rule + " in " + fn}
}

func TestAggregateDeduplicatesAndSubsumes(t *testing.T) {
	in := []model.Finding{
		fnd("UncheckedOwnership", model.SeverityCritical, "f", 10, 10),
		fnd("UncheckedOwnership", model.SeverityCritical, "f", 10, 10),
		fnd("UnsafeDeserialization", model.SeverityCritical, "f", 10, 10),
		fnd("UncheckedArithmetic", model.SeverityHigh, "f", 20, 22),
		fnd("UncheckedArithmetic", model.SeverityHigh, "f", 21, 21),
		fnd("UncheckedArithmetic", model.SeverityHigh, "g", 20, 22),
	}
	out := Aggregate(in)
	if len(out) != 4 {
		t.Fatalf("got %d findings: %+v", len(out), out)
	}
	want := []struct {
		rule, fn string
		start    int
	}{
		{"UncheckedOwnership", "f", 10},
		{"UnsafeDeserialization", "f", 10},
		{"UncheckedArithmetic", "f", 21},
		{"UncheckedArithmetic", "g", 20},
	}
	for i, w := range want {
		if out[i].RuleID != w.rule || out[i].Function != w.fn || out[i].Span.StartLine != w.start {
			t.Errorf("out[%d] = %s %s %d, want %+v", i, out[i].RuleID, out[i].Function, out[i].Span.StartLine, w)
		}
	}
}

func TestAggregateIsPermutationInvariant(t *testing.T) {
	base := []model.Finding{
		fnd("MissingSignerCheck", model.SeverityCritical, "pay", 3, 3),
		fnd("UncheckedArithmetic", model.SeverityHigh, "pay", 4, 4),
		fnd("WeakAccountValidation", model.SeverityLow, "ok", 9, 9),
		fnd("UnhandledDivisionOrError", model.SeverityHigh, "div", 7, 7),
		fnd("UnhandledDivisionOrError", model.SeverityHigh, "div", 7, 7),
		{RuleID: model.RuleDetectorFault, Severity: model.SeverityInfo, Function: "pay", File: "lib.rs", Span: model.Span{StartLine: 1, EndLine: 5}, Message: "detector A failed"},
		{RuleID: model.RuleDetectorFault, Severity: model.SeverityInfo, Function: "pay", File: "lib.rs", Span: model.Span{StartLine: 1, EndLine: 5}, Message: "detector B failed"},
	}
	want := Aggregate(base)
	if len(want) != 6 {
		t.Fatalf("expected 6 findings, got %d", len(want))
	}
	n := len(base)
	for shift := 1; shift < n; shift++ {
		perm := make([]model.Finding, 0, n)
		for i := 0; i < n; i++ {
			perm = append(perm, base[(i*shift+shift)%n])
		}
		if got := Aggregate(perm); !reflect.DeepEqual(got, want) {
			t.Fatalf("permutation %d changed output", shift)
		}
	}
	reversed := make([]model.Finding, n)
	for i := range base {
		reversed[n-1-i] = base[i]
	}
	if !reflect.DeepEqual(Aggregate(reversed), want) {
		t.Fatal("reversed input changed output")
	}
	if !reflect.DeepEqual(Aggregate(want), want) {
		t.Fatal("aggregation is not idempotent")
	}
}

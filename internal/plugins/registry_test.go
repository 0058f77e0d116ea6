package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

type stubDetector struct {
	id    string
	panic bool
	err   error
}

func (s *stubDetector) Meta() model.RuleMeta {
	return model.RuleMeta{ID: s.id, Title: s.id, Severity: model.SeverityLow, Version: "0.0.1"}
}

func (s *stubDetector) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if s.panic {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return []model.Finding{finding(s.Meta(), fs, fs.Span, model.ConfidencePossible, "k", "stub")}, nil
}

func stubFacts() *facts.FactSet {
	return &facts.FactSet{File: "src/lib.rs", Function: "f", Span: model.Span{StartLine: 1, EndLine: 3}}
}

func TestRunContainsPanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDetector{id: "A"})
	r.Register(&stubDetector{id: "B", panic: true})
	r.Register(&stubDetector{id: "C", err: errors.New("bad input")})
	res := r.Run(context.Background(), stubFacts())
	if len(res.Findings) != 1 || res.Findings[0].RuleID != "A" {
		t.Fatalf("findings = %+v", res.Findings)
	}
	if len(res.Faults) != 2 {
		t.Fatalf("faults = %+v", res.Faults)
	}
	for _, f := range res.Faults {
		if f.RuleID != model.RuleDetectorFault || f.Severity != model.SeverityInfo || f.Function != "f" {
			t.Errorf("unexpected fault %+v", f)
		}
	}
	if res.Partial || res.Completed != 3 {
		t.Errorf("partial=%v completed=%d", res.Partial, res.Completed)
	}
}

func TestRunRejectsMalformedFactSet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDetector{id: "A"})
	res := r.Run(context.Background(), &facts.FactSet{})
	if len(res.Findings) != 0 || len(res.Faults) != 1 {
		t.Fatalf("res = %+v", res)
	}
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDetector{id: "A"})
	r.Register(&stubDetector{id: "B"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Run(ctx, stubFacts())
	if !res.Partial || res.Completed != 0 || len(res.Findings) != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestRegisterReplacesAndExtends(t *testing.T) {
	r := Builtin()
	n := len(r.Detectors())
	r.Register(&stubDetector{id: "CustomRule"})
	if len(r.Detectors()) != n+1 {
		t.Fatalf("custom detector not added")
	}
	r.Register(&stubDetector{id: "MissingSignerCheck"})
	if len(r.Detectors()) != n+1 {
		t.Fatalf("re-registering an id should replace it")
	}
	d, _ := r.Lookup("MissingSignerCheck")
	if _, ok := d.(*stubDetector); !ok {
		t.Fatalf("lookup returned %T", d)
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		allow, deny []string
		want        int
	}{
		{nil, nil, 9},
		{[]string{"MissingSignerCheck", "UncheckedArithmetic"}, nil, 2},
		{nil, []string{"WeakAccountValidation"}, 8},
		{[]string{"MissingSignerCheck"}, []string{"MissingSignerCheck"}, 0},
	}
	for _, tc := range tests {
		if got := len(Builtin().Filter(tc.allow, tc.deny).Detectors()); got != tc.want {
			t.Errorf("Filter(%v, %v) = %d detectors, want %d", tc.allow, tc.deny, got, tc.want)
		}
	}
}

package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

func sample() model.Report {
	findings := []model.Finding{
		{RuleID: "MissingSignerCheck", Severity: model.SeverityCritical, Confidence: model.ConfidenceCertain, Function: "pay", File: "lib.rs", Span: model.Span{StartLine: 3, EndLine: 3}, Message: "m1", CWE: "CWE-306", Fingerprint: "abc"},
		{RuleID: "UncheckedArithmetic", Severity: model.SeverityHigh, Confidence: model.ConfidenceCertain, Function: "pay", File: "lib.rs", Span: model.Span{StartLine: 4, EndLine: 4}, Message: "m2"},
	}
	skipped := []model.SkippedUnit{
		{File: "z.rs", Reason: "parse error"},
		{File: "a.rs", Function: "helper", Reason: "not reachable from an entry point"},
	}
	meta := model.ReportMetadata{AnalyzedFiles: 1, AnalyzedFunctions: 1, Detectors: []model.DetectorVersion{{ID: "B", Version: "1"}, {ID: "A", Version: "1"}}}
	return Build(findings, skipped, meta)
}

func TestBuild(t *testing.T) {
	r := sample()
	if r.TotalFindings != 2 {
		t.Fatalf("total = %d", r.TotalFindings)
	}
	if len(r.CountsBySeverity) != 5 || r.CountsBySeverity[model.SeverityCritical] != 1 || r.CountsBySeverity[model.SeverityLow] != 0 {
		t.Fatalf("counts = %v", r.CountsBySeverity)
	}
	if r.Skipped[0].File != "a.rs" || r.Metadata.Detectors[0].ID != "A" {
		t.Fatalf("skipped/detectors not sorted: %+v %+v", r.Skipped, r.Metadata.Detectors)
	}
}

func TestBuildEmpty(t *testing.T) {
	r := Build(nil, nil, model.ReportMetadata{})
	b, err := JSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte(`"findings": []`)) {
		t.Fatalf("empty findings should serialize as []: %s", b)
	}
}

func TestJSONIsStable(t *testing.T) {
	a, err := JSON(sample())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		b, _ := JSON(sample())
		if !bytes.Equal(a, b) {
			t.Fatal("JSON output differs between runs")
		}
	}
	s := string(a)
	crit := strings.Index(s, `"critical"`)
	high := strings.Index(s, `"high"`)
	info := strings.Index(s, `"info"`)
	if !(crit < high && high < info) {
		t.Fatalf("severity keys not sorted:\n%s", s)
	}
	for _, field := range []string{`"rule_id"`, `"function_name"`, `"line_range"`, `"start": 3`, `"total_findings": 2`} {
		if !strings.Contains(s, field) {
			t.Errorf("missing %s", field)
		}
	}
}

func TestSARIF(t *testing.T) {
	b, err := SARIF(sample())
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"version": "2.1.0"`, `"ruleId": "MissingSignerCheck"`, `"level": "error"`, `"panda/v1": "abc"`, `"CWE-306"`} {
		if !strings.Contains(s, want) {
			t.Errorf("SARIF missing %s", want)
		}
	}
}

func TestTableWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	if err := Table(&buf, sample(), false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatal("escape codes written with color disabled")
	}
	if !strings.Contains(out, "MissingSignerCheck lib.rs:3-3") || !strings.Contains(out, "a.rs:helper") {
		t.Fatalf("table output:\n%s", out)
	}
	if ColorEnabled(&buf) {
		t.Fatal("a buffer is not a terminal")
	}
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := Markdown(&buf, sample()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "### CRITICAL `MissingSignerCheck` in `pay`") {
		t.Fatalf("markdown output:\n%s", buf.String())
	}
}

package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

func testReport() model.Report {
	return model.Report{
		TotalFindings:    2,
		CountsBySeverity: map[model.Severity]int{model.SeverityCritical: 1, model.SeverityHigh: 1},
		Findings: []model.Finding{
			{RuleID: "MissingSignerCheck", Severity: model.SeverityCritical, Function: "pay", File: "lib.rs", Span: model.Span{StartLine: 3, EndLine: 3}, Message: "debit"},
			{RuleID: "UncheckedArithmetic", Severity: model.SeverityHigh, Function: "pay", File: "lib.rs", Span: model.Span{StartLine: 4, EndLine: 4}, Message: "overflow", Remediation: "use checked_add"},
		},
	}
}

func press(m tea.Model, key string) tea.Model {
	var msg tea.KeyMsg
	switch key {
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next
}

func TestNavigation(t *testing.T) {
	var m tea.Model = newViewer(testReport())
	m = press(m, "down")
	m = press(m, "down")
	if c := m.(viewer).cursor; c != 1 {
		t.Fatalf("cursor = %d, want clamped at 1", c)
	}
	m = press(m, "enter")
	view := m.View()
	if !strings.Contains(view, "use checked_add") {
		t.Fatalf("details not shown:\n%s", view)
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd == nil {
		t.Fatal("q should quit")
	}
}

func TestEmptyReport(t *testing.T) {
	if v := newViewer(model.Report{}).View(); !strings.Contains(v, "No findings") {
		t.Fatalf("view = %q", v)
	}
}

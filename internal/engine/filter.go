package engine

import (
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// filterBySeverity removes findings below the threshold. Diagnostics are always kept:
// they describe what the report does not cover.
func filterBySeverity(findings []model.Finding, threshold model.Severity) []model.Finding {
	var out []model.Finding
	for _, f := range findings {
		if model.IsDiagnostic(f.RuleID) || model.SeverityGTE(f.Severity, threshold) {
			out = append(out, f)
		}
	}
	return out
}

// MeetsThreshold reports whether any non-diagnostic finding is at or above sev.
func MeetsThreshold(findings []model.Finding, sev model.Severity) bool {
	for _, f := range findings {
		if !model.IsDiagnostic(f.RuleID) && model.SeverityGTE(f.Severity, sev) {
			return true
		}
	}
	return false
}

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// Markdown writes the report as a GitHub-flavored markdown document.
func Markdown(w io.Writer, r model.Report) error {
	var b strings.Builder
	b.WriteString("# Panda audit report\n\n")
	b.WriteString("| Severity | Count |\n|---|---|\n")
	for _, s := range model.Severities {
		fmt.Fprintf(&b, "| %s | %d |\n", s, r.CountsBySeverity[s])
	}
	fmt.Fprintf(&b, "\nAnalyzed %d function(s) in %d file(s).\n", r.Metadata.AnalyzedFunctions, r.Metadata.AnalyzedFiles)
	if len(r.Findings) > 0 {
		b.WriteString("\n## Findings\n")
	}
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "\n### %s `%s` in `%s`\n\n", strings.ToUpper(string(f.Severity)), f.RuleID, f.Function)
		fmt.Fprintf(&b, "- Location: `%s:%d-%d`\n- Confidence: %s\n", f.File, f.Span.StartLine, f.Span.EndLine, f.Confidence)
		if f.CWE != "" {
			fmt.Fprintf(&b, "- CWE: %s\n", f.CWE)
		}
		fmt.Fprintf(&b, "\n%s\n", f.Message)
		if f.Remediation != "" {
			fmt.Fprintf(&b, "\n**Remediation:** %s\n", f.Remediation)
		}
		if f.Snippet != "" {
			fmt.Fprintf(&b, "\n```rust\n%s\n```\n", f.Snippet)
		}
	}
	if len(r.Skipped) > 0 {
		b.WriteString("\n## Skipped\n\n")
		for _, s := range r.Skipped {
			if s.Function != "" {
				fmt.Fprintf(&b, "- `%s` `%s`: %s\n", s.File, s.Function, s.Reason)
			} else {
				fmt.Fprintf(&b, "- `%s`: %s\n", s.File, s.Reason)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

var severityColor = map[model.Severity]lipgloss.Color{
	model.SeverityCritical: lipgloss.Color("9"),
	model.SeverityHigh:     lipgloss.Color("208"),
	model.SeverityMedium:   lipgloss.Color("11"),
	model.SeverityLow:      lipgloss.Color("12"),
	model.SeverityInfo:     lipgloss.Color("8"),
}

// ColorEnabled reports whether w is a terminal that should receive ANSI styling.
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Table writes a human-readable summary. Styling is applied only when color is set.
func Table(w io.Writer, r model.Report, color bool) error {
	bold := lipgloss.NewStyle().Bold(true)
	dim := lipgloss.NewStyle().Faint(true)
	paint := func(st lipgloss.Style, s string) string {
		if !color {
			return s
		}
		return st.Render(s)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %d finding(s) in %d function(s) across %d file(s)\n",
		paint(bold, "panda"), r.TotalFindings, r.Metadata.AnalyzedFunctions, r.Metadata.AnalyzedFiles)
	var counts []string
	for _, s := range model.Severities {
		counts = append(counts, fmt.Sprintf("%s=%d", s, r.CountsBySeverity[s]))
	}
	fmt.Fprintf(&b, "%s\n\n", paint(dim, strings.Join(counts, " ")))
	for _, f := range r.Findings {
		sev := fmt.Sprintf("%-8s", strings.ToUpper(string(f.Severity)))
		fmt.Fprintf(&b, "%s %s %s:%d-%d %s\n", paint(lipgloss.NewStyle().Foreground(severityColor[f.Severity]).Bold(true), sev),
			paint(bold, f.RuleID), f.File, f.Span.StartLine, f.Span.EndLine, paint(dim, "("+f.Function+", "+string(f.Confidence)+")"))
		fmt.Fprintf(&b, "         %s\n", f.Message)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "\n%s\n", paint(bold, "Skipped"))
		for _, s := range r.Skipped {
			where := s.File
			if s.Function != "" {
				where += ":" + s.Function
			}
			fmt.Fprintf(&b, "  %s %s\n", where, paint(dim, s.Reason))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

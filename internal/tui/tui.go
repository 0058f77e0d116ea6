package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
	snippetStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
)

var severityStyle = map[model.Severity]lipgloss.Style{
	model.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	model.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	model.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	model.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	model.SeverityInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
}

// viewer is a list of findings with a detail pane for the selected one.
type viewer struct {
	report   model.Report
	cursor   int
	expanded bool
	height   int
}

func newViewer(r model.Report) viewer { return viewer{report: r, height: 20} }

func (m viewer) Init() tea.Cmd { return nil }

func (m viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.report.Findings)-1 {
				m.cursor++
			}
		case "enter", " ":
			m.expanded = !m.expanded
		}
	}
	return m, nil
}

func (m viewer) View() string {
	var b strings.Builder
	var counts []string
	for _, s := range model.Severities {
		counts = append(counts, fmt.Sprintf("%s %d", s, m.report.CountsBySeverity[s]))
	}
	fmt.Fprintf(&b, "%s  %s\n\n", titleStyle.Render(fmt.Sprintf("Findings (%d)", m.report.TotalFindings)), strings.Join(counts, " | "))
	if len(m.report.Findings) == 0 {
		b.WriteString("No findings.\n")
	}
	from, to := m.window()
	for i := from; i < to; i++ {
		f := m.report.Findings[i]
		line := fmt.Sprintf("%-8s %-28s %s:%d  %s", strings.ToUpper(string(f.Severity)), f.RuleID, f.File, f.Span.StartLine, f.Function)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		} else {
			line = severityStyle[f.Severity].Render(line)
		}
		b.WriteString(line + "\n")
	}
	if m.expanded && m.cursor < len(m.report.Findings) {
		f := m.report.Findings[m.cursor]
		fmt.Fprintf(&b, "\n%s\n%s (%s, %s)\n", titleStyle.Render(f.RuleID), f.Message, f.Confidence, f.CWE)
		if f.Remediation != "" {
			fmt.Fprintf(&b, "Fix: %s\n", f.Remediation)
		}
		if f.Snippet != "" {
			b.WriteString(snippetStyle.Render(f.Snippet) + "\n")
		}
	}
	b.WriteString(helpStyle.Render("\n↑/↓ move  enter details  q quit") + "\n")
	return b.String()
}

// window returns the slice of findings that fits on screen around the cursor.
func (m viewer) window() (int, int) {
	rows := m.height - 6
	if m.expanded {
		rows -= 12
	}
	if rows < 3 {
		rows = 3
	}
	n := len(m.report.Findings)
	from := 0
	if m.cursor >= rows {
		from = m.cursor - rows + 1
	}
	to := from + rows
	if to > n {
		to = n
	}
	return from, to
}

// Run launches the interactive findings viewer.
func Run(r model.Report) error {
	p := tea.NewProgram(newViewer(r))
	_, err := p.Run()
	return err
}

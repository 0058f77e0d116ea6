package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/plugins"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rules", Short: "List available rules"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List built-in detectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, d := range plugins.Builtin().Detectors() {
				m := d.Meta()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Severity, m.CWE, m.Title)
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <rule-id>",
		Short: "Show a detector's rationale and remediation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ok := plugins.Builtin().Lookup(args[0])
			if !ok {
				return &ExitError{Code: ExitUsage, Err: fmt.Errorf("unknown rule %q", args[0])}
			}
			m := d.Meta()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", m.ID, m.Version)
			fmt.Fprintf(out, "  title:       %s\n", m.Title)
			fmt.Fprintf(out, "  severity:    %s\n", m.Severity)
			fmt.Fprintf(out, "  confidence:  %s\n", m.Confidence)
			fmt.Fprintf(out, "  cwe:         %s\n", m.CWE)
			fmt.Fprintf(out, "  rationale:   %s\n", m.Rationale)
			fmt.Fprintf(out, "  remediation: %s\n", m.Remediation)
			if len(m.References) > 0 {
				fmt.Fprintf(out, "  references:  %s\n", strings.Join(m.References, ", "))
			}
			return nil
		},
	})
	return cmd
}

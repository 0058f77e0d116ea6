package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const corpus = "../engine/testdata/solana_vulnerable.rs"

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	root := &cobra.Command{Use: "panda", SilenceUsage: true, SilenceErrors: true}
	AddCommands(root)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	code := Execute(context.Background(), root)
	return code, out.String(), errOut.String()
}

func TestScanExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"report only", []string{"scan", "--no-cache", "-f", "json", corpus}, ExitOK},
		{"fail on high", []string{"scan", "--no-cache", "--fail-on", "high", corpus}, ExitFindings},
		{"min severity with fail-on", []string{"scan", "--no-cache", "--min-severity", "critical", "--fail-on", "critical", corpus}, ExitFindings},
		{"bad severity", []string{"scan", "--no-cache", "--min-severity", "extreme", corpus}, ExitUsage},
		{"bad format", []string{"scan", "--no-cache", "-f", "xml", corpus}, ExitUsage},
		{"bad timeout", []string{"scan", "--no-cache", "--timeout-ms", "0", corpus}, ExitUsage},
		{"missing path", []string{"scan", "--no-cache", "does/not/exist"}, ExitUsage},
		{"no rust files", []string{"scan", "--no-cache", t.TempDir()}, ExitUsage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := run(t, tc.args...)
			if code != tc.code {
				t.Fatalf("exit code = %d, want %d (stderr: %s)", code, tc.code, stderr)
			}
		})
	}
}

func TestScanJSONToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.json")
	code, stdout, stderr := run(t, "scan", "--no-cache", "-f", "json", "-o", out, corpus)
	if code != ExitOK {
		t.Fatalf("code = %d: %s", code, stderr)
	}
	if stdout != "" {
		t.Fatalf("report also written to stdout: %q", stdout)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"total_findings"`, `"MissingSignerCheck"`, `"counts_by_severity"`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("report missing %s", want)
		}
	}
}

func TestWriteBaselineThenScanClean(t *testing.T) {
	dir := t.TempDir()
	baseline := filepath.Join(dir, "baseline.json")
	if code, _, stderr := run(t, "scan", "--no-cache", "--write-baseline", baseline, corpus); code != ExitOK {
		t.Fatalf("code = %d: %s", code, stderr)
	}
	code, _, stderr := run(t, "scan", "--no-cache", "--baseline", baseline, "--fail-on", "low", corpus)
	if code != ExitOK {
		t.Fatalf("baseline should suppress every finding, code = %d: %s", code, stderr)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	if code, _, stderr := run(t, "init", "--dir", dir); code != ExitOK {
		t.Fatalf("init: %d %s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, ".panda.yml")); err != nil {
		t.Fatal(err)
	}
	if code, _, _ := run(t, "init", "--dir", dir); code != ExitUsage {
		t.Fatalf("second init should refuse to overwrite, code = %d", code)
	}
	if code, _, _ := run(t, "init", "--dir", dir, "--force"); code != ExitOK {
		t.Fatalf("--force should overwrite, code = %d", code)
	}
}

func TestRules(t *testing.T) {
	code, out, _ := run(t, "rules", "list")
	if code != ExitOK || len(strings.Split(strings.TrimSpace(out), "\n")) != 9 {
		t.Fatalf("rules list (%d):\n%s", code, out)
	}
	code, out, _ = run(t, "rules", "show", "MissingPdaBumpValidation")
	if code != ExitOK || !strings.Contains(out, "CWE-345") {
		t.Fatalf("rules show (%d):\n%s", code, out)
	}
	if code, _, _ := run(t, "rules", "show", "NoSuchRule"); code != ExitUsage {
		t.Fatalf("unknown rule code = %d", code)
	}
}

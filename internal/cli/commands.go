package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/config"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/engine"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/logging"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/report"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/tui"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitFindings = 1
	ExitUsage    = 2
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

var formats = map[string]bool{"table": true, "json": true, "sarif": true, "markdown": true}

func AddCommands(root *cobra.Command) {
	root.AddCommand(newScanCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newRulesCmd())
}

type scanFlags struct {
	format        string
	out           string
	failOn        string
	minSeverity   string
	timeoutMs     int
	workers       int
	configPath    string
	baseline      string
	writeBaseline string
	noCache       bool
	useTUI        bool
	verbose       bool
}

func newScanCmd() *cobra.Command {
	var fl scanFlags
	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Scan Solana/Anchor programs for vulnerabilities",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			return runScan(cmd, args, fl)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&fl.format, "format", "f", "table", "Output format: table|json|sarif|markdown")
	f.StringVarP(&fl.out, "out", "o", "", "Write the report to a file instead of stdout")
	f.StringVar(&fl.failOn, "fail-on", "", "Exit 1 if a finding of this severity or higher remains (info|low|medium|high|critical)")
	f.StringVar(&fl.minSeverity, "min-severity", "", "Drop findings below this severity")
	f.IntVar(&fl.timeoutMs, "timeout-ms", 0, "Per-function analysis budget in milliseconds")
	f.IntVar(&fl.workers, "workers", 0, "Concurrent analysis workers (default: number of CPUs)")
	f.StringVar(&fl.configPath, "config", "", "Config file (default: search upwards for .panda.yml)")
	f.StringVar(&fl.baseline, "baseline", "", "Suppress findings whose fingerprints are in this baseline file")
	f.StringVar(&fl.writeBaseline, "write-baseline", "", "Write a baseline file with finding fingerprints")
	f.BoolVar(&fl.noCache, "no-cache", false, "Do not read or write the parse cache")
	f.BoolVar(&fl.useTUI, "tui", false, "Browse findings in an interactive terminal UI")
	f.BoolVarP(&fl.verbose, "verbose", "v", false, "Log progress to stderr")
	return cmd
}

func runScan(cmd *cobra.Command, paths []string, fl scanFlags) error {
	log := logging.New(cmd.ErrOrStderr(), fl.verbose)
	cfg, err := loadConfig(cmd, paths[0], fl)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	if !formats[fl.format] {
		return &ExitError{Code: ExitUsage, Err: &config.ConfigError{Field: "format", Value: fl.format, Reason: "want table, json, sarif or markdown"}}
	}
	if fl.workers < 0 {
		return &ExitError{Code: ExitUsage, Err: &config.ConfigError{Field: "workers", Value: fmt.Sprint(fl.workers), Reason: "must not be negative"}}
	}
	log.Debug("configuration", "min_severity", cfg.MinSeverity, "fail_on", cfg.FailOn, "timeout_ms", cfg.TimeoutMs, "workers", cfg.Workers)

	eng := engine.New(engine.WithLogger(log), engine.WithConfig(cfg))
	result, err := eng.Scan(cmd.Context(), model.ScanRequest{
		Paths:           paths,
		MinSeverity:     model.ParseSeverity(cfg.MinSeverity),
		FunctionTimeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		Workers:         cfg.Workers,
		UseCache:        cfg.CacheEnabled(),
		BaselinePath:    cfg.Baseline,
	})
	if err != nil {
		var ce *config.ConfigError
		if errors.As(err, &ce) || errors.Is(err, engine.ErrNoInput) {
			return &ExitError{Code: ExitUsage, Err: err}
		}
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("scan: %w", err)}
	}
	rep := result.Report

	if fl.writeBaseline != "" {
		if err := engine.WriteBaseline(fl.writeBaseline, rep.Findings); err != nil {
			return &ExitError{Code: ExitUsage, Err: fmt.Errorf("write baseline: %w", err)}
		}
		log.Debug("baseline written", "path", fl.writeBaseline)
	}

	if fl.useTUI {
		if err := tui.Run(rep); err != nil {
			return err
		}
	} else if err := render(cmd.OutOrStdout(), fl, rep); err != nil {
		return err
	}

	if cfg.FailOn != "" && engine.MeetsThreshold(rep.Findings, model.ParseSeverity(cfg.FailOn)) {
		return &ExitError{Code: ExitFindings, Err: fmt.Errorf("findings at or above %s", strings.ToLower(cfg.FailOn))}
	}
	return nil
}

// loadConfig resolves the config file and overlays the flags the user set explicitly.
func loadConfig(cmd *cobra.Command, firstPath string, fl scanFlags) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if fl.configPath != "" {
		cfg, err = config.LoadFile(fl.configPath)
	} else {
		cfg, _, err = config.Load(firstPath)
	}
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("min-severity") {
		cfg.MinSeverity = fl.minSeverity
	}
	if flags.Changed("fail-on") {
		cfg.FailOn = fl.failOn
	}
	if flags.Changed("timeout-ms") {
		cfg.TimeoutMs = fl.timeoutMs
	}
	if flags.Changed("workers") {
		cfg.Workers = fl.workers
	}
	if flags.Changed("baseline") {
		cfg.Baseline = fl.baseline
	}
	if fl.noCache {
		off := false
		cfg.Cache = &off
	}
	return cfg, cfg.Validate()
}

func render(stdout io.Writer, fl scanFlags, rep model.Report) error {
	var (
		buf   bytes.Buffer
		data  []byte
		err   error
		color = fl.out == "" && report.ColorEnabled(stdout)
	)
	switch fl.format {
	case "json":
		data, err = report.JSON(rep)
	case "sarif":
		data, err = report.SARIF(rep)
	case "markdown":
		err = report.Markdown(&buf, rep)
		data = buf.Bytes()
	default:
		err = report.Table(&buf, rep, color)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", fl.format, err)
	}
	if fl.out != "" {
		return os.WriteFile(fl.out, data, 0o644)
	}
	_, err = stdout.Write(data)
	return err
}

// Execute runs root and maps its error to a process exit code.
func Execute(ctx context.Context, root *cobra.Command) int {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.Code != ExitFindings {
			fmt.Fprintln(root.ErrOrStderr(), "error:", ee)
		}
		return ee.Code
	}
	fmt.Fprintln(root.ErrOrStderr(), "error:", err)
	return ExitUsage
}

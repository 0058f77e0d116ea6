package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/analysis"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/anchor"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/config"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/logging"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/plugins"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/report"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/util"
)

// ErrNoInput is returned when the scan paths contain no Rust source.
var ErrNoInput = errors.New("no analyzable .rs files found")

const (
	defaultTimeout = 2000 * time.Millisecond
	snippetContext = 2
)

// directories never descended into
var skipDirs = map[string]bool{"target": true, "node_modules": true}

type Engine struct {
	registry *plugins.Registry
	parser   *anchor.Parser
	cfg      config.Config
	log      *slog.Logger
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRegistry replaces the built-in detectors.
func WithRegistry(r *plugins.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithConfig supplies rule selection and ignore entries.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		registry: plugins.Builtin(),
		parser:   anchor.NewParser(),
		cfg:      config.Default(),
		log:      logging.Discard(),
	}
	for _, o := range opts {
		o(e)
	}
	e.registry = e.registry.Filter(e.cfg.Rules, e.cfg.DisabledRules).WithLogger(e.log)
	return e
}

// Registry returns the detectors the engine runs.
func (e *Engine) Registry() *plugins.Registry { return e.registry }

type parsed struct {
	path    string
	content []byte
	ir      *anchor.FileIR
	err     error
}

type unit struct {
	file string
	fn   *anchor.FunctionIR
}

type unitResult struct {
	findings []model.Finding
	skipped  *model.SkippedUnit
}

func (e *Engine) Scan(ctx context.Context, req model.ScanRequest) (*model.ScanResult, error) {
	start := time.Now()
	if err := validate(&req); err != nil {
		return nil, err
	}
	files, err := discoverFiles(req.Paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoInput
	}
	e.log.Debug("discovered files", "count", len(files))

	pf, err := e.parseAll(ctx, files, req)
	if err != nil {
		return nil, err
	}

	pctx := analysis.NewProjectContext(commonRoot(req.Paths))
	var (
		diags   []model.Finding
		skipped []model.SkippedUnit
		units   []unit
	)
	for _, p := range pf {
		if p.err != nil {
			e.log.Debug("file skipped", "file", p.path, "err", p.err)
			diags = append(diags, diagnostic(model.RuleParseError, p.path, "", model.Span{StartLine: 1, EndLine: 1}, p.err.Error()))
			skipped = append(skipped, model.SkippedUnit{File: p.path, Reason: "parse error: " + p.err.Error()})
			continue
		}
		pctx.AddFile(p.path, p.content, p.ir)
		for _, is := range p.ir.Issues {
			diags = append(diags, diagnostic(model.RuleParseError, p.path, "", is.Span, is.Message))
		}
	}
	for _, path := range pctx.Files {
		ir := pctx.IR[path]
		if ir == nil {
			continue
		}
		for _, fn := range ir.Functions {
			if !pctx.Analyzable(path, fn) {
				skipped = append(skipped, model.SkippedUnit{File: path, Function: fn.Name, Reason: "not reachable from an entry point"})
				continue
			}
			units = append(units, unit{file: path, fn: fn})
		}
	}

	results := make([]unitResult, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(req.Workers)
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.analyze(gctx, u, req.FunctionTimeout)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	analyzed := 0
	var findings []model.Finding
	for _, r := range results {
		findings = append(findings, r.findings...)
		if r.skipped != nil {
			skipped = append(skipped, *r.skipped)
		} else {
			analyzed++
		}
	}
	findings = append(findings, diags...)
	for i := range findings {
		f := &findings[i]
		if f.Snippet == "" && !model.IsDiagnostic(f.RuleID) {
			f.Snippet = util.ExtractSnippet(string(pctx.FileContents[f.File]), f.Span.StartLine, f.Span.EndLine, snippetContext)
		}
	}

	findings = applyIgnores(findings, e.cfg, pctx.FileContents)
	findings = filterBySeverity(findings, req.MinSeverity)
	if req.BaselinePath != "" {
		b, err := loadBaseline(req.BaselinePath)
		if err != nil {
			return nil, &config.ConfigError{Field: "baseline", Value: req.BaselinePath, Reason: err.Error()}
		}
		findings = filterByBaseline(findings, b)
	}
	findings = Aggregate(findings)

	meta := model.ReportMetadata{AnalyzedFiles: len(pctx.IR), AnalyzedFunctions: analyzed}
	for _, d := range e.registry.Detectors() {
		m := d.Meta()
		meta.Detectors = append(meta.Detectors, model.DetectorVersion{ID: m.ID, Version: m.Version})
	}
	rep := report.Build(findings, skipped, meta)
	elapsed := time.Since(start)
	e.log.Debug("scan complete", "findings", rep.TotalFindings, "functions", analyzed, "elapsed", elapsed)
	return &model.ScanResult{Report: rep, Elapsed: elapsed}, nil
}

// analyze runs extraction and every detector over one function under its own deadline.
// Nothing here fails the scan: problems become diagnostics scoped to the function.
func (e *Engine) analyze(ctx context.Context, u unit, timeout time.Duration) unitResult {
	var res unitResult
	if u.fn.Malformed {
		msg := fmt.Sprintf("function %s contains syntax errors", u.fn.Name)
		res.findings = append(res.findings, diagnostic(model.RuleParseError, u.file, u.fn.Name, u.fn.Span, msg))
		res.skipped = &model.SkippedUnit{File: u.file, Function: u.fn.Name, Reason: "parse error"}
		e.log.Debug("function skipped", "file", u.file, "function", u.fn.Name, "reason", "malformed")
		return res
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	set, err := facts.Extract(fctx, u.file, u.fn)
	partial := false
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		partial = true
	case errors.Is(err, facts.ErrMalformedFunction):
		res.findings = append(res.findings, diagnostic(model.RuleParseError, u.file, u.fn.Name, u.fn.Span, err.Error()))
		res.skipped = &model.SkippedUnit{File: u.file, Function: u.fn.Name, Reason: "parse error"}
		return res
	default:
		res.findings = append(res.findings, diagnostic(model.RuleExtractionError, u.file, u.fn.Name, u.fn.Span, err.Error()))
		res.skipped = &model.SkippedUnit{File: u.file, Function: u.fn.Name, Reason: "extraction failed"}
		return res
	}
	if len(set.Issues) > 0 {
		msgs := make([]string, 0, len(set.Issues))
		for _, is := range set.Issues {
			msgs = append(msgs, is.Message)
		}
		msg := fmt.Sprintf("%d construct(s) not classified: %s", len(msgs), strings.Join(msgs, "; "))
		res.findings = append(res.findings, diagnostic(model.RuleExtractionError, u.file, u.fn.Name, u.fn.Span, msg))
	}
	if !partial {
		run := e.registry.Run(fctx, set)
		res.findings = append(res.findings, run.Findings...)
		res.findings = append(res.findings, run.Faults...)
		partial = run.Partial
	}
	if partial {
		msg := fmt.Sprintf("analysis of %s exceeded %s; results are incomplete", u.fn.Name, timeout)
		res.findings = append(res.findings, diagnostic(model.RulePartialAnalysis, u.file, u.fn.Name, u.fn.Span, msg))
		e.log.Debug("function timed out", "file", u.file, "function", u.fn.Name, "timeout", timeout)
	}
	return res
}

func (e *Engine) parseAll(ctx context.Context, files []string, req model.ScanRequest) ([]parsed, error) {
	out := make([]parsed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(req.Workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			out[i] = parsed{path: path}
			content, err := os.ReadFile(path)
			if err != nil {
				out[i].err = err
				return nil
			}
			out[i].content = content
			ir, err := anchor.BuildIR(gctx, e.parser, path, content, req.UseCache)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				out[i].err = err
				return nil
			}
			out[i].ir = ir
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return out, nil
}

func validate(req *model.ScanRequest) error {
	if len(req.Paths) == 0 {
		req.Paths = []string{"."}
	}
	for _, p := range req.Paths {
		if _, err := os.Stat(p); err != nil {
			return &config.ConfigError{Field: "path", Value: p, Reason: "does not exist or is not readable"}
		}
	}
	if req.MinSeverity == "" {
		req.MinSeverity = model.SeverityInfo
	}
	sev, ok := model.LookupSeverity(string(req.MinSeverity))
	if !ok {
		return &config.ConfigError{Field: "min_severity", Value: string(req.MinSeverity), Reason: "unknown severity"}
	}
	req.MinSeverity = sev
	if req.Workers < 0 {
		return &config.ConfigError{Field: "workers", Value: fmt.Sprint(req.Workers), Reason: "must not be negative"}
	}
	if req.Workers == 0 {
		req.Workers = runtime.NumCPU()
	}
	if req.FunctionTimeout < 0 {
		return &config.ConfigError{Field: "timeout", Value: req.FunctionTimeout.String(), Reason: "must be positive"}
	}
	if req.FunctionTimeout == 0 {
		req.FunctionTimeout = defaultTimeout
	}
	return nil
}

// discoverFiles returns the .rs files under paths, slash-separated and sorted. Files
// named explicitly are kept whatever their extension.
func discoverFiles(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		p = filepath.ToSlash(filepath.Clean(p))
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, root := range paths {
		fi, err := os.Stat(root)
		if err != nil {
			return nil, &config.ConfigError{Field: "path", Value: root, Reason: err.Error()}
		}
		if !fi.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				name := d.Name()
				if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(d.Name()) == ".rs" {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

func commonRoot(paths []string) string {
	if len(paths) == 1 {
		return paths[0]
	}
	return "."
}

func diagnostic(rule, file, function string, sp model.Span, msg string) model.Finding {
	if sp.StartLine == 0 {
		sp = model.Span{StartLine: 1, EndLine: 1}
	}
	return model.Finding{
		RuleID:     rule,
		Severity:   model.SeverityInfo,
		Confidence: model.ConfidenceCertain,
		Function:   function,
		File:       file,
		Span:       model.Span{StartLine: sp.StartLine, EndLine: sp.EndLine},
		Message:    msg,
	}
}

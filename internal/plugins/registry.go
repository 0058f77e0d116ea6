package plugins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// ErrMalformedFactSet is returned by detectors asked to reason about a nil or
// inconsistent fact set.
var ErrMalformedFactSet = errors.New("malformed fact set")

// Detector inspects the facts of one function. Implementations hold no state between
// calls.
type Detector interface {
	Meta() model.RuleMeta
	Detect(fs *facts.FactSet) ([]model.Finding, error)
}

type Registry struct {
	detectors []Detector
	log       *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithLogger sets the logger used to report detector faults.
func (r *Registry) WithLogger(l *slog.Logger) *Registry {
	if l != nil {
		r.log = l
	}
	return r
}

// Register appends d. Registering an id twice replaces the earlier detector.
func (r *Registry) Register(d Detector) {
	for i, have := range r.detectors {
		if have.Meta().ID == d.Meta().ID {
			r.detectors[i] = d
			return
		}
	}
	r.detectors = append(r.detectors, d)
}

func (r *Registry) RegisterBuiltin() {
	r.Register(&missingSignerCheck{})
	r.Register(&uncheckedOwnership{})
	r.Register(&unsafeDeserialization{})
	r.Register(&uncheckedArithmetic{})
	r.Register(&missingRentExemption{})
	r.Register(&uninitializedAccountAccess{})
	r.Register(&missingPdaBumpValidation{})
	r.Register(&weakAccountValidation{})
	r.Register(&unhandledDivisionOrError{})
}

// Builtin returns a registry holding the nine built-in detectors.
func Builtin() *Registry {
	r := NewRegistry()
	r.RegisterBuiltin()
	return r
}

func (r *Registry) Detectors() []Detector { return r.detectors }

// Lookup finds a registered detector by rule id.
func (r *Registry) Lookup(id string) (Detector, bool) {
	for _, d := range r.detectors {
		if d.Meta().ID == id {
			return d, true
		}
	}
	return nil, false
}

// Filter keeps the detectors enabled by the allow and deny lists. An empty allow list
// enables everything.
func (r *Registry) Filter(allow, deny []string) *Registry {
	allowed := map[string]bool{}
	for _, id := range allow {
		allowed[id] = true
	}
	denied := map[string]bool{}
	for _, id := range deny {
		denied[id] = true
	}
	out := &Registry{log: r.log}
	for _, d := range r.detectors {
		id := d.Meta().ID
		if (len(allowed) == 0 || allowed[id]) && !denied[id] {
			out.detectors = append(out.detectors, d)
		}
	}
	return out
}

// RunResult is the outcome of running every detector over one fact set.
type RunResult struct {
	Findings []model.Finding
	// Faults are DetectorFault diagnostics for detectors that failed or panicked.
	Faults []model.Finding
	// Partial is set when ctx ended before every detector ran.
	Partial   bool
	Completed int
}

// Run dispatches every detector over fs. A detector that errors or panics loses its
// findings for this function and contributes a fault diagnostic instead; the others are
// unaffected. ctx is checked between detectors.
func (r *Registry) Run(ctx context.Context, fs *facts.FactSet) RunResult {
	var res RunResult
	for _, d := range r.detectors {
		if ctx.Err() != nil {
			res.Partial = true
			break
		}
		found, err := r.safeDetect(d, fs)
		res.Completed++
		if err != nil {
			r.log.Debug("detector fault", "rule", d.Meta().ID, "function", functionName(fs), "err", err)
			res.Faults = append(res.Faults, faultFinding(d.Meta(), fs, err))
			continue
		}
		for i := range found {
			found[i].File = filepath.ToSlash(found[i].File)
		}
		res.Findings = append(res.Findings, found...)
	}
	return res
}

func (r *Registry) safeDetect(d Detector, fs *facts.FactSet) (out []model.Finding, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	if err := fs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFactSet, err)
	}
	return d.Detect(fs)
}

func functionName(fs *facts.FactSet) string {
	if fs == nil {
		return ""
	}
	return fs.Function
}

func faultFinding(meta model.RuleMeta, fs *facts.FactSet, err error) model.Finding {
	f := model.Finding{
		RuleID:     model.RuleDetectorFault,
		Severity:   model.SeverityInfo,
		Confidence: model.ConfidenceCertain,
		DetectorID: meta.ID,
		Message:    fmt.Sprintf("detector %s failed: %v", meta.ID, err),
	}
	if fs != nil {
		f.Function = fs.Function
		f.File = filepath.ToSlash(fs.File)
		f.Span = fs.Span
	}
	return f
}

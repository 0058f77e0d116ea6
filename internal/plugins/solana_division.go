package plugins

import (
	"fmt"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// unhandledDivisionOrError flags divisions by values never proven non-zero and
// unwrap/expect on fallible calls. Both abort the transaction instead of returning an
// error the client can handle.
type unhandledDivisionOrError struct{}

func (d *unhandledDivisionOrError) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "UnhandledDivisionOrError",
		Title:       "Division by zero or unhandled error",
		Severity:    model.SeverityHigh,
		Confidence:  model.ConfidenceCertain,
		Version:     detectorVersion,
		CWE:         "CWE-369",
		Rationale:   "Division by an unchecked value and unwrap on a fallible call panic the program instead of returning an error.",
		Remediation: "Handle errors gracefully without panicking: check divisors against zero (or use checked_div) and propagate errors with ?.",
		References:  []string{"CWE-369", "CWE-755"},
	}
}

func (d *unhandledDivisionOrError) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if fs == nil {
		return nil, ErrMalformedFactSet
	}
	meta := d.Meta()
	var out []model.Finding
	for _, op := range fs.Operations {
		switch op.Kind {
		case facts.ArithmeticOp:
			if op.Checked || op.Divisor == "" || (op.Arith != facts.Div && op.Arith != facts.Rem) {
				continue
			}
			if op.GuardedBy(facts.NonZeroCheck, op.Divisor) {
				continue
			}
			msg := fmt.Sprintf("division by %s, which is never checked to be non-zero", op.Divisor)
			out = append(out, finding(meta, fs, op.Span, model.ConfidenceCertain, op.Text, msg))
		case facts.ForceUnwrap:
			m := meta
			m.CWE = "CWE-755"
			msg := fmt.Sprintf("result of a fallible call is force-unwrapped with %s: %s", op.Method, op.Text)
			out = append(out, finding(m, fs, op.Span, model.ConfidenceCertain, op.Text, msg))
		}
	}
	return out, nil
}

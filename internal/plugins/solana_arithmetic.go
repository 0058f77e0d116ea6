package plugins

import (
	"fmt"
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// uncheckedArithmetic flags +, - and * on values an attacker can influence. Release
// builds of on-chain programs wrap silently on overflow.
type uncheckedArithmetic struct{}

func (d *uncheckedArithmetic) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "UncheckedArithmetic",
		Title:       "Unchecked arithmetic on account-controlled values",
		Severity:    model.SeverityHigh,
		Confidence:  model.ConfidenceCertain,
		Version:     detectorVersion,
		CWE:         "CWE-190",
		Rationale:   "Rust requires explicit overflow handling in financial operations; release builds wrap on overflow.",
		Remediation: "Use checked arithmetic operations (checked_add, checked_sub, checked_mul) and propagate the error.",
		References:  []string{"CWE-190"},
	}
}

func (d *uncheckedArithmetic) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if fs == nil {
		return nil, ErrMalformedFactSet
	}
	var out []model.Finding
	for _, op := range fs.OperationsOf(facts.ArithmeticOp) {
		if op.Checked || !op.Tainted {
			continue
		}
		switch op.Arith {
		case facts.Add, facts.Sub, facts.Mul:
		default:
			continue
		}
		msg := fmt.Sprintf("unchecked %s on untrusted operands: %s", strings.ToLower(string(op.Arith)), op.Text)
		out = append(out, finding(d.Meta(), fs, op.Span, model.ConfidenceCertain, op.Text, msg))
	}
	return out, nil
}

package plugins

import (
	"fmt"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

type unsafeDeserialization struct{}

func (d *unsafeDeserialization) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "UnsafeDeserialization",
		Title:       "Account bytes reinterpreted without a checked decoder",
		Severity:    model.SeverityCritical,
		Confidence:  model.ConfidenceCertain,
		Version:     detectorVersion,
		CWE:         "CWE-502",
		Rationale:   "Unchecked deserialization can lead to memory corruption: reinterpreting raw account bytes skips length and layout validation.",
		Remediation: "Use safe deserialization methods with proper validation (try_from_slice, Account<'info, T>, try_deserialize).",
		References:  []string{"CWE-502"},
	}
}

func (d *unsafeDeserialization) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if fs == nil {
		return nil, ErrMalformedFactSet
	}
	var out []model.Finding
	for _, op := range fs.OperationsOf(facts.RawDeserialization) {
		if op.Checked {
			continue
		}
		what := "account data"
		if acct := op.Subject(); acct != "" {
			what = "data of " + acct
		}
		msg := fmt.Sprintf("%s is reinterpreted with %s, bypassing length and layout checks", what, op.Method)
		out = append(out, finding(d.Meta(), fs, op.Span, model.ConfidenceCertain, op.Subject()+"|"+op.Text, msg))
	}
	return out, nil
}

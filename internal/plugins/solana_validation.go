package plugins

import (
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

var lengthVia = map[string]bool{"len": true, "data_len": true, "is_empty": true, "data_is_empty": true}

// weakAccountValidation flags boolean helpers whose verdict on an account rests only on
// how many bytes it holds.
type weakAccountValidation struct{}

func (d *weakAccountValidation) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "WeakAccountValidation",
		Title:       "Account validation only checks data length",
		Severity:    model.SeverityLow,
		Confidence:  model.ConfidencePossible,
		Version:     detectorVersion,
		CWE:         "CWE-20",
		Rationale:   "A validation helper that only tests data length accepts any account of the right size, including ones owned by other programs.",
		Remediation: "Validate owner, signer and discriminator in addition to the data length.",
		References:  []string{"CWE-20"},
	}
}

func (d *weakAccountValidation) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if fs == nil {
		return nil, ErrMalformedFactSet
	}
	if !fs.ReturnsBool {
		return nil, nil
	}
	type atom struct {
		node int
		text string
	}
	// length checks on an account; a `> 0` on the same predicate is part of it
	accountLength := map[atom]bool{}
	for _, g := range fs.Guards {
		if g.Kind == facts.InitializedCheck && lengthVia[g.Via] && !g.Declared {
			if _, ok := fs.Binding(g.Subject); ok {
				accountLength[atom{g.Node, g.Text}] = true
			}
		}
	}
	var first *facts.Guard
	for i, g := range fs.Guards {
		if g.Declared {
			continue
		}
		switch {
		case g.Kind == facts.OwnerCheck, g.Kind == facts.SignerCheck, g.Kind == facts.PdaCheck:
			return nil, nil
		case g.Kind == facts.InitializedCheck && lengthVia[g.Via],
			g.Kind == facts.NonZeroCheck:
			if !accountLength[atom{g.Node, g.Text}] {
				return nil, nil
			}
		default:
			return nil, nil
		}
		if first == nil {
			first = &fs.Guards[i]
		}
	}
	if first == nil {
		return nil, nil
	}
	msg := fs.Function + " validates an account by data length only (" + first.Text + ")"
	return []model.Finding{finding(d.Meta(), fs, first.Span, model.ConfidencePossible, first.Text, msg)}, nil
}

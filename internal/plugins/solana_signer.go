package plugins

import (
	"fmt"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// missingSignerCheck flags lamport debits from accounts nobody proved signed the
// transaction.
type missingSignerCheck struct{}

func (d *missingSignerCheck) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "MissingSignerCheck",
		Title:       "Lamports moved without a signer check",
		Severity:    model.SeverityCritical,
		Confidence:  model.ConfidenceCertain,
		Version:     detectorVersion,
		CWE:         "CWE-306",
		Rationale:   "Solana programs must verify that accounts are properly signed before moving their lamports; otherwise anyone can drain them.",
		Remediation: "Add is_signer checks (or declare the account as Signer<'info>) before debiting it.",
		References:  []string{"CWE-306", "https://github.com/coral-xyz/sealevel-attacks/tree/master/programs/0-signer-authorization"},
	}
}

func (d *missingSignerCheck) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if fs == nil {
		return nil, ErrMalformedFactSet
	}
	var out []model.Finding
	for _, op := range fs.OperationsOf(facts.LamportMutation) {
		if op.Direction == facts.Credit {
			continue
		}
		subject := op.Subject()
		if signerCovered(fs, op, subject) {
			continue
		}
		conf := model.ConfidenceCertain
		msg := fmt.Sprintf("lamports of %s are debited but %s is never checked to be a signer", subject, subject)
		if op.Direction != facts.Debit {
			conf = model.ConfidenceLikely
			msg = fmt.Sprintf("lamports of %s are modified but %s is never checked to be a signer", subject, subject)
		}
		if subject == "" {
			msg = "lamports are debited from an account that is never checked to be a signer"
		}
		out = append(out, finding(d.Meta(), fs, op.Span, conf, subject+"|"+op.Text, msg))
	}
	return out, nil
}

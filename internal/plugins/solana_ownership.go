package plugins

import (
	"fmt"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// uncheckedOwnership flags account data that is read as program state or written
// without first verifying which program owns the account. Reported once per account.
type uncheckedOwnership struct{}

func (d *uncheckedOwnership) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "UncheckedOwnership",
		Title:       "Account data used without an ownership check",
		Severity:    model.SeverityCritical,
		Confidence:  model.ConfidenceLikely,
		Version:     detectorVersion,
		CWE:         "CWE-284",
		Rationale:   "Account ownership should be verified before its data is trusted; an attacker can pass an account owned by another program with crafted contents.",
		Remediation: "Verify account.owner == expected_program_id, or use a typed Account<'info, T> which checks the owner.",
		References:  []string{"CWE-284", "https://github.com/coral-xyz/sealevel-attacks/tree/master/programs/2-owner-checks"},
	}
}

func (d *uncheckedOwnership) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if fs == nil {
		return nil, ErrMalformedFactSet
	}
	created := map[string]bool{}
	for _, op := range fs.OperationsOf(facts.AccountCreation) {
		created[op.Subject()] = true
	}
	seen := map[string]bool{}
	var out []model.Finding
	for _, op := range fs.Operations {
		if op.Kind != facts.AccountDataWrite && op.Kind != facts.RawDeserialization {
			continue
		}
		acct := op.Subject()
		if acct == "" || seen[acct] || created[acct] {
			continue
		}
		if b, ok := fs.Binding(acct); ok && b.OwnerChecked {
			continue
		}
		if op.GuardedBy(facts.OwnerCheck, acct) {
			continue
		}
		seen[acct] = true
		verb := "written"
		if op.Kind == facts.RawDeserialization {
			verb = "deserialized"
		}
		msg := fmt.Sprintf("data of %s is %s without verifying the account owner", acct, verb)
		out = append(out, finding(d.Meta(), fs, op.Span, model.ConfidenceLikely, acct, msg))
	}
	return out, nil
}

package plugins

import (
	"fmt"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

type missingRentExemption struct{}

func (d *missingRentExemption) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "MissingRentExemption",
		Title:       "Account created without a rent-exemption check",
		Severity:    model.SeverityMedium,
		Confidence:  model.ConfidenceLikely,
		Version:     detectorVersion,
		CWE:         "CWE-400",
		Rationale:   "Accounts should be rent-exempt to avoid being cleaned up by the runtime together with the state they hold.",
		Remediation: "Verify rent.is_exempt(account.lamports(), account.data_len()) or fund the account with rent.minimum_balance(space).",
		References:  []string{"CWE-400", "https://docs.solana.com/developing/intro/rent"},
	}
}

func (d *missingRentExemption) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if fs == nil {
		return nil, ErrMalformedFactSet
	}
	seen := map[string]bool{}
	var out []model.Finding
	report := func(op facts.Operation, what string) {
		acct := op.Subject()
		if seen[acct] || op.GuardedBy(facts.RentExemptCheck, acct) {
			return
		}
		if b, ok := fs.Binding(acct); ok && b.RentExempt {
			return
		}
		seen[acct] = true
		msg := fmt.Sprintf("%s without checking that it is rent-exempt", what)
		out = append(out, finding(d.Meta(), fs, op.Span, model.ConfidenceLikely, acct, msg))
	}
	for _, op := range fs.Operations {
		switch op.Kind {
		case facts.AccountCreation:
			what := "account is created"
			if acct := op.Subject(); acct != "" {
				what = acct + " is created"
			}
			report(op, what)
		case facts.AccountDataWrite:
			if b, ok := fs.Binding(op.Subject()); ok && b.Fresh {
				report(op, op.Subject()+" is initialized")
			}
		}
	}
	return out, nil
}

package plugins

import (
	"fmt"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// uninitializedAccountAccess flags writes into an account this function is creating
// when nothing looked at its current contents first; re-initialization overwrites live
// state.
type uninitializedAccountAccess struct{}

func (d *uninitializedAccountAccess) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "UninitializedAccountAccess",
		Title:       "Account data written without an initialization check",
		Severity:    model.SeverityMedium,
		Confidence:  model.ConfidenceLikely,
		Version:     detectorVersion,
		CWE:         "CWE-908",
		Rationale:   "Accessing uninitialized accounts can lead to undefined behavior, and re-initializing a live account overwrites its state.",
		Remediation: "Check account initialization before use (data.is_empty(), an is_initialized flag, or Anchor's init constraint).",
		References:  []string{"CWE-908", "https://github.com/coral-xyz/sealevel-attacks/tree/master/programs/4-initialization"},
	}
}

func (d *uninitializedAccountAccess) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if fs == nil {
		return nil, ErrMalformedFactSet
	}
	seen := map[string]bool{}
	var out []model.Finding
	for _, op := range fs.OperationsOf(facts.AccountDataWrite) {
		acct := op.Subject()
		b, ok := fs.Binding(acct)
		if !ok || !b.Fresh || b.Initialized || seen[acct] {
			continue
		}
		if op.GuardedBy(facts.InitializedCheck, acct) {
			continue
		}
		seen[acct] = true
		msg := fmt.Sprintf("data of %s is written before checking whether it is already initialized", acct)
		out = append(out, finding(d.Meta(), fs, op.Span, model.ConfidenceLikely, acct, msg))
	}
	return out, nil
}

package plugins

import (
	"fmt"
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

type missingPdaBumpValidation struct{}

func (d *missingPdaBumpValidation) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "MissingPdaBumpValidation",
		Title:       "Derived PDA never compared with the supplied account",
		Severity:    model.SeverityHigh,
		Confidence:  model.ConfidenceCertain,
		Version:     detectorVersion,
		CWE:         "CWE-345",
		Rationale:   "PDA bump seeds should be validated to ensure canonical addresses; deriving an address and not comparing it lets callers substitute any account.",
		Remediation: "Compare the derived address with the supplied account (require_keys_eq!(pda.key(), expected)) or declare seeds and bump constraints.",
		References:  []string{"CWE-345", "https://github.com/coral-xyz/sealevel-attacks/tree/master/programs/7-bump-seed-canonicalization"},
	}
}

func (d *missingPdaBumpValidation) Detect(fs *facts.FactSet) ([]model.Finding, error) {
	if fs == nil {
		return nil, ErrMalformedFactSet
	}
	var out []model.Finding
	for _, op := range fs.OperationsOf(facts.PdaDerivation) {
		if pdaCompared(fs, op) {
			continue
		}
		msg := fmt.Sprintf("address derived by %s is never compared with a supplied account", op.Method)
		if op.Result != "" && !strings.HasPrefix(op.Result, "@") {
			msg = fmt.Sprintf("%s derived by %s is never compared with a supplied account", op.Result, op.Method)
		}
		out = append(out, finding(d.Meta(), fs, op.Span, model.ConfidenceCertain, op.Result, msg))
	}
	return out, nil
}

// pdaCompared reports whether the derived address is compared with a supplied account
// on every path from the derivation to a regular return.
func pdaCompared(fs *facts.FactSet, op facts.Operation) bool {
	for _, g := range fs.GuardsOf(facts.PdaCheck) {
		if g.Target == "" || g.Target != op.Result {
			continue
		}
		if fs.CFG == nil || fs.CFG.PostDominates(g.Node, op.Node) {
			return true
		}
	}
	return false
}

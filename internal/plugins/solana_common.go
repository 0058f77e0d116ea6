package plugins

import (
	"path/filepath"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/facts"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/util"
)

const detectorVersion = "1.0.0"

// finding fills the fields shared by every detector. key feeds the fingerprint and
// should be stable across unrelated edits (an account name, the operation text).
func finding(meta model.RuleMeta, fs *facts.FactSet, sp model.Span, conf model.Confidence, key, msg string) model.Finding {
	file := filepath.ToSlash(fs.File)
	return model.Finding{
		RuleID:      meta.ID,
		Severity:    meta.Severity,
		Confidence:  conf,
		Function:    fs.Function,
		File:        file,
		Span:        sp,
		Message:     msg,
		CWE:         meta.CWE,
		Rationale:   meta.Rationale,
		Remediation: meta.Remediation,
		References:  meta.References,
		DetectorID:  meta.ID + "@" + meta.Version,
		Fingerprint: util.Fingerprint(meta.ID, file, fs.Function, key),
	}
}

// signerCovered reports whether subject is authorized before op: declared as a
// signer, validated as a PDA the program signs for, or checked on every path.
func signerCovered(fs *facts.FactSet, op facts.Operation, subject string) bool {
	if subject == "" {
		for _, g := range op.Guards {
			if g.Kind == facts.SignerCheck {
				return true
			}
		}
		return false
	}
	if b, ok := fs.Binding(subject); ok && (b.Signer || b.PDAValidated) {
		return true
	}
	return op.GuardedBy(facts.SignerCheck, subject)
}

package engine

import (
	"path/filepath"
	"strings"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/config"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/util"
)

// inline markers are searched this many lines above a finding, and on its first line
const suppressionWindow = 5

// applyIgnores filters findings based on config ignore rules and inline suppression markers
func applyIgnores(findings []model.Finding, cfg config.Config, contents map[string][]byte) []model.Finding {
	var out []model.Finding
	for _, f := range findings {
		if isIgnored(f, cfg, contents) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isIgnored(f model.Finding, cfg config.Config, contents map[string][]byte) bool {
	for _, ig := range cfg.Ignore {
		if ig.Rule != "" && !strings.EqualFold(ig.Rule, f.RuleID) {
			continue
		}
		if ig.Path != "" && !strings.HasPrefix(filepath.ToSlash(f.File), filepath.ToSlash(ig.Path)) {
			continue
		}
		return true
	}
	return hasInlineSuppression(string(contents[f.File]), f.RuleID, f.Span.StartLine)
}

// hasInlineSuppression looks above the finding for a comment of the form
//
//	// panda:ignore RuleID reason
//
// A bare "panda:ignore" without a rule id suppresses every rule.
func hasInlineSuppression(content, ruleID string, startLine int) bool {
	if content == "" || startLine < 1 {
		return false
	}
	for _, line := range util.LineWindow(content, startLine, suppressionWindow) {
		i := strings.Index(line, "panda:ignore")
		if i < 0 {
			continue
		}
		fields := strings.Fields(line[i+len("panda:ignore"):])
		if len(fields) == 0 || fields[0] == ruleID {
			return true
		}
	}
	return false
}

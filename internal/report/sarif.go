package report

import (
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

const toolName = "panda"

type sarif struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}
type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
	Help             *sarifMessage `json:"help,omitempty"`
	Properties       *sarifProps   `json:"properties,omitempty"`
}

type sarifProps struct {
	Tags []string `json:"tags,omitempty"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Rank                float64           `json:"rank"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLoc        `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}
type sarifLoc struct {
	Physical sarifPhys `json:"physicalLocation"`
}
type sarifPhys struct {
	ArtifactLocation sarifArt    `json:"artifactLocation"`
	Region           sarifRegion `json:"region"`
}
type sarifArt struct {
	URI string `json:"uri"`
}
type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

// SARIF renders the report as SARIF 2.1.0 with one rule entry per rule id seen.
func SARIF(r model.Report) ([]byte, error) {
	results := []sarifResult{}
	var rules []sarifRule
	seen := map[string]bool{}
	for _, f := range r.Findings {
		if !seen[f.RuleID] {
			seen[f.RuleID] = true
			rule := sarifRule{ID: f.RuleID, ShortDescription: sarifMessage{Text: f.RuleID}}
			if f.Remediation != "" {
				rule.Help = &sarifMessage{Text: f.Remediation}
			}
			if f.CWE != "" {
				rule.Properties = &sarifProps{Tags: []string{f.CWE}}
			}
			rules = append(rules, rule)
		}
		res := sarifResult{
			RuleID:  f.RuleID,
			Level:   level(f.Severity),
			Rank:    f.Confidence.Score() * 100,
			Message: sarifMessage{Text: f.Message},
			Locations: []sarifLoc{{Physical: sarifPhys{
				ArtifactLocation: sarifArt{URI: f.File},
				Region:           sarifRegion{StartLine: f.Span.StartLine, EndLine: f.Span.EndLine},
			}}},
		}
		if f.Fingerprint != "" {
			res.PartialFingerprints = map[string]string{"panda/v1": f.Fingerprint}
		}
		results = append(results, res)
	}
	s := sarif{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{{Tool: sarifTool{Driver: sarifDriver{Name: toolName, Rules: rules}}, Results: results}},
	}
	b, err := stable.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func level(s model.Severity) string {
	switch s {
	case model.SeverityMedium:
		return "warning"
	case model.SeverityHigh, model.SeverityCritical:
		return "error"
	}
	return "note"
}

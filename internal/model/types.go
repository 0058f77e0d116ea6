package model

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// LookupSeverity resolves a case-insensitive severity name.
func LookupSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	_, ok := severityRank[sev]
	return sev, ok
}

// ParseSeverity is LookupSeverity that falls back to info for unknown names.
func ParseSeverity(s string) Severity {
	if sev, ok := LookupSeverity(s); ok {
		return sev
	}
	return SeverityInfo
}

func (s Severity) Rank() int { return severityRank[s] }

func SeverityGTE(a, b Severity) bool {
	return a.Rank() >= b.Rank()
}

type Confidence string

const (
	ConfidenceCertain  Confidence = "certain"
	ConfidenceLikely   Confidence = "likely"
	ConfidencePossible Confidence = "possible"
)

// Score maps a confidence onto [0,1] for consumers that want a number (SARIF rank).
func (c Confidence) Score() float64 {
	switch c {
	case ConfidenceCertain:
		return 0.95
	case ConfidenceLikely:
		return 0.7
	default:
		return 0.4
	}
}

// Span is a 1-based inclusive line range inside File.
type Span struct {
	File      string `json:"-"`
	StartLine int    `json:"start"`
	EndLine   int    `json:"end"`
}

func (s Span) Contains(o Span) bool {
	return s.File == o.File && s.StartLine <= o.StartLine && o.EndLine <= s.EndLine
}

// Less orders spans by file, then start line, then end line.
func (s Span) Less(o Span) bool {
	if s.File != o.File {
		return s.File < o.File
	}
	if s.StartLine != o.StartLine {
		return s.StartLine < o.StartLine
	}
	return s.EndLine < o.EndLine
}

type RuleMeta struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Severity    Severity   `json:"severity"`
	Confidence  Confidence `json:"confidence"`
	Version     string     `json:"version"`
	CWE         string     `json:"cwe,omitempty"`
	Rationale   string     `json:"rationale,omitempty"`
	Remediation string     `json:"remediation,omitempty"`
	References  []string   `json:"references,omitempty"`
}

// Diagnostic rule ids. Findings carrying these are emitted by the engine itself at info
// severity and describe analysis coverage rather than vulnerabilities.
const (
	RuleParseError      = "ParseError"
	RuleExtractionError = "ExtractionError"
	RuleDetectorFault   = "DetectorFault"
	RulePartialAnalysis = "PartialAnalysis"
)

func IsDiagnostic(ruleID string) bool {
	switch ruleID {
	case RuleParseError, RuleExtractionError, RuleDetectorFault, RulePartialAnalysis:
		return true
	}
	return false
}

type Finding struct {
	RuleID      string     `json:"rule_id"`
	Severity    Severity   `json:"severity"`
	Confidence  Confidence `json:"confidence"`
	Function    string     `json:"function_name"`
	File        string     `json:"file"`
	Span        Span       `json:"line_range"`
	Message     string     `json:"message"`
	CWE         string     `json:"cwe,omitempty"`
	Rationale   string     `json:"rationale,omitempty"`
	Remediation string     `json:"remediation,omitempty"`
	References  []string   `json:"references,omitempty"`
	Snippet     string     `json:"snippet,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	DetectorID  string     `json:"-"`
}

// Key is the deduplication identity of a finding.
type Key struct {
	RuleID   string
	Function string
	Span     Span
}

func (f Finding) Key() Key {
	sp := f.Span
	sp.File = f.File
	return Key{RuleID: f.RuleID, Function: f.Function, Span: sp}
}

type ScanRequest struct {
	Paths           []string
	MinSeverity     Severity
	FunctionTimeout time.Duration
	Workers         int
	UseCache        bool
	BaselinePath    string
}

// SkippedUnit records a file or function that was excluded from analysis.
type SkippedUnit struct {
	File     string `json:"file"`
	Function string `json:"function,omitempty"`
	Reason   string `json:"reason"`
}

type DetectorVersion struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

type ReportMetadata struct {
	AnalyzedFiles     int               `json:"analyzed_files"`
	AnalyzedFunctions int               `json:"analyzed_functions"`
	Detectors         []DetectorVersion `json:"detectors"`
}

type Report struct {
	TotalFindings    int              `json:"total_findings"`
	CountsBySeverity map[Severity]int `json:"counts_by_severity"`
	Findings         []Finding        `json:"findings"`
	Skipped          []SkippedUnit    `json:"skipped"`
	Metadata         ReportMetadata   `json:"metadata"`
}

type ScanResult struct {
	Report  Report        `json:"report"`
	Elapsed time.Duration `json:"-"`
}

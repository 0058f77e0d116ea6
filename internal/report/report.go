package report

import (
	"sort"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// Build assembles a report from aggregated findings. It does not reorder findings; it
// only counts them and normalizes the skipped list and metadata so equal inputs
// serialize identically.
func Build(findings []model.Finding, skipped []model.SkippedUnit, meta model.ReportMetadata) model.Report {
	counts := make(map[model.Severity]int, len(model.Severities))
	for _, s := range model.Severities {
		counts[s] = 0
	}
	for _, f := range findings {
		counts[f.Severity]++
	}
	if findings == nil {
		findings = []model.Finding{}
	}
	sk := append([]model.SkippedUnit{}, skipped...)
	sort.Slice(sk, func(i, j int) bool {
		if sk[i].File != sk[j].File {
			return sk[i].File < sk[j].File
		}
		if sk[i].Function != sk[j].Function {
			return sk[i].Function < sk[j].Function
		}
		return sk[i].Reason < sk[j].Reason
	})
	meta.Detectors = append([]model.DetectorVersion{}, meta.Detectors...)
	sort.Slice(meta.Detectors, func(i, j int) bool { return meta.Detectors[i].ID < meta.Detectors[j].ID })
	return model.Report{
		TotalFindings:    len(findings),
		CountsBySeverity: counts,
		Findings:         findings,
		Skipped:          sk,
		Metadata:         meta,
	}
}

package engine

import (
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type baseline struct {
	Fingerprints map[string]bool `json:"fingerprints"`
}

// loadBaseline reads a JSON array of fingerprints, or an object with a "fingerprints"
// map.
func loadBaseline(path string) (baseline, error) {
	var b baseline
	data, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	var fp []string
	if err := json.Unmarshal(data, &fp); err == nil {
		b.Fingerprints = make(map[string]bool, len(fp))
		for _, f := range fp {
			b.Fingerprints[f] = true
		}
		return b, nil
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, err
	}
	if b.Fingerprints == nil {
		b.Fingerprints = map[string]bool{}
	}
	return b, nil
}

func filterByBaseline(findings []model.Finding, b baseline) []model.Finding {
	if len(b.Fingerprints) == 0 {
		return findings
	}
	var out []model.Finding
	for _, f := range findings {
		if f.Fingerprint != "" && b.Fingerprints[f.Fingerprint] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// WriteBaseline stores the fingerprints of findings as a sorted JSON array.
func WriteBaseline(path string, findings []model.Finding) error {
	m := make(map[string]bool)
	for _, f := range findings {
		if f.Fingerprint != "" {
			m[f.Fingerprint] = true
		}
	}
	arr := make([]string, 0, len(m))
	for k := range m {
		arr = append(arr, k)
	}
	sort.Strings(arr)
	data, err := json.MarshalIndent(arr, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

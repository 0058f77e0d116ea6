package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// FileNames are the config files searched for, in order, in each directory.
var FileNames = []string{".panda.yml", ".panda.yaml", ".panda.json"}

type IgnoreRule struct {
	Rule   string `yaml:"rule"`
	Path   string `yaml:"path"`
	Reason string `yaml:"reason,omitempty"`
}

type Config struct {
	MinSeverity   string       `yaml:"min_severity"`
	FailOn        string       `yaml:"fail_on,omitempty"`
	TimeoutMs     int          `yaml:"timeout_ms"`
	Workers       int          `yaml:"workers,omitempty"`
	Cache         *bool        `yaml:"cache,omitempty"`
	Baseline      string       `yaml:"baseline,omitempty"`
	Rules         []string     `yaml:"rules,omitempty"`
	DisabledRules []string     `yaml:"disabled_rules,omitempty"`
	Ignore        []IgnoreRule `yaml:"ignore,omitempty"`
}

// ConfigError is an invalid setting. It is fatal and reported before analysis starts.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func Default() Config {
	return Config{
		MinSeverity: string(model.SeverityInfo),
		TimeoutMs:   2000,
	}
}

// CacheEnabled reports whether the IR cache is on; it defaults to true.
func (c Config) CacheEnabled() bool { return c.Cache == nil || *c.Cache }

// Load searches upwards from startDir for a config file and returns the defaults
// overlaid with its contents, plus the path that was read ("" when none was found).
func Load(startDir string) (Config, string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return Default(), "", err
	}
	if fi, err := os.Stat(dir); err == nil && !fi.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				cfg, err := LoadFile(candidate)
				return cfg, candidate, err
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached root
			break
		}
		dir = parent
	}
	return Default(), "", nil
}

// LoadFile reads one config file. JSON files go through the YAML decoder, which accepts
// them as flow documents.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, &ConfigError{Field: "config", Value: path, Reason: err.Error()}
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, &ConfigError{Field: "config", Value: path, Reason: err.Error()}
	}
	return cfg, nil
}

// Validate checks every field and returns the first problem as a *ConfigError.
func (c Config) Validate() error {
	if _, ok := model.LookupSeverity(c.MinSeverity); !ok {
		return &ConfigError{Field: "min_severity", Value: c.MinSeverity, Reason: "want one of critical, high, medium, low, info"}
	}
	if c.FailOn != "" {
		if _, ok := model.LookupSeverity(c.FailOn); !ok {
			return &ConfigError{Field: "fail_on", Value: c.FailOn, Reason: "want one of critical, high, medium, low, info"}
		}
	}
	if c.TimeoutMs <= 0 {
		return &ConfigError{Field: "timeout_ms", Value: fmt.Sprint(c.TimeoutMs), Reason: "must be positive"}
	}
	if c.Workers < 0 {
		return &ConfigError{Field: "workers", Value: fmt.Sprint(c.Workers), Reason: "must not be negative"}
	}
	for _, ig := range c.Ignore {
		if strings.TrimSpace(ig.Rule) == "" && strings.TrimSpace(ig.Path) == "" {
			return &ConfigError{Field: "ignore", Reason: "entry needs a rule or a path"}
		}
	}
	return nil
}

const template = `# panda configuration
# Findings below this severity are dropped from the report.
min_severity: info
# Exit with status 1 when a finding at or above this severity remains.
# fail_on: high
# Per-function analysis budget in milliseconds.
timeout_ms: 2000
# workers: 8
cache: true
# baseline: .panda-baseline.json
# Only run these rules (empty means all).
rules: []
disabled_rules: []
ignore: []
#  - rule: WeakAccountValidation
#    path: programs/legacy/
#    reason: validated by the caller
`

// Template returns the commented default config written by "panda init".
func Template() []byte { return []byte(template) }

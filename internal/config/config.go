// Package config loads the optional chronicle config document. All
// behavior except the root path is compiled-in policy; a small YAML
// file at the root can override tier patterns and restraint thresholds.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the config document looked up under the chronicle root.
const FileName = "chronicle.yaml"

// Tiers holds the static key-prefix pattern lists used by the sync
// router. Longest prefix wins; unmatched keys fall through to the
// default tier.
type Tiers struct {
	NeverSync      []string `yaml:"never_sync"`
	AlwaysSync     []string `yaml:"always_sync"`
	SyncWithReview []string `yaml:"sync_with_review"`
}

// Governance holds the controller policy knobs.
type Governance struct {
	DefaultRestraint  float64  `yaml:"default_restraint"`
	CreateThreshold   float64  `yaml:"create_threshold"`
	SensitivePrefixes []string `yaml:"sensitive_prefixes"`
	DefaultProtocols  []string `yaml:"default_protocols"`
}

// Config is the full policy document.
type Config struct {
	Tiers      Tiers      `yaml:"tiers"`
	Governance Governance `yaml:"governance"`
}

// Default returns the compiled-in policy.
func Default() *Config {
	return &Config{
		Tiers: Tiers{
			NeverSync: []string{
				"technical/api_keys",
				"technical/ssh_configs",
				"technical/local_state",
				"technical/credentials",
				"spiral/state.json",
			},
			AlwaysSync: []string{
				"experiential/insights",
				"experiential/transformations",
				"experiential/learnings",
			},
			SyncWithReview: []string{
				"relational/values",
				"relational/lineage",
				"relational/convergence",
			},
		},
		Governance: Governance{
			DefaultRestraint: 0.5,
			CreateThreshold:  0.8,
			SensitivePrefixes: []string{
				"technical/api_keys",
				"technical/credentials",
				"technical/ssh_configs",
			},
			DefaultProtocols: []string{
				"restraint_as_wisdom",
				"questions_over_commands",
				"pause_before_extend",
				"gentle_extension",
				"filesystem_is_truth",
			},
		},
	}
}

// Load reads the config document under root, falling back to the
// compiled-in defaults when the file is absent. Fields left empty in
// the document keep their default values.
func Load(root string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(filepath.Join(root, FileName))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var doc Config
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(doc.Tiers.NeverSync) > 0 {
		cfg.Tiers.NeverSync = doc.Tiers.NeverSync
	}
	if len(doc.Tiers.AlwaysSync) > 0 {
		cfg.Tiers.AlwaysSync = doc.Tiers.AlwaysSync
	}
	if len(doc.Tiers.SyncWithReview) > 0 {
		cfg.Tiers.SyncWithReview = doc.Tiers.SyncWithReview
	}
	if doc.Governance.DefaultRestraint > 0 {
		cfg.Governance.DefaultRestraint = doc.Governance.DefaultRestraint
	}
	if doc.Governance.CreateThreshold > 0 {
		cfg.Governance.CreateThreshold = doc.Governance.CreateThreshold
	}
	if len(doc.Governance.SensitivePrefixes) > 0 {
		cfg.Governance.SensitivePrefixes = doc.Governance.SensitivePrefixes
	}
	if len(doc.Governance.DefaultProtocols) > 0 {
		cfg.Governance.DefaultProtocols = doc.Governance.DefaultProtocols
	}
	return cfg, nil
}

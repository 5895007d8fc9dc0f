package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a deployment profile: one checked-in YAML file describing the
// layout of a KB working tree, so operators don't carry the paths in their
// environment.
type Profile struct {
	Name            string `yaml:"name"`
	KBPath          string `yaml:"kb_path"`
	IndexDir        string `yaml:"index_dir"`
	PublishedDir    string `yaml:"published_dir"`
	SnapshotDir     string `yaml:"snapshot_dir"`
	AuditMirrorPath string `yaml:"audit_db,omitempty"`
	Actor           string `yaml:"actor,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty"`
}

// LoadProfile reads a deployment profile and applies it over the
// environment-derived configuration. Empty profile fields keep the
// environment values.
func LoadProfile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("load profile %s: %w", path, err)
	}

	cfg := Load()
	if p.KBPath != "" {
		cfg.KBPath = p.KBPath
	}
	if p.IndexDir != "" {
		cfg.IndexDir = p.IndexDir
	}
	if p.PublishedDir != "" {
		cfg.PublishedDir = p.PublishedDir
	}
	if p.SnapshotDir != "" {
		cfg.SnapshotDir = p.SnapshotDir
	}
	if p.AuditMirrorPath != "" {
		cfg.AuditMirrorPath = p.AuditMirrorPath
	}
	if p.Actor != "" {
		cfg.Actor = p.Actor
	}
	if p.LogLevel != "" {
		cfg.LogLevel = p.LogLevel
	}
	return cfg, nil
}

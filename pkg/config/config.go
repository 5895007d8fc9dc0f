// Package config loads runtime configuration from environment variables,
// optionally layered under a YAML deployment profile.
package config

import "os"

// Config holds the paths and identity one run operates with.
type Config struct {
	KBPath          string
	IndexDir        string
	PublishedDir    string
	SnapshotDir     string
	AuditMirrorPath string
	Actor           string
	LogLevel        string
	SourceTimestamp string
}

// Load loads configuration from environment variables.
func Load() *Config {
	kbPath := os.Getenv("PROVKB_KB_PATH")
	if kbPath == "" {
		kbPath = "kb.json"
	}

	indexDir := os.Getenv("PROVKB_INDEX_DIR")
	if indexDir == "" {
		indexDir = "indexes"
	}

	publishedDir := os.Getenv("PROVKB_PUBLISHED_DIR")
	if publishedDir == "" {
		publishedDir = "published"
	}

	snapshotDir := os.Getenv("PROVKB_SNAPSHOT_DIR")
	if snapshotDir == "" {
		snapshotDir = "snapshots"
	}

	actor := os.Getenv("PROVKB_ACTOR")
	if actor == "" {
		actor = "system"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	return &Config{
		KBPath:          kbPath,
		IndexDir:        indexDir,
		PublishedDir:    publishedDir,
		SnapshotDir:     snapshotDir,
		AuditMirrorPath: os.Getenv("PROVKB_AUDIT_DB"),
		Actor:           actor,
		LogLevel:        logLevel,
		SourceTimestamp: os.Getenv("SOURCE_TIMESTAMP"),
	}
}

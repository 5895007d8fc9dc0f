package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengovbd/provkb/pkg/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PROVKB_KB_PATH", "PROVKB_INDEX_DIR", "PROVKB_PUBLISHED_DIR",
		"PROVKB_SNAPSHOT_DIR", "PROVKB_AUDIT_DB", "PROVKB_ACTOR",
		"LOG_LEVEL", "SOURCE_TIMESTAMP",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := config.Load()

	assert.Equal(t, "kb.json", cfg.KBPath)
	assert.Equal(t, "indexes", cfg.IndexDir)
	assert.Equal(t, "published", cfg.PublishedDir)
	assert.Equal(t, "snapshots", cfg.SnapshotDir)
	assert.Equal(t, "system", cfg.Actor)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.SourceTimestamp)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVKB_KB_PATH", "/data/kb.json")
	t.Setenv("PROVKB_ACTOR", "script:crawler")
	t.Setenv("SOURCE_TIMESTAMP", "2025-07-01T00:00:00Z")

	cfg := config.Load()
	assert.Equal(t, "/data/kb.json", cfg.KBPath)
	assert.Equal(t, "script:crawler", cfg.Actor)
	assert.Equal(t, "2025-07-01T00:00:00Z", cfg.SourceTimestamp)
}

func TestLoadProfileOverlaysEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVKB_ACTOR", "script:crawler")

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"name: staging\nkb_path: /srv/kb/kb.json\npublished_dir: /srv/kb/published\n"), 0o644))

	cfg, err := config.LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/kb/kb.json", cfg.KBPath)
	assert.Equal(t, "/srv/kb/published", cfg.PublishedDir)
	assert.Equal(t, "script:crawler", cfg.Actor, "profile leaves unset fields to the environment")
	assert.Equal(t, "indexes", cfg.IndexDir)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := config.LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

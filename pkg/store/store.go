// Package store persists the knowledge base document and its derived
// artifacts. Every write is atomic: content goes to a uniquely named temp
// file in the target directory and is renamed into place, so readers only
// ever observe complete documents.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/opengovbd/provkb/pkg/model"
)

// LoadKB reads and decodes the document at path. The raw bytes are returned
// alongside the decoded form so the validator can inspect fields the typed
// model cannot carry.
func LoadKB(path string) (*model.KB, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load kb: %w", err)
	}
	var kb model.KB
	if err := json.Unmarshal(raw, &kb); err != nil {
		return nil, raw, fmt.Errorf("load kb %s: %w", path, err)
	}
	return &kb, raw, nil
}

// SaveKB bumps the document's data version, stamps the write metadata, and
// replaces the file atomically.
func SaveKB(path string, kb *model.KB, timestamp, actor string) error {
	kb.DataVersion++
	kb.LastUpdatedAt = timestamp
	kb.UpdatedBy = actor

	data, err := json.MarshalIndent(kb, "", "  ")
	if err != nil {
		return fmt.Errorf("save kb: marshal: %w", err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place. The temp name carries a UUID so concurrent writers never
// collide on the temp file itself.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSnapshotExists is returned when a snapshot for the same page and day
// already exists. Snapshots are write-once; archived content is never
// overwritten.
var ErrSnapshotExists = errors.New("store: snapshot already exists")

// SnapshotPath returns the archive location for one crawl of one page.
// date must be formatted YYYY-MM-DD.
func SnapshotPath(dir, sourcePageID, date string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.html", sourcePageID, date))
}

// WriteSnapshot archives raw page content under the write-once key
// <source_page_id>_<date>.html and returns the written path.
func WriteSnapshot(dir, sourcePageID, date string, content []byte) (string, error) {
	path := SnapshotPath(dir, sourcePageID, date)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrSnapshotExists, path)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := WriteFileAtomic(path, content); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// ReadSnapshot loads one archived crawl.
func ReadSnapshot(dir, sourcePageID, date string) ([]byte, error) {
	data, err := os.ReadFile(SnapshotPath(dir, sourcePageID, date))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opengovbd/provkb/pkg/index"
)

// On-disk index file names, one per reverse index.
const (
	FileClaimsByService    = "claims_by_service.json"
	FileClaimsByDocument   = "claims_by_document.json"
	FileClaimsBySourcePage = "claims_by_source_page.json"
)

// SaveIndexes writes all three indexes to dir in canonical form.
func SaveIndexes(dir string, idx index.Indexes) error {
	for name, m := range map[string]index.Index{
		FileClaimsByService:    idx.ClaimsByService,
		FileClaimsByDocument:   idx.ClaimsByDocument,
		FileClaimsBySourcePage: idx.ClaimsBySourcePage,
	} {
		data, err := index.Encode(m)
		if err != nil {
			return fmt.Errorf("save indexes: %s: %w", name, err)
		}
		if err := WriteFileAtomic(filepath.Join(dir, name), data); err != nil {
			return fmt.Errorf("save indexes: %w", err)
		}
	}
	return nil
}

// LoadIndexes reads the three index files from dir. The second return value
// is false when any file is missing, which callers treat as "no baseline,
// do a full rebuild".
func LoadIndexes(dir string) (index.Indexes, bool, error) {
	var idx index.Indexes
	for name, target := range map[string]*index.Index{
		FileClaimsByService:    &idx.ClaimsByService,
		FileClaimsByDocument:   &idx.ClaimsByDocument,
		FileClaimsBySourcePage: &idx.ClaimsBySourcePage,
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			return index.Indexes{}, false, nil
		}
		if err != nil {
			return index.Indexes{}, false, fmt.Errorf("load indexes: %w", err)
		}
		decoded, err := index.Decode(data)
		if err != nil {
			return index.Indexes{}, false, fmt.Errorf("load indexes: %s: %w", name, err)
		}
		*target = decoded
	}
	return idx, true, nil
}

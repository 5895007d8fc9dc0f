package index

import (
	"encoding/json"
	"fmt"

	"github.com/opengovbd/provkb/pkg/canonicalize"
)

// Encode serializes one index canonically: object keys sorted, claim arrays
// already sorted by the builder. Two equal indexes always encode to the
// same bytes.
func Encode(idx Index) ([]byte, error) {
	if idx == nil {
		idx = Index{}
	}
	data, err := canonicalize.JCS(idx)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses an index file produced by Encode.
func Decode(data []byte) (Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if idx == nil {
		idx = Index{}
	}
	return idx, nil
}

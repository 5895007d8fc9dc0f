// Package change detects source content changes and propagates them to
// dependent claims. Invalidation is not verification: a stale mark records
// why a claim needs re-checking and never touches its verification history.
package change

import (
	"errors"
	"fmt"

	"github.com/opengovbd/provkb/pkg/audit"
	"github.com/opengovbd/provkb/pkg/ids"
	"github.com/opengovbd/provkb/pkg/index"
	"github.com/opengovbd/provkb/pkg/model"
)

// ErrSourcePageNotFound is returned when the named source page is not in
// the registry.
var ErrSourcePageNotFound = errors.New("change: source page not found")

// DetectResult reports a hash comparison for one source page.
type DetectResult struct {
	HasChanged   bool   `json:"has_changed"`
	CurrentHash  string `json:"current_hash"`
	PreviousHash string `json:"previous_hash"`
}

// DetectChange recomputes the content hash of newContent and compares it
// against the page's stored hash. Pure; nothing is mutated.
func DetectChange(sp *model.SourcePage, newContent string) DetectResult {
	current := ids.ContentHash(newContent)
	return DetectResult{
		HasChanged:   current != sp.ContentHash,
		CurrentHash:  current,
		PreviousHash: sp.ContentHash,
	}
}

// InvalidationResult reports one invalidation sweep.
type InvalidationResult struct {
	InvalidatedClaims []string `json:"invalidated_claims"`
	RefreshedClaims   []string `json:"refreshed_claims,omitempty"`
	ChangedSources    []string `json:"changed_sources"`
	UsedIndex         bool     `json:"used_index"`
	Errors            []string `json:"errors,omitempty"`
}

// ProcessResult reports one full processSourceChange cycle.
type ProcessResult struct {
	Changed      bool                `json:"changed"`
	CurrentHash  string              `json:"current_hash"`
	PreviousHash string              `json:"previous_hash"`
	Invalidation *InvalidationResult `json:"invalidation,omitempty"`
}

// ProcessSourceChange applies newContent to the named source page: it
// updates the page's hashes and change log, appends a source_change audit
// event, and invalidates dependent claims. The document is mutated in
// place; callers persist it atomically. idx may be nil, forcing a scan.
func ProcessSourceChange(kb *model.KB, sourcePageID, newContent, timestamp, actor string, idx index.Index) (*ProcessResult, error) {
	sp := kb.SourcePageByID(sourcePageID)
	if sp == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourcePageNotFound, sourcePageID)
	}

	detect := DetectChange(sp, newContent)
	if !detect.HasChanged {
		return &ProcessResult{
			Changed:      false,
			CurrentHash:  detect.CurrentHash,
			PreviousHash: detect.PreviousHash,
		}, nil
	}

	// Snapshot before mutating so the invalidator can see which hashes moved.
	snapshot, err := kb.Clone()
	if err != nil {
		return nil, err
	}

	sp.ChangeLog = append(sp.ChangeLog, model.ChangeLogEntry{
		DetectedAt: timestamp,
		HashBefore: sp.ContentHash,
		HashAfter:  detect.CurrentHash,
	})
	sp.PreviousHash = sp.ContentHash
	sp.ContentHash = detect.CurrentHash
	sp.LastCrawledAt = timestamp

	ev, err := audit.SourceChange(timestamp, sourcePageID, detect.PreviousHash, detect.CurrentHash, actor)
	if err != nil {
		return nil, err
	}
	audit.Append(kb, ev)

	inv, err := InvalidateClaimsForSourceChange(snapshot, kb, []string{sourcePageID}, idx, timestamp, actor)
	if err != nil {
		return nil, err
	}

	return &ProcessResult{
		Changed:      true,
		CurrentHash:  detect.CurrentHash,
		PreviousHash: detect.PreviousHash,
		Invalidation: inv,
	}, nil
}

// InvalidateClaimsForSourceChange marks every claim citing a changed source
// page as stale. Claims already stale only get their stale bookkeeping
// refreshed; deprecated and contradicted claims are never touched. Exactly
// one claim_invalidation event is appended per invocation when any claim
// was newly invalidated.
func InvalidateClaimsForSourceChange(old, kb *model.KB, scopeIDs []string, idx index.Index, timestamp, actor string) (*InvalidationResult, error) {
	result := &InvalidationResult{UsedIndex: idx != nil}

	changed := changedSources(old, kb, scopeIDs)
	result.ChangedSources = changed

	for _, srcID := range changed {
		newHash := kb.SourcePageByID(srcID).ContentHash
		for _, claimID := range dependentClaims(kb, srcID, idx) {
			c := kb.ClaimByID(claimID)
			if c == nil {
				result.Errors = append(result.Errors, fmt.Sprintf("index names missing claim %s", claimID))
				continue
			}
			switch c.Status {
			case model.ClaimVerified, model.ClaimUnverified:
				c.PreviousStatus = c.Status
				c.Status = model.ClaimStale
				c.StaleMarkedAt = timestamp
				c.StaleDueToSourceHash = newHash
				// last_verified_at / last_verified_source_hash stay untouched.
				result.InvalidatedClaims = append(result.InvalidatedClaims, claimID)
			case model.ClaimStale:
				c.StaleMarkedAt = timestamp
				c.StaleDueToSourceHash = newHash
				result.RefreshedClaims = append(result.RefreshedClaims, claimID)
			case model.ClaimDeprecated, model.ClaimContradicted:
				// Terminal states; a source change cannot resurrect them.
			}
		}
	}

	if len(result.InvalidatedClaims) > 0 {
		ev, err := audit.ClaimInvalidation(timestamp, result.InvalidatedClaims, changed, actor)
		if err != nil {
			return nil, err
		}
		audit.Append(kb, ev)
	}
	return result, nil
}

// changedSources compares stored hashes between the two document states,
// narrowed to scopeIDs when provided.
func changedSources(old, kb *model.KB, scopeIDs []string) []string {
	inScope := func(id string) bool {
		if len(scopeIDs) == 0 {
			return true
		}
		for _, s := range scopeIDs {
			if s == id {
				return true
			}
		}
		return false
	}

	var out []string
	for i := range kb.SourcePages {
		sp := &kb.SourcePages[i]
		if !inScope(sp.SourcePageID) {
			continue
		}
		prev := old.SourcePageByID(sp.SourcePageID)
		if prev == nil || prev.ContentHash != sp.ContentHash {
			out = append(out, sp.SourcePageID)
		}
	}
	return out
}

// dependentClaims finds the claims citing a source page, via the reverse
// index when available (O(1) per source) or by full scan.
func dependentClaims(kb *model.KB, srcID string, idx index.Index) []string {
	if idx != nil {
		return idx[srcID]
	}
	var out []string
	for i := range kb.Claims {
		for _, cit := range kb.Claims[i].Citations {
			if cit.SourcePageID == srcID {
				out = append(out, kb.Claims[i].ClaimID)
				break
			}
		}
	}
	return out
}

// Package index builds the reverse indexes from claims to the services,
// documents and source pages they reference. Both the full and the
// incremental builders are pure functions over the document; callers
// persist the result. Serialization is canonical (sorted keys, sorted
// arrays) so an incremental rebuild is byte-identical to a full one.
package index

import (
	"sort"

	"github.com/opengovbd/provkb/pkg/model"
)

// Index maps an entity ID to the sorted set of claim IDs referencing it.
type Index map[string][]string

// Indexes bundles the three reverse indexes of the KB.
type Indexes struct {
	ClaimsByService    Index
	ClaimsByDocument   Index
	ClaimsBySourcePage Index
}

// Diff narrows an incremental rebuild to the claims and source pages that
// changed since the on-disk indexes were written.
type Diff struct {
	ChangedClaimIDs      []string `json:"changed_claim_ids,omitempty"`
	ChangedSourcePageIDs []string `json:"changed_source_page_ids,omitempty"`
}

// Empty reports whether the diff names nothing, which forces a full rebuild.
func (d Diff) Empty() bool {
	return len(d.ChangedClaimIDs) == 0 && len(d.ChangedSourcePageIDs) == 0
}

type set map[string]map[string]struct{}

func (s set) add(key, claimID string) {
	if s[key] == nil {
		s[key] = make(map[string]struct{})
	}
	s[key][claimID] = struct{}{}
}

func (s set) ensure(key string) {
	if s[key] == nil {
		s[key] = make(map[string]struct{})
	}
}

func (s set) removeClaim(claimID string) {
	for _, bucket := range s {
		delete(bucket, claimID)
	}
}

func (s set) toIndex() Index {
	out := make(Index, len(s))
	for key, bucket := range s {
		claims := make([]string, 0, len(bucket))
		for id := range bucket {
			claims = append(claims, id)
		}
		sort.Strings(claims)
		out[key] = claims
	}
	return out
}

func fromIndex(idx Index) set {
	s := make(set, len(idx))
	for key, claims := range idx {
		s.ensure(key)
		for _, id := range claims {
			s[key][id] = struct{}{}
		}
	}
	return s
}

// Build performs a full rebuild of all three indexes from the document.
// Every existing service, document and source page gets a key, even when no
// claim references it.
func Build(kb *model.KB) *Indexes {
	byService := make(set)
	byDocument := make(set)
	bySource := make(set)

	for _, svc := range kb.Services {
		byService.ensure(svc.ServiceID)
	}
	for _, doc := range kb.Documents {
		byDocument.ensure(doc.DocumentID)
	}
	for _, sp := range kb.SourcePages {
		bySource.ensure(sp.SourcePageID)
	}

	for i := range kb.Claims {
		insertClaim(kb, &kb.Claims[i], byService, byDocument, bySource)
	}

	// Claims listed on entities, filtered to claims that exist.
	for _, svc := range kb.Services {
		for _, claimID := range svc.Claims {
			if kb.ClaimByID(claimID) != nil {
				byService.add(svc.ServiceID, claimID)
			}
		}
	}
	for _, doc := range kb.Documents {
		for _, claimID := range doc.Claims {
			if kb.ClaimByID(claimID) != nil {
				byDocument.add(doc.DocumentID, claimID)
			}
		}
	}

	return &Indexes{
		ClaimsByService:    byService.toIndex(),
		ClaimsByDocument:   byDocument.toIndex(),
		ClaimsBySourcePage: bySource.toIndex(),
	}
}

// insertClaim places one claim into the buckets its references point at.
// Buckets are only created for entities present in the document.
func insertClaim(kb *model.KB, c *model.Claim, byService, byDocument, bySource set) {
	switch c.EntityRef.Type {
	case model.RefService:
		if kb.ServiceByID(c.EntityRef.ID) != nil {
			byService.add(c.EntityRef.ID, c.ClaimID)
		}
	case model.RefDocument:
		if kb.DocumentByID(c.EntityRef.ID) != nil {
			byDocument.add(c.EntityRef.ID, c.ClaimID)
		}
	}
	for _, cit := range c.Citations {
		if kb.SourcePageByID(cit.SourcePageID) != nil {
			bySource.add(cit.SourcePageID, c.ClaimID)
		}
	}
}

// BuildIncremental updates existing indexes for the given diff. The result
// equals a full rebuild of the same document. An empty diff falls back to a
// full rebuild.
func BuildIncremental(kb *model.KB, existing *Indexes, diff Diff) *Indexes {
	if existing == nil || diff.Empty() {
		return Build(kb)
	}

	byService := fromIndex(existing.ClaimsByService)
	byDocument := fromIndex(existing.ClaimsByDocument)
	bySource := fromIndex(existing.ClaimsBySourcePage)

	// Widen the claim set with everything citing a changed source, both in
	// the stored index (past citers) and in the current document (new citers).
	changed := make(map[string]struct{}, len(diff.ChangedClaimIDs))
	for _, id := range diff.ChangedClaimIDs {
		changed[id] = struct{}{}
	}
	for _, srcID := range diff.ChangedSourcePageIDs {
		for _, claimID := range existing.ClaimsBySourcePage[srcID] {
			changed[claimID] = struct{}{}
		}
		for i := range kb.Claims {
			for _, cit := range kb.Claims[i].Citations {
				if cit.SourcePageID == srcID {
					changed[kb.Claims[i].ClaimID] = struct{}{}
				}
			}
		}
	}

	for claimID := range changed {
		byService.removeClaim(claimID)
		byDocument.removeClaim(claimID)
		bySource.removeClaim(claimID)
	}

	for claimID := range changed {
		c := kb.ClaimByID(claimID)
		if c == nil {
			continue // deleted claim stays removed
		}
		insertClaim(kb, c, byService, byDocument, bySource)
		for _, svc := range kb.Services {
			if containsString(svc.Claims, claimID) {
				byService.add(svc.ServiceID, claimID)
			}
		}
		for _, doc := range kb.Documents {
			if containsString(doc.Claims, claimID) {
				byDocument.add(doc.DocumentID, claimID)
			}
		}
	}

	syncKeys(byService, serviceIDs(kb))
	syncKeys(byDocument, documentIDs(kb))
	syncKeys(bySource, sourcePageIDs(kb))

	return &Indexes{
		ClaimsByService:    byService.toIndex(),
		ClaimsByDocument:   byDocument.toIndex(),
		ClaimsBySourcePage: bySource.toIndex(),
	}
}

// syncKeys ensures a key per existing entity and drops keys for entities no
// longer in the document.
func syncKeys(s set, existing map[string]struct{}) {
	for key := range s {
		if _, ok := existing[key]; !ok {
			delete(s, key)
		}
	}
	for key := range existing {
		s.ensure(key)
	}
}

func serviceIDs(kb *model.KB) map[string]struct{} {
	out := make(map[string]struct{}, len(kb.Services))
	for _, svc := range kb.Services {
		out[svc.ServiceID] = struct{}{}
	}
	return out
}

func documentIDs(kb *model.KB) map[string]struct{} {
	out := make(map[string]struct{}, len(kb.Documents))
	for _, doc := range kb.Documents {
		out[doc.DocumentID] = struct{}{}
	}
	return out
}

func sourcePageIDs(kb *model.KB) map[string]struct{} {
	out := make(map[string]struct{}, len(kb.SourcePages))
	for _, sp := range kb.SourcePages {
		out[sp.SourcePageID] = struct{}{}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

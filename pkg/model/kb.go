// Package model defines the knowledge base document, its entities, and the
// invariants expressible in the type system. The KB is a single in-memory
// document rewritten atomically on each mutation; entities reference each
// other only by opaque IDs.
package model

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Supported schema versions of the document.
const (
	SchemaV2 = "2.0.0"
	SchemaV3 = "3.0.0"
)

// ChangeNote is a free-form top-level change log entry on the document.
type ChangeNote struct {
	At   string `json:"at,omitempty"`
	By   string `json:"by,omitempty"`
	Note string `json:"note,omitempty"`
}

// KB is the single canonical knowledge base document. It owns every entity;
// claims own their citations.
type KB struct {
	SchemaVersion string       `json:"$schema_version"`
	DataVersion   int          `json:"data_version"`
	LastUpdatedAt string       `json:"last_updated_at,omitempty"`
	UpdatedBy     string       `json:"updated_by,omitempty"`
	ChangeLog     []ChangeNote `json:"change_log"`
	AuditLog      []AuditEvent `json:"audit_log"`

	SourcePages   []SourcePage   `json:"source_pages"`
	Claims        []Claim        `json:"claims"`
	Agencies      []Agency       `json:"agencies"`
	Documents     []Document     `json:"documents"`
	Services      []Service      `json:"services"`
	ServiceGuides []ServiceGuide `json:"service_guides,omitempty"`
}

// SchemaMajor parses the document's schema version and returns its major
// component.
func (kb *KB) SchemaMajor() (uint64, error) {
	v, err := semver.NewVersion(kb.SchemaVersion)
	if err != nil {
		return 0, fmt.Errorf("schema version %q: %w", kb.SchemaVersion, err)
	}
	return v.Major(), nil
}

// IsV3 reports whether the document carries guide-level entities.
func (kb *KB) IsV3() bool {
	major, err := kb.SchemaMajor()
	return err == nil && major >= 3
}

// SourcePageByID returns a pointer into the document's source page slice,
// or nil when absent.
func (kb *KB) SourcePageByID(id string) *SourcePage {
	for i := range kb.SourcePages {
		if kb.SourcePages[i].SourcePageID == id {
			return &kb.SourcePages[i]
		}
	}
	return nil
}

// ClaimByID returns a pointer into the document's claim slice, or nil.
func (kb *KB) ClaimByID(id string) *Claim {
	for i := range kb.Claims {
		if kb.Claims[i].ClaimID == id {
			return &kb.Claims[i]
		}
	}
	return nil
}

// AgencyByID returns a pointer into the document's agency slice, or nil.
func (kb *KB) AgencyByID(id string) *Agency {
	for i := range kb.Agencies {
		if kb.Agencies[i].AgencyID == id {
			return &kb.Agencies[i]
		}
	}
	return nil
}

// ServiceByID returns a pointer into the document's service slice, or nil.
func (kb *KB) ServiceByID(id string) *Service {
	for i := range kb.Services {
		if kb.Services[i].ServiceID == id {
			return &kb.Services[i]
		}
	}
	return nil
}

// DocumentByID returns a pointer into the document's document slice, or nil.
func (kb *KB) DocumentByID(id string) *Document {
	for i := range kb.Documents {
		if kb.Documents[i].DocumentID == id {
			return &kb.Documents[i]
		}
	}
	return nil
}

// ClaimStatuses resolves a list of claim IDs to their statuses, skipping
// unresolvable IDs.
func (kb *KB) ClaimStatuses(claimIDs []string) []ClaimStatus {
	statuses := make([]ClaimStatus, 0, len(claimIDs))
	for _, id := range claimIDs {
		if c := kb.ClaimByID(id); c != nil {
			statuses = append(statuses, c.Status)
		}
	}
	return statuses
}

// Clone deep-copies the document via a JSON round trip. Used to snapshot the
// pre-mutation state before invalidation.
func (kb *KB) Clone() (*KB, error) {
	raw, err := json.Marshal(kb)
	if err != nil {
		return nil, fmt.Errorf("clone: marshal: %w", err)
	}
	var out KB
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone: unmarshal: %w", err)
	}
	return &out, nil
}

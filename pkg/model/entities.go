package model

// Agency is an authoritative issuer of services and documents. Agencies are
// never deleted; auto-agencies are created on demand when a URL's host is
// not claimed by any existing agency.
type Agency struct {
	AgencyID        string   `json:"agency_id"`
	Name            string   `json:"name"`
	Website         string   `json:"website,omitempty"`
	DomainAllowlist []string `json:"domain_allowlist"`
}

// ChangeLogEntry records one detected content change on a source page.
type ChangeLogEntry struct {
	DetectedAt string `json:"detected_at"`
	HashBefore string `json:"hash_before"`
	HashAfter  string `json:"hash_after"`
	Notes      string `json:"notes,omitempty"`
}

// SourcePage is a registered, archived web page. Its identifier is derived
// from the canonical URL and must never be assigned by hand.
type SourcePage struct {
	SourcePageID  string           `json:"source_page_id"`
	CanonicalURL  string           `json:"canonical_url"`
	AgencyID      string           `json:"agency_id"`
	PageType      PageType         `json:"page_type"`
	Title         string           `json:"title,omitempty"`
	Language      []string         `json:"language"`
	ContentHash   string           `json:"content_hash"`
	LastCrawledAt string           `json:"last_crawled_at,omitempty"`
	ChangeLog     []ChangeLogEntry `json:"change_log,omitempty"`
	PreviousHash  string           `json:"previous_hash,omitempty"`
	Status        string           `json:"status,omitempty"`
}

// Citation ties a claim to an exact location in an archived source page.
type Citation struct {
	SourcePageID string  `json:"source_page_id"`
	QuotedText   string  `json:"quoted_text"`
	RetrievedAt  string  `json:"retrieved_at,omitempty"`
	Locator      Locator `json:"locator"`
	Language     string  `json:"language,omitempty"`
}

// EntityRef points a claim at the service or document it describes.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Claim is an atomic factual statement with at least one citation. The
// invalidation bookkeeping fields record why and when a claim went stale;
// last_verified_* are only ever written by verification, never invalidation.
type Claim struct {
	ClaimID        string         `json:"claim_id"`
	EntityRef      EntityRef      `json:"entity_ref"`
	ClaimType      ClaimType      `json:"claim_type"`
	Text           string         `json:"text"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	Citations      []Citation     `json:"citations"`
	Status         ClaimStatus    `json:"status"`
	Tags           []string       `json:"tags,omitempty"`

	PreviousStatus         ClaimStatus `json:"previous_status,omitempty"`
	StaleMarkedAt          string      `json:"stale_marked_at,omitempty"`
	StaleDueToSourceHash   string      `json:"stale_due_to_source_hash,omitempty"`
	LastVerifiedAt         string      `json:"last_verified_at,omitempty"`
	LastVerifiedSourceHash string      `json:"last_verified_source_hash,omitempty"`
}

// Document is an official document entity. It carries no free-text fact
// fields; facts are reachable only through its claims.
type Document struct {
	DocumentID   string       `json:"document_id"`
	DocumentName string       `json:"document_name"`
	IssuedBy     string       `json:"issued_by"`
	Claims       []string     `json:"claims"`
	Status       EntityStatus `json:"status"`
}

// EntryURL is an entry point into a service portal.
type EntryURL struct {
	URL          string `json:"url"`
	SourcePageID string `json:"source_page_id,omitempty"`
	Description  string `json:"description,omitempty"`
}

// PortalMapping groups the entry URLs of a service.
type PortalMapping struct {
	EntryURLs []EntryURL `json:"entry_urls,omitempty"`
}

// Service is a government service entity. Like Document it carries no
// free-text fact fields.
type Service struct {
	ServiceID           string        `json:"service_id"`
	ServiceName         string        `json:"service_name"`
	AgencyID            string        `json:"agency_id"`
	Claims              []string      `json:"claims"`
	PortalMapping       PortalMapping `json:"portal_mapping,omitempty"`
	OfficialEntrypoints []string      `json:"official_entrypoints,omitempty"`
	Status              EntityStatus  `json:"status"`
}

// GuideStep is one ordered step of a service guide.
type GuideStep struct {
	StepNumber  int      `json:"step_number"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ClaimIDs    []string `json:"claim_ids"`
}

// GuideSection groups a guide's claims by concern for sectioned rendering.
type GuideSection struct {
	Section  string   `json:"section"`
	ClaimIDs []string `json:"claim_ids"`
}

// GuideVariant captures one delivery/fee variant of a service.
type GuideVariant struct {
	VariantID              string   `json:"variant_id"`
	Label                  string   `json:"label"`
	FeeClaimIDs            []string `json:"fee_claim_ids,omitempty"`
	ProcessingTimeClaimIDs []string `json:"processing_time_claim_ids,omitempty"`
}

// OfficialLink is an outbound link a guide presents to users. Every guide
// must carry at least one with an http/https URL.
type OfficialLink struct {
	URL          string `json:"url"`
	Label        string `json:"label,omitempty"`
	SourcePageID string `json:"source_page_id,omitempty"`
}

// ServiceGuide is the UI-ready v3 view over a single service.
type ServiceGuide struct {
	GuideID       string         `json:"guide_id"`
	ServiceID     string         `json:"service_id"`
	AgencyID      string         `json:"agency_id"`
	Title         string         `json:"title"`
	Steps         []GuideStep    `json:"steps"`
	Sections      []GuideSection `json:"sections,omitempty"`
	Variants      []GuideVariant `json:"variants,omitempty"`
	OfficialLinks []OfficialLink `json:"official_links"`
	Status        GuideStatus    `json:"status"`
}

// AffectedEntities buckets the entity IDs an audit event touched.
type AffectedEntities struct {
	SourcePages []string `json:"source_pages,omitempty"`
	Claims      []string `json:"claims,omitempty"`
	Services    []string `json:"services,omitempty"`
	Documents   []string `json:"documents,omitempty"`
	Agencies    []string `json:"agencies,omitempty"`
}

// Buckets returns the affected entities as named buckets for canonical
// event-ID derivation.
func (a AffectedEntities) Buckets() map[string][]string {
	return map[string][]string{
		"source_pages": a.SourcePages,
		"claims":       a.Claims,
		"services":     a.Services,
		"documents":    a.Documents,
		"agencies":     a.Agencies,
	}
}

// AuditEvent is a content-addressed record of a KB mutation.
type AuditEvent struct {
	EventID          string           `json:"event_id"`
	EventType        EventType        `json:"event_type"`
	Timestamp        string           `json:"timestamp"`
	AffectedEntities AffectedEntities `json:"affected_entities"`
	Actor            string           `json:"actor"`
	Description      string           `json:"description,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

// Package migrate upgrades knowledge base documents across schema versions.
// v1 to v2 extracts provenance out of a loosely structured legacy document;
// v2 to v3 synthesizes the guide layer. Both accumulate warnings for human
// review instead of aborting.
package migrate

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/opengovbd/provkb/pkg/audit"
	"github.com/opengovbd/provkb/pkg/ids"
	"github.com/opengovbd/provkb/pkg/model"
)

// PlaceholderQuotedText marks a citation whose quoted text could not be
// recovered from the legacy document. Fabricating quoted text is prohibited;
// a claim carrying this placeholder must stay unverified until a human
// supplies the real quote.
const PlaceholderQuotedText = "[PLACEHOLDER - Manual citation required. Do not use this claim until verified.]"

// TagNeedsManualCitation tags claims migrated without recoverable quotes.
const TagNeedsManualCitation = "needs_manual_citation"

// PlaceholderContentHash marks a source page that has never been crawled.
// 64 zeros is outside the range of any real SHA-256 output in practice and
// is recognized by the crawler as "fetch me first".
const PlaceholderContentHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Report accumulates what a migration run did and what it could not do.
type Report struct {
	RunID       string   `json:"run_id"`
	FromVersion string   `json:"from_version"`
	ToVersion   string   `json:"to_version"`
	SourcePages int      `json:"source_pages_created"`
	Claims      int      `json:"claims_created"`
	Agencies    int      `json:"agencies_created"`
	Guides      int      `json:"guides_created,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// v1Doc is the legacy document shape. v1 predates provenance: services carry
// free-text fees and steps, URLs are scattered through string fields, and
// nothing is cited.
type v1Doc struct {
	SchemaVersion string       `json:"$schema_version"`
	Agencies      []v1Agency   `json:"agencies"`
	Services      []v1Service  `json:"services"`
	Documents     []v1Document `json:"documents"`
}

type v1Agency struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Website string   `json:"website"`
	Domains []string `json:"domains"`
}

type v1Service struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Agency string   `json:"agency"`
	URL    string   `json:"url"`
	Fees   []v1Fact `json:"fees"`
	Steps  []v1Fact `json:"steps"`
}

type v1Document struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IssuedBy string `json:"issued_by"`
	HowToGet string `json:"how_to_get"`
	URL      string `json:"url"`
}

// v1Fact is one legacy fee or step. SourceText, when present, is the
// verbatim text the fact was copied from and becomes the citation quote.
type v1Fact struct {
	Label      string         `json:"label"`
	SourceText string         `json:"source_text"`
	SourceURL  string         `json:"source_url"`
	Data       map[string]any `json:"data"`
}

// V1ToV2 migrates a legacy document to the provenance-first v2 schema.
// Every URL found anywhere in the document becomes a registered source page
// pending its first crawl; every legacy fee and step becomes a cited claim.
func V1ToV2(raw []byte, timestamp, actor string) (*model.KB, *Report, error) {
	var doc v1Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("migrate v1: parse: %w", err)
	}

	report := &Report{
		RunID:       uuid.NewString(),
		FromVersion: doc.SchemaVersion,
		ToVersion:   model.SchemaV2,
	}
	if report.FromVersion == "" {
		report.FromVersion = "1.0.0"
		report.warnf("input carries no $schema_version; assuming 1.0.0")
	}

	kb := &model.KB{SchemaVersion: model.SchemaV2, DataVersion: 1}
	m := &v1Migration{kb: kb, report: report, timestamp: timestamp}

	for _, a := range doc.Agencies {
		m.addAgency(a)
	}
	for _, u := range collectURLs(raw) {
		m.registerSourcePage(u)
	}
	for _, s := range doc.Services {
		m.migrateService(s)
	}
	for _, d := range doc.Documents {
		m.migrateDocument(d)
	}

	affected := model.AffectedEntities{
		SourcePages: collectIDs(kb.SourcePages, func(sp model.SourcePage) string { return sp.SourcePageID }),
		Claims:      collectIDs(kb.Claims, func(c model.Claim) string { return c.ClaimID }),
		Services:    collectIDs(kb.Services, func(s model.Service) string { return s.ServiceID }),
		Documents:   collectIDs(kb.Documents, func(d model.Document) string { return d.DocumentID }),
		Agencies:    collectIDs(kb.Agencies, func(a model.Agency) string { return a.AgencyID }),
	}
	ev, err := audit.Migration(timestamp, affected, actor,
		fmt.Sprintf("migrated %s to %s", report.FromVersion, report.ToVersion))
	if err != nil {
		return nil, nil, err
	}
	audit.Append(kb, ev)

	kb.LastUpdatedAt = timestamp
	kb.UpdatedBy = actor
	return kb, report, nil
}

type v1Migration struct {
	kb        *model.KB
	report    *Report
	timestamp string
}

func (m *v1Migration) addAgency(a v1Agency) {
	id := a.ID
	if !strings.HasPrefix(id, "agency.") {
		id = "agency." + ids.Slug(id)
	}
	if m.kb.AgencyByID(id) != nil {
		m.report.warnf("duplicate legacy agency %q skipped", a.ID)
		return
	}
	domains := a.Domains
	if len(domains) == 0 {
		if host, ok := ids.NormalizeHost(a.Website); ok {
			domains = []string{strings.TrimPrefix(host, "www.")}
		} else {
			m.report.warnf("agency %q has no domains and no parseable website", a.ID)
		}
	}
	m.kb.Agencies = append(m.kb.Agencies, model.Agency{
		AgencyID:        id,
		Name:            a.Name,
		Website:         a.Website,
		DomainAllowlist: domains,
	})
}

// registerSourcePage creates a pending source page for a discovered URL,
// inferring its owning agency or minting an auto-agency for an unknown host.
func (m *v1Migration) registerSourcePage(rawURL string) *model.SourcePage {
	id := ids.SourcePageID(rawURL)
	if sp := m.kb.SourcePageByID(id); sp != nil {
		return sp
	}
	host, ok := ids.NormalizeHost(rawURL)
	if !ok {
		m.report.warnf("skipping unparseable URL %q", rawURL)
		return nil
	}

	m.kb.SourcePages = append(m.kb.SourcePages, model.SourcePage{
		SourcePageID: id,
		CanonicalURL: rawURL,
		AgencyID:     m.agencyForHost(host),
		PageType:     guessPageType(rawURL),
		Language:     []string{model.LanguageEN},
		ContentHash:  PlaceholderContentHash,
		Status:       "pending_crawl",
	})
	m.report.SourcePages++
	return &m.kb.SourcePages[len(m.kb.SourcePages)-1]
}

// agencyForHost matches a host against existing allowlists, or mints an
// auto-agency. Auto-agency IDs are derived from the registrable host so the
// same host always maps to the same agency.
func (m *v1Migration) agencyForHost(host string) string {
	for _, a := range m.kb.Agencies {
		for _, d := range a.DomainAllowlist {
			if ids.HostMatchesDomain(host, ids.NormalizeDomain(d)) {
				return a.AgencyID
			}
		}
	}

	bare := strings.TrimPrefix(host, "www.")
	sum := sha1.Sum([]byte(bare))
	id := "agency.auto_" + hex.EncodeToString(sum[:])[:12]
	if m.kb.AgencyByID(id) == nil {
		m.kb.Agencies = append(m.kb.Agencies, model.Agency{
			AgencyID:        id,
			Name:            bare,
			DomainAllowlist: []string{bare},
		})
		m.report.Agencies++
		m.report.warnf("auto-agency %s created for host %q", id, bare)
	}
	return id
}

func (m *v1Migration) migrateService(s v1Service) {
	id := s.ID
	if !strings.HasPrefix(id, "svc.") {
		id = "svc." + ids.Slug(id)
	}
	slug := strings.TrimPrefix(id, "svc.")

	svc := model.Service{
		ServiceID:   id,
		ServiceName: s.Name,
		AgencyID:    m.resolveAgency(s.Agency, s.URL),
		Status:      model.EntityUnverified,
	}
	if s.URL != "" {
		if sp := m.registerSourcePage(s.URL); sp != nil {
			svc.PortalMapping.EntryURLs = []model.EntryURL{{URL: s.URL, SourcePageID: sp.SourcePageID}}
			svc.OfficialEntrypoints = []string{sp.SourcePageID}
		}
	}

	for i, fee := range s.Fees {
		suffix := ids.Slug(fee.Label)
		if suffix == "" {
			suffix = fmt.Sprintf("fee_%d", i+1)
		}
		claimID := ids.ClaimID("fee", id, suffix)
		data := fee.Data
		if data == nil {
			data = map[string]any{"label": fee.Label}
		}
		if m.addClaim(claimID, model.ClaimTypeFee, svc.ServiceID, fee, data) {
			svc.Claims = append(svc.Claims, claimID)
		}
	}
	for i, step := range s.Steps {
		claimID := fmt.Sprintf("claim.step.%s.%d", slug, i+1)
		if m.addClaim(claimID, model.ClaimTypeStep, svc.ServiceID, step, nil) {
			svc.Claims = append(svc.Claims, claimID)
		}
	}

	if len(svc.Claims) == 0 {
		m.report.warnf("service %s migrated without claims; it will not validate until claims are added", id)
	}
	m.kb.Services = append(m.kb.Services, svc)
}

func (m *v1Migration) migrateDocument(d v1Document) {
	id := d.ID
	if !strings.HasPrefix(id, "doc.") {
		id = "doc." + ids.Slug(id)
	}
	slug := strings.TrimPrefix(id, "doc.")

	doc := model.Document{
		DocumentID:   id,
		DocumentName: d.Name,
		IssuedBy:     m.resolveAgency(d.IssuedBy, d.URL),
		Status:       model.EntityUnverified,
	}

	// how_to_get was free text on the entity in v1; it becomes a claim.
	if d.HowToGet != "" {
		claimID := fmt.Sprintf("claim.doc.%s.how_to_get", slug)
		fact := v1Fact{Label: d.HowToGet, SourceURL: d.URL}
		if m.addClaim(claimID, model.ClaimTypeDocumentRequirement, "", fact, nil) {
			c := m.kb.ClaimByID(claimID)
			c.EntityRef = model.EntityRef{Type: model.RefDocument, ID: id}
			doc.Claims = append(doc.Claims, claimID)
		}
	}
	if len(doc.Claims) == 0 {
		m.report.warnf("document %s migrated without claims; it will not validate until claims are added", id)
	}
	m.kb.Documents = append(m.kb.Documents, doc)
}

// addClaim synthesizes one claim from a legacy fact. The citation points at
// the fact's own URL when it has one, else any registered page; its quote is
// the legacy source text or the explicit placeholder.
func (m *v1Migration) addClaim(claimID string, claimType model.ClaimType, serviceID string, fact v1Fact, data map[string]any) bool {
	if m.kb.ClaimByID(claimID) != nil {
		m.report.warnf("duplicate migrated claim %s skipped", claimID)
		return false
	}

	var sp *model.SourcePage
	if fact.SourceURL != "" {
		sp = m.registerSourcePage(fact.SourceURL)
	}
	if sp == nil && len(m.kb.SourcePages) > 0 {
		sp = &m.kb.SourcePages[0]
	}
	if sp == nil {
		m.report.warnf("claim %s dropped: no source page available for a citation", claimID)
		return false
	}

	quoted := fact.SourceText
	var tags []string
	if quoted == "" {
		quoted = PlaceholderQuotedText
		tags = []string{TagNeedsManualCitation}
	}

	claim := model.Claim{
		ClaimID:        claimID,
		EntityRef:      model.EntityRef{Type: model.RefService, ID: serviceID},
		ClaimType:      claimType,
		Text:           fact.Label,
		StructuredData: data,
		Status:         model.ClaimUnverified,
		Tags:           tags,
		Citations: []model.Citation{{
			SourcePageID: sp.SourcePageID,
			QuotedText:   quoted,
			RetrievedAt:  m.timestamp,
			Locator:      model.Locator{Type: model.LocatorURLFragment, URLFragment: "#"},
		}},
	}
	if claimType.RequiresStructuredData() && len(claim.StructuredData) == 0 {
		claim.StructuredData = map[string]any{"label": fact.Label}
	}
	m.kb.Claims = append(m.kb.Claims, claim)
	m.report.Claims++
	return true
}

func (m *v1Migration) resolveAgency(legacy, rawURL string) string {
	if legacy != "" {
		id := legacy
		if !strings.HasPrefix(id, "agency.") {
			id = "agency." + ids.Slug(id)
		}
		if m.kb.AgencyByID(id) != nil {
			return id
		}
		m.report.warnf("unknown legacy agency %q", legacy)
	}
	if host, ok := ids.NormalizeHost(rawURL); ok {
		return m.agencyForHost(host)
	}
	return ""
}

// collectURLs walks every string value in the raw document and gathers the
// http(s) URLs, deduplicated and sorted for deterministic page ordering.
func collectURLs(raw []byte) []string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
				seen[t] = true
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(doc)

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func guessPageType(rawURL string) model.PageType {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "fee"):
		return model.PageFeeSchedule
	case strings.Contains(lower, "instruction") || strings.Contains(lower, "how-to"):
		return model.PageInstruction
	case strings.Contains(lower, "form"):
		return model.PageForm
	case strings.Contains(lower, "notice"):
		return model.PageNotice
	default:
		return model.PageOther
	}
}

func collectIDs[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

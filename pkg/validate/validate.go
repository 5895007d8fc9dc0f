// Package validate enforces every document invariant as an ordered series of
// passes. Diagnostics are collected, never thrown: a run always inspects the
// whole document and reports all errors and warnings at once.
package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opengovbd/provkb/pkg/ids"
	"github.com/opengovbd/provkb/pkg/model"
)

//go:embed schema.json
var schemaJSON []byte

// Free-text fact fields forbidden on services and documents. Facts live in
// claims; an entity carrying any of these is a hard failure.
var entityFieldDenyList = []string{
	"definition", "how_to_get", "description", "instructions",
	"eligibility", "steps", "fees", "processing_time",
}

var contentHashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Summary counts what one validation run looked at.
type Summary struct {
	Agencies    int `json:"agencies"`
	SourcePages int `json:"source_pages"`
	Claims      int `json:"claims"`
	Documents   int `json:"documents"`
	Services    int `json:"services"`
	Guides      int `json:"guides"`
	Errors      int `json:"errors"`
	Warnings    int `json:"warnings"`
}

// Result is the outcome of a validation run. OK is false iff Errors is
// non-empty; warnings never block.
type Result struct {
	OK       bool     `json:"ok"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Summary  Summary  `json:"summary"`
}

func (r *Result) errf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validator runs the ordered passes against a document. The zero value is
// not usable; New compiles the embedded document schema once.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the embedded JSON Schema and returns a ready validator.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://provkb.opengovbd.org/kb.schema.json"
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("validate: schema load: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("validate: schema compile: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate runs every pass over the document. raw is the document's JSON
// bytes as read from disk; pass nil to validate an in-memory document, in
// which case raw is derived by marshaling kb.
func (v *Validator) Validate(kb *model.KB, raw []byte) *Result {
	res := &Result{}

	if raw == nil {
		var err error
		raw, err = json.Marshal(kb)
		if err != nil {
			res.errf("document does not marshal: %v", err)
			return finish(res, kb)
		}
	}

	v.passSchema(res, raw)
	passTopLevel(res, kb)
	domains := passAgencies(res, kb)
	passSourcePages(res, kb)
	passClaims(res, kb)
	passEntities(res, kb, raw)
	passCrossRefs(res, kb)
	passOrphans(res, kb)
	passDomainAllowlist(res, kb, domains)
	passDerivedStatus(res, kb)
	if kb.IsV3() {
		passGuides(res, kb)
	}

	return finish(res, kb)
}

func finish(res *Result, kb *model.KB) *Result {
	res.OK = len(res.Errors) == 0
	res.Summary = Summary{
		Agencies:    len(kb.Agencies),
		SourcePages: len(kb.SourcePages),
		Claims:      len(kb.Claims),
		Documents:   len(kb.Documents),
		Services:    len(kb.Services),
		Guides:      len(kb.ServiceGuides),
		Errors:      len(res.Errors),
		Warnings:    len(res.Warnings),
	}
	return res
}

// Pass 0: structural gate. Catches malformed input before the semantic
// passes, which assume a decodable document.
func (v *Validator) passSchema(res *Result, raw []byte) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		res.errf("document is not valid JSON: %v", err)
		return
	}
	if err := v.schema.Validate(doc); err != nil {
		res.errf("document shape: %v", err)
	}
}

func passTopLevel(res *Result, kb *model.KB) {
	major, err := kb.SchemaMajor()
	if err != nil {
		res.errf("$schema_version: %v", err)
		return
	}
	if major != 2 && major != 3 {
		res.errf("$schema_version %q: unsupported major version %d", kb.SchemaVersion, major)
	}
}

// passAgencies checks agency identity and builds the normalized allowlist
// used by the domain pass.
func passAgencies(res *Result, kb *model.KB) map[string][]string {
	domains := make(map[string][]string, len(kb.Agencies))
	seen := make(map[string]bool, len(kb.Agencies))

	for i, a := range kb.Agencies {
		if !ids.ValidAgencyID(a.AgencyID) {
			res.errf("agencies[%d]: agency_id %q does not match agency.<slug>", i, a.AgencyID)
		}
		if seen[a.AgencyID] {
			res.errf("agencies[%d]: duplicate agency_id %q", i, a.AgencyID)
		}
		seen[a.AgencyID] = true

		if len(a.DomainAllowlist) == 0 {
			res.errf("agencies[%d] (%s): domain_allowlist must be non-empty", i, a.AgencyID)
			continue
		}
		var normalized []string
		for _, d := range a.DomainAllowlist {
			nd := ids.NormalizeDomain(d)
			if nd == "" || strings.ContainsAny(nd, " /:") {
				res.warnf("agencies[%d] (%s): unparseable allowlist entry %q", i, a.AgencyID, d)
				continue
			}
			normalized = append(normalized, nd)
		}
		domains[a.AgencyID] = normalized
	}
	return domains
}

func passSourcePages(res *Result, kb *model.KB) {
	seen := make(map[string]bool, len(kb.SourcePages))

	for i, sp := range kb.SourcePages {
		if !ids.ValidSourcePageID(sp.SourcePageID) {
			res.errf("source_pages[%d]: source_page_id %q does not match source.<40 hex>", i, sp.SourcePageID)
		}
		if seen[sp.SourcePageID] {
			res.errf("source_pages[%d]: duplicate source_page_id %q", i, sp.SourcePageID)
		}
		seen[sp.SourcePageID] = true

		host, ok := ids.NormalizeHost(sp.CanonicalURL)
		if !ok || host == "" {
			res.errf("source_pages[%d] (%s): canonical_url %q does not parse", i, sp.SourcePageID, sp.CanonicalURL)
		} else if !strings.HasPrefix(sp.CanonicalURL, "http://") && !strings.HasPrefix(sp.CanonicalURL, "https://") {
			res.errf("source_pages[%d] (%s): canonical_url %q must be http or https", i, sp.SourcePageID, sp.CanonicalURL)
		} else if want := ids.SourcePageID(sp.CanonicalURL); want != sp.SourcePageID {
			res.errf("source_pages[%d]: source_page_id %q is not derived from canonical_url (want %q)", i, sp.SourcePageID, want)
		}

		if !contentHashRe.MatchString(sp.ContentHash) {
			res.errf("source_pages[%d] (%s): content_hash must be 64 hex chars", i, sp.SourcePageID)
		}
		for _, lang := range sp.Language {
			if !model.ValidLanguage(lang) {
				res.errf("source_pages[%d] (%s): unknown language %q", i, sp.SourcePageID, lang)
			}
		}
		if !model.ValidPageType(sp.PageType) {
			res.errf("source_pages[%d] (%s): unknown page_type %q", i, sp.SourcePageID, sp.PageType)
		}
	}
}

func passClaims(res *Result, kb *model.KB) {
	seen := make(map[string]bool, len(kb.Claims))

	for i, c := range kb.Claims {
		if !ids.ValidClaimID(c.ClaimID) {
			res.errf("claims[%d]: claim_id %q does not match any accepted pattern", i, c.ClaimID)
		}
		if seen[c.ClaimID] {
			res.errf("claims[%d]: duplicate claim_id %q", i, c.ClaimID)
		}
		seen[c.ClaimID] = true

		if !model.ValidClaimType(c.ClaimType) {
			res.errf("claims[%d] (%s): unknown claim_type %q", i, c.ClaimID, c.ClaimType)
		}
		if !model.ValidClaimStatus(c.Status) {
			res.errf("claims[%d] (%s): unknown status %q", i, c.ClaimID, c.Status)
		}

		if len(c.Citations) == 0 {
			res.errf("claims[%d] (%s): citations must be non-empty", i, c.ClaimID)
		}
		for j, cit := range c.Citations {
			if kb.SourcePageByID(cit.SourcePageID) == nil {
				res.errf("claims[%d] (%s): citations[%d] references unregistered source page %q", i, c.ClaimID, j, cit.SourcePageID)
			}
			if strings.TrimSpace(cit.QuotedText) == "" {
				res.errf("claims[%d] (%s): citations[%d] has empty quoted_text", i, c.ClaimID, j)
			}
			if err := cit.Locator.Validate(); err != nil {
				res.errf("claims[%d] (%s): citations[%d] locator: %v", i, c.ClaimID, j, err)
			}
		}

		if c.ClaimType.RequiresStructuredData() {
			if len(c.StructuredData) == 0 {
				res.errf("claims[%d] (%s): %s claims require structured_data", i, c.ClaimID, c.ClaimType)
				continue
			}
			switch c.ClaimType {
			case model.ClaimTypeFee:
				if !isNumber(c.StructuredData["amount_bdt"]) {
					res.errf("claims[%d] (%s): structured_data.amount_bdt must be a number", i, c.ClaimID)
				}
			case model.ClaimTypeProcessingTime:
				if !hasDuration(c.StructuredData) {
					res.errf("claims[%d] (%s): structured_data must carry a duration value (days, weeks, hours or duration)", i, c.ClaimID)
				}
			}
		}
	}
}

// isNumber reports whether v is a JSON number under either decode path:
// float64 from unmarshaling, or a native numeric in an in-memory document.
func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

// Fields a processing_time claim may carry its duration in.
var durationFields = []string{"days", "weeks", "hours"}

func hasDuration(data map[string]any) bool {
	for _, f := range durationFields {
		if isNumber(data[f]) {
			return true
		}
	}
	if s, ok := data["duration"].(string); ok && strings.TrimSpace(s) != "" {
		return true
	}
	return false
}

// passEntities checks documents and services, including the free-text
// deny-list, which must run against the raw JSON since the typed model
// cannot carry unknown fields.
func passEntities(res *Result, kb *model.KB, raw []byte) {
	seenDocs := make(map[string]bool, len(kb.Documents))
	for i, d := range kb.Documents {
		if !ids.ValidDocumentID(d.DocumentID) {
			res.errf("documents[%d]: document_id %q does not match doc.<slug>", i, d.DocumentID)
		}
		if seenDocs[d.DocumentID] {
			res.errf("documents[%d]: duplicate document_id %q", i, d.DocumentID)
		}
		seenDocs[d.DocumentID] = true

		if len(d.Claims) == 0 {
			res.errf("documents[%d] (%s): claims must be non-empty", i, d.DocumentID)
		}
		for _, id := range d.Claims {
			if kb.ClaimByID(id) == nil {
				res.errf("documents[%d] (%s): claim %q does not resolve", i, d.DocumentID, id)
			}
		}
		if !model.ValidEntityStatus(d.Status) {
			res.errf("documents[%d] (%s): unknown status %q", i, d.DocumentID, d.Status)
		}
	}

	seenSvcs := make(map[string]bool, len(kb.Services))
	for i, s := range kb.Services {
		if !ids.ValidServiceID(s.ServiceID) {
			res.errf("services[%d]: service_id %q does not match svc.<slug>", i, s.ServiceID)
		}
		if seenSvcs[s.ServiceID] {
			res.errf("services[%d]: duplicate service_id %q", i, s.ServiceID)
		}
		seenSvcs[s.ServiceID] = true

		if len(s.Claims) == 0 {
			res.errf("services[%d] (%s): claims must be non-empty", i, s.ServiceID)
		}
		for _, id := range s.Claims {
			if kb.ClaimByID(id) == nil {
				res.errf("services[%d] (%s): claim %q does not resolve", i, s.ServiceID, id)
			}
		}
		if !model.ValidEntityStatus(s.Status) {
			res.errf("services[%d] (%s): unknown status %q", i, s.ServiceID, s.Status)
		}
	}

	passDenyList(res, raw)
}

// passDenyList inspects the raw entity objects for forbidden free-text
// fields.
func passDenyList(res *Result, raw []byte) {
	var doc struct {
		Documents []map[string]json.RawMessage `json:"documents"`
		Services  []map[string]json.RawMessage `json:"services"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return // already reported by the schema pass
	}
	check := func(kind string, i int, obj map[string]json.RawMessage) {
		for _, field := range entityFieldDenyList {
			if _, present := obj[field]; present {
				res.errf("%s[%d]: free-text fact field %q is forbidden; use claims", kind, i, field)
			}
		}
	}
	for i, d := range doc.Documents {
		check("documents", i, d)
	}
	for i, s := range doc.Services {
		check("services", i, s)
	}
}

func passCrossRefs(res *Result, kb *model.KB) {
	for i, sp := range kb.SourcePages {
		if kb.AgencyByID(sp.AgencyID) == nil {
			res.errf("source_pages[%d] (%s): agency %q does not exist", i, sp.SourcePageID, sp.AgencyID)
		}
	}
	for i, c := range kb.Claims {
		switch c.EntityRef.Type {
		case model.RefService:
			if kb.ServiceByID(c.EntityRef.ID) == nil {
				res.errf("claims[%d] (%s): entity_ref service %q does not exist", i, c.ClaimID, c.EntityRef.ID)
			}
		case model.RefDocument:
			if kb.DocumentByID(c.EntityRef.ID) == nil {
				res.errf("claims[%d] (%s): entity_ref document %q does not exist", i, c.ClaimID, c.EntityRef.ID)
			}
		default:
			res.errf("claims[%d] (%s): entity_ref type %q must be service or document", i, c.ClaimID, c.EntityRef.Type)
		}
	}
	for i, d := range kb.Documents {
		if d.IssuedBy != "" && kb.AgencyByID(d.IssuedBy) == nil {
			res.errf("documents[%d] (%s): issued_by %q does not exist", i, d.DocumentID, d.IssuedBy)
		}
	}
	for i, s := range kb.Services {
		if s.AgencyID != "" && kb.AgencyByID(s.AgencyID) == nil {
			res.errf("services[%d] (%s): agency %q does not exist", i, s.ServiceID, s.AgencyID)
		}
		for j, eu := range s.PortalMapping.EntryURLs {
			if eu.SourcePageID != "" && kb.SourcePageByID(eu.SourcePageID) == nil {
				res.errf("services[%d] (%s): entry_urls[%d] references unregistered source page %q", i, s.ServiceID, j, eu.SourcePageID)
			}
		}
		for _, id := range s.OfficialEntrypoints {
			if kb.SourcePageByID(id) == nil {
				res.errf("services[%d] (%s): official_entrypoint %q does not resolve", i, s.ServiceID, id)
			}
		}
	}
}

// passOrphans flags source pages nothing references. Orphans are drift, not
// corruption; they warn.
func passOrphans(res *Result, kb *model.KB) {
	cited := make(map[string]bool)
	for _, c := range kb.Claims {
		for _, cit := range c.Citations {
			cited[cit.SourcePageID] = true
		}
	}
	for _, s := range kb.Services {
		for _, eu := range s.PortalMapping.EntryURLs {
			cited[eu.SourcePageID] = true
		}
		for _, id := range s.OfficialEntrypoints {
			cited[id] = true
		}
	}
	for i, sp := range kb.SourcePages {
		if !cited[sp.SourcePageID] {
			res.warnf("source_pages[%d] (%s): orphan page, no citation or entry URL references it", i, sp.SourcePageID)
		}
	}
}

func passDomainAllowlist(res *Result, kb *model.KB, domains map[string][]string) {
	for i, sp := range kb.SourcePages {
		allowed, ok := domains[sp.AgencyID]
		if !ok {
			continue // missing agency already reported
		}
		host, parsed := ids.NormalizeHost(sp.CanonicalURL)
		if !parsed {
			continue // unparseable URL already reported
		}
		matched := false
		for _, d := range allowed {
			if ids.HostMatchesDomain(host, d) {
				matched = true
				break
			}
		}
		if !matched {
			res.errf("source_pages[%d] (%s): domain mismatch, host %q not allowed for agency %s", i, sp.SourcePageID, host, sp.AgencyID)
		}
	}
}

// passDerivedStatus rejects entities claiming to be verified when their
// claims say otherwise. Any other stored status is permitted; only
// "verified" must be earned.
func passDerivedStatus(res *Result, kb *model.KB) {
	for i, d := range kb.Documents {
		if d.Status != model.EntityVerified {
			continue
		}
		if got := model.DeriveEntityStatus(kb.ClaimStatuses(d.Claims)); got != model.EntityVerified {
			res.errf("documents[%d] (%s): marked verified but derived status is %q", i, d.DocumentID, got)
		}
	}
	for i, s := range kb.Services {
		if s.Status != model.EntityVerified {
			continue
		}
		if got := model.DeriveEntityStatus(kb.ClaimStatuses(s.Claims)); got != model.EntityVerified {
			res.errf("services[%d] (%s): marked verified but derived status is %q", i, s.ServiceID, got)
		}
	}
}

func passGuides(res *Result, kb *model.KB) {
	seen := make(map[string]bool, len(kb.ServiceGuides))

	for i, g := range kb.ServiceGuides {
		if !ids.ValidGuideID(g.GuideID) {
			res.errf("service_guides[%d]: guide_id %q does not match guide.<slug>", i, g.GuideID)
		}
		if seen[g.GuideID] {
			res.errf("service_guides[%d]: duplicate guide_id %q", i, g.GuideID)
		}
		seen[g.GuideID] = true

		if kb.ServiceByID(g.ServiceID) == nil {
			res.errf("service_guides[%d] (%s): service %q does not exist", i, g.GuideID, g.ServiceID)
		}
		if g.AgencyID != "" && kb.AgencyByID(g.AgencyID) == nil {
			res.errf("service_guides[%d] (%s): agency %q does not exist", i, g.GuideID, g.AgencyID)
		}
		if !model.ValidGuideStatus(g.Status) {
			res.errf("service_guides[%d] (%s): unknown status %q", i, g.GuideID, g.Status)
		}

		if len(g.OfficialLinks) == 0 {
			res.errf("service_guides[%d] (%s): official_links must be non-empty", i, g.GuideID)
		}
		for j, link := range g.OfficialLinks {
			if !strings.HasPrefix(link.URL, "http://") && !strings.HasPrefix(link.URL, "https://") {
				res.errf("service_guides[%d] (%s): official_links[%d] URL %q must be http or https", i, g.GuideID, j, link.URL)
			}
		}

		stepNums := make(map[int]bool, len(g.Steps))
		sequential := true
		for j, step := range g.Steps {
			if stepNums[step.StepNumber] {
				res.errf("service_guides[%d] (%s): duplicate step_number %d", i, g.GuideID, step.StepNumber)
			}
			stepNums[step.StepNumber] = true
			if step.StepNumber != j+1 {
				sequential = false
			}
			for _, id := range step.ClaimIDs {
				if kb.ClaimByID(id) == nil {
					res.errf("service_guides[%d] (%s): steps[%d] claim %q does not resolve", i, g.GuideID, j, id)
				}
			}
		}
		if !sequential && len(g.Steps) > 0 {
			res.warnf("service_guides[%d] (%s): step numbering is not sequential from 1", i, g.GuideID)
		}

		for j, sec := range g.Sections {
			for _, id := range sec.ClaimIDs {
				if kb.ClaimByID(id) == nil {
					res.errf("service_guides[%d] (%s): sections[%d] claim %q does not resolve", i, g.GuideID, j, id)
				}
			}
		}

		for j, variant := range g.Variants {
			for _, list := range [][]string{variant.FeeClaimIDs, variant.ProcessingTimeClaimIDs} {
				for _, id := range list {
					if kb.ClaimByID(id) == nil {
						res.errf("service_guides[%d] (%s): variants[%d] claim %q does not resolve", i, g.GuideID, j, id)
					}
				}
			}
		}
	}
}

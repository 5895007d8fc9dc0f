// Package publish resolves a v3 knowledge base into the externally visible
// guide bundle. Published guides carry resolved citations only: internal
// claim and source identifiers never leave the document boundary.
package publish

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/opengovbd/provkb/pkg/ids"
	"github.com/opengovbd/provkb/pkg/model"
)

// PublicCitation is a resolved, user-facing citation. The internal
// source_page_id is deliberately absent from the wire form.
type PublicCitation struct {
	CanonicalURL string `json:"canonical_url"`
	Domain       string `json:"domain"`
	PageTitle    string `json:"page_title,omitempty"`
	Locator      string `json:"locator,omitempty"`
	QuotedText   string `json:"quoted_text"`
	RetrievedAt  string `json:"retrieved_at,omitempty"`
	Language     string `json:"language,omitempty"`
}

// PublicFact is one resolved claim: its label, structured payload and the
// citations backing it.
type PublicFact struct {
	Label          string           `json:"label"`
	Description    string           `json:"description,omitempty"`
	StructuredData map[string]any   `json:"structured_data,omitempty"`
	Status         string           `json:"status"`
	Citations      []PublicCitation `json:"citations"`
}

// PublicStep is one ordered step with its resolved facts.
type PublicStep struct {
	StepNumber int          `json:"step_number"`
	Title      string       `json:"title"`
	Facts      []PublicFact `json:"facts,omitempty"`
}

// PublicSection groups resolved facts by concern.
type PublicSection struct {
	Section string       `json:"section"`
	Facts   []PublicFact `json:"facts"`
}

// PublicVariant is one delivery variant with its resolved fee and
// processing-time facts.
type PublicVariant struct {
	VariantID       string       `json:"variant_id"`
	Label           string       `json:"label"`
	Fees            []PublicFact `json:"fees,omitempty"`
	ProcessingTimes []PublicFact `json:"processing_times,omitempty"`
}

// PublicLink is an outbound official link.
type PublicLink struct {
	URL   string `json:"url"`
	Label string `json:"label,omitempty"`
}

// GuideMetadata summarizes a guide's provenance health.
type GuideMetadata struct {
	StepCount           int            `json:"step_count"`
	CitationCount       int            `json:"citation_count"`
	VerificationSummary map[string]int `json:"verification_summary"`
	LastCrawledAt       string         `json:"last_crawled_at,omitempty"`
	SourceDomains       []string       `json:"source_domains"`
}

// PublicGuide is the published view of one service guide.
type PublicGuide struct {
	GuideID       string          `json:"guide_id"`
	ServiceID     string          `json:"service_id"`
	AgencyID      string          `json:"agency_id"`
	Title         string          `json:"title"`
	AgencyName    string          `json:"agency_name,omitempty"`
	Status        string          `json:"status"`
	Steps         []PublicStep    `json:"steps"`
	Sections      []PublicSection `json:"sections,omitempty"`
	Fees          []PublicFact    `json:"fees,omitempty"`
	Variants      []PublicVariant `json:"variants,omitempty"`
	OfficialLinks []PublicLink    `json:"official_links"`
	Metadata      GuideMetadata   `json:"metadata"`
}

// GuidesFile is published/public_guides.json.
type GuidesFile struct {
	SchemaVersion   string        `json:"$schema_version"`
	GeneratedAt     string        `json:"generated_at"`
	SourceKBVersion int           `json:"source_kb_version"`
	Guides          []PublicGuide `json:"guides"`
}

// IndexEntry is one searchable row in public_guides_index.json.
type IndexEntry struct {
	GuideID       string   `json:"guide_id"`
	ServiceID     string   `json:"service_id"`
	AgencyID      string   `json:"agency_id"`
	Title         string   `json:"title"`
	AgencyName    string   `json:"agency_name,omitempty"`
	Keywords      []string `json:"keywords"`
	StepCount     int      `json:"step_count"`
	CitationCount int      `json:"citation_count"`
	Status        string   `json:"status"`
}

// IndexFile is published/public_guides_index.json.
type IndexFile struct {
	GeneratedAt     string       `json:"generated_at"`
	SourceKBVersion int          `json:"source_kb_version"`
	Entries         []IndexEntry `json:"entries"`
}

// Bundle is everything one publish run emits.
type Bundle struct {
	Guides GuidesFile `json:"guides"`
	Index  IndexFile  `json:"index"`
}

// Diagnostics collects non-fatal publishing problems.
type Diagnostics struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (d *Diagnostics) errf(format string, args ...any) {
	d.Errors = append(d.Errors, fmt.Sprintf(format, args...))
}

func (d *Diagnostics) warnf(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

// Canonicalizer post-processes one published guide, typically to collapse a
// redundant fee schedule into its canonical rows. Implementations mutate the
// guide in place.
type Canonicalizer interface {
	Canonicalize(g *PublicGuide)
}

// Options configures one publish run.
type Options struct {
	// SourceTimestamp pins generated_at for reproducible builds. When empty
	// the document's last_updated_at is used, then the wall clock.
	SourceTimestamp string
}

// Publisher turns a v3 document into the public bundle. Canonicalizers are
// selected per guide ID; the ePassport fee rules ship registered by default.
type Publisher struct {
	clock          func() time.Time
	canonicalizers map[string]Canonicalizer
}

// New returns a publisher with the default canonicalizer set.
func New() *Publisher {
	p := &Publisher{
		clock:          time.Now,
		canonicalizers: make(map[string]Canonicalizer),
	}
	p.Register(EpassportGuideID, EpassportFees{})
	return p
}

// WithClock overrides the clock for deterministic testing.
func (p *Publisher) WithClock(clock func() time.Time) *Publisher {
	p.clock = clock
	return p
}

// Register installs a canonicalizer for one guide ID, replacing any default.
func (p *Publisher) Register(guideID string, c Canonicalizer) {
	p.canonicalizers[guideID] = c
}

// Publish builds the public bundle from a v3 document.
func (p *Publisher) Publish(kb *model.KB, opts Options) (*Bundle, *Diagnostics, error) {
	if !kb.IsV3() {
		return nil, nil, fmt.Errorf("publish: document is %s, guides require v3", kb.SchemaVersion)
	}

	diag := &Diagnostics{}
	generatedAt := opts.SourceTimestamp
	if generatedAt == "" {
		generatedAt = kb.LastUpdatedAt
	}
	if generatedAt == "" {
		generatedAt = p.clock().UTC().Format(time.RFC3339)
	}

	bundle := &Bundle{
		Guides: GuidesFile{
			SchemaVersion:   model.SchemaV3,
			GeneratedAt:     generatedAt,
			SourceKBVersion: kb.DataVersion,
			Guides:          []PublicGuide{},
		},
		Index: IndexFile{
			GeneratedAt:     generatedAt,
			SourceKBVersion: kb.DataVersion,
			Entries:         []IndexEntry{},
		},
	}

	for i := range kb.ServiceGuides {
		g := p.publishGuide(kb, &kb.ServiceGuides[i], diag)
		bundle.Guides.Guides = append(bundle.Guides.Guides, g)
		bundle.Index.Entries = append(bundle.Index.Entries, indexEntry(g))
	}

	return bundle, diag, nil
}

// resolver tracks the claims and source pages one guide reaches.
type resolver struct {
	kb      *model.KB
	diag    *Diagnostics
	guideID string
	claims  map[string]model.ClaimStatus
	sources map[string]*model.SourcePage
}

func (p *Publisher) publishGuide(kb *model.KB, guide *model.ServiceGuide, diag *Diagnostics) PublicGuide {
	r := &resolver{
		kb:      kb,
		diag:    diag,
		guideID: guide.GuideID,
		claims:  make(map[string]model.ClaimStatus),
		sources: make(map[string]*model.SourcePage),
	}

	out := PublicGuide{
		GuideID:   guide.GuideID,
		ServiceID: guide.ServiceID,
		AgencyID:  guide.AgencyID,
		Title:     guide.Title,
		Status:    string(guide.Status),
		Steps:     []PublicStep{},
	}
	if a := kb.AgencyByID(guide.AgencyID); a != nil {
		out.AgencyName = a.Name
	}

	for _, step := range guide.Steps {
		out.Steps = append(out.Steps, PublicStep{
			StepNumber: step.StepNumber,
			Title:      step.Title,
			Facts:      r.resolveAll(step.ClaimIDs),
		})
	}
	for _, sec := range guide.Sections {
		facts := r.resolveAll(sec.ClaimIDs)
		out.Sections = append(out.Sections, PublicSection{Section: sec.Section, Facts: facts})
		if sec.Section == "fees" {
			out.Fees = facts
		}
	}
	for _, v := range guide.Variants {
		out.Variants = append(out.Variants, PublicVariant{
			VariantID:       v.VariantID,
			Label:           v.Label,
			Fees:            r.resolveAll(v.FeeClaimIDs),
			ProcessingTimes: r.resolveAll(v.ProcessingTimeClaimIDs),
		})
	}
	for _, link := range guide.OfficialLinks {
		out.OfficialLinks = append(out.OfficialLinks, PublicLink{URL: link.URL, Label: link.Label})
	}

	out.Metadata = r.metadata(len(guide.Steps))

	if c, ok := p.canonicalizers[guide.GuideID]; ok {
		c.Canonicalize(&out)
	}
	normalizeCurrency(&out)
	return out
}

func (r *resolver) resolveAll(claimIDs []string) []PublicFact {
	out := make([]PublicFact, 0, len(claimIDs))
	for _, id := range claimIDs {
		if fact, ok := r.resolve(id); ok {
			out = append(out, fact)
		}
	}
	return out
}

func (r *resolver) resolve(claimID string) (PublicFact, bool) {
	c := r.kb.ClaimByID(claimID)
	if c == nil {
		r.diag.errf("guide %s references missing claim %s", r.guideID, claimID)
		return PublicFact{}, false
	}
	r.claims[c.ClaimID] = c.Status

	fact := PublicFact{
		Label:          c.Text,
		StructuredData: c.StructuredData,
		Status:         string(c.Status),
		Citations:      make([]PublicCitation, 0, len(c.Citations)),
	}
	for _, cit := range c.Citations {
		sp := r.kb.SourcePageByID(cit.SourcePageID)
		if sp == nil {
			r.diag.errf("guide %s: claim %s cites unregistered page %s", r.guideID, claimID, cit.SourcePageID)
			continue
		}
		r.sources[sp.SourcePageID] = sp
		domain, _ := ids.NormalizeHost(sp.CanonicalURL)
		fact.Citations = append(fact.Citations, PublicCitation{
			CanonicalURL: sp.CanonicalURL,
			Domain:       domain,
			PageTitle:    sp.Title,
			Locator:      cit.Locator.Humanize(),
			QuotedText:   cit.QuotedText,
			RetrievedAt:  cit.RetrievedAt,
			Language:     cit.Language,
		})
	}
	return fact, true
}

func (r *resolver) metadata(stepCount int) GuideMetadata {
	md := GuideMetadata{
		StepCount:           stepCount,
		CitationCount:       len(r.claims),
		VerificationSummary: make(map[string]int),
		SourceDomains:       []string{},
	}
	for _, status := range r.claims {
		md.VerificationSummary[string(status)]++
	}

	domains := make(map[string]bool)
	for _, sp := range r.sources {
		if sp.LastCrawledAt > md.LastCrawledAt {
			md.LastCrawledAt = sp.LastCrawledAt
		}
		if host, ok := ids.NormalizeHost(sp.CanonicalURL); ok {
			domains[host] = true
		}
	}
	for d := range domains {
		md.SourceDomains = append(md.SourceDomains, d)
	}
	sort.Strings(md.SourceDomains)
	return md
}

func indexEntry(g PublicGuide) IndexEntry {
	return IndexEntry{
		GuideID:       g.GuideID,
		ServiceID:     g.ServiceID,
		AgencyID:      g.AgencyID,
		Title:         g.Title,
		AgencyName:    g.AgencyName,
		Keywords:      keywords(g),
		StepCount:     g.Metadata.StepCount,
		CitationCount: g.Metadata.CitationCount,
		Status:        g.Status,
	}
}

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9\p{Bengali}]+`)

// keywords gathers the searchable tokens of a guide: title, step titles and
// agency name, lowercased, keeping tokens longer than two characters.
func keywords(g PublicGuide) []string {
	seen := make(map[string]bool)
	gather := func(text string) {
		for _, tok := range tokenSplitRe.Split(strings.ToLower(text), -1) {
			if len([]rune(tok)) > 2 {
				seen[tok] = true
			}
		}
	}
	gather(g.Title)
	gather(g.AgencyName)
	for _, step := range g.Steps {
		gather(step.Title)
	}

	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

var currencyRe = regexp.MustCompile(`\b(TK|Tk|tk|Taka|taka)\b`)

// normalizeCurrency replaces standalone legacy currency tokens with BDT in
// user-visible labels. This runs at publish time only; stored claims keep
// their quoted text verbatim.
func normalizeCurrency(g *PublicGuide) {
	fix := func(s string) string { return currencyRe.ReplaceAllString(s, "BDT") }

	g.Title = fix(g.Title)
	for i := range g.Steps {
		g.Steps[i].Title = fix(g.Steps[i].Title)
		for j := range g.Steps[i].Facts {
			g.Steps[i].Facts[j].Label = fix(g.Steps[i].Facts[j].Label)
			g.Steps[i].Facts[j].Description = fix(g.Steps[i].Facts[j].Description)
		}
	}
	for i := range g.Sections {
		for j := range g.Sections[i].Facts {
			g.Sections[i].Facts[j].Label = fix(g.Sections[i].Facts[j].Label)
			g.Sections[i].Facts[j].Description = fix(g.Sections[i].Facts[j].Description)
		}
	}
	for i := range g.Fees {
		g.Fees[i].Label = fix(g.Fees[i].Label)
		g.Fees[i].Description = fix(g.Fees[i].Description)
	}
	for i := range g.Variants {
		g.Variants[i].Label = fix(g.Variants[i].Label)
		for j := range g.Variants[i].Fees {
			g.Variants[i].Fees[j].Label = fix(g.Variants[i].Fees[j].Label)
			g.Variants[i].Fees[j].Description = fix(g.Variants[i].Fees[j].Description)
		}
		for j := range g.Variants[i].ProcessingTimes {
			g.Variants[i].ProcessingTimes[j].Label = fix(g.Variants[i].ProcessingTimes[j].Label)
			g.Variants[i].ProcessingTimes[j].Description = fix(g.Variants[i].ProcessingTimes[j].Description)
		}
	}
}

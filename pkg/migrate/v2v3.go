package migrate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/opengovbd/provkb/pkg/audit"
	"github.com/opengovbd/provkb/pkg/ids"
	"github.com/opengovbd/provkb/pkg/model"
)

// Section names for the v3 guide view, grouped by claim type.
const (
	SectionApplicationSteps  = "application_steps"
	SectionRequiredDocuments = "required_documents"
	SectionFees              = "fees"
	SectionProcessingTime    = "processing_time"
	SectionEligibility       = "eligibility"
	SectionPortalLinks       = "portal_links"
	SectionServiceInfo       = "service_info"
)

var sectionOrder = []string{
	SectionApplicationSteps, SectionRequiredDocuments, SectionFees,
	SectionProcessingTime, SectionEligibility, SectionPortalLinks,
	SectionServiceInfo,
}

func sectionFor(t model.ClaimType) string {
	switch t {
	case model.ClaimTypeStep:
		return SectionApplicationSteps
	case model.ClaimTypeDocumentRequirement:
		return SectionRequiredDocuments
	case model.ClaimTypeFee:
		return SectionFees
	case model.ClaimTypeProcessingTime:
		return SectionProcessingTime
	case model.ClaimTypeEligibilityRequirement:
		return SectionEligibility
	case model.ClaimTypePortalLink:
		return SectionPortalLinks
	default:
		return SectionServiceInfo
	}
}

var (
	trailingIntRe = regexp.MustCompile(`\.([0-9]+)$`)
	stepTokenRe   = regexp.MustCompile(`(?i)step\s*([0-9]+)`)
)

// V2ToV3 upgrades a v2 document in place to v3, synthesizing one ServiceGuide
// per service. All existing entities are preserved unchanged.
func V2ToV3(kb *model.KB, timestamp, actor string) (*Report, error) {
	major, err := kb.SchemaMajor()
	if err != nil {
		return nil, fmt.Errorf("migrate v2: %w", err)
	}
	if major != 2 {
		return nil, fmt.Errorf("migrate v2: expected a v2 document, got %s", kb.SchemaVersion)
	}

	report := &Report{
		RunID:       uuid.NewString(),
		FromVersion: kb.SchemaVersion,
		ToVersion:   model.SchemaV3,
	}

	for i := range kb.Services {
		g := synthesizeGuide(kb, &kb.Services[i], report)
		kb.ServiceGuides = append(kb.ServiceGuides, g)
		report.Guides++
	}

	kb.SchemaVersion = model.SchemaV3
	kb.DataVersion++
	kb.LastUpdatedAt = timestamp
	kb.UpdatedBy = actor

	ev, err := audit.Migration(timestamp, model.AffectedEntities{
		Services: collectIDs(kb.Services, func(s model.Service) string { return s.ServiceID }),
	}, actor, fmt.Sprintf("migrated %s to %s, %d guide(s) synthesized", report.FromVersion, report.ToVersion, report.Guides))
	if err != nil {
		return nil, err
	}
	audit.Append(kb, ev)
	return report, nil
}

func synthesizeGuide(kb *model.KB, svc *model.Service, report *Report) model.ServiceGuide {
	g := model.ServiceGuide{
		GuideID:   "guide." + strings.TrimPrefix(svc.ServiceID, "svc."),
		ServiceID: svc.ServiceID,
		AgencyID:  svc.AgencyID,
		Title:     svc.ServiceName,
		Status:    model.GuideDraft,
	}

	claims := resolveClaims(kb, svc.Claims)

	// Sectioned view, in fixed section order, claims in service order.
	bySection := make(map[string][]string)
	for _, c := range claims {
		sec := sectionFor(c.ClaimType)
		bySection[sec] = append(bySection[sec], c.ClaimID)
	}
	for _, sec := range sectionOrder {
		if ids := bySection[sec]; len(ids) > 0 {
			g.Sections = append(g.Sections, model.GuideSection{Section: sec, ClaimIDs: ids})
		}
	}

	g.Steps = synthesizeSteps(claims)
	g.Variants = synthesizeVariants(claims)
	g.OfficialLinks = composeOfficialLinks(kb, svc, claims)
	if len(g.OfficialLinks) == 0 {
		report.warnf("guide %s has no official links and no agency website fallback", g.GuideID)
	}
	return g
}

func resolveClaims(kb *model.KB, claimIDs []string) []*model.Claim {
	out := make([]*model.Claim, 0, len(claimIDs))
	for _, id := range claimIDs {
		if c := kb.ClaimByID(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// synthesizeSteps orders step claims by the best available order key and
// renumbers them sequentially. Claims without any recoverable order float to
// the end in their original relative order.
func synthesizeSteps(claims []*model.Claim) []model.GuideStep {
	type keyed struct {
		claim *model.Claim
		order int
		found bool
		pos   int
	}
	var steps []keyed
	for i, c := range claims {
		if c.ClaimType != model.ClaimTypeStep {
			continue
		}
		order, found := stepOrder(c)
		steps = append(steps, keyed{claim: c, order: order, found: found, pos: i})
	}

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].found != steps[j].found {
			return steps[i].found
		}
		if steps[i].found && steps[i].order != steps[j].order {
			return steps[i].order < steps[j].order
		}
		return steps[i].pos < steps[j].pos
	})

	out := make([]model.GuideStep, 0, len(steps))
	for i, s := range steps {
		out = append(out, model.GuideStep{
			StepNumber: i + 1,
			Title:      s.claim.Text,
			ClaimIDs:   []string{s.claim.ClaimID},
		})
	}
	return out
}

// stepOrder recovers a step's order from structured_data.order, a trailing
// integer in the claim ID, or a "step N" token in a citation locator.
func stepOrder(c *model.Claim) (int, bool) {
	if v, ok := c.StructuredData["order"]; ok {
		switch n := v.(type) {
		case float64:
			return int(n), true
		case int:
			return n, true
		}
	}
	if m := trailingIntRe.FindStringSubmatch(c.ClaimID); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	for _, cit := range c.Citations {
		if m := stepTokenRe.FindStringSubmatch(locatorText(cit.Locator)); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func locatorText(l model.Locator) string {
	switch l.Type {
	case model.LocatorHeadingPath:
		return strings.Join(l.HeadingPath, " ")
	case model.LocatorCSSSelector:
		return l.CSSSelector
	case model.LocatorXPath:
		return l.XPath
	case model.LocatorURLFragment:
		return l.URLFragment
	default:
		return ""
	}
}

// deliveryRank orders delivery types deterministically.
func deliveryRank(d string) int {
	switch d {
	case "regular":
		return 0
	case "express":
		return 1
	case "super_express":
		return 2
	default:
		return 3
	}
}

// synthesizeVariants derives delivery variants from fee claims carrying a
// structured delivery_type, pairing them with processing-time claims of the
// same delivery type.
func synthesizeVariants(claims []*model.Claim) []model.GuideVariant {
	byDelivery := make(map[string]*model.GuideVariant)
	var order []string

	register := func(delivery string) *model.GuideVariant {
		if v, ok := byDelivery[delivery]; ok {
			return v
		}
		v := &model.GuideVariant{
			VariantID: ids.Slug(delivery),
			Label:     strings.ReplaceAll(delivery, "_", " "),
		}
		byDelivery[delivery] = v
		order = append(order, delivery)
		return v
	}

	for _, c := range claims {
		delivery, _ := c.StructuredData["delivery_type"].(string)
		if delivery == "" {
			continue
		}
		switch c.ClaimType {
		case model.ClaimTypeFee:
			v := register(delivery)
			v.FeeClaimIDs = append(v.FeeClaimIDs, c.ClaimID)
		case model.ClaimTypeProcessingTime:
			v := register(delivery)
			v.ProcessingTimeClaimIDs = append(v.ProcessingTimeClaimIDs, c.ClaimID)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		ri, rj := deliveryRank(order[i]), deliveryRank(order[j])
		if ri != rj {
			return ri < rj
		}
		return order[i] < order[j]
	})

	out := make([]model.GuideVariant, 0, len(order))
	for _, d := range order {
		out = append(out, *byDelivery[d])
	}
	return out
}

// composeOfficialLinks merges portal entry URLs with portal_link claims,
// de-duplicated by URL, falling back to the agency's website page so every
// guide carries at least one link.
func composeOfficialLinks(kb *model.KB, svc *model.Service, claims []*model.Claim) []model.OfficialLink {
	seen := make(map[string]bool)
	var out []model.OfficialLink
	add := func(link model.OfficialLink) {
		if link.URL == "" || seen[link.URL] {
			return
		}
		seen[link.URL] = true
		out = append(out, link)
	}

	for _, eu := range svc.PortalMapping.EntryURLs {
		add(model.OfficialLink{URL: eu.URL, Label: eu.Description, SourcePageID: eu.SourcePageID})
	}
	for _, c := range claims {
		if c.ClaimType != model.ClaimTypePortalLink {
			continue
		}
		url, _ := c.StructuredData["url"].(string)
		if url == "" && len(c.Citations) > 0 {
			if sp := kb.SourcePageByID(c.Citations[0].SourcePageID); sp != nil {
				url = sp.CanonicalURL
			}
		}
		add(model.OfficialLink{URL: url, Label: c.Text})
	}

	if len(out) == 0 {
		if a := kb.AgencyByID(svc.AgencyID); a != nil && a.Website != "" {
			link := model.OfficialLink{URL: a.Website, Label: a.Name}
			if sp := kb.SourcePageByID(ids.SourcePageID(a.Website)); sp != nil {
				link.SourcePageID = sp.SourcePageID
			}
			add(link)
		}
	}
	return out
}

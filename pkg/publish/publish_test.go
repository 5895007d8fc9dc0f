package publish

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengovbd/provkb/pkg/ids"
	"github.com/opengovbd/provkb/pkg/model"
)

const (
	feesURL   = "https://www.epassport.gov.bd/instructions/passport-fees"
	noticeURL = "https://www.epassport.gov.bd/landing/notices/34"
)

func feeClaim(id, text, srcURL, retrievedAt, quoted string, data map[string]any) model.Claim {
	return model.Claim{
		ClaimID:        id,
		EntityRef:      model.EntityRef{Type: model.RefService, ID: "svc.epassport"},
		ClaimType:      model.ClaimTypeFee,
		Text:           text,
		StructuredData: data,
		Status:         model.ClaimVerified,
		Citations: []model.Citation{{
			SourcePageID: ids.SourcePageID(srcURL),
			QuotedText:   quoted,
			RetrievedAt:  retrievedAt,
			Locator:      model.Locator{Type: model.LocatorCSSSelector, CSSSelector: "table.fees"},
			Language:     "en",
		}},
	}
}

func publishFixture() *model.KB {
	regularData := map[string]any{"delivery_type": "regular", "pages": 48.0, "validity_years": 5.0}
	vatQuote := "Regular delivery: 4,025 BDT including 15% VAT"

	claims := []model.Claim{
		feeClaim("claim.fee.epassport.sched_new", "Regular delivery Taka 4,025", feesURL, "2025-07-01T00:00:00Z", vatQuote, regularData),
		feeClaim("claim.fee.epassport.sched_old", "Regular delivery Taka 4,025", feesURL, "2024-01-01T00:00:00Z", vatQuote, regularData),
		feeClaim("claim.fee.epassport.notice_new", "Regular delivery Taka 4,025", noticeURL, "2025-09-01T00:00:00Z", "Regular delivery: 4,025 BDT", regularData),
		feeClaim("claim.fee.epassport.notice_old", "Regular delivery Taka 4,025", noticeURL, "2024-06-01T00:00:00Z", "Regular delivery: 4,025 BDT", regularData),
		feeClaim("claim.fee.epassport.legacy", "Regular delivery Taka 4,025 in 21 working days", noticeURL, "2023-01-01T00:00:00Z",
			"Delivery within 21 working days", map[string]any{"delivery_type": "regular", "pages": 24.0, "validity_years": 5.0}),
		{
			ClaimID:   "claim.step.epassport.1",
			EntityRef: model.EntityRef{Type: model.RefService, ID: "svc.epassport"},
			ClaimType: model.ClaimTypeStep,
			Text:      "Fill in the online application form",
			Status:    model.ClaimVerified,
			Citations: []model.Citation{{
				SourcePageID: ids.SourcePageID(feesURL),
				QuotedText:   "Step 1: Fill in the online application form",
				RetrievedAt:  "2025-07-01T00:00:00Z",
				Locator:      model.Locator{Type: model.LocatorHeadingPath, HeadingPath: []string{"Apply", "Step 1"}},
			}},
		},
	}

	var claimIDs []string
	for _, c := range claims {
		claimIDs = append(claimIDs, c.ClaimID)
	}
	feeIDs := claimIDs[:5]

	return &model.KB{
		SchemaVersion: model.SchemaV3,
		DataVersion:   7,
		LastUpdatedAt: "2025-07-02T00:00:00Z",
		Agencies: []model.Agency{{
			AgencyID:        "agency.dip",
			Name:            "Department of Immigration and Passports",
			Website:         "https://www.epassport.gov.bd",
			DomainAllowlist: []string{"epassport.gov.bd"},
		}},
		SourcePages: []model.SourcePage{
			{
				SourcePageID:  ids.SourcePageID(feesURL),
				CanonicalURL:  feesURL,
				AgencyID:      "agency.dip",
				PageType:      model.PageFeeSchedule,
				Title:         "Passport Fees",
				Language:      []string{"en"},
				ContentHash:   ids.ContentHash("fees"),
				LastCrawledAt: "2025-07-01T00:00:00Z",
			},
			{
				SourcePageID:  ids.SourcePageID(noticeURL),
				CanonicalURL:  noticeURL,
				AgencyID:      "agency.dip",
				PageType:      model.PageNotice,
				Title:         "Notice 34",
				Language:      []string{"en"},
				ContentHash:   ids.ContentHash("notice"),
				LastCrawledAt: "2025-09-01T00:00:00Z",
			},
		},
		Claims: claims,
		Services: []model.Service{{
			ServiceID:   "svc.epassport",
			ServiceName: "e-Passport",
			AgencyID:    "agency.dip",
			Claims:      claimIDs,
			Status:      model.EntityVerified,
		}},
		ServiceGuides: []model.ServiceGuide{{
			GuideID:   "guide.epassport",
			ServiceID: "svc.epassport",
			AgencyID:  "agency.dip",
			Title:     "How to get an e-Passport",
			Steps: []model.GuideStep{
				{StepNumber: 1, Title: "Fill in the online application form", ClaimIDs: []string{"claim.step.epassport.1"}},
			},
			Sections: []model.GuideSection{
				{Section: "fees", ClaimIDs: feeIDs},
			},
			OfficialLinks: []model.OfficialLink{{URL: "https://www.epassport.gov.bd", Label: "e-Passport portal"}},
			Status:        model.GuidePublished,
		}},
	}
}

func TestCanonicalFeeSelection(t *testing.T) {
	bundle, diag, err := New().Publish(publishFixture(), Options{})
	require.NoError(t, err)
	assert.Empty(t, diag.Errors)

	require.Len(t, bundle.Guides.Guides, 1)
	g := bundle.Guides.Guides[0]

	// One representative for the (48 pages, 5 years, regular) group; the
	// legacy working-days row is dropped because the VAT schedule is present.
	require.Len(t, g.Fees, 1)
	fee := g.Fees[0]
	assert.Equal(t, "Regular delivery BDT 4,025", fee.Label)
	require.Len(t, fee.Citations, 1)
	assert.Equal(t, feesURL, fee.Citations[0].CanonicalURL)
	assert.Equal(t, "2025-07-01T00:00:00Z", fee.Citations[0].RetrievedAt)
}

func TestLegacyScheduleKeptWithoutVATMarker(t *testing.T) {
	kb := publishFixture()
	for i := range kb.Claims {
		for j := range kb.Claims[i].Citations {
			if kb.Claims[i].Citations[j].QuotedText == "Regular delivery: 4,025 BDT including 15% VAT" {
				kb.Claims[i].Citations[j].QuotedText = "Regular delivery: 4,025 BDT"
			}
		}
	}

	bundle, _, err := New().Publish(kb, Options{})
	require.NoError(t, err)
	g := bundle.Guides.Guides[0]

	// No VAT marker anywhere, so both groups survive, sorted by pages ASC.
	require.Len(t, g.Fees, 2)
	assert.Contains(t, g.Fees[0].Label, "working days")
	assert.Equal(t, "Regular delivery BDT 4,025", g.Fees[1].Label)
}

func TestNoInternalIdentifiersInOutput(t *testing.T) {
	bundle, _, err := New().Publish(publishFixture(), Options{})
	require.NoError(t, err)

	raw, err := json.Marshal(bundle.Guides)
	require.NoError(t, err)
	leak := regexp.MustCompile(`"(claim|source)\.`)
	assert.False(t, leak.Match(raw), "published guides must not leak internal IDs: %s", raw)

	var g GuidesFile
	require.NoError(t, json.Unmarshal(raw, &g))
	for _, guide := range g.Guides {
		for _, sec := range guide.Sections {
			for _, fact := range sec.Facts {
				for _, cit := range fact.Citations {
					assert.NotEmpty(t, cit.CanonicalURL)
				}
			}
		}
	}
}

func TestGuideMetadata(t *testing.T) {
	bundle, _, err := New().Publish(publishFixture(), Options{})
	require.NoError(t, err)
	md := bundle.Guides.Guides[0].Metadata

	assert.Equal(t, 1, md.StepCount)
	assert.Equal(t, 6, md.CitationCount, "unique reachable claims")
	assert.Equal(t, 6, md.VerificationSummary["verified"])
	assert.Equal(t, "2025-09-01T00:00:00Z", md.LastCrawledAt)
	assert.Equal(t, []string{"www.epassport.gov.bd"}, md.SourceDomains)
}

func TestVariantOnlyClaimsAreResolved(t *testing.T) {
	kb := publishFixture()
	kb.Claims = append(kb.Claims, model.Claim{
		ClaimID:        "claim.processing_time.epassport.regular",
		EntityRef:      model.EntityRef{Type: model.RefService, ID: "svc.epassport"},
		ClaimType:      model.ClaimTypeProcessingTime,
		Text:           "Regular delivery within 15 working days, fee Taka 4,025",
		StructuredData: map[string]any{"delivery_type": "regular", "days": 15.0},
		Status:         model.ClaimVerified,
		Citations: []model.Citation{{
			SourcePageID: ids.SourcePageID(feesURL),
			QuotedText:   "Regular delivery: within 15 working days",
			RetrievedAt:  "2025-07-01T00:00:00Z",
			Locator:      model.Locator{Type: model.LocatorCSSSelector, CSSSelector: "table.fees"},
		}},
	})
	kb.Services[0].Claims = append(kb.Services[0].Claims, "claim.processing_time.epassport.regular")
	// The claim is reachable only through the variant, never a step or section.
	kb.ServiceGuides[0].Variants = []model.GuideVariant{{
		VariantID:              "regular",
		Label:                  "Regular delivery",
		FeeClaimIDs:            []string{"claim.fee.epassport.sched_new"},
		ProcessingTimeClaimIDs: []string{"claim.processing_time.epassport.regular"},
	}}

	bundle, diag, err := New().Publish(kb, Options{})
	require.NoError(t, err)
	assert.Empty(t, diag.Errors)

	g := bundle.Guides.Guides[0]
	require.Len(t, g.Variants, 1)
	require.Len(t, g.Variants[0].ProcessingTimes, 1)
	assert.Equal(t, "Regular delivery within 15 working days, fee BDT 4,025", g.Variants[0].ProcessingTimes[0].Label)

	md := g.Metadata
	assert.Equal(t, 7, md.CitationCount, "the variant-only claim counts as reachable")
	assert.Equal(t, 7, md.VerificationSummary["verified"])
}

func TestSearchIndexKeywords(t *testing.T) {
	bundle, _, err := New().Publish(publishFixture(), Options{})
	require.NoError(t, err)
	require.Len(t, bundle.Index.Entries, 1)
	entry := bundle.Index.Entries[0]

	assert.Equal(t, "guide.epassport", entry.GuideID)
	assert.Contains(t, entry.Keywords, "passport")
	assert.Contains(t, entry.Keywords, "application")
	assert.Contains(t, entry.Keywords, "immigration")
	assert.NotContains(t, entry.Keywords, "to", "short tokens are excluded")
	assert.Equal(t, 1, entry.StepCount)
}

func TestGeneratedAtChain(t *testing.T) {
	fixed := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	p := New().WithClock(func() time.Time { return fixed })

	bundle, _, err := p.Publish(publishFixture(), Options{SourceTimestamp: "2025-08-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "2025-08-01T00:00:00Z", bundle.Guides.GeneratedAt)

	bundle, _, err = p.Publish(publishFixture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "2025-07-02T00:00:00Z", bundle.Guides.GeneratedAt, "falls back to last_updated_at")

	kb := publishFixture()
	kb.LastUpdatedAt = ""
	bundle, _, err = p.Publish(kb, Options{})
	require.NoError(t, err)
	assert.Equal(t, "2025-10-01T12:00:00Z", bundle.Guides.GeneratedAt, "falls back to the clock")
}

func TestPublishRequiresV3(t *testing.T) {
	kb := publishFixture()
	kb.SchemaVersion = model.SchemaV2
	_, _, err := New().Publish(kb, Options{})
	assert.Error(t, err)
}

func TestMissingClaimIsDiagnosed(t *testing.T) {
	kb := publishFixture()
	kb.ServiceGuides[0].Sections[0].ClaimIDs = append(kb.ServiceGuides[0].Sections[0].ClaimIDs, "claim.fee.epassport.ghost")

	_, diag, err := New().Publish(kb, Options{})
	require.NoError(t, err)
	require.Len(t, diag.Errors, 1)
	assert.Contains(t, diag.Errors[0], "missing claim")
}

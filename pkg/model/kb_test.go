package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaMajor(t *testing.T) {
	kb := &KB{SchemaVersion: SchemaV2}
	major, err := kb.SchemaMajor()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), major)
	assert.False(t, kb.IsV3())

	kb.SchemaVersion = SchemaV3
	assert.True(t, kb.IsV3())

	kb.SchemaVersion = "not-a-version"
	_, err = kb.SchemaMajor()
	assert.Error(t, err)
	assert.False(t, kb.IsV3())
}

func TestLookupsReturnPointersIntoDocument(t *testing.T) {
	kb := &KB{
		SchemaVersion: SchemaV2,
		SourcePages:   []SourcePage{{SourcePageID: "source.aaa"}},
		Claims:        []Claim{{ClaimID: "claim.fee.x.y", Status: ClaimVerified}},
		Agencies:      []Agency{{AgencyID: "agency.dip"}},
		Services:      []Service{{ServiceID: "svc.epassport"}},
		Documents:     []Document{{DocumentID: "doc.nid"}},
	}

	require.NotNil(t, kb.SourcePageByID("source.aaa"))
	require.NotNil(t, kb.AgencyByID("agency.dip"))
	require.NotNil(t, kb.ServiceByID("svc.epassport"))
	require.NotNil(t, kb.DocumentByID("doc.nid"))
	assert.Nil(t, kb.SourcePageByID("source.zzz"))

	// Mutating through the pointer must mutate the document.
	kb.ClaimByID("claim.fee.x.y").Status = ClaimStale
	assert.Equal(t, ClaimStale, kb.Claims[0].Status)
}

func TestClaimStatusesSkipsUnresolvable(t *testing.T) {
	kb := &KB{Claims: []Claim{
		{ClaimID: "claim.fee.x.a", Status: ClaimVerified},
		{ClaimID: "claim.fee.x.b", Status: ClaimUnverified},
	}}
	got := kb.ClaimStatuses([]string{"claim.fee.x.a", "claim.fee.x.missing", "claim.fee.x.b"})
	assert.Equal(t, []ClaimStatus{ClaimVerified, ClaimUnverified}, got)
}

func TestCloneIsDeep(t *testing.T) {
	kb := &KB{
		SchemaVersion: SchemaV2,
		Claims: []Claim{{
			ClaimID: "claim.fee.x.a",
			Status:  ClaimVerified,
			Citations: []Citation{{
				SourcePageID: "source.aaa",
				QuotedText:   "Fee: BDT 4,025",
				Locator:      Locator{Type: LocatorCSSSelector, CSSSelector: ".fee"},
			}},
		}},
	}
	snap, err := kb.Clone()
	require.NoError(t, err)

	kb.Claims[0].Status = ClaimStale
	kb.Claims[0].Citations[0].QuotedText = "mutated"
	assert.Equal(t, ClaimVerified, snap.Claims[0].Status)
	assert.Equal(t, "Fee: BDT 4,025", snap.Claims[0].Citations[0].QuotedText)
}

func TestActorGrammar(t *testing.T) {
	assert.True(t, ValidActor("system"))
	assert.True(t, ValidActor("user"))
	assert.True(t, ValidActor("script:migrate_v1-v2.go"))
	assert.False(t, ValidActor("script:"))
	assert.False(t, ValidActor("robot"))
	assert.False(t, ValidActor("script:has space"))
}

func TestClaimTypeIDSegment(t *testing.T) {
	assert.Equal(t, "doc", ClaimTypeDocumentRequirement.IDSegment())
	assert.Equal(t, "portal", ClaimTypePortalLink.IDSegment())
	assert.Equal(t, "eligibility", ClaimTypeEligibilityRequirement.IDSegment())
	assert.Equal(t, "fee", ClaimTypeFee.IDSegment())
	assert.Equal(t, "processing_time", ClaimTypeProcessingTime.IDSegment())
}

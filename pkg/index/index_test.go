package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengovbd/provkb/pkg/model"
)

func fixtureKB() *model.KB {
	cite := func(src string) []model.Citation {
		return []model.Citation{{
			SourcePageID: src,
			QuotedText:   "quoted",
			Locator:      model.Locator{Type: model.LocatorCSSSelector, CSSSelector: ".x"},
		}}
	}
	return &model.KB{
		SchemaVersion: model.SchemaV2,
		SourcePages: []model.SourcePage{
			{SourcePageID: "source.aaa", CanonicalURL: "https://epassport.gov.bd/fees"},
			{SourcePageID: "source.bbb", CanonicalURL: "https://epassport.gov.bd/apply"},
		},
		Claims: []model.Claim{
			{
				ClaimID:   "claim.fee.epassport.regular",
				EntityRef: model.EntityRef{Type: model.RefService, ID: "svc.epassport"},
				ClaimType: model.ClaimTypeFee,
				Status:    model.ClaimVerified,
				Citations: cite("source.aaa"),
			},
			{
				ClaimID:   "claim.doc.nid.copy",
				EntityRef: model.EntityRef{Type: model.RefDocument, ID: "doc.nid"},
				ClaimType: model.ClaimTypeDocumentRequirement,
				Status:    model.ClaimVerified,
				Citations: cite("source.bbb"),
			},
		},
		Services: []model.Service{{
			ServiceID: "svc.epassport",
			Claims:    []string{"claim.fee.epassport.regular", "claim.ghost.gone.x"},
		}},
		Documents: []model.Document{{
			DocumentID: "doc.nid",
			Claims:     []string{"claim.doc.nid.copy"},
		}},
	}
}

func TestBuildFull(t *testing.T) {
	idx := Build(fixtureKB())

	assert.Equal(t, []string{"claim.fee.epassport.regular"}, idx.ClaimsByService["svc.epassport"])
	assert.Equal(t, []string{"claim.doc.nid.copy"}, idx.ClaimsByDocument["doc.nid"])
	assert.Equal(t, []string{"claim.fee.epassport.regular"}, idx.ClaimsBySourcePage["source.aaa"])
	assert.Equal(t, []string{"claim.doc.nid.copy"}, idx.ClaimsBySourcePage["source.bbb"])
}

func TestBuildKeysEveryEntity(t *testing.T) {
	kb := fixtureKB()
	kb.SourcePages = append(kb.SourcePages, model.SourcePage{SourcePageID: "source.ccc"})
	idx := Build(kb)

	claims, ok := idx.ClaimsBySourcePage["source.ccc"]
	require.True(t, ok, "uncited source page still gets a key")
	assert.Empty(t, claims)
}

func TestIncrementalEqualsFullAfterDeleteAndAdd(t *testing.T) {
	d0 := fixtureKB()
	baseline := Build(d0)

	// D1: delete one claim, add another citing a new source page.
	d1 := fixtureKB()
	d1.Claims = d1.Claims[:1]
	d1.SourcePages = append(d1.SourcePages, model.SourcePage{SourcePageID: "source.new"})
	d1.Claims = append(d1.Claims, model.Claim{
		ClaimID:   "claim.step.epassport.1",
		EntityRef: model.EntityRef{Type: model.RefService, ID: "svc.epassport"},
		ClaimType: model.ClaimTypeStep,
		Status:    model.ClaimUnverified,
		Citations: []model.Citation{{
			SourcePageID: "source.new",
			QuotedText:   "Step 1",
			Locator:      model.Locator{Type: model.LocatorURLFragment, URLFragment: "#step1"},
		}},
	})

	full := Build(d1)
	incr := BuildIncremental(d1, baseline, Diff{
		ChangedClaimIDs:      []string{"claim.doc.nid.copy", "claim.step.epassport.1"},
		ChangedSourcePageIDs: []string{"source.new"},
	})
	assert.Equal(t, full, incr)

	fullBytes, err := Encode(full.ClaimsBySourcePage)
	require.NoError(t, err)
	incrBytes, err := Encode(incr.ClaimsBySourcePage)
	require.NoError(t, err)
	assert.Equal(t, fullBytes, incrBytes, "serialized indexes must be byte-identical")
}

func TestIncrementalDropsRemovedSourcePageKeys(t *testing.T) {
	d0 := fixtureKB()
	baseline := Build(d0)

	d1 := fixtureKB()
	d1.SourcePages = d1.SourcePages[:1] // drop source.bbb
	d1.Claims = d1.Claims[:1]           // and the claim citing it
	d1.Documents[0].Claims = nil

	incr := BuildIncremental(d1, baseline, Diff{ChangedClaimIDs: []string{"claim.doc.nid.copy"}})
	_, ok := incr.ClaimsBySourcePage["source.bbb"]
	assert.False(t, ok)
	assert.Equal(t, Build(d1), incr)
}

func TestIncrementalChangedSourceWidensClaimSet(t *testing.T) {
	d0 := fixtureKB()
	baseline := Build(d0)

	// Re-point the fee claim's citation to source.bbb without naming the
	// claim in the diff; the changed source must pull it in.
	d1 := fixtureKB()
	d1.Claims[0].Citations[0].SourcePageID = "source.bbb"

	incr := BuildIncremental(d1, baseline, Diff{ChangedSourcePageIDs: []string{"source.aaa", "source.bbb"}})
	assert.Equal(t, Build(d1), incr)
}

func TestIncrementalEmptyDiffFallsBackToFull(t *testing.T) {
	kb := fixtureKB()
	assert.Equal(t, Build(kb), BuildIncremental(kb, Build(kb), Diff{}))
	assert.Equal(t, Build(kb), BuildIncremental(kb, nil, Diff{ChangedClaimIDs: []string{"x"}}))
}

func TestEncodeDeterministic(t *testing.T) {
	idx := Index{
		"svc.b": {"claim.fee.b.x"},
		"svc.a": {"claim.fee.a.y", "claim.fee.a.x"},
	}
	a, err := Encode(idx)
	require.NoError(t, err)
	b, err := Encode(Index{
		"svc.a": {"claim.fee.a.y", "claim.fee.a.x"},
		"svc.b": {"claim.fee.b.x"},
	})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	decoded, err := Decode(a)
	require.NoError(t, err)
	assert.Equal(t, idx, decoded)
}

package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcePageIDKnownVector(t *testing.T) {
	id := SourcePageID("https://www.epassport.gov.bd/instructions/passport-fees")
	assert.Equal(t, "source.3e85c919aeef3918a889d306a1c11deb23639bf9", id)
	assert.Len(t, id, len("source.")+40)
	assert.True(t, ValidSourcePageID(id))
}

func TestSourcePageIDDeterministic(t *testing.T) {
	url := "https://epassport.gov.bd/apply"
	assert.Equal(t, SourcePageID(url), SourcePageID(url))
	assert.Equal(t, "source.ddcfda9d1ae0dc07262ab78ddb5ec5a00d9afda2", SourcePageID(url))
}

func TestEventIDNormalizesAffected(t *testing.T) {
	a, err := EventID("source_change", "2025-01-01T00:00:00Z", map[string][]string{
		"source_pages": {"source.b", "source.a"},
		"claims":       {},
	})
	require.NoError(t, err)
	b, err := EventID("source_change", "2025-01-01T00:00:00Z", map[string][]string{
		"source_pages": {"source.a", "source.b"},
	})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, ValidEventID(a))
}

func TestEventIDDependsOnInputs(t *testing.T) {
	a, err := EventID("source_change", "2025-01-01T00:00:00Z", nil)
	require.NoError(t, err)
	b, err := EventID("claim_invalidation", "2025-01-01T00:00:00Z", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestClaimID(t *testing.T) {
	assert.Equal(t, "claim.fee.epassport.regular_48p_5y", ClaimID("fee", "svc.epassport", "Regular 48p 5y"))
	assert.Equal(t, "claim.step.epassport.3", ClaimID("step", "svc.epassport", "3"))
	assert.True(t, ValidClaimID(ClaimID("fee", "svc.epassport", "Regular 48p 5y")))
	assert.True(t, ValidClaimID(ClaimID("step", "svc.epassport", "3")))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "passport_fees", Slug("Passport Fees!"))
	assert.Equal(t, "a_b_c", Slug("__A--B--C__"))
	assert.Equal(t, "", Slug("!!!"))
}

func TestNormalizeStripsVolatileContent(t *testing.T) {
	raw := `<div data-timestamp="2025-01-02T10:00:00Z" data-session="abc123">Fee:   4,025 BDT
	updated 2025-01-02T10:00:00+06:00</div>`
	assert.Equal(t, `<div >Fee: 4,025 BDT updated </div>`, Normalize(raw))
}

func TestContentHashIgnoresTimestampChurn(t *testing.T) {
	a := ContentHash(`Fees <span data-timestamp="2025-01-01T00:00:00Z">4025</span>`)
	b := ContentHash(`Fees <span data-timestamp="2025-06-30T23:59:59Z">4025</span>`)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestContentHashKnownVector(t *testing.T) {
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ContentHash("hello   world"))
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "epassport.gov.bd", NormalizeDomain(" .EPassport.Gov.BD/path/x. "))
	assert.Equal(t, "nidw.gov.bd", NormalizeDomain("nidw.gov.bd"))
}

func TestNormalizeHost(t *testing.T) {
	host, ok := NormalizeHost("https://WWW.EPassport.gov.bd/apply?x=1")
	require.True(t, ok)
	assert.Equal(t, "www.epassport.gov.bd", host)

	_, ok = NormalizeHost("not a url ://")
	assert.False(t, ok)

	_, ok = NormalizeHost("/relative/only")
	assert.False(t, ok)
}

func TestHostMatchesDomain(t *testing.T) {
	assert.True(t, HostMatchesDomain("epassport.gov.bd", "epassport.gov.bd"))
	assert.True(t, HostMatchesDomain("www.epassport.gov.bd", "epassport.gov.bd"))
	// Typosquat: no dot boundary, must not match.
	assert.False(t, HostMatchesDomain("epassport-gov.bd", "epassport.gov.bd"))
	assert.False(t, HostMatchesDomain("gov.bd", "epassport.gov.bd"))
	assert.False(t, HostMatchesDomain("", "epassport.gov.bd"))
}

func TestIdentifierPatterns(t *testing.T) {
	assert.True(t, ValidAgencyID("agency.dip"))
	assert.True(t, ValidAgencyID("agency.auto_0a1b2c3d4e5f"))
	assert.False(t, ValidAgencyID("agency.DIP"))
	assert.True(t, ValidServiceID("svc.epassport"))
	assert.False(t, ValidServiceID("service.epassport"))
	assert.True(t, ValidDocumentID("doc.nid_card"))
	assert.True(t, ValidGuideID("guide.epassport"))
	assert.False(t, ValidClaimID("claim.step.epassport.first"))
	assert.True(t, ValidClaimID("claim.processing_time.epassport"))
	assert.True(t, ValidClaimID("claim.eligibility.epassport.age"))
	assert.False(t, ValidClaimID("claim.unknown.epassport.x"))
}

package publish

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// EpassportGuideID selects the ePassport fee canonicalization rules.
const EpassportGuideID = "guide.epassport"

// The fee-schedule page is the authoritative source; notices and landing
// pages only echo it.
const feeSchedulePathSegment = "/instructions/passport-fees"

var (
	pagesRe    = regexp.MustCompile(`([0-9]+)\s*page`)
	validityRe = regexp.MustCompile(`([0-9]+)\s*(?:year|yr)`)
)

// Markers of the VAT-inclusive fee schedule and of the legacy schedule it
// replaced.
var (
	vatMarkers    = []string{"including 15% vat", "15% vat"}
	legacyMarkers = []string{"working days", "passport fees > e-passport fees"}
)

// EpassportFees collapses the redundant ePassport fee schedule into one
// canonical row per (delivery type, pages, validity) group, preferring the
// official fee-schedule page and the freshest crawl.
type EpassportFees struct{}

type feeKey struct {
	delivery string
	pages    int
	validity int
}

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

func (EpassportFees) Canonicalize(g *PublicGuide) {
	if len(g.Fees) == 0 {
		return
	}

	vatPresent := false
	for _, f := range g.Fees {
		if factHasVATMarker(f) {
			vatPresent = true
			break
		}
	}

	groups := make(map[feeKey]PublicFact)
	var order []feeKey
	for _, f := range g.Fees {
		key := parseFeeKey(f)
		best := bestCitation(f.Citations)
		candidate := f
		if best != nil {
			candidate.Citations = []PublicCitation{*best}
		}

		current, exists := groups[key]
		if !exists {
			groups[key] = candidate
			order = append(order, key)
			continue
		}
		if citationOutranks(candidate.Citations, current.Citations) {
			groups[key] = candidate
		}
	}

	out := make([]PublicFact, 0, len(order))
	for _, key := range order {
		f := groups[key]
		if vatPresent && factHasLegacyMarker(f) {
			continue
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := parseFeeKey(out[i]), parseFeeKey(out[j])
		if a.pages != b.pages {
			return a.pages < b.pages
		}
		if a.validity != b.validity {
			return a.validity < b.validity
		}
		return deliveryRank(a.delivery) < deliveryRank(b.delivery)
	})

	g.Fees = out
	for i := range g.Sections {
		if g.Sections[i].Section == "fees" {
			g.Sections[i].Facts = out
		}
	}
}

// parseFeeKey recovers the grouping key from structured data first, label
// text second.
func parseFeeKey(f PublicFact) feeKey {
	key := feeKey{delivery: "other"}
	label := strings.ToLower(f.Label)

	if d, ok := f.StructuredData["delivery_type"].(string); ok && d != "" {
		key.delivery = d
	} else if strings.Contains(label, "super express") || strings.Contains(label, "super_express") {
		key.delivery = "super_express"
	} else if strings.Contains(label, "express") {
		key.delivery = "express"
	} else if strings.Contains(label, "regular") {
		key.delivery = "regular"
	}

	key.pages = intFrom(f.StructuredData, "pages", pagesRe, label)
	key.validity = intFrom(f.StructuredData, "validity_years", validityRe, label)
	return key
}

func intFrom(data map[string]any, field string, re *regexp.Regexp, label string) int {
	switch v := data[field].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	if m := re.FindStringSubmatch(label); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

// bestCitation ranks a fact's citations: fee-schedule URLs beat everything,
// then the freshest retrieved_at wins.
func bestCitation(citations []PublicCitation) *PublicCitation {
	var best *PublicCitation
	for i := range citations {
		c := &citations[i]
		if best == nil || outranks(c, best) {
			best = c
		}
	}
	return best
}

func outranks(a, b *PublicCitation) bool {
	aSched := strings.Contains(a.CanonicalURL, feeSchedulePathSegment)
	bSched := strings.Contains(b.CanonicalURL, feeSchedulePathSegment)
	if aSched != bSched {
		return aSched
	}
	return a.RetrievedAt > b.RetrievedAt
}

func citationOutranks(a, b []PublicCitation) bool {
	if len(a) == 0 {
		return false
	}
	if len(b) == 0 {
		return true
	}
	return outranks(&a[0], &b[0])
}

func factHasVATMarker(f PublicFact) bool {
	return scanCitations(f, func(text string) bool {
		for _, m := range vatMarkers {
			if strings.Contains(text, m) {
				return true
			}
		}
		return strings.Contains(text, "vat") && strings.Contains(text, "inside bangladesh")
	})
}

func factHasLegacyMarker(f PublicFact) bool {
	return scanCitations(f, func(text string) bool {
		for _, m := range legacyMarkers {
			if strings.Contains(text, m) {
				return true
			}
		}
		return false
	})
}

func scanCitations(f PublicFact, match func(string) bool) bool {
	for _, c := range f.Citations {
		text := strings.ToLower(c.Locator + " " + c.QuotedText)
		if match(text) {
			return true
		}
	}
	return false
}

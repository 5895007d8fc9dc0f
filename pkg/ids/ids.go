// Package ids implements the deterministic identifier scheme and content
// hashing for the knowledge base. Every function is pure: the same input
// always yields the same identifier, so IDs can be recomputed and checked
// by the validator.
package ids

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/opengovbd/provkb/pkg/canonicalize"
)

// SourcePageID derives the registry identifier for a canonical URL.
// The value is "source." followed by the lowercase hex SHA-1 of the URL bytes.
func SourcePageID(canonicalURL string) string {
	sum := sha1.Sum([]byte(canonicalURL))
	return "source." + hex.EncodeToString(sum[:])
}

// EventID derives the identifier for an audit event from its type, timestamp
// and normalized affected-entity buckets. Bucket arrays are sorted, empty
// buckets dropped, and the whole map serialized canonically before hashing.
func EventID(eventType, timestamp string, affected map[string][]string) (string, error) {
	normalized := NormalizeAffected(affected)
	payload, err := canonicalize.JCSString(normalized)
	if err != nil {
		return "", fmt.Errorf("event id: %w", err)
	}
	sum := sha1.Sum([]byte(eventType + "|" + timestamp + "|" + payload))
	return "evt." + hex.EncodeToString(sum[:]), nil
}

// NormalizeAffected sorts each bucket alphabetically and drops empty buckets.
// The result is safe to canonicalize and hash.
func NormalizeAffected(affected map[string][]string) map[string][]string {
	out := make(map[string][]string, len(affected))
	for bucket, entries := range affected {
		if len(entries) == 0 {
			continue
		}
		sorted := append([]string(nil), entries...)
		sort.Strings(sorted)
		out[bucket] = sorted
	}
	return out
}

// ClaimID derives a claim identifier from its type, owning entity and suffix.
// The entity's "svc."/"doc." prefix is stripped before slugging.
func ClaimID(claimType, entityID, suffix string) string {
	bare := entityID
	if i := strings.Index(bare, "."); i >= 0 {
		bare = bare[i+1:]
	}
	return "claim." + claimType + "." + Slug(bare) + "." + Slug(suffix)
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9_]+`)

// Slug lowercases s, replaces every run of characters outside [a-z0-9_] with
// a single underscore, and strips leading and trailing underscores.
func Slug(s string) string {
	s = nonSlugChars.ReplaceAllString(strings.ToLower(s), "_")
	return strings.Trim(s, "_")
}

var (
	isoTimestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	volatileAttrRe = regexp.MustCompile(`data-(?:timestamp|session)="[^"]*"`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// Normalize strips the volatile parts of crawled page content so that
// cosmetic re-renders do not register as changes: ISO-8601 timestamp
// substrings, data-timestamp/data-session attributes, and whitespace runs.
// Text is NFC-normalized first so byte-level Unicode variance cannot leak
// into the hash.
func Normalize(raw string) string {
	s := norm.NFC.String(raw)
	s = isoTimestampRe.ReplaceAllString(s, "")
	s = volatileAttrRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ContentHash returns the SHA-256 hex digest of the normalized content.
func ContentHash(raw string) string {
	sum := sha256.Sum256([]byte(Normalize(raw)))
	return hex.EncodeToString(sum[:])
}

// NormalizeDomain lowercases a configured domain, strips leading/trailing
// dots, and drops any path segment after the first slash.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if i := strings.Index(d, "/"); i >= 0 {
		d = d[:i]
	}
	return strings.Trim(d, ".")
}

// NormalizeHost extracts the lowercased hostname of a URL. The second return
// value is false when the URL does not parse or has no host; callers decide
// policy.
func NormalizeHost(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	return host, true
}

// HostMatchesDomain reports whether host is the domain itself or a subdomain
// of it. Matching requires either equality or a literal dot boundary, so
// typosquats like "epassport-gov.bd" never match "epassport.gov.bd".
func HostMatchesDomain(host, domain string) bool {
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

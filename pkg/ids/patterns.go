package ids

import "regexp"

// Identifier shapes accepted by the validator. Any other shape is a hard
// failure, never a warning.
var (
	agencyIDRe     = regexp.MustCompile(`^agency\.[a-z0-9_]+$`)
	sourcePageIDRe = regexp.MustCompile(`^source\.[0-9a-f]{40}$`)
	serviceIDRe    = regexp.MustCompile(`^svc\.[a-z0-9_]+$`)
	documentIDRe   = regexp.MustCompile(`^doc\.[a-z0-9_]+$`)
	guideIDRe      = regexp.MustCompile(`^guide\.[a-z0-9_]+$`)
	eventIDRe      = regexp.MustCompile(`^evt\.[0-9a-f]{40}$`)

	claimIDRes = []*regexp.Regexp{
		regexp.MustCompile(`^claim\.fee\.[a-z0-9_]+\.[a-z0-9_]+$`),
		regexp.MustCompile(`^claim\.step\.[a-z0-9_]+\.[0-9]+$`),
		regexp.MustCompile(`^claim\.doc\.[a-z0-9_]+\.[a-z0-9_]+$`),
		regexp.MustCompile(`^claim\.portal\.[a-z0-9_]+\.[a-z0-9_]+$`),
		regexp.MustCompile(`^claim\.(eligibility|processing_time|rule|condition|definition|location|contact_info|other)\.[a-z0-9_]+(\.[a-z0-9_]+)?$`),
	}
)

// ValidAgencyID reports whether id matches agency.<slug>.
func ValidAgencyID(id string) bool { return agencyIDRe.MatchString(id) }

// ValidSourcePageID reports whether id matches source.<40 hex>.
func ValidSourcePageID(id string) bool { return sourcePageIDRe.MatchString(id) }

// ValidServiceID reports whether id matches svc.<slug>.
func ValidServiceID(id string) bool { return serviceIDRe.MatchString(id) }

// ValidDocumentID reports whether id matches doc.<slug>.
func ValidDocumentID(id string) bool { return documentIDRe.MatchString(id) }

// ValidGuideID reports whether id matches guide.<slug>.
func ValidGuideID(id string) bool { return guideIDRe.MatchString(id) }

// ValidEventID reports whether id matches evt.<40 hex>.
func ValidEventID(id string) bool { return eventIDRe.MatchString(id) }

// ValidClaimID reports whether id matches one of the accepted claim patterns.
func ValidClaimID(id string) bool {
	for _, re := range claimIDRes {
		if re.MatchString(id) {
			return true
		}
	}
	return false
}

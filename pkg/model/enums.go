package model

import "regexp"

// ClaimStatus is the verification state of a single claim.
type ClaimStatus string

const (
	ClaimVerified     ClaimStatus = "verified"
	ClaimUnverified   ClaimStatus = "unverified"
	ClaimStale        ClaimStatus = "stale"
	ClaimDeprecated   ClaimStatus = "deprecated"
	ClaimContradicted ClaimStatus = "contradicted"
)

var validClaimStatus = map[ClaimStatus]bool{
	ClaimVerified:     true,
	ClaimUnverified:   true,
	ClaimStale:        true,
	ClaimDeprecated:   true,
	ClaimContradicted: true,
}

// ValidClaimStatus reports whether s is a member of the claim status enum.
func ValidClaimStatus(s ClaimStatus) bool { return validClaimStatus[s] }

// EntityStatus is the derived verification state of a service or document.
// "partial" is reserved for mixed verified/unverified claim sets.
type EntityStatus string

const (
	EntityVerified     EntityStatus = "verified"
	EntityPartial      EntityStatus = "partial"
	EntityUnverified   EntityStatus = "unverified"
	EntityStale        EntityStatus = "stale"
	EntityDeprecated   EntityStatus = "deprecated"
	EntityContradicted EntityStatus = "contradicted"
)

var validEntityStatus = map[EntityStatus]bool{
	EntityVerified:     true,
	EntityPartial:      true,
	EntityUnverified:   true,
	EntityStale:        true,
	EntityDeprecated:   true,
	EntityContradicted: true,
}

// ValidEntityStatus reports whether s is a member of the entity status enum.
func ValidEntityStatus(s EntityStatus) bool { return validEntityStatus[s] }

// GuideStatus is the publication state of a service guide.
type GuideStatus string

const (
	GuideDraft     GuideStatus = "draft"
	GuidePublished GuideStatus = "published"
	GuideArchived  GuideStatus = "archived"
)

var validGuideStatus = map[GuideStatus]bool{
	GuideDraft:     true,
	GuidePublished: true,
	GuideArchived:  true,
}

// ValidGuideStatus reports whether s is a member of the guide status enum.
func ValidGuideStatus(s GuideStatus) bool { return validGuideStatus[s] }

// PageType classifies a registered source page.
type PageType string

const (
	PageMainPortal  PageType = "main_portal"
	PageInstruction PageType = "instruction"
	PageFeeSchedule PageType = "fee_schedule"
	PageForm        PageType = "form"
	PageNotice      PageType = "notice"
	PageRegulation  PageType = "regulation"
	PageOther       PageType = "other"
)

var validPageType = map[PageType]bool{
	PageMainPortal:  true,
	PageInstruction: true,
	PageFeeSchedule: true,
	PageForm:        true,
	PageNotice:      true,
	PageRegulation:  true,
	PageOther:       true,
}

// ValidPageType reports whether p is a member of the page type enum.
func ValidPageType(p PageType) bool { return validPageType[p] }

// Languages the KB records content in.
const (
	LanguageBN = "bn"
	LanguageEN = "en"
)

var validLanguage = map[string]bool{LanguageBN: true, LanguageEN: true}

// ValidLanguage reports whether l is a declared language code.
func ValidLanguage(l string) bool { return validLanguage[l] }

// ClaimType classifies what kind of fact a claim states.
type ClaimType string

const (
	ClaimTypeFee                    ClaimType = "fee"
	ClaimTypeStep                   ClaimType = "step"
	ClaimTypeDocumentRequirement    ClaimType = "document_requirement"
	ClaimTypeProcessingTime         ClaimType = "processing_time"
	ClaimTypeEligibilityRequirement ClaimType = "eligibility_requirement"
	ClaimTypePortalLink             ClaimType = "portal_link"
	ClaimTypeRule                   ClaimType = "rule"
	ClaimTypeCondition              ClaimType = "condition"
	ClaimTypeDefinition             ClaimType = "definition"
	ClaimTypeLocation               ClaimType = "location"
	ClaimTypeContactInfo            ClaimType = "contact_info"
	ClaimTypeOther                  ClaimType = "other"
)

var validClaimType = map[ClaimType]bool{
	ClaimTypeFee:                    true,
	ClaimTypeStep:                   true,
	ClaimTypeDocumentRequirement:    true,
	ClaimTypeProcessingTime:         true,
	ClaimTypeEligibilityRequirement: true,
	ClaimTypePortalLink:             true,
	ClaimTypeRule:                   true,
	ClaimTypeCondition:              true,
	ClaimTypeDefinition:             true,
	ClaimTypeLocation:               true,
	ClaimTypeContactInfo:            true,
	ClaimTypeOther:                  true,
}

// ValidClaimType reports whether c is a member of the claim type enum.
func ValidClaimType(c ClaimType) bool { return validClaimType[c] }

// IDSegment returns the claim-identifier segment used for this claim type,
// e.g. document_requirement claims are identified as "claim.doc.…".
func (c ClaimType) IDSegment() string {
	switch c {
	case ClaimTypeDocumentRequirement:
		return "doc"
	case ClaimTypePortalLink:
		return "portal"
	case ClaimTypeEligibilityRequirement:
		return "eligibility"
	default:
		return string(c)
	}
}

// RequiresStructuredData reports whether claims of this type must carry a
// structured_data record.
func (c ClaimType) RequiresStructuredData() bool {
	return c == ClaimTypeFee || c == ClaimTypeProcessingTime
}

// EventType categorizes an audit event.
type EventType string

const (
	EventSourceChange      EventType = "source_change"
	EventClaimInvalidation EventType = "claim_invalidation"
	EventVerification      EventType = "verification"
	EventMigration         EventType = "migration"
)

var validEventType = map[EventType]bool{
	EventSourceChange:      true,
	EventClaimInvalidation: true,
	EventVerification:      true,
	EventMigration:         true,
}

// ValidEventType reports whether e is a member of the event type enum.
func ValidEventType(e EventType) bool { return validEventType[e] }

// Entity reference kinds a claim may point at.
const (
	RefService  = "service"
	RefDocument = "document"
)

var actorRe = regexp.MustCompile(`^(system|user|script:[A-Za-z0-9_.\-]+)$`)

// ValidActor reports whether actor matches the accepted actor grammar.
func ValidActor(actor string) bool { return actorRe.MatchString(actor) }

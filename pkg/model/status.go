package model

// DeriveEntityStatus computes the status of a service or document from the
// statuses of the claims it references. The cascade never overstates: an
// entity is verified only when every claim is, and any negative signal
// (deprecated, contradicted, stale) wins over partial verification.
func DeriveEntityStatus(statuses []ClaimStatus) EntityStatus {
	if len(statuses) == 0 {
		return EntityUnverified
	}

	allVerified := true
	var anyDeprecated, anyContradicted, anyStale, anyVerified, anyUnverified bool
	for _, s := range statuses {
		if s != ClaimVerified {
			allVerified = false
		}
		switch s {
		case ClaimDeprecated:
			anyDeprecated = true
		case ClaimContradicted:
			anyContradicted = true
		case ClaimStale:
			anyStale = true
		case ClaimVerified:
			anyVerified = true
		case ClaimUnverified:
			anyUnverified = true
		}
	}

	switch {
	case allVerified:
		return EntityVerified
	case anyDeprecated:
		return EntityDeprecated
	case anyContradicted:
		return EntityContradicted
	case anyStale:
		return EntityStale
	case anyVerified && anyUnverified:
		return EntityPartial
	default:
		return EntityUnverified
	}
}

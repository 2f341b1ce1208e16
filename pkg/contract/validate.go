package contract

import (
	"strings"
	"time"

	"github.com/clauseworks/contractd/pkg/fault"
)

// ValidateParties enforces the party invariant: at least two parties,
// case-insensitively unique emails, and at least one CLIENT and one COMPANY
// role.
func ValidateParties(parties []Party) error {
	if len(parties) < 2 {
		return fault.Validation("contract requires at least 2 parties, got %d", len(parties))
	}

	seen := make(map[string]bool, len(parties))
	var hasClient, hasCompany bool
	for _, p := range parties {
		email := strings.ToLower(strings.TrimSpace(p.Email))
		if email == "" {
			return fault.Validation("party %q has no email", p.Name)
		}
		if seen[email] {
			return fault.Validation("duplicate party email %q", email)
		}
		seen[email] = true

		switch p.Role {
		case RoleClient:
			hasClient = true
		case RoleCompany:
			hasCompany = true
		case RoleWitness:
		default:
			return fault.Validation("unknown party role %q", p.Role)
		}
	}

	if !hasClient {
		return fault.Validation("contract requires at least one CLIENT party")
	}
	if !hasCompany {
		return fault.Validation("contract requires at least one COMPANY party")
	}
	return nil
}

// ValidateDates enforces endDate > startDate whenever an end date is set.
func ValidateDates(start time.Time, end *time.Time) error {
	if end != nil && !end.After(start) {
		return fault.Validation("end date %s must be after start date %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

package sync

import (
	"strings"

	"github.com/bcgov/ago-group-sync/internal/portal"
	"golang.org/x/text/cases"
)

const (
	// GovernmentUsernameMarker appears in the username of every IDIR-backed account.
	GovernmentUsernameMarker = "_governmentofbc"
	// GovernmentEmailSuffix ends the email of every government employee.
	GovernmentEmailSuffix = "@gov.bc.ca"
)

// FilterGovernmentUsers keeps users whose username carries the government
// marker and whose email ends in the government domain, in input order.
func FilterGovernmentUsers(users []portal.User) []portal.User {
	var govt []portal.User
	for _, u := range users {
		if strings.Contains(u.Username, GovernmentUsernameMarker) && strings.HasSuffix(u.Email, GovernmentEmailSuffix) {
			govt = append(govt, u)
		}
	}
	return govt
}

// ComputeMissingUsers returns the usernames of candidates that are not in
// members, in candidate order and without duplicates. Usernames compare
// case-insensitively: the portal treats "JSmith_governmentofbc" and
// "jsmith_governmentofbc" as one account, so an exact match would resubmit
// members whose stored spelling differs in case.
func ComputeMissingUsers(candidates []portal.User, members []string) []string {
	fold := cases.Fold()

	current := make(map[string]struct{}, len(members))
	for _, m := range members {
		current[fold.String(strings.TrimSpace(m))] = struct{}{}
	}

	var missing []string
	for _, u := range candidates {
		key := fold.String(strings.TrimSpace(u.Username))
		if key == "" {
			continue
		}
		if _, exists := current[key]; exists {
			continue
		}
		// Mark as seen so repeated candidates are submitted once.
		current[key] = struct{}{}
		missing = append(missing, u.Username)
	}
	return missing
}

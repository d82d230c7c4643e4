// internal/app/system/authz/roles.go
package authz

import (
	"net/http"
	"strings"
)

// HasAnyRole reports whether the user's role in the current organization
// (set by RequireOrgMember) is any of the given roles.
// Returns false outside an organization-scoped route.
func HasAnyRole(r *http.Request, roles ...string) bool {
	access, ok := CurrentOrg(r)
	if !ok {
		return false
	}
	for _, want := range roles {
		if access.Role == strings.ToLower(strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}

// HasRole is a convenience wrapper for a single role.
func HasRole(r *http.Request, role string) bool {
	return HasAnyRole(r, role)
}

package workos

import (
	"fmt"
	"unicode/utf8"
)

// Organization is an identity-provider organization.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Role is the role object attached to a membership.
type Role struct {
	Slug string `json:"slug"`
}

// OrganizationMembership links a user to an organization.
type OrganizationMembership struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name,omitempty"`
	Role             *Role  `json:"role,omitempty"`
	Status           string `json:"status,omitempty"`
}

// Membership statuses reported by the provider.
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusInactive = "inactive"
)

// Active reports whether the membership grants access. An empty status is
// treated as active for providers that omit the field.
func (m OrganizationMembership) Active() bool {
	return m.Status == "" || m.Status == StatusActive
}

// RoleSlug returns the membership's role slug, or def when none is set.
func (m OrganizationMembership) RoleSlug(def string) string {
	if m.Role == nil || m.Role.Slug == "" {
		return def
	}
	return m.Role.Slug
}

type listMetadata struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

type listResponse[T any] struct {
	Data         []T          `json:"data"`
	ListMetadata listMetadata `json:"list_metadata"`
}

// APIError is returned for any non-2xx response. It aborts the whole fetch.
type APIError struct {
	Status int
	Body   string
	Path   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		n := 512
		for n > 0 && !utf8.RuneStart(body[n]) {
			n--
		}
		body = body[:n] + "…"
	}
	return fmt.Sprintf("workos: %s: status %d: %s", e.Path, e.Status, body)
}

// Retryable reports whether a later attempt might succeed.
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

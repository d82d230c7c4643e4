// internal/app/features/memberships/routes.go
package memberships

import (
	"net/http"

	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/dalemusser/agentcanvas/internal/app/system/authz"
	"github.com/dalemusser/agentcanvas/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// RoleAdmin is the organization role allowed to list members.
const RoleAdmin = "admin"

// MountRoutes registers the membership API on r. All routes require a
// signed-in user. limiter, when non-nil, bounds on-demand syncs per user.
func MountRoutes(r chi.Router, h *Handler, sm *auth.SessionManager, limiter *ratelimit.Limiter) {
	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/api/memberships", h.ServeList)

		syncRoute := pr.With()
		if limiter != nil {
			syncRoute = pr.With(ratelimit.Middleware(limiter, byUser))
		}
		syncRoute.Post("/api/memberships/sync", h.ServeSync)

		pr.With(authz.RequireOrgMember(h.RoleLookup(), "orgID", h.Log)).
			Get("/api/orgs/{orgID}/membership", h.ServeOrgMembership)
		pr.With(authz.RequireOrgMember(h.RoleLookup(), "orgID", h.Log, RoleAdmin)).
			Get("/api/orgs/{orgID}/members", h.ServeOrgMembers)
	})
}

// byUser keys the sync limiter by signed-in user.
func byUser(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok {
		return "sync:" + u.ID
	}
	return ""
}

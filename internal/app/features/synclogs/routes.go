// internal/app/features/synclogs/routes.go
package synclogs

import (
	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/dalemusser/agentcanvas/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the sync log routes under the path where this router is
// mounted (typically "/api/admin/sync-logs" from bootstrap).
//
// Access is restricted to admins of adminOrgID. With no admin organization
// configured every request is refused.
func Routes(h *Handler, sm *auth.SessionManager, lookup authz.RoleLookup, adminOrgID string) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Use(authz.RequireFixedOrgRole(lookup, adminOrgID, h.Log, "admin"))

		pr.Get("/", h.ServeList)
	})

	return r
}

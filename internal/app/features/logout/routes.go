// internal/app/features/logout/routes.go
package logout

import (
	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers GET /logout on r, which is expected to be the /auth
// sub-router.
func MountRoutes(r chi.Router, h *Handler, sm *auth.SessionManager) {
	// Only allow signed-in users to hit /logout.
	r.With(sm.RequireSignedIn).Get("/logout", h.ServeLogout)
}

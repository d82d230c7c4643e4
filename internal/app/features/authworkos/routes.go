// internal/app/features/authworkos/routes.go
package authworkos

import "github.com/go-chi/chi/v5"

// MountRoutes registers the sign-in endpoints on r, which is expected to be
// the /auth sub-router. These routes are public.
func MountRoutes(r chi.Router, h *Handler) {
	// GET /auth/login - Redirect to hosted login
	r.Get("/login", h.ServeLogin)

	// GET /auth/callback - Handle the authorization code
	r.Get("/callback", h.ServeCallback)
}

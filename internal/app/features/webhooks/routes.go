// internal/app/features/webhooks/routes.go
package webhooks

import "github.com/go-chi/chi/v5"

// Routes returns the router for identity-provider webhooks. These routes are
// authenticated by signature, not by session.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	// POST /webhooks/workos
	r.Post("/workos", h.ServeEvent)

	return r
}

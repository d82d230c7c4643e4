// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/dalemusser/agentcanvas/internal/app/system/membershipcache"
	"go.uber.org/zap"
)

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Cache      *membershipcache.Cache
}

// NewHandler creates a logout handler. cache may be nil.
func NewHandler(sessionMgr *auth.SessionManager, cache *membershipcache.Cache, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		Cache:      cache,
	}
}

// ServeLogout handles GET /auth/logout.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	if u, ok := auth.CurrentUser(r); ok {
		if h.Cache != nil {
			h.Cache.Invalidate(u.ID)
		}
		h.Log.Info("user signed out", zap.String("user_id", u.ID))
	}

	// SignOut expires the cookie with the store's domain, path and flags.
	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}

	// HTMX handling: use HX-Redirect to force a client-side navigation to "/".
	if r.Header.Get("HX-Request") != "" {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

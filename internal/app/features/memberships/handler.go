// internal/app/features/memberships/handler.go
package memberships

import (
	"context"
	"net/http"

	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/dalemusser/agentcanvas/internal/app/system/authz"
	"github.com/dalemusser/agentcanvas/internal/app/system/httpjson"
	"github.com/dalemusser/agentcanvas/internal/app/system/membershipcache"
	"github.com/dalemusser/agentcanvas/internal/app/system/timeouts"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"go.uber.org/zap"
)

// Store is the read side of the membership store.
type Store interface {
	ListByUser(ctx context.Context, userID string) ([]models.Membership, error)
	ListByOrg(ctx context.Context, orgID string) ([]models.Membership, error)
	CountByOrg(ctx context.Context, orgID, role string) (int64, error)
}

// Syncer refreshes a user's memberships. *membershipsync.Syncer satisfies it.
type Syncer interface {
	SyncUser(ctx context.Context, syncType, userID string) (models.SyncResult, error)
}

// Handler serves the signed-in user's memberships and on-demand sync.
type Handler struct {
	Log   *zap.Logger
	Store Store
	Sync  Syncer
	Cache *membershipcache.Cache
}

// NewHandler creates a memberships handler. cache may be nil, in which case
// every read goes to the store.
func NewHandler(store Store, syncer Syncer, cache *membershipcache.Cache, logger *zap.Logger) *Handler {
	return &Handler{
		Log:   logger,
		Store: store,
		Sync:  syncer,
		Cache: cache,
	}
}

// load returns userID's memberships through the cache.
func (h *Handler) load(ctx context.Context, userID string) ([]models.Membership, error) {
	if h.Cache == nil {
		return h.Store.ListByUser(ctx, userID)
	}
	return h.Cache.Load(ctx, userID, h.Store.ListByUser)
}

// RoleLookup resolves a user's role in an organization from cached
// memberships. It backs authz.RequireOrgMember.
func (h *Handler) RoleLookup() authz.RoleLookup {
	return func(ctx context.Context, userID, orgID string) (string, bool, error) {
		if h.Cache != nil {
			return h.Cache.Role(ctx, userID, orgID, h.Store.ListByUser)
		}
		list, err := h.Store.ListByUser(ctx, userID)
		if err != nil {
			return "", false, err
		}
		for _, m := range list {
			if m.OrgID == orgID {
				return m.Role, true, nil
			}
		}
		return "", false, nil
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/memberships                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeList returns {"memberships":[...]} for the signed-in user.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.load(ctx, u.ID)
	if err != nil {
		h.Log.Error("list memberships failed", zap.String("user_id", u.ID), zap.Error(err))
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []models.Membership{}
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"memberships": list})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/memberships/sync                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeSync refreshes the signed-in user's memberships from the identity
// provider and returns the SyncResult. An upstream failure is a 502.
func (h *Handler) ServeSync(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Sync(), h.Log, "manual membership sync")
	defer cancel()

	res, err := h.Sync.SyncUser(ctx, models.SyncTypeManual, u.ID)
	if h.Cache != nil {
		h.Cache.Invalidate(u.ID)
	}
	if err != nil {
		httpjson.Error(w, http.StatusBadGateway, "membership fetch failed")
		return
	}
	httpjson.Write(w, http.StatusOK, res)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/orgs/{orgID}/membership                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeOrgMembership returns the signed-in user's role in the organization
// resolved by authz.RequireOrgMember.
func (h *Handler) ServeOrgMembership(w http.ResponseWriter, r *http.Request) {
	access, ok := authz.CurrentOrg(r)
	if !ok {
		httpjson.Error(w, http.StatusNotFound, "not a member of this organization")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"org_id":   access.OrgID,
		"role":     access.Role,
		"is_admin": authz.HasRole(r, RoleAdmin),
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/orgs/{orgID}/members                                                |
*─────────────────────────────────────────────────────────────────────────────*/

type membersResponse struct {
	OrgID   string              `json:"org_id"`
	Members []models.Membership `json:"members"`
	Admins  int64               `json:"admins"`
}

// ServeOrgMembers lists the organization's members. Restricted to
// organization admins by the route.
func (h *Handler) ServeOrgMembers(w http.ResponseWriter, r *http.Request) {
	access, ok := authz.CurrentOrg(r)
	if !ok {
		httpjson.Error(w, http.StatusNotFound, "not a member of this organization")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	list, err := h.Store.ListByOrg(ctx, access.OrgID)
	if err != nil {
		h.Log.Error("list org members failed", zap.String("org_id", access.OrgID), zap.Error(err))
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	admins, err := h.Store.CountByOrg(ctx, access.OrgID, RoleAdmin)
	if err != nil {
		h.Log.Error("count org admins failed", zap.String("org_id", access.OrgID), zap.Error(err))
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []models.Membership{}
	}
	httpjson.Write(w, http.StatusOK, membersResponse{OrgID: access.OrgID, Members: list, Admins: admins})
}

// internal/app/system/authz/authz.go
package authz

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/dalemusser/agentcanvas/internal/app/system/httpjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RoleLookup returns userID's role in orgID. ok=false means not a member.
// membershipcache.Cache.Role, bound to a loader, satisfies it.
type RoleLookup func(ctx context.Context, userID, orgID string) (role string, ok bool, err error)

type orgCtxKey struct{}

// OrgAccess is what RequireOrgMember places in the request context.
type OrgAccess struct {
	OrgID string
	Role  string
}

// UserCtx returns the signed-in user's id, name, and a found flag.
func UserCtx(r *http.Request) (userID, name string, ok bool) {
	u, ok := auth.CurrentUser(r)
	if !ok || u.ID == "" {
		return "", "", false
	}
	return u.ID, u.Name, true
}

// CurrentOrg returns the organization access established by RequireOrgMember.
func CurrentOrg(r *http.Request) (OrgAccess, bool) {
	a, ok := r.Context().Value(orgCtxKey{}).(OrgAccess)
	return a, ok
}

// WithOrg stores access in the request context.
func WithOrg(r *http.Request, access OrgAccess) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), orgCtxKey{}, access))
}

// RequireOrgMember admits the request only if the signed-in user is a member
// of the organization named by the chi URL parameter param. When roles are
// given, the member's role must be one of them (case-insensitive).
//
//   - not signed in        → 401
//   - not a member         → 404 (organization existence is not disclosed)
//   - member, wrong role   → 403
//   - lookup failure       → 500
func RequireOrgMember(lookup RoleLookup, param string, logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	return requireOrg(lookup, func(r *http.Request) string {
		return strings.TrimSpace(chi.URLParam(r, param))
	}, logger, roles...)
}

// RequireFixedOrgRole is RequireOrgMember for a single configured
// organization, such as the operators' organization.
func RequireFixedOrgRole(lookup RoleLookup, orgID string, logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	return requireOrg(lookup, func(*http.Request) string { return orgID }, logger, roles...)
}

func requireOrg(lookup RoleLookup, orgOf func(*http.Request) string, logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _, ok := UserCtx(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			orgID := orgOf(r)
			if orgID == "" {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			role, member, err := lookup(r.Context(), userID, orgID)
			if err != nil {
				logger.Error("membership lookup failed",
					zap.String("user_id", userID),
					zap.String("org_id", orgID),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !member {
				writeError(w, http.StatusNotFound, "not a member of this organization")
				return
			}
			if len(allowed) > 0 {
				if _, has := allowed[strings.ToLower(role)]; !has {
					writeError(w, http.StatusForbidden, "forbidden")
					return
				}
			}

			next.ServeHTTP(w, WithOrg(r, OrgAccess{OrgID: orgID, Role: strings.ToLower(role)}))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	httpjson.Error(w, status, msg)
}

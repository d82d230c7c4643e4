// internal/app/features/authworkos/handler.go
package authworkos

// Terminology: User Identifiers
//   - UserID / userID / user_id: the identity provider's user id, as returned in
//     the "user" object of the authenticate response

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/dalemusser/agentcanvas/internal/app/system/membershipcache"
	"github.com/dalemusser/agentcanvas/internal/app/system/timeouts"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// CallbackPath is appended to the public base URL to form the redirect URI
	// registered with the identity provider.
	CallbackPath = "/auth/callback"

	stateCookieName = "agentcanvas_oauth_state"
	stateTTL        = 10 * time.Minute

	// failurePath receives ?error=<code> when sign-in does not complete.
	failurePath = "/"
)

// Syncer refreshes a user's memberships. *membershipsync.Syncer satisfies it.
type Syncer interface {
	SyncUser(ctx context.Context, syncType, userID string) (models.SyncResult, error)
}

// Handler handles sign-in through the identity provider's hosted login.
type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Sync       Syncer
	Cache      *membershipcache.Cache

	// OAuth configuration
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "https://agentcanvas.example.com/auth/callback"
	APIBaseURL   string // e.g., "https://api.workos.com"

	// HTTPClient, when set, is used for the code exchange.
	HTTPClient *http.Client

	state  *securecookie.SecureCookie
	secure bool
}

// NewHandler creates a sign-in handler. stateKey signs the short-lived state
// cookie; the session key is a reasonable choice.
func NewHandler(
	sessionMgr *auth.SessionManager,
	syncer Syncer,
	cache *membershipcache.Cache,
	clientID, clientSecret, baseURL, apiBaseURL string,
	stateKey []byte,
	secure bool,
	logger *zap.Logger,
) *Handler {
	sc := securecookie.New(stateKey, nil)
	sc.MaxAge(int(stateTTL.Seconds()))

	return &Handler{
		Log:          logger,
		SessionMgr:   sessionMgr,
		Sync:         syncer,
		Cache:        cache,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  strings.TrimRight(baseURL, "/") + CallbackPath,
		APIBaseURL:   strings.TrimRight(apiBaseURL, "/"),
		state:        sc,
		secure:       secure,
	}
}

// oauth2Config returns the authorization-code configuration for the
// identity provider's user management endpoints.
func (h *Handler) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.ClientID,
		ClientSecret: h.ClientSecret,
		RedirectURL:  h.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   h.APIBaseURL + "/user_management/authorize",
			TokenURL:  h.APIBaseURL + "/user_management/authenticate",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// IsConfigured returns true if sign-in is configured.
func (h *Handler) IsConfigured() bool {
	return h.ClientID != "" && h.ClientSecret != ""
}

// oauthState is stored in the signed state cookie between login and callback.
type oauthState struct {
	State  string
	Return string
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/login                                                              |
| Redirects to the hosted login page.                                          |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		h.Log.Warn("sign-in not configured")
		h.fail(w, r, "not_configured")
		return
	}

	state, err := generateState()
	if err != nil {
		h.Log.Error("failed to generate OAuth state", zap.Error(err))
		h.fail(w, r, "internal")
		return
	}

	returnURL := query.Get(r, "return")

	encoded, err := h.state.Encode(stateCookieName, oauthState{State: state, Return: returnURL})
	if err != nil {
		h.Log.Error("failed to encode OAuth state", zap.Error(err))
		h.fail(w, r, "internal")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    encoded,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.oauth2Config().AuthCodeURL(state, oauth2.SetAuthURLParam("provider", "authkit"))

	h.Log.Debug("initiating sign-in",
		zap.String("redirect_url", url),
		zap.String("return_url", returnURL))

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/callback                                                           |
| Exchanges the code, creates the session, and refreshes the user's            |
| memberships before redirecting.                                              |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.Log.Warn("sign-in error from identity provider",
			zap.String("error", errParam),
			zap.String("description", r.URL.Query().Get("error_description")))
		h.fail(w, r, "denied")
		return
	}

	st, ok := h.readState(r)
	h.clearState(w)
	if !ok || !sameState(st.State, r.URL.Query().Get("state")) {
		h.Log.Warn("invalid or expired OAuth state")
		h.fail(w, r, "invalid_state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.Log.Warn("missing OAuth code parameter")
		h.fail(w, r, "invalid_code")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	if h.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, h.HTTPClient)
	}

	token, err := h.oauth2Config().Exchange(ctx, code)
	if err != nil {
		h.Log.Error("failed to exchange OAuth code", zap.Error(err))
		h.fail(w, r, "token_exchange")
		return
	}

	user, err := userFromToken(token)
	if err != nil {
		h.Log.Error("authenticate response has no usable user", zap.Error(err))
		h.fail(w, r, "user_info")
		return
	}

	if err := h.SessionMgr.SignIn(w, r, user); err != nil {
		h.Log.Error("save session failed", zap.Error(err), zap.String("user_id", user.ID))
		h.fail(w, r, "session")
		return
	}

	h.Log.Info("user signed in",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email))

	h.syncOnSignIn(r.Context(), user.ID)

	http.Redirect(w, r, urlutil.SafeReturn(st.Return, "", "/"), http.StatusSeeOther)
}

// syncOnSignIn refreshes the user's memberships. A failure is logged and the
// sign-in still completes; the next sweep or webhook will catch up.
func (h *Handler) syncOnSignIn(parent context.Context, userID string) {
	if h.Sync == nil {
		return
	}
	ctx, cancel := timeouts.WithTimeout(parent, timeouts.Sync(), h.Log, "sign-in membership sync")
	defer cancel()

	res, err := h.Sync.SyncUser(ctx, models.SyncTypeManual, userID)
	if h.Cache != nil {
		h.Cache.Invalidate(userID)
	}
	if err != nil {
		h.Log.Warn("membership sync on sign-in failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	h.Log.Debug("membership sync on sign-in",
		zap.String("user_id", userID),
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("removed", res.Removed),
		zap.Int("errors", len(res.Errors)))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

var errNoUser = errors.New("no user in authenticate response")

// userFromToken reads the "user" object the authenticate endpoint returns
// alongside the tokens.
func userFromToken(tok *oauth2.Token) (auth.SessionUser, error) {
	raw, ok := tok.Extra("user").(map[string]any)
	if !ok {
		return auth.SessionUser{}, errNoUser
	}
	str := func(k string) string {
		s, _ := raw[k].(string)
		return strings.TrimSpace(s)
	}

	u := auth.SessionUser{ID: str("id"), Email: str("email")}
	if u.ID == "" {
		return auth.SessionUser{}, errNoUser
	}
	u.Name = strings.TrimSpace(str("first_name") + " " + str("last_name"))
	if u.Name == "" {
		u.Name = u.Email
	}
	return u, nil
}

func (h *Handler) readState(r *http.Request) (oauthState, bool) {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return oauthState{}, false
	}
	var st oauthState
	if err := h.state.Decode(stateCookieName, c.Value, &st); err != nil {
		h.Log.Debug("state cookie rejected", zap.Error(err))
		return oauthState{}, false
	}
	return st, st.State != ""
}

func (h *Handler) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, failurePath+"?error="+code, http.StatusSeeOther)
}

func sameState(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// generateState creates a cryptographically secure random state string.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

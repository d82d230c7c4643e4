package logout_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/features/logout"
	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/dalemusser/agentcanvas/internal/app/system/membershipcache"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func newSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager("test-session-key-for-testing-only", "test-session", "", 24*time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	return sm
}

func TestServeLogout_RedirectsToHome(t *testing.T) {
	handler := logout.NewHandler(newSessionManager(t), nil, zap.NewNop())

	req := httptest.NewRequest("GET", "/auth/logout", nil)
	rec := httptest.NewRecorder()

	handler.ServeLogout(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected status %d, got %d", http.StatusSeeOther, rec.Code)
	}
	if location := rec.Header().Get("Location"); location != "/" {
		t.Errorf("Location: got %q, want %q", location, "/")
	}
}

func TestServeLogout_HTMX_ReturnsHXRedirect(t *testing.T) {
	handler := logout.NewHandler(newSessionManager(t), nil, zap.NewNop())

	req := httptest.NewRequest("GET", "/auth/logout", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	handler.ServeLogout(rec, req)

	if hx := rec.Header().Get("HX-Redirect"); hx != "/" {
		t.Errorf("HX-Redirect: got %q, want %q", hx, "/")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d for HTMX, got %d", http.StatusOK, rec.Code)
	}
}

func TestServeLogout_WithExistingSession(t *testing.T) {
	sm := newSessionManager(t)
	cache := membershipcache.New(time.Minute, time.Now)
	cache.Set("user_1", []models.Membership{{UserID: "user_1", OrgID: "org_a", Role: "member"}})
	handler := logout.NewHandler(sm, cache, zap.NewNop())

	// Sign in to get a session cookie.
	rec1 := httptest.NewRecorder()
	if err := sm.SignIn(rec1, httptest.NewRequest("GET", "/setup", nil), auth.SessionUser{ID: "user_1"}); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	r := chi.NewRouter()
	r.Use(sm.LoadSessionUser)
	r.Route("/auth", func(ar chi.Router) {
		logout.MountRoutes(ar, handler, sm)
	})

	req := httptest.NewRequest("GET", "/auth/logout", nil)
	for _, c := range rec1.Result().Cookies() {
		req.AddCookie(c)
	}
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req)

	if rec2.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, rec2.Code)
	}

	found := false
	for _, c := range rec2.Result().Cookies() {
		if c.Name == "test-session" {
			found = true
			if c.MaxAge != -1 {
				t.Errorf("cookie MaxAge after logout: got %d, want -1", c.MaxAge)
			}
		}
	}
	if !found {
		t.Error("expected session cookie to be set for deletion")
	}
	if _, ok := cache.Get("user_1"); ok {
		t.Error("expected cached memberships to be dropped on logout")
	}
}

func TestRoutes_RequireSignedIn(t *testing.T) {
	sm := newSessionManager(t)
	handler := logout.NewHandler(sm, nil, zap.NewNop())

	r := chi.NewRouter()
	r.Use(sm.LoadSessionUser)
	r.Route("/auth", func(ar chi.Router) {
		logout.MountRoutes(ar, handler, sm)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/auth/logout", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected %d for anonymous API request, got %d", http.StatusUnauthorized, rec.Code)
	}
}

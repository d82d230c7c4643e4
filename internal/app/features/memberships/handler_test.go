package memberships_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/features/memberships"
	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/dalemusser/agentcanvas/internal/app/system/membershipcache"
	"github.com/dalemusser/agentcanvas/internal/app/system/ratelimit"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	rows  []models.Membership
	reads int
	err   error
}

func (s *fakeStore) ListByUser(ctx context.Context, userID string) ([]models.Membership, error) {
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Membership
	for _, m := range s.rows {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) ListByOrg(ctx context.Context, orgID string) ([]models.Membership, error) {
	var out []models.Membership
	for _, m := range s.rows {
		if m.OrgID == orgID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) CountByOrg(ctx context.Context, orgID, role string) (int64, error) {
	var n int64
	for _, m := range s.rows {
		if m.OrgID == orgID && (role == "" || m.Role == role) {
			n++
		}
	}
	return n, nil
}

type fakeSyncer struct {
	calls []string
	err   error
}

func (f *fakeSyncer) SyncUser(ctx context.Context, syncType, userID string) (models.SyncResult, error) {
	f.calls = append(f.calls, syncType+":"+userID)
	if f.err != nil {
		return models.SyncResult{Errors: []string{}}, f.err
	}
	return models.SyncResult{Updated: 1, Errors: []string{}}, nil
}

type fixture struct {
	store  *fakeStore
	syncer *fakeSyncer
	cache  *membershipcache.Cache
	router chi.Router
}

func newFixture(t *testing.T, limiter *ratelimit.Limiter) *fixture {
	t.Helper()
	sm, err := auth.NewSessionManager("test-session-key-for-testing-only", "test-session", "", time.Hour, false, zap.NewNop())
	require.NoError(t, err)

	f := &fixture{
		store: &fakeStore{rows: []models.Membership{
			{UserID: "user_1", OrgID: "org_a", OrgName: "Acme", Role: "admin", UpdatedAt: 100},
			{UserID: "user_1", OrgID: "org_b", Role: "member", UpdatedAt: 100},
			{UserID: "user_2", OrgID: "org_a", Role: "member", UpdatedAt: 100},
		}},
		syncer: &fakeSyncer{},
		cache:  membershipcache.New(time.Minute, time.Now),
	}
	h := memberships.NewHandler(f.store, f.syncer, f.cache, zap.NewNop())
	f.router = chi.NewRouter()
	memberships.MountRoutes(f.router, h, sm, limiter)
	return f
}

func (f *fixture) do(method, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req = auth.WithTestUser(req, &auth.SessionUser{ID: userID})
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestServeList(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/memberships", "user_1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Memberships []models.Membership `json:"memberships"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Memberships, 2)
	assert.Equal(t, "org_a", body.Memberships[0].OrgID)

	// Second read is served from the cache.
	f.do(http.MethodGet, "/api/memberships", "user_1")
	assert.Equal(t, 1, f.store.reads)
}

func TestServeList_NoMemberships(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/memberships", "user_none")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"memberships":[]}`, rec.Body.String())
}

func TestServeList_StoreError(t *testing.T) {
	f := newFixture(t, nil)
	f.store.err = errors.New("db down")

	rec := f.do(http.MethodGet, "/api/memberships", "user_1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRoutes_RequireSignedIn(t *testing.T) {
	f := newFixture(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/memberships"},
		{http.MethodPost, "/api/memberships/sync"},
		{http.MethodGet, "/api/orgs/org_a/membership"},
	} {
		rec := f.do(tc.method, tc.path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
	assert.Empty(t, f.syncer.calls)
}

func TestServeSync(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Set("user_1", nil)

	rec := f.do(http.MethodPost, "/api/memberships/sync", "user_1")
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, []string{models.SyncTypeManual + ":user_1"}, f.syncer.calls)

	_, cached := f.cache.Get("user_1")
	assert.False(t, cached)
}

func TestServeSync_UpstreamFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.syncer.err = errors.New("upstream 503")

	rec := f.do(http.MethodPost, "/api/memberships/sync", "user_1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServeSync_RateLimitedPerUser(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute)
	t.Cleanup(limiter.Stop)
	f := newFixture(t, limiter)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/memberships/sync", "user_1").Code)

	rec := f.do(http.MethodPost, "/api/memberships/sync", "user_1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Another user has their own budget.
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/memberships/sync", "user_2").Code)
	assert.Len(t, f.syncer.calls, 2)
}

func TestServeOrgMembership(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/orgs/org_a/membership", "user_1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"org_id":"org_a","role":"admin","is_admin":true}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/orgs/org_a/membership", "user_2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_admin":false`)

	rec = f.do(http.MethodGet, "/api/orgs/org_z/membership", "user_1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeOrgMembers(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/orgs/org_a/members", "user_1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OrgID   string              `json:"org_id"`
		Members []models.Membership `json:"members"`
		Admins  int64               `json:"admins"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "org_a", body.OrgID)
	assert.Len(t, body.Members, 2)
	assert.EqualValues(t, 1, body.Admins)

	// Plain members may not list.
	rec = f.do(http.MethodGet, "/api/orgs/org_a/members", "user_2")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

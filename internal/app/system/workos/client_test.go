package workos_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/agentcanvas/internal/app/system/workos"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func page(data any, after string) map[string]any {
	return map[string]any{"data": data, "list_metadata": map[string]any{"after": after}}
}

func newClient(t *testing.T, srv *httptest.Server, mut func(*workos.Options)) *workos.Client {
	t.Helper()
	opts := workos.Options{
		BaseURL:    srv.URL,
		APIKey:     "sk_test",
		MaxRetries: -1,
	}
	if mut != nil {
		mut(&opts)
	}
	c, err := workos.New(opts)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := workos.New(workos.Options{})
	assert.ErrorIs(t, err, workos.ErrNoAPIKey)
}

func TestListOrganizations_FollowsCursor(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		after := r.URL.Query().Get("after")
		seen = append(seen, after)
		switch after {
		case "":
			writeJSON(w, page([]map[string]string{{"id": "org_1", "name": "One"}}, "c1"))
		case "c1":
			writeJSON(w, page([]map[string]string{{"id": "org_2", "name": "Two"}}, "c2"))
		case "c2":
			writeJSON(w, page([]map[string]string{{"id": "org_3", "name": "Three"}}, ""))
		default:
			t.Errorf("unexpected cursor %q", after)
		}
	}))
	defer srv.Close()

	orgs, err := newClient(t, srv, nil).ListOrganizations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"", "c1", "c2"}, seen)
	require.Len(t, orgs, 3)
	assert.Equal(t, "org_3", orgs[2].ID)
}

func TestList_Non2xxAbortsWithNoPartialResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			writeJSON(w, page([]map[string]string{{"id": "org_1"}}, "c1"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"forbidden"}`))
	}))
	defer srv.Close()

	orgs, err := newClient(t, srv, nil).ListOrganizations(context.Background())
	assert.Nil(t, orgs)

	var apiErr *workos.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Body, "forbidden")
	assert.Equal(t, "/organizations", apiErr.Path)
}

func TestList_MaxPages(t *testing.T) {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := atomic.AddInt32(&n, 1)
		writeJSON(w, page([]map[string]string{{"id": fmt.Sprintf("org_%d", i)}}, "c"+strconv.Itoa(int(i))))
	}))
	defer srv.Close()

	_, err := newClient(t, srv, func(o *workos.Options) { o.MaxPages = 3 }).ListOrganizations(context.Background())
	assert.ErrorIs(t, err, workos.ErrTooManyPages)
	assert.Equal(t, int32(3), atomic.LoadInt32(&n))
}

func TestList_RepeatedCursorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			writeJSON(w, page([]map[string]string{{"id": "org_1"}}, "c1"))
			return
		}
		writeJSON(w, page([]map[string]string{{"id": "org_2"}}, "c1"))
	}))
	defer srv.Close()

	orgs, err := newClient(t, srv, nil).ListOrganizations(context.Background())
	assert.ErrorIs(t, err, workos.ErrCursorStuck)
	assert.Nil(t, orgs)
}

func TestBuildUserMembershipMap_StuckCursorAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/organizations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, page([]map[string]string{{"id": "org_a"}}, ""))
	})
	mux.HandleFunc("/user_management/organization_memberships", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, page([]map[string]any{{"user_id": "u1", "organization_id": "org_a"}}, "m1"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newClient(t, srv, nil).BuildUserMembershipMap(context.Background(), "member")
	assert.ErrorIs(t, err, workos.ErrCursorStuck)
	assert.Nil(t, got)
}

func TestList_RetriesServerErrors(t *testing.T) {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, page([]map[string]string{{"id": "org_1"}}, ""))
	}))
	defer srv.Close()

	c := newClient(t, srv, func(o *workos.Options) {
		o.MaxRetries = 2
		o.BaseDelay = time.Millisecond
	})
	orgs, err := c.ListOrganizations(context.Background())
	require.NoError(t, err)
	assert.Len(t, orgs, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&n))
}

func TestList_DoesNotRetryClientErrors(t *testing.T) {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&n, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newClient(t, srv, func(o *workos.Options) {
		o.MaxRetries = 3
		o.BaseDelay = time.Millisecond
	})
	_, err := c.ListOrganizations(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&n))
}

func TestBuildUserMembershipMap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/organizations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, page([]map[string]string{
			{"id": "org_a", "name": "Acme"},
			{"id": "org_b", "name": "Beta"},
		}, ""))
	})
	mux.HandleFunc("/user_management/organization_memberships", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("organization_id") {
		case "org_a":
			writeJSON(w, page([]map[string]any{
				{"user_id": "u1", "organization_id": "org_a", "role": map[string]string{"slug": "admin"}, "status": "active"},
				{"user_id": "u2", "organization_id": "org_a", "status": "active"},
				{"user_id": "u3", "organization_id": "org_a", "status": "pending"},
			}, ""))
		case "org_b":
			writeJSON(w, page([]map[string]any{
				{"user_id": "u1", "organization_id": "org_b", "role": map[string]string{"slug": "member"}},
			}, ""))
		default:
			t.Errorf("unexpected organization_id %q", r.URL.Query().Get("organization_id"))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newClient(t, srv, nil).BuildUserMembershipMap(context.Background(), "viewer")
	require.NoError(t, err)

	assert.Equal(t, map[string][]models.ProposedMembership{
		"u1": {
			{OrgID: "org_a", OrgName: "Acme", Role: "admin"},
			{OrgID: "org_b", OrgName: "Beta", Role: "member"},
		},
		"u2": {
			{OrgID: "org_a", OrgName: "Acme", Role: "viewer"},
		},
	}, got)
}

func TestBuildUserMembershipMap_MembershipFailureAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/organizations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, page([]map[string]string{{"id": "org_a"}, {"id": "org_b"}}, ""))
	})
	mux.HandleFunc("/user_management/organization_memberships", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("organization_id") == "org_b" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, page([]map[string]any{{"user_id": "u1", "organization_id": "org_a"}}, ""))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newClient(t, srv, nil).BuildUserMembershipMap(context.Background(), "member")
	assert.Nil(t, got)

	var apiErr *workos.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Contains(t, err.Error(), "org_b")
}

func TestUserSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user_management/organization_memberships", r.URL.Path)
		assert.Equal(t, "u1", r.URL.Query().Get("user_id"))
		writeJSON(w, page([]map[string]any{
			{"user_id": "u1", "organization_id": "org_a", "organization_name": "Acme", "role": map[string]string{"slug": "admin"}, "status": "active"},
			{"user_id": "u1", "organization_id": "org_b", "status": "inactive"},
			{"user_id": "u1", "organization_id": "org_c", "status": "active"},
		}, ""))
	}))
	defer srv.Close()

	snap, err := newClient(t, srv, nil).UserSnapshot(context.Background(), "u1", "member")
	require.NoError(t, err)
	assert.Equal(t, []models.ProposedMembership{
		{OrgID: "org_a", OrgName: "Acme", Role: "admin"},
		{OrgID: "org_c", Role: "member"},
	}, snap)
}

func TestAPIError_Retryable(t *testing.T) {
	assert.True(t, (&workos.APIError{Status: 429}).Retryable())
	assert.True(t, (&workos.APIError{Status: 502}).Retryable())
	assert.False(t, (&workos.APIError{Status: 404}).Retryable())
}

func TestAPIError_TruncatesOnRuneBoundary(t *testing.T) {
	err := &workos.APIError{Status: 500, Path: "/organizations", Body: "x" + strings.Repeat("é", 600)}
	msg := err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "…"))
}

package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	membershipstore "github.com/dalemusser/agentcanvas/internal/app/store/memberships"
	"github.com/dalemusser/agentcanvas/internal/testutil"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:           "mongodb://localhost:27017",
		MongoDatabase:      "agentcanvas_test",
		SessionKey:         "test-session-key-for-testing-only-0123456789",
		SessionName:        "agentcanvas-session",
		SessionMaxAge:      time.Hour,
		BaseURL:            "http://localhost:3000",
		WorkOSAPIKey:       "sk_test",
		WorkOSClientID:     "client_test",
		WorkOSBaseURL:      "https://api.workos.test",
		DefaultRole:        "member",
		SyncEnabled:        true,
		SyncInterval:       15 * time.Minute,
		SyncConcurrency:    4,
		SyncMaxPages:       1000,
		SyncLogMode:        "all",
		MembershipCacheTTL: time.Minute,
		ManualSyncLimit:    5,
	}
}

func TestValidateAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"bad mongo uri", func(c *AppConfig) { c.MongoURI = "postgres://nope" }, "MongoDB URI"},
		{"sync enabled without key", func(c *AppConfig) { c.WorkOSAPIKey = "" }, ""},
		{"sync disabled without key", func(c *AppConfig) { c.WorkOSAPIKey = ""; c.SyncEnabled = false }, ""},
		{"bad log mode", func(c *AppConfig) { c.SyncLogMode = "loud" }, "sync_log_mode"},
		{"zero interval", func(c *AppConfig) { c.SyncInterval = 0 }, "sync_interval"},
		{"zero concurrency", func(c *AppConfig) { c.SyncConcurrency = 0 }, "sync_concurrency"},
		{"negative manual limit", func(c *AppConfig) { c.ManualSyncLimit = -1 }, "manual_sync_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := validateAppConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_DefaultsWithoutAPIKey(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := validConfig()
	cfg.WorkOSAPIKey = ""

	if err := ValidateConfig(&config.CoreConfig{}, cfg, zap.New(core)); err != nil {
		t.Fatalf("ValidateConfig without an API key: %v", err)
	}
	if n := logs.FilterMessageSnippet("workos_api_key not set").Len(); n != 1 {
		t.Errorf("expected one missing-key warning, got %d", n)
	}
}

func TestNewServices_SyncEnabledWithoutAPIKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := validConfig()
	cfg.WorkOSAPIKey = ""

	svc, err := NewServices(db.Client(), db, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	defer svc.Stop()
	if svc.Syncer != nil {
		t.Error("expected no syncer without an API key")
	}
}

func TestNewServices_WithoutAPIKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := validConfig()
	cfg.WorkOSAPIKey = ""
	cfg.SyncEnabled = false

	svc, err := NewServices(db.Client(), db, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServices failed: %v", err)
	}
	defer svc.Stop()

	if svc.WorkOS != nil || svc.Syncer != nil {
		t.Error("expected no identity-provider client or syncer without an API key")
	}
	if svc.Engine == nil || svc.Memberships == nil || svc.SyncLogs == nil || svc.Cache == nil {
		t.Error("expected local services to be built")
	}
	if svc.SyncLimiter == nil {
		t.Error("expected sync limiter when manual_sync_limit > 0")
	}
}

func TestNewServices_WithAPIKey(t *testing.T) {
	db := testutil.SetupTestDB(t)

	svc, err := NewServices(db.Client(), db, validConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewServices failed: %v", err)
	}
	defer svc.Stop()

	if svc.WorkOS == nil || svc.Syncer == nil {
		t.Fatal("expected identity-provider client and syncer")
	}
	if svc.Syncer.Engine() != svc.Engine {
		t.Error("syncer should share the engine")
	}
}

func TestEnsureSchema_MigratesLegacyTimestamps(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fixtures := testutil.NewFixtures(t, db)
	fixtures.CreateLegacyMembership(ctx, "user_1", "org_a", "member", 150)

	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}
	if err := EnsureSchema(ctx, nil, validConfig(), deps, testLogger()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	m, err := membershipstore.New(db).Get(ctx, "user_1", "org_a")
	if err != nil || m == nil {
		t.Fatalf("Get failed: %v (m=%v)", err, m)
	}
	if m.UpdatedAt != 150 {
		t.Errorf("UpdatedAt: got %d, want 150", m.UpdatedAt)
	}

	// Running again is a no-op.
	if err := EnsureSchema(ctx, nil, validConfig(), deps, testLogger()); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
}

func TestBuildHandler_Routes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := validConfig()
	cfg.WorkOSWebhookSecret = "whsec_test"

	svc, err := NewServices(db.Client(), db, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServices failed: %v", err)
	}
	defer svc.Stop()

	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db, Services: svc}
	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, cfg, deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler failed: %v", err)
	}

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/user", http.StatusOK},
		{http.MethodGet, "/api/memberships", http.StatusUnauthorized},
		{http.MethodPost, "/api/memberships/sync", http.StatusUnauthorized},
		{http.MethodGet, "/api/admin/sync-logs", http.StatusUnauthorized},
		{http.MethodGet, "/auth/login", http.StatusTemporaryRedirect},
		{http.MethodPost, "/webhooks/workos", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: got %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}

func TestBuildHandler_NoIdentityProvider(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := validConfig()
	cfg.WorkOSAPIKey = ""
	cfg.SyncEnabled = false

	svc, err := NewServices(db.Client(), db, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServices failed: %v", err)
	}
	defer svc.Stop()

	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db, Services: svc}
	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, cfg, deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler failed: %v", err)
	}

	for _, path := range []string{"/auth/login", "/webhooks/workos"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: got %d, want 404", path, rec.Code)
		}
	}
}

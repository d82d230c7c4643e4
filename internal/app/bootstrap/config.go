// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/system/synclogger"
	"github.com/dalemusser/agentcanvas/internal/app/system/timeouts"
	"github.com/dalemusser/agentcanvas/internal/app/system/workos"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for AgentCanvas.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: AGENTCANVAS_MONGO_URI, AGENTCANVAS_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "agentcanvas", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "agentcanvas-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime (e.g., 24h, 720h)"},

	{Name: "base_url", Default: "http://localhost:3000", Desc: "Public base URL, used for the sign-in callback"},

	// Identity provider
	{Name: "workos_api_key", Default: "", Desc: "Identity provider API key (also the OAuth client secret)"},
	{Name: "workos_client_id", Default: "", Desc: "Identity provider OAuth client ID"},
	{Name: "workos_base_url", Default: workos.DefaultBaseURL, Desc: "Identity provider API base URL"},
	{Name: "workos_webhook_secret", Default: "", Desc: "Webhook signing secret (blank disables the webhook endpoint)"},
	{Name: "workos_webhook_tolerance", Default: "3m", Desc: "Allowed clock drift on webhook signatures"},

	// Membership sync
	{Name: "default_role", Default: "member", Desc: "Role assigned when the identity provider reports none"},
	{Name: "sync_enabled", Default: true, Desc: "Run the scheduled organization-wide membership sync"},
	{Name: "sync_interval", Default: "15m", Desc: "Time between scheduled syncs"},
	{Name: "sync_concurrency", Default: 4, Desc: "Users reconciled at once during a sweep"},
	{Name: "sync_max_pages", Default: 1000, Desc: "Upper bound on pages fetched per listing"},
	{Name: "sync_requests_per_second", Default: 10, Desc: "Outbound request pacing (0 disables)"},
	{Name: "sync_log_mode", Default: "all", Desc: "Sync logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "membership_cache_ttl", Default: "60s", Desc: "Lifetime of cached per-user memberships"},
	{Name: "manual_sync_limit", Default: 5, Desc: "On-demand syncs allowed per user per minute"},
	{Name: "admin_org_id", Default: "", Desc: "Organization whose admins may read the sync log"},

	// Timeouts
	{Name: "timeout_short", Default: "", Desc: "Timeout for single-document reads (default 5s)"},
	{Name: "timeout_medium", Default: "", Desc: "Timeout for list queries (default 10s)"},
	{Name: "timeout_long", Default: "", Desc: "Timeout for multi-collection operations (default 30s)"},
	{Name: "timeout_sync", Default: "", Desc: "Timeout for one membership sync run (default 5m)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, AGENTCANVAS_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "AGENTCANVAS", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 30*24*time.Hour),

		BaseURL: appValues.String("base_url"),

		// Identity provider
		WorkOSAPIKey:           appValues.String("workos_api_key"),
		WorkOSClientID:         appValues.String("workos_client_id"),
		WorkOSBaseURL:          appValues.String("workos_base_url"),
		WorkOSWebhookSecret:    appValues.String("workos_webhook_secret"),
		WorkOSWebhookTolerance: appValues.Duration("workos_webhook_tolerance", 3*time.Minute),

		// Membership sync
		DefaultRole:           appValues.String("default_role"),
		SyncEnabled:           appValues.Bool("sync_enabled"),
		SyncInterval:          appValues.Duration("sync_interval", 15*time.Minute),
		SyncConcurrency:       appValues.Int("sync_concurrency"),
		SyncMaxPages:          appValues.Int("sync_max_pages"),
		SyncRequestsPerSecond: appValues.Int("sync_requests_per_second"),
		SyncLogMode:           appValues.String("sync_log_mode"),
		MembershipCacheTTL:    appValues.Duration("membership_cache_ttl", time.Minute),
		ManualSyncLimit:       appValues.Int("manual_sync_limit"),
		AdminOrgID:            appValues.String("admin_org_id"),

		// Timeouts
		TimeoutShort:  appValues.Duration("timeout_short", 0),
		TimeoutMedium: appValues.Duration("timeout_medium", 0),
		TimeoutLong:   appValues.Duration("timeout_long", 0),
		TimeoutSync:   appValues.Duration("timeout_sync", 0),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Timeouts are applied here so every later hook sees them.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := validateAppConfig(appCfg); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
		Sync:   appCfg.TimeoutSync,
	})
	t := timeouts.Current()
	logger.Info("timeouts configured",
		zap.Duration("short", t.Short),
		zap.Duration("medium", t.Medium),
		zap.Duration("long", t.Long),
		zap.Duration("sync", t.Sync))

	if appCfg.WorkOSAPIKey == "" {
		logger.Warn("workos_api_key not set; membership sync, sign-in and webhooks are disabled",
			zap.Bool("sync_enabled", appCfg.SyncEnabled))
	} else if appCfg.WorkOSWebhookSecret == "" {
		logger.Warn("workos_webhook_secret not set; webhook endpoint is disabled")
	}
	if appCfg.AdminOrgID == "" {
		logger.Info("admin_org_id not set; sync log endpoint refuses all requests")
	}
	return nil
}

// validateAppConfig holds the checks that need no logger, so they can be
// tested directly.
func validateAppConfig(appCfg AppConfig) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if !synclogger.ValidMode(appCfg.SyncLogMode) {
		return fmt.Errorf("sync_log_mode %q is not one of all, db, log, off", appCfg.SyncLogMode)
	}
	if appCfg.SyncInterval <= 0 {
		return errors.New("sync_interval must be positive")
	}
	if appCfg.SyncConcurrency < 1 {
		return errors.New("sync_concurrency must be at least 1")
	}
	if appCfg.ManualSyncLimit < 0 {
		return errors.New("manual_sync_limit must not be negative")
	}
	if appCfg.WorkOSWebhookTolerance < 0 {
		return errors.New("workos_webhook_tolerance must not be negative")
	}
	return nil
}

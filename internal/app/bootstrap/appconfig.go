// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//
// AppConfig is where everything specific to the membership service lives:
// the MongoDB connection, sessions, the identity provider, and the sync
// schedule. The struct is passed to most lifecycle hooks.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connections in pool (default: 100)
	MongoMinPoolSize uint64 // Min connections to keep warm (default: 10)

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: agentcanvas-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Public base URL, used to build the sign-in callback
	BaseURL string // e.g., "https://canvas.example.com" or "http://localhost:3000"

	// Identity provider
	WorkOSAPIKey           string        // Bearer key for the API; also the OAuth client secret
	WorkOSClientID         string        // OAuth client id for hosted sign-in
	WorkOSBaseURL          string        // API base (default: https://api.workos.com)
	WorkOSWebhookSecret    string        // Signing secret for webhook deliveries
	WorkOSWebhookTolerance time.Duration // Allowed clock drift on webhook signatures

	// Membership sync
	DefaultRole           string        // Role used when the provider reports none
	SyncEnabled           bool          // Run the scheduled organization-wide sweep
	SyncInterval          time.Duration // Time between sweeps
	SyncConcurrency       int           // Users reconciled at once during a sweep
	SyncMaxPages          int           // Upper bound on pages per listing
	SyncRequestsPerSecond int           // Outbound request pacing (0 disables)
	SyncLogMode           string        // 'all', 'db', 'log', or 'off'
	MembershipCacheTTL    time.Duration // Lifetime of cached per-user memberships
	ManualSyncLimit       int           // On-demand syncs per user per minute

	// AdminOrgID is the organization whose admins may read the sync log.
	// Blank disables the endpoint.
	AdminOrgID string

	// Timeouts (zero keeps the package defaults)
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
	TimeoutSync   time.Duration
}

// Package cli is the command-line entry point for running membership syncs
// outside the HTTP server, for backfills and operator repairs.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/bootstrap"
	"github.com/dalemusser/agentcanvas/internal/app/system/synclogger"
	"github.com/dalemusser/agentcanvas/internal/app/system/workos"
	"github.com/spf13/cobra"
)

// envPrefix matches the prefix the server reads its configuration under.
const envPrefix = "AGENTCANVAS_"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	MongoURI          string
	Database          string
	APIKey            string
	WorkOSBaseURL     string
	DefaultRole       string
	Concurrency       int
	MaxPages          int
	RequestsPerSecond int
	LogMode           string
	Timeout           time.Duration
	Verbose           bool
}

// NewRootCommand creates the root command for the sync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "agentcanvas-sync",
		Short: "Reconcile AgentCanvas memberships with the identity provider",
		Long: `Run membership reconciliation against the configured database
without starting the HTTP server.

Flags default to the AGENTCANVAS_* environment variables the server uses.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.MongoURI, "mongo-uri", envString("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	f.StringVar(&opts.Database, "database", envString("MONGO_DATABASE", "agentcanvas"), "MongoDB database name")
	f.StringVar(&opts.APIKey, "workos-api-key", envString("WORKOS_API_KEY", ""), "identity provider API key")
	f.StringVar(&opts.WorkOSBaseURL, "workos-base-url", envString("WORKOS_BASE_URL", workos.DefaultBaseURL), "identity provider API base URL")
	f.StringVar(&opts.DefaultRole, "default-role", envString("DEFAULT_ROLE", "member"), "role used when the provider reports none")
	f.IntVar(&opts.Concurrency, "concurrency", envInt("SYNC_CONCURRENCY", 4), "users reconciled at once during a sweep")
	f.IntVar(&opts.MaxPages, "max-pages", envInt("SYNC_MAX_PAGES", 1000), "upper bound on pages per listing")
	f.IntVar(&opts.RequestsPerSecond, "rps", envInt("SYNC_REQUESTS_PER_SECOND", 10), "outbound request pacing (0 disables)")
	f.StringVar(&opts.LogMode, "log-mode", envString("SYNC_LOG_MODE", "all"), "sync logging: all, db, log, or off")
	f.DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "overall time limit for the command")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))

	return cmd
}

func (o *RootOptions) validate() error {
	switch {
	case o.MongoURI == "":
		return NewExitError(ExitCommandError, "--mongo-uri is required")
	case o.Database == "":
		return NewExitError(ExitCommandError, "--database is required")
	case o.APIKey == "":
		return NewExitError(ExitCommandError, "--workos-api-key (or AGENTCANVAS_WORKOS_API_KEY) is required")
	case !synclogger.ValidMode(o.LogMode):
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --log-mode %q", o.LogMode))
	case o.Concurrency < 1:
		return NewExitError(ExitCommandError, "--concurrency must be at least 1")
	case o.Timeout <= 0:
		return NewExitError(ExitCommandError, "--timeout must be positive")
	}
	return nil
}

// appConfig maps the flags onto the server's configuration. Scheduling,
// sessions and HTTP settings have no meaning here and stay zero.
func (o *RootOptions) appConfig() bootstrap.AppConfig {
	return bootstrap.AppConfig{
		MongoURI:              o.MongoURI,
		MongoDatabase:         o.Database,
		WorkOSAPIKey:          o.APIKey,
		WorkOSBaseURL:         o.WorkOSBaseURL,
		DefaultRole:           o.DefaultRole,
		SyncConcurrency:       o.Concurrency,
		SyncMaxPages:          o.MaxPages,
		SyncRequestsPerSecond: o.RequestsPerSecond,
		SyncLogMode:           o.LogMode,
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

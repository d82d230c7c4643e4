// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	authworkosfeature "github.com/dalemusser/agentcanvas/internal/app/features/authworkos"
	healthfeature "github.com/dalemusser/agentcanvas/internal/app/features/health"
	logoutfeature "github.com/dalemusser/agentcanvas/internal/app/features/logout"
	membershipsfeature "github.com/dalemusser/agentcanvas/internal/app/features/memberships"
	synclogsfeature "github.com/dalemusser/agentcanvas/internal/app/features/synclogs"
	userinfofeature "github.com/dalemusser/agentcanvas/internal/app/features/userinfo"
	webhooksfeature "github.com/dalemusser/agentcanvas/internal/app/features/webhooks"
	"github.com/dalemusser/agentcanvas/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// AgentCanvas applies session middleware and mounts: health, sign-in and
// logout, the membership API, the sync log, and the identity-provider
// webhook. Routes that need the identity provider are mounted only when an
// API key is configured.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, svc.SyncLogs, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Current user
	userinfofeature.MountRoutes(r, userinfofeature.NewHandler())

	// Membership API. Without an API key, on-demand sync answers 502.
	var syncer membershipsfeature.Syncer = unavailableSyncer{}
	if svc.Syncer != nil {
		syncer = svc.Syncer
	}
	membershipsHandler := membershipsfeature.NewHandler(svc.Memberships, syncer, svc.Cache, logger)
	membershipsfeature.MountRoutes(r, membershipsHandler, sessionMgr, svc.SyncLimiter)

	// Sync log (admins of the configured organization)
	synclogsHandler := synclogsfeature.NewHandler(svc.SyncLogs, logger)
	r.Mount("/api/admin/sync-logs", synclogsfeature.Routes(synclogsHandler, sessionMgr, membershipsHandler.RoleLookup(), appCfg.AdminOrgID))

	// Authentication
	logoutHandler := logoutfeature.NewHandler(sessionMgr, svc.Cache, logger)
	r.Route("/auth", func(ar chi.Router) {
		if svc.Syncer != nil {
			authHandler := authworkosfeature.NewHandler(sessionMgr, svc.Syncer, svc.Cache,
				appCfg.WorkOSClientID, appCfg.WorkOSAPIKey, appCfg.BaseURL, appCfg.WorkOSBaseURL,
				[]byte(appCfg.SessionKey), secure, logger)
			authworkosfeature.MountRoutes(ar, authHandler)
		}
		logoutfeature.MountRoutes(ar, logoutHandler, sessionMgr)
	})

	// Identity-provider webhooks
	if svc.Syncer != nil && appCfg.WorkOSWebhookSecret != "" {
		webhookHandler := webhooksfeature.NewHandler(svc.Syncer, svc.Cache,
			appCfg.WorkOSWebhookSecret, appCfg.WorkOSWebhookTolerance, nil, logger)
		r.Mount("/webhooks", webhooksfeature.Routes(webhookHandler))
	}

	return r, nil
}

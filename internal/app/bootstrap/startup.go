// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It starts
// the background jobs: the scheduled membership sweep (when enabled) and the
// membership cache purge.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Services == nil {
		return nil
	}
	if deps.Services.Syncer == nil || !appCfg.SyncEnabled {
		logger.Info("scheduled membership sync disabled")
	}
	deps.Services.Scheduler.Start()
	return nil
}

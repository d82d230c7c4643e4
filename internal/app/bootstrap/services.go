// internal/app/bootstrap/services.go
package bootstrap

import (
	"time"

	membershipstore "github.com/dalemusser/agentcanvas/internal/app/store/memberships"
	"github.com/dalemusser/agentcanvas/internal/app/store/synclog"
	"github.com/dalemusser/agentcanvas/internal/app/system/membershipcache"
	"github.com/dalemusser/agentcanvas/internal/app/system/membershipsync"
	"github.com/dalemusser/agentcanvas/internal/app/system/ratelimit"
	"github.com/dalemusser/agentcanvas/internal/app/system/synclogger"
	"github.com/dalemusser/agentcanvas/internal/app/system/tasks"
	"github.com/dalemusser/agentcanvas/internal/app/system/timeouts"
	"github.com/dalemusser/agentcanvas/internal/app/system/txn"
	"github.com/dalemusser/agentcanvas/internal/app/system/workers"
	"github.com/dalemusser/agentcanvas/internal/app/system/workos"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Services are the long-lived objects shared by handlers, workers and the
// CLI. WorkOS and Syncer are nil when no API key is configured.
type Services struct {
	Memberships *membershipstore.Store
	SyncLogs    *synclog.Store
	Audit       *synclogger.Logger
	Cache       *membershipcache.Cache
	Engine      *membershipsync.Engine
	WorkOS      *workos.Client
	Syncer      *membershipsync.Syncer
	Scheduler   *workers.Scheduler
	// SyncLimiter bounds on-demand syncs per user. Nil means unlimited.
	SyncLimiter *ratelimit.Limiter
}

// Stop halts background work owned by the services.
func (s *Services) Stop() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.SyncLimiter != nil {
		s.SyncLimiter.Stop()
	}
}

// NewServices wires the stores, the reconciliation engine, the identity
// provider client and the background jobs. Nothing is started.
func NewServices(client *mongo.Client, db *mongo.Database, appCfg AppConfig, logger *zap.Logger) (*Services, error) {
	s := &Services{
		Memberships: membershipstore.New(db),
		SyncLogs:    synclog.New(db),
		Cache:       membershipcache.New(appCfg.MembershipCacheTTL, time.Now),
	}
	s.Audit = synclogger.New(s.SyncLogs, logger, synclogger.Config{Mode: appCfg.SyncLogMode})
	s.Engine = membershipsync.NewEngine(s.Memberships, membershipsync.Options{
		Tx:          txn.New(client, logger),
		Concurrency: appCfg.SyncConcurrency,
		Logger:      logger,
	})

	jobs := []tasks.Job{tasks.CachePurgeJob(s.Cache, logger, 0)}

	if appCfg.WorkOSAPIKey != "" {
		wc, err := workos.New(workos.Options{
			BaseURL:           appCfg.WorkOSBaseURL,
			APIKey:            appCfg.WorkOSAPIKey,
			MaxPages:          appCfg.SyncMaxPages,
			RequestsPerSecond: float64(appCfg.SyncRequestsPerSecond),
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		s.WorkOS = wc
		s.Syncer = membershipsync.NewSyncer(s.Engine, wc, s.Audit, membershipsync.SyncerOptions{
			DefaultRole: appCfg.DefaultRole,
			Logger:      logger,
		})

		if appCfg.SyncEnabled {
			jobs = append(jobs, tasks.MembershipSyncJob(s.Syncer, logger, appCfg.SyncInterval, timeouts.Sync()))
		}
	}

	if appCfg.ManualSyncLimit > 0 {
		s.SyncLimiter = ratelimit.New(appCfg.ManualSyncLimit, time.Minute)
	}

	s.Scheduler = workers.NewScheduler(logger, jobs...)
	return s, nil
}

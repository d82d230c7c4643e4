// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/system/membershipcache"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"go.uber.org/zap"
)

// Job is a unit of periodic background work.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds each run. Zero means the scheduler's default.
	Timeout time.Duration
	// RunOnStart runs the job once immediately instead of waiting one interval.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Sweeper runs an organization-wide membership sync.
// *membershipsync.Syncer implements it.
type Sweeper interface {
	SyncEveryone(ctx context.Context, syncType string) (models.SyncResult, error)
}

// DefaultSyncInterval is used when MembershipSyncJob is given no interval.
const DefaultSyncInterval = 15 * time.Minute

// MembershipSyncJob creates the scheduled organization-wide sync. A fetch
// failure is returned (and has already been written to the sync log); the
// sweep performs no writes in that case.
func MembershipSyncJob(sweeper Sweeper, logger *zap.Logger, interval, timeout time.Duration) Job {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return Job{
		Name:       "membership-sync",
		Interval:   interval,
		Timeout:    timeout,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			res, err := sweeper.SyncEveryone(ctx, models.SyncTypeCron)
			if err != nil {
				return err
			}
			if res.Changed() || len(res.Errors) > 0 {
				logger.Info("scheduled membership sync",
					zap.Int("added", res.Added),
					zap.Int("updated", res.Updated),
					zap.Int("removed", res.Removed),
					zap.Int("errors", len(res.Errors)))
			}
			return nil
		},
	}
}

// CachePurgeJob drops expired membership cache entries so users who stop
// making requests do not pin memory.
func CachePurgeJob(cache *membershipcache.Cache, logger *zap.Logger, interval time.Duration) Job {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return Job{
		Name:     "membership-cache-purge",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if cache == nil {
				return errors.New("membership cache is nil")
			}
			if n := cache.Purge(); n > 0 {
				logger.Debug("purged membership cache entries", zap.Int("count", n))
			}
			return nil
		},
	}
}

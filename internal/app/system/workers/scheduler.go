// internal/app/system/workers/scheduler.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/system/tasks"
	"go.uber.org/zap"
)

// DefaultJobTimeout bounds a job run when the job sets no Timeout.
const DefaultJobTimeout = 30 * time.Second

// Scheduler runs periodic jobs in the background, one goroutine per job.
// A job never overlaps itself: the next tick is taken only after the
// previous run returns.
type Scheduler struct {
	jobs   []tasks.Job
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for jobs. Jobs with a non-positive
// interval or nil Run are skipped.
func NewScheduler(logger *zap.Logger, jobs ...tasks.Job) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{jobs: jobs, log: logger, ctx: ctx, cancel: cancel}
}

// Start begins the background loops.
func (s *Scheduler) Start() {
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.log.Warn("skipping job with no interval or body", zap.String("job", job.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(job)
		s.log.Info("background job started",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval))
	}
}

// Stop cancels any running job and waits for all loops to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("background jobs stopped")
}

func (s *Scheduler) loop(job tasks.Job) {
	defer s.wg.Done()

	if job.RunOnStart {
		s.runOnce(job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(job)
		}
	}
}

func (s *Scheduler) runOnce(job tasks.Job) {
	if s.ctx.Err() != nil {
		return
	}
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("background job panicked",
				zap.String("job", job.Name),
				zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error("background job failed",
			zap.String("job", job.Name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return
	}
	s.log.Debug("background job finished",
		zap.String("job", job.Name),
		zap.Duration("took", time.Since(start)))
}

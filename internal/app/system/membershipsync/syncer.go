package membershipsync

import (
	"context"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/system/synclogger"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fetcher reads authoritative membership snapshots from the identity provider.
// *workos.Client implements it. Both methods fail as a whole: a partial
// listing is never returned.
type Fetcher interface {
	UserSnapshot(ctx context.Context, userID, defaultRole string) ([]models.ProposedMembership, error)
	BuildUserMembershipMap(ctx context.Context, defaultRole string) (map[string][]models.ProposedMembership, error)
}

// Syncer ties the fetch, reconcile, and log steps together for the
// webhook, scheduled, manual, and CLI triggers.
type Syncer struct {
	engine      *Engine
	fetch       Fetcher
	audit       *synclogger.Logger
	defaultRole string
	now         func() time.Time
	log         *zap.Logger
}

// SyncerOptions configures a Syncer.
type SyncerOptions struct {
	DefaultRole string
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

// NewSyncer creates a Syncer. audit may be nil.
func NewSyncer(engine *Engine, fetch Fetcher, audit *synclogger.Logger, opts SyncerOptions) *Syncer {
	role := opts.DefaultRole
	if role == "" {
		role = "member"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		engine:      engine,
		fetch:       fetch,
		audit:       audit,
		defaultRole: role,
		now:         now,
		log:         log,
	}
}

// Engine returns the underlying engine.
func (s *Syncer) Engine() *Engine { return s.engine }

// SyncUser fetches userID's current memberships and reconciles them.
// The timestamp is taken before the fetch, so anything written after the
// read began wins over this pass. A fetch error is logged and returned with
// no writes made.
func (s *Syncer) SyncUser(ctx context.Context, syncType, userID string) (models.SyncResult, error) {
	ts := s.now().UnixMilli()
	runID := uuid.NewString()

	snap, err := s.fetch.UserSnapshot(ctx, userID, s.defaultRole)
	if err != nil {
		s.log.Warn("membership fetch failed",
			zap.String("sync_type", syncType),
			zap.String("user_id", userID),
			zap.Error(err))
		s.audit.LogFailure(ctx, syncType, userID, runID, err)
		return models.SyncResult{Errors: []string{}}, err
	}

	res := s.engine.SyncUserMembershipsFromData(ctx, userID, snap, ts)
	s.audit.LogResult(ctx, syncType, userID, runID, res)
	return res, nil
}

// ForgetUser reconciles userID against an empty snapshot, removing every
// record older than now. Used when the identity provider reports the user
// deleted, where a fetch would have nothing to return.
func (s *Syncer) ForgetUser(ctx context.Context, syncType, userID string) models.SyncResult {
	ts := s.now().UnixMilli()
	res := s.engine.SyncUserMembershipsFromData(ctx, userID, nil, ts)
	s.audit.LogResult(ctx, syncType, userID, uuid.NewString(), res)
	return res
}

// SyncEveryone fetches all organizations and their memberships and
// reconciles every user. A fetch error aborts the sweep before any write.
func (s *Syncer) SyncEveryone(ctx context.Context, syncType string) (models.SyncResult, error) {
	ts := s.now().UnixMilli()
	runID := uuid.NewString()
	start := time.Now()

	snapshot, err := s.fetch.BuildUserMembershipMap(ctx, s.defaultRole)
	if err != nil {
		s.log.Error("membership sweep fetch failed",
			zap.String("sync_type", syncType),
			zap.String("run_id", runID),
			zap.Error(err))
		s.audit.LogFailure(ctx, syncType, "", runID, err)
		return models.SyncResult{Errors: []string{}}, err
	}

	res := s.engine.SyncAll(ctx, snapshot, ts)
	s.audit.LogResult(ctx, syncType, "", runID, res)
	s.log.Info("membership sweep finished",
		zap.String("sync_type", syncType),
		zap.String("run_id", runID),
		zap.Int("users", len(snapshot)),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

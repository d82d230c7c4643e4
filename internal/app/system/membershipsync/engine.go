// Package membershipsync reconciles locally stored organization memberships
// against authoritative snapshots read from the identity provider.
//
// Every write is guarded by the snapshot's read timestamp (epoch ms): a
// record is only overwritten or deleted by data read strictly later than the
// data it holds. Equal timestamps are treated as not newer. This makes
// re-delivered and out-of-order triggers harmless without any locking between
// them.
package membershipsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	membershipstore "github.com/dalemusser/agentcanvas/internal/app/store/memberships"
	"github.com/dalemusser/agentcanvas/internal/app/system/txn"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidInput     = errors.New("user id and organization id are required")
	ErrInvalidTimestamp = errors.New("timestamp must be a positive epoch-millisecond value")
)

// Outcome is the effect of a single upsert.
type Outcome string

const (
	OutcomeAdded   Outcome = "added"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// Store is the membership persistence the engine needs.
// *membershipstore.Store implements it.
type Store interface {
	Get(ctx context.Context, userID, orgID string) (*models.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]models.Membership, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	Insert(ctx context.Context, m models.Membership) error
	UpdateIfOlder(ctx context.Context, userID, orgID, orgName, role string, ts int64) (bool, error)
	SetNameIfMissing(ctx context.Context, userID, orgID, orgName string) (bool, error)
	DeleteIfOlder(ctx context.Context, userID, orgID string, ts int64) (bool, error)
}

// Transactor runs fn atomically. *txn.Runner implements it.
type Transactor interface {
	Run(ctx context.Context, fn txn.Func) error
}

// Options configures an Engine.
type Options struct {
	// Tx wraps each upsert and remove. Nil runs them without a transaction;
	// the timestamp-guarded store filters still prevent stale overwrites.
	Tx Transactor
	// Concurrency bounds how many users SyncAll reconciles at once. Default 4.
	Concurrency int
	Logger      *zap.Logger
}

// Engine is the sole writer of membership records.
type Engine struct {
	store       Store
	tx          Transactor
	concurrency int
	log         *zap.Logger
}

// NewEngine creates an Engine over store.
func NewEngine(store Store, opts Options) *Engine {
	n := opts.Concurrency
	if n <= 0 {
		n = 4
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, tx: opts.Tx, concurrency: n, log: log}
}

func (e *Engine) run(ctx context.Context, fn txn.Func) error {
	if e.tx == nil {
		return fn(ctx)
	}
	return e.tx.Run(ctx, fn)
}

// UpsertInput is one proposed membership for one user at one read time.
type UpsertInput struct {
	UserID    string
	OrgID     string
	OrgName   string
	Role      string
	Timestamp int64
}

func (in UpsertInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.OrgID) == "" {
		return ErrInvalidInput
	}
	if in.Timestamp <= 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

// UpsertMembership inserts the record if absent, overwrites role and
// timestamp if in.Timestamp is newer than the stored one, or fills in a
// missing org name. Anything else is skipped.
//
// A non-empty stored org name is never replaced by an empty one.
func (e *Engine) UpsertMembership(ctx context.Context, in UpsertInput) (Outcome, error) {
	if err := in.validate(); err != nil {
		return OutcomeSkipped, err
	}

	out, err := e.upsertOnce(ctx, in)
	if errors.Is(err, membershipstore.ErrDuplicateMembership) {
		// Lost an insert race; the record exists now, so compare against it.
		out, err = e.upsertOnce(ctx, in)
	}
	return out, err
}

func (e *Engine) upsertOnce(ctx context.Context, in UpsertInput) (Outcome, error) {
	out := OutcomeSkipped
	err := e.run(ctx, func(ctx context.Context) error {
		out = OutcomeSkipped

		existing, err := e.store.Get(ctx, in.UserID, in.OrgID)
		if err != nil {
			return err
		}

		if existing == nil {
			if err := e.store.Insert(ctx, models.Membership{
				UserID:    in.UserID,
				OrgID:     in.OrgID,
				OrgName:   in.OrgName,
				Role:      in.Role,
				UpdatedAt: in.Timestamp,
			}); err != nil {
				return err
			}
			out = OutcomeAdded
			return nil
		}

		if in.Timestamp > existing.UpdatedAt {
			ok, err := e.store.UpdateIfOlder(ctx, in.UserID, in.OrgID, in.OrgName, in.Role, in.Timestamp)
			if err != nil {
				return err
			}
			if ok {
				out = OutcomeUpdated
			}
			return nil
		}

		// Stale. The only permitted write is filling in a missing name.
		if existing.OrgName == "" && in.OrgName != "" {
			ok, err := e.store.SetNameIfMissing(ctx, in.UserID, in.OrgID, in.OrgName)
			if err != nil {
				return err
			}
			if ok {
				out = OutcomeUpdated
			}
		}
		return nil
	})
	if err != nil {
		return OutcomeSkipped, err
	}
	return out, nil
}

// RemoveMembership deletes the record for (userID, orgID) if ts is newer than
// its stored timestamp. Returns false when there is no record or the removal
// is stale.
func (e *Engine) RemoveMembership(ctx context.Context, userID, orgID string, ts int64) (bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(orgID) == "" {
		return false, ErrInvalidInput
	}
	if ts <= 0 {
		return false, ErrInvalidTimestamp
	}

	removed := false
	err := e.run(ctx, func(ctx context.Context) error {
		removed = false

		existing, err := e.store.Get(ctx, userID, orgID)
		if err != nil {
			return err
		}
		if existing == nil || ts <= existing.UpdatedAt {
			return nil
		}
		removed, err = e.store.DeleteIfOlder(ctx, userID, orgID, ts)
		return err
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// SyncUserMembershipsFromData makes the stored memberships of userID match
// proposed, a complete snapshot read at ts. Records for organizations not in
// the snapshot are removed.
//
// Per-record failures are collected in the result and do not stop the pass.
// If the existing records cannot be loaded, removals are skipped: deleting
// against an unknown baseline is not safe.
func (e *Engine) SyncUserMembershipsFromData(ctx context.Context, userID string, proposed []models.ProposedMembership, ts int64) models.SyncResult {
	res := models.SyncResult{Errors: []string{}}

	if strings.TrimSpace(userID) == "" {
		res.Errors = append(res.Errors, ErrInvalidInput.Error())
		return res
	}
	if ts <= 0 {
		res.Errors = append(res.Errors, ErrInvalidTimestamp.Error())
		return res
	}

	existing, loadErr := e.store.ListByUser(ctx, userID)
	if loadErr != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("load memberships for %s: %v", userID, loadErr))
	}

	keep := make(map[string]bool, len(proposed))
	for _, p := range proposed {
		keep[p.OrgID] = true

		out, err := e.UpsertMembership(ctx, UpsertInput{
			UserID:    userID,
			OrgID:     p.OrgID,
			OrgName:   p.OrgName,
			Role:      p.Role,
			Timestamp: ts,
		})
		if err != nil {
			e.log.Warn("membership upsert failed",
				zap.String("user_id", userID),
				zap.String("org_id", p.OrgID),
				zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("upsert %s/%s: %v", userID, p.OrgID, err))
			continue
		}
		switch out {
		case OutcomeAdded:
			res.Added++
		case OutcomeUpdated:
			res.Updated++
		}
	}

	if loadErr != nil {
		return res
	}

	for _, m := range existing {
		if keep[m.OrgID] {
			continue
		}
		ok, err := e.RemoveMembership(ctx, userID, m.OrgID, ts)
		if err != nil {
			e.log.Warn("membership remove failed",
				zap.String("user_id", userID),
				zap.String("org_id", m.OrgID),
				zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("remove %s/%s: %v", userID, m.OrgID, err))
			continue
		}
		if ok {
			res.Removed++
		}
	}
	return res
}

// SyncAll reconciles every user: each user in snapshot against their
// entry, and each user that has stored records but is absent from snapshot
// against an empty list. snapshot must be complete for ts.
func (e *Engine) SyncAll(ctx context.Context, snapshot map[string][]models.ProposedMembership, ts int64) models.SyncResult {
	total := models.SyncResult{Errors: []string{}}
	if ts <= 0 {
		total.Errors = append(total.Errors, ErrInvalidTimestamp.Error())
		return total
	}

	users := make(map[string]bool, len(snapshot))
	for id := range snapshot {
		users[id] = true
	}
	stored, err := e.store.ListUserIDs(ctx)
	if err != nil {
		// Without the stored user list, users who left every organization
		// are not visited this pass. Everyone in the snapshot still is.
		total.Errors = append(total.Errors, fmt.Sprintf("list stored users: %v", err))
	}
	for _, id := range stored {
		users[id] = true
	}

	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				mu.Lock()
				total.Errors = append(total.Errors, fmt.Sprintf("sync %s: %v", id, err))
				mu.Unlock()
				return nil
			}
			res := e.SyncUserMembershipsFromData(gctx, id, snapshot[id], ts)
			mu.Lock()
			total.Merge(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	e.log.Info("membership sweep complete",
		zap.Int("users", len(ids)),
		zap.Int("added", total.Added),
		zap.Int("updated", total.Updated),
		zap.Int("removed", total.Removed),
		zap.Int("errors", len(total.Errors)))
	return total
}

// internal/domain/models/membership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership is the local copy of an identity-provider organization membership.
// Exactly one document per (user_id, org_id).
//
// UpdatedAt is the epoch-millisecond time at which the source data was read
// from the identity provider, not the time the row was written. Writes carrying
// an UpdatedAt that is not newer than the stored one are ignored.
type Membership struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID    string             `bson:"user_id" json:"user_id"`
	OrgID     string             `bson:"org_id" json:"org_id"`
	OrgName   string             `bson:"org_name,omitempty" json:"org_name,omitempty"`
	Role      string             `bson:"role" json:"role"`
	UpdatedAt int64              `bson:"updated_at,omitempty" json:"updated_at"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	// SyncedAt is the pre-rename name of UpdatedAt. Only read, never written.
	SyncedAt int64 `bson:"synced_at,omitempty" json:"-"`
}

// Normalize folds the legacy synced_at value into UpdatedAt.
// Stores call this once on every decoded record so callers only ever see UpdatedAt.
func (m *Membership) Normalize() {
	if m.UpdatedAt == 0 && m.SyncedAt > 0 {
		m.UpdatedAt = m.SyncedAt
	}
	m.SyncedAt = 0
}

// ProposedMembership is one entry of an authoritative membership snapshot
// for a single user, as read from the identity provider.
type ProposedMembership struct {
	OrgID   string `json:"org_id"`
	OrgName string `json:"org_name,omitempty"`
	Role    string `json:"role"`
}

// SyncResult summarizes one reconciliation pass. It is returned to the
// caller and never persisted.
type SyncResult struct {
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Removed int      `json:"removed"`
	Errors  []string `json:"errors"`
}

// Merge adds the counts and errors of other into r.
func (r *SyncResult) Merge(other SyncResult) {
	r.Added += other.Added
	r.Updated += other.Updated
	r.Removed += other.Removed
	r.Errors = append(r.Errors, other.Errors...)
}

// Changed reports whether the pass wrote anything.
func (r SyncResult) Changed() bool {
	return r.Added+r.Updated+r.Removed > 0
}

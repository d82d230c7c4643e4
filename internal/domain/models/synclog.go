// internal/domain/models/synclog.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sync trigger types.
const (
	SyncTypeWebhook = "webhook"
	SyncTypeCron    = "cron"
	SyncTypeManual  = "manual"
)

// Sync statuses.
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusError   = "error"
	SyncStatusSkipped = "skipped"
)

// SyncLogEntry is one append-only record of a membership sync attempt.
// UserID is empty for organization-wide sweeps.
type SyncLogEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Type      string             `bson:"type" json:"type"`
	UserID    string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Status    string             `bson:"status" json:"status"`
	Detail    string             `bson:"detail,omitempty" json:"detail,omitempty"`
	RunID     string             `bson:"run_id,omitempty" json:"run_id,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

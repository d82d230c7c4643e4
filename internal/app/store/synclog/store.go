// internal/app/store/synclog/store.go
package synclog

import (
	"context"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MaxDetailLen caps stored detail strings. Upstream error bodies can be large.
const MaxDetailLen = 4000

// Filter narrows a Recent query. Zero values mean "any".
type Filter struct {
	UserID string
	Type   string
	Status string
	Since  *time.Time
	Limit  int64
}

// Store is the append-only sync log. It has no update or delete methods.
type Store struct {
	c      *mongo.Collection
	policy *bluemonday.Policy
}

// New creates a new sync log Store.
func New(db *mongo.Database) *Store {
	return &Store{
		c:      db.Collection("sync_logs"),
		policy: bluemonday.StrictPolicy(),
	}
}

// Log appends one entry. Timestamp and ID are filled in when zero.
// Detail is stripped of markup (identity-provider error pages are often HTML)
// and truncated to MaxDetailLen.
func (s *Store) Log(ctx context.Context, e models.SyncLogEntry) error {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Detail = s.cleanDetail(e.Detail)
	_, err := s.c.InsertOne(ctx, e)
	return err
}

func (s *Store) cleanDetail(detail string) string {
	if detail == "" {
		return ""
	}
	// Sanitize escapes what it keeps; the log is plain text.
	d := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(detail)))
	return truncate(d, MaxDetailLen)
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

// Recent returns the newest entries matching f, newest first.
// Default limit is 100.
func (s *Store) Recent(ctx context.Context, f Filter) ([]models.SyncLogEntry, error) {
	query := bson.M{}
	if f.UserID != "" {
		query["user_id"] = f.UserID
	}
	if f.Type != "" {
		query["type"] = f.Type
	}
	if f.Status != "" {
		query["status"] = f.Status
	}
	if f.Since != nil {
		query["timestamp"] = bson.M{"$gte": *f.Since}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.SyncLogEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

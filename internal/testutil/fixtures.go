package testutil

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dalemusser/agentcanvas/internal/domain/models"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateMembership inserts a membership record directly, bypassing the store.
func (f *Fixtures) CreateMembership(ctx context.Context, userID, orgID, orgName, role string, updatedAt int64) models.Membership {
	f.t.Helper()

	m := models.Membership{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		OrgID:     orgID,
		OrgName:   orgName,
		Role:      role,
		UpdatedAt: updatedAt,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := f.db.Collection("org_memberships").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test membership: %v", err)
	}
	return m
}

// CreateLegacyMembership inserts a record that still uses the old synced_at
// field instead of updated_at.
func (f *Fixtures) CreateLegacyMembership(ctx context.Context, userID, orgID, role string, syncedAt int64) {
	f.t.Helper()

	doc := bson.M{
		"_id":        primitive.NewObjectID(),
		"user_id":    userID,
		"org_id":     orgID,
		"role":       role,
		"synced_at":  syncedAt,
		"created_at": time.Now().UTC(),
	}
	if _, err := f.db.Collection("org_memberships").InsertOne(ctx, doc); err != nil {
		f.t.Fatalf("failed to create legacy test membership: %v", err)
	}
}

// FindMembership loads a membership record directly from the collection.
// Returns nil if none exists.
func (f *Fixtures) FindMembership(ctx context.Context, userID, orgID string) *models.Membership {
	f.t.Helper()

	var m models.Membership
	err := f.db.Collection("org_memberships").FindOne(ctx, bson.M{"user_id": userID, "org_id": orgID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil
	}
	if err != nil {
		f.t.Fatalf("failed to load test membership: %v", err)
	}
	return &m
}

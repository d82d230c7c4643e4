// internal/app/store/memberships/membershipstore.go
package membershipstore

// Terminology: Identifiers
//   - UserID / userID / user_id: the identity provider's user id (e.g. "user_01H...")
//   - OrgID / orgID / org_id: the identity provider's organization id (e.g. "org_01H...")

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/agentcanvas/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding membership records.
const CollectionName = "org_memberships"

var ErrDuplicateMembership = errors.New("membership already exists for this user and organization")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

// Get returns the membership for (userID, orgID), or nil if there is none.
func (s *Store) Get(ctx context.Context, userID, orgID string) (*models.Membership, error) {
	var m models.Membership
	err := s.c.FindOne(ctx, bson.M{"user_id": userID, "org_id": orgID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Normalize()
	return &m, nil
}

// ListByUser returns all memberships for a user ordered by org_id.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]models.Membership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "org_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Membership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

// ListByOrg returns all memberships for an organization ordered by user_id.
func (s *Store) ListByOrg(ctx context.Context, orgID string) ([]models.Membership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"org_id": orgID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Membership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

// ListUserIDs returns the distinct user ids that have at least one membership.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	vals, err := s.c.Distinct(ctx, "user_id", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if id, ok := v.(string); ok && id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

// Insert creates a new membership record.
// Returns ErrDuplicateMembership if a record for the pair already exists.
func (s *Store) Insert(ctx context.Context, m models.Membership) error {
	doc := bson.M{
		"user_id":    m.UserID,
		"org_id":     m.OrgID,
		"role":       m.Role,
		"updated_at": m.UpdatedAt,
		"created_at": time.Now().UTC(),
	}
	if m.OrgName != "" {
		doc["org_name"] = m.OrgName
	}
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateMembership
		}
		return err
	}
	return nil
}

// olderThan matches records whose timestamp is strictly older than ts,
// including records that carry no updated_at at all.
func olderThan(ts int64) bson.M {
	return bson.M{"$not": bson.M{"$gte": ts}}
}

// UpdateIfOlder sets role and updated_at (and org_name when non-empty) on the
// record for (userID, orgID), but only if its stored timestamp is older than ts.
// Returns false when nothing matched.
func (s *Store) UpdateIfOlder(ctx context.Context, userID, orgID, orgName, role string, ts int64) (bool, error) {
	set := bson.M{
		"role":       role,
		"updated_at": ts,
	}
	if orgName != "" {
		set["org_name"] = orgName
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID, "org_id": orgID, "updated_at": olderThan(ts)},
		bson.M{"$set": set, "$unset": bson.M{"synced_at": ""}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// SetNameIfMissing fills in org_name on a record that has none. The
// timestamp is left untouched.
func (s *Store) SetNameIfMissing(ctx context.Context, userID, orgID, orgName string) (bool, error) {
	if orgName == "" {
		return false, nil
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID, "org_id": orgID, "org_name": bson.M{"$in": bson.A{nil, ""}}},
		bson.M{"$set": bson.M{"org_name": orgName}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// DeleteIfOlder removes the record for (userID, orgID) if its stored
// timestamp is older than ts.
func (s *Store) DeleteIfOlder(ctx context.Context, userID, orgID string, ts int64) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"user_id": userID, "org_id": orgID, "updated_at": olderThan(ts)})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// CountByOrg returns the number of members in an organization, optionally filtered by role.
func (s *Store) CountByOrg(ctx context.Context, orgID, role string) (int64, error) {
	filter := bson.M{"org_id": orgID}
	if role != "" {
		filter["role"] = role
	}
	return s.c.CountDocuments(ctx, filter)
}

// MigrateLegacyTimestamps copies synced_at into updated_at on records written
// before the field was renamed and drops synced_at. Safe to run repeatedly.
// Returns the number of records migrated.
func (s *Store) MigrateLegacyTimestamps(ctx context.Context) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"updated_at": bson.M{"$exists": false}, "synced_at": bson.M{"$exists": true}},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.M{"updated_at": "$synced_at"}}},
			{{Key: "$unset", Value: "synced_at"}},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

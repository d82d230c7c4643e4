package membershipsync_test

import (
	"context"
	"sort"
	"sync"

	membershipstore "github.com/dalemusser/agentcanvas/internal/app/store/memberships"
	"github.com/dalemusser/agentcanvas/internal/app/system/txn"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
)

type memKey struct{ user, org string }

// memStore is an in-memory Store with the same conditional-write semantics
// as the MongoDB store, plus per-org failure injection.
type memStore struct {
	mu   sync.Mutex
	recs map[memKey]models.Membership

	failWrite   map[string]error // org id -> error for Insert/Update/SetName
	failDelete  map[string]error // org id -> error for DeleteIfOlder
	failList    error
	failUserIDs error
	dupOnce     map[string]bool // org id -> report a duplicate on the next Insert
}

func newMemStore() *memStore {
	return &memStore{
		recs:       map[memKey]models.Membership{},
		failWrite:  map[string]error{},
		failDelete: map[string]error{},
		dupOnce:    map[string]bool{},
	}
}

func (s *memStore) put(userID, orgID, orgName, role string, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[memKey{userID, orgID}] = models.Membership{UserID: userID, OrgID: orgID, OrgName: orgName, Role: role, UpdatedAt: ts}
}

func (s *memStore) get(userID, orgID string) (models.Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.recs[memKey{userID, orgID}]
	return m, ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func (s *memStore) Get(_ context.Context, userID, orgID string) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.recs[memKey{userID, orgID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *memStore) ListByUser(_ context.Context, userID string) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	var out []models.Membership
	for k, m := range s.recs {
		if k.user == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrgID < out[j].OrgID })
	return out, nil
}

func (s *memStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUserIDs != nil {
		return nil, s.failUserIDs
	}
	seen := map[string]bool{}
	var out []string
	for k := range s.recs {
		if !seen[k.user] {
			seen[k.user] = true
			out = append(out, k.user)
		}
	}
	return out, nil
}

func (s *memStore) Insert(_ context.Context, m models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite[m.OrgID]; err != nil {
		return err
	}
	k := memKey{m.UserID, m.OrgID}
	if s.dupOnce[m.OrgID] {
		// Simulate a concurrent writer that inserted first.
		delete(s.dupOnce, m.OrgID)
		s.recs[k] = models.Membership{UserID: m.UserID, OrgID: m.OrgID, Role: "member", UpdatedAt: 1}
		return membershipstore.ErrDuplicateMembership
	}
	if _, exists := s.recs[k]; exists {
		return membershipstore.ErrDuplicateMembership
	}
	s.recs[k] = m
	return nil
}

func (s *memStore) UpdateIfOlder(_ context.Context, userID, orgID, orgName, role string, ts int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite[orgID]; err != nil {
		return false, err
	}
	k := memKey{userID, orgID}
	m, ok := s.recs[k]
	if !ok || m.UpdatedAt >= ts {
		return false, nil
	}
	m.Role = role
	m.UpdatedAt = ts
	if orgName != "" {
		m.OrgName = orgName
	}
	s.recs[k] = m
	return true, nil
}

func (s *memStore) SetNameIfMissing(_ context.Context, userID, orgID, orgName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite[orgID]; err != nil {
		return false, err
	}
	k := memKey{userID, orgID}
	m, ok := s.recs[k]
	if !ok || m.OrgName != "" || orgName == "" {
		return false, nil
	}
	m.OrgName = orgName
	s.recs[k] = m
	return true, nil
}

func (s *memStore) DeleteIfOlder(_ context.Context, userID, orgID string, ts int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failDelete[orgID]; err != nil {
		return false, err
	}
	k := memKey{userID, orgID}
	m, ok := s.recs[k]
	if !ok || m.UpdatedAt >= ts {
		return false, nil
	}
	delete(s.recs, k)
	return true, nil
}

// countingTx records how many units of work were run through it.
type countingTx struct {
	mu   sync.Mutex
	runs int
}

func (c *countingTx) Run(ctx context.Context, fn txn.Func) error {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
	return fn(ctx)
}

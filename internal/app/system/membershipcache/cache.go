// Package membershipcache holds a short-lived, per-user copy of membership
// records so request handlers do not hit MongoDB on every call. A Cache is
// owned by whoever constructs it; there is no package-level instance.
package membershipcache

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/agentcanvas/internal/domain/models"
)

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 60 * time.Second

// Loader reads a user's memberships from the backing store.
type Loader func(ctx context.Context, userID string) ([]models.Membership, error)

type entry struct {
	memberships []models.Membership
	expires     time.Time
}

// Cache maps user id to that user's memberships. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	// gen is bumped by Invalidate. Load only caches what it read if no
	// invalidation happened while it was reading.
	gen uint64
}

// New creates a Cache. now defaults to time.Now.
func New(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{entries: make(map[string]entry), ttl: ttl, now: now}
}

// Get returns the cached memberships for userID if present and unexpired.
func (c *Cache) Get(userID string) ([]models.Membership, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, userID)
		return nil, false
	}
	return cloneList(e.memberships), true
}

// Set stores memberships for userID for one TTL.
func (c *Cache) Set(userID string, memberships []models.Membership) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = entry{memberships: cloneList(memberships), expires: c.now().Add(c.ttl)}
}

// Invalidate drops userID's entry.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.gen++
}

// Purge drops every expired entry and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Load returns the cached memberships for userID, calling load and caching
// its result on a miss. Errors are not cached, and neither is a result read
// across an Invalidate, since it may predate the write that caused it.
func (c *Cache) Load(ctx context.Context, userID string, load Loader) ([]models.Membership, error) {
	if ms, ok := c.Get(userID); ok {
		return ms, nil
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	ms, err := load(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.entries[userID] = entry{memberships: cloneList(ms), expires: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()
	return cloneList(ms), nil
}

// Role returns userID's role in orgID from the cached list, loading on miss.
// ok is false when the user is not a member.
func (c *Cache) Role(ctx context.Context, userID, orgID string, load Loader) (role string, ok bool, err error) {
	ms, err := c.Load(ctx, userID, load)
	if err != nil {
		return "", false, err
	}
	for _, m := range ms {
		if m.OrgID == orgID {
			return m.Role, true, nil
		}
	}
	return "", false, nil
}

func cloneList(in []models.Membership) []models.Membership {
	if in == nil {
		return nil
	}
	out := make([]models.Membership, len(in))
	copy(out, in)
	return out
}

package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

// MemoryCache is a map-backed StateCache that counts calls. Err, when set, fails every call.
// Skipped counts stores dropped because the user's version moved.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]map[uuid.UUID]models.VoteState
	versions map[uuid.UUID]int64

	Err           error
	Lookups       int
	Stores        int
	Skipped       int
	Invalidations int
}

var _ votes.StateCache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:  make(map[uuid.UUID]map[uuid.UUID]models.VoteState),
		versions: make(map[uuid.UUID]int64),
	}
}

func (c *MemoryCache) Lookup(_ context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]models.VoteState, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Lookups++
	if c.Err != nil {
		return nil, 0, c.Err
	}
	hits := make(map[uuid.UUID]models.VoteState)
	for _, id := range itemIDs {
		if st, ok := c.entries[userID][id]; ok {
			hits[id] = st
		}
	}
	return hits, c.versions[userID], nil
}

func (c *MemoryCache) Store(_ context.Context, userID uuid.UUID, version int64, states map[uuid.UUID]models.VoteState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Stores++
	if c.Err != nil {
		return c.Err
	}
	if c.versions[userID] != version {
		c.Skipped++
		return nil
	}
	if c.entries[userID] == nil {
		c.entries[userID] = make(map[uuid.UUID]models.VoteState)
	}
	for id, st := range states {
		c.entries[userID][id] = st
	}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID, itemID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Invalidations++
	if c.Err != nil {
		return c.Err
	}
	delete(c.entries[userID], itemID)
	c.versions[userID]++
	return nil
}

// Has reports whether an entry is cached.
func (c *MemoryCache) Has(userID, itemID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[userID][itemID]
	return ok
}

package votes

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/logger"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
)

// Reader answers "has this user voted on these items" without taking write locks.
// Results may trail an in-flight Toggle.
type Reader struct {
	ledger   Ledger
	cache    StateCache
	log      *logger.Logger
	maxBatch int
}

func NewReader(ledger Ledger, cache StateCache, log *logger.Logger, maxBatch int) *Reader {
	if cache == nil {
		cache = noopCache{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Reader{ledger: ledger, cache: cache, log: log, maxBatch: maxBatch}
}

// States returns an entry for every requested id. Unknown or un-voted ids map to the zero VoteState.
func (r *Reader) States(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]models.VoteState, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	ids := make([]uuid.UUID, 0, len(itemIDs))
	seen := make(map[uuid.UUID]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if id == uuid.Nil {
			return nil, Malformed("item id must not be nil")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if r.maxBatch > 0 && len(ids) > r.maxBatch {
		return nil, Malformed(fmt.Sprintf("at most %d item ids per request, got %d", r.maxBatch, len(ids)))
	}

	states := make(map[uuid.UUID]models.VoteState, len(ids))
	if len(ids) == 0 {
		return states, nil
	}

	hits, version, err := r.cache.Lookup(ctx, userID, ids)
	cacheOK := err == nil
	if err != nil {
		r.log.Warn("vote state cache lookup failed", "user_id", userID, "error", err)
		hits = nil
	}
	misses := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if st, ok := hits[id]; ok {
			states[id] = st
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return states, nil
	}

	dirs, err := r.ledger.Directions(ctx, userID, misses)
	if err != nil {
		return nil, err
	}
	fetched := make(map[uuid.UUID]models.VoteState, len(misses))
	for _, id := range misses {
		st := models.StateOf(dirs[id])
		states[id] = st
		fetched[id] = st
	}
	if !cacheOK {
		return states, nil
	}
	if err := r.cache.Store(ctx, userID, version, fetched); err != nil {
		r.log.Warn("vote state cache store failed", "user_id", userID, "error", err)
	}
	return states, nil
}

func (r *Reader) State(ctx context.Context, userID, itemID uuid.UUID) (models.VoteState, error) {
	states, err := r.States(ctx, userID, []uuid.UUID{itemID})
	if err != nil {
		return models.VoteState{}, err
	}
	return states[itemID], nil
}

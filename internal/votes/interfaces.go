package votes

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
)

// Ledger is the vote record store. One record per (item, user) pair.
type Ledger interface {
	// Find returns nil, nil when the user has no vote on the item.
	Find(ctx context.Context, itemID, userID uuid.UUID) (*models.VoteRecord, error)
	Insert(ctx context.Context, rec *models.VoteRecord) error
	// Remove deletes exactly rec. A record that is already gone is ErrConflict.
	Remove(ctx context.Context, rec *models.VoteRecord) error
	Directions(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]models.Direction, error)
	Sum(ctx context.Context, itemID uuid.UUID) (int64, error)
}

// Counter is the item counter store. Unknown items are ErrItemNotFound.
type Counter interface {
	Get(ctx context.Context, itemID uuid.UUID) (*models.VotableItem, error)
	// GetForUpdate is Get holding the item row lock until the transaction ends.
	GetForUpdate(ctx context.Context, itemID uuid.UUID) (*models.VotableItem, error)
	Score(ctx context.Context, itemID uuid.UUID) (int64, error)
	// ApplyDelta performs score = score + delta and returns the new score.
	ApplyDelta(ctx context.Context, itemID uuid.UUID, delta int64) (int64, error)
	SetScore(ctx context.Context, itemID uuid.UUID, score int64) error
}

// Tx exposes both stores bound to one transaction.
type Tx interface {
	Ledger() Ledger
	Counter() Counter
}

// TxRunner runs fn atomically. Returning an error from fn rolls everything back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// StateCache is an optional read-through cache of per-user vote states.
// Lookup reports the user's cache version; Store must drop the write when an
// Invalidate for that user has happened since, so a ledger read that raced a
// committed vote never lands in the cache.
type StateCache interface {
	// Lookup returns only the hits.
	Lookup(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]models.VoteState, int64, error)
	Store(ctx context.Context, userID uuid.UUID, version int64, states map[uuid.UUID]models.VoteState) error
	Invalidate(ctx context.Context, userID, itemID uuid.UUID) error
}

type noopCache struct{}

func (noopCache) Lookup(context.Context, uuid.UUID, []uuid.UUID) (map[uuid.UUID]models.VoteState, int64, error) {
	return nil, 0, nil
}
func (noopCache) Store(context.Context, uuid.UUID, int64, map[uuid.UUID]models.VoteState) error {
	return nil
}
func (noopCache) Invalidate(context.Context, uuid.UUID, uuid.UUID) error { return nil }

// Hooks captures engine-level observability events.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}

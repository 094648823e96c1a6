package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/logger"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

// VoteService is the write side of the vote ledger.
type VoteService interface {
	Toggle(ctx context.Context, itemID, userID uuid.UUID, dir models.Direction) (*votes.Result, error)
	Clear(ctx context.Context, itemID, userID uuid.UUID) (*votes.Result, error)
	Audit(ctx context.Context, itemID uuid.UUID) (*models.ScoreAudit, error)
}

type StateReader interface {
	States(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]models.VoteState, error)
}

type ItemRegistry interface {
	Create(ctx context.Context, item *models.VotableItem) error
	Get(ctx context.Context, itemID uuid.UUID) (*models.VotableItem, error)
}

// Handler combines all handler types
type Handler struct {
	Vote *VoteHandler
	Item *ItemHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(engine VoteService, reader StateReader, items ItemRegistry, log *logger.Logger) *Handler {
	return &Handler{
		Vote: NewVoteHandler(engine, reader, log),
		Item: NewItemHandler(items, engine, log),
	}
}

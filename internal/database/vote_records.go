package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

// LedgerStore persists vote records. Bound to a transaction when built from one.
type LedgerStore struct {
	db *gorm.DB
}

var _ votes.Ledger = (*LedgerStore)(nil)

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Find(ctx context.Context, itemID, userID uuid.UUID) (*models.VoteRecord, error) {
	var rec models.VoteRecord
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND user_id = ?", itemID, userID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &rec, nil
}

// Insert fails with ErrConflict when the pair already has a record.
func (s *LedgerStore) Insert(ctx context.Context, rec *models.VoteRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return classify(err)
	}
	return nil
}

// Remove deletes by record id so a concurrent flip that already replaced it is detected.
func (s *LedgerStore) Remove(ctx context.Context, rec *models.VoteRecord) error {
	res := s.db.WithContext(ctx).
		Where("id = ?", rec.ID).
		Delete(&models.VoteRecord{})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: vote record %s already removed", votes.ErrConflict, rec.ID)
	}
	return nil
}

func (s *LedgerStore) Directions(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]models.Direction, error) {
	out := make(map[uuid.UUID]models.Direction, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		ItemID    uuid.UUID
		Direction models.Direction
	}
	err := s.db.WithContext(ctx).
		Model(&models.VoteRecord{}).
		Select("item_id", "direction").
		Where("user_id = ? AND item_id IN ?", userID, itemIDs).
		Find(&rows).Error
	if err != nil {
		return nil, classify(err)
	}
	for _, row := range rows {
		out[row.ItemID] = row.Direction
	}
	return out, nil
}

// Sum is the net weight of all records on the item.
func (s *LedgerStore) Sum(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).
		Model(&models.VoteRecord{}).
		Select("COALESCE(SUM(CASE WHEN direction = ? THEN 1 ELSE -1 END), 0)", models.DirectionUp).
		Where("item_id = ?", itemID).
		Scan(&sum).Error
	if err != nil {
		return 0, classify(err)
	}
	return sum, nil
}

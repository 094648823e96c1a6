package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

// ItemStore holds the denormalized score of posts and comments.
type ItemStore struct {
	db *gorm.DB
}

var _ votes.Counter = (*ItemStore)(nil)

func NewItemStore(db *gorm.DB) *ItemStore {
	return &ItemStore{db: db}
}

// Create registers an item with score = baseline. A taken id is ErrItemExists.
func (s *ItemStore) Create(ctx context.Context, item *models.VotableItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.Score = item.Baseline
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", votes.ErrItemExists, item.ID)
		}
		return classify(err)
	}
	return nil
}

func (s *ItemStore) Get(ctx context.Context, itemID uuid.UUID) (*models.VotableItem, error) {
	return s.take(s.db.WithContext(ctx), itemID)
}

// GetForUpdate reads the item with SELECT ... FOR UPDATE. SQLite has no row locks;
// its single writer connection already serializes the transaction.
func (s *ItemStore) GetForUpdate(ctx context.Context, itemID uuid.UUID) (*models.VotableItem, error) {
	return s.take(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), itemID)
}

func (s *ItemStore) take(db *gorm.DB, itemID uuid.UUID) (*models.VotableItem, error) {
	var item models.VotableItem
	err := db.Where("id = ?", itemID).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, votes.ErrItemNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return &item, nil
}

func (s *ItemStore) Score(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var score int64
	row := s.db.WithContext(ctx).
		Model(&models.VotableItem{}).
		Select("score").
		Where("id = ?", itemID).
		Row()
	if err := row.Scan(&score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, votes.ErrItemNotFound
		}
		return 0, classify(err)
	}
	return score, nil
}

// ApplyDelta is a relative update; the row lock it takes holds until the transaction ends.
func (s *ItemStore) ApplyDelta(ctx context.Context, itemID uuid.UUID, delta int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.VotableItem{}).
		Where("id = ?", itemID).
		Update("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, votes.ErrItemNotFound
	}
	return s.Score(ctx, itemID)
}

func (s *ItemStore) SetScore(ctx context.Context, itemID uuid.UUID, score int64) error {
	res := s.db.WithContext(ctx).
		Model(&models.VotableItem{}).
		Where("id = ?", itemID).
		Update("score", score)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return votes.ErrItemNotFound
	}
	return nil
}

// IDs pages through item ids in id order, starting after the given id.
func (s *ItemStore) IDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := s.db.WithContext(ctx).Model(&models.VotableItem{}).Order("id").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

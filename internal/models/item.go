package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemKind tells posts and comments apart. Both share one counter implementation.
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

var ErrInvalidKind = errors.New("invalid item kind: must be 'post' or 'comment'")

func ParseItemKind(s string) (ItemKind, error) {
	k := ItemKind(strings.ToLower(strings.TrimSpace(s)))
	if k != KindPost && k != KindComment {
		return "", ErrInvalidKind
	}
	return k, nil
}

// VotableItem holds the denormalized score of a post or comment.
// Score is written only by the vote engine; Baseline is the score the item was registered with.
type VotableItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      ItemKind  `gorm:"type:varchar(16);not null;index" json:"kind"`
	Score     int64     `gorm:"not null" json:"score"`
	Baseline  int64     `gorm:"not null" json:"baseline"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoreAudit compares an item's counter against its ledger.
type ScoreAudit struct {
	ItemID    uuid.UUID `json:"item_id"`
	Score     int64     `json:"score"`
	Baseline  int64     `json:"baseline"`
	LedgerSum int64     `json:"ledger_sum"`
	Drift     int64     `json:"drift"`
}

func NewScoreAudit(item *VotableItem, ledgerSum int64) ScoreAudit {
	return ScoreAudit{
		ItemID:    item.ID,
		Score:     item.Score,
		Baseline:  item.Baseline,
		LedgerSum: ledgerSum,
		Drift:     item.Score - (item.Baseline + ledgerSum),
	}
}

package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction is the polarity of a vote.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

var ErrInvalidDirection = errors.New("invalid vote direction: must be 'up' or 'down'")

// ParseDirection accepts "up"/"down" in any case.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", ErrInvalidDirection
	}
	return d, nil
}

func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// Weight is the contribution of one vote in this direction to an item's score.
func (d Direction) Weight() int64 {
	switch d {
	case DirectionUp:
		return 1
	case DirectionDown:
		return -1
	default:
		return 0
	}
}

// VoteRecord is one user's directional vote on one item.
// Records are inserted and deleted, never updated in place.
type VoteRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_vote_records_item_user,priority:1" json:"item_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_vote_records_item_user,priority:2;index:idx_vote_records_user" json:"user_id"`
	Direction Direction `gorm:"type:varchar(4);not null" json:"direction"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// VoteState is derived from the presence of a VoteRecord; at most one flag is set.
type VoteState struct {
	Upvoted   bool `json:"upvoted"`
	Downvoted bool `json:"downvoted"`
}

// StateOf maps an optional direction to a VoteState. The empty direction means no vote.
func StateOf(d Direction) VoteState {
	return VoteState{
		Upvoted:   d == DirectionUp,
		Downvoted: d == DirectionDown,
	}
}

// Direction returns the recorded direction, or "" when no vote is cast.
func (s VoteState) Direction() Direction {
	switch {
	case s.Upvoted:
		return DirectionUp
	case s.Downvoted:
		return DirectionDown
	default:
		return ""
	}
}

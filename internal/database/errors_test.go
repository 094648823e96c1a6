package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"pgx unique violation", &pgconn.PgError{Code: "23505"}, votes.ErrConflict},
		{"pgx serialization failure", &pgconn.PgError{Code: "40001"}, votes.ErrConflict},
		{"pgx deadlock", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"}), votes.ErrConflict},
		{"pgx lock not available", &pgconn.PgError{Code: "55P03"}, votes.ErrConflict},
		{"pgx connection failure", &pgconn.PgError{Code: "08006"}, votes.ErrStoreUnavailable},
		{"pgx admin shutdown", &pgconn.PgError{Code: "57P01"}, votes.ErrStoreUnavailable},
		{"pq unique violation", &pq.Error{Code: "23505"}, votes.ErrConflict},
		{"pq serialization failure", &pq.Error{Code: "40001"}, votes.ErrConflict},
		{"pq too many connections", &pq.Error{Code: "53300"}, votes.ErrStoreUnavailable},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, votes.ErrConflict},
		{"sqlite locked", sqlite3.Error{Code: sqlite3.ErrLocked}, votes.ErrConflict},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, votes.ErrConflict},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, votes.ErrConflict},
		{"gorm record not found", gorm.ErrRecordNotFound, votes.ErrItemNotFound},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, votes.ErrStoreUnavailable},
		{"already classified", votes.ErrConflict, votes.ErrConflict},
		{"canceled", context.Canceled, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
}

func TestClassify_PassesThroughUnknown(t *testing.T) {
	assert.Nil(t, classify(nil))

	plain := errors.New("syntax error")
	assert.Same(t, plain, classify(plain))

	check := &pgconn.PgError{Code: "23514"}
	got := classify(check)
	assert.False(t, errors.Is(got, votes.ErrConflict))
	assert.False(t, errors.Is(got, votes.ErrStoreUnavailable))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, isUniqueViolation(errors.New("nope")))
}

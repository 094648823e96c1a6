package database

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

// TxRunner runs vote transactions through gorm at the configured isolation level.
type TxRunner struct {
	db   *gorm.DB
	opts *sql.TxOptions
}

var _ votes.TxRunner = (*TxRunner)(nil)

// NewTxRunner maps "read_committed", "repeatable_read" and "serializable" to
// sql.TxOptions. "default", and any level on SQLite, leaves the driver default.
func NewTxRunner(db *gorm.DB, isolation string) *TxRunner {
	r := &TxRunner{db: db}
	if db.Dialector.Name() == "sqlite" {
		return r
	}
	switch isolation {
	case "read_committed":
		r.opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	case "repeatable_read":
		r.opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case "serializable":
		r.opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return r
}

func (r *TxRunner) InTx(ctx context.Context, fn func(tx votes.Tx) error) error {
	var opts []*sql.TxOptions
	if r.opts != nil {
		opts = append(opts, r.opts)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormTx{db: tx})
	}, opts...)
	return classify(err)
}

type gormTx struct {
	db *gorm.DB
}

func (t gormTx) Ledger() votes.Ledger   { return NewLedgerStore(t.db) }
func (t gormTx) Counter() votes.Counter { return NewItemStore(t.db) }

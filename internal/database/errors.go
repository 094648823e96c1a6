package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

// classify maps driver and gorm failures onto the votes error taxonomy.
// Errors it cannot place are returned unchanged and surface as internal errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, votes.ErrConflict),
		errors.Is(err, votes.ErrStoreUnavailable),
		errors.Is(err, votes.ErrItemNotFound),
		errors.Is(err, votes.ErrItemExists),
		errors.Is(err, votes.ErrMalformedInput),
		errors.Is(err, votes.ErrUnauthorized),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", votes.ErrConflict, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", votes.ErrItemNotFound, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %w", votes.ErrStoreUnavailable, err)
	}

	if code, ok := sqlState(err); ok {
		switch {
		case code == "23505", // unique_violation
			code == "40001", // serialization_failure
			code == "40P01", // deadlock_detected
			code == "55P03": // lock_not_available
			return fmt.Errorf("%w: %w", votes.ErrConflict, err)
		case strings.HasPrefix(code, "08"), // connection_exception
			code == "53300", // too_many_connections
			code == "57P01", // admin_shutdown
			code == "57P02", // crash_shutdown
			code == "57P03": // cannot_connect_now
			return fmt.Errorf("%w: %w", votes.ErrStoreUnavailable, err)
		}
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.Code == sqlite3.ErrBusy,
			sqliteErr.Code == sqlite3.ErrLocked,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", votes.ErrConflict, err)
		case sqliteErr.Code == sqlite3.ErrCantOpen,
			sqliteErr.Code == sqlite3.ErrIoErr:
			return fmt.Errorf("%w: %w", votes.ErrStoreUnavailable, err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %w", votes.ErrStoreUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", votes.ErrStoreUnavailable, err)
	}
	return err
}

// sqlState extracts the SQLSTATE from pgx and lib/pq errors.
func sqlState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.TrimSpace(pgErr.Code), true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	return "", false
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if code, ok := sqlState(err); ok {
		return code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

package votes

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnauthorized     = errors.New("unauthorized: user identity required")
	ErrItemNotFound     = errors.New("item not found")
	ErrMalformedInput   = errors.New("malformed input")
	ErrConflict         = errors.New("write conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrItemExists       = errors.New("item already registered")
)

// Malformed tags msg as a MalformedInput failure.
func Malformed(msg string) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, msg)
}

// KindOf returns the stable error kind reported to clients and metrics.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrItemNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrItemExists):
		return "item_exists"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

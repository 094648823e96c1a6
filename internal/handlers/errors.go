package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/logger"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, votes.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, votes.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, votes.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, votes.ErrItemExists), errors.Is(err, votes.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, votes.ErrStoreUnavailable), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders {"error", "type"}. Server-side failures keep their detail in the log only.
func writeError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusConflict && errors.Is(err, votes.ErrConflict):
		msg = "vote could not be applied due to concurrent updates, retry later"
	case status >= http.StatusInternalServerError:
		log.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
		msg = http.StatusText(status)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg, "type": votes.KindOf(err)})
}

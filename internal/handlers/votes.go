package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/logger"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/middleware"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

type VoteHandler struct {
	engine VoteService
	reader StateReader
	log    *logger.Logger
}

func NewVoteHandler(engine VoteService, reader StateReader, log *logger.Logger) *VoteHandler {
	return &VoteHandler{engine: engine, reader: reader, log: log.With("handler", "votes")}
}

type voteResponse struct {
	ItemID    uuid.UUID `json:"item_id"`
	Score     int64     `json:"score"`
	Upvoted   bool      `json:"upvoted"`
	Downvoted bool      `json:"downvoted"`
	Changed   bool      `json:"changed"`
}

func newVoteResponse(res *votes.Result) voteResponse {
	return voteResponse{
		ItemID:    res.ItemID,
		Score:     res.Score,
		Upvoted:   res.State.Upvoted,
		Downvoted: res.State.Downvoted,
		Changed:   res.Changed,
	}
}

// Vote handles POST /api/vote {item_id, direction}.
func (h *VoteHandler) Vote(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, h.log, votes.ErrUnauthorized)
		return
	}

	var input struct {
		ItemID    string `json:"item_id" binding:"required"`
		Direction string `json:"direction" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		writeError(c, h.log, votes.Malformed("item_id and direction are required"))
		return
	}
	itemID, err := parseItemID(input.ItemID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	dir, err := models.ParseDirection(input.Direction)
	if err != nil {
		writeError(c, h.log, votes.Malformed(err.Error()))
		return
	}

	h.toggle(c, itemID, userID, dir)
}

// Unvote handles POST /api/unvote {item_id}.
func (h *VoteHandler) Unvote(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, h.log, votes.ErrUnauthorized)
		return
	}

	var input struct {
		ItemID string `json:"item_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		writeError(c, h.log, votes.Malformed("item_id is required"))
		return
	}
	itemID, err := parseItemID(input.ItemID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.clear(c, itemID, userID)
}

// Upvote handles POST /api/items/:id/upvote.
func (h *VoteHandler) Upvote(c *gin.Context) {
	h.voteOnPath(c, models.DirectionUp)
}

// Downvote handles POST /api/items/:id/downvote.
func (h *VoteHandler) Downvote(c *gin.Context) {
	h.voteOnPath(c, models.DirectionDown)
}

// RemoveVote handles DELETE /api/items/:id/vote.
func (h *VoteHandler) RemoveVote(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, h.log, votes.ErrUnauthorized)
		return
	}
	itemID, err := parseItemID(c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.clear(c, itemID, userID)
}

// States handles GET /api/vote-states?item_ids=a,b,c (item_ids may also repeat).
func (h *VoteHandler) States(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, h.log, votes.ErrUnauthorized)
		return
	}

	var ids []uuid.UUID
	for _, raw := range c.QueryArray("item_ids") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := parseItemID(part)
			if err != nil {
				writeError(c, h.log, err)
				return
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(c, h.log, votes.Malformed("item_ids is required"))
		return
	}

	states, err := h.reader.States(c.Request.Context(), userID, ids)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	out := make(map[string]models.VoteState, len(states))
	for id, st := range states {
		out[id.String()] = st
	}
	c.JSON(http.StatusOK, gin.H{"states": out})
}

func (h *VoteHandler) voteOnPath(c *gin.Context, dir models.Direction) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, h.log, votes.ErrUnauthorized)
		return
	}
	itemID, err := parseItemID(c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.toggle(c, itemID, userID, dir)
}

func (h *VoteHandler) toggle(c *gin.Context, itemID, userID uuid.UUID, dir models.Direction) {
	res, err := h.engine.Toggle(c.Request.Context(), itemID, userID, dir)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newVoteResponse(res))
}

func (h *VoteHandler) clear(c *gin.Context, itemID, userID uuid.UUID) {
	res, err := h.engine.Clear(c.Request.Context(), itemID, userID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newVoteResponse(res))
}

func parseItemID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, votes.Malformed("item id must be a UUID")
	}
	return id, nil
}

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/logger"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

// itemResponse is the public view of an item. Baseline is exposed only through the audit report.
type itemResponse struct {
	ID        uuid.UUID       `json:"id"`
	Kind      models.ItemKind `json:"kind"`
	Score     int64           `json:"score"`
	CreatedAt time.Time       `json:"created_at"`
}

func newItemResponse(item *models.VotableItem) itemResponse {
	return itemResponse{ID: item.ID, Kind: item.Kind, Score: item.Score, CreatedAt: item.CreatedAt}
}

type ItemHandler struct {
	items   ItemRegistry
	auditor VoteService
	log     *logger.Logger
}

func NewItemHandler(items ItemRegistry, auditor VoteService, log *logger.Logger) *ItemHandler {
	return &ItemHandler{items: items, auditor: auditor, log: log.With("handler", "items")}
}

// CreateItem registers a post or comment so it can receive votes.
func (h *ItemHandler) CreateItem(c *gin.Context) {
	var input struct {
		ID       string `json:"id"`
		Kind     string `json:"kind" binding:"required"`
		Baseline int64  `json:"baseline"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		writeError(c, h.log, votes.Malformed("kind is required"))
		return
	}

	kind, err := models.ParseItemKind(input.Kind)
	if err != nil {
		writeError(c, h.log, votes.Malformed(err.Error()))
		return
	}
	item := &models.VotableItem{Kind: kind, Baseline: input.Baseline}
	if strings.TrimSpace(input.ID) != "" {
		if item.ID, err = parseItemID(input.ID); err != nil {
			writeError(c, h.log, err)
			return
		}
	}

	if err := h.items.Create(c.Request.Context(), item); err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Info("item registered", "item_id", item.ID, "kind", item.Kind)
	c.JSON(http.StatusCreated, newItemResponse(item))
}

// GetItem returns an item and its current score.
func (h *ItemHandler) GetItem(c *gin.Context) {
	itemID, err := parseItemID(c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	item, err := h.items.Get(c.Request.Context(), itemID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newItemResponse(item))
}

// AuditItem compares the item's score with its ledger.
func (h *ItemHandler) AuditItem(c *gin.Context) {
	itemID, err := parseItemID(c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	audit, err := h.auditor.Audit(c.Request.Context(), itemID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, audit)
}

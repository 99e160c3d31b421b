package handler

import (
	"net/http"
	"strconv"

	"modelmine/internal/model"
	"modelmine/internal/service"

	"github.com/gin-gonic/gin"
)

// LedgerHandler exposes the audit ledger
type LedgerHandler struct {
	ledger *service.AuditLedger
}

// NewLedgerHandler creates ledger handler
func NewLedgerHandler(ledger *service.AuditLedger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Recent returns the newest blocks
// @Summary Recent ledger blocks
// @Tags ledger
// @Produce json
// @Param limit query int false "Number of blocks (default 100, max 1000)"
// @Success 200 {array} model.LedgerBlock
// @Router /ledger [get]
func (h *LedgerHandler) Recent(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, err)
			return
		}
		limit = n
	}

	blocks, err := h.ledger.GetRecent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "read ledger", err)
		return
	}
	if blocks == nil {
		blocks = []*model.LedgerBlock{}
	}
	c.JSON(http.StatusOK, blocks)
}

// Get returns one block by id
func (h *LedgerHandler) Get(c *gin.Context) {
	block, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get ledger block", err)
		return
	}
	c.JSON(http.StatusOK, block)
}

// Verify recomputes every hash and link of the chain
func (h *LedgerHandler) Verify(c *gin.Context) {
	report, err := h.ledger.Verify(c.Request.Context())
	if err != nil {
		respondError(c, "verify ledger", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

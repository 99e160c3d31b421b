package handler

import (
	"net/http"
	"time"

	"modelmine/internal/service"

	"github.com/gin-gonic/gin"
)

// StatisticsHandler handles network overview and health requests
type StatisticsHandler struct {
	statsService *service.StatisticsService
}

// NewStatisticsHandler creates a new statistics handler
func NewStatisticsHandler(statsService *service.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statsService: statsService}
}

// Network returns the network overview
// @Summary Network overview
// @Description Node and job counts, average accuracy, staked tokens and per-node summaries
// @Tags statistics
// @Produce json
// @Success 200 {object} model.NetworkStats
// @Router /network [get]
func (h *StatisticsHandler) Network(c *gin.Context) {
	stats, err := h.statsService.GetNetworkStats(c.Request.Context())
	if err != nil {
		respondError(c, "get network statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Health liveness probe
func (h *StatisticsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

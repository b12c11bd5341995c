package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func parseLimit(c *gin.Context) (int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return 0, false
	}
	return limit, true
}

// GetFills handles GET /api/fills.
func (h *Handler) GetFills(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	events, err := h.store.RecentFills(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve fill history"})
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetDispenses handles GET /api/dispenses.
func (h *Handler) GetDispenses(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	events, err := h.store.RecentDispenses(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve dispense history"})
		return
	}
	c.JSON(http.StatusOK, events)
}

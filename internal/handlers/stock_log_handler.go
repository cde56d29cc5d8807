package handlers

import (
	"net/http"

	"go-pos-sync/internal/models"

	"github.com/gin-gonic/gin"
)

// --- GET: /api/stock-logs ---
func (h *Handler) GetStockLogs(c *gin.Context) {
	logs, err := h.engine.ListStockLogs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// --- POST: /api/stock-logs ---
func (h *Handler) AcceptStockLog(c *gin.Context) {
	var entry models.StockLog
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	stored, duplicate, err := h.engine.AcceptStockLog(c.Request.Context(), entry)
	if err != nil {
		respondError(c, err)
		return
	}
	if duplicate {
		c.JSON(http.StatusOK, stored)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

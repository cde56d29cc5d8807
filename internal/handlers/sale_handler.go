package handlers

import (
	"net/http"
	"strconv"

	"go-pos-sync/internal/models"

	"github.com/gin-gonic/gin"
)

// --- GET: /api/sales?limit=N ---
func (h *Handler) GetSales(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	sales, err := h.engine.ListSales(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

// --- POST: /api/sales ---
// 201 on first acceptance, 200 with the stored record on a replay.
func (h *Handler) AcceptSale(c *gin.Context) {
	var sale models.Sale
	if err := c.ShouldBindJSON(&sale); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	res, err := h.engine.AcceptSale(c.Request.Context(), sale)
	if err != nil {
		respondError(c, err)
		return
	}

	if res.Duplicate {
		c.JSON(http.StatusOK, res.Sale)
		return
	}
	c.JSON(http.StatusCreated, res.Sale)
}

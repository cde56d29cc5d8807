package handlers

import (
	"net/http"

	"go-pos-sync/internal/models"

	"github.com/gin-gonic/gin"
)

// --- GET: /api/shifts ---
func (h *Handler) GetShifts(c *gin.Context) {
	shifts, err := h.engine.ListShifts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shifts)
}

// --- POST: /api/shifts ---
// Responds with the stored record, which differs from the payload when the
// payload was stale or the shift was already closed.
func (h *Handler) AcceptShift(c *gin.Context) {
	var shift models.Shift
	if err := c.ShouldBindJSON(&shift); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	stored, err := h.engine.AcceptShift(c.Request.Context(), shift)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

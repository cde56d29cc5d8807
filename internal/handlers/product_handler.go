package handlers

import (
	"net/http"

	"go-pos-sync/internal/audit"
	"go-pos-sync/internal/middleware"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/reconcile"

	"github.com/gin-gonic/gin"
)

// ProductRequest is a product plus who edited it.
type ProductRequest struct {
	models.Product
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	// EditID makes a replayed edit collapse onto the audit entries it already produced.
	EditID string `json:"editId"`
}

// --- GET: /api/products ---
func (h *Handler) GetProducts(c *gin.Context) {
	products, err := h.engine.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// --- GET: /api/products/low-stock ---
func (h *Handler) GetLowStock(c *gin.Context) {
	products, err := h.engine.LowStock(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// --- POST: /api/products ---
// Creates the product when the id is new, otherwise applies the edit.
func (h *Handler) UpsertProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	editor := audit.Editor{UserID: req.UserID, UserName: req.UserName, EditID: req.EditID}
	// A verified token wins over what the body claims.
	if id := c.GetString(middleware.ContextUserID); id != "" {
		editor.UserID = id
		editor.UserName = c.GetString(middleware.ContextUserName)
	}

	res, err := h.engine.UpsertProduct(c.Request.Context(), reconcile.ProductEdit{Product: req.Product, Editor: editor})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res.Product)
}

// --- DELETE: /api/products/:id ---
func (h *Handler) DeleteProduct(c *gin.Context) {
	if err := h.engine.RemoveProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

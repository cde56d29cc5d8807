package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"go-pos-sync/internal/audit"
	"go-pos-sync/internal/auth"
	"go-pos-sync/internal/reconcile"
	"go-pos-sync/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Assistant answers free-form inventory questions.
type Assistant interface {
	Ask(ctx context.Context, message string) (string, error)
}

// Handler serves the remote store collections.
type Handler struct {
	engine    *reconcile.Engine
	repo      repository.Repository
	db        *gorm.DB
	issuer    *auth.Issuer
	assistant Assistant
}

// New wires the handlers. assistant may be nil, which disables /api/ask.
func New(engine *reconcile.Engine, repo repository.Repository, db *gorm.DB, issuer *auth.Issuer, assistant Assistant) *Handler {
	return &Handler{engine: engine, repo: repo, db: db, issuer: issuer, assistant: assistant}
}

// Register mounts every route on r. guard, when non-nil, protects /api.
func (h *Handler) Register(r *gin.Engine, guard gin.HandlerFunc) {
	r.GET("/health", h.Health)
	r.POST("/login", h.Login)

	api := r.Group("/api")
	if guard != nil {
		api.Use(guard)
	}
	{
		api.GET("/products", h.GetProducts)
		api.GET("/products/low-stock", h.GetLowStock)
		api.POST("/products", h.UpsertProduct)
		api.DELETE("/products/:id", h.DeleteProduct)

		api.GET("/sales", h.GetSales)
		api.POST("/sales", h.AcceptSale)

		api.GET("/shifts", h.GetShifts)
		api.POST("/shifts", h.AcceptShift)

		api.GET("/stock-logs", h.GetStockLogs)
		api.POST("/stock-logs", h.AcceptStockLog)

		api.GET("/reports", h.GetSalesReport)
		api.GET("/reports/valuation", h.GetStockValuation)

		api.POST("/ask", h.AskAI)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "online"})
}

// respondError maps domain errors to status codes.
func respondError(c *gin.Context, err error) {
	var stockErr *reconcile.StockError
	switch {
	case errors.As(err, &stockErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": stockErr.Error(), "items": stockErr.Items})
	case errors.Is(err, reconcile.ErrInvalidPayload), errors.Is(err, audit.ErrInvalidLog):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("❌ [API] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Storage failure"})
	}
}

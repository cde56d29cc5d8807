package handlers

import (
	"net/http"
	"time"

	"go-pos-sync/internal/database"
	"go-pos-sync/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	topSellerCount  = 5
	recentSaleCount = 10
)

// ReportData defines the shape of the analytics response
type ReportData struct {
	TotalRevenue float64              `json:"totalRevenue"`
	TotalOrders  int64                `json:"totalOrders"`
	TopSelling   []database.TopSeller `json:"topSelling"`
	RecentSales  []models.Sale        `json:"recentSales"`
}

// --- GET: /api/reports?start=YYYY-MM-DD&end=YYYY-MM-DD ---
// Both bounds are optional; the default covers all time. Without end the range
// stays open so sales stamped ahead of the server clock are not dropped.
func (h *Handler) GetSalesReport(c *gin.Context) {
	start := time.Unix(0, 0).UTC()
	var end time.Time
	if raw := c.Query("start"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
			return
		}
		start = t
	}
	if raw := c.Query("end"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
			return
		}
		end = t.Add(24*time.Hour - time.Second)
	}

	db := h.db.WithContext(c.Request.Context())
	var data ReportData

	// 1. Revenue and order count
	summary, err := database.GetSalesReport(db, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate revenue"})
		return
	}
	data.TotalRevenue = summary.TotalRevenue
	data.TotalOrders = summary.TotalCount

	// 2. Best sellers
	if data.TopSelling, err = database.GetTopSellers(db, start, end, topSellerCount); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch top selling items"})
		return
	}

	// 3. Recent transactions, newest first
	if data.RecentSales, err = h.engine.ListSales(c.Request.Context(), recentSaleCount); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recent sales"})
		return
	}

	c.JSON(http.StatusOK, data)
}

// --- GET: /api/reports/valuation ---
// Stock valued at cost, grouped by beneficiary
func (h *Handler) GetStockValuation(c *gin.Context) {
	valuation, err := database.GetStockValuation(h.db.WithContext(c.Request.Context()))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch inventory"})
		return
	}
	c.JSON(http.StatusOK, valuation)
}

package database

import (
	"sort"
	"time"

	"go-pos-sync/internal/models"

	"gorm.io/gorm"
)

// SalesReportResult holds revenue figures for a period
type SalesReportResult struct {
	TotalRevenue float64 `json:"totalRevenue"`
	TotalCount   int64   `json:"totalCount"`
}

// inRange limits a query to sales created in [start, end]. A zero end leaves
// the range open, so sales stamped by a device clock running ahead still count.
func inRange(q *gorm.DB, start, end time.Time) *gorm.DB {
	q = q.Where("sales.created_at >= ?", start)
	if !end.IsZero() {
		q = q.Where("sales.created_at <= ?", end)
	}
	return q
}

// GetSalesReport calculates sales within a specific date range
func GetSalesReport(db *gorm.DB, start, end time.Time) (*SalesReportResult, error) {
	var result SalesReportResult

	// COALESCE ensures we get 0 instead of NULL if no sales exist
	err := inRange(db.Model(&models.Sale{}), start, end).
		Select("COALESCE(SUM(total), 0)").
		Scan(&result.TotalRevenue).Error
	if err != nil {
		return nil, err
	}

	err = inRange(db.Model(&models.Sale{}), start, end).
		Count(&result.TotalCount).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// TopSeller is one row of the best sellers table
type TopSeller struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Sold        int     `json:"sold"`
	Revenue     float64 `json:"revenue"`
}

// GetTopSellers aggregates the items of sales in [start, end] by product.
// Names come from the sale snapshot so removed products still show up.
func GetTopSellers(db *gorm.DB, start, end time.Time, limit int) ([]TopSeller, error) {
	var rows []TopSeller
	q := db.Model(&models.SaleItem{}).
		Joins("JOIN sales ON sales.id = sale_items.sale_id")
	err := inRange(q, start, end).
		Select("sale_items.product_id, MAX(sale_items.product_name) AS product_name, " +
			"SUM(sale_items.quantity) AS sold, SUM(sale_items.subtotal) AS revenue").
		Group("sale_items.product_id").
		Order("sold DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// ValuationItem is a product valued at cost
type ValuationItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Cost      float64 `json:"cost"`
	TotalCost float64 `json:"totalCost"`
}

// BeneficiaryGroup is the stock of one beneficiary
type BeneficiaryGroup struct {
	Beneficiary models.Beneficiary `json:"beneficiary"`
	Items       []ValuationItem    `json:"items"`
	Subtotal    float64            `json:"subtotal"`
}

// Valuation is the monetary value of all physical inventory
type Valuation struct {
	Groups     []BeneficiaryGroup `json:"groups"`
	GrandTotal float64            `json:"grandTotal"`
}

// GetStockValuation values the current stock at cost, grouped by beneficiary.
func GetStockValuation(db *gorm.DB) (*Valuation, error) {
	var products []models.Product
	if err := db.Order("name").Find(&products).Error; err != nil {
		return nil, err
	}

	grouped := make(map[models.Beneficiary]*BeneficiaryGroup)
	var response Valuation
	for _, p := range products {
		b := p.Beneficiary
		if !b.Valid() {
			b = models.BeneficiaryShared
		}
		if _, exists := grouped[b]; !exists {
			grouped[b] = &BeneficiaryGroup{Beneficiary: b, Items: []ValuationItem{}}
		}

		itemTotal := models.Money(p.Cost).Mul(models.Money(float64(p.Quantity))).InexactFloat64()
		grouped[b].Items = append(grouped[b].Items, ValuationItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			Cost:      p.Cost,
			TotalCost: itemTotal,
		})
		grouped[b].Subtotal += itemTotal
		response.GrandTotal += itemTotal
	}

	for _, group := range grouped {
		response.Groups = append(response.Groups, *group)
	}
	// Map iteration order is random; keep the output stable.
	sort.Slice(response.Groups, func(i, j int) bool {
		return response.Groups[i].Beneficiary < response.Groups[j].Beneficiary
	})
	return &response, nil
}

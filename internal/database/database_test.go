package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go-pos-sync/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect("oracle", "x", Options{Attempts: 1})
	assert.Error(t, err)

	_, err = Connect("mysql", "", Options{Attempts: 1})
	assert.Error(t, err)
}

func TestPrimaryKeyViolationTranslatesToDuplicatedKey(t *testing.T) {
	db := openTestDB(t)
	sale := models.Sale{ID: "dup", Total: 1, Items: []models.SaleItem{{ProductID: "p", Quantity: 1, UnitPrice: 1, Subtotal: 1}}}
	require.NoError(t, db.Create(&sale).Error)

	again := models.Sale{ID: "dup", Total: 1}
	err := db.Create(&again).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestReports(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	require.NoError(t, db.Create(&[]models.Product{
		{ID: "p1", Name: "Arroz", Cost: 800, Price: 1200, Quantity: 10, Beneficiary: models.BeneficiaryA},
		{ID: "p2", Name: "Fideos", Cost: 500, Price: 750, Quantity: 2, Beneficiary: models.BeneficiaryB},
	}).Error)
	require.NoError(t, db.Create(&models.Sale{
		ID: "s1", Total: 2400, CreatedAt: now,
		Items: []models.SaleItem{{ProductID: "p1", ProductName: "Arroz", Quantity: 2, UnitPrice: 1200, Subtotal: 2400}},
	}).Error)
	require.NoError(t, db.Create(&models.Sale{
		ID: "s2", Total: 750, CreatedAt: now,
		Items: []models.SaleItem{{ProductID: "p2", ProductName: "Fideos", Quantity: 1, UnitPrice: 750, Subtotal: 750}},
	}).Error)

	report, err := GetSalesReport(db, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3150.0, report.TotalRevenue)
	assert.Equal(t, int64(2), report.TotalCount)

	top, err := GetTopSellers(db, now.Add(-time.Hour), now.Add(time.Hour), 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "p1", top[0].ProductID)
	assert.Equal(t, 2, top[0].Sold)

	// An older sale outside the range counts for neither figure.
	require.NoError(t, db.Create(&models.Sale{
		ID: "s0", Total: 12000, CreatedAt: now.Add(-48 * time.Hour),
		Items: []models.SaleItem{{ProductID: "p2", ProductName: "Fideos", Quantity: 16, UnitPrice: 750, Subtotal: 12000}},
	}).Error)
	report, err = GetSalesReport(db, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.TotalCount)
	top, err = GetTopSellers(db, now.Add(-time.Hour), now.Add(time.Hour), 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "p1", top[0].ProductID, "the 16 Fideos sold two days ago are out of range")

	// A zero end leaves the range open.
	ahead := now.Add(3 * time.Hour)
	require.NoError(t, db.Create(&models.Sale{
		ID: "s3", Total: 1200, CreatedAt: ahead,
		Items: []models.SaleItem{{ProductID: "p1", ProductName: "Arroz", Quantity: 1, UnitPrice: 1200, Subtotal: 1200}},
	}).Error)
	report, err = GetSalesReport(db, now.Add(-time.Hour), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.TotalCount)
	assert.Equal(t, 4350.0, report.TotalRevenue)
	top, err = GetTopSellers(db, time.Unix(0, 0), time.Time{}, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "p2", top[0].ProductID)
	assert.Equal(t, 17, top[0].Sold)

	valuation, err := GetStockValuation(db)
	require.NoError(t, err)
	assert.Equal(t, 9000.0, valuation.GrandTotal)
	require.Len(t, valuation.Groups, 2)
	assert.Equal(t, models.BeneficiaryA, valuation.Groups[0].Beneficiary)
	assert.Equal(t, 8000.0, valuation.Groups[0].Subtotal)
}

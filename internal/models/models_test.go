package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaleValidate(t *testing.T) {
	valid := Sale{
		ID:    "s1",
		Items: []SaleItem{{ProductID: "p1", Quantity: 3, UnitPrice: 100, Subtotal: 300}},
		Total: 300,
	}
	require.NoError(t, valid.Validate())

	noID := valid
	noID.ID = " "
	assert.ErrorIs(t, noID.Validate(), ErrMissingID)

	empty := valid
	empty.Items = nil
	assert.ErrorIs(t, empty.Validate(), ErrEmptySale)

	wrongTotal := valid
	wrongTotal.Total = 299.99
	assert.ErrorIs(t, wrongTotal.Validate(), ErrTotalMismatch)

	zeroQty := valid
	zeroQty.Items = []SaleItem{{ProductID: "p1", Quantity: 0, UnitPrice: 100, Subtotal: 0}}
	zeroQty.Total = 0
	assert.Error(t, zeroQty.Validate())
}

func TestSaleValidateToleratesFloatNoise(t *testing.T) {
	s := Sale{
		ID: "s2",
		Items: []SaleItem{
			{ProductID: "a", Quantity: 1, UnitPrice: 0.1, Subtotal: 0.1},
			{ProductID: "b", Quantity: 1, UnitPrice: 0.2, Subtotal: 0.2},
		},
		Total: 0.1 + 0.2,
	}
	assert.NoError(t, s.Validate())
}

func TestRequestedQuantitiesFoldsRepeatedProducts(t *testing.T) {
	s := Sale{Items: []SaleItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", Quantity: 5},
	}}
	assert.Equal(t, map[string]int{"p1": 7, "p2": 1}, s.RequestedQuantities())
}

func TestLineSubtotal(t *testing.T) {
	assert.Equal(t, 300.0, LineSubtotal(3, 100))
	assert.Equal(t, 3.3, LineSubtotal(3, 1.1))
}

func TestLowStockPolicies(t *testing.T) {
	atThreshold := Product{Quantity: 10}
	assert.False(t, atThreshold.IsLowStock(LowStockStrict))
	assert.True(t, atThreshold.IsLowStock(LowStockInclusive))

	custom := Product{Quantity: 4, LowStockThreshold: 5}
	assert.True(t, custom.IsLowStock(LowStockStrict))
	assert.Equal(t, 5, custom.Threshold())

	low := FilterLowStock([]Product{{ID: "a", Quantity: 1}, {ID: "b", Quantity: 50}}, LowStockStrict)
	require.Len(t, low, 1)
	assert.Equal(t, "a", low[0].ID)
}

func TestProfitByBeneficiaryWireFormat(t *testing.T) {
	raw, err := json.Marshal(ProfitByBeneficiary{A: 1, B: 2, Shared: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":1,"B":2,"shared":3}`, string(raw))
	assert.Equal(t, 6.0, ProfitByBeneficiary{A: 1, B: 2, Shared: 3}.Total())
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, BeneficiaryShared.Valid())
	assert.False(t, Beneficiary("juan").Valid())
	assert.True(t, ActionUpdateCost.Valid())
	assert.False(t, StockAction("sale").Valid())
}

package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingID     = errors.New("id is required")
	ErrEmptySale     = errors.New("sale has no items")
	ErrTotalMismatch = errors.New("sale total does not match item subtotals")
)

// Money rounds v to cents.
func Money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// LineSubtotal is quantity * unitPrice rounded to cents.
func LineSubtotal(quantity int, unitPrice float64) float64 {
	return Money(unitPrice).Mul(decimal.NewFromInt(int64(quantity))).Round(2).InexactFloat64()
}

// ItemsTotal sums the subtotals of items.
func ItemsTotal(items []SaleItem) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(Money(it.Subtotal))
	}
	return sum.InexactFloat64()
}

// Validate checks the structural preconditions of a sale: an id, at least one
// item, positive quantities, subtotals equal to quantity x unit price, and a
// total equal to the sum of subtotals.
func (s Sale) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrMissingID
	}
	if len(s.Items) == 0 {
		return ErrEmptySale
	}
	sum := decimal.Zero
	for i, it := range s.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("item %d: productId is required", i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("item %d (%s): quantity must be positive", i, it.ProductID)
		}
		if !Money(it.Subtotal).Equal(Money(LineSubtotal(it.Quantity, it.UnitPrice))) {
			return fmt.Errorf("item %d (%s): subtotal %v != %d x %v", i, it.ProductID, it.Subtotal, it.Quantity, it.UnitPrice)
		}
		sum = sum.Add(Money(it.Subtotal))
	}
	if !sum.Equal(Money(s.Total)) {
		return fmt.Errorf("%w: total=%s items=%s", ErrTotalMismatch, Money(s.Total), sum)
	}
	return nil
}

// RequestedQuantities folds the items into product id -> total requested quantity.
func (s Sale) RequestedQuantities() map[string]int {
	out := make(map[string]int, len(s.Items))
	for _, it := range s.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

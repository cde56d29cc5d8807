package models

// DefaultLowStockThreshold applies when a product carries no threshold of its own.
const DefaultLowStockThreshold = 10

// LowStockPolicy decides whether a quantity equal to the threshold counts as low.
type LowStockPolicy int

const (
	// LowStockStrict flags quantity < threshold.
	LowStockStrict LowStockPolicy = iota
	// LowStockInclusive flags quantity <= threshold.
	LowStockInclusive
)

// Threshold returns the effective low stock threshold.
func (p Product) Threshold() int {
	if p.LowStockThreshold <= 0 {
		return DefaultLowStockThreshold
	}
	return p.LowStockThreshold
}

func (p Product) IsLowStock(policy LowStockPolicy) bool {
	if policy == LowStockInclusive {
		return p.Quantity <= p.Threshold()
	}
	return p.Quantity < p.Threshold()
}

// FilterLowStock keeps the products under their threshold, preserving order.
func FilterLowStock(products []Product, policy LowStockPolicy) []Product {
	low := make([]Product, 0)
	for _, p := range products {
		if p.IsLowStock(policy) {
			low = append(low, p)
		}
	}
	return low
}

package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPayload wraps every structural validation failure.
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ItemShortage describes one sale line that cannot be fulfilled.
type ItemShortage struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
	Missing     bool   `json:"missing,omitempty"`
}

// StockError rejects a whole sale, listing every line that failed.
type StockError struct {
	SaleID string
	Items  []ItemShortage
}

func (e *StockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		if it.Missing {
			parts = append(parts, fmt.Sprintf("%s: unknown product", it.ProductID))
			continue
		}
		name := it.ProductName
		if name == "" {
			name = it.ProductID
		}
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", name, it.Requested, it.Available))
	}
	return fmt.Sprintf("sale %s rejected: %s", e.SaleID, strings.Join(parts, "; "))
}

// Is lets callers match with errors.Is against ErrProductNotFound or ErrInsufficientStock.
func (e *StockError) Is(target error) bool {
	for _, it := range e.Items {
		if it.Missing && target == ErrProductNotFound {
			return true
		}
		if !it.Missing && target == ErrInsufficientStock {
			return true
		}
	}
	return false
}

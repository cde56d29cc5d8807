// Package catalog is the device side of product management. Edits update the
// local mirror right away and are pushed to the remote store, which owns the
// audit trail.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"go-pos-sync/internal/audit"
	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/gateway"
	"go-pos-sync/internal/models"
)

var (
	ErrInvalidProduct = errors.New("invalid product")
	ErrUnknownProduct = errors.New("product not in catalog")
)

// Submitter is the slice of the gateway the catalog needs.
type Submitter interface {
	SubmitProduct(ctx context.Context, payload gateway.ProductPayload) gateway.Outcome
	RemoveProduct(ctx context.Context, id string) gateway.Outcome
}

// Editor is the operator making a change.
type Editor struct {
	ID   string
	Name string
}

type Catalog struct {
	mu     sync.Mutex
	cache  *cache.Cache
	gw     Submitter
	clock  clock.Clock
	policy models.LowStockPolicy
}

func New(c *cache.Cache, gw Submitter, clk clock.Clock, policy models.LowStockPolicy) *Catalog {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Catalog{cache: c, gw: gw, clock: clk, policy: policy}
}

// Products returns the mirror sorted by name.
func (c *Catalog) Products() []models.Product {
	return cache.Read(c.cache, cache.KeyProducts, []models.Product{})
}

// Product looks one product up in the mirror.
func (c *Catalog) Product(id string) (models.Product, bool) {
	for _, p := range c.Products() {
		if p.ID == id {
			return p, true
		}
	}
	return models.Product{}, false
}

// LowStock lists mirror products under their threshold.
func (c *Catalog) LowStock() []models.Product {
	return models.FilterLowStock(c.Products(), c.policy)
}

func validate(p models.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.Quantity < 0:
		return fmt.Errorf("%w: quantity cannot be negative", ErrInvalidProduct)
	case p.Price < 0 || p.Cost < 0:
		return fmt.Errorf("%w: price and cost cannot be negative", ErrInvalidProduct)
	case !p.Beneficiary.Valid():
		return fmt.Errorf("%w: unknown beneficiary %q", ErrInvalidProduct, p.Beneficiary)
	}
	return nil
}

// SaveProduct creates (empty or unknown id) or updates a product in the
// mirror, then submits it. A failed submission is queued for the sweeper; a
// rejected one is returned so the caller can show the reason.
func (c *Catalog) SaveProduct(ctx context.Context, product models.Product, editor Editor) (*models.Product, gateway.Outcome, error) {
	if product.Beneficiary == "" {
		product.Beneficiary = models.BeneficiaryShared
	}
	if err := validate(product); err != nil {
		return nil, gateway.Outcome{}, err
	}
	if product.LowStockThreshold <= 0 {
		product.LowStockThreshold = models.DefaultLowStockThreshold
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	previous, exists := c.Product(product.ID)
	if exists {
		product.CreatedAt = previous.CreatedAt
	} else {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	c.put(product)

	// The edit id is kept with a queued edit so every retry carries it, and the
	// remote derives the same audit ids from it as the ones shown here.
	edit := gateway.PendingEdit{ProductID: product.ID, UserID: editor.ID, UserName: editor.Name, EditID: uuid.NewString()}
	var prev *models.Product
	if exists {
		prev = &previous
	}
	entries := audit.RecordManualEdit(product, prev, audit.Editor{UserID: editor.ID, UserName: editor.Name, EditID: edit.EditID}, now)
	if len(entries) > 0 {
		cache.Update(c.cache, cache.KeyStockLogs, []models.StockLog{}, func(logs []models.StockLog) []models.StockLog {
			return append(entries, logs...)
		})
	}

	out := c.submit(ctx, product, edit)
	if out.Status == gateway.Rejected {
		// The remote keeps its version; so does the mirror.
		if exists {
			c.put(previous)
		} else {
			c.drop(product.ID)
		}
		c.dropLogs(entries)
	}
	return &product, out, nil
}

// put inserts or replaces a product in the mirror.
func (c *Catalog) put(product models.Product) {
	cache.Update(c.cache, cache.KeyProducts, []models.Product{}, func(products []models.Product) []models.Product {
		replaced := false
		for i := range products {
			if products[i].ID == product.ID {
				products[i] = product
				replaced = true
			}
		}
		if !replaced {
			products = append(products, product)
		}
		sort.SliceStable(products, func(i, j int) bool { return products[i].Name < products[j].Name })
		return products
	})
}

func (c *Catalog) drop(id string) {
	cache.Update(c.cache, cache.KeyProducts, []models.Product{}, func(products []models.Product) []models.Product {
		kept := products[:0]
		for _, p := range products {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		return kept
	})
}

// dropLogs removes preview audit entries the remote never recorded.
func (c *Catalog) dropLogs(entries []models.StockLog) {
	if len(entries) == 0 {
		return
	}
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		ids[e.ID] = true
	}
	cache.Update(c.cache, cache.KeyStockLogs, []models.StockLog{}, func(logs []models.StockLog) []models.StockLog {
		kept := logs[:0]
		for _, l := range logs {
			if !ids[l.ID] {
				kept = append(kept, l)
			}
		}
		return kept
	})
}

func (c *Catalog) submit(ctx context.Context, product models.Product, edit gateway.PendingEdit) gateway.Outcome {
	out := c.gw.SubmitProduct(ctx, gateway.ProductPayload{
		Product:  product,
		UserID:   edit.UserID,
		UserName: edit.UserName,
		EditID:   edit.EditID,
	})

	cache.Update(c.cache, cache.KeyPendingProducts, []gateway.PendingEdit{}, func(pending []gateway.PendingEdit) []gateway.PendingEdit {
		kept := make([]gateway.PendingEdit, 0, len(pending)+1)
		for _, p := range pending {
			if p.ProductID != product.ID {
				kept = append(kept, p)
			}
		}
		if out.Status == gateway.Failed {
			kept = append(kept, edit)
		}
		return kept
	})
	return out
}

// DeleteProduct removes a product locally and remotely.
func (c *Catalog) DeleteProduct(ctx context.Context, id string) (gateway.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.Product(id); !ok {
		return gateway.Outcome{}, ErrUnknownProduct
	}
	c.drop(id)
	// A queued edit of a deleted product must not resurrect it.
	cache.Update(c.cache, cache.KeyPendingProducts, []gateway.PendingEdit{}, func(pending []gateway.PendingEdit) []gateway.PendingEdit {
		kept := pending[:0]
		for _, p := range pending {
			if p.ProductID != id {
				kept = append(kept, p)
			}
		}
		return kept
	})

	out := c.gw.RemoveProduct(ctx, id)
	if out.Status == gateway.Failed {
		cache.Update(c.cache, cache.KeyPendingDeletes, []string{}, func(ids []string) []string {
			for _, pending := range ids {
				if pending == id {
					return ids
				}
			}
			return append(ids, id)
		})
	}
	return out, nil
}

// PendingEdits lists product ids whose latest edit is queued.
func (c *Catalog) PendingEdits() []string {
	var ids []string
	for _, e := range cache.Read(c.cache, cache.KeyPendingProducts, []gateway.PendingEdit{}) {
		ids = append(ids, e.ProductID)
	}
	return ids
}

// PendingDeletes lists queued deletions.
func (c *Catalog) PendingDeletes() []string {
	return cache.Read(c.cache, cache.KeyPendingDeletes, []string{})
}

// ResubmitEdit replays the queued edit of a product with its original edit id.
func (c *Catalog) ResubmitEdit(ctx context.Context, productID string) gateway.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	var edit *gateway.PendingEdit
	for _, e := range cache.Read(c.cache, cache.KeyPendingProducts, []gateway.PendingEdit{}) {
		if e.ProductID == productID {
			e := e
			edit = &e
		}
	}
	product, ok := c.Product(productID)
	if edit == nil || !ok {
		return gateway.Outcome{Status: gateway.Accepted}
	}
	return c.submit(ctx, product, *edit)
}

// ResubmitDelete replays a queued deletion.
func (c *Catalog) ResubmitDelete(ctx context.Context, id string) gateway.Outcome {
	out := c.gw.RemoveProduct(ctx, id)
	if out.Status != gateway.Failed {
		cache.Update(c.cache, cache.KeyPendingDeletes, []string{}, func(ids []string) []string {
			kept := ids[:0]
			for _, pending := range ids {
				if pending != id {
					kept = append(kept, pending)
				}
			}
			return kept
		})
	}
	return out
}

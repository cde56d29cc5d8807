// Package pipeline records sales on the device and pushes them to the remote
// store. A sale is durable locally before any network call, and the local
// product mirror is never touched: stock only comes back down through a
// refetch of the remote product list.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/gateway"
	"go-pos-sync/internal/models"
)

// ErrInvalidSale wraps structural problems found before anything is stored.
var ErrInvalidSale = errors.New("invalid sale")

// Submitter is the slice of the gateway the pipeline needs.
type Submitter interface {
	SubmitSale(ctx context.Context, sale models.Sale) gateway.Outcome
}

// User is the operator ringing the sale up.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Line is one requested item.
type Line struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// NewSale builds a sale with a fresh id, snapshotting names and prices and
// computing subtotals and the total in exact decimal arithmetic.
func NewSale(lines []Line, user User, origin models.Origin, now time.Time) models.Sale {
	items := make([]models.SaleItem, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		sub := models.LineSubtotal(l.Quantity, l.UnitPrice)
		items = append(items, models.SaleItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    sub,
		})
		total = total.Add(models.Money(sub))
	}
	return models.Sale{
		ID:        uuid.NewString(),
		Items:     items,
		Total:     total.InexactFloat64(),
		UserID:    user.ID,
		UserName:  user.Name,
		Origin:    origin,
		CreatedAt: now,
	}
}

// SubmitResult tells the caller what happened to one sale. Rejection is set
// when the remote refused it; the sale then stays queued.
type SubmitResult struct {
	Sale      models.Sale      `json:"sale"`
	Synced    bool             `json:"synced"`
	Rejection *gateway.Outcome `json:"rejection,omitempty"`
}

// Pipeline owns the local sale list.
type Pipeline struct {
	cache *cache.Cache
	gw    Submitter
}

func New(c *cache.Cache, gw Submitter) *Pipeline {
	return &Pipeline{cache: c, gw: gw}
}

// SubmitSale stores sale locally as unsynced and makes one remote attempt.
// Only validation errors are returned; connectivity problems leave the sale
// queued and come back as Synced=false.
func (p *Pipeline) SubmitSale(ctx context.Context, sale models.Sale) (SubmitResult, error) {
	if err := sale.Validate(); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidSale, err)
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now()
	}
	sale.Synced = false

	// 1. Durable before anything else. A replayed id is not appended twice.
	var existing *models.Sale
	cache.Update(p.cache, cache.KeySales, []models.Sale{}, func(sales []models.Sale) []models.Sale {
		for i := range sales {
			if sales[i].ID == sale.ID {
				found := sales[i]
				existing = &found
				return sales
			}
		}
		return append([]models.Sale{sale}, sales...)
	})
	if existing != nil {
		if existing.Synced {
			return SubmitResult{Sale: *existing, Synced: true}, nil
		}
		sale = *existing
	}

	// 2. Exactly one attempt; retries belong to the sweeper.
	out := p.gw.SubmitSale(ctx, sale)
	switch out.Status {
	case gateway.Accepted:
		p.MarkSynced(sale.ID)
		sale.Synced = true
		log.Printf("✅ [PIPELINE] sale %s synced", sale.ID)
		return SubmitResult{Sale: sale, Synced: true}, nil
	case gateway.Rejected:
		return SubmitResult{Sale: sale, Rejection: &out}, nil
	default:
		log.Printf("📦 [PIPELINE] sale %s queued (%s)", sale.ID, out.Reason)
		return SubmitResult{Sale: sale}, nil
	}
}

// MarkSynced flips the local flag. It reports whether an unsynced sale changed.
func (p *Pipeline) MarkSynced(id string) bool {
	changed := false
	cache.Update(p.cache, cache.KeySales, []models.Sale{}, func(sales []models.Sale) []models.Sale {
		for i := range sales {
			if sales[i].ID == id && !sales[i].Synced {
				sales[i].Synced = true
				changed = true
			}
		}
		return sales
	})
	return changed
}

// Sales lists every local sale, newest first.
func (p *Pipeline) Sales() []models.Sale {
	return cache.Read(p.cache, cache.KeySales, []models.Sale{})
}

// Pending lists the sales the remote has not accepted yet, oldest first so
// replays happen in the order the sales were made.
func (p *Pipeline) Pending() []models.Sale {
	sales := p.Sales()
	pending := make([]models.Sale, 0)
	for i := len(sales) - 1; i >= 0; i-- {
		if !sales[i].Synced {
			pending = append(pending, sales[i])
		}
	}
	return pending
}

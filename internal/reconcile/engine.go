// Package reconcile is the remote store's write authority: it deduplicates
// client submissions by their generated id and is the only place that lowers
// inventory because of a sale.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"go-pos-sync/internal/audit"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/repository"
)

// StockLogLimit caps the stock log listing.
const StockLogLimit = 500

// Engine contains the acceptance rules of every collection
type Engine struct {
	repo     repository.Repository
	tracer   trace.Tracer
	lowStock models.LowStockPolicy
	now      func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithTracer replaces the global "reconcile" tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithLowStockPolicy picks the threshold comparison used by LowStock.
func WithLowStockPolicy(policy models.LowStockPolicy) Option {
	return func(e *Engine) { e.lowStock = policy }
}

// WithClock sets the time stamped on sales that arrive without one.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repo repository.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		tracer: otel.Tracer("reconcile"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SaleResult is the committed sale; Duplicate is set when the id had already
// been accepted and nothing was changed by this call.
type SaleResult struct {
	Sale      *models.Sale
	Duplicate bool
}

// AcceptSale commits a sale exactly once per id. Replays return the stored
// record without touching stock.
func (e *Engine) AcceptSale(ctx context.Context, payload models.Sale) (*SaleResult, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.accept_sale")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale_id", payload.ID),
		attribute.Int("items", len(payload.Items)),
	)

	if payload.Origin == "" {
		payload.Origin = models.OriginOnline
	}
	if err := payload.Validate(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	// 1. Idempotency: a known id converges on the stored record.
	existing, err := e.repo.FindSale(ctx, payload.ID)
	if err == nil {
		log.Printf("ℹ️  [IDEMPOTENCY] sale %s already accepted", payload.ID)
		span.SetAttributes(attribute.Bool("duplicate", true))
		return &SaleResult{Sale: existing, Duplicate: true}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		span.RecordError(err)
		return nil, fmt.Errorf("check sale %s: %w", payload.ID, err)
	}

	var result *SaleResult
	err = e.repo.Transaction(ctx, func(tx repository.Repository) error {
		// A retry may have committed between the check above and this transaction.
		if existing, err := tx.FindSale(ctx, payload.ID); err == nil {
			result = &SaleResult{Sale: existing, Duplicate: true}
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		requested := payload.RequestedQuantities()
		// Lock rows in a stable order so concurrent sales cannot deadlock.
		ids := make([]string, 0, len(requested))
		for id := range requested {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		// 2. Check every line before touching anything.
		var shortages []ItemShortage
		for _, id := range ids {
			product, err := tx.FindProduct(ctx, id, true)
			if errors.Is(err, repository.ErrNotFound) {
				shortages = append(shortages, ItemShortage{ProductID: id, Requested: requested[id], Missing: true})
				continue
			}
			if err != nil {
				return err
			}
			if product.Quantity < requested[id] {
				shortages = append(shortages, ItemShortage{
					ProductID:   id,
					ProductName: product.Name,
					Requested:   requested[id],
					Available:   product.Quantity,
				})
			}
		}
		if len(shortages) > 0 {
			return &StockError{SaleID: payload.ID, Items: shortages}
		}

		// 3. Deduct stock. This is the only sale-driven write to product quantities.
		for _, id := range ids {
			if err := tx.DecrementStock(ctx, id, requested[id]); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					return &StockError{SaleID: payload.ID, Items: []ItemShortage{{ProductID: id, Requested: requested[id]}}}
				}
				return err
			}
		}

		// 4. Persist the sale; it is synced by definition once stored here.
		sale := payload
		sale.Synced = true
		if sale.CreatedAt.IsZero() {
			sale.CreatedAt = e.now()
		}
		for i := range sale.Items {
			sale.Items[i].ID = 0
			sale.Items[i].SaleID = sale.ID
		}
		if err := tx.CreateSale(ctx, &sale); err != nil {
			return err
		}
		result = &SaleResult{Sale: &sale}
		return nil
	})

	if err != nil {
		// 5. Lost an insert race: the unique id decides, the transaction rolled
		// our decrements back, and the winner's record is returned.
		if errors.Is(err, repository.ErrDuplicate) {
			winner, ferr := e.repo.FindSale(ctx, payload.ID)
			if ferr == nil {
				log.Printf("ℹ️  [IDEMPOTENCY] sale %s lost insert race, returning winner", payload.ID)
				span.SetAttributes(attribute.Bool("duplicate", true))
				return &SaleResult{Sale: winner, Duplicate: true}, nil
			}
			err = fmt.Errorf("%w (re-query failed: %v)", err, ferr)
		}
		span.RecordError(err)
		var stockErr *StockError
		if errors.As(err, &stockErr) {
			log.Printf("❌ [SALE] rejected: %v", stockErr)
			return nil, err
		}
		return nil, fmt.Errorf("accept sale %s: %w", payload.ID, err)
	}

	span.SetAttributes(attribute.Bool("duplicate", result.Duplicate))
	if !result.Duplicate {
		log.Printf("✅ [SALE] accepted id=%s total=%.2f origin=%s", result.Sale.ID, result.Sale.Total, result.Sale.Origin)
	}
	return result, nil
}

// ProductEdit is a manual change coming from the product management surface.
type ProductEdit struct {
	Product models.Product
	Editor  audit.Editor
}

// ProductResult is the stored product and the audit entries the edit produced.
type ProductResult struct {
	Product *models.Product
	Created bool
	Logs    []models.StockLog
}

func validateProduct(p models.Product) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("%w: product id is required", ErrInvalidPayload)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: product name is required", ErrInvalidPayload)
	case p.Quantity < 0:
		return fmt.Errorf("%w: quantity cannot be negative", ErrInvalidPayload)
	case p.Price < 0 || p.Cost < 0:
		return fmt.Errorf("%w: price and cost cannot be negative", ErrInvalidPayload)
	case !p.Beneficiary.Valid():
		return fmt.Errorf("%w: unknown beneficiary %q", ErrInvalidPayload, p.Beneficiary)
	}
	return nil
}

// UpsertProduct creates the product if its id is unknown, otherwise applies
// the edit, and records the audit entries in the same transaction.
func (e *Engine) UpsertProduct(ctx context.Context, edit ProductEdit) (*ProductResult, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.upsert_product")
	defer span.End()
	span.SetAttributes(attribute.String("product_id", edit.Product.ID))

	product := edit.Product
	if product.Beneficiary == "" {
		product.Beneficiary = models.BeneficiaryShared
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.LowStockThreshold <= 0 {
		product.LowStockThreshold = models.DefaultLowStockThreshold
	}

	var result ProductResult
	err := e.repo.Transaction(ctx, func(tx repository.Repository) error {
		now := e.now()
		previous, err := tx.FindProduct(ctx, product.ID, true)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			previous = nil
			if product.CreatedAt.IsZero() {
				product.CreatedAt = now
			}
			product.UpdatedAt = now
			if err := tx.CreateProduct(ctx, &product); err != nil {
				return err
			}
			result.Created = true
		case err != nil:
			return err
		default:
			product.CreatedAt = previous.CreatedAt
			product.UpdatedAt = now
			if err := tx.UpdateProduct(ctx, &product); err != nil {
				return err
			}
		}

		for _, entry := range audit.RecordManualEdit(product, previous, edit.Editor, now) {
			stored, _, err := audit.Accept(ctx, tx, entry)
			if err != nil {
				return err
			}
			result.Logs = append(result.Logs, *stored)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("upsert product %s: %w", product.ID, err)
	}

	result.Product = &product
	log.Printf("✅ [PRODUCT] saved id=%s created=%t audit_entries=%d", product.ID, result.Created, len(result.Logs))
	return &result, nil
}

// RemoveProduct hard-deletes a product. Its past sale lines keep their snapshots.
func (e *Engine) RemoveProduct(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidPayload)
	}
	if err := e.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	log.Printf("🗑️ [PRODUCT] removed id=%s", id)
	return nil
}

// AcceptShift stores a new shift or an update of an active one. A payload
// with endTime closes the shift. Closed shifts never reopen and stale
// payloads (fewer embedded sales than stored) never overwrite newer state.
func (e *Engine) AcceptShift(ctx context.Context, payload models.Shift) (*models.Shift, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.accept_shift")
	defer span.End()
	span.SetAttributes(attribute.String("shift_id", payload.ID))

	if strings.TrimSpace(payload.ID) == "" {
		return nil, fmt.Errorf("%w: shift id is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidPayload)
	}
	closing := payload.EndTime != nil || payload.Status == models.ShiftClosed
	if closing {
		if payload.EndTime == nil {
			end := e.now()
			payload.EndTime = &end
		}
		payload.Status = models.ShiftClosed
	} else {
		payload.Status = models.ShiftActive
	}
	if payload.StartTime.IsZero() {
		payload.StartTime = e.now()
	}

	var stored *models.Shift
	err := e.repo.Transaction(ctx, func(tx repository.Repository) error {
		existing, err := tx.FindShift(ctx, payload.ID)
		if errors.Is(err, repository.ErrNotFound) {
			if err := tx.CreateShift(ctx, &payload); err != nil {
				return err
			}
			stored = &payload
			return nil
		}
		if err != nil {
			return err
		}

		if existing.Status == models.ShiftClosed {
			stored = existing
			return nil
		}
		if len(payload.Sales) < len(existing.Sales) {
			if closing {
				existing.Status = models.ShiftClosed
				existing.EndTime = payload.EndTime
				if err := tx.SaveShift(ctx, existing); err != nil {
					return err
				}
			}
			stored = existing
			return nil
		}
		if err := tx.SaveShift(ctx, &payload); err != nil {
			return err
		}
		stored = &payload
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("accept shift %s: %w", payload.ID, err)
	}
	return stored, nil
}

// AcceptStockLog stores an audit entry once per id.
func (e *Engine) AcceptStockLog(ctx context.Context, entry models.StockLog) (*models.StockLog, bool, error) {
	return audit.Accept(ctx, e.repo, entry)
}

func (e *Engine) ListProducts(ctx context.Context) ([]models.Product, error) {
	return e.repo.ListProducts(ctx)
}

// LowStock lists the products under their threshold.
func (e *Engine) LowStock(ctx context.Context) ([]models.Product, error) {
	products, err := e.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return models.FilterLowStock(products, e.lowStock), nil
}

func (e *Engine) ListSales(ctx context.Context, limit int) ([]models.Sale, error) {
	return e.repo.ListSales(ctx, limit)
}

func (e *Engine) ListShifts(ctx context.Context) ([]models.Shift, error) {
	return e.repo.ListShifts(ctx)
}

func (e *Engine) ListStockLogs(ctx context.Context) ([]models.StockLog, error) {
	return e.repo.ListStockLogs(ctx, StockLogLimit)
}

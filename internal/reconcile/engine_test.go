package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"go-pos-sync/internal/audit"
	"go-pos-sync/internal/database"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/repository"
)

func newTestEngine(t *testing.T) (*Engine, *repository.GormRepository) {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := repository.NewGormRepository(db)
	return NewEngine(repo), repo
}

func seedProduct(t *testing.T, repo repository.Repository, id string, qty int) {
	t.Helper()
	require.NoError(t, repo.CreateProduct(context.Background(), &models.Product{
		ID: id, Name: "Product " + id, Price: 100, Cost: 60, Quantity: qty,
		LowStockThreshold: 5, Beneficiary: models.BeneficiaryShared,
	}))
}

func saleOf(id, productID string, qty int) models.Sale {
	return models.Sale{
		ID:       id,
		UserID:   "1",
		UserName: "Lucas",
		Origin:   models.OriginOffline,
		Total:    models.LineSubtotal(qty, 100),
		Items: []models.SaleItem{{
			ProductID: productID, ProductName: "Product " + productID,
			Quantity: qty, UnitPrice: 100, Subtotal: models.LineSubtotal(qty, 100),
		}},
	}
}

func quantityOf(t *testing.T, repo repository.Repository, id string) int {
	t.Helper()
	p, err := repo.FindProduct(context.Background(), id, false)
	require.NoError(t, err)
	return p.Quantity
}

func TestAcceptSaleDeductsOnce(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10)

	first, err := engine.AcceptSale(ctx, saleOf("s1", "p1", 3))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.True(t, first.Sale.Synced)
	assert.Equal(t, 7, quantityOf(t, repo, "p1"))

	// The device retries after a lost acknowledgement.
	second, err := engine.AcceptSale(ctx, saleOf("s1", "p1", 3))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, "s1", second.Sale.ID)
	assert.Equal(t, 7, quantityOf(t, repo, "p1"))

	sales, err := engine.ListSales(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestAcceptSaleReplayReturnsStoredRecord(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10)

	_, err := engine.AcceptSale(ctx, saleOf("s1", "p1", 2))
	require.NoError(t, err)

	// A replay with a different body still resolves to the first record.
	replay := saleOf("s1", "p1", 5)
	got, err := engine.AcceptSale(ctx, replay)
	require.NoError(t, err)
	assert.True(t, got.Duplicate)
	require.Len(t, got.Sale.Items, 1)
	assert.Equal(t, 2, got.Sale.Items[0].Quantity)
	assert.Equal(t, 8, quantityOf(t, repo, "p1"))
}

func TestAcceptSaleRejectsInsufficientStock(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10)

	_, err := engine.AcceptSale(ctx, saleOf("s1", "p1", 15))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	require.Len(t, stockErr.Items, 1)
	assert.Equal(t, 15, stockErr.Items[0].Requested)
	assert.Equal(t, 10, stockErr.Items[0].Available)

	assert.Equal(t, 10, quantityOf(t, repo, "p1"))
	_, err = repo.FindSale(ctx, "s1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAcceptSaleIsAllOrNothing(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10)
	seedProduct(t, repo, "p2", 1)

	sale := models.Sale{
		ID: "s1", UserID: "1", UserName: "Lucas", Total: 500,
		Items: []models.SaleItem{
			{ProductID: "p1", Quantity: 3, UnitPrice: 100, Subtotal: 300},
			{ProductID: "p2", Quantity: 2, UnitPrice: 100, Subtotal: 200},
		},
	}
	_, err := engine.AcceptSale(ctx, sale)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 10, quantityOf(t, repo, "p1"))
	assert.Equal(t, 1, quantityOf(t, repo, "p2"))
}

func TestAcceptSaleAggregatesRepeatedLines(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 5)

	sale := models.Sale{
		ID: "s1", UserID: "1", Total: 600,
		Items: []models.SaleItem{
			{ProductID: "p1", Quantity: 3, UnitPrice: 100, Subtotal: 300},
			{ProductID: "p1", Quantity: 3, UnitPrice: 100, Subtotal: 300},
		},
	}
	_, err := engine.AcceptSale(ctx, sale)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 5, quantityOf(t, repo, "p1"))
}

func TestAcceptSaleUnknownProduct(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.AcceptSale(context.Background(), saleOf("s1", "ghost", 1))
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.NotErrorIs(t, err, ErrInsufficientStock)
}

func TestAcceptSaleValidation(t *testing.T) {
	engine, repo := newTestEngine(t)
	seedProduct(t, repo, "p1", 10)

	cases := map[string]models.Sale{
		"missing id":     {Items: saleOf("", "p1", 1).Items, Total: 100},
		"no items":       {ID: "s1"},
		"total mismatch": func() models.Sale { s := saleOf("s1", "p1", 1); s.Total = 999; return s }(),
		"zero quantity": {ID: "s1", Items: []models.SaleItem{{ProductID: "p1", Quantity: 0}}},
	}
	for name, sale := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := engine.AcceptSale(context.Background(), sale)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
	assert.Equal(t, 10, quantityOf(t, repo, "p1"))
}

func TestAcceptSaleDefaultsOriginToOnline(t *testing.T) {
	engine, repo := newTestEngine(t)
	seedProduct(t, repo, "p1", 10)

	sale := saleOf("s1", "p1", 1)
	sale.Origin = ""
	got, err := engine.AcceptSale(context.Background(), sale)
	require.NoError(t, err)
	assert.Equal(t, models.OriginOnline, got.Sale.Origin)
}

// racingSales hides the sale from the first lookups, as if a concurrent
// submission of the same id committed right after them.
type racingSales struct {
	repository.Repository
	hide *int
}

func (r *racingSales) FindSale(ctx context.Context, id string) (*models.Sale, error) {
	if *r.hide > 0 {
		*r.hide--
		return nil, repository.ErrNotFound
	}
	return r.Repository.FindSale(ctx, id)
}

func (r *racingSales) Transaction(ctx context.Context, fn func(tx repository.Repository) error) error {
	return r.Repository.Transaction(ctx, func(tx repository.Repository) error {
		return fn(&racingSales{Repository: tx, hide: r.hide})
	})
}

func TestAcceptSaleConvergesOnInsertRace(t *testing.T) {
	_, base := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, base, "p1", 10)

	// The winner already committed: stock is 7 and s1 exists.
	require.NoError(t, base.DecrementStock(ctx, "p1", 3))
	winner := saleOf("s1", "p1", 3)
	winner.Synced = true
	require.NoError(t, base.CreateSale(ctx, &winner))

	hide := 2
	engine := NewEngine(&racingSales{Repository: base, hide: &hide})
	got, err := engine.AcceptSale(ctx, saleOf("s1", "p1", 3))
	require.NoError(t, err)
	assert.True(t, got.Duplicate)
	assert.Equal(t, "s1", got.Sale.ID)
	// The loser's decrement was rolled back with its transaction.
	assert.Equal(t, 7, quantityOf(t, base, "p1"))
}

func TestAcceptSaleConcurrentSameIDConverges(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10)

	const workers = 20
	var wg sync.WaitGroup
	results := make([]*SaleResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.AcceptSale(ctx, saleOf("s1", "p1", 3))
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "s1", results[i].Sale.ID)
		if !results[i].Duplicate {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, "exactly one submission applies the sale")
	assert.Equal(t, 7, quantityOf(t, repo, "p1"))

	sales, err := engine.ListSales(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	logs, err := engine.ListStockLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSaleAcceptanceWritesNoAuditEntries(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10)
	seedProduct(t, repo, "p2", 10)

	_, err := engine.AcceptSale(ctx, saleOf("s1", "p1", 2))
	require.NoError(t, err)
	_, err = engine.AcceptSale(ctx, saleOf("s2", "p2", 4))
	require.NoError(t, err)
	_, err = engine.AcceptSale(ctx, saleOf("s1", "p1", 2))
	require.NoError(t, err)

	assert.Equal(t, 8, quantityOf(t, repo, "p1"))
	assert.Equal(t, 6, quantityOf(t, repo, "p2"))
	logs, err := engine.ListStockLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, logs, "sale deductions are not manual stock edits")
}

func TestAcceptSaleStampsMissingCreatedAt(t *testing.T) {
	_, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10)

	at := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	engine := NewEngine(repo, WithClock(func() time.Time { return at }))

	got, err := engine.AcceptSale(ctx, saleOf("s1", "p1", 1))
	require.NoError(t, err)
	assert.True(t, got.Sale.CreatedAt.Equal(at))

	stamped := saleOf("s2", "p1", 1)
	stamped.CreatedAt = at.Add(-time.Hour)
	got, err = engine.AcceptSale(ctx, stamped)
	require.NoError(t, err)
	assert.True(t, got.Sale.CreatedAt.Equal(at.Add(-time.Hour)), "device time is kept")
}

func TestAcceptSaleTracesDuplicates(t *testing.T) {
	_, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	engine := NewEngine(repo, WithTracer(tp.Tracer("test")))

	for i := 0; i < 2; i++ {
		_, err := engine.AcceptSale(ctx, saleOf("s1", "p1", 1))
		require.NoError(t, err)
	}

	spans := rec.Ended()
	require.Len(t, spans, 2)
	var duplicates []bool
	for _, span := range spans {
		assert.Equal(t, "reconcile.accept_sale", span.Name())
		for _, kv := range span.Attributes() {
			if kv.Key == attribute.Key("duplicate") {
				duplicates = append(duplicates, kv.Value.AsBool())
			}
		}
	}
	assert.Equal(t, []bool{false, true}, duplicates)
}

func TestUpsertProductCreatesAndAudits(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()
	editor := audit.Editor{UserID: "1", UserName: "Lucas", EditID: "e1"}

	res, err := engine.UpsertProduct(ctx, ProductEdit{
		Product: models.Product{ID: "p1", Name: "Arroz", Price: 100, Cost: 60, Quantity: 10},
		Editor:  editor,
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, models.BeneficiaryShared, res.Product.Beneficiary)
	assert.Equal(t, models.DefaultLowStockThreshold, res.Product.LowStockThreshold)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, models.ActionCreate, res.Logs[0].Action)

	res, err = engine.UpsertProduct(ctx, ProductEdit{
		Product: models.Product{ID: "p1", Name: "Arroz", Price: 120, Cost: 60, Quantity: 4},
		Editor:  audit.Editor{UserID: "1", UserName: "Lucas", EditID: "e2"},
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	actions := []models.StockAction{}
	for _, l := range res.Logs {
		actions = append(actions, l.Action)
	}
	assert.ElementsMatch(t, []models.StockAction{models.ActionRemove, models.ActionUpdatePrice}, actions)
	assert.Equal(t, 4, quantityOf(t, repo, "p1"))

	logs, err := engine.ListStockLogs(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestUpsertProductReplayedEditDoesNotDuplicateAudit(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	edit := ProductEdit{
		Product: models.Product{ID: "p1", Name: "Arroz", Price: 100, Quantity: 10},
		Editor:  audit.Editor{UserID: "1", EditID: "e1"},
	}
	_, err := engine.UpsertProduct(ctx, edit)
	require.NoError(t, err)

	edit.Product.Quantity = 20
	edit.Editor.EditID = "e2"
	_, err = engine.UpsertProduct(ctx, edit)
	require.NoError(t, err)
	// Same edit delivered again: quantity already 20, no new entries.
	_, err = engine.UpsertProduct(ctx, edit)
	require.NoError(t, err)

	logs, err := engine.ListStockLogs(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestUpsertProductValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.UpsertProduct(context.Background(), ProductEdit{Product: models.Product{ID: "p1"}})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = engine.UpsertProduct(context.Background(), ProductEdit{Product: models.Product{ID: "p1", Name: "x", Quantity: -1}})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = engine.UpsertProduct(context.Background(), ProductEdit{Product: models.Product{ID: "p1", Name: "x", Beneficiary: "C"}})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestRemoveProduct(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 1)

	require.NoError(t, engine.RemoveProduct(ctx, "p1"))
	assert.ErrorIs(t, engine.RemoveProduct(ctx, "p1"), repository.ErrNotFound)
}

func TestLowStockUsesPolicy(t *testing.T) {
	_, repo := newTestEngine(t)
	ctx := context.Background()
	seedProduct(t, repo, "at", 5)
	seedProduct(t, repo, "below", 4)
	seedProduct(t, repo, "above", 6)

	strict, err := NewEngine(repo).LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, strict, 1)
	assert.Equal(t, "below", strict[0].ID)

	inclusive, err := NewEngine(repo, WithLowStockPolicy(models.LowStockInclusive)).LowStock(ctx)
	require.NoError(t, err)
	assert.Len(t, inclusive, 2)
}

func TestAcceptShiftLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Hour)

	shift := models.Shift{ID: "sh1", UserID: "1", UserName: "Lucas", StartTime: start, Status: models.ShiftActive}
	got, err := engine.AcceptShift(ctx, shift)
	require.NoError(t, err)
	assert.Equal(t, models.ShiftActive, got.Status)

	shift.Sales = []models.Sale{saleOf("s1", "p1", 1), saleOf("s2", "p1", 1)}
	shift.TotalSales = 200
	got, err = engine.AcceptShift(ctx, shift)
	require.NoError(t, err)
	assert.Len(t, got.Sales, 2)

	// A stale copy carrying fewer sales does not regress the record.
	stale := shift
	stale.Sales = shift.Sales[:1]
	stale.TotalSales = 100
	got, err = engine.AcceptShift(ctx, stale)
	require.NoError(t, err)
	assert.Len(t, got.Sales, 2)
	assert.Equal(t, 200.0, got.TotalSales)

	end := time.Now()
	closed := shift
	closed.EndTime = &end
	got, err = engine.AcceptShift(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, models.ShiftClosed, got.Status)

	// Closed shifts never reopen.
	reopen := shift
	reopen.Status = models.ShiftActive
	reopen.Sales = append(shift.Sales, saleOf("s3", "p1", 1))
	got, err = engine.AcceptShift(ctx, reopen)
	require.NoError(t, err)
	assert.Equal(t, models.ShiftClosed, got.Status)
	assert.Len(t, got.Sales, 2)

	shifts, err := engine.ListShifts(ctx)
	require.NoError(t, err)
	assert.Len(t, shifts, 1)
}

func TestAcceptShiftStaleCloseStillCloses(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	shift := models.Shift{ID: "sh1", UserID: "1", StartTime: time.Now(), Sales: []models.Sale{saleOf("s1", "p1", 1)}, TotalSales: 100}
	_, err := engine.AcceptShift(ctx, shift)
	require.NoError(t, err)

	end := time.Now()
	staleClose := models.Shift{ID: "sh1", UserID: "1", StartTime: shift.StartTime, EndTime: &end}
	got, err := engine.AcceptShift(ctx, staleClose)
	require.NoError(t, err)
	assert.Equal(t, models.ShiftClosed, got.Status)
	assert.Len(t, got.Sales, 1)
	assert.Equal(t, 100.0, got.TotalSales)
}

func TestAcceptShiftValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.AcceptShift(context.Background(), models.Shift{UserID: "1"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = engine.AcceptShift(context.Background(), models.Shift{ID: "sh1"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestAcceptStockLogOncePerID(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	entry := models.StockLog{ID: "l1", ProductID: "p1", Action: models.ActionAdd, PreviousValue: 1, NewValue: 4}

	_, dup, err := engine.AcceptStockLog(ctx, entry)
	require.NoError(t, err)
	assert.False(t, dup)
	_, dup, err = engine.AcceptStockLog(ctx, entry)
	require.NoError(t, err)
	assert.True(t, dup)
}

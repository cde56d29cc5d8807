package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/catalog"
	"go-pos-sync/internal/gateway"
	"go-pos-sync/internal/gateway/gatewaytest"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/pipeline"
	"go-pos-sync/internal/shift"
)

type rig struct {
	clock    *testclock.Clock
	remote   *gatewaytest.FakeRemote
	cache    *cache.Cache
	pipeline *pipeline.Pipeline
	shifts   *shift.Accumulator
	catalog  *catalog.Catalog
	sweeper  *Sweeper
}

func newRig(products ...models.Product) *rig {
	clk := testclock.NewClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	remote := gatewaytest.NewFakeRemote(products...)
	c := cache.New(cache.NewMemoryStore())
	gw := gateway.New(remote, c)
	r := &rig{
		clock:    clk,
		remote:   remote,
		cache:    c,
		pipeline: pipeline.New(c, gw),
		shifts:   shift.New(c, gw, clk),
		catalog:  catalog.New(c, gw, clk, models.LowStockStrict),
	}
	r.sweeper = NewSweeper(clk, gw, r.pipeline, r.shifts, r.catalog, Options{
		Interval:       30 * time.Second,
		BackoffInitial: 2 * time.Second,
		BackoffMax:     10 * time.Second,
	})
	return r
}

func (r *rig) offlineSale(t *testing.T, qty int) models.Sale {
	t.Helper()
	sale := pipeline.NewSale([]pipeline.Line{{ProductID: "p1", ProductName: "Arroz", Quantity: qty, UnitPrice: 100}},
		pipeline.User{ID: "1", Name: "Lucas"}, models.OriginOffline, r.clock.Now())
	_, err := r.pipeline.SubmitSale(context.Background(), sale)
	require.NoError(t, err)
	return sale
}

func arroz(qty int) models.Product {
	return models.Product{ID: "p1", Name: "Arroz", Quantity: qty, Price: 100, Cost: 60}
}

func TestSweepSyncsQueuedSaleOnce(t *testing.T) {
	r := newRig(arroz(10))
	ctx := context.Background()
	r.remote.SetOffline(true)
	sale := r.offlineSale(t, 3)

	r.remote.SetOffline(false)
	rep := r.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Synced)
	assert.True(t, rep.Reachable)
	assert.Empty(t, r.pipeline.Pending())

	// The refresh pulled the authoritative stock back into the mirror.
	p, ok := r.catalog.Product("p1")
	require.True(t, ok)
	assert.Equal(t, 7, p.Quantity)

	rep = r.sweeper.Sweep(ctx)
	assert.Equal(t, 0, rep.Attempted)
	assert.Equal(t, 1, r.remote.SaleCount())
	sales := r.pipeline.Sales()
	require.Len(t, sales, 1)
	assert.Equal(t, sale.ID, sales[0].ID)
	assert.True(t, sales[0].Synced)
}

func TestPersistentFailureBacksOff(t *testing.T) {
	r := newRig(arroz(10))
	ctx := context.Background()
	r.remote.SetOffline(true)
	sale := r.offlineSale(t, 1)
	key := SaleKey(sale.ID)

	rep := r.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Failed)
	assert.False(t, rep.Reachable)
	assert.Equal(t, r.clock.Now().Add(2*time.Second), r.sweeper.NextAttempt(key))

	// Not due yet.
	rep = r.sweeper.Sweep(ctx)
	assert.Equal(t, 0, rep.Attempted)
	assert.Equal(t, 1, rep.Skipped)

	r.clock.Advance(2 * time.Second)
	rep = r.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, r.clock.Now().Add(3*time.Second), r.sweeper.NextAttempt(key))

	// Still exactly one local entry, still unsynced.
	assert.Len(t, r.pipeline.Sales(), 1)
	assert.Len(t, r.pipeline.Pending(), 1)
	assert.Equal(t, 3, r.remote.Calls("PostSale"))

	// Growth is capped.
	for i := 0; i < 10; i++ {
		r.clock.Advance(time.Minute)
		r.sweeper.Sweep(ctx)
	}
	assert.Equal(t, r.clock.Now().Add(10*time.Second), r.sweeper.NextAttempt(key))

	r.remote.SetOffline(false)
	r.clock.Advance(time.Minute)
	rep = r.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Synced)
	assert.True(t, r.sweeper.NextAttempt(key).IsZero())
}

func TestUnreachableStopsThePass(t *testing.T) {
	r := newRig(arroz(10))
	r.remote.SetOffline(true)
	r.offlineSale(t, 1)
	r.offlineSale(t, 1)
	calls := r.remote.Calls("PostSale")

	rep := r.sweeper.Sweep(context.Background())
	assert.Equal(t, 1, rep.Attempted)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, calls+1, r.remote.Calls("PostSale"))
}

func TestRejectedSaleStaysQueuedUntilRestock(t *testing.T) {
	r := newRig(arroz(2))
	ctx := context.Background()
	r.offlineSale(t, 5)
	require.Len(t, r.pipeline.Pending(), 1)

	rep := r.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Rejected)
	assert.True(t, rep.Reachable)
	assert.Len(t, r.pipeline.Pending(), 1)

	// Restock through the catalog; the next due sweep gets the sale through.
	p, _ := r.catalog.Product("p1")
	p.Quantity = 20
	_, out, err := r.catalog.SaveProduct(ctx, p, catalog.Editor{ID: "1", Name: "Lucas"})
	require.NoError(t, err)
	require.True(t, out.Accepted())

	r.clock.Advance(2 * time.Second)
	rep = r.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Synced)
	stored, _ := r.remote.Product("p1")
	assert.Equal(t, 15, stored.Quantity)
}

func TestSweepDrainsShiftsAndProducts(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	r.remote.SetOffline(true)

	sh, err := r.shifts.StartShift(ctx, "1", "Lucas")
	require.NoError(t, err)
	saved, _, err := r.catalog.SaveProduct(ctx, models.Product{Name: "Sal", Quantity: 4}, catalog.Editor{ID: "1"})
	require.NoError(t, err)
	require.Len(t, r.shifts.Pending(), 1)
	require.Len(t, r.catalog.PendingEdits(), 1)

	r.remote.SetOffline(false)
	rep := r.sweeper.Sweep(ctx)
	assert.Equal(t, 2, rep.Synced)
	assert.Empty(t, r.shifts.Pending())
	assert.Empty(t, r.catalog.PendingEdits())

	_, ok := r.remote.Shift(sh.ID)
	assert.True(t, ok)
	_, ok = r.remote.Product(saved.ID)
	assert.True(t, ok)
}

func TestRunSweepsOnIntervalAndNotify(t *testing.T) {
	r := newRig(arroz(10))
	r.remote.SetOffline(true)
	r.offlineSale(t, 1)
	r.remote.SetOffline(false)
	r.remote.FailNext(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.sweeper.Run(ctx) }()

	// First sweep fails (dropped), then waits on the interval timer.
	require.NoError(t, r.clock.WaitAdvance(30*time.Second, time.Second, 1))
	assert.Eventually(t, func() bool { return len(r.pipeline.Pending()) == 0 }, time.Second, 10*time.Millisecond)

	r.sweeper.Notify()
	r.sweeper.Notify() // coalesced, never blocks
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

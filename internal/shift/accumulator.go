// Package shift keeps the operator's working session and its running totals.
package shift

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/shopspring/decimal"

	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/gateway"
	"go-pos-sync/internal/models"
)

var (
	ErrNoActiveShift = errors.New("no active shift")
	ErrShiftNotFound = errors.New("shift not found")
)

// Submitter is the slice of the gateway the accumulator needs.
type Submitter interface {
	SubmitShift(ctx context.Context, shift models.Shift) gateway.Outcome
}

// Accumulator owns the local shift list. At most one shift is active.
type Accumulator struct {
	mu    sync.Mutex
	cache *cache.Cache
	gw    Submitter
	clock clock.Clock
}

func New(c *cache.Cache, gw Submitter, clk clock.Clock) *Accumulator {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Accumulator{cache: c, gw: gw, clock: clk}
}

// Shifts lists local shifts, newest first.
func (a *Accumulator) Shifts() []models.Shift {
	return cache.Read(a.cache, cache.KeyShifts, []models.Shift{})
}

// ActiveShift returns the open shift, or nil.
func (a *Accumulator) ActiveShift() *models.Shift {
	for _, s := range a.Shifts() {
		if s.Status == models.ShiftActive {
			s := s
			return &s
		}
	}
	return nil
}

// StartShift closes any open shift and opens a new one with zeroed totals.
func (a *Accumulator) StartShift(ctx context.Context, userID, userName string) (*models.Shift, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if active := a.ActiveShift(); active != nil {
		log.Printf("ℹ️  [SHIFT] closing %s before starting a new one", active.ID)
		if _, err := a.close(ctx, active.ID); err != nil {
			return nil, err
		}
	}

	shift := models.Shift{
		ID:        uuid.NewString(),
		UserID:    userID,
		UserName:  userName,
		StartTime: a.clock.Now(),
		Status:    models.ShiftActive,
		Sales:     []models.Sale{},
	}
	cache.Update(a.cache, cache.KeyShifts, []models.Shift{}, func(shifts []models.Shift) []models.Shift {
		return append([]models.Shift{shift}, shifts...)
	})
	a.publish(ctx, shift)
	log.Printf("🟢 [SHIFT] %s started by %s", shift.ID, userName)
	return &shift, nil
}

// profitOf attributes each line's margin to its product's beneficiary using
// the cached product mirror. Lines whose product is unknown earn nothing.
func (a *Accumulator) profitOf(sale models.Sale) map[models.Beneficiary]decimal.Decimal {
	mirror := make(map[string]models.Product)
	for _, p := range cache.Read(a.cache, cache.KeyProducts, []models.Product{}) {
		mirror[p.ID] = p
	}

	out := make(map[models.Beneficiary]decimal.Decimal)
	for _, it := range sale.Items {
		p, ok := mirror[it.ProductID]
		if !ok {
			log.Printf("⚠️ [SHIFT] product %s not in mirror, no profit attributed", it.ProductID)
			continue
		}
		b := p.Beneficiary
		if !b.Valid() {
			b = models.BeneficiaryShared
		}
		margin := models.Money(p.Price).Sub(models.Money(p.Cost)).Mul(decimal.NewFromInt(int64(it.Quantity)))
		out[b] = out[b].Add(margin)
	}
	return out
}

// AddSaleToShift appends sale to the active shift and grows its running sums.
func (a *Accumulator) AddSaleToShift(ctx context.Context, sale models.Sale) (*models.Shift, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	profit := a.profitOf(sale)
	var updated *models.Shift
	cache.Update(a.cache, cache.KeyShifts, []models.Shift{}, func(shifts []models.Shift) []models.Shift {
		for i := range shifts {
			s := &shifts[i]
			if s.Status != models.ShiftActive {
				continue
			}
			for _, existing := range s.Sales {
				if existing.ID == sale.ID {
					found := *s
					updated = &found
					return shifts
				}
			}

			s.Sales = append(s.Sales, sale)
			s.TotalSales = models.Money(s.TotalSales).Add(models.Money(sale.Total)).InexactFloat64()

			pb := &s.ProfitByBeneficiary
			pb.A = models.Money(pb.A).Add(profit[models.BeneficiaryA]).InexactFloat64()
			pb.B = models.Money(pb.B).Add(profit[models.BeneficiaryB]).InexactFloat64()
			pb.Shared = models.Money(pb.Shared).Add(profit[models.BeneficiaryShared]).InexactFloat64()
			s.TotalProfit = models.Money(pb.A).Add(models.Money(pb.B)).Add(models.Money(pb.Shared)).InexactFloat64()

			found := *s
			updated = &found
			return shifts
		}
		return shifts
	})
	if updated == nil {
		return nil, ErrNoActiveShift
	}

	a.publish(ctx, *updated)
	return updated, nil
}

// CloseShift stamps endTime and stops the shift from accepting sales.
// Closing an already closed shift returns it unchanged.
func (a *Accumulator) CloseShift(ctx context.Context, id string) (*models.Shift, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.close(ctx, id)
}

func (a *Accumulator) close(ctx context.Context, id string) (*models.Shift, error) {
	var closed *models.Shift
	changed := false
	cache.Update(a.cache, cache.KeyShifts, []models.Shift{}, func(shifts []models.Shift) []models.Shift {
		for i := range shifts {
			if shifts[i].ID != id {
				continue
			}
			if shifts[i].Status == models.ShiftActive {
				end := a.clock.Now()
				shifts[i].Status = models.ShiftClosed
				shifts[i].EndTime = &end
				changed = true
			}
			found := shifts[i]
			closed = &found
			break
		}
		return shifts
	})
	if closed == nil {
		return nil, ErrShiftNotFound
	}
	if changed {
		a.publish(ctx, *closed)
		log.Printf("🔴 [SHIFT] %s closed: sales=%.2f profit=%.2f", closed.ID, closed.TotalSales, closed.TotalProfit)
	}
	return closed, nil
}

// publish submits the current state of a shift; anything short of acceptance
// queues the id for the sweeper.
func (a *Accumulator) publish(ctx context.Context, shift models.Shift) {
	if a.gw.SubmitShift(ctx, shift).Accepted() {
		a.dequeue(shift.ID)
		return
	}
	cache.Update(a.cache, cache.KeyPendingShifts, []string{}, func(ids []string) []string {
		for _, id := range ids {
			if id == shift.ID {
				return ids
			}
		}
		return append(ids, shift.ID)
	})
}

func (a *Accumulator) dequeue(id string) {
	cache.Update(a.cache, cache.KeyPendingShifts, []string{}, func(ids []string) []string {
		out := ids[:0]
		for _, pending := range ids {
			if pending != id {
				out = append(out, pending)
			}
		}
		return out
	})
}

// Pending lists shift ids whose latest state has not reached the remote.
func (a *Accumulator) Pending() []string {
	return cache.Read(a.cache, cache.KeyPendingShifts, []string{})
}

// Resubmit sends the current local state of a queued shift.
func (a *Accumulator) Resubmit(ctx context.Context, id string) gateway.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range a.Shifts() {
		if s.ID != id {
			continue
		}
		out := a.gw.SubmitShift(ctx, s)
		if out.Accepted() {
			a.dequeue(id)
		}
		return out
	}
	// Nothing left to send.
	a.dequeue(id)
	return gateway.Outcome{Status: gateway.Accepted}
}

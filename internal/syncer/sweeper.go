// Package syncer drains the device's queue of records the remote store has
// not accepted yet: unsynced sales, queued shift states, product edits and
// deletions. One goroutine does the draining, on a fixed interval and
// whenever connectivity comes back.
package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/juju/clock"

	"go-pos-sync/internal/catalog"
	"go-pos-sync/internal/gateway"
	"go-pos-sync/internal/pipeline"
	"go-pos-sync/internal/shift"
)

// Options tune the sweep schedule.
type Options struct {
	Interval       time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// Jitter is the backoff randomization factor, 0 for none.
	Jitter float64
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 2 * time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 5 * time.Minute
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
	return o
}

// Report summarises one sweep.
type Report struct {
	Attempted int  `json:"attempted"`
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
	Rejected  int  `json:"rejected"`
	Skipped   int  `json:"skipped"`
	Reachable bool `json:"reachable"`
}

// retryState is the backoff of one queued record.
type retryState struct {
	backoff *backoff.ExponentialBackOff
	next    time.Time
}

// Sweeper owns the retry schedule of every queued record.
type Sweeper struct {
	clock    clock.Clock
	gw       *gateway.Gateway
	pipeline *pipeline.Pipeline
	shifts   *shift.Accumulator
	catalog  *catalog.Catalog
	opts     Options

	mu     sync.Mutex
	states map[string]*retryState
	notify chan struct{}
}

func NewSweeper(clk clock.Clock, gw *gateway.Gateway, p *pipeline.Pipeline, shifts *shift.Accumulator, cat *catalog.Catalog, opts Options) *Sweeper {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Sweeper{
		clock:    clk,
		gw:       gw,
		pipeline: p,
		shifts:   shifts,
		catalog:  cat,
		opts:     opts.withDefaults(),
		states:   make(map[string]*retryState),
		notify:   make(chan struct{}, 1),
	}
}

// Notify asks for a sweep as soon as possible. It never blocks.
func (s *Sweeper) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Printf("🔁 [SYNC] sweeper running every %s", s.opts.Interval)
	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.opts.Interval):
		case <-s.notify:
		}
	}
}

func (s *Sweeper) due(key string, now time.Time) bool {
	st, ok := s.states[key]
	return !ok || !now.Before(st.next)
}

func (s *Sweeper) fail(key string, now time.Time) time.Duration {
	st, ok := s.states[key]
	if !ok {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.opts.BackoffInitial
		b.MaxInterval = s.opts.BackoffMax
		b.RandomizationFactor = s.opts.Jitter
		b.Reset()
		st = &retryState{backoff: b}
		s.states[key] = st
	}
	wait := st.backoff.NextBackOff()
	st.next = now.Add(wait)
	return wait
}

// NextAttempt reports when a queued record becomes due again; zero means now.
func (s *Sweeper) NextAttempt(key string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[key]; ok {
		return st.next
	}
	return time.Time{}
}

// SaleKey, ShiftKey, ProductKey and DeleteKey name queued records.
func SaleKey(id string) string    { return "sale:" + id }
func ShiftKey(id string) string   { return "shift:" + id }
func ProductKey(id string) string { return "product:" + id }
func DeleteKey(id string) string  { return "delete:" + id }

type job struct {
	key     string
	attempt func(context.Context) gateway.Outcome
	onOK    func()
}

// queue lists every queued record. Product changes go first so a restock
// can unblock a sale rejected for short stock within the same sweep.
func (s *Sweeper) queue() []job {
	var jobs []job
	for _, id := range s.catalog.PendingDeletes() {
		id := id
		jobs = append(jobs, job{key: DeleteKey(id), attempt: func(ctx context.Context) gateway.Outcome { return s.catalog.ResubmitDelete(ctx, id) }})
	}
	for _, id := range s.catalog.PendingEdits() {
		id := id
		jobs = append(jobs, job{key: ProductKey(id), attempt: func(ctx context.Context) gateway.Outcome { return s.catalog.ResubmitEdit(ctx, id) }})
	}
	for _, sale := range s.pipeline.Pending() {
		sale := sale
		jobs = append(jobs, job{
			key:     SaleKey(sale.ID),
			attempt: func(ctx context.Context) gateway.Outcome { return s.gw.SubmitSale(ctx, sale) },
			onOK:    func() { s.pipeline.MarkSynced(sale.ID) },
		})
	}
	for _, id := range s.shifts.Pending() {
		id := id
		jobs = append(jobs, job{key: ShiftKey(id), attempt: func(ctx context.Context) gateway.Outcome { return s.shifts.Resubmit(ctx, id) }})
	}
	return jobs
}

// Sweep makes one pass over the queue. Records still backing off are
// skipped; the pass stops early once the remote is found unreachable.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep Report
	now := s.clock.Now()
	jobs := s.queue()
	live := make(map[string]bool, len(jobs))
	unreachable := false

	for _, j := range jobs {
		live[j.key] = true
		if unreachable || !s.due(j.key, now) {
			rep.Skipped++
			continue
		}

		rep.Attempted++
		out := j.attempt(ctx)
		switch out.Status {
		case gateway.Accepted:
			if j.onOK != nil {
				j.onOK()
			}
			delete(s.states, j.key)
			rep.Synced++
			rep.Reachable = true
		case gateway.Rejected:
			wait := s.fail(j.key, now)
			rep.Rejected++
			rep.Reachable = true
			log.Printf("⏳ [SYNC] %s rejected (%s), next try in %s", j.key, out.Reason, wait)
		default:
			wait := s.fail(j.key, now)
			rep.Failed++
			if out.Unreachable {
				unreachable = true
			} else {
				rep.Reachable = true
			}
			log.Printf("⏳ [SYNC] %s failed, next try in %s", j.key, wait)
		}
	}

	// Records synced elsewhere (the pipeline's own attempt) drop their schedule.
	for key := range s.states {
		if !live[key] {
			delete(s.states, key)
		}
	}

	if rep.Attempted == 0 && !unreachable {
		rep.Reachable = s.gw.Online(ctx)
	}
	if rep.Reachable {
		s.refresh(ctx)
	}
	if rep.Attempted > 0 {
		log.Printf("🔁 [SYNC] sweep: attempted=%d synced=%d failed=%d rejected=%d skipped=%d",
			rep.Attempted, rep.Synced, rep.Failed, rep.Rejected, rep.Skipped)
	}
	return rep
}

// refresh re-reads the authoritative collections into the cache.
func (s *Sweeper) refresh(ctx context.Context) {
	s.gw.FetchProducts(ctx)
	s.gw.FetchSales(ctx)
	s.gw.FetchShifts(ctx)
	s.gw.FetchStockLogs(ctx)
}

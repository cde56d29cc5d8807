package syncer

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
)

// Prober reports whether the remote store answers.
type Prober interface {
	Online(ctx context.Context) bool
}

// Monitor probes connectivity and calls onReconnect on every
// offline to online transition.
type Monitor struct {
	clock       clock.Clock
	prober      Prober
	interval    time.Duration
	onReconnect func()
	online      atomic.Bool
}

func NewMonitor(clk clock.Clock, prober Prober, interval time.Duration, onReconnect func()) *Monitor {
	if clk == nil {
		clk = clock.WallClock
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{clock: clk, prober: prober, interval: interval, onReconnect: onReconnect}
}

// Online is the result of the latest probe.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Probe runs one check and reports the current state.
func (m *Monitor) Probe(ctx context.Context) bool {
	now := m.prober.Online(ctx)
	was := m.online.Swap(now)
	switch {
	case now && !was:
		log.Println("🟢 [NET] remote store reachable")
		if m.onReconnect != nil {
			m.onReconnect()
		}
	case !now && was:
		log.Println("🔴 [NET] remote store unreachable, working offline")
	}
	return now
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		m.Probe(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(m.interval):
		}
	}
}

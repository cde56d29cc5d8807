// Package gateway is the device's only path to the remote store. Submissions
// report an Outcome instead of an error; fetches fall back to the cache.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/models"
)

// Status classifies one submission attempt.
type Status int

const (
	// Accepted: the remote stored the record or already had it.
	Accepted Status = iota
	// Failed: no definitive answer (offline, timeout, server error). Retry later.
	Failed
	// Rejected: the remote refused the payload. Retrying unchanged may keep failing.
	Rejected
)

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "accepted":
		*s = Accepted
	case "failed":
		*s = Failed
	case "rejected":
		*s = Rejected
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Failed:
		return "failed"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Outcome is the result of one submission.
type Outcome struct {
	Status Status     `json:"status"`
	Reason string     `json:"reason,omitempty"`
	Items  []Shortage `json:"items,omitempty"`
	// Unreachable marks a failure where no HTTP answer came back at all.
	Unreachable bool `json:"-"`
}

func (o Outcome) Accepted() bool { return o.Status == Accepted }

func outcomeOf(err error) Outcome {
	if err == nil {
		return Outcome{Status: Accepted}
	}
	var rej *RejectedError
	if errors.As(err, &rej) {
		return Outcome{Status: Rejected, Reason: rej.Message, Items: rej.Items}
	}
	return Outcome{Status: Failed, Reason: err.Error(), Unreachable: errors.Is(err, ErrOffline)}
}

// PendingEdit is a product edit not yet accepted by the remote, kept under
// cache.KeyPendingProducts.
type PendingEdit struct {
	ProductID string `json:"productId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	EditID    string `json:"editId"`
}

// Gateway wraps a Remote with the local cache.
type Gateway struct {
	remote Remote
	cache  *cache.Cache

	mu         sync.Mutex
	reauth     func(ctx context.Context) error
	needsLogin atomic.Bool
}

func New(remote Remote, c *cache.Cache) *Gateway {
	if token := cache.Read(c, cache.KeyAuthToken, ""); token != "" {
		remote.SetToken(token)
	}
	return &Gateway{remote: remote, cache: c}
}

// Online reports whether the remote answers its health probe.
func (g *Gateway) Online(ctx context.Context) bool {
	return g.remote.Health(ctx) == nil
}

// Authenticate obtains a token for the operator and keeps it for later requests.
func (g *Gateway) Authenticate(ctx context.Context, userID, password string) error {
	token, err := g.remote.Login(ctx, userID, password)
	if err != nil {
		return err
	}
	g.remote.SetToken(token)
	cache.Write(g.cache, cache.KeyAuthToken, token)
	g.needsLogin.Store(false)
	return nil
}

// SetReauthenticator installs the callback that fetches a fresh token when
// the remote refuses the current one.
func (g *Gateway) SetReauthenticator(fn func(ctx context.Context) error) {
	g.mu.Lock()
	g.reauth = fn
	g.mu.Unlock()
}

// NeedsLogin reports that the remote refused the token and no new one could
// be obtained. Submissions keep failing until an operator logs in again.
func (g *Gateway) NeedsLogin() bool {
	return g.needsLogin.Load()
}

// authorized runs call, and after a 401 logs in again and retries it once.
func (g *Gateway) authorized(ctx context.Context, call func() error) error {
	err := call()
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}
	g.ClearToken()

	g.mu.Lock()
	reauth := g.reauth
	g.mu.Unlock()
	if reauth == nil {
		g.needsLogin.Store(true)
		return err
	}
	if rerr := reauth(ctx); rerr != nil {
		g.needsLogin.Store(true)
		log.Printf("🔑 [GATEWAY] token refused and login failed: %v", rerr)
		return err
	}
	if err = call(); errors.Is(err, ErrUnauthorized) {
		g.needsLogin.Store(true)
	}
	return err
}

// ClearToken forgets the stored token.
func (g *Gateway) ClearToken() {
	g.remote.SetToken("")
	cache.Write(g.cache, cache.KeyAuthToken, "")
}

func report(kind, id string, out Outcome) Outcome {
	switch out.Status {
	case Failed:
		log.Printf("⚠️ [GATEWAY] %s %s not synced: %s", kind, id, out.Reason)
	case Rejected:
		log.Printf("❌ [GATEWAY] %s %s rejected: %s", kind, id, out.Reason)
	}
	return out
}

func (g *Gateway) SubmitSale(ctx context.Context, sale models.Sale) Outcome {
	err := g.authorized(ctx, func() error {
		_, err := g.remote.PostSale(ctx, sale)
		return err
	})
	return report("sale", sale.ID, outcomeOf(err))
}

func (g *Gateway) SubmitProduct(ctx context.Context, payload ProductPayload) Outcome {
	err := g.authorized(ctx, func() error {
		_, err := g.remote.PostProduct(ctx, payload)
		return err
	})
	return report("product", payload.ID, outcomeOf(err))
}

func (g *Gateway) RemoveProduct(ctx context.Context, id string) Outcome {
	err := g.authorized(ctx, func() error { return g.remote.DeleteProduct(ctx, id) })
	return report("product delete", id, outcomeOf(err))
}

func (g *Gateway) SubmitShift(ctx context.Context, shift models.Shift) Outcome {
	err := g.authorized(ctx, func() error {
		_, err := g.remote.PostShift(ctx, shift)
		return err
	})
	return report("shift", shift.ID, outcomeOf(err))
}

func (g *Gateway) SubmitStockLog(ctx context.Context, entry models.StockLog) Outcome {
	err := g.authorized(ctx, func() error {
		_, err := g.remote.PostStockLog(ctx, entry)
		return err
	})
	return report("stock log", entry.ID, outcomeOf(err))
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// FetchProducts refreshes the product mirror. Local edits still queued for
// the remote win over the fetched copy, and queued deletions stay deleted.
func (g *Gateway) FetchProducts(ctx context.Context) []models.Product {
	var remote []models.Product
	err := g.authorized(ctx, func() (err error) {
		remote, err = g.remote.ListProducts(ctx)
		return err
	})
	if err != nil {
		log.Printf("⚠️ [GATEWAY] products fetch failed, serving cache: %v", err)
		return cache.Read(g.cache, cache.KeyProducts, []models.Product{})
	}

	pending := make(map[string]bool)
	for _, e := range cache.Read(g.cache, cache.KeyPendingProducts, []PendingEdit{}) {
		pending[e.ProductID] = true
	}
	deleted := toSet(cache.Read(g.cache, cache.KeyPendingDeletes, []string{}))
	return cache.Update(g.cache, cache.KeyProducts, []models.Product{}, func(local []models.Product) []models.Product {
		merged := make([]models.Product, 0, len(remote)+len(pending))
		seen := make(map[string]bool, len(remote))
		for _, p := range local {
			if pending[p.ID] && !deleted[p.ID] {
				merged = append(merged, p)
				seen[p.ID] = true
			}
		}
		for _, p := range remote {
			if seen[p.ID] || deleted[p.ID] {
				continue
			}
			merged = append(merged, p)
		}
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
		return merged
	})
}

// FetchSales refreshes the sale list, keeping local sales the remote has not
// accepted yet.
func (g *Gateway) FetchSales(ctx context.Context) []models.Sale {
	var remote []models.Sale
	err := g.authorized(ctx, func() (err error) {
		remote, err = g.remote.ListSales(ctx)
		return err
	})
	if err != nil {
		log.Printf("⚠️ [GATEWAY] sales fetch failed, serving cache: %v", err)
		return cache.Read(g.cache, cache.KeySales, []models.Sale{})
	}

	return cache.Update(g.cache, cache.KeySales, []models.Sale{}, func(local []models.Sale) []models.Sale {
		seen := make(map[string]bool, len(remote))
		merged := make([]models.Sale, 0, len(remote)+len(local))
		for _, s := range remote {
			s.Synced = true
			seen[s.ID] = true
			merged = append(merged, s)
		}
		for _, s := range local {
			if !seen[s.ID] && !s.Synced {
				merged = append(merged, s)
			}
		}
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt.After(merged[j].CreatedAt) })
		return merged
	})
}

// FetchShifts refreshes the shift list. A shift still queued for the remote
// keeps its local version.
func (g *Gateway) FetchShifts(ctx context.Context) []models.Shift {
	var remote []models.Shift
	err := g.authorized(ctx, func() (err error) {
		remote, err = g.remote.ListShifts(ctx)
		return err
	})
	if err != nil {
		log.Printf("⚠️ [GATEWAY] shifts fetch failed, serving cache: %v", err)
		return cache.Read(g.cache, cache.KeyShifts, []models.Shift{})
	}

	pending := toSet(cache.Read(g.cache, cache.KeyPendingShifts, []string{}))
	return cache.Update(g.cache, cache.KeyShifts, []models.Shift{}, func(local []models.Shift) []models.Shift {
		merged := make([]models.Shift, 0, len(remote)+len(pending))
		seen := make(map[string]bool)
		for _, s := range local {
			if pending[s.ID] {
				merged = append(merged, s)
				seen[s.ID] = true
			}
		}
		for _, s := range remote {
			if !seen[s.ID] {
				merged = append(merged, s)
			}
		}
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].StartTime.After(merged[j].StartTime) })
		return merged
	})
}

// FetchStockLogs refreshes the audit trail mirror.
func (g *Gateway) FetchStockLogs(ctx context.Context) []models.StockLog {
	var remote []models.StockLog
	err := g.authorized(ctx, func() (err error) {
		remote, err = g.remote.ListStockLogs(ctx)
		return err
	})
	if err != nil {
		log.Printf("⚠️ [GATEWAY] stock logs fetch failed, serving cache: %v", err)
		return cache.Read(g.cache, cache.KeyStockLogs, []models.StockLog{})
	}
	if remote == nil {
		remote = []models.StockLog{}
	}
	cache.Write(g.cache, cache.KeyStockLogs, remote)
	return remote
}

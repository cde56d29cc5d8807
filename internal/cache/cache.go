// Package cache is the device's durable key/value store. Reads and writes
// never fail from the caller's point of view: a missing, unreadable or
// corrupt value yields the supplied default, and write failures are logged.
package cache

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
)

// Keys used by the device agent.
const (
	KeyCurrentUser     = "currentUserId"
	KeyProducts        = "products"
	KeySales           = "sales"
	KeyShifts          = "shifts"
	KeyStockLogs       = "stockLogs"
	KeyPendingShifts   = "pendingShifts"
	KeyPendingProducts = "pendingProducts"
	KeyPendingDeletes  = "pendingDeletes"
	KeyAuthToken       = "authToken"
)

// Cache serialises access to a Store. Read-modify-write sequences go through
// Update so two writers cannot interleave on one key.
type Cache struct {
	mu    sync.Mutex
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

func read[T any](c *Cache, key string, def T) T {
	raw, err := c.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrMissing) {
			log.Printf("⚠️ [CACHE] read %s: %v", key, err)
		}
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Printf("⚠️ [CACHE] corrupt value under %s, using default: %v", key, err)
		return def
	}
	return v
}

func write[T any](c *Cache, key string, v T) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("❌ [CACHE] encode %s: %v", key, err)
		return false
	}
	if err := c.store.Put(key, raw); err != nil {
		log.Printf("❌ [CACHE] write %s: %v", key, err)
		return false
	}
	return true
}

// Read returns the value under key, or def.
func Read[T any](c *Cache, key string, def T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return read(c, key, def)
}

// Write stores v under key. It reports whether the write reached the store.
func Write[T any](c *Cache, key string, v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return write(c, key, v)
}

// Update applies fn to the current value (or def) and stores the result
// atomically with respect to other cache callers.
func Update[T any](c *Cache, key string, def T, fn func(T) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := fn(read(c, key, def))
	write(c, key, next)
	return next
}

// Package nonce arbitrates transaction nonces for account-model chains. Allocation always consults the provider's
// pending transaction count, which is the authoritative lower bound; a short-lived cache keeps allocations monotonic
// across requests that land before the provider has seen earlier submissions. Allocations for the same
// (chain, address) pair are serialized by a per-key lock so that no two concurrent callers can receive the same
// value.
package nonce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Errors returned by the arbiter and caches.
var (
	ErrNoFetcher = errors.New("no pending-count fetcher configured")
)

// Entry is one cached allocation position: the next nonce to hand out and when it was last backed by the provider.
type Entry struct {
	Next      uint64
	Refreshed time.Time
}

// Cache stores allocation entries keyed by "chain:address". Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
}

// PendingCountFunc fetches the authoritative pending transaction count for an address.
type PendingCountFunc func(ctx context.Context, chain, addr string) (uint64, error)

// Arbiter hands out strictly increasing nonces per (chain, address).
type Arbiter struct {
	cache Cache
	ttl   time.Duration
	fetch PendingCountFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an arbiter over the given cache. ttl bounds how long a cached position is trusted without
// re-validation against the provider.
func New(cache Cache, ttl time.Duration, fetch PendingCountFunc) *Arbiter {
	return &Arbiter{
		cache: cache,
		ttl:   ttl,
		fetch: fetch,
		locks: make(map[string]*sync.Mutex),
	}
}

// Key builds the cache key for a (chain, address) pair. Addresses are lowercased so mixed-case callers share one
// allocation sequence.
func Key(chain, addr string) string {
	return chain + ":" + strings.ToLower(addr)
}

// Allocate returns the next nonce for the address. The authoritative pending count is fetched unconditionally; a
// live cache entry only ever raises the result, never lowers it below the provider's count.
func (a *Arbiter) Allocate(ctx context.Context, chain, addr string) (uint64, error) {
	if a.fetch == nil {
		return 0, ErrNoFetcher
	}

	key := Key(chain, addr)

	lock := a.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	authoritative, err := a.fetch(ctx, chain, addr)
	if err != nil {
		return 0, err
	}

	n := authoritative

	if e, ok, cerr := a.cache.Get(ctx, key); cerr == nil && ok && time.Since(e.Refreshed) <= a.ttl {
		if e.Next > n {
			n = e.Next
		}
	}

	// a cache write failure does not void the allocation; the next caller just re-seeds from the provider
	_ = a.cache.Put(ctx, key, Entry{Next: n + 1, Refreshed: time.Now()})

	return n, nil
}

// Invalidate drops the cached position for the address. Must be called after any nonce-related submission failure
// so the next allocation re-seeds purely from the provider.
func (a *Arbiter) Invalidate(ctx context.Context, chain, addr string) error {
	key := Key(chain, addr)

	lock := a.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return a.cache.Delete(ctx, key)
}

func (a *Arbiter) keyLock(key string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}

	return l
}

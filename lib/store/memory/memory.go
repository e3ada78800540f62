// Package memory implements the store interface in process memory, for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tarancss/txd/lib/store"
)

// Memory keeps statuses in a map keyed by chain and hash.
type Memory struct {
	mu sync.RWMutex
	m  map[string]store.TxStatus
}

// New returns an empty in-memory store.
func New() *Memory {
	return &Memory{m: make(map[string]store.TxStatus)}
}

// CloseMemory satisfies the closing convention of the other backends.
func (s *Memory) CloseMemory() error {
	return nil
}

func key(chain, hash string) string {
	return chain + "/" + hash
}

// UpsertStatus stores the status, replacing any previous one for the same transaction.
func (s *Memory) UpsertStatus(_ context.Context, t store.TxStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[key(t.Chain, t.Hash)] = t

	return nil
}

// GetStatus returns the latest status for a transaction.
func (s *Memory) GetStatus(_ context.Context, chain, hash string) (store.TxStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.m[key(chain, hash)]
	if !ok {
		return store.TxStatus{}, store.ErrNotFound
	}

	return t, nil
}

// ListStatuses returns matching statuses newest first.
func (s *Memory) ListStatuses(_ context.Context, f store.Filter) ([]store.TxStatus, error) {
	s.mu.RLock()

	out := make([]store.TxStatus, 0, len(s.m))

	for _, t := range s.m {
		if f.Chain != "" && t.Chain != f.Chain {
			continue
		}

		if f.State != "" && t.State != f.State {
			continue
		}

		out = append(out, t)
	}

	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Observed.After(out[j].Observed) })

	limit := f.Limit
	if limit <= 0 || limit > store.DefaultListLimit {
		limit = store.DefaultListLimit
	}

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

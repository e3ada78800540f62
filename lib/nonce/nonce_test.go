package nonce

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestAllocateConcurrent(t *testing.T) {
	// the provider reports 7 pending transactions and never moves
	arb := New(NewMemCache(), 30*time.Second, func(_ context.Context, _, _ string) (uint64, error) {
		return 7, nil
	})

	const n = 50

	var wg sync.WaitGroup

	got := make([]uint64, n)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			v, err := arb.Allocate(context.Background(), "sepolia", "0xABCDEF")
			if err != nil {
				t.Errorf("allocate: %v", err)
			}

			got[i] = v
		}(i)
	}

	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })

	for i, v := range got {
		if v != 7+uint64(i) {
			t.Fatalf("expected contiguous nonces from 7, got %v", got)
		}
	}
}

func TestAllocateAuthoritativeWins(t *testing.T) {
	pending := uint64(3)

	arb := New(NewMemCache(), 30*time.Second, func(_ context.Context, _, _ string) (uint64, error) {
		return pending, nil
	})

	ctx := context.Background()

	if v, _ := arb.Allocate(ctx, "sepolia", "0xaa"); v != 3 {
		t.Fatalf("expected 3 got %d", v)
	}

	// cache says 4 next, provider still says 3: cache wins while fresh
	if v, _ := arb.Allocate(ctx, "sepolia", "0xaa"); v != 4 {
		t.Fatalf("expected 4 got %d", v)
	}

	// provider jumps ahead of the cache, its count is the lower bound
	pending = 20

	if v, _ := arb.Allocate(ctx, "sepolia", "0xaa"); v != 20 {
		t.Fatalf("expected 20 got %d", v)
	}
}

func TestAllocateStaleCache(t *testing.T) {
	pending := uint64(5)

	arb := New(NewMemCache(), 10*time.Millisecond, func(_ context.Context, _, _ string) (uint64, error) {
		return pending, nil
	})

	ctx := context.Background()

	if v, _ := arb.Allocate(ctx, "sepolia", "0xbb"); v != 5 {
		t.Fatalf("expected 5 got %d", v)
	}

	// after the TTL the cached position is not trusted anymore: the chain
	// confirmed everything and moved pending back down
	time.Sleep(20 * time.Millisecond)

	if v, _ := arb.Allocate(ctx, "sepolia", "0xbb"); v != 5 {
		t.Fatalf("expected re-seeded 5 got %d", v)
	}
}

func TestInvalidate(t *testing.T) {
	pending := uint64(2)

	arb := New(NewMemCache(), 30*time.Second, func(_ context.Context, _, _ string) (uint64, error) {
		return pending, nil
	})

	ctx := context.Background()

	if v, _ := arb.Allocate(ctx, "sepolia", "0xcc"); v != 2 {
		t.Fatalf("expected 2 got %d", v)
	}

	if err := arb.Invalidate(ctx, "sepolia", "0xcc"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	// cache is gone, allocation re-seeds from the provider
	if v, _ := arb.Allocate(ctx, "sepolia", "0xcc"); v != 2 {
		t.Fatalf("expected re-seeded 2 got %d", v)
	}
}

func TestAllocateFetchError(t *testing.T) {
	boom := errors.New("connection refused")

	arb := New(NewMemCache(), 30*time.Second, func(_ context.Context, _, _ string) (uint64, error) {
		return 0, boom
	})

	if _, err := arb.Allocate(context.Background(), "sepolia", "0xdd"); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestKeyCaseInsensitive(t *testing.T) {
	if Key("sepolia", "0xABc") != Key("sepolia", "0xabc") {
		t.Errorf("expected keys to match regardless of address case")
	}
}

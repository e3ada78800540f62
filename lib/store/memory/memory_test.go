package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tarancss/txd/lib/store"
)

func TestUpsertAndGet(t *testing.T) {
	m := New()
	ctx := context.Background()

	st := store.TxStatus{Hash: "0xabc", Chain: "sepolia", State: store.StatePending, Observed: time.Now()}
	if err := m.UpsertStatus(ctx, st); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	st.State = store.StateConfirmed
	st.Confirmations = 3

	if err := m.UpsertStatus(ctx, st); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := m.GetStatus(ctx, "sepolia", "0xabc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.State != store.StateConfirmed || got.Confirmations != 3 {
		t.Errorf("expected the later write, got %+v", got)
	}

	if _, err = m.GetStatus(ctx, "sepolia", "0xdef"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound got %v", err)
	}
}

func TestListLimitClamped(t *testing.T) {
	m := New()
	ctx := context.Background()

	for i := 0; i < store.DefaultListLimit+50; i++ {
		st := store.TxStatus{
			Hash:     fmt.Sprintf("0x%04x", i),
			Chain:    "sepolia",
			State:    store.StatePending,
			Observed: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := m.UpsertStatus(ctx, st); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	// a client asking for more than the cap still gets the cap
	out, err := m.ListStatuses(ctx, store.Filter{Limit: store.DefaultListLimit + 50})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(out) != store.DefaultListLimit {
		t.Fatalf("expected the listing clamped to %d, got %d", store.DefaultListLimit, len(out))
	}

	// newest first, so the highest timestamps survive the cut
	if out[0].Hash != fmt.Sprintf("0x%04x", store.DefaultListLimit+49) {
		t.Errorf("expected newest first, got %s", out[0].Hash)
	}

	// limits under the cap are honored as given
	out, _ = m.ListStatuses(ctx, store.Filter{Limit: 5})
	if len(out) != 5 {
		t.Errorf("expected 5 statuses, got %d", len(out))
	}
}

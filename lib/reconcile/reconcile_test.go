package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/tarancss/txd/lib/store"
	"github.com/tarancss/txd/lib/store/memory"
)

func testReconciler() (*Reconciler, store.DB) {
	db := memory.New()

	r := New(db, nil, []Source{
		{Provider: ProviderChainhook, Chain: "sepolia"},
		{Provider: ProviderGridlog, Chain: "shasta"},
		{Provider: ProviderCoinpipe, Chain: "btctest"},
		{Provider: ProviderMirrornode, Chain: "sepolia"},
	})

	return r, db
}

func TestIngestChainhook(t *testing.T) {
	r, db := testReconciler()

	body := []byte(`{
		"type": "MINED_TRANSACTION",
		"event": {
			"transaction": {"hash": "0xabc", "from": "0xaa", "to": "0xbb", "value": "1000"},
			"blockNumber": 123, "confirmations": 4
		},
		"createdAt": "2026-08-01T10:00:00Z"
	}`)

	if err := r.Ingest(context.Background(), ProviderChainhook, body); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	st, err := db.GetStatus(context.Background(), "sepolia", "0xabc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if st.State != store.StateConfirmed || st.Confirmations != 4 || st.Block != 123 {
		t.Errorf("unexpected status %+v", st)
	}

	if st.From != "0xaa" || st.To != "0xbb" || st.Amount != "1000" {
		t.Errorf("unexpected transfer fields %+v", st)
	}
}

func TestIngestLastWriterWins(t *testing.T) {
	r, db := testReconciler()
	ctx := context.Background()

	mined := []byte(`{"type":"MINED_TRANSACTION","event":{"transaction":{"hash":"0xabc"},"confirmations":2}}`)
	dropped := []byte(`{"type":"DROPPED_TRANSACTION","event":{"transaction":{"hash":"0xabc"}}}`)

	// a mined report followed by a drop (reorg): the later delivery wins
	if err := r.Ingest(ctx, ProviderChainhook, mined); err != nil {
		t.Fatalf("ingest mined: %v", err)
	}

	if err := r.Ingest(ctx, ProviderChainhook, dropped); err != nil {
		t.Fatalf("ingest dropped: %v", err)
	}

	st, _ := db.GetStatus(ctx, "sepolia", "0xabc")
	if st.State != store.StateFailed || st.Confirmations != 0 {
		t.Errorf("expected failed with zero confirmations, got %+v", st)
	}

	// redelivery of the same event converges on the same row
	if err := r.Ingest(ctx, ProviderChainhook, dropped); err != nil {
		t.Fatalf("redeliver: %v", err)
	}

	all, _ := db.ListStatuses(ctx, store.Filter{})
	if len(all) != 1 {
		t.Errorf("expected a single status row, got %d", len(all))
	}
}

func TestIngestGridlog(t *testing.T) {
	r, db := testReconciler()
	ctx := context.Background()

	cases := []struct {
		name, id, body, state string
		conf                  uint64
	}{
		{"success", "t1", `{"transactionId":"t1","contractRet":"SUCCESS","timestamp":1722500000000}`, store.StateConfirmed, 1},
		{"revert", "t2", `{"transactionId":"t2","contractRet":"REVERT","timestamp":1722500000000}`, store.StateFailed, 0},
		{"dropped", "t3", `{"transactionId":"t3","dropped":true}`, store.StateFailed, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := r.Ingest(ctx, ProviderGridlog, []byte(c.body)); err != nil {
				t.Fatalf("ingest: %v", err)
			}

			st, err := db.GetStatus(ctx, "shasta", c.id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			if st.State != c.state || st.Confirmations != c.conf {
				t.Errorf("expected %s/%d got %+v", c.state, c.conf, st)
			}
		})
	}
}

func TestIngestCoinpipe(t *testing.T) {
	r, db := testReconciler()
	ctx := context.Background()

	body := []byte(`{
		"event": "confirmed-tx", "hash": "f00d", "confirmations": 6,
		"block_height": 840000, "total": 150000, "confirmed": "2026-08-01T10:00:00Z"
	}`)

	if err := r.Ingest(ctx, ProviderCoinpipe, body); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	st, _ := db.GetStatus(ctx, "btctest", "f00d")
	if st.State != store.StateConfirmed || st.Confirmations != 6 || st.Block != 840000 {
		t.Errorf("unexpected status %+v", st)
	}

	// a double spend downgrades the same hash to failed
	if err := r.Ingest(ctx, ProviderCoinpipe, []byte(`{"event":"double-spend-tx","hash":"f00d"}`)); err != nil {
		t.Fatalf("ingest double-spend: %v", err)
	}

	st, _ = db.GetStatus(ctx, "btctest", "f00d")
	if st.State != store.StateFailed {
		t.Errorf("expected failed after double spend, got %+v", st)
	}
}

func TestIngestMirrornode(t *testing.T) {
	r, db := testReconciler()

	body := []byte(`{
		"notification": {
			"txId": "0xdef", "state": "finalized",
			"details": {"sender": "0xaa", "recipient": "0xbb", "amount": "42"},
			"confirmations": 12, "block": 999, "timestamp": 1722500000
		}
	}`)

	if err := r.Ingest(context.Background(), ProviderMirrornode, body); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	st, _ := db.GetStatus(context.Background(), "sepolia", "0xdef")
	if st.State != store.StateConfirmed || st.Confirmations != 12 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestIngestUnknownEventType(t *testing.T) {
	r, db := testReconciler()

	// an event type carrying no status information is dropped, not an error
	body := []byte(`{"type":"ADDRESS_ACTIVITY","event":{"transaction":{"hash":"0xabc"}}}`)

	if err := r.Ingest(context.Background(), ProviderChainhook, body); err != nil {
		t.Fatalf("expected unknown type to be dropped silently: %v", err)
	}

	if _, err := db.GetStatus(context.Background(), "sepolia", "0xabc"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected nothing stored, got %v", err)
	}
}

func TestIngestMalformed(t *testing.T) {
	r, _ := testReconciler()

	if err := r.Ingest(context.Background(), ProviderChainhook, []byte(`{not json`)); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload got %v", err)
	}

	// a parseable body without a transaction hash is also malformed
	if err := r.Ingest(context.Background(), ProviderChainhook, []byte(`{"type":"MINED_TRANSACTION"}`)); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload for missing hash, got %v", err)
	}
}

func TestIngestUnknownProvider(t *testing.T) {
	r, _ := testReconciler()

	if err := r.Ingest(context.Background(), "nobody", []byte(`{}`)); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider got %v", err)
	}

	if r.Known("nobody") {
		t.Errorf("did not expect provider to be known")
	}

	if !r.Known(ProviderChainhook) {
		t.Errorf("expected configured provider to be known")
	}
}

func TestListFilter(t *testing.T) {
	r, _ := testReconciler()
	ctx := context.Background()

	_ = r.Ingest(ctx, ProviderChainhook, []byte(`{"type":"MINED_TRANSACTION","event":{"transaction":{"hash":"0x1"}}}`))
	_ = r.Ingest(ctx, ProviderChainhook, []byte(`{"type":"DROPPED_TRANSACTION","event":{"transaction":{"hash":"0x2"}}}`))
	_ = r.Ingest(ctx, ProviderCoinpipe, []byte(`{"event":"confirmed-tx","hash":"f00d"}`))

	all, err := r.List(ctx, store.Filter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 statuses, got %d err:%v", len(all), err)
	}

	sepolia, _ := r.List(ctx, store.Filter{Chain: "sepolia"})
	if len(sepolia) != 2 {
		t.Errorf("expected 2 sepolia statuses, got %d", len(sepolia))
	}

	failed, _ := r.List(ctx, store.Filter{State: store.StateFailed})
	if len(failed) != 1 || failed[0].Hash != "0x2" {
		t.Errorf("expected the dropped tx, got %+v", failed)
	}

	limited, _ := r.List(ctx, store.Filter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected the limit to apply, got %d", len(limited))
	}
}

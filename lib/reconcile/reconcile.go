// Package reconcile turns provider webhook deliveries into stored transaction statuses. Providers redeliver and
// reorder: ingestion is idempotent per transaction hash and the latest delivery always wins.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/tarancss/txd/lib/msg"
	"github.com/tarancss/txd/lib/store"
)

var (
	ErrUnknownProvider = errors.New("webhook provider not configured")
	ErrBadPayload      = errors.New("malformed webhook payload")
)

// Source binds a configured webhook provider to the chain its events belong to.
type Source struct {
	Provider string
	Chain    string
}

// Reconciler ingests webhook deliveries, persists the resulting statuses and fans them out to the broker.
type Reconciler struct {
	db      store.DB
	mb      msg.MsgBroker
	sources map[string]Source
}

// New returns a reconciler for the configured webhook sources. mb may be nil when no broker is wired.
func New(db store.DB, mb msg.MsgBroker, sources []Source) *Reconciler {
	m := make(map[string]Source, len(sources))
	for _, s := range sources {
		m[s.Provider] = s
	}

	return &Reconciler{db: db, mb: mb, sources: m}
}

// Known reports whether a provider tag is configured.
func (r *Reconciler) Known(provider string) bool {
	_, ok := r.sources[provider]

	return ok
}

// Ingest parses one webhook delivery and upserts the status it describes. Unknown event types are logged and
// dropped without error; a malformed body is an error so the provider sees a failure and redelivers.
func (r *Reconciler) Ingest(ctx context.Context, provider string, body []byte) error {
	src, ok := r.sources[provider]
	if !ok {
		return ErrUnknownProvider
	}

	st, ok, err := normalize(provider, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if !ok {
		log.Printf("[%s] dropping webhook event of unhandled type", provider)

		return nil
	}

	if st.Chain == "" {
		st.Chain = src.Chain
	}

	if err = r.db.UpsertStatus(ctx, st); err != nil {
		return err
	}

	if r.mb != nil {
		if err = r.mb.SendStatus(st.Chain, msg.FromStatus(st)); err != nil {
			log.Printf("[%s] could not publish status event for %s:%v", st.Chain, st.Hash, err)
		}
	}

	return nil
}

// Get returns the stored status of one transaction.
func (r *Reconciler) Get(ctx context.Context, chain, hash string) (store.TxStatus, error) {
	return r.db.GetStatus(ctx, chain, hash)
}

// List returns stored statuses matching the filter, newest first.
func (r *Reconciler) List(ctx context.Context, f store.Filter) ([]store.TxStatus, error) {
	return r.db.ListStatuses(ctx, f)
}

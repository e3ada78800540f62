// Package store defines the interface for database implementations holding observed transaction statuses.
package store

import (
	"context"
	"errors"
	"time"
)

// Transaction lifecycle states as reported by webhook providers.
const (
	StatePending   = "PENDING"
	StateConfirmed = "CONFIRMED"
	StateFailed    = "FAILED"
)

// TxStatus is the latest observed status of one transaction. Upserts are keyed by (Chain, Hash) and the latest
// write wins: providers redeliver and reorder events, so no state transition is ever rejected.
type TxStatus struct {
	Hash          string    `json:"hash" bson:"hash"`
	Chain         string    `json:"chain" bson:"chain"`
	State         string    `json:"state" bson:"state"`
	Confirmations uint64    `json:"confirmations" bson:"confirmations"`
	From          string    `json:"from,omitempty" bson:"from,omitempty"`
	To            string    `json:"to,omitempty" bson:"to,omitempty"`
	Amount        string    `json:"amount,omitempty" bson:"amount,omitempty"`
	Block         uint64    `json:"block,omitempty" bson:"block,omitempty"`
	Observed      time.Time `json:"observed" bson:"observed"`
}

// Filter narrows a status listing. Zero values mean no constraint; Limit is clamped to DefaultListLimit.
type Filter struct {
	Chain string
	State string
	Limit int
}

// DefaultListLimit caps listings. Requests above it are clamped, not honored.
const DefaultListLimit = 100

// DB defines required methods for the reconciler and the REST surface.
type DB interface {
	UpsertStatus(ctx context.Context, s TxStatus) error
	GetStatus(ctx context.Context, chain, hash string) (TxStatus, error)
	ListStatuses(ctx context.Context, f Filter) ([]TxStatus, error)
}

// Errors returned
var ErrNotFound = errors.New("transaction status was not found in store")

// Package msg defines the interface for different message brokers.
package msg

import (
	"sync"

	"github.com/tarancss/txd/lib/store"
)

// StatusEvent is the message published whenever a transaction status changes: queued transfers reaching a
// terminal state and every reconciled webhook ingest.
type StatusEvent struct {
	Chain         string `json:"chain"`
	Hash          string `json:"hash"`
	State         string `json:"state"`
	Confirmations uint64 `json:"confirmations"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	Amount        string `json:"amount,omitempty"`
}

// FromStatus builds the broker event for a stored status.
func FromStatus(t store.TxStatus) StatusEvent {
	return StatusEvent{
		Chain:         t.Chain,
		Hash:          t.Hash,
		State:         t.State,
		Confirmations: t.Confirmations,
		From:          t.From,
		To:            t.To,
		Amount:        t.Amount,
	}
}

type MsgBroker interface {
	Setup(interface{}) error
	Close() error

	SendStatus(chain string, e StatusEvent) error
	GetStatuses(chain string, mut *sync.Mutex) (<-chan StatusEvent, <-chan error, error)
}

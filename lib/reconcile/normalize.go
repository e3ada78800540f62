package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tarancss/txd/lib/store"
)

// Provider tags with a known payload schema.
const (
	ProviderChainhook  = "chainhook"
	ProviderGridlog    = "gridlog"
	ProviderCoinpipe   = "coinpipe"
	ProviderMirrornode = "mirrornode"
)

// normalize maps one provider payload to a status. The second return is false when the event type carries no
// status information and should be dropped.
func normalize(provider string, body []byte) (store.TxStatus, bool, error) {
	switch provider {
	case ProviderChainhook:
		return fromChainhook(body)
	case ProviderGridlog:
		return fromGridlog(body)
	case ProviderCoinpipe:
		return fromCoinpipe(body)
	case ProviderMirrornode:
		return fromMirrornode(body)
	}

	return store.TxStatus{}, false, fmt.Errorf("no schema for provider %q", provider)
}

type chainhookEvent struct {
	Type  string `json:"type"`
	Event struct {
		Transaction struct {
			Hash  string `json:"hash"`
			From  string `json:"from"`
			To    string `json:"to"`
			Value string `json:"value"`
		} `json:"transaction"`
		BlockNumber   uint64 `json:"blockNumber"`
		Confirmations uint64 `json:"confirmations"`
	} `json:"event"`
	CreatedAt time.Time `json:"createdAt"`
}

func fromChainhook(body []byte) (store.TxStatus, bool, error) {
	var e chainhookEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return store.TxStatus{}, false, err
	}

	if e.Event.Transaction.Hash == "" {
		return store.TxStatus{}, false, fmt.Errorf("event without transaction hash")
	}

	st := store.TxStatus{
		Hash:          e.Event.Transaction.Hash,
		From:          e.Event.Transaction.From,
		To:            e.Event.Transaction.To,
		Amount:        e.Event.Transaction.Value,
		Block:         e.Event.BlockNumber,
		Confirmations: e.Event.Confirmations,
		Observed:      e.CreatedAt,
	}

	switch e.Type {
	case "MINED_TRANSACTION":
		st.State = store.StateConfirmed
	case "DROPPED_TRANSACTION":
		st.State = store.StateFailed
		st.Confirmations = 0
	default:
		return store.TxStatus{}, false, nil
	}

	if st.Observed.IsZero() {
		st.Observed = time.Now()
	}

	return st, true, nil
}

type gridlogEvent struct {
	TransactionID string `json:"transactionId"`
	ContractRet   string `json:"contractRet"`
	Dropped       bool   `json:"dropped"`
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        string `json:"amount"`
	BlockNumber   uint64 `json:"blockNumber"`
	Timestamp     int64  `json:"timestamp"` // epoch milliseconds
}

func fromGridlog(body []byte) (store.TxStatus, bool, error) {
	var e gridlogEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return store.TxStatus{}, false, err
	}

	if e.TransactionID == "" {
		return store.TxStatus{}, false, fmt.Errorf("event without transactionId")
	}

	st := store.TxStatus{
		Hash:     e.TransactionID,
		From:     e.From,
		To:       e.To,
		Amount:   e.Amount,
		Block:    e.BlockNumber,
		Observed: time.UnixMilli(e.Timestamp),
	}

	switch {
	case e.Dropped:
		st.State = store.StateFailed
	case e.ContractRet == "SUCCESS":
		st.State = store.StateConfirmed
		st.Confirmations = 1
	case e.ContractRet != "":
		st.State = store.StateFailed
	default:
		return store.TxStatus{}, false, nil
	}

	if e.Timestamp == 0 {
		st.Observed = time.Now()
	}

	return st, true, nil
}

type coinpipeEvent struct {
	Event         string    `json:"event"`
	Hash          string    `json:"hash"`
	Confirmations uint64    `json:"confirmations"`
	BlockHeight   int64     `json:"block_height"`
	Total         int64     `json:"total"`
	Confirmed     time.Time `json:"confirmed"`
}

func fromCoinpipe(body []byte) (store.TxStatus, bool, error) {
	var e coinpipeEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return store.TxStatus{}, false, err
	}

	if e.Hash == "" {
		return store.TxStatus{}, false, fmt.Errorf("event without hash")
	}

	st := store.TxStatus{
		Hash:          e.Hash,
		Confirmations: e.Confirmations,
		Amount:        fmt.Sprintf("%d", e.Total),
		Observed:      e.Confirmed,
	}

	if e.BlockHeight > 0 {
		st.Block = uint64(e.BlockHeight)
	}

	switch e.Event {
	case "confirmed-tx":
		st.State = store.StateConfirmed
	case "unconfirmed-tx":
		st.State = store.StatePending
	case "double-spend-tx":
		st.State = store.StateFailed
		st.Confirmations = 0
	default:
		return store.TxStatus{}, false, nil
	}

	if st.Observed.IsZero() {
		st.Observed = time.Now()
	}

	return st, true, nil
}

type mirrornodeEvent struct {
	Notification struct {
		TxID    string `json:"txId"`
		State   string `json:"state"`
		Details struct {
			Sender    string `json:"sender"`
			Recipient string `json:"recipient"`
			Amount    string `json:"amount"`
		} `json:"details"`
		Confirmations uint64 `json:"confirmations"`
		Block         uint64 `json:"block"`
		Timestamp     int64  `json:"timestamp"` // epoch seconds
	} `json:"notification"`
}

func fromMirrornode(body []byte) (store.TxStatus, bool, error) {
	var e mirrornodeEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return store.TxStatus{}, false, err
	}

	n := e.Notification
	if n.TxID == "" {
		return store.TxStatus{}, false, fmt.Errorf("notification without txId")
	}

	st := store.TxStatus{
		Hash:          n.TxID,
		From:          n.Details.Sender,
		To:            n.Details.Recipient,
		Amount:        n.Details.Amount,
		Block:         n.Block,
		Confirmations: n.Confirmations,
		Observed:      time.Unix(n.Timestamp, 0),
	}

	switch strings.ToUpper(n.State) {
	case "PENDING":
		st.State = store.StatePending
	case "CONFIRMED", "FINALIZED":
		st.State = store.StateConfirmed
	case "FAILED", "DROPPED":
		st.State = store.StateFailed
	default:
		return store.TxStatus{}, false, nil
	}

	if n.Timestamp == 0 {
		st.Observed = time.Now()
	}

	return st, true, nil
}

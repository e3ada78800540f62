package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

const utxoTimeout = 10 * time.Second

// ErrNoHashReturned indicates the provider broadcast reply carried no transaction hash.
var ErrNoHashReturned = errors.New("provider returned no transaction hash")

// BuiltTx is a provider-constructed, provider-signed UTXO transaction ready to broadcast. Coin selection and fee
// calculation happened on the provider side; Fee reports what it decided to spend.
type BuiltTx struct {
	Raw  string `json:"rawtx"`
	Hash string `json:"hash"`
	Fee  int64  `json:"fees"`
}

// UTXOConn is a connection to a UTXO chain via a provider HTTP API that owns transaction construction, coin
// selection and fee calculation.
type UTXOConn struct {
	base string
	hc   *http.Client
}

// NewUTXOConn returns a connection to a UTXO chain provider.
func NewUTXOConn(node string) *UTXOConn {
	return &UTXOConn{
		base: strings.TrimRight(node, "/"),
		hc:   &http.Client{Timeout: utxoTimeout},
	}
}

// Node returns the endpoint url.
func (u *UTXOConn) Node() string { return u.base }

// Close releases the connection.
func (u *UTXOConn) Close() { u.hc.CloseIdleConnections() }

// Height returns the current block height. The provider reports it on its chain root document.
func (u *UTXOConn) Height(ctx context.Context) (uint64, error) {
	var res struct {
		Height uint64 `json:"height"`
	}

	if err := u.get(ctx, "", &res); err != nil {
		return 0, err
	}

	return res.Height, nil
}

// Balance returns the confirmed balance of an address in base units.
func (u *UTXOConn) Balance(ctx context.Context, addr string) (*big.Int, error) {
	var res struct {
		Balance int64 `json:"balance"`
	}

	if err := u.get(ctx, "/addrs/"+addr+"/balance", &res); err != nil {
		return nil, err
	}

	return big.NewInt(res.Balance), nil
}

// FeeRate returns the provider's medium priority fee rate in base units per kilobyte.
func (u *UTXOConn) FeeRate(ctx context.Context) (int64, error) {
	var res struct {
		Medium int64 `json:"medium_fee_per_kb"`
	}

	if err := u.get(ctx, "", &res); err != nil {
		return 0, err
	}

	return res.Medium, nil
}

// Build asks the provider to construct and sign a transfer. The key travels to the provider for signing; this is
// the delegation the UTXO family relies on, the dispatcher never assembles inputs itself.
func (u *UTXOConn) Build(ctx context.Context, from, to string, amount int64, key string) (BuiltTx, error) {
	var tx BuiltTx

	req := map[string]interface{}{"from": from, "to": to, "value": amount, "private": key}

	err := u.post(ctx, "/txs/build", req, &tx)

	return tx, err
}

// Push broadcasts a built transaction and returns the provider-assigned hash.
func (u *UTXOConn) Push(ctx context.Context, raw string) (string, error) {
	var res struct {
		Hash string `json:"hash"`
	}

	if err := u.post(ctx, "/txs/push", map[string]interface{}{"rawtx": raw}, &res); err != nil {
		return "", err
	}

	if res.Hash == "" {
		return "", ErrNoHashReturned
	}

	return res.Hash, nil
}

func (u *UTXOConn) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.base+path, nil)
	if err != nil {
		return err
	}

	return u.do(req, out)
}

func (u *UTXOConn) post(ctx context.Context, path string, body, out interface{}) error {
	pl, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.base+path, bytes.NewReader(pl))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	return u.do(req, out)
}

func (u *UTXOConn) do(req *http.Request, out interface{}) error {
	resp, err := u.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// provider errors arrive as {"error": "..."} with a non-2xx status
	var apiErr struct {
		Error string `json:"error"`
	}

	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
		return errors.New(apiErr.Error)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("provider status %d: %s", resp.StatusCode, raw)
	}

	return json.Unmarshal(raw, out)
}

// RegisterHook registers a callback url for transaction events on an address and returns the provider's webhook id.
func (u *UTXOConn) RegisterHook(ctx context.Context, addr, callback string) (string, error) {
	var res struct {
		ID string `json:"id"`
	}

	req := map[string]interface{}{"event": "tx-confirmation", "address": addr, "url": callback}

	if err := u.post(ctx, "/hooks", req, &res); err != nil {
		return "", err
	}

	return res.ID, nil
}

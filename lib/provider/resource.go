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

// Resource-model provider HTTP endpoints (TronGrid style full node API).
const (
	resNowBlock    = "/wallet/getnowblock"
	resGetAccount  = "/wallet/getaccount"
	resCreateTx    = "/wallet/createtransaction"
	resTriggerCall = "/wallet/triggersmartcontract"
	resConstCall   = "/wallet/triggerconstantcontract"
	resBroadcast   = "/wallet/broadcasttransaction"
)

const resourceTimeout = 10 * time.Second

// Errors returned by resource-model provider calls.
var (
	ErrEmptyResponse = errors.New("provider returned an empty response")
	ErrTxNotCreated  = errors.New("provider did not return a transaction")
)

// BroadcastError is the structured rejection a resource chain provider returns on broadcast.
type BroadcastError struct {
	Code    string
	Message string
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast rejected (%s): %s", e.Code, e.Message)
}

// ResourceConn is a connection to a resource-model chain over its HTTP API. Addresses are passed in hex form
// (0x41 prefixed), which the API accepts when visible is false.
type ResourceConn struct {
	base string
	hc   *http.Client
}

// NewResourceConn returns a connection to a resource chain node.
func NewResourceConn(node string) *ResourceConn {
	return &ResourceConn{
		base: strings.TrimRight(node, "/"),
		hc:   &http.Client{Timeout: resourceTimeout},
	}
}

// Node returns the endpoint url.
func (r *ResourceConn) Node() string { return r.base }

// Close releases the connection.
func (r *ResourceConn) Close() { r.hc.CloseIdleConnections() }

// Height returns the current block number.
func (r *ResourceConn) Height(ctx context.Context) (uint64, error) {
	var res struct {
		BlockHeader struct {
			RawData struct {
				Number uint64 `json:"number"`
			} `json:"raw_data"`
		} `json:"block_header"`
	}

	if err := r.post(ctx, resNowBlock, map[string]interface{}{}, &res); err != nil {
		return 0, err
	}

	if res.BlockHeader.RawData.Number == 0 {
		return 0, ErrEmptyResponse
	}

	return res.BlockHeader.RawData.Number, nil
}

// Balance returns the native balance of an address in base units. Unknown accounts hold zero.
func (r *ResourceConn) Balance(ctx context.Context, addr string) (*big.Int, error) {
	var res struct {
		Balance int64 `json:"balance"`
	}

	if err := r.post(ctx, resGetAccount, map[string]interface{}{"address": addr}, &res); err != nil {
		return nil, err
	}

	return big.NewInt(res.Balance), nil
}

// TokenBalance returns the token balance of an address via a constant contract call.
func (r *ResourceConn) TokenBalance(ctx context.Context, contract, owner string) (*big.Int, error) {
	var res struct {
		ConstantResult []string `json:"constant_result"`
	}

	req := map[string]interface{}{
		"owner_address":     owner,
		"contract_address":  contract,
		"function_selector": "balanceOf(address)",
		"parameter":         pad32(strings.TrimPrefix(owner, "41")),
	}

	if err := r.post(ctx, resConstCall, req, &res); err != nil {
		return nil, err
	}

	if len(res.ConstantResult) == 0 {
		return nil, ErrEmptyResponse
	}

	v, ok := new(big.Int).SetString(res.ConstantResult[0], 16)
	if !ok {
		return nil, ErrEmptyResponse
	}

	return v, nil
}

// CreateTransfer asks the provider to assemble an unsigned native transfer. The whole transaction object is kept
// opaque so it can be signed and broadcast unchanged.
func (r *ResourceConn) CreateTransfer(ctx context.Context, from, to string, amount int64) (map[string]interface{}, error) {
	tx := map[string]interface{}{}

	req := map[string]interface{}{"owner_address": from, "to_address": to, "amount": amount}
	if err := r.post(ctx, resCreateTx, req, &tx); err != nil {
		return nil, err
	}

	if apiErr, ok := tx["Error"].(string); ok {
		return nil, errors.New(apiErr)
	}

	if _, ok := tx["txID"].(string); !ok {
		return nil, ErrTxNotCreated
	}

	return tx, nil
}

// CreateTokenTransfer asks the provider to assemble an unsigned token transfer with the given fee limit.
func (r *ResourceConn) CreateTokenTransfer(
	ctx context.Context, from, contract, to string, amount *big.Int, feeLimit int64,
) (map[string]interface{}, error) {
	var res struct {
		Result struct {
			Result  bool   `json:"result"`
			Message string `json:"message"`
		} `json:"result"`
		Transaction map[string]interface{} `json:"transaction"`
	}

	req := map[string]interface{}{
		"owner_address":     from,
		"contract_address":  contract,
		"function_selector": "transfer(address,uint256)",
		"parameter":         pad32(strings.TrimPrefix(to, "41")) + pad32(amount.Text(16)),
		"fee_limit":         feeLimit,
		"call_value":        0,
	}

	if err := r.post(ctx, resTriggerCall, req, &res); err != nil {
		return nil, err
	}

	if !res.Result.Result || res.Transaction == nil {
		if res.Result.Message != "" {
			return nil, errors.New(res.Result.Message)
		}

		return nil, ErrTxNotCreated
	}

	return res.Transaction, nil
}

// Broadcast submits a signed transaction object. The provider either accepts it or answers with a code and message
// which are surfaced as a BroadcastError for classification.
func (r *ResourceConn) Broadcast(ctx context.Context, tx map[string]interface{}) error {
	var res struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	if err := r.post(ctx, resBroadcast, tx, &res); err != nil {
		return err
	}

	if !res.Result {
		return &BroadcastError{Code: res.Code, Message: res.Message}
	}

	return nil
}

func (r *ResourceConn) post(ctx context.Context, path string, body, out interface{}) error {
	pl, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+path, bytes.NewReader(pl))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := r.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider status %d: %s", resp.StatusCode, raw)
	}

	return json.Unmarshal(raw, out)
}

// pad32 left-pads a hex string to a 32 byte word.
func pad32(h string) string {
	h = strings.TrimPrefix(h, "0x")
	if len(h) >= 64 {
		return h
	}

	return strings.Repeat("0", 64-len(h)) + h
}

package provider

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ERC20 method selectors (keccak-256 of the function signature, first 4 bytes).
const (
	ERC20balanceOf = "70a08231" // balanceOf(address)
	ERC20transfer  = "a9059cbb" // transfer(address,uint256)
)

// ErrNoBaseFee indicates the chain head carries no base fee (pre fee-market chain).
var ErrNoBaseFee = errors.New("chain head has no base fee")

// AccountConn is a connection to an account-model (nonce ordered) chain via its JSON-RPC endpoint.
type AccountConn struct {
	c    *ethclient.Client
	node string
}

// DialAccount connects to an account-model chain node.
func DialAccount(node string) (*AccountConn, error) {
	c, err := ethclient.Dial(node)
	if err != nil {
		return nil, err
	}

	return &AccountConn{c: c, node: node}, nil
}

// Node returns the endpoint url.
func (a *AccountConn) Node() string { return a.node }

// Close releases the connection.
func (a *AccountConn) Close() { a.c.Close() }

// Height returns the current block number.
func (a *AccountConn) Height(ctx context.Context) (uint64, error) {
	return a.c.BlockNumber(ctx)
}

// PendingCount returns the pending transaction count for an address. This is the authoritative lower bound for
// nonce allocation.
func (a *AccountConn) PendingCount(ctx context.Context, addr string) (uint64, error) {
	return a.c.PendingNonceAt(ctx, common.HexToAddress(addr))
}

// Balance returns the native currency balance of an address in base units.
func (a *AccountConn) Balance(ctx context.Context, addr string) (*big.Int, error) {
	return a.c.BalanceAt(ctx, common.HexToAddress(addr), nil)
}

// TokenBalance returns the ERC20 token balance of an address in base units.
func (a *AccountConn) TokenBalance(ctx context.Context, token, addr string) (*big.Int, error) {
	contract := common.HexToAddress(token)

	data := append(common.FromHex(ERC20balanceOf), common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32)...)

	out, err := a.c.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(out), nil
}

// EstimateGas asks the node for a gas estimate of the described call.
func (a *AccountConn) EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error) {
	toAddr := common.HexToAddress(to)

	return a.c.EstimateGas(ctx, ethereum.CallMsg{
		From:  common.HexToAddress(from),
		To:    &toAddr,
		Value: value,
		Data:  data,
	})
}

// SuggestTip returns the node's suggested priority fee.
func (a *AccountConn) SuggestTip(ctx context.Context) (*big.Int, error) {
	return a.c.SuggestGasTipCap(ctx)
}

// BaseFee returns the base fee of the chain head.
func (a *AccountConn) BaseFee(ctx context.Context) (*big.Int, error) {
	h, err := a.c.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}

	if h.BaseFee == nil {
		return nil, ErrNoBaseFee
	}

	return h.BaseFee, nil
}

// SendTx submits a signed transaction.
func (a *AccountConn) SendTx(ctx context.Context, tx *types.Transaction) error {
	return a.c.SendTransaction(ctx, tx)
}

// TransferData packs the calldata of an ERC20 transfer.
func TransferData(to string, amount *big.Int) []byte {
	data := common.FromHex(ERC20transfer)
	data = append(data, common.LeftPadBytes(common.HexToAddress(to).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)

	return data
}

// Package dispatch sends signed value transfers to the configured chains. One dispatcher exists per chain family;
// all of them validate inputs, check balances before touching the network, sign with transiently decrypted key
// material and classify every provider failure as either fatal or retryable. Adding a chain family means adding a
// dispatcher implementation, not growing a conditional.
package dispatch

import (
	"context"
	"fmt"
	"math/big"

	"filippo.io/age"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/tarancss/txd/lib/chain"
	"github.com/tarancss/txd/lib/fee"
	"github.com/tarancss/txd/lib/nonce"
	"github.com/tarancss/txd/lib/provider"
)

// Request describes one transfer to dispatch. From is the sender context: UTXO chains require it, account and
// resource chains derive the sender from the decrypted key and ignore it.
type Request struct {
	ID       string // caller-supplied idempotency id
	Chain    chain.Descriptor
	Symbol   string
	To       string
	From     string
	Amount   string // decimal, native units
	Material string // age-encrypted signing key
	Level    fee.Level
}

// Outcome is the structured result of a dispatch attempt. Failures never propagate past the dispatcher boundary
// as panics or bare errors: the Retryable flag lets the queue and the caller decide policy.
type Outcome struct {
	Success     bool
	Hash        string
	ExplorerURL string
	Err         error
	Retryable   bool
}

// Dispatcher submits one transfer and classifies the result.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) Outcome
}

// AccountClient is the slice of an account-chain connection the dispatcher needs.
type AccountClient interface {
	fee.Market
	Balance(ctx context.Context, addr string) (*big.Int, error)
	TokenBalance(ctx context.Context, token, addr string) (*big.Int, error)
	SendTx(ctx context.Context, tx *types.Transaction) error
	Close()
}

// ResourceClient is the slice of a resource-chain connection the dispatcher needs.
type ResourceClient interface {
	Balance(ctx context.Context, addr string) (*big.Int, error)
	TokenBalance(ctx context.Context, contract, owner string) (*big.Int, error)
	CreateTransfer(ctx context.Context, from, to string, amount int64) (map[string]interface{}, error)
	CreateTokenTransfer(
		ctx context.Context, from, contract, to string, amount *big.Int, feeLimit int64,
	) (map[string]interface{}, error)
	Broadcast(ctx context.Context, tx map[string]interface{}) error
	Close()
}

// UTXOClient is the slice of a UTXO-chain connection the dispatcher needs.
type UTXOClient interface {
	Balance(ctx context.Context, addr string) (*big.Int, error)
	Build(ctx context.Context, from, to string, amount int64, key string) (provider.BuiltTx, error)
	Push(ctx context.Context, raw string) (string, error)
	Close()
}

// Deps wires a dispatcher to its collaborators. The connection funcs resolve a live endpoint per call (normally
// provider.Pool methods); tests substitute fakes.
type Deps struct {
	Account  func(ctx context.Context, chain string) (AccountClient, error)
	Resource func(ctx context.Context, chain string) (ResourceClient, error)
	UTXO     func(ctx context.Context, chain string) (UTXOClient, error)
	Nonces   *nonce.Arbiter
	Identity *age.X25519Identity
}

// ForFamily returns the dispatcher implementation for a chain family.
func ForFamily(f chain.Family, deps Deps) (Dispatcher, error) {
	switch f {
	case chain.Account:
		return &accountDispatcher{deps: deps}, nil
	case chain.Resource:
		return &resourceDispatcher{deps: deps}, nil
	case chain.UTXO:
		return &utxoDispatcher{deps: deps}, nil
	}

	return nil, chain.ErrBadFamily
}

// fatal builds a non-retryable failure outcome.
func fatal(class error, err error) Outcome {
	return Outcome{Err: wrap(class, err), Retryable: false}
}

// transient builds a retryable failure outcome.
func transient(class error, err error) Outcome {
	return Outcome{Err: wrap(class, err), Retryable: true}
}

func wrap(class error, err error) error {
	if err == nil {
		return class
	}

	return fmt.Errorf("%w: %v", class, err)
}

package dispatch

import (
	"context"

	"github.com/tarancss/txd/lib/keys"
	"github.com/tarancss/txd/lib/util"
)

// utxoDispatcher delegates transaction construction to the provider: it funds, builds and signs server side, we
// check the balance, hand over the key material and push the result. No token support on this family.
type utxoDispatcher struct {
	deps Deps
}

func (d *utxoDispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	if req.From == "" {
		return fatal(ErrValidation, errNoSender)
	}

	if req.Symbol != "" {
		return fatal(ErrNotConfigured, nil)
	}

	amt, err := util.ToBaseUnits(req.Amount, req.Chain.Family.Decimals())
	if err != nil {
		return fatal(ErrValidation, err)
	}

	key, err := keys.Decrypt(d.deps.Identity, req.Material)
	if err != nil {
		return fatal(ErrSigning, err)
	}

	conn, err := d.deps.UTXO(ctx, req.Chain.Name)
	if err != nil {
		return transient(ErrProviderUnavailable, err)
	}
	defer conn.Close()

	bal, err := conn.Balance(ctx, req.From)
	if err != nil {
		return transient(ErrProviderUnavailable, err)
	}

	if bal.Cmp(amt) < 0 {
		return fatal(ErrInsufficientFunds, nil)
	}

	built, err := conn.Build(ctx, req.From, req.To, amt.Int64(), key)
	if err != nil {
		if Retryable(err) {
			return transient(ErrProviderUnavailable, err)
		}

		return fatal(ErrSubmissionRejected, err)
	}

	hash, err := conn.Push(ctx, built.Raw)
	if err != nil {
		if Retryable(err) {
			return transient(ErrSubmissionRejected, err)
		}

		return fatal(ErrSubmissionRejected, err)
	}

	if hash == "" {
		hash = built.Hash
	}

	return Outcome{Success: true, Hash: hash, ExplorerURL: req.Chain.ExplorerURL(hash)}
}

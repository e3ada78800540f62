package dispatch

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tarancss/txd/lib/fee"
	"github.com/tarancss/txd/lib/keys"
	"github.com/tarancss/txd/lib/provider"
	"github.com/tarancss/txd/lib/util"
)

// tokenDecimals is assumed for configured tokens on account chains (the common ERC20 default).
const tokenDecimals = 18

// accountDispatcher sends transfers on nonce-ordered chains: allocate a nonce, estimate the fee, sign locally,
// submit, classify.
type accountDispatcher struct {
	deps Deps
}

func (d *accountDispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	native := req.Symbol == "" || strings.EqualFold(req.Symbol, req.Chain.Currency)

	decimals := req.Chain.Family.Decimals()
	if !native {
		decimals = tokenDecimals
	}

	amt, err := util.ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return fatal(ErrValidation, err)
	}

	keyHex, err := keys.Decrypt(d.deps.Identity, req.Material)
	if err != nil {
		return fatal(ErrSigning, err)
	}

	priv, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return fatal(ErrSigning, err)
	}

	from := crypto.PubkeyToAddress(priv.PublicKey).Hex()

	// transfer shape: a token send becomes a zero-value contract call
	to, value, data := req.To, amt, []byte(nil)

	if !native {
		token, ok := req.Chain.Token(req.Symbol)
		if !ok {
			return fatal(ErrNotConfigured, nil)
		}

		to, value, data = token, new(big.Int), provider.TransferData(req.To, amt)
	}

	conn, err := d.deps.Account(ctx, req.Chain.Name)
	if err != nil {
		return transient(ErrProviderUnavailable, err)
	}
	defer conn.Close()

	est := fee.ForAccount(ctx, conn, req.Chain, from, to, value, data, req.Level)

	// balance sufficiency is checked before anything reaches the network
	if out, ok := d.checkBalance(ctx, conn, from, amt, est, native, req); !ok {
		return out
	}

	n, err := d.deps.Nonces.Allocate(ctx, req.Chain.Name, from)
	if err != nil {
		return transient(ErrProviderUnavailable, err)
	}

	toAddr := common.HexToAddress(to)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(req.Chain.ChainID),
		Nonce:     n,
		GasTipCap: est.GasTipCap,
		GasFeeCap: est.GasFeeCap,
		Gas:       est.GasLimit,
		To:        &toAddr,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(req.Chain.ChainID)), priv)
	if err != nil {
		return fatal(ErrSigning, err)
	}

	if err = conn.SendTx(ctx, signed); err != nil {
		if NonceRelated(err) {
			_ = d.deps.Nonces.Invalidate(ctx, req.Chain.Name, from)
		}

		if Retryable(err) {
			return transient(ErrSubmissionRejected, err)
		}

		return fatal(ErrSubmissionRejected, err)
	}

	hash := signed.Hash().Hex()

	return Outcome{Success: true, Hash: hash, ExplorerURL: req.Chain.ExplorerURL(hash)}
}

// checkBalance verifies the sender can cover amount plus fee. Native sends need balance >= amount + fee; token
// sends need the token balance for the amount and the native balance for the fee.
func (d *accountDispatcher) checkBalance(
	ctx context.Context, conn AccountClient, from string, amt *big.Int, est fee.Estimate, native bool, req Request,
) (Outcome, bool) {
	bal, err := conn.Balance(ctx, from)
	if err != nil {
		return transient(ErrProviderUnavailable, err), false
	}

	if native {
		need := new(big.Int).Add(amt, est.Total)
		if bal.Cmp(need) < 0 {
			return fatal(ErrInsufficientFunds, nil), false
		}

		return Outcome{}, true
	}

	if bal.Cmp(est.Total) < 0 {
		return fatal(ErrInsufficientFunds, nil), false
	}

	token, _ := req.Chain.Token(req.Symbol)

	tokBal, err := conn.TokenBalance(ctx, token, from)
	if err != nil {
		return transient(ErrProviderUnavailable, err), false
	}

	if tokBal.Cmp(amt) < 0 {
		return fatal(ErrInsufficientFunds, nil), false
	}

	return Outcome{}, true
}

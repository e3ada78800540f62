package dispatch

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tarancss/txd/lib/fee"
	"github.com/tarancss/txd/lib/keys"
	"github.com/tarancss/txd/lib/util"
)

// resourceDispatcher sends transfers on resource-metered chains. The node builds the raw transaction, we sign its
// id hash locally and broadcast. No nonce arbitration: ordering is the node's problem on this family.
type resourceDispatcher struct {
	deps Deps
}

func (d *resourceDispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	native := req.Symbol == "" || strings.EqualFold(req.Symbol, req.Chain.Currency)

	amt, err := util.ToBaseUnits(req.Amount, req.Chain.Family.Decimals())
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

	// resource chains address accounts as 41-prefixed hex of the secp256k1-derived ethereum address
	from := "41" + strings.TrimPrefix(strings.ToLower(crypto.PubkeyToAddress(priv.PublicKey).Hex()), "0x")

	conn, err := d.deps.Resource(ctx, req.Chain.Name)
	if err != nil {
		return transient(ErrProviderUnavailable, err)
	}
	defer conn.Close()

	bal, err := conn.Balance(ctx, from)
	if err != nil {
		return transient(ErrProviderUnavailable, err)
	}

	var tx map[string]interface{}

	if native {
		if bal.Cmp(amt) < 0 {
			return fatal(ErrInsufficientFunds, nil)
		}

		tx, err = conn.CreateTransfer(ctx, from, req.To, amt.Int64())
	} else {
		contract, ok := req.Chain.Token(req.Symbol)
		if !ok {
			return fatal(ErrNotConfigured, nil)
		}

		// the native balance must cover the configured fee reserve before a contract call is attempted
		if req.Chain.MinReserve != "" {
			reserve, rerr := util.ToBaseUnits(req.Chain.MinReserve, req.Chain.Family.Decimals())
			if rerr != nil || bal.Cmp(reserve) < 0 {
				return fatal(ErrInsufficientFunds, nil)
			}
		}

		tokBal, terr := conn.TokenBalance(ctx, contract, from)
		if terr != nil {
			return transient(ErrProviderUnavailable, terr)
		}

		if tokBal.Cmp(amt) < 0 {
			return fatal(ErrInsufficientFunds, nil)
		}

		feeLimit := fee.DefaultFeeLimitSun * req.Level.Multiplier() / 100 //nolint:gomnd // percent scale

		tx, err = conn.CreateTokenTransfer(ctx, from, contract, req.To, amt, feeLimit)
	}

	if err != nil {
		if Retryable(err) {
			return transient(ErrProviderUnavailable, err)
		}

		return fatal(ErrSubmissionRejected, err)
	}

	txID, _ := tx["txID"].(string)

	if err = signResourceTx(tx, txID, priv); err != nil {
		return fatal(ErrSigning, err)
	}

	if err = conn.Broadcast(ctx, tx); err != nil {
		if Retryable(err) {
			return transient(ErrSubmissionRejected, err)
		}

		return fatal(ErrSubmissionRejected, err)
	}

	return Outcome{Success: true, Hash: txID, ExplorerURL: req.Chain.ExplorerURL(txID)}
}

// signResourceTx signs the transaction id hash and attaches the signature in the json shape the node expects.
func signResourceTx(tx map[string]interface{}, txID string, priv *ecdsa.PrivateKey) error {
	raw, err := hex.DecodeString(txID)
	if err != nil || len(raw) != 32 { //nolint:gomnd // sha256 digest length
		return fmt.Errorf("bad txID %q: %v", txID, err)
	}

	sig, err := crypto.Sign(raw, priv)
	if err != nil {
		return err
	}

	tx["signature"] = []string{hex.EncodeToString(sig)}

	return nil
}

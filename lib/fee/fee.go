// Package fee computes gas and fee parameters per chain family. Estimation is best effort by design: every provider
// lookup has a fixed fallback, so a degraded fee oracle can never block a send.
package fee

import (
	"context"
	"log"
	"math/big"

	"github.com/tarancss/txd/lib/chain"
)

// Level selects the urgency of a transaction.
type Level string

// Urgency tiers and the percentage they scale the buffered fee by.
const (
	Economy  Level = "economy"  // 80%
	Standard Level = "standard" // 100%
	Fast     Level = "fast"     // 150%
)

// Fallback constants used when the provider cannot answer.
const (
	DefaultGasTransfer = 21000  // plain value transfer
	DefaultGasCall     = 100000 // transfer with payload data (contract call)

	DefaultTipWei     = 2_000_000_000  // 2 gwei
	DefaultBaseFeeWei = 20_000_000_000 // 20 gwei

	DefaultFeeLimitSun  = 30_000_000 // resource chains: 30 native units of fee room for token transfers
	DefaultFeeRatePerKB = 10_000     // UTXO chains: base units per kilobyte

	bufferNum = 120 // 20% safety buffer on fee components
	bufferDen = 100
)

// Multiplier returns the tier's percentage scale. Unknown levels behave as Standard.
func (l Level) Multiplier() int64 {
	switch l {
	case Economy:
		return 80
	case Fast:
		return 150
	default:
		return 100
	}
}

// Valid reports whether the level is one of the known tiers or empty (empty means Standard).
func (l Level) Valid() bool {
	switch l {
	case "", Economy, Standard, Fast:
		return true
	}

	return false
}

// Market is the slice of an account-chain connection the estimator needs.
type Market interface {
	EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error)
	SuggestTip(ctx context.Context) (*big.Int, error)
	BaseFee(ctx context.Context) (*big.Int, error)
}

// Estimate carries the computed gas parameters for one account-model transaction. Never persisted.
type Estimate struct {
	GasLimit  uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int
	Total     *big.Int // GasLimit * GasFeeCap, in base units
}

// ForAccount computes gas parameters for an account-model transfer. The provider's gas estimate is multiplied by
// the chain's safety multiplier; tip and base fee each get a 20% buffer and the urgency tier scales the result.
// Provider failures fall back to fixed defaults, they never fail the caller.
func ForAccount(
	ctx context.Context, m Market, d chain.Descriptor, from, to string, value *big.Int, data []byte, lvl Level,
) Estimate {
	gas, err := m.EstimateGas(ctx, from, to, value, data)
	if err != nil {
		gas = DefaultGasTransfer
		if len(data) > 0 {
			gas = DefaultGasCall
		}

		log.Printf("[%s] gas estimation failed, using default %d:%v", d.Name, gas, err)
	}

	gas = uint64(float64(gas) * d.FeeMult)

	tip, err := m.SuggestTip(ctx)
	if err != nil || tip == nil || tip.Sign() <= 0 {
		tip = big.NewInt(DefaultTipWei)

		log.Printf("[%s] tip suggestion unavailable, using default:%v", d.Name, err)
	}

	base, err := m.BaseFee(ctx)
	if err != nil || base == nil || base.Sign() <= 0 {
		base = big.NewInt(DefaultBaseFeeWei)

		log.Printf("[%s] base fee unavailable, using default:%v", d.Name, err)
	}

	tip = buffer(tip)
	base = buffer(base)

	mult := big.NewInt(lvl.Multiplier())

	feeCap := scale(new(big.Int).Add(base, tip), mult)
	tip = scale(tip, mult)

	// feeCap can never undercut the tip
	if feeCap.Cmp(tip) < 0 {
		feeCap = new(big.Int).Set(tip)
	}

	return Estimate{
		GasLimit:  gas,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Total:     new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gas)),
	}
}

func buffer(v *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(bufferNum))

	return out.Div(out, big.NewInt(bufferDen))
}

func scale(v, mult *big.Int) *big.Int {
	out := new(big.Int).Mul(v, mult)

	return out.Div(out, big.NewInt(100))
}

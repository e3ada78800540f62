package fee

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/tarancss/txd/lib/chain"
)

var errDown = errors.New("connection refused")

// fakeMarket answers fee lookups with fixed values, or fails everything when down.
type fakeMarket struct {
	gas  uint64
	tip  *big.Int
	base *big.Int
	down bool
}

func (f fakeMarket) EstimateGas(_ context.Context, _, _ string, _ *big.Int, _ []byte) (uint64, error) {
	if f.down {
		return 0, errDown
	}

	return f.gas, nil
}

func (f fakeMarket) SuggestTip(_ context.Context) (*big.Int, error) {
	if f.down {
		return nil, errDown
	}

	return f.tip, nil
}

func (f fakeMarket) BaseFee(_ context.Context) (*big.Int, error) {
	if f.down {
		return nil, errDown
	}

	return f.base, nil
}

func TestForAccountHealthyMarket(t *testing.T) {
	d := chain.Descriptor{Name: "sepolia", FeeMult: 1}
	m := fakeMarket{gas: 21000, tip: big.NewInt(1_000_000_000), base: big.NewInt(10_000_000_000)}

	e := ForAccount(context.Background(), m, d, "0xaa", "0xbb", big.NewInt(1), nil, Standard)

	if e.GasLimit != 21000 {
		t.Errorf("expected gas 21000 got %d", e.GasLimit)
	}

	// both components carry the 20% buffer
	if e.GasTipCap.Int64() != 1_200_000_000 {
		t.Errorf("expected buffered tip 1.2 gwei got %s", e.GasTipCap)
	}

	if e.GasFeeCap.Int64() != 13_200_000_000 {
		t.Errorf("expected buffered fee cap 13.2 gwei got %s", e.GasFeeCap)
	}

	exp := new(big.Int).Mul(e.GasFeeCap, big.NewInt(21000))
	if e.Total.Cmp(exp) != 0 {
		t.Errorf("expected total %s got %s", exp, e.Total)
	}
}

func TestForAccountDegradedMarket(t *testing.T) {
	d := chain.Descriptor{Name: "sepolia", FeeMult: 1}
	m := fakeMarket{down: true}

	e := ForAccount(context.Background(), m, d, "0xaa", "0xbb", big.NewInt(1), nil, Standard)

	if e.GasLimit != DefaultGasTransfer {
		t.Errorf("expected default transfer gas got %d", e.GasLimit)
	}

	if e.GasTipCap.Sign() <= 0 || e.GasFeeCap.Sign() <= 0 || e.Total.Sign() <= 0 {
		t.Errorf("degraded estimate must still be positive: %+v", e)
	}

	// a transfer with payload falls back to the call default
	e = ForAccount(context.Background(), m, d, "0xaa", "0xbb", big.NewInt(0), make([]byte, 68), Standard)
	if e.GasLimit != DefaultGasCall {
		t.Errorf("expected default call gas got %d", e.GasLimit)
	}
}

func TestForAccountTiers(t *testing.T) {
	d := chain.Descriptor{Name: "sepolia", FeeMult: 1}
	m := fakeMarket{gas: 21000, tip: big.NewInt(1_000_000_000), base: big.NewInt(10_000_000_000)}

	eco := ForAccount(context.Background(), m, d, "0xaa", "0xbb", big.NewInt(1), nil, Economy)
	std := ForAccount(context.Background(), m, d, "0xaa", "0xbb", big.NewInt(1), nil, Standard)
	fast := ForAccount(context.Background(), m, d, "0xaa", "0xbb", big.NewInt(1), nil, Fast)

	if eco.GasFeeCap.Cmp(std.GasFeeCap) >= 0 || std.GasFeeCap.Cmp(fast.GasFeeCap) >= 0 {
		t.Errorf("expected economy < standard < fast, got %s %s %s", eco.GasFeeCap, std.GasFeeCap, fast.GasFeeCap)
	}

	// 80 / 100 / 150 percent of the buffered standard cap
	if got := new(big.Int).Mul(std.GasFeeCap, big.NewInt(80)); eco.GasFeeCap.Cmp(got.Div(got, big.NewInt(100))) != 0 {
		t.Errorf("economy cap %s is not 80%% of standard %s", eco.GasFeeCap, std.GasFeeCap)
	}

	if got := new(big.Int).Mul(std.GasFeeCap, big.NewInt(150)); fast.GasFeeCap.Cmp(got.Div(got, big.NewInt(100))) != 0 {
		t.Errorf("fast cap %s is not 150%% of standard %s", fast.GasFeeCap, std.GasFeeCap)
	}
}

func TestForAccountFeeMult(t *testing.T) {
	d := chain.Descriptor{Name: "sepolia", FeeMult: 1.5}
	m := fakeMarket{gas: 20000, tip: big.NewInt(1), base: big.NewInt(1)}

	e := ForAccount(context.Background(), m, d, "0xaa", "0xbb", big.NewInt(1), nil, Standard)

	if e.GasLimit != 30000 {
		t.Errorf("expected gas scaled to 30000 got %d", e.GasLimit)
	}
}

func TestLevel(t *testing.T) {
	cases := []struct {
		lvl   Level
		mult  int64
		valid bool
	}{
		{Economy, 80, true},
		{Standard, 100, true},
		{Fast, 150, true},
		{"", 100, true},
		{"ludicrous", 100, false},
	}

	for _, c := range cases {
		if got := c.lvl.Multiplier(); got != c.mult {
			t.Errorf("level %q expected multiplier %d got %d", c.lvl, c.mult, got)
		}

		if got := c.lvl.Valid(); got != c.valid {
			t.Errorf("level %q expected valid %v got %v", c.lvl, c.valid, got)
		}
	}
}

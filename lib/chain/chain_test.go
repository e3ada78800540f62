package chain

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tarancss/txd/lib/config"
)

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry([]config.ChainConfig{
		{Name: "sepolia", Family: config.FamilyAccount, Nodes: []string{"http://localhost:8545"}, Currency: "ETH"},
		{Name: "shasta", Family: config.FamilyResource, Nodes: []string{"http://localhost:9090"}, Currency: "TRX"},
		{Name: "btctest", Family: config.FamilyUTXO, Nodes: []string{"http://localhost:3001"}, Currency: "BTC"},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	if got := reg.Names(); !reflect.DeepEqual(got, []string{"btctest", "sepolia", "shasta"}) {
		t.Errorf("expected sorted names, got %v", got)
	}

	d, err := reg.Get("shasta")
	if err != nil || d.Family != Resource {
		t.Errorf("expected resource descriptor, got %+v err:%v", d, err)
	}

	if _, err = reg.Get("mainnet"); !errors.Is(err, ErrUnknownChain) {
		t.Errorf("expected ErrUnknownChain got %v", err)
	}
}

func TestNewRegistryBadFamily(t *testing.T) {
	_, err := NewRegistry([]config.ChainConfig{{Name: "x", Family: "quantum"}})
	if !errors.Is(err, ErrBadFamily) {
		t.Fatalf("expected ErrBadFamily got %v", err)
	}
}

func TestFeeMultFloor(t *testing.T) {
	reg, _ := NewRegistry([]config.ChainConfig{
		{Name: "sepolia", Family: config.FamilyAccount, FeeMult: 0.5},
	})

	d, _ := reg.Get("sepolia")
	if d.FeeMult != 1 {
		t.Errorf("expected fee multiplier floored at 1, got %v", d.FeeMult)
	}
}

func TestFamilyDecimals(t *testing.T) {
	cases := []struct {
		f   Family
		exp int
	}{
		{Account, 18},
		{Resource, 6},
		{UTXO, 8},
	}

	for _, c := range cases {
		if got := c.f.Decimals(); got != c.exp {
			t.Errorf("family %s expected %d decimals got %d", c.f, c.exp, got)
		}
	}
}

func TestExplorerURL(t *testing.T) {
	d := Descriptor{Explorer: "https://sepolia.etherscan.io/tx/{hash}"}

	if got := d.ExplorerURL("0xabc"); got != "https://sepolia.etherscan.io/tx/0xabc" {
		t.Errorf("unexpected url %s", got)
	}

	// no template configured means no link
	if got := (Descriptor{}).ExplorerURL("0xabc"); got != "" {
		t.Errorf("expected empty url, got %s", got)
	}
}

func TestToken(t *testing.T) {
	d := Descriptor{Tokens: map[string]string{"LINK": "0x7798"}}

	if addr, ok := d.Token("LINK"); !ok || addr != "0x7798" {
		t.Errorf("expected token resolved, got %s %v", addr, ok)
	}

	if _, ok := d.Token("DOGE"); ok {
		t.Errorf("did not expect an unconfigured token to resolve")
	}
}

// Package chain holds the static registry of configured blockchains: one immutable descriptor per chain, built at
// process start and never mutated afterwards.
package chain

import (
	"errors"
	"sort"
	"strings"

	"github.com/tarancss/txd/lib/config"
)

// Family tags the transaction model of a chain.
type Family string

// The three supported chain families.
const (
	Account  Family = "account"  // per-address balances, nonce ordered
	Resource Family = "resource" // bandwidth/energy priced
	UTXO     Family = "utxo"     // discrete spendable outputs
)

// Errors returned by the registry.
var (
	ErrUnknownChain = errors.New("chain not configured")
	ErrBadFamily    = errors.New("unknown chain family")
)

// Decimals of the native currency per family. Account chains use 18 (wei), resource chains 6 (sun), UTXO chains
// 8 (satoshi).
func (f Family) Decimals() int {
	switch f {
	case Resource:
		return 6
	case UTXO:
		return 8
	default:
		return 18
	}
}

// Descriptor is the immutable description of one configured chain.
type Descriptor struct {
	Name       string
	Family     Family
	Nodes      []string // RPC endpoints in fixed priority order
	Currency   string
	Explorer   string // template, {hash} replaced by the tx hash
	FeeMult    float64
	MinConf    int
	ChainID    int64
	Tokens     map[string]string
	MinReserve string
}

// ExplorerURL renders the explorer link for a transaction hash.
func (d Descriptor) ExplorerURL(hash string) string {
	return strings.Replace(d.Explorer, "{hash}", hash, 1)
}

// Token resolves an asset symbol to its contract address, if configured.
func (d Descriptor) Token(symbol string) (string, bool) {
	addr, ok := d.Tokens[symbol]

	return addr, ok
}

// Registry resolves chain names to descriptors. Built once from configuration.
type Registry struct {
	m map[string]Descriptor
}

// NewRegistry builds the registry from configuration, validating family tags.
func NewRegistry(cfgs []config.ChainConfig) (*Registry, error) {
	m := make(map[string]Descriptor, len(cfgs))

	for _, c := range cfgs {
		var fam Family

		switch c.Family {
		case config.FamilyAccount:
			fam = Account
		case config.FamilyResource:
			fam = Resource
		case config.FamilyUTXO:
			fam = UTXO
		default:
			return nil, ErrBadFamily
		}

		feeMult := c.FeeMult
		if feeMult < 1 {
			feeMult = 1
		}

		m[c.Name] = Descriptor{
			Name:       c.Name,
			Family:     fam,
			Nodes:      c.Nodes,
			Currency:   c.Currency,
			Explorer:   c.Explorer,
			FeeMult:    feeMult,
			MinConf:    c.MinConf,
			ChainID:    c.ChainID,
			Tokens:     c.Tokens,
			MinReserve: c.MinReserve,
		}
	}

	return &Registry{m: m}, nil
}

// Get returns the descriptor for a chain name.
func (r *Registry) Get(name string) (Descriptor, error) {
	d, ok := r.m[name]
	if !ok {
		return Descriptor{}, ErrUnknownChain
	}

	return d, nil
}

// Names lists the configured chain names, sorted for stable output.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.m))
	for n := range r.m {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

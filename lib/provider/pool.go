// Package provider resolves live connections to chain RPC endpoints. Endpoints are probed in the fixed priority
// order they are configured in; the first one that answers a cheap liveness check (current block height) within the
// probe timeout wins. Nothing is sticky: every call starts again from the top of the list, so a recovered primary
// endpoint is picked up on the next request.
package provider

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tarancss/txd/lib/chain"
)

// Errors returned resolving connections.
var (
	ErrAllEndpointsUnavailable = errors.New("all RPC endpoints failed the liveness probe")
	ErrWrongFamily             = errors.New("chain does not belong to the requested family")
)

// Conn is a live connection to one endpoint of one chain.
type Conn interface {
	// Height returns the current block height. Used as the liveness probe.
	Height(ctx context.Context) (uint64, error)
	// Node returns the endpoint url this connection talks to.
	Node() string
	// Close releases the connection.
	Close()
}

// Pool hands out connections for configured chains, isolating callers from single endpoint outages.
type Pool struct {
	reg     *chain.Registry
	timeout time.Duration

	dial func(d chain.Descriptor, node string) (Conn, error)
}

// New returns a pool over the given registry. probeTimeout bounds each liveness check.
func New(reg *chain.Registry, probeTimeout time.Duration) *Pool {
	p := &Pool{reg: reg, timeout: probeTimeout}
	p.dial = dialNode

	return p
}

// Conn returns a usable connection for the chain or ErrAllEndpointsUnavailable. Endpoints are tried once each, in
// configured order; a failed endpoint is not retried within the same call.
func (p *Pool) Conn(ctx context.Context, name string) (Conn, error) {
	d, err := p.reg.Get(name)
	if err != nil {
		return nil, err
	}

	for _, node := range d.Nodes {
		c, err := p.dial(d, node)
		if err != nil {
			log.Printf("[%s] cannot dial endpoint %s:%v", name, node, err)

			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		_, err = c.Height(probeCtx)

		cancel()

		if err != nil {
			log.Printf("[%s] endpoint %s failed liveness probe:%v", name, node, err)
			c.Close()

			continue
		}

		return c, nil
	}

	return nil, ErrAllEndpointsUnavailable
}

// Account returns a connection to an account-model chain.
func (p *Pool) Account(ctx context.Context, name string) (*AccountConn, error) {
	c, err := p.Conn(ctx, name)
	if err != nil {
		return nil, err
	}

	ac, ok := c.(*AccountConn)
	if !ok {
		c.Close()

		return nil, ErrWrongFamily
	}

	return ac, nil
}

// Resource returns a connection to a resource-model chain.
func (p *Pool) Resource(ctx context.Context, name string) (*ResourceConn, error) {
	c, err := p.Conn(ctx, name)
	if err != nil {
		return nil, err
	}

	rc, ok := c.(*ResourceConn)
	if !ok {
		c.Close()

		return nil, ErrWrongFamily
	}

	return rc, nil
}

// UTXO returns a connection to a UTXO chain.
func (p *Pool) UTXO(ctx context.Context, name string) (*UTXOConn, error) {
	c, err := p.Conn(ctx, name)
	if err != nil {
		return nil, err
	}

	uc, ok := c.(*UTXOConn)
	if !ok {
		c.Close()

		return nil, ErrWrongFamily
	}

	return uc, nil
}

func dialNode(d chain.Descriptor, node string) (Conn, error) {
	switch d.Family {
	case chain.Account:
		return DialAccount(node)
	case chain.Resource:
		return NewResourceConn(node), nil
	case chain.UTXO:
		return NewUTXOConn(node), nil
	}

	return nil, chain.ErrBadFamily
}

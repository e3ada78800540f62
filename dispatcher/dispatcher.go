// Package dispatcher implements the transaction dispatch microservice.
//
// This microservice implements a RESTful API for clients to submit value transfers to multiple blockchains,
// inspect fee estimates and balances, and reconcile transaction statuses reported by webhook providers.
package dispatcher

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"filippo.io/age"

	"github.com/tarancss/txd/lib/chain"
	"github.com/tarancss/txd/lib/config"
	"github.com/tarancss/txd/lib/dispatch"
	"github.com/tarancss/txd/lib/msg"
	"github.com/tarancss/txd/lib/nonce"
	"github.com/tarancss/txd/lib/provider"
	"github.com/tarancss/txd/lib/queue"
	"github.com/tarancss/txd/lib/reconcile"
	"github.com/tarancss/txd/lib/store"
	"github.com/tarancss/txd/lib/store/db"
)

// Service contains the data necessary to deliver the dispatch service.
type Service struct {
	dbtype      string
	db          store.DB
	reg         *chain.Registry
	pool        *provider.Pool
	mb          msg.MsgBroker
	q           *queue.Queue
	rec         *reconcile.Reconciler
	dispatchers map[string]dispatch.Dispatcher
	hooks       map[string]config.WebhookConfig
	insecure    bool
	s           *http.Server  // http server
	ss          *http.Server  // https server
	sc          chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new dispatch service. One dispatcher is built per configured chain; the retry queue
// is wired to them and, when RetrySweep is on, its background sweeper is started.
func New(
	conf config.ServiceConfig, dbConn store.DB, mb msg.MsgBroker, reg *chain.Registry, pool *provider.Pool,
	arb *nonce.Arbiter, identity *age.X25519Identity,
) (*Service, error) {
	s := &Service{
		dbtype:      conf.DBType,
		db:          dbConn,
		reg:         reg,
		pool:        pool,
		mb:          mb,
		dispatchers: make(map[string]dispatch.Dispatcher),
		hooks:       make(map[string]config.WebhookConfig),
		insecure:    conf.InsecureHooks,
	}

	deps := dispatch.Deps{
		Account: func(ctx context.Context, name string) (dispatch.AccountClient, error) {
			c, err := pool.Account(ctx, name)
			if err != nil {
				return nil, err
			}

			return c, nil
		},
		Resource: func(ctx context.Context, name string) (dispatch.ResourceClient, error) {
			c, err := pool.Resource(ctx, name)
			if err != nil {
				return nil, err
			}

			return c, nil
		},
		UTXO: func(ctx context.Context, name string) (dispatch.UTXOClient, error) {
			c, err := pool.UTXO(ctx, name)
			if err != nil {
				return nil, err
			}

			return c, nil
		},
		Nonces:   arb,
		Identity: identity,
	}

	for _, name := range reg.Names() {
		d, _ := reg.Get(name)

		disp, err := dispatch.ForFamily(d.Family, deps)
		if err != nil {
			return nil, err
		}

		s.dispatchers[name] = disp
	}

	s.q = queue.New(s.dispatchOne, conf.MaxRetries)
	s.q.OnTerminal = s.onQueueTerminal

	if conf.RetrySweep {
		s.q.StartSweep(time.Duration(conf.SweepSeconds) * time.Second)
	}

	sources := make([]reconcile.Source, 0, len(conf.Webhooks))
	for _, h := range conf.Webhooks {
		s.hooks[h.Provider] = h
		sources = append(sources, reconcile.Source{Provider: h.Provider, Chain: h.Chain})
	}

	s.rec = reconcile.New(dbConn, mb, sources)

	return s, nil
}

// dispatchOne routes one request to the dispatcher of its chain.
func (s *Service) dispatchOne(ctx context.Context, req dispatch.Request) dispatch.Outcome {
	d, ok := s.dispatchers[req.Chain.Name]
	if !ok {
		return dispatch.Outcome{Err: chain.ErrUnknownChain}
	}

	out := d.Dispatch(ctx, req)
	observeDispatch(req.Chain.Name, out)

	return out
}

// recordSubmitted stores a pending status for a freshly accepted transaction and publishes it to the broker.
func (s *Service) recordSubmitted(ctx context.Context, req dispatch.Request, out dispatch.Outcome) {
	st := store.TxStatus{
		Hash:     out.Hash,
		Chain:    req.Chain.Name,
		State:    store.StatePending,
		From:     req.From,
		To:       req.To,
		Amount:   req.Amount,
		Observed: time.Now(),
	}

	if err := s.db.UpsertStatus(ctx, st); err != nil {
		log.Printf("[%s] could not store pending status for %s:%v", st.Chain, st.Hash, err)
	}

	if s.mb != nil {
		if err := s.mb.SendStatus(st.Chain, msg.FromStatus(st)); err != nil {
			log.Printf("[%s] could not publish status event for %s:%v", st.Chain, st.Hash, err)
		}
	}
}

// onQueueTerminal observes queue entries leaving for good: delivered ones get their pending status recorded the
// same way direct sends do.
func (s *Service) onQueueTerminal(e queue.Entry, out dispatch.Outcome) {
	st := s.q.Stats()
	observeQueueDepth(st.Pending + st.Retrying)

	if out.Success {
		s.recordSubmitted(context.Background(), e.Request, out)
	}
}

// Stop shuts down the http servers implementing the RESTful API and closes gracefully the connections to the
// message broker and database.
func (s *Service) Stop() {
	var err error

	s.q.Stop()

	if s.s != nil {
		if err = s.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}

	if s.ss != nil {
		if err = s.ss.Shutdown(context.Background()); err != nil {
			log.Printf("Error in https server shutdown:%e", err)
		}
	}

	close(s.sc) // close server channel to indicate shutdowns have finished

	if s.mb != nil {
		if err = s.mb.Close(); err != nil {
			log.Printf("Error closing message broker:%e", err)
		}
	}

	if s.db != nil {
		err = db.Close(s.dbtype, s.db)
		log.Printf("Disconnecting %v database, err:%e\n", s.dbtype, err)
	}
}

// ManageEvents starts go routines to consume the message broker queues for status events. For each configured
// chain, two channels are opened, one for status events, and one for errors.
func (s *Service) ManageEvents() error {
	if s.mb == nil {
		return nil
	}

	for _, net := range s.reg.Names() {
		mut := new(sync.Mutex)
		mut.Lock()

		eveCh, errCh, err := s.mb.GetStatuses(net, mut)
		if err != nil {
			return err
		}

		go func(netName string) {
			log.Printf("[%s] Start listening to status event channel", netName)

			for eve := range eveCh {
				log.Printf("[%s] Received status event %+v", netName, eve)
				mut.Unlock()
			}

			log.Printf("[%s] Stop listening to status event channel", netName)
		}(net)

		go func(netName string) {
			log.Printf("[%s] Start listening to err channel", netName)

			for e := range errCh {
				log.Printf("[%s] Received error %+v", netName, e)
			}

			log.Printf("[%s] Stop listening to err channel", netName)
		}(net)
	}

	return nil
}

package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tarancss/txd/lib/chain"
	"github.com/tarancss/txd/lib/dispatch"
	"github.com/tarancss/txd/lib/fee"
	"github.com/tarancss/txd/lib/queue"
	"github.com/tarancss/txd/lib/store"
	"github.com/tarancss/txd/lib/util"
)

// TxReq is the transfer request clients POST to /send. Material carries the age-encrypted signing key; Queue
// controls whether a retryable failure parks the transfer in the retry queue instead of failing the request.
type TxReq struct {
	ID       string `json:"id"`
	Chain    string `json:"chain"`
	To       string `json:"to"`
	From     string `json:"from,omitempty"`
	Amount   string `json:"amount"`
	Symbol   string `json:"symbol,omitempty"`
	Material string `json:"material"`
	Level    string `json:"level,omitempty"`
	Queue    *bool  `json:"queue,omitempty"`
}

// Errors returned to client requests.
var (
	ErrBadRequest = errors.New("bad request")
	ErrMissingID  = errors.New("an idempotency id is required")
	ErrNoAddr     = errors.New("undefined address - missing in uri")
	ErrNoChain    = errors.New("undefined blockchain - missing query: ?chain=<blockchain>")
	ErrNoHash     = errors.New("a transaction hash is required")
	ErrBadLevel   = errors.New("level must be one of economy, standard or fast")
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// statusFor maps dispatch failure classes to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, dispatch.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, dispatch.ErrSubmissionRejected):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// homeHandler just replies a welcome message to the client.
func (s *Service) homeHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response
	// log request
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	// just reply a welcome message
	res.Body = "Hello, this is your multi-blockchain transaction dispatcher!"
	// reply
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(res)
}

// network describes one configured chain in the /networks reply.
type network struct {
	Name     string `json:"name"`
	Family   string `json:"family"`
	Currency string `json:"currency"`
}

// networksHandler replies the chains available to the dispatcher.
func (s *Service) networksHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	pl := make([]network, 0, len(s.dispatchers))

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(http.StatusBadRequest)
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(pl)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s res:%+v err:%e\n", r.RemoteAddr, r.RequestURI, pl, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	for _, name := range s.reg.Names() {
		d, _ := s.reg.Get(name)
		pl = append(pl, network{Name: d.Name, Family: string(d.Family), Currency: d.Currency})
	}
}

// addrBalance struct used to reply balances of addresses.
type addrBalance struct {
	Chain string `json:"chain"`
	Bal   string `json:"bal"`           // balance in the chain's base units
	Tok   string `json:"tok,omitempty"` // token balance when a token was queried
	Err   string `json:"err,omitempty"` // provider failure, balance reported as zero
}

// balanceHandler replies the balance of the address requested. A provider outage does not fail the request: the
// balance is reported as zero with the error attached so clients can tell a real zero from an outage.
func (s *Service) balanceHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var bal addrBalance

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(http.StatusBadRequest)
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(bal)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s bal:%+v err:%e\n", r.RemoteAddr, r.RequestURI, bal, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	// parse request
	if err = r.ParseForm(); err != nil {
		log.Print("Error parsing request URL")

		return
	}

	address, ok := mux.Vars(r)["address"]
	if !ok {
		err = ErrNoAddr

		return
	}

	name := r.Form.Get("chain")
	if name == "" {
		err = ErrNoChain

		return
	}

	var d chain.Descriptor

	if d, err = s.reg.Get(name); err != nil {
		return
	}

	bal = s.lookupBalance(r, d, address, r.Form.Get("tok"))
}

// lookupBalance resolves one balance, downgrading provider failures to a zero report.
func (s *Service) lookupBalance(r *http.Request, d chain.Descriptor, address, tok string) addrBalance {
	ctx := r.Context()
	out := addrBalance{Chain: d.Name, Bal: "0"}

	zero := func(err error) addrBalance {
		out.Err = err.Error()

		return out
	}

	switch d.Family {
	case chain.Account:
		c, err := s.pool.Account(ctx, d.Name)
		if err != nil {
			return zero(err)
		}
		defer c.Close()

		b, err := c.Balance(ctx, address)
		if err != nil {
			return zero(err)
		}

		out.Bal = b.String()

		if contract, ok := d.Token(tok); ok {
			tb, err := c.TokenBalance(ctx, contract, address)
			if err != nil {
				return zero(err)
			}

			out.Tok = tb.String()
		}
	case chain.Resource:
		c, err := s.pool.Resource(ctx, d.Name)
		if err != nil {
			return zero(err)
		}
		defer c.Close()

		b, err := c.Balance(ctx, address)
		if err != nil {
			return zero(err)
		}

		out.Bal = b.String()

		if contract, ok := d.Token(tok); ok {
			tb, err := c.TokenBalance(ctx, contract, address)
			if err != nil {
				return zero(err)
			}

			out.Tok = tb.String()
		}
	case chain.UTXO:
		c, err := s.pool.UTXO(ctx, d.Name)
		if err != nil {
			return zero(err)
		}
		defer c.Close()

		b, err := c.Balance(ctx, address)
		if err != nil {
			return zero(err)
		}

		out.Bal = b.String()
	}

	return out
}

// feeReq is the body clients POST to /fee.
type feeReq struct {
	Chain  string `json:"chain"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	Level  string `json:"level,omitempty"`
}

// feeEstimate is the /fee reply. Total is in base units; TotalNative renders it in the chain's currency.
type feeEstimate struct {
	Chain       string `json:"chain"`
	Level       string `json:"level"`
	GasLimit    uint64 `json:"gasLimit,omitempty"`
	GasTipCap   string `json:"gasTipCap,omitempty"`
	GasFeeCap   string `json:"gasFeeCap,omitempty"`
	Total       string `json:"total"`
	TotalNative string `json:"totalNative"`
}

// feeHandler replies a fee estimate for a prospective transfer. Estimation never fails on provider outage, the
// estimate just degrades to the configured defaults.
func (s *Service) feeHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var est feeEstimate

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(http.StatusBadRequest)
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(est)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s est:%+v err:%e\n", r.RemoteAddr, r.RequestURI, est, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	var req feeReq

	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding fee request %+v\n", r.Body)

		return
	}

	lvl := fee.Level(req.Level)
	if req.Level == "" {
		lvl = fee.Standard
	}

	if !lvl.Valid() {
		err = ErrBadLevel

		return
	}

	var d chain.Descriptor

	if d, err = s.reg.Get(req.Chain); err != nil {
		return
	}

	est = feeEstimate{Chain: d.Name, Level: string(lvl)}

	switch d.Family {
	case chain.Account:
		var data []byte

		to := req.To

		if contract, ok := d.Token(req.Symbol); ok {
			to = contract
			data = make([]byte, 68) //nolint:gomnd // selector + 2 words, sizes the gas estimate
		}

		var m fee.Market

		c, errConn := s.pool.Account(r.Context(), d.Name)
		if errConn == nil {
			defer c.Close()
			m = c
		} else {
			m = unavailableMarket{cause: errConn}
		}

		e := fee.ForAccount(r.Context(), m, d, req.From, to, big.NewInt(0), data, lvl)
		est.GasLimit = e.GasLimit
		est.GasTipCap = e.GasTipCap.String()
		est.GasFeeCap = e.GasFeeCap.String()
		est.Total = e.Total.String()
		est.TotalNative = util.FromBaseUnits(e.Total, d.Family.Decimals())
	case chain.Resource:
		total := fee.DefaultFeeLimitSun * lvl.Multiplier() / 100 //nolint:gomnd // percent scale
		est.Total = strconv.FormatInt(total, 10)
		est.TotalNative = util.FromBaseUnits(big.NewInt(total), d.Family.Decimals())
	case chain.UTXO:
		rate := int64(fee.DefaultFeeRatePerKB)

		if c, errConn := s.pool.UTXO(r.Context(), d.Name); errConn == nil {
			if fr, errFee := c.FeeRate(r.Context()); errFee == nil && fr > 0 {
				rate = fr
			}

			c.Close()
		}

		total := rate * lvl.Multiplier() / 100 //nolint:gomnd // percent scale
		est.Total = strconv.FormatInt(total, 10)
		est.TotalNative = util.FromBaseUnits(big.NewInt(total), d.Family.Decimals())
	}
}

// unavailableMarket degrades fee estimation to defaults when no endpoint answers.
type unavailableMarket struct {
	cause error
}

func (u unavailableMarket) EstimateGas(_ context.Context, _, _ string, _ *big.Int, _ []byte) (uint64, error) {
	return 0, u.cause
}

func (u unavailableMarket) SuggestTip(_ context.Context) (*big.Int, error) { return nil, u.cause }

func (u unavailableMarket) BaseFee(_ context.Context) (*big.Int, error) { return nil, u.cause }

// sendReply is the /send success body.
type sendReply struct {
	Hash        string `json:"hash,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Queued      bool   `json:"queued,omitempty"`
	QueueID     string `json:"queueId,omitempty"`
}

// sendHandler dispatches a value transfer to the appropriate chain. Success replies the transaction hash; a
// retryable failure parks the transfer in the retry queue unless the client opted out.
func (s *Service) sendHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var status int = http.StatusBadRequest

	var res Response

	var reply sendReply

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(status)
		} else {
			rw.WriteHeader(http.StatusAccepted)
			tmp, _ := json.Marshal(reply)
			res.Body = string(tmp)
		}
		// log request and tx hash
		log.Printf("httpreq from %v %s hash:%s err:%e\n", r.RemoteAddr, r.RequestURI, reply.Hash, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	var txReq TxReq

	if err = json.NewDecoder(r.Body).Decode(&txReq); err != nil {
		log.Printf("Error decoding transaction request %+v\n", r.Body)

		return
	}

	if txReq.ID == "" {
		err = ErrMissingID

		return
	}

	lvl := fee.Level(txReq.Level)
	if txReq.Level == "" {
		lvl = fee.Standard
	}

	if !lvl.Valid() {
		err = ErrBadLevel

		return
	}

	var d chain.Descriptor

	if d, err = s.reg.Get(txReq.Chain); err != nil {
		status = http.StatusNotFound

		return
	}

	req := dispatch.Request{
		ID:       txReq.ID,
		Chain:    d,
		Symbol:   txReq.Symbol,
		To:       txReq.To,
		From:     txReq.From,
		Amount:   txReq.Amount,
		Material: txReq.Material,
		Level:    lvl,
	}

	out := s.dispatchOne(r.Context(), req)
	if out.Success {
		reply = sendReply{Hash: out.Hash, ExplorerURL: out.ExplorerURL}

		s.recordSubmitted(r.Context(), req, out)

		return
	}

	useQueue := txReq.Queue == nil || *txReq.Queue
	if out.Retryable && useQueue {
		if _, errQ := s.q.Add(req, out.Err); errQ == nil {
			reply = sendReply{Queued: true, QueueID: req.ID}

			st := s.q.Stats()
			observeQueueDepth(st.Pending + st.Retrying)

			return
		}
	}

	err = out.Err
	status = statusFor(err)
}

// queueHandler replies the depth of the retry queue.
func (s *Service) queueHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response

	st := s.q.Stats()
	tmp, _ := json.Marshal(st)
	res.Body = string(tmp)

	log.Printf("httpreq from %v %s stats:%+v\n", r.RemoteAddr, r.RequestURI, st)

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(&res)
}

// queueGetHandler replies one queued transfer.
func (s *Service) queueGetHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var e queue.Entry

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			if errors.Is(err, queue.ErrNotFound) {
				rw.WriteHeader(http.StatusNotFound)
			} else {
				rw.WriteHeader(http.StatusBadRequest)
			}
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(e)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s entry:%+v err:%e\n", r.RemoteAddr, r.RequestURI, e, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	e, err = s.q.Get(mux.Vars(r)["id"])
}

// retryHandler forces an immediate attempt of one queued transfer, ignoring its backoff schedule.
func (s *Service) retryHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var reply sendReply

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			switch {
			case errors.Is(err, queue.ErrNotFound):
				rw.WriteHeader(http.StatusNotFound)
			case errors.Is(err, queue.ErrBusy):
				rw.WriteHeader(http.StatusConflict)
			default:
				rw.WriteHeader(statusFor(err))
			}
		} else {
			rw.WriteHeader(http.StatusAccepted)
			tmp, _ := json.Marshal(reply)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s hash:%s err:%e\n", r.RemoteAddr, r.RequestURI, reply.Hash, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	id := mux.Vars(r)["id"]

	out, errR := s.q.Retry(r.Context(), id)
	if errR != nil {
		err = errR

		return
	}

	if out.Success {
		reply = sendReply{Hash: out.Hash, ExplorerURL: out.ExplorerURL}

		return
	}

	if out.Retryable {
		// the attempt failed but the entry may still be scheduled for another try
		reply = sendReply{Queued: true, QueueID: id}

		return
	}

	err = out.Err
}

// txHandler replies the reconciled status of the specified transaction.
func (s *Service) txHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var tx store.TxStatus

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			if errors.Is(err, store.ErrNotFound) {
				rw.WriteHeader(http.StatusNotFound)
			} else {
				rw.WriteHeader(http.StatusBadRequest)
			}
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(tx)
			res.Body = string(tmp)
		}
		// log request and tx hash
		log.Printf("httpreq from %v %s tx:%+v err:%e\n", r.RemoteAddr, r.RequestURI, tx, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	if err = r.ParseForm(); err != nil {
		log.Print("Error parsing request URL")

		return
	}

	hash, ok := mux.Vars(r)["hash"]
	if !ok || hash == "" {
		err = ErrNoHash

		return
	}

	name := r.Form.Get("chain")
	if name != "" {
		if _, err = s.reg.Get(name); err != nil {
			return
		}

		tx, err = s.rec.Get(r.Context(), name, hash)

		return
	}

	// no chain given: statuses are keyed by (chain, hash), so scan every configured chain
	err = store.ErrNotFound

	for _, name = range s.reg.Names() {
		if tx, err = s.rec.Get(r.Context(), name, hash); err == nil || !errors.Is(err, store.ErrNotFound) {
			return
		}
	}
}

// txListHandler replies reconciled statuses, newest first.
func (s *Service) txListHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var txs []store.TxStatus

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(http.StatusBadRequest)
		} else {
			rw.WriteHeader(http.StatusOK)
			tmp, _ := json.Marshal(txs)
			res.Body = string(tmp)
		}
		// log request
		log.Printf("httpreq from %v %s txs:%d err:%e\n", r.RemoteAddr, r.RequestURI, len(txs), err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	if err = r.ParseForm(); err != nil {
		log.Print("Error parsing request URL")

		return
	}

	f := store.Filter{Chain: r.Form.Get("chain"), State: r.Form.Get("state")}

	if lim := r.Form.Get("limit"); lim != "" {
		if f.Limit, err = strconv.Atoi(lim); err != nil {
			err = ErrBadRequest

			return
		}
	}

	txs, err = s.rec.List(r.Context(), f)
}

package dispatcher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tarancss/txd/lib/chain"
)

// DefaultSignatureHeader carries the HMAC when a provider has no configured header name.
const DefaultSignatureHeader = "X-Webhook-Signature"

var (
	ErrUnknownProvider = errors.New("unknown webhook provider")
	ErrBadSignature    = errors.New("webhook signature verification failed")
	ErrHooksOnlyUTXO   = errors.New("address hooks are only supported on utxo chains")
)

// verifySignature checks the HMAC-SHA256 of the raw body against the provider's configured secret. A missing
// secret is only tolerated in insecure mode, which Validate enforces at startup.
func (s *Service) verifySignature(provider string, header http.Header, body []byte) error {
	h, ok := s.hooks[provider]
	if !ok {
		return ErrUnknownProvider
	}

	if h.Secret == "" {
		if s.insecure {
			log.Printf("[%s] accepting unsigned webhook delivery, insecure mode is on", provider)

			return nil
		}

		return ErrBadSignature
	}

	name := h.Header
	if name == "" {
		name = DefaultSignatureHeader
	}

	got := header.Get(name)
	if got == "" {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrBadSignature
	}

	return nil
}

// ingestHandler receives webhook deliveries from status providers. The signature is verified against the raw
// body before anything is parsed or stored; a rejected delivery never mutates state.
func (s *Service) ingestHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response

	provider := mux.Vars(r)["provider"]

	body, err := io.ReadAll(r.Body)
	if err != nil {
		res.Error = fmt.Sprintf("%s", err)

		rw.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(rw).Encode(&res)

		return
	}

	rw.Header().Set("Content-Type", "application/json;charset=utf8")

	if err = s.verifySignature(provider, r.Header, body); err != nil {
		res.Error = fmt.Sprintf("%s", err)

		if errors.Is(err, ErrUnknownProvider) {
			rw.WriteHeader(http.StatusNotFound)
		} else {
			rw.WriteHeader(http.StatusUnauthorized)
		}

		log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)
		_ = json.NewEncoder(rw).Encode(&res)

		return
	}

	err = s.rec.Ingest(r.Context(), provider, body)
	observeIngest(provider, err)

	if err == nil {
		res.Body = "ok"

		rw.WriteHeader(http.StatusOK)
	} else {
		// bad payloads and store failures alike: the provider should redeliver
		res.Error = fmt.Sprintf("%s", err)

		rw.WriteHeader(http.StatusInternalServerError)
	}

	log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)
	_ = json.NewEncoder(rw).Encode(&res)
}

// hookReq is the body clients POST to /webhooks to subscribe an address with a provider.
type hookReq struct {
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Callback string `json:"callback"`
}

// registerHookHandler subscribes an address with the chain's provider so deliveries start flowing to the ingest
// endpoint. Only utxo providers expose a subscription API; the other families push by provider-side config.
func (s *Service) registerHookHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var id string

	defer func() {
		// reply to requester accordingly
		if err != nil {
			res.Error = fmt.Sprintf("%s", err)

			rw.WriteHeader(http.StatusBadRequest)
		} else {
			res.Body = id

			rw.WriteHeader(http.StatusAccepted)
		}
		// log request
		log.Printf("httpreq from %v %s id:%s err:%e\n", r.RemoteAddr, r.RequestURI, id, err)
		// reply
		rw.Header().Set("Content-Type", "application/json;charset=utf8")
		_ = json.NewEncoder(rw).Encode(&res)
	}()

	var req hookReq

	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding webhook registration %+v\n", r.Body)

		return
	}

	var d chain.Descriptor

	if d, err = s.reg.Get(req.Chain); err != nil {
		return
	}

	if d.Family != chain.UTXO {
		err = ErrHooksOnlyUTXO

		return
	}

	c, errConn := s.pool.UTXO(r.Context(), d.Name)
	if errConn != nil {
		err = errConn

		return
	}
	defer c.Close()

	id, err = c.RegisterHook(r.Context(), req.Address, req.Callback)
}

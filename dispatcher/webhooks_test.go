package dispatcher

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/tarancss/txd/lib/config"
	"github.com/tarancss/txd/lib/reconcile"
	"github.com/tarancss/txd/lib/store"
	"github.com/tarancss/txd/lib/store/memory"
)

func hookService(insecure bool) (*Service, store.DB) {
	db := memory.New()

	hooks := map[string]config.WebhookConfig{
		"chainhook": {Provider: "chainhook", Secret: "s3cret", Chain: "sepolia"},
		"coinpipe":  {Provider: "coinpipe", Chain: "btctest"}, // no secret
	}

	s := &Service{
		db:       db,
		hooks:    hooks,
		insecure: insecure,
		rec: reconcile.New(db, nil, []reconcile.Source{
			{Provider: "chainhook", Chain: "sepolia"},
			{Provider: "coinpipe", Chain: "btctest"},
		}),
	}

	return s, db
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

func deliver(s *Service, provider, sig string, body []byte) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	r.HandleFunc("/hooks/{provider}", s.ingestHandler).Methods("POST")

	req := httptest.NewRequest(http.MethodPost, "/hooks/"+provider, bytes.NewReader(body))
	if sig != "" {
		req.Header.Set(DefaultSignatureHeader, sig)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	return rec
}

func TestIngestSignedDelivery(t *testing.T) {
	s, db := hookService(false)

	body := []byte(`{"type":"MINED_TRANSACTION","event":{"transaction":{"hash":"0xabc"},"confirmations":3}}`)

	rec := deliver(s, "chainhook", sign("s3cret", body), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body)
	}

	st, err := db.GetStatus(context.Background(), "sepolia", "0xabc")
	if err != nil {
		t.Fatalf("status not stored: %v", err)
	}

	if st.State != store.StateConfirmed || st.Confirmations != 3 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestIngestBadSignature(t *testing.T) {
	s, db := hookService(false)

	body := []byte(`{"type":"MINED_TRANSACTION","event":{"transaction":{"hash":"0xabc"}}}`)

	cases := []struct {
		name, sig string
	}{
		{"missing", ""},
		{"wrong secret", sign("wrong", body)},
		{"garbage", "deadbeef"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := deliver(s, "chainhook", c.sig, body)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 got %d: %s", rec.Code, rec.Body)
			}
		})
	}

	// a rejected delivery never mutates state
	if _, err := db.GetStatus(context.Background(), "sepolia", "0xabc"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected nothing stored, got %v", err)
	}
}

func TestIngestUnknownProvider(t *testing.T) {
	s, _ := hookService(false)

	rec := deliver(s, "nobody", "", []byte(`{}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestIngestMissingSecretInsecureMode(t *testing.T) {
	body := []byte(`{"event":"confirmed-tx","hash":"f00d","confirmations":1}`)

	// secretless provider is refused in normal mode
	s, _ := hookService(false)

	rec := deliver(s, "coinpipe", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}

	// and tolerated when the insecure flag is on
	s, db := hookService(true)

	rec = deliver(s, "coinpipe", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body)
	}

	if _, err := db.GetStatus(context.Background(), "btctest", "f00d"); err != nil {
		t.Errorf("status not stored: %v", err)
	}
}

func TestIngestMalformedBody(t *testing.T) {
	s, _ := hookService(false)

	body := []byte(`{not json`)

	rec := deliver(s, "chainhook", sign("s3cret", body), body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

func TestVerifySignatureCustomHeader(t *testing.T) {
	db := memory.New()
	s := &Service{
		db: db,
		hooks: map[string]config.WebhookConfig{
			"gridlog": {Provider: "gridlog", Secret: "k", Header: "X-Grid-Sig"},
		},
	}

	body := []byte(`{}`)

	h := http.Header{}
	h.Set("X-Grid-Sig", sign("k", body))

	if err := s.verifySignature("gridlog", h, body); err != nil {
		t.Errorf("expected custom header accepted: %v", err)
	}

	h = http.Header{}
	h.Set(DefaultSignatureHeader, sign("k", body))

	if err := s.verifySignature("gridlog", h, body); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected the default header to be ignored, got %v", err)
	}
}

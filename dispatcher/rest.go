package dispatcher

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const timeout = 15

// newRouter defines the RESTful API of the dispatch service.
func newRouter(s *Service) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.homeHandler)
	r.HandleFunc("/networks", s.networksHandler).Methods("GET")         // get all available blockchains
	r.HandleFunc("/balance/{address}", s.balanceHandler).Methods("GET") // get address balance
	r.HandleFunc("/fee", s.feeHandler).Methods("POST")                  // estimate the fee of a transfer
	r.HandleFunc("/send", s.sendHandler).Methods("POST")                // send a transaction
	r.HandleFunc("/queue", s.queueHandler).Methods("GET")               // get retry queue depth
	r.HandleFunc("/queue/{id}", s.queueGetHandler).Methods("GET")       // get one queued transfer
	r.HandleFunc("/queue/{id}/retry", s.retryHandler).Methods("POST")   // force a retry attempt
	r.HandleFunc("/tx/{hash}", s.txHandler).Methods("GET")              // get reconciled transaction status
	r.HandleFunc("/txs", s.txListHandler).Methods("GET")                // list reconciled statuses
	r.HandleFunc("/webhooks", s.registerHookHandler).Methods("POST")    // register a provider address hook
	r.HandleFunc("/hooks/{provider}", s.ingestHandler).Methods("POST")  // webhook delivery endpoint

	return r
}

// Init sets up and starts the http/https server to service the RESTful API for the dispatch service. If sslPort,
// sslCert and sslKey are informed, it will start an https (TLS) server on the specified endpoint.
func (s *Service) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	// API definition
	r := newRouter(s)
	http.Handle("/", r)

	// setup shutdown channel
	s.sc = make(chan struct{})

	// start http server
	if port != "" {
		s.s = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + port,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			err = s.s.ListenAndServe()
		}()

		log.Printf("Listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		s.ss = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + sslPort,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			errTLS = s.ss.ListenAndServeTLS(sslCert, sslKey)
		}()

		log.Printf("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-s.sc

	return fmt.Sprintf("shutdown http server:%e, https server:%e", err, errTLS)
}

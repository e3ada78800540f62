// Package main: transaction dispatch service.
//
// Warning: the retry queue lives in process memory, so queued transfers are lost on restart. Every accepted
// transfer is replied with its idempotency id which clients can use to resubmit. Persisting the queue in the
// status database is a possible evolution, at the cost of coordinating sweeps between replicas. To be considered.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tarancss/txd/dispatcher"
	"github.com/tarancss/txd/lib/chain"
	"github.com/tarancss/txd/lib/config"
	"github.com/tarancss/txd/lib/keys"
	"github.com/tarancss/txd/lib/msg"
	"github.com/tarancss/txd/lib/msg/amqp"
	"github.com/tarancss/txd/lib/nonce"
	"github.com/tarancss/txd/lib/provider"
	"github.com/tarancss/txd/lib/store"
	"github.com/tarancss/txd/lib/store/db"
)

const probeTimeout = 5 * time.Second

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100/metrics")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	if err = conf.Validate(); err != nil {
		panic(err)
	}

	log.Printf("Configuration:%+v", conf)

	// connect to database
	var dbConn store.DB

	if dbConn, err = db.New(conf.DBType, conf.DBConn); err != nil {
		panic(err)
	}

	log.Printf("Connected to %s database\n", conf.DBType)

	// load chain registry and provider pool
	reg, err := chain.NewRegistry(conf.Chains)
	if err != nil {
		panic(err)
	}

	pool := provider.New(reg, probeTimeout)

	log.Print("Blockchain clients loaded")

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			http.ListenAndServe(":9100", h)
		}()
	}

	// load nonce arbiter with its cache backend
	var cache nonce.Cache

	switch conf.NonceCache {
	case "redis":
		if cache, err = nonce.NewRedisCache(
			context.Background(), conf.NonceConn, time.Duration(conf.NonceTTL)*time.Second,
		); err != nil {
			panic(err)
		}
	default:
		cache = nonce.NewMemCache()
	}

	arb := nonce.New(cache, time.Duration(conf.NonceTTL)*time.Second,
		func(ctx context.Context, name, addr string) (uint64, error) {
			c, errConn := pool.Account(ctx, name)
			if errConn != nil {
				return 0, errConn
			}
			defer c.Close()

			return c.PendingCount(ctx, addr)
		})

	// load message broker
	var mb msg.MsgBroker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				panic(err)
			}
		}

		if err = mb.Setup(nil); err != nil {
			panic(err)
		}
	default:
		log.Printf("Unknown message broker type: %s\n", conf.MbType)
	}

	// load signing key identity
	identity, err := keys.ParseIdentity(conf.KeyIdentity)
	if err != nil {
		panic(err)
	}

	// create dispatch service
	s, err := dispatcher.New(conf, dbConn, mb, reg, pool, arb, identity)
	if err != nil {
		panic(err)
	}

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		// do last actions and wait for all write operations to end
		s.Stop()
		close(finish)
	}()

	// manage broker status events
	if err := s.ManageEvents(); err != nil {
		log.Printf("Error setting up broker readers for events:%e", err)
	}

	// init RESTful API, wait for its return and log response
	log.Printf("Dispatcher: %s\n", s.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	<-finish
}

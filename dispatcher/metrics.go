package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tarancss/txd/lib/dispatch"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txd_dispatch_total",
		Help: "Dispatch attempts by chain and result.",
	}, []string{"chain", "result"})

	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txd_webhook_ingest_total",
		Help: "Webhook deliveries ingested by provider and result.",
	}, []string{"provider", "result"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txd_queue_depth",
		Help: "Transfers currently parked in the retry queue.",
	})
)

func observeDispatch(chain string, out dispatch.Outcome) {
	if out.Success {
		dispatchTotal.WithLabelValues(chain, "success").Inc()
	} else {
		dispatchTotal.WithLabelValues(chain, "failure").Inc()
	}
}

func observeQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func observeIngest(provider string, err error) {
	if err == nil {
		ingestTotal.WithLabelValues(provider, "ok").Inc()
	} else {
		ingestTotal.WithLabelValues(provider, "error").Inc()
	}
}

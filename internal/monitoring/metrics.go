package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the simulator. Scraped from the optional metrics
// endpoint; a sweep over large clusters runs long enough for these to be
// worth watching live.
var (
	eventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bftsim_events_processed_total",
		Help: "Total events popped from the simulation queue, by kind",
	}, []string{"kind"})

	broadcastsOmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bftsim_broadcasts_omitted_total",
		Help: "Total broadcasts dropped by the network omission model",
	})

	messagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bftsim_messages_delivered_total",
		Help: "Total reception events routed to a node handler",
	})

	requestsCommitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bftsim_requests_committed_total",
		Help: "Total requests that reached a terminal commit state, by protocol",
	}, []string{"protocol"})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bftsim_queue_depth",
		Help: "Current number of events waiting in the simulation queue",
	})
)

func init() {
	prometheus.MustRegister(
		eventsProcessed,
		broadcastsOmitted,
		messagesDelivered,
		requestsCommitted,
		queueDepth,
	)
}

// RecordEvent counts one popped event of the given kind.
func RecordEvent(kind string) {
	eventsProcessed.WithLabelValues(kind).Inc()
}

// RecordOmission counts one broadcast dropped by the network model.
func RecordOmission() {
	broadcastsOmitted.Inc()
}

// RecordDelivery counts one reception routed to a node.
func RecordDelivery() {
	messagesDelivered.Inc()
}

// RecordCommit counts one request reaching a terminal commit state.
func RecordCommit(protocol string) {
	requestsCommitted.WithLabelValues(protocol).Inc()
}

// SetQueueDepth updates the queue depth gauge.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// ServeMetrics exposes /metrics on addr in a background goroutine.
// Returns the server so the caller can shut it down. The error returned by
// ListenAndServe is discarded, so a failed bind is not reported.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}

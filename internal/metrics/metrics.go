// Registers:
//
//	#bookflow_feed_connects_total
//	#bookflow_feed_closes_total
//	#bookflow_feed_messages_total{kind}
//	#bookflow_feed_decode_errors_total
//	#bookflow_feed_state
//	#bookflow_feed_backoff_seconds
//	#bookflow_coalescer_flushes_total{edge}
//	#bookflow_coalescer_merged_entries_total
//	#go_* and process_* system metrics
//
// The dashboard exposes them through Handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	once sync.Once

	feedConnects     prometheus.Counter
	feedCloses       prometheus.Counter
	feedMessages     *prometheus.CounterVec
	feedDecodeErrors prometheus.Counter
	feedState        prometheus.Gauge
	feedBackoff      prometheus.Gauge
	coalescerFlushes *prometheus.CounterVec
	coalescerMerged  prometheus.Counter
)

// Init creates and registers the collectors. It is safe to call more than
// once; recording functions are no-ops until Init has run.
func Init() {
	once.Do(func() {
		feedConnects = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookflow_feed_connects_total",
			Help: "Number of transport sessions opened",
		})
		feedCloses = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookflow_feed_closes_total",
			Help: "Number of transport sessions closed or failed to dial",
		})
		feedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookflow_feed_messages_total",
				Help: "Inbound feed messages by classification",
			},
			[]string{"kind"},
		)
		feedDecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookflow_feed_decode_errors_total",
			Help: "Inbound payloads dropped because they could not be decoded",
		})
		feedState = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookflow_feed_state",
			Help: "Feed state: 0 disconnected, 1 connecting, 2 subscribed",
		})
		feedBackoff = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookflow_feed_backoff_seconds",
			Help: "Delay of the currently scheduled reconnect",
		})
		coalescerFlushes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookflow_coalescer_flushes_total",
				Help: "Deltas applied to the book by edge",
			},
			[]string{"edge"},
		)
		coalescerMerged = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookflow_coalescer_merged_entries_total",
			Help: "Level entries superseded inside a coalescing window",
		})

		registry.MustRegister(
			feedConnects, feedCloses, feedMessages, feedDecodeErrors,
			feedState, feedBackoff, coalescerFlushes, coalescerMerged,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func IncrementConnect() {
	if feedConnects != nil {
		feedConnects.Inc()
	}
}

func IncrementClose() {
	if feedCloses != nil {
		feedCloses.Inc()
	}
}

func IncrementMessage(kind string) {
	if feedMessages != nil {
		feedMessages.WithLabelValues(kind).Inc()
	}
}

func IncrementDecodeError() {
	if feedDecodeErrors != nil {
		feedDecodeErrors.Inc()
	}
}

func SetFeedState(state int) {
	if feedState != nil {
		feedState.Set(float64(state))
	}
}

func SetBackoff(seconds float64) {
	if feedBackoff != nil {
		feedBackoff.Set(seconds)
	}
}

func IncrementFlush(edge string) {
	if coalescerFlushes != nil {
		coalescerFlushes.WithLabelValues(edge).Inc()
	}
}

func AddMerged(n int) {
	if coalescerMerged != nil && n > 0 {
		coalescerMerged.Add(float64(n))
	}
}

// Package metrics exposes Prometheus instrumentation for the feed pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Annotation metrics
	AnnotationPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatfeed_annotation_passes_total",
			Help: "Total full annotation passes",
		},
	)

	AnnotationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatfeed_annotation_seconds",
			Help:    "Duration of full normalize and annotate passes",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	// Transport metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatfeed_events_total",
			Help: "Total transport events handled",
		},
		[]string{"kind"},
	)

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatfeed_events_skipped_total",
			Help: "Transport events dropped before reaching the display sequence",
		},
		[]string{"reason"}, // "empty_sequence", "other_room", "unknown_kind"
	)

	// History metrics
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatfeed_fetches_total",
			Help: "Total history fetches",
		},
		[]string{"op", "result"}, // result: "ok", "empty", "error"
	)

	StaleResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatfeed_stale_responses_total",
			Help: "History responses discarded because their room session was superseded",
		},
	)

	DisplayedEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatfeed_display_entries",
			Help: "Entries in the current display sequence",
		},
	)
)

// ObserveAnnotation records one full annotation pass that started at start.
func ObserveAnnotation(start time.Time) {
	AnnotationPasses.Inc()
	AnnotationDuration.Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns an HTTP server exposing /metrics on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

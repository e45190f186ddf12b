// Package metrics exposes prometheus instrumentation for fetches, quotes and sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stock_fetch_total", Help: "Requests to the analytics service by endpoint and result"},
		[]string{"endpoint", "result"},
	)
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "stock_fetch_duration_seconds", Help: "Latency of analytics service requests", Buckets: prometheus.DefBuckets},
		[]string{"endpoint"},
	)
	QuoteUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stock_quote_updates_total", Help: "Live quotes merged into the active snapshot"},
		[]string{"symbol"},
	)
	StaleResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stock_stale_responses_total", Help: "Responses discarded because their session was superseded"},
		[]string{"endpoint"},
	)
	Sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stock_sessions_total", Help: "Symbol sessions by terminal load status"},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(FetchTotal, FetchDuration, QuoteUpdates, StaleResponses, Sessions)
}

// Serve starts the /metrics endpoint in the background. An empty addr disables it.
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

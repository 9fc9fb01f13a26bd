package metrics

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_requests_total",
			Help: "Total number of requests sent",
		},
		[]string{"status"},
	)
	RequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loadgen_request_duration_seconds",
			Help:    "Send duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	ElementsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loadgen_elements_sent_total",
			Help: "Total tensor elements sent",
		},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ElementsSent)
}

// Serve exposes /metrics and /healthz for the duration of a run so the
// harness itself can be scraped while load is in flight. Returns
// immediately; the listener runs until the process exits.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "loadgen"})
	})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics listener: %v", err)
		}
	}()
}

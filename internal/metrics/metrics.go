package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval and indexing metrics.
var (
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relatedwork",
			Name:      "remote_requests_total",
			Help:      "Requests made to upstream trackers and code hosts",
		},
		[]string{"service", "op", "status"},
	)

	CandidatesScoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relatedwork",
			Name:      "candidates_scored_total",
			Help:      "Candidates scored by the heuristic scorer",
		},
	)

	IndexedDocumentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relatedwork",
			Name:      "indexed_documents_total",
			Help:      "Documents committed to the text index",
		},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relatedwork",
			Name:      "search_duration_seconds",
			Help:      "Latency of ranked retrieval requests",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"path"},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RemoteRequestsTotal,
			CandidatesScoredTotal,
			IndexedDocumentsTotal,
			SearchDuration,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}

// Package metrics exports Prometheus metrics for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// ChatRequests counts chat calls by outcome: ok, degraded, error.
	ChatRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sidekick",
		Name:      "chat_requests_total",
		Help:      "Chat requests by outcome.",
	}, []string{"outcome"})

	// ChatLatency tracks end-to-end chat latency in seconds.
	ChatLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sidekick",
		Name:      "chat_latency_seconds",
		Help:      "End-to-end chat request latency.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// IngestedChunks counts chunks written to the vector store.
	IngestedChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidekick",
		Name:      "ingested_chunks_total",
		Help:      "Chunks written to the knowledge base.",
	})

	// RetrievedResults tracks how many results survive thresholding per query.
	RetrievedResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sidekick",
		Name:      "retrieved_results",
		Help:      "Results above the similarity threshold per retrieval.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})
)

func init() {
	registry.MustRegister(ChatRequests, ChatLatency, IngestedChunks, RetrievedResults)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Package metrics provides Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the service's Prometheus instruments. It satisfies
// both the orchestrator's call observer and the RAG service observer.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	providerRequestsTotal  *prometheus.CounterVec
	providerRetriesTotal   *prometheus.CounterVec
	providerRequestSeconds *prometheus.HistogramVec

	documentsProcessedTotal prometheus.Counter
	chunksPerDocument       prometheus.Histogram
	queriesProcessedTotal   *prometheus.CounterVec
}

// NewCollector registers the service instruments on reg. Pass
// prometheus.DefaultRegisterer outside tests.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	auto := promauto.With(reg)

	return &Collector{
		httpRequestsTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: auto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		providerRequestsTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		providerRetriesTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_retries_total",
				Help:      "Total provider call retries",
			},
			[]string{"provider"},
		),
		providerRequestSeconds: auto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_seconds",
				Help:      "Provider call duration in seconds, retries included",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider"},
		),
		documentsProcessedTotal: auto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_processed_total",
				Help:      "Total documents ingested",
			},
		),
		chunksPerDocument: auto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chunks_per_document",
				Help:      "Chunk count per ingested document",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		queriesProcessedTotal: auto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_processed_total",
				Help:      "Total queries by retrieval mode",
			},
			[]string{"mode"},
		),
	}
}

// ObserveHTTPRequest records one handled HTTP request.
func (c *Collector) ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveProviderCall records one provider call outcome.
func (c *Collector) ObserveProviderCall(provider, outcome string, elapsed time.Duration) {
	c.providerRequestsTotal.WithLabelValues(provider, outcome).Inc()
	c.providerRequestSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRetry records one scheduled retry.
func (c *Collector) ObserveRetry(provider string) {
	c.providerRetriesTotal.WithLabelValues(provider).Inc()
}

// ObserveDocumentProcessed records one ingested document.
func (c *Collector) ObserveDocumentProcessed(chunks int) {
	c.documentsProcessedTotal.Inc()
	c.chunksPerDocument.Observe(float64(chunks))
}

// ObserveQuery records one handled query.
func (c *Collector) ObserveQuery(mode string) {
	c.queriesProcessedTotal.WithLabelValues(mode).Inc()
}

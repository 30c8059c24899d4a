package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Global metrics, registered on the default registry by promauto.

var (
	// HTTP requests, labeled by method, path and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfdrop_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdfdrop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// Files that went through the extractor, by result ("ok" or "failed").
	ExtractFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfdrop_extract_files_total",
			Help: "Total number of files processed by the extractor",
		},
		[]string{"result"},
	)

	ExtractPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pdfdrop_extract_pages_total",
			Help: "Total number of pages whose text was extracted",
		},
	)

	// Extraction failures by error kind (read, decode, index, io, limit, canceled).
	ExtractErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfdrop_extract_errors_total",
			Help: "Total number of extraction failures by kind",
		},
		[]string{"kind"},
	)

	ExtractBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pdfdrop_extract_batch_duration_seconds",
			Help:    "Time to extract one whole batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	DocumentsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pdfdrop_documents_in_flight",
			Help: "Number of documents currently being decoded",
		},
	)

	TasksRetained = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pdfdrop_tasks_retained",
			Help: "Number of asynchronous extraction tasks currently retained",
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobship_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobship_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobship_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Queue metrics
	RecordsOffered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobship_records_offered_total",
			Help: "Total number of records offered to the ingestion queue",
		},
		[]string{"status"}, // status: accepted, full, closed, cancelled
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blobship_queue_depth",
			Help: "Records resident in the ingestion queue after the last drain",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blobship_queue_capacity",
			Help: "Capacity of the ingestion queue",
		},
	)

	DrainsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobship_queue_drains_total",
			Help: "Total number of queue drains",
		},
		[]string{"mode"}, // mode: periodic, all
	)

	// Batch metrics
	BatchesEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blobship_batches_emitted_total",
			Help: "Total number of batches emitted by the assembler",
		},
	)

	BatchesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blobship_batches_rejected_total",
			Help: "Batches whose consumer callback reported failure",
		},
	)

	BatchRecords = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blobship_batch_records",
			Help:    "Number of records per emitted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)

	BatchBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blobship_batch_bytes",
			Help:    "Payload bytes per emitted batch",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
	)

	// Upload metrics
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobship_uploads_total",
			Help: "Total number of batch uploads by terminal state",
		},
		[]string{"status"}, // status: succeeded, failed
	)

	UploadRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blobship_upload_retries_total",
			Help: "Total number of upload retries",
		},
	)

	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blobship_upload_duration_seconds",
			Help:    "Time from first attempt to terminal state for one batch",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobship_upload_bytes_total",
			Help: "Bytes of successfully uploaded batches",
		},
		[]string{"kind"}, // kind: raw, delivered
	)

	CompressionFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blobship_compression_fallbacks_total",
			Help: "Batches uploaded uncompressed because compression failed",
		},
	)

	EncodingSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blobship_encoding_skips_total",
			Help: "Records skipped while encoding a batch",
		},
	)

	DroppedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blobship_dropped_bytes_total",
			Help: "Payload bytes rejected at the ingestion queue",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobship_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

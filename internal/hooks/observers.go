package hooks

import (
	"time"

	"github.com/rs/zerolog"

	"blobship/internal/logger"
	"blobship/internal/metrics"
)

// Log returns Hooks that write each event to the structured logger
func Log() Hooks {
	return logHooks{log: logger.WithComponent("hooks")}
}

// LogTo is Log with an explicit logger
func LogTo(log zerolog.Logger) Hooks {
	return logHooks{log: log}
}

type logHooks struct {
	log zerolog.Logger
}

func (l logHooks) OnUploadSuccess(key string, rawBytes, deliveredBytes int) {
	l.log.Info().
		Str("object_key", key).
		Int("raw_bytes", rawBytes).
		Int("delivered_bytes", deliveredBytes).
		Msg("batch uploaded")
}

func (l logHooks) OnUploadRetry(key string, attempt int, backoff time.Duration, cause error) {
	l.log.Warn().
		Err(cause).
		Str("object_key", key).
		Int("attempt", attempt).
		Dur("backoff", backoff).
		Msg("retrying batch upload")
}

func (l logHooks) OnUploadFailure(key string, cause error) {
	l.log.Error().
		Err(cause).
		Str("object_key", key).
		Msg("batch upload failed, batch dropped")
}

func (l logHooks) OnDropped(droppedBytes int, queueDepth int) {
	l.log.Warn().
		Int("dropped_bytes", droppedBytes).
		Int("queue_depth", queueDepth).
		Msg("record dropped")
}

// Metrics returns Hooks that record each event in prometheus
func Metrics() Hooks {
	return metricHooks{}
}

type metricHooks struct{}

func (metricHooks) OnUploadSuccess(key string, rawBytes, deliveredBytes int) {
	metrics.UploadsTotal.WithLabelValues("succeeded").Inc()
	metrics.UploadBytes.WithLabelValues("raw").Add(float64(rawBytes))
	metrics.UploadBytes.WithLabelValues("delivered").Add(float64(deliveredBytes))
}

func (metricHooks) OnUploadRetry(string, int, time.Duration, error) {
	metrics.UploadRetries.Inc()
}

func (metricHooks) OnUploadFailure(string, error) {
	metrics.UploadsTotal.WithLabelValues("failed").Inc()
}

func (metricHooks) OnDropped(droppedBytes int, _ int) {
	metrics.DroppedBytes.Add(float64(droppedBytes))
}

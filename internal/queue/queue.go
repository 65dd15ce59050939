// Package queue implements the bounded ingestion queue and the periodic
// drain that assembles records into size and count bounded batches.
package queue

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"blobship/internal/logger"
	"blobship/internal/metrics"
	"blobship/internal/models"
	"blobship/internal/worker"
)

// Queue errors
var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

const DefaultCapacity = 10000

// BatchFunc consumes one assembled batch. It runs on the draining
// goroutine; the returned bool is recorded but does not affect the queue.
type BatchFunc func(records []models.Record, totalBytes int) bool

// Config holds queue settings
type Config struct {
	Capacity         int
	BatchMaxMessages int
	BatchMaxBytes    int
	FlushInterval    time.Duration
	// Block producers on a full queue instead of rejecting
	BlockOnFull bool
	// Use the lock-free ring buffer
	MultiProducer bool
}

// Stats holds queue counters
type Stats struct {
	Offered         int64 `json:"offered"`
	Accepted        int64 `json:"accepted"`
	RejectedFull    int64 `json:"rejectedFull"`
	RejectedClosed  int64 `json:"rejectedClosed"`
	Batches         int64 `json:"batches"`
	RejectedBatches int64 `json:"rejectedBatches"`
	Depth           int   `json:"depth"`
	Capacity        int   `json:"capacity"`
}

// Queue accepts records from any number of producers and hands them, in
// order, to a single BatchFunc in bounded batches.
type Queue struct {
	cfg Config
	buf buffer
	fn  BatchFunc
	log zerolog.Logger

	// Producers hold the read side while enqueuing; Close takes the write
	// side so nothing lands after the final drain.
	gate   sync.RWMutex
	closed atomic.Bool

	drainMu   sync.Mutex
	flusher   *worker.Periodic
	closeOnce sync.Once

	offered         atomic.Int64
	accepted        atomic.Int64
	rejectedFull    atomic.Int64
	rejectedClosed  atomic.Int64
	batches         atomic.Int64
	rejectedBatches atomic.Int64
}

// New creates a queue. Settings below 1 are clamped to 1 (the flush
// interval to 1ms); a non-positive capacity uses DefaultCapacity.
func New(cfg Config, fn BatchFunc) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.BatchMaxMessages < 1 {
		cfg.BatchMaxMessages = 1
	}
	if cfg.BatchMaxBytes < 1 {
		cfg.BatchMaxBytes = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Millisecond
	}

	q := &Queue{
		cfg: cfg,
		fn:  fn,
		log: logger.WithComponent("queue"),
	}
	if cfg.MultiProducer {
		q.buf = newRingBuffer(cfg.Capacity)
	} else {
		q.buf = newLockBuffer(cfg.Capacity)
	}
	q.flusher = worker.NewPeriodic("queue_flusher", cfg.FlushInterval, q.Flush)

	metrics.QueueCapacity.Set(float64(cfg.Capacity))
	return q
}

// Config returns the effective, clamped configuration
func (q *Queue) Config() Config {
	return q.cfg
}

// Start launches the periodic flusher. It is idempotent.
func (q *Queue) Start() {
	q.log.Info().
		Int("capacity", q.cfg.Capacity).
		Int("batch_max_messages", q.cfg.BatchMaxMessages).
		Int("batch_max_bytes", q.cfg.BatchMaxBytes).
		Dur("flush_interval", q.cfg.FlushInterval).
		Bool("block_on_full", q.cfg.BlockOnFull).
		Bool("multi_producer", q.cfg.MultiProducer).
		Msg("starting queue")
	q.flusher.Start()
}

// Offer enqueues payload and reports whether it was accepted
func (q *Queue) Offer(payload []byte) bool {
	return q.TryOffer(context.Background(), payload) == nil
}

// OfferContext is Offer with a context bounding a blocking wait
func (q *Queue) OfferContext(ctx context.Context, payload []byte) bool {
	return q.TryOffer(ctx, payload) == nil
}

// TryOffer enqueues payload. It returns ErrQueueClosed after Close,
// ErrQueueFull when the queue is full and BlockOnFull is off, or the
// context error when a blocking wait is cancelled.
func (q *Queue) TryOffer(ctx context.Context, payload []byte) error {
	q.offered.Add(1)

	err := q.enqueue(ctx, models.NewRecord(payload))
	switch {
	case err == nil:
		q.accepted.Add(1)
		metrics.RecordsOffered.WithLabelValues("accepted").Inc()
	case errors.Is(err, ErrQueueFull):
		q.rejectedFull.Add(1)
		metrics.RecordsOffered.WithLabelValues("full").Inc()
	case errors.Is(err, ErrQueueClosed):
		q.rejectedClosed.Add(1)
		metrics.RecordsOffered.WithLabelValues("closed").Inc()
	default:
		metrics.RecordsOffered.WithLabelValues("cancelled").Inc()
	}
	return err
}

func (q *Queue) enqueue(ctx context.Context, r models.Record) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	q.gate.RLock()
	defer q.gate.RUnlock()

	if q.closed.Load() {
		return ErrQueueClosed
	}
	return q.buf.offer(ctx, r, q.cfg.BlockOnFull)
}

// Flush runs one bounded drain on the calling goroutine: only records
// resident when it starts are consumed.
func (q *Queue) Flush() {
	q.drain(false)
}

// Close rejects later offers, wakes blocked producers, stops the flusher
// and drains every remaining record before returning. Safe to call more
// than once; later calls return once the first has finished.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		q.buf.close()

		// Wait out producers that passed the closed check
		q.gate.Lock()
		q.gate.Unlock()

		q.flusher.Stop()
		q.drain(true)

		q.log.Info().
			Int64("accepted", q.accepted.Load()).
			Int64("batches", q.batches.Load()).
			Msg("queue closed")
	})
}

// Len returns the number of resident records
func (q *Queue) Len() int {
	return q.buf.size()
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return q.buf.capacity()
}

// Closed reports whether Close has been called
func (q *Queue) Closed() bool {
	return q.closed.Load()
}

// Stats returns a snapshot of queue counters
func (q *Queue) Stats() Stats {
	return Stats{
		Offered:         q.offered.Load(),
		Accepted:        q.accepted.Load(),
		RejectedFull:    q.rejectedFull.Load(),
		RejectedClosed:  q.rejectedClosed.Load(),
		Batches:         q.batches.Load(),
		RejectedBatches: q.rejectedBatches.Load(),
		Depth:           q.buf.size(),
		Capacity:        q.buf.capacity(),
	}
}

func (q *Queue) drain(all bool) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	mode := "periodic"
	if all {
		mode = "all"
	}
	metrics.DrainsTotal.WithLabelValues(mode).Inc()

	a := newAssembler(q.cfg.BatchMaxMessages, q.cfg.BatchMaxBytes, all, q.emit)

	limit := q.buf.size()
	for polled := 0; all || polled < limit; polled++ {
		r, ok := q.buf.poll()
		if !ok {
			break
		}
		a.add(r)
	}
	a.flush()

	metrics.QueueDepth.Set(float64(q.buf.size()))
}

func (q *Queue) emit(records []models.Record, totalBytes int) {
	q.batches.Add(1)
	metrics.BatchesEmitted.Inc()
	metrics.BatchRecords.Observe(float64(len(records)))
	metrics.BatchBytes.Observe(float64(totalBytes))

	if !q.deliver(records, totalBytes) {
		q.rejectedBatches.Add(1)
		metrics.BatchesRejected.Inc()
		q.log.Warn().
			Int("records", len(records)).
			Int("bytes", totalBytes).
			Msg("batch consumer reported failure")
	}
}

// deliver calls the BatchFunc, treating a panic as a rejected batch
func (q *Queue) deliver(records []models.Record, totalBytes int) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Int("records", len(records)).
				Msg("batch consumer panic recovered")
			metrics.PanicsRecovered.WithLabelValues("batch_func").Inc()
			ok = false
		}
	}()

	if q.fn == nil {
		return true
	}
	return q.fn(records, totalBytes)
}

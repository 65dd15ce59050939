package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blobship/internal/config"
	"blobship/internal/handlers"
	"blobship/internal/hooks"
	"blobship/internal/logger"
	"blobship/internal/metrics"
	"blobship/internal/middleware"
	"blobship/internal/queue"
	"blobship/internal/storage"
	"blobship/internal/upload"
	"blobship/internal/worker"
)

// Shipper wires the ingestion queue to the uploader and owns the blob
// store, the HTTP ingest endpoint and the stats reporter.
type Shipper struct {
	cfg        *config.Config
	store      storage.BlobStore
	uploader   *upload.Uploader
	queue      *queue.Queue
	hooks      hooks.Hooks
	extraHooks []hooks.Hooks
	stats      *worker.Periodic
	httpServer *http.Server
	wg         sync.WaitGroup

	closeOnce sync.Once
	closeErr  error

	dropped      atomic.Int64
	droppedBytes atomic.Int64
}

// Option configures a Shipper
type Option func(*Shipper)

// WithStore uses store instead of building one from cfg.Store
func WithStore(store storage.BlobStore) Option {
	return func(s *Shipper) { s.store = store }
}

// WithHooks adds hooks notified after the built-in log and metrics hooks
func WithHooks(h ...hooks.Hooks) Option {
	return func(s *Shipper) { s.extraHooks = append(s.extraHooks, h...) }
}

// Stats is a snapshot of shipper activity
type Stats struct {
	Queue        queue.Stats  `json:"queue"`
	Upload       upload.Stats `json:"upload"`
	Dropped      int64        `json:"dropped"`
	DroppedBytes int64        `json:"droppedBytes"`
}

// New constructs a Shipper with given config.
func New(cfg *config.Config, opts ...Option) (*Shipper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Shipper{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		store, err := storage.New(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		s.store = store
	}

	s.hooks = hooks.Multi(append([]hooks.Hooks{hooks.Log(), hooks.Metrics()}, s.extraHooks...)...)

	s.uploader = upload.New(s.store, upload.Config{
		Bucket:             cfg.Upload.Bucket,
		KeyPrefix:          cfg.Upload.KeyPrefix,
		CompressionEnabled: cfg.Upload.CompressionEnabled,
		Codec:              cfg.Upload.Compression,
		MaxRetries:         cfg.Upload.MaxRetries,
		BaseBackoff:        cfg.Upload.BaseBackoff,
		MaxBackoff:         cfg.Upload.MaxBackoff,
		AttemptTimeout:     cfg.Upload.AttemptTimeout,
	}, s.hooks)

	s.queue = queue.New(queue.Config{
		Capacity:         cfg.Queue.Capacity,
		BatchMaxMessages: cfg.Queue.BatchMaxMessages,
		BatchMaxBytes:    cfg.Queue.BatchMaxBytes,
		FlushInterval:    cfg.Queue.FlushInterval,
		BlockOnFull:      cfg.Queue.BlockOnFull,
		MultiProducer:    cfg.Queue.MultiProducer,
	}, s.uploader.HandleBatch)

	s.stats = worker.NewPeriodic("stats_reporter", cfg.StatsInterval, s.reportStats)

	log := logger.WithComponent("shipper")
	log.Info().
		Str("store", cfg.Store.Type).
		Str("bucket", cfg.Upload.Bucket).
		Str("key_prefix", s.uploader.Config().KeyPrefix).
		Bool("compression", cfg.Upload.CompressionEnabled).
		Msg("shipper initialized")

	return s, nil
}

// Start launches the periodic flusher and the stats reporter
func (s *Shipper) Start() {
	s.queue.Start()
	s.stats.Start()
}

// Offer enqueues one record and reports whether it was accepted
func (s *Shipper) Offer(payload []byte) bool {
	return s.TryOffer(context.Background(), payload) == nil
}

// TryOffer enqueues one record. Every rejection is reported to the
// OnDropped hook: with the current depth when the queue is full, with
// hooks.UnknownDepth otherwise.
func (s *Shipper) TryOffer(ctx context.Context, payload []byte) error {
	err := s.queue.TryOffer(ctx, payload)
	if err == nil {
		return nil
	}

	s.dropped.Add(1)
	s.droppedBytes.Add(int64(len(payload)))

	depth := hooks.UnknownDepth
	if errors.Is(err, queue.ErrQueueFull) {
		depth = s.queue.Len()
	}
	s.hooks.OnDropped(len(payload), depth)
	return err
}

// Handler returns the HTTP API: /ingest, /health, /stats and /metrics
func (s *Shipper) Handler() http.Handler {
	mux := http.NewServeMux()

	ingestHandler := handlers.NewIngestHandler(handlers.IngestConfig{
		Queue:       s,
		MaxBodySize: s.cfg.HTTP.MaxBodySize,
	})
	mux.Handle("/ingest", middleware.Chain(
		ingestHandler,
		middleware.RequestID,
		middleware.Recovery,
		middleware.Logging,
		middleware.Metrics,
	))

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Run starts background goroutines and blocks until context cancelled,
// then shuts down within cfg.ShutdownTimeout.
func (s *Shipper) Run(ctx context.Context) error {
	log := logger.WithComponent("shipper")
	log.Info().Msg("shipper starting")

	if s.cfg.HTTP.Addr != "" {
		ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTP.Addr, err)
		}
		s.serve(ln)
	}

	s.Start()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Close(shutdownCtx)
}

// serve runs the HTTP server on ln in the background
func (s *Shipper) serve(ln net.Listener) {
	log := logger.WithComponent("shipper")

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
}

// Close shuts down in order: stop HTTP intake, close the queue (which
// drains and uploads everything), close the store. If ctx expires while
// the queue is draining, in-flight retries are aborted and the remaining
// batches are reported as failed. Safe to call more than once.
func (s *Shipper) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.shutdown(ctx)
	})
	return s.closeErr
}

func (s *Shipper) shutdown(ctx context.Context) error {
	log := logger.WithComponent("shipper")
	log.Info().Msg("initiating graceful shutdown")

	var errs []error

	// 1. Stop accepting new HTTP requests
	if s.httpServer != nil {
		log.Info().Msg("stopping HTTP server")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	s.stats.Stop()

	// 2. Close the queue; the final drain uploads every resident record
	done := make(chan struct{})
	go func() {
		s.queue.Close()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("queue drained")
	case <-ctx.Done():
		log.Warn().Msg("shutdown timeout - aborting uploads")
		s.uploader.Abort()
		<-done
	}

	// 3. Close uploader and store
	s.uploader.Close()
	if err := s.store.Close(); err != nil {
		log.Error().Err(err).Msg("store close error")
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	// 4. Wait for all goroutines
	s.wg.Wait()

	s.logStats("final stats")
	log.Info().Msg("shipper stopped gracefully")
	return errors.Join(errs...)
}

// Stats returns a snapshot of shipper counters
func (s *Shipper) Stats() Stats {
	return Stats{
		Queue:        s.queue.Stats(),
		Upload:       s.uploader.Stats(),
		Dropped:      s.dropped.Load(),
		DroppedBytes: s.droppedBytes.Load(),
	}
}

// reportStats periodically logs statistics
func (s *Shipper) reportStats() {
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	s.logStats("stats")
}

func (s *Shipper) logStats(msg string) {
	st := s.Stats()
	log := logger.WithComponent("shipper")
	log.Info().
		Int64("offered", st.Queue.Offered).
		Int64("accepted", st.Queue.Accepted).
		Int64("dropped", st.Dropped).
		Int64("batches", st.Queue.Batches).
		Int("queue_depth", st.Queue.Depth).
		Int("queue_capacity", st.Queue.Capacity).
		Int64("uploads_succeeded", st.Upload.Succeeded).
		Int64("uploads_failed", st.Upload.Failed).
		Int64("upload_retries", st.Upload.Retried).
		Msg(msg)
}

// healthHandler handles health check requests
func (s *Shipper) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.queue.Closed() {
		http.Error(w, "unhealthy: shutting down", http.StatusServiceUnavailable)
		return
	}

	if hc, ok := s.store.(storage.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (s *Shipper) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.Stats())
}

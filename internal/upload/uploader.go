package upload

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"blobship/internal/hooks"
	"blobship/internal/logger"
	"blobship/internal/metrics"
	"blobship/internal/models"
	"blobship/internal/storage"
)

const (
	minBaseBackoff = 100 * time.Millisecond

	suffixMin = 100000
	suffixMax = 999999
)

// State is a step of the per-batch upload state machine
type State int

const (
	StateEncoding State = iota
	StateCompressing
	StateUploading
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEncoding:
		return "encoding"
	case StateCompressing:
		return "compressing"
	case StateUploading:
		return "uploading"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds upload settings
type Config struct {
	Bucket             string
	KeyPrefix          string
	CompressionEnabled bool
	Codec              string
	MaxRetries         int
	BaseBackoff        time.Duration
	MaxBackoff         time.Duration
	// Deadline for a single PutObject call; 0 disables it
	AttemptTimeout time.Duration
}

// Result describes how one batch ended
type Result struct {
	Key            string
	State          State
	Attempts       int
	RawBytes       int
	DeliveredBytes int
	Err            error
}

// Stats is a snapshot of uploader counters
type Stats struct {
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
}

// Option configures an Uploader
type Option func(*Uploader)

// WithClock overrides the time source used for object keys
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) { u.now = now }
}

// WithRand makes key suffixes and backoff jitter deterministic
func WithRand(r *rand.Rand) Option {
	return func(u *Uploader) {
		var mu sync.Mutex
		u.int64n = func(n int64) int64 {
			mu.Lock()
			defer mu.Unlock()
			return r.Int64N(n)
		}
	}
}

// WithSleep replaces the context-aware backoff sleep
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(u *Uploader) { u.sleep = sleep }
}

// Uploader turns batches into compressed NDJSON objects and writes them to
// a BlobStore, retrying with exponential backoff.
type Uploader struct {
	store storage.BlobStore
	cfg   Config
	codec Codec
	hooks hooks.Hooks
	log   zerolog.Logger

	now    func() time.Time
	int64n func(n int64) int64
	sleep  func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc

	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// New creates an uploader. Out of range settings are clamped rather than
// rejected. An unknown codec name disables compression.
func New(store storage.BlobStore, cfg Config, h hooks.Hooks, opts ...Option) *Uploader {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff < minBaseBackoff {
		cfg.BaseBackoff = minBaseBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	cfg.KeyPrefix = NormalizePrefix(cfg.KeyPrefix)
	if h == nil {
		h = hooks.Noop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	u := &Uploader{
		store:  store,
		cfg:    cfg,
		hooks:  h,
		log:    logger.WithComponent("uploader"),
		now:    time.Now,
		int64n: rand.Int64N,
		sleep:  sleepContext,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.CompressionEnabled {
		codec, err := CodecByName(cfg.Codec)
		if err != nil {
			u.log.Warn().Err(err).Msg("compression disabled")
		} else {
			u.codec = codec
		}
	}

	for _, opt := range opts {
		opt(u)
	}
	return u
}

// HandleBatch uploads one assembled batch on the uploader's lifecycle
// context. It reports whether the batch reached StateSucceeded.
func (u *Uploader) HandleBatch(records []models.Record, totalBytes int) bool {
	res := u.Upload(u.ctx, models.Batch{Records: records, TotalBytes: totalBytes})
	return res.State == StateSucceeded
}

// Upload runs the full state machine for one batch. Every outcome is
// reported through the hooks; the returned Result is informational.
func (u *Uploader) Upload(ctx context.Context, batch models.Batch) Result {
	start := time.Now()

	// Encoding
	raw, skipped := Encode(batch.Records)
	if skipped > 0 {
		metrics.EncodingSkips.Add(float64(skipped))
		u.log.Debug().Int("skipped", skipped).Msg("records skipped during encoding")
	}

	// Compressing
	payload := raw
	var codec Codec
	if u.codec != nil {
		compressed, err := u.codec.Compress(raw)
		if err != nil {
			metrics.CompressionFallbacks.Inc()
			u.log.Debug().Err(err).Str("codec", u.codec.Name()).Msg("compression failed, uploading uncompressed")
		} else {
			payload = compressed
			codec = u.codec
		}
	}

	ext := ""
	meta := storage.Metadata{
		ContentLength: int64(len(payload)),
		ContentType:   ContentType,
	}
	if codec != nil {
		ext = codec.Ext()
		meta.ContentEncoding = codec.Encoding()
	}
	key := ObjectKey(u.cfg.KeyPrefix, u.now(), suffixMin+int(u.int64n(suffixMax-suffixMin)), ext)

	res := Result{Key: key, RawBytes: len(raw), DeliveredBytes: len(payload)}

	// Uploading / Retrying
	var lastErr error
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1

		err := u.put(ctx, key, payload, meta)
		if err == nil {
			res.State = StateSucceeded
			u.succeeded.Add(1)
			metrics.UploadDuration.Observe(time.Since(start).Seconds())
			u.hooks.OnUploadSuccess(key, len(raw), len(payload))
			return res
		}
		lastErr = err

		if attempt >= u.cfg.MaxRetries {
			res.Err = fmt.Errorf("%w (%d attempts): %w", ErrUploadTerminal, res.Attempts, lastErr)
			break
		}

		delay := u.Backoff(attempt)
		u.retried.Add(1)
		u.hooks.OnUploadRetry(key, attempt+1, delay, err)

		if serr := u.sleep(ctx, delay); serr != nil {
			lastErr = fmt.Errorf("%w: %w", ErrRetryInterrupted, serr)
			res.Err = lastErr
			break
		}
	}

	res.State = StateFailed
	u.failed.Add(1)
	metrics.UploadDuration.Observe(time.Since(start).Seconds())
	u.hooks.OnUploadFailure(key, lastErr)
	return res
}

func (u *Uploader) put(ctx context.Context, key string, payload []byte, meta storage.Metadata) error {
	if u.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.AttemptTimeout)
		defer cancel()
	}
	return u.store.PutObject(ctx, u.cfg.Bucket, key, payload, meta)
}

// Backoff returns the jittered delay that follows failed attempt number
// attempt (0-based).
func (u *Uploader) Backoff(attempt int) time.Duration {
	return Backoff(attempt, u.cfg.BaseBackoff, u.cfg.MaxBackoff, u.int64n)
}

// Config returns the effective, clamped configuration
func (u *Uploader) Config() Config {
	return u.cfg
}

// Stats returns a snapshot of the uploader counters
func (u *Uploader) Stats() Stats {
	return Stats{
		Succeeded: u.succeeded.Load(),
		Failed:    u.failed.Load(),
		Retried:   u.retried.Load(),
	}
}

// Abort cancels the lifecycle context: an in-progress backoff sleep ends
// immediately and later batches fail without waiting.
func (u *Uploader) Abort() {
	u.cancel()
}

// Close is Abort; it is safe to call more than once
func (u *Uploader) Close() error {
	u.cancel()
	return nil
}

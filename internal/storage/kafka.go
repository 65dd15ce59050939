package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"blobship/internal/logger"
)

// maxObjectBytes bounds a single object message. Brokers enforce their
// own message.max.bytes on top of this.
const maxObjectBytes = 64 << 20

// messageWriter is the subset of *kafka.Writer used by KafkaStore
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStore publishes each object as one Kafka message: topic is the
// bucket, message key is the object key, metadata travels in headers.
type KafkaStore struct {
	writer  messageWriter
	brokers []string
	closed  atomic.Bool

	objectsSent   atomic.Uint64
	objectsFailed atomic.Uint64
	bytesWritten  atomic.Uint64
}

// KafkaStats holds store counters
type KafkaStats struct {
	ObjectsSent   uint64
	ObjectsFailed uint64
	BytesWritten  uint64
}

// NewKafkaStore creates a store writing to the given brokers
func NewKafkaStore(brokers []string, writeTimeout time.Duration) (*KafkaStore, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{}, // Same key always lands on the same partition
		BatchSize:              1,
		BatchBytes:             maxObjectBytes,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            1, // Retries belong to the uploader
		AllowAutoTopicCreation: true,
		Async:                  false,
	}

	s := newKafkaStore(writer)
	s.brokers = brokers
	return s, nil
}

func newKafkaStore(w messageWriter) *KafkaStore {
	return &KafkaStore{writer: w}
}

// PutObject publishes data synchronously
func (s *KafkaStore) PutObject(ctx context.Context, bucket, key string, data []byte, meta Metadata) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if bucket == "" || key == "" {
		return fmt.Errorf("%w: %q/%q", ErrInvalidKey, bucket, key)
	}

	headers := []kafka.Header{
		{Key: "content-type", Value: []byte(meta.ContentType)},
		{Key: "content-length", Value: []byte(strconv.FormatInt(meta.ContentLength, 10))},
	}
	if meta.ContentEncoding != "" {
		headers = append(headers, kafka.Header{Key: "content-encoding", Value: []byte(meta.ContentEncoding)})
	}

	msg := kafka.Message{
		Topic:   bucket,
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
		Time:    time.Now().UTC(),
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.objectsFailed.Add(1)
		log := logger.WithObjectKey("kafka_store", key)
		log.Debug().
			Err(err).
			Str("topic", bucket).
			Msg("kafka write failed")
		return fmt.Errorf("kafka write %s: %w", key, err)
	}

	s.objectsSent.Add(1)
	s.bytesWritten.Add(uint64(len(data)))
	return nil
}

// HealthCheck dials the first reachable broker
func (s *KafkaStore) HealthCheck(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	var lastErr error
	for _, broker := range s.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr != nil {
		return fmt.Errorf("no kafka broker reachable: %w", lastErr)
	}
	return nil
}

// Stats returns store counters
func (s *KafkaStore) Stats() KafkaStats {
	return KafkaStats{
		ObjectsSent:   s.objectsSent.Load(),
		ObjectsFailed: s.objectsFailed.Load(),
		BytesWritten:  s.bytesWritten.Load(),
	}
}

// Close closes the underlying writer
func (s *KafkaStore) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}
	return s.writer.Close()
}

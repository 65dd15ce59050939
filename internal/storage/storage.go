package storage

import (
	"context"
	"errors"
	"fmt"

	"blobship/internal/config"
)

// Storage errors
var (
	ErrStoreClosed = errors.New("blob store is closed")
	ErrInvalidKey  = errors.New("invalid object key")
)

// Metadata describes an uploaded object
type Metadata struct {
	ContentLength   int64
	ContentType     string
	ContentEncoding string // empty when the blob is not compressed
}

// BlobStore persists whole objects under bucket/key.
// Every error is treated as retryable by the uploader.
type BlobStore interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, meta Metadata) error
	Close() error
}

// HealthChecker is implemented by stores that can report reachability
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// New builds the store selected by cfg.Type
func New(cfg config.StoreConfig) (BlobStore, error) {
	switch cfg.Type {
	case config.StoreFilesystem:
		return NewFileStore(cfg.Root)
	case config.StoreHTTP:
		return NewHTTPStore(HTTPConfig{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			AccessKeySecret: cfg.AccessKeySecret,
			Timeout:         cfg.Timeout,
		})
	case config.StoreKafka:
		return NewKafkaStore(cfg.Brokers, cfg.Timeout)
	case config.StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStore, cfg.Type)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10000, cfg.Queue.Capacity)
	assert.Equal(t, 1000, cfg.Queue.BatchMaxMessages)
	assert.Equal(t, 512*1024, cfg.Queue.BatchMaxBytes)
	assert.Equal(t, 2*time.Second, cfg.Queue.FlushInterval)
	assert.True(t, cfg.Queue.BlockOnFull)
	assert.Equal(t, 5, cfg.Upload.MaxRetries)
	assert.Equal(t, "logs", cfg.Upload.KeyPrefix)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blobship.yaml")
	content := `
logLevel: debug
queue:
  capacity: 64
  batchMaxMessages: 8
  flushInterval: 250ms
  multiProducer: true
upload:
  bucket: audit
  compression: zstd
  maxRetries: 2
store:
  type: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("BLOBSHIP_QUEUE_CAPACITY", "128")
	t.Setenv("BLOBSHIP_UPLOAD_BASEBACKOFF", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 128, cfg.Queue.Capacity)
	assert.Equal(t, 8, cfg.Queue.BatchMaxMessages)
	assert.Equal(t, 512*1024, cfg.Queue.BatchMaxBytes)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.FlushInterval)
	assert.True(t, cfg.Queue.MultiProducer)
	assert.Equal(t, "audit", cfg.Upload.Bucket)
	assert.Equal(t, "zstd", cfg.Upload.Compression)
	assert.Equal(t, 2, cfg.Upload.MaxRetries)
	assert.Equal(t, time.Second, cfg.Upload.BaseBackoff)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"empty bucket", func(c *Config) { c.Upload.Bucket = "" }, ErrEmptyBucket},
		{"bad codec", func(c *Config) { c.Upload.Compression = "brotli" }, ErrBadCodec},
		{"bad codec ignored when disabled", func(c *Config) {
			c.Upload.Compression = "brotli"
			c.Upload.CompressionEnabled = false
		}, nil},
		{"unknown store", func(c *Config) { c.Store.Type = "s3" }, ErrUnknownStore},
		{"http without endpoint", func(c *Config) { c.Store.Type = StoreHTTP }, ErrNoEndpoint},
		{"kafka without brokers", func(c *Config) {
			c.Store.Type = StoreKafka
			c.Store.Brokers = nil
		}, ErrNoBrokers},
		{"filesystem without root", func(c *Config) { c.Store.Root = "" }, ErrNoRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitCSV(" a:9092, ,b:9092 "))
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config errors
var (
	ErrUnknownStore = errors.New("unknown store type")
	ErrEmptyBucket  = errors.New("bucket cannot be empty")
	ErrNoBrokers    = errors.New("kafka store requires at least one broker")
	ErrNoEndpoint   = errors.New("http store requires an endpoint")
	ErrNoRoot       = errors.New("filesystem store requires a root directory")
	ErrBadCodec     = errors.New("unknown compression codec")
)

// EnvPrefix is prepended to every environment override, e.g.
// BLOBSHIP_QUEUE_CAPACITY overrides queue.capacity.
const EnvPrefix = "BLOBSHIP"

// Config holds runtime configuration for the shipper.
type Config struct {
	LogLevel        string        `mapstructure:"logLevel"`
	StatsInterval   time.Duration `mapstructure:"statsInterval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`

	HTTP   HTTPConfig   `mapstructure:"http"`
	Queue  QueueConfig  `mapstructure:"queue"`
	Upload UploadConfig `mapstructure:"upload"`
	Store  StoreConfig  `mapstructure:"store"`
}

// HTTPConfig configures the ingest endpoint
type HTTPConfig struct {
	// Listen address; empty disables the HTTP server
	Addr        string `mapstructure:"addr"`
	MaxBodySize int64  `mapstructure:"maxBodySize"`
}

// QueueConfig configures the ingestion queue and batch thresholds
type QueueConfig struct {
	Capacity         int           `mapstructure:"capacity"`
	BatchMaxMessages int           `mapstructure:"batchMaxMessages"`
	BatchMaxBytes    int           `mapstructure:"batchMaxBytes"`
	FlushInterval    time.Duration `mapstructure:"flushInterval"`
	// Block producers on a full queue instead of dropping
	BlockOnFull bool `mapstructure:"blockOnFull"`
	// Use the lock-free ring buffer instead of the mutex queue
	MultiProducer bool `mapstructure:"multiProducer"`
}

// UploadConfig configures object naming, compression and retry policy
type UploadConfig struct {
	Bucket             string        `mapstructure:"bucket"`
	KeyPrefix          string        `mapstructure:"keyPrefix"`
	CompressionEnabled bool          `mapstructure:"compressionEnabled"`
	Compression        string        `mapstructure:"compression"` // gzip, zstd, lz4, snappy
	MaxRetries         int           `mapstructure:"maxRetries"`
	BaseBackoff        time.Duration `mapstructure:"baseBackoff"`
	MaxBackoff         time.Duration `mapstructure:"maxBackoff"`
	// Per-attempt deadline; 0 means no deadline
	AttemptTimeout time.Duration `mapstructure:"attemptTimeout"`
}

// StoreConfig selects and configures the blob store backend
type StoreConfig struct {
	Type            string        `mapstructure:"type"` // filesystem, http, kafka, memory
	Endpoint        string        `mapstructure:"endpoint"`
	Root            string        `mapstructure:"root"`
	Brokers         []string      `mapstructure:"brokers"`
	AccessKeyID     string        `mapstructure:"accessKeyId"`
	AccessKeySecret string        `mapstructure:"accessKeySecret"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Store types
const (
	StoreFilesystem = "filesystem"
	StoreHTTP       = "http"
	StoreKafka      = "kafka"
	StoreMemory     = "memory"
)

// Codecs lists the supported compression codec names
var Codecs = []string{"gzip", "zstd", "lz4", "snappy"}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		StatsInterval:   30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		HTTP: HTTPConfig{
			Addr:        ":8080",
			MaxBodySize: 10 * 1024 * 1024,
		},
		Queue: QueueConfig{
			Capacity:         10000,
			BatchMaxMessages: 1000,
			BatchMaxBytes:    512 * 1024,
			FlushInterval:    2 * time.Second,
			BlockOnFull:      true,
			MultiProducer:    false,
		},
		Upload: UploadConfig{
			Bucket:             "logs",
			KeyPrefix:          "logs",
			CompressionEnabled: true,
			Compression:        "gzip",
			MaxRetries:         5,
			BaseBackoff:        500 * time.Millisecond,
			MaxBackoff:         10 * time.Second,
		},
		Store: StoreConfig{
			Type:    StoreFilesystem,
			Root:    "./data",
			Brokers: []string{"localhost:9092"},
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and
// BLOBSHIP_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return fromViper(v)
}

// FromViper decodes an already populated viper instance, e.g. one with
// command line flags bound to it.
func FromViper(v *viper.Viper) (*Config, error) {
	return fromViper(v)
}

// SetDefaults registers every key of Default() on v so that env
// overrides resolve for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	setDefaults(v, Default())
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Env overrides for list values arrive as a single CSV string
	if len(cfg.Store.Brokers) == 1 && strings.Contains(cfg.Store.Brokers[0], ",") {
		cfg.Store.Brokers = splitCSV(cfg.Store.Brokers[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("statsInterval", d.StatsInterval)
	v.SetDefault("shutdownTimeout", d.ShutdownTimeout)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.maxBodySize", d.HTTP.MaxBodySize)

	v.SetDefault("queue.capacity", d.Queue.Capacity)
	v.SetDefault("queue.batchMaxMessages", d.Queue.BatchMaxMessages)
	v.SetDefault("queue.batchMaxBytes", d.Queue.BatchMaxBytes)
	v.SetDefault("queue.flushInterval", d.Queue.FlushInterval)
	v.SetDefault("queue.blockOnFull", d.Queue.BlockOnFull)
	v.SetDefault("queue.multiProducer", d.Queue.MultiProducer)

	v.SetDefault("upload.bucket", d.Upload.Bucket)
	v.SetDefault("upload.keyPrefix", d.Upload.KeyPrefix)
	v.SetDefault("upload.compressionEnabled", d.Upload.CompressionEnabled)
	v.SetDefault("upload.compression", d.Upload.Compression)
	v.SetDefault("upload.maxRetries", d.Upload.MaxRetries)
	v.SetDefault("upload.baseBackoff", d.Upload.BaseBackoff)
	v.SetDefault("upload.maxBackoff", d.Upload.MaxBackoff)
	v.SetDefault("upload.attemptTimeout", d.Upload.AttemptTimeout)

	v.SetDefault("store.type", d.Store.Type)
	v.SetDefault("store.endpoint", d.Store.Endpoint)
	v.SetDefault("store.root", d.Store.Root)
	v.SetDefault("store.brokers", d.Store.Brokers)
	v.SetDefault("store.accessKeyId", d.Store.AccessKeyID)
	v.SetDefault("store.accessKeySecret", d.Store.AccessKeySecret)
	v.SetDefault("store.timeout", d.Store.Timeout)
}

// Validate checks the fields that cannot be clamped to a safe value
func (c *Config) Validate() error {
	if c.Upload.Bucket == "" {
		return ErrEmptyBucket
	}

	if c.Upload.CompressionEnabled && !validCodec(c.Upload.Compression) {
		return fmt.Errorf("%w: %q", ErrBadCodec, c.Upload.Compression)
	}

	switch c.Store.Type {
	case StoreFilesystem:
		if c.Store.Root == "" {
			return ErrNoRoot
		}
	case StoreHTTP:
		if c.Store.Endpoint == "" {
			return ErrNoEndpoint
		}
	case StoreKafka:
		if len(c.Store.Brokers) == 0 {
			return ErrNoBrokers
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store.Type)
	}

	return nil
}

func validCodec(name string) bool {
	for _, c := range Codecs {
		if c == name {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

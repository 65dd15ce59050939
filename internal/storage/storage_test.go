package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blobship/internal/config"
)

func ndjsonMeta(n int) Metadata {
	return Metadata{
		ContentLength: int64(n),
		ContentType:   "application/x-ndjson; charset=utf-8",
	}
}

func TestFileStore_PutObject(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)
	defer store.Close()

	data := []byte("{\"a\":1}\n{\"b\":2}\n")
	key := "logs/2024/03/05/07/0812345-654321.ndjson"

	require.NoError(t, store.PutObject(context.Background(), "bucket", key, data, ndjsonMeta(len(data))))

	path, err := store.Path("bucket", key)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entries, err := os.ReadDir(root + "/bucket/logs/2024/03/05/07")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = store.PutObject(context.Background(), "bucket", "../../etc/passwd", []byte("x"), ndjsonMeta(1))
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = store.PutObject(context.Background(), "", "k", []byte("x"), ndjsonMeta(1))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFileStore_RejectsDotBuckets(t *testing.T) {
	parent := t.TempDir()
	store, err := NewFileStore(filepath.Join(parent, "store"))
	require.NoError(t, err)

	for _, bucket := range []string{"..", ".", `a\b`} {
		err = store.PutObject(context.Background(), bucket, "escaped", []byte("x"), ndjsonMeta(1))
		assert.ErrorIs(t, err, ErrInvalidKey, "bucket %q", bucket)

		_, err = store.Path(bucket, "escaped")
		assert.ErrorIs(t, err, ErrInvalidKey, "bucket %q", bucket)
	}

	_, err = os.Stat(filepath.Join(parent, "escaped"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_Closed(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.PutObject(context.Background(), "bucket", "k", []byte("x"), ndjsonMeta(1))
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestFileStore_HealthCheck(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)

	var hc HealthChecker = s
	assert.NoError(t, hc.HealthCheck(context.Background()))

	require.NoError(t, os.RemoveAll(root))
	assert.Error(t, hc.HealthCheck(context.Background()))

	require.NoError(t, s.Close())
	assert.ErrorIs(t, hc.HealthCheck(context.Background()), ErrStoreClosed)
}

func TestMemoryStore_FailNext(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("boom")
	store.FailNext(2, boom)

	ctx := context.Background()
	assert.ErrorIs(t, store.PutObject(ctx, "b", "k1", []byte("1"), ndjsonMeta(1)), boom)
	assert.ErrorIs(t, store.PutObject(ctx, "b", "k2", []byte("2"), ndjsonMeta(1)), boom)
	assert.NoError(t, store.PutObject(ctx, "b", "k3", []byte("3"), ndjsonMeta(1)))

	objects := store.Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, "k3", objects[0].Key)
	assert.Equal(t, 3, store.Puts())
}

func TestHTTPStore_PutObject(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotBody []byte
		gotHdr  http.Header
		gotMeth string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotMeth = r.Method
		gotPath = r.URL.Path
		gotHdr = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store, err := NewHTTPStore(HTTPConfig{
		Endpoint:        server.URL + "/",
		AccessKeyID:     "id",
		AccessKeySecret: "secret",
		Timeout:         2 * time.Second,
	})
	require.NoError(t, err)
	defer store.Close()

	data := []byte("compressed-bytes")
	meta := ndjsonMeta(len(data))
	meta.ContentEncoding = "gzip"

	err = store.PutObject(context.Background(), "audit", "logs/2024/01/02/03/0405006-123456.ndjson.gz", data, meta)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, gotMeth)
	assert.Equal(t, "/audit/logs/2024/01/02/03/0405006-123456.ndjson.gz", gotPath)
	assert.Equal(t, data, gotBody)
	assert.Equal(t, "gzip", gotHdr.Get("Content-Encoding"))
	assert.Equal(t, "application/x-ndjson; charset=utf-8", gotHdr.Get("Content-Type"))
	assert.Equal(t, "16", gotHdr.Get("Content-Length"))
	assert.Equal(t, "Basic aWQ6c2VjcmV0", gotHdr.Get("Authorization"))
}

func TestHTTPStore_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	store, err := NewHTTPStore(HTTPConfig{Endpoint: server.URL})
	require.NoError(t, err)

	err = store.PutObject(context.Background(), "b", "k", []byte("x"), ndjsonMeta(1))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "slow down", statusErr.Body)
}

func TestHTTPStore_CancelledContext(t *testing.T) {
	store, err := NewHTTPStore(HTTPConfig{Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.PutObject(ctx, "b", "k", []byte("x"), ndjsonMeta(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHTTPStore_InvalidEndpoint(t *testing.T) {
	_, err := NewHTTPStore(HTTPConfig{Endpoint: "not a url"})
	assert.Error(t, err)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaStore_PutObject(t *testing.T) {
	w := &fakeWriter{}
	store := newKafkaStore(w)

	meta := ndjsonMeta(4)
	meta.ContentEncoding = "zstd"
	require.NoError(t, store.PutObject(context.Background(), "logs-topic", "a/b.ndjson.zst", []byte("blob"), meta))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "logs-topic", msg.Topic)
	assert.Equal(t, "a/b.ndjson.zst", string(msg.Key))
	assert.Equal(t, "blob", string(msg.Value))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "zstd", headers["content-encoding"])
	assert.Equal(t, "4", headers["content-length"])

	stats := store.Stats()
	assert.Equal(t, uint64(1), stats.ObjectsSent)
	assert.Equal(t, uint64(4), stats.BytesWritten)
}

func TestKafkaStore_ErrorsAndClose(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	store := newKafkaStore(w)

	err := store.PutObject(context.Background(), "t", "k", []byte("x"), ndjsonMeta(1))
	assert.ErrorIs(t, err, w.err)
	assert.Equal(t, uint64(1), store.Stats().ObjectsFailed)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	assert.True(t, w.closed)

	err = store.PutObject(context.Background(), "t", "k", []byte("x"), ndjsonMeta(1))
	assert.ErrorIs(t, err, ErrStoreClosed)
}

// skipIfNoKafka skips the test if Kafka is not available
func skipIfNoKafka(t *testing.T) {
	if os.Getenv("KAFKA_TEST") != "1" {
		t.Skip("Skipping Kafka integration test. Set KAFKA_TEST=1 to run.")
	}
}

func TestKafkaStore_Integration(t *testing.T) {
	skipIfNoKafka(t)

	store, err := NewKafkaStore(config.Default().Store.Brokers, 10*time.Second)
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = store.PutObject(ctx, "blobship-test", "it/object.ndjson", []byte("line\n"), ndjsonMeta(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), store.Stats().ObjectsSent)
}

func TestNew_SelectsBackend(t *testing.T) {
	cfg := config.Default().Store

	cfg.Type = config.StoreMemory
	s, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	cfg.Type = config.StoreFilesystem
	cfg.Root = t.TempDir()
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	cfg.Type = config.StoreHTTP
	cfg.Endpoint = "http://localhost:9000"
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &HTTPStore{}, s)

	cfg.Type = config.StoreKafka
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &KafkaStore{}, s)
	s.Close()

	cfg.Type = "gcs"
	_, err = New(cfg)
	assert.ErrorIs(t, err, config.ErrUnknownStore)
}

package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blobship/internal/config"
	"blobship/internal/hooks"
	"blobship/internal/storage"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = ""
	cfg.Store.Type = config.StoreMemory
	cfg.Queue.Capacity = 100
	cfg.Queue.BatchMaxMessages = 10
	cfg.Queue.FlushInterval = time.Hour
	cfg.StatsInterval = time.Hour
	cfg.Upload.BaseBackoff = 100 * time.Millisecond
	cfg.Upload.MaxBackoff = 100 * time.Millisecond
	return cfg
}

type dropLog struct {
	mu     sync.Mutex
	depths []int
	bytes  []int
}

func (d *dropLog) hooks() hooks.Hooks {
	return hooks.Funcs{Dropped: func(droppedBytes, queueDepth int) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.depths = append(d.depths, queueDepth)
		d.bytes = append(d.bytes, droppedBytes)
	}}
}

func gunzipLines(t *testing.T, data []byte) []string {
	t.Helper()
	r, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.Bucket = ""
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrEmptyBucket)
}

func TestShipper_CloseUploadsEverything(t *testing.T) {
	store := storage.NewMemoryStore()
	s, err := New(testConfig(), WithStore(store))
	require.NoError(t, err)
	s.Start()

	var want []string
	for i := 0; i < 25; i++ {
		line := `{"n":` + strings.Repeat("1", i+1) + `}`
		want = append(want, line)
		require.True(t, s.Offer([]byte(line)))
	}

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	var got []string
	objs := store.Objects()
	require.Len(t, objs, 3)
	for _, o := range objs {
		assert.Equal(t, "logs", o.Bucket)
		assert.True(t, strings.HasPrefix(o.Key, "logs/"))
		assert.True(t, strings.HasSuffix(o.Key, ".ndjson.gz"))
		got = append(got, gunzipLines(t, o.Data)...)
	}
	assert.Equal(t, want, got)

	st := s.Stats()
	assert.Equal(t, int64(25), st.Queue.Accepted)
	assert.Equal(t, int64(3), st.Upload.Succeeded)
	assert.Zero(t, st.Dropped)
}

func TestShipper_DropHooks(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.Capacity = 1
	cfg.Queue.BlockOnFull = false

	drops := &dropLog{}
	s, err := New(cfg, WithStore(storage.NewMemoryStore()), WithHooks(drops.hooks()))
	require.NoError(t, err)

	assert.True(t, s.Offer([]byte("a")))
	assert.False(t, s.Offer([]byte("bb")))

	require.NoError(t, s.Close(context.Background()))
	assert.False(t, s.Offer([]byte("ccc")))

	assert.Equal(t, []int{1, hooks.UnknownDepth}, drops.depths)
	assert.Equal(t, []int{2, 3}, drops.bytes)
	assert.Equal(t, int64(2), s.Stats().Dropped)
	assert.Equal(t, int64(5), s.Stats().DroppedBytes)
}

func TestShipper_ShutdownTimeoutAbortsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxRetries = 5
	cfg.Upload.BaseBackoff = time.Hour
	cfg.Upload.MaxBackoff = time.Hour

	store := storage.NewMemoryStore()
	store.FailNext(100, errors.New("store down"))

	var failures []error
	var mu sync.Mutex
	s, err := New(cfg, WithStore(store), WithHooks(hooks.Funcs{
		Failure: func(key string, cause error) {
			mu.Lock()
			defer mu.Unlock()
			failures = append(failures, cause)
		},
	}))
	require.NoError(t, err)
	require.True(t, s.Offer([]byte("stuck")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, s.Close(ctx))
	assert.Less(t, time.Since(start), 5*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	assert.Equal(t, int64(1), s.Stats().Upload.Failed)
	assert.Equal(t, 1, store.Puts())
}

func TestShipper_HTTP(t *testing.T) {
	store := storage.NewMemoryStore()
	s, err := New(testConfig(), WithStore(store))
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/ingest", "application/x-ndjson", strings.NewReader("one\ntwo\n"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	var st Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, int64(2), st.Queue.Accepted)
	assert.Equal(t, 2, st.Queue.Depth)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Close(context.Background()))
	require.Len(t, store.Objects(), 1)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/ingest", "", strings.NewReader("late\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestShipper_Run(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Queue.FlushInterval = 5 * time.Millisecond

	store := storage.NewMemoryStore()
	s, err := New(cfg, WithStore(store))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Offer([]byte("periodic")) }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return len(store.Objects()) == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

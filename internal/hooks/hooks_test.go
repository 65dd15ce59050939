package hooks

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"blobship/internal/metrics"
)

type recorder struct {
	events []string
}

func (r *recorder) OnUploadSuccess(key string, rawBytes, deliveredBytes int) {
	r.events = append(r.events, "success:"+key)
}

func (r *recorder) OnUploadRetry(key string, attempt int, backoff time.Duration, cause error) {
	r.events = append(r.events, "retry:"+key)
}

func (r *recorder) OnUploadFailure(key string, cause error) {
	r.events = append(r.events, "failure:"+key)
}

func (r *recorder) OnDropped(droppedBytes int, queueDepth int) {
	r.events = append(r.events, "dropped")
}

func TestMulti_FansOutInOrder(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	h := Multi(a, nil, b)

	h.OnUploadRetry("k", 1, time.Second, errors.New("boom"))
	h.OnUploadSuccess("k", 10, 5)
	h.OnUploadFailure("k2", errors.New("boom"))
	h.OnDropped(3, UnknownDepth)

	want := []string{"retry:k", "success:k", "failure:k2", "dropped"}
	assert.Equal(t, want, a.events)
	assert.Equal(t, want, b.events)
}

func TestFuncs_NilFieldsSkipped(t *testing.T) {
	var got []int
	h := Funcs{Dropped: func(n, depth int) { got = append(got, n, depth) }}

	h.OnUploadSuccess("k", 1, 1)
	h.OnUploadRetry("k", 1, time.Millisecond, nil)
	h.OnUploadFailure("k", nil)
	h.OnDropped(7, 42)

	assert.Equal(t, []int{7, 42}, got)
}

func TestNoop(t *testing.T) {
	h := Noop()
	assert.NotPanics(t, func() {
		h.OnUploadSuccess("k", 1, 1)
		h.OnUploadRetry("k", 1, time.Millisecond, nil)
		h.OnUploadFailure("k", nil)
		h.OnDropped(1, 1)
	})
}

func TestLogTo_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	h := LogTo(zerolog.New(&buf))

	h.OnUploadFailure("logs/2024/01/01/00/0000000-123456.ndjson", errors.New("store down"))

	out := buf.String()
	assert.Contains(t, out, `"object_key":"logs/2024/01/01/00/0000000-123456.ndjson"`)
	assert.Contains(t, out, `"error":"store down"`)
	assert.Contains(t, out, `"level":"error"`)
}

func TestMetrics_Counters(t *testing.T) {
	h := Metrics()

	before := testutil.ToFloat64(metrics.UploadRetries)
	h.OnUploadRetry("k", 1, time.Millisecond, nil)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.UploadRetries))

	beforeFailed := testutil.ToFloat64(metrics.UploadsTotal.WithLabelValues("failed"))
	h.OnUploadFailure("k", nil)
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(metrics.UploadsTotal.WithLabelValues("failed")))

	beforeDropped := testutil.ToFloat64(metrics.DroppedBytes)
	h.OnDropped(128, UnknownDepth)
	assert.Equal(t, beforeDropped+128, testutil.ToFloat64(metrics.DroppedBytes))
}

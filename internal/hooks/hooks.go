// Package hooks defines the observer notified as batches move through the
// upload pipeline and as records are dropped at the ingestion queue.
package hooks

import (
	"time"
)

// UnknownDepth is passed to OnDropped when the queue depth is not known.
const UnknownDepth = -1

// Hooks receives pipeline events. Implementations are called on the
// queue's consumer goroutine (upload events) or on producer goroutines
// (OnDropped) and must not block for long.
type Hooks interface {
	OnUploadSuccess(key string, rawBytes, deliveredBytes int)
	OnUploadRetry(key string, attempt int, backoff time.Duration, cause error)
	OnUploadFailure(key string, cause error)
	OnDropped(droppedBytes int, queueDepth int)
}

// Noop returns Hooks that ignore every event
func Noop() Hooks {
	return noop{}
}

type noop struct{}

func (noop) OnUploadSuccess(string, int, int)                {}
func (noop) OnUploadRetry(string, int, time.Duration, error) {}
func (noop) OnUploadFailure(string, error)                   {}
func (noop) OnDropped(int, int)                              {}

// Funcs adapts optional callbacks to Hooks; nil fields are skipped.
type Funcs struct {
	Success func(key string, rawBytes, deliveredBytes int)
	Retry   func(key string, attempt int, backoff time.Duration, cause error)
	Failure func(key string, cause error)
	Dropped func(droppedBytes int, queueDepth int)
}

func (f Funcs) OnUploadSuccess(key string, rawBytes, deliveredBytes int) {
	if f.Success != nil {
		f.Success(key, rawBytes, deliveredBytes)
	}
}

func (f Funcs) OnUploadRetry(key string, attempt int, backoff time.Duration, cause error) {
	if f.Retry != nil {
		f.Retry(key, attempt, backoff, cause)
	}
}

func (f Funcs) OnUploadFailure(key string, cause error) {
	if f.Failure != nil {
		f.Failure(key, cause)
	}
}

func (f Funcs) OnDropped(droppedBytes int, queueDepth int) {
	if f.Dropped != nil {
		f.Dropped(droppedBytes, queueDepth)
	}
}

// Multi fans every event out to each of hs in order. Nil entries are ignored.
func Multi(hs ...Hooks) Hooks {
	out := make(multi, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

type multi []Hooks

func (m multi) OnUploadSuccess(key string, rawBytes, deliveredBytes int) {
	for _, h := range m {
		h.OnUploadSuccess(key, rawBytes, deliveredBytes)
	}
}

func (m multi) OnUploadRetry(key string, attempt int, backoff time.Duration, cause error) {
	for _, h := range m {
		h.OnUploadRetry(key, attempt, backoff, cause)
	}
}

func (m multi) OnUploadFailure(key string, cause error) {
	for _, h := range m {
		h.OnUploadFailure(key, cause)
	}
}

func (m multi) OnDropped(droppedBytes int, queueDepth int) {
	for _, h := range m {
		h.OnDropped(droppedBytes, queueDepth)
	}
}

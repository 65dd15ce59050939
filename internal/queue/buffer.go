package queue

import (
	"context"
	"sync"

	"blobship/internal/models"
)

// buffer is the bounded FIFO behind a Queue. offer may be called from any
// goroutine; poll only from the single drain holder.
type buffer interface {
	// offer enqueues r. With block set it waits for space until the buffer
	// closes or ctx is done. Returns ErrQueueFull, ErrQueueClosed or ctx.Err().
	offer(ctx context.Context, r models.Record, block bool) error
	// poll removes the oldest completed record
	poll() (models.Record, bool)
	size() int
	capacity() int
	// close rejects later offers and wakes blocked producers. Records
	// already enqueued remain pollable.
	close()
}

// lockBuffer is a mutex guarded ring with a not-full condition
type lockBuffer struct {
	mu      sync.Mutex
	notFull *sync.Cond
	items   []models.Record
	head    int
	count   int
	closed  bool
}

func newLockBuffer(capacity int) *lockBuffer {
	b := &lockBuffer{items: make([]models.Record, capacity)}
	b.notFull = sync.NewCond(&b.mu)
	return b
}

func (b *lockBuffer) offer(ctx context.Context, r models.Record, block bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrQueueClosed
	}

	if b.count == len(b.items) {
		if !block {
			return ErrQueueFull
		}

		stop := context.AfterFunc(ctx, func() {
			b.mu.Lock()
			b.notFull.Broadcast()
			b.mu.Unlock()
		})
		defer stop()

		for b.count == len(b.items) && !b.closed {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.notFull.Wait()
		}
		if b.closed {
			return ErrQueueClosed
		}
	}

	b.items[(b.head+b.count)%len(b.items)] = r
	b.count++
	return nil
}

func (b *lockBuffer) poll() (models.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return models.Record{}, false
	}

	r := b.items[b.head]
	b.items[b.head] = models.Record{}
	b.head = (b.head + 1) % len(b.items)
	b.count--

	// Waiters whose ctx was cancelled return without taking the slot,
	// so every waiter has to re-check.
	b.notFull.Broadcast()
	return r, true
}

func (b *lockBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *lockBuffer) capacity() int {
	return len(b.items)
}

func (b *lockBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notFull.Broadcast()
}

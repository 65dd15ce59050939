package queue

import (
	"context"
	"sync/atomic"

	"blobship/internal/models"
)

// ringBuffer is a bounded lock-free multi-producer, single-consumer ring.
//
// Each slot carries a sequence number. A slot at position pos is free for
// a producer when seq == pos and holds a completed record when
// seq == pos+1. Producers claim positions by CAS on tail; the consumer
// releases a slot by setting seq = pos+len(slots). Records are polled
// strictly in claim order.
//
// The ring always has at least two slots: with one, a completed record
// (pos+1) and a released slot (pos+len) share a sequence number. limit is
// the logical capacity and is enforced against head separately.
type ringBuffer struct {
	slots []ringSlot
	cap   uint64
	limit uint64

	tail atomic.Uint64 // next position to claim
	head atomic.Uint64 // next position to poll, written by the consumer only

	closed  atomic.Bool
	waiters atomic.Int64
	wake    atomic.Pointer[chan struct{}]
}

type ringSlot struct {
	seq atomic.Uint64
	rec models.Record
}

const minRingSlots = 2

func newRingBuffer(capacity int) *ringBuffer {
	n := max(capacity, minRingSlots)
	b := &ringBuffer{
		slots: make([]ringSlot, n),
		cap:   uint64(n),
		limit: uint64(capacity),
	}
	for i := range b.slots {
		b.slots[i].seq.Store(uint64(i))
	}
	ch := make(chan struct{})
	b.wake.Store(&ch)
	return b
}

func (b *ringBuffer) offer(ctx context.Context, r models.Record, block bool) error {
	for {
		if b.closed.Load() {
			return ErrQueueClosed
		}

		pos := b.tail.Load()
		s := &b.slots[pos%b.cap]
		seq := s.seq.Load()

		dif := int64(seq) - int64(pos)
		if dif == 0 && !b.underLimit(pos) {
			dif = -1
		}

		switch {
		case dif == 0:
			if b.tail.CompareAndSwap(pos, pos+1) {
				s.rec = r
				s.seq.Store(pos + 1)
				return nil
			}
		case dif < 0:
			// Slot still holds an older record, or limit records are queued: full
			if !block {
				return ErrQueueFull
			}
			if err := b.waitNotFull(ctx, pos); err != nil {
				return err
			}
		}
		// dif > 0: another producer claimed pos, reload tail
	}
}

// waitNotFull parks until the consumer frees a slot, the ring closes or
// ctx is done.
func (b *ringBuffer) waitNotFull(ctx context.Context, pos uint64) error {
	b.waiters.Add(1)
	defer b.waiters.Add(-1)

	ch := *b.wake.Load()

	// Re-check after registering so a release between the first check
	// and the load above is not missed.
	seq := b.slots[pos%b.cap].seq.Load()
	if b.closed.Load() || b.tail.Load() != pos {
		return nil
	}
	if int64(seq)-int64(pos) >= 0 && b.underLimit(pos) {
		return nil
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// underLimit reports whether claiming pos keeps at most limit records
// queued. A stale pos may already be behind head.
func (b *ringBuffer) underLimit(pos uint64) bool {
	return int64(pos-b.head.Load()) < int64(b.limit)
}

func (b *ringBuffer) poll() (models.Record, bool) {
	pos := b.head.Load()
	s := &b.slots[pos%b.cap]
	if s.seq.Load() != pos+1 {
		// Empty, or the producer that claimed pos is still writing
		return models.Record{}, false
	}

	r := s.rec
	s.rec = models.Record{}
	s.seq.Store(pos + b.cap)
	b.head.Store(pos + 1)

	if b.waiters.Load() > 0 {
		b.signal()
	}
	return r, true
}

// signal wakes every parked producer
func (b *ringBuffer) signal() {
	next := make(chan struct{})
	old := b.wake.Swap(&next)
	close(*old)
}

func (b *ringBuffer) size() int {
	head := b.head.Load()
	tail := b.tail.Load()
	n := int(tail - head)
	if n > int(b.limit) {
		n = int(b.limit)
	}
	return n
}

func (b *ringBuffer) capacity() int {
	return int(b.limit)
}

func (b *ringBuffer) close() {
	if b.closed.Swap(true) {
		return
	}
	b.signal()
}

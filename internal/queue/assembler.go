package queue

import (
	"blobship/internal/models"
)

// assembler groups polled records into batches bounded by message count
// and payload bytes. One assembler serves exactly one drain.
type assembler struct {
	maxMessages int
	maxBytes    int
	// drainAll skips the eager flush after append; only the pre-append
	// overflow check splits batches.
	drainAll bool
	emit     func(records []models.Record, totalBytes int)

	buf   []models.Record
	bytes int
}

func newAssembler(maxMessages, maxBytes int, drainAll bool, emit func([]models.Record, int)) *assembler {
	return &assembler{
		maxMessages: maxMessages,
		maxBytes:    maxBytes,
		drainAll:    drainAll,
		emit:        emit,
	}
}

func (a *assembler) add(r models.Record) {
	s := r.Size()

	if len(a.buf) > 0 && (len(a.buf)+1 > a.maxMessages || a.bytes+s > a.maxBytes) {
		a.flush()
	}

	a.buf = append(a.buf, r)
	a.bytes += s

	if !a.drainAll && (len(a.buf) >= a.maxMessages || a.bytes >= a.maxBytes) {
		a.flush()
	}
}

// flush emits the pending batch, if any. The emitted slice is never
// touched again.
func (a *assembler) flush() {
	if len(a.buf) == 0 {
		return
	}
	records, total := a.buf, a.bytes
	a.buf = nil
	a.bytes = 0
	a.emit(records, total)
}

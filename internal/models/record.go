package models

import (
	"time"
)

// Record is a single log line accepted by the ingestion queue.
type Record struct {
	// Raw serialized log line, without trailing newline
	Payload []byte

	// Time the record was accepted by the queue
	EnqueuedAt time.Time
}

// NewRecord wraps a payload with the current UTC time
func NewRecord(payload []byte) Record {
	return Record{
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Size returns the payload length in bytes
func (r Record) Size() int {
	return len(r.Payload)
}

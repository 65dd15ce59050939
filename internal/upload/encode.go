package upload

import (
	"bytes"

	"blobship/internal/models"
)

// ContentType of every uploaded object
const ContentType = "application/x-ndjson; charset=utf-8"

// Encode concatenates each record's payload followed by '\n', in batch
// order. Records with a nil payload carry nothing to frame and are
// skipped; the count of skipped records is returned.
func Encode(records []models.Record) (blob []byte, skipped int) {
	size := 0
	for _, r := range records {
		size += r.Size() + 1
	}

	buf := bytes.NewBuffer(make([]byte, 0, max(256, size)))
	for _, r := range records {
		if r.Payload == nil {
			skipped++
			continue
		}
		buf.Write(r.Payload)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), skipped
}

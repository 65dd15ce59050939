package models

// Batch is an ordered group of records shipped as one object.
// A batch is never modified after the assembler emits it.
type Batch struct {
	Records    []Record
	TotalBytes int
}

// NewBatch builds a batch over records, computing TotalBytes
func NewBatch(records []Record) Batch {
	total := 0
	for _, r := range records {
		total += r.Size()
	}
	return Batch{Records: records, TotalBytes: total}
}

// Len returns the number of records in the batch
func (b Batch) Len() int {
	return len(b.Records)
}

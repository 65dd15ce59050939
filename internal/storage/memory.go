package storage

import (
	"context"
	"sync"
)

// Object is a stored blob with its metadata
type Object struct {
	Bucket string
	Key    string
	Data   []byte
	Meta   Metadata
}

// MemoryStore keeps objects in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects []Object
	puts    int
	failN   int
	failErr error
	closed  bool
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailNext makes the next n PutObject calls return err
func (s *MemoryStore) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failN = n
	s.failErr = err
}

func (s *MemoryStore) PutObject(ctx context.Context, bucket, key string, data []byte, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts++
	if s.closed {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failN > 0 {
		s.failN--
		return s.failErr
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects = append(s.objects, Object{Bucket: bucket, Key: key, Data: cp, Meta: meta})
	return nil
}

// Objects returns stored objects in upload order
func (s *MemoryStore) Objects() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Object, len(s.objects))
	copy(out, s.objects)
	return out
}

// Puts returns the number of PutObject calls, failed ones included
func (s *MemoryStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

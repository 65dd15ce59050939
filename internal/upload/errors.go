package upload

import "errors"

// Upload errors
var (
	// ErrUploadTerminal wraps the last attempt error once retries are exhausted
	ErrUploadTerminal = errors.New("upload failed after all retries")
	// ErrRetryInterrupted wraps the context error that cut a backoff sleep short
	ErrRetryInterrupted = errors.New("upload retry interrupted")
)

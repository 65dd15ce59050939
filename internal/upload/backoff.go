package upload

import (
	"context"
	"time"
)

// Backoff returns the delay before retry number attempt+1 (attempt is
// 0-based): min(maxDelay, base*2^attempt) plus jitter drawn uniformly from
// [0, that/3], capped again at maxDelay. jitter(n) must return a value in [0, n).
func Backoff(attempt int, base, maxDelay time.Duration, jitter func(n int64) int64) time.Duration {
	exp := maxDelay
	if attempt < 62 && base <= maxDelay>>uint(attempt) {
		exp = base << uint(attempt)
	}
	if exp > maxDelay {
		exp = maxDelay
	}

	delay := exp + time.Duration(jitter(int64(exp/3)+1))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// sleepContext blocks for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

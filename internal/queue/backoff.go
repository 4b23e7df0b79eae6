package queue

import (
	"math/rand"
	"time"
)

// RetryDelay computes the exponential backoff delay before the given retry
// attempt (1-based), with up to one base interval of jitter to spread
// simultaneous retries apart.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base * (1 << (attempt - 1))
	jitter := time.Duration(rand.Int63n(int64(base)))
	return delay + jitter
}

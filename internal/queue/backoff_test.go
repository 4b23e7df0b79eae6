package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayGrowsExponentially(t *testing.T) {
	t.Parallel()

	base := 2 * time.Second

	for attempt := 1; attempt <= 3; attempt++ {
		delay := RetryDelay(base, attempt)
		expected := base * (1 << (attempt - 1))

		// Jitter adds at most one base interval.
		assert.GreaterOrEqual(t, delay, expected,
			"attempt %d delay should be at least the exponential floor", attempt)
		assert.Less(t, delay, expected+base,
			"attempt %d delay jitter should stay under one base interval", attempt)
	}
}

func TestRetryDelayDefendsAgainstBadInputs(t *testing.T) {
	t.Parallel()

	assert.Positive(t, RetryDelay(0, 1))
	assert.Positive(t, RetryDelay(time.Second, 0))
	assert.Positive(t, RetryDelay(time.Second, -5))
}

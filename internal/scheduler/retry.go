package scheduler

import (
	"strings"
	"time"
)

// retryableKeywords is the fixed vocabulary of transient-failure signatures.
// Classification is a lowercase substring match against the error text.
var retryableKeywords = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"etimedout",
	"econnreset",
	"connection reset",
	"connection refused",
	"rate limit",
	"too many requests",
	"quota",
}

// IsRetryable reports whether an execution error is transient enough to
// spend the retry budget on. Everything not matching the keyword set is
// terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range retryableKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

const maxRetryBackoff = 5 * time.Minute

// RetryBackoff returns the delay before the single retry: the original delay,
// capped at five minutes. A reminder scheduled 30 seconds out retries in 30
// seconds; one scheduled a week out retries in five minutes.
func RetryBackoff(originalDelay time.Duration) time.Duration {
	if originalDelay <= 0 {
		return time.Second
	}
	if originalDelay > maxRetryBackoff {
		return maxRetryBackoff
	}
	return originalDelay
}

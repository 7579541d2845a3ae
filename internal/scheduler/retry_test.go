package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestIsRetryable(t *testing.T) {
	retryable := []string{
		"dial tcp 10.0.0.1:443: i/o timeout",
		"call timed out after 30s",
		"context deadline exceeded",
		"read: ETIMEDOUT",
		"recv: ECONNRESET",
		"connection reset by peer",
		"dial tcp: connection refused",
		"gateway rate limit exceeded (status 429)",
		"429 Too Many Requests",
		"monthly quota exhausted",
	}
	for _, msg := range retryable {
		if !IsRetryable(errors.New(msg)) {
			t.Errorf("IsRetryable(%q) = false, want true", msg)
		}
	}

	terminal := []string{
		"invalid phone number",
		"unauthorized",
		"payload rejected: message too long",
		"internal server error",
	}
	for _, msg := range terminal {
		if IsRetryable(errors.New(msg)) {
			t.Errorf("IsRetryable(%q) = true, want false", msg)
		}
	}

	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true, want false")
	}
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		name     string
		original time.Duration
		want     time.Duration
	}{
		{"short delay retries after the same delay", 30 * time.Second, 30 * time.Second},
		{"exactly the cap", 5 * time.Minute, 5 * time.Minute},
		{"long delay is capped", 24 * time.Hour, 5 * time.Minute},
		{"zero falls back to a second", 0, time.Second},
		{"negative falls back to a second", -time.Minute, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryBackoff(tt.original); got != tt.want {
				t.Errorf("RetryBackoff(%v) = %v, want %v", tt.original, got, tt.want)
			}
		})
	}
}

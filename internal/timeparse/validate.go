package timeparse

import (
	"errors"
	"fmt"
	"time"
)

// ErrNonPositiveDelay rejects delays that are zero or negative.
var ErrNonPositiveDelay = errors.New("delay must be greater than 0")

// ValidateDelay is the single policy gate between "parseable" and
// "acceptable to schedule". It is deliberately separate from the parser so
// the policy maximum can change without touching format logic. Returns nil
// iff 0 < d <= maxDays.
func ValidateDelay(d time.Duration, maxDays int) error {
	if d <= 0 {
		return ErrNonPositiveDelay
	}
	if d > time.Duration(maxDays)*24*time.Hour {
		return fmt.Errorf("delay cannot exceed %d days", maxDays)
	}
	return nil
}

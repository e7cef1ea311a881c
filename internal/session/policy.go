package session

import (
	"fmt"
	"time"
)

// BackoffPolicy bounds the acquisition retry loop. The wait before retry n
// (n >= 1) grows linearly: BaseDelay * (1 + Multiplier*(n-1)).
type BackoffPolicy struct {
	Attempts   int
	BaseDelay  time.Duration
	Multiplier float64
}

// DefaultPolicy retries three times, waiting 5s, 10s.
func DefaultPolicy() BackoffPolicy {
	return BackoffPolicy{Attempts: 3, BaseDelay: 5 * time.Second, Multiplier: 1}
}

// Delay returns the wait before retry n. Retry 0 is the first attempt and
// does not wait.
func (p BackoffPolicy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(float64(p.BaseDelay) * (1 + p.Multiplier*float64(n-1)))
}

// Validate rejects policies that would never attempt or would shrink.
func (p BackoffPolicy) Validate() error {
	if p.Attempts < 1 {
		return fmt.Errorf("backoff attempts must be positive, got %d", p.Attempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("backoff base delay must not be negative, got %s", p.BaseDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got %v", p.Multiplier)
	}
	return nil
}

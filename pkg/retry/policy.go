package retry

import (
	"fmt"
	"time"

	"github.com/aretw0/blobrelay/pkg/domain"
)

// Policy bounds how often and how fast a failing operation is re-invoked.
type Policy struct {
	// FirstRetryInterval is the delay before the second attempt.
	FirstRetryInterval time.Duration `json:"first_retry_interval" yaml:"first_retry_interval"`

	// MaxAttempts caps the total number of attempts, the first one included.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BackoffCoefficient multiplies the delay after each retry. Values <= 1 keep it fixed.
	BackoffCoefficient float64 `json:"backoff_coefficient,omitempty" yaml:"backoff_coefficient,omitempty"`

	// MaxRetryInterval caps the delay. Zero means no cap.
	MaxRetryInterval time.Duration `json:"max_retry_interval,omitempty" yaml:"max_retry_interval,omitempty"`
}

// DefaultPolicy mirrors the transfer pipeline's historical settings:
// a 5 second first retry and three attempts in total.
func DefaultPolicy() Policy {
	return Policy{
		FirstRetryInterval: 5 * time.Second,
		MaxAttempts:        3,
		BackoffCoefficient: 1,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.FirstRetryInterval <= 0 {
		return fmt.Errorf("%w: first retry interval must be positive, got %s", domain.ErrInvalidPolicy, p.FirstRetryInterval)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", domain.ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.BackoffCoefficient < 0 {
		return fmt.Errorf("%w: backoff coefficient must not be negative", domain.ErrInvalidPolicy)
	}
	if p.MaxRetryInterval < 0 {
		return fmt.Errorf("%w: max retry interval must not be negative", domain.ErrInvalidPolicy)
	}
	return nil
}

// Delay returns the wait before attempt number next (2-based: the first retry is attempt 2).
func (p Policy) Delay(next int) time.Duration {
	if next <= 1 {
		return 0
	}
	delay := p.FirstRetryInterval
	if p.BackoffCoefficient > 1 {
		for i := 2; i < next; i++ {
			delay = time.Duration(float64(delay) * p.BackoffCoefficient)
			if p.MaxRetryInterval > 0 && delay >= p.MaxRetryInterval {
				break
			}
		}
	}
	if p.MaxRetryInterval > 0 && delay > p.MaxRetryInterval {
		delay = p.MaxRetryInterval
	}
	return delay
}

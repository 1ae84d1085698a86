package retry

import (
	"context"
	"time"

	"github.com/aretw0/blobrelay/pkg/domain"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Func is one attempt of a retried operation. attempt is 1-based.
type Func[T any] func(ctx context.Context, attempt int) (T, error)

type settings struct {
	sleep     Sleeper
	retryable func(error) bool
	before    func(attempt int) error
	onRetry   func(attempt int, err error, delay time.Duration)
	start     int
}

// Option customises a single Do call.
type Option func(*settings)

// WithSleeper replaces the timer-based wait, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *settings) {
		o.sleep = s
	}
}

// WithClassifier decides which errors are worth another attempt.
// Defaults to the kind carried by domain.StepError.
func WithClassifier(fn func(error) bool) Option {
	return func(o *settings) {
		o.retryable = fn
	}
}

// BeforeAttempt runs before every attempt; a non-nil error aborts Do with that error.
func BeforeAttempt(fn func(attempt int) error) Option {
	return func(o *settings) {
		o.before = fn
	}
}

// OnRetry runs after a retryable failure, before waiting.
func OnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(o *settings) {
		o.onRetry = fn
	}
}

// StartAt resumes counting from attempt n, used when an interrupted step is resumed.
func StartAt(n int) Option {
	return func(o *settings) {
		if n > 1 {
			o.start = n
		}
	}
}

// SleepContext waits for d or returns early on context cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// policy's attempts are exhausted. It returns the last value and error along
// with the number of the last attempt made. Context errors are returned as-is
// and never retried.
func Do[T any](ctx context.Context, p Policy, fn Func[T], opts ...Option) (T, int, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, 0, err
	}

	s := settings{
		sleep: SleepContext,
		retryable: func(err error) bool {
			return domain.KindOf(err).Retryable()
		},
		start: 1,
	}
	for _, opt := range opts {
		opt(&s)
	}

	var (
		val     T
		lastErr error
	)
	attempt := s.start
	for ; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt, err
		}
		if s.before != nil {
			if err := s.before(attempt); err != nil {
				return zero, attempt, err
			}
		}

		val, lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return val, attempt, nil
		}
		if domain.IsCanceled(lastErr) && ctx.Err() != nil {
			return zero, attempt, lastErr
		}
		if attempt >= p.MaxAttempts || !s.retryable(lastErr) {
			return val, attempt, lastErr
		}

		delay := p.Delay(attempt + 1)
		if s.onRetry != nil {
			s.onRetry(attempt, lastErr, delay)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return zero, attempt, err
		}
	}
}

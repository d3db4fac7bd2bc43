package gate

import (
	"context"
	"fmt"
	"time"
)

// DefaultAttempts is the total number of tries for one authenticated call.
const DefaultAttempts = 5

// RetryError is returned once every attempt of a call has failed.
type RetryError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Call runs fn with a valid access token, retrying failures of fn with a flat
// wait between attempts. Credentials are re-validated before every attempt;
// an authorization failure is returned immediately and is not retried.
func Call[T any](ctx context.Context, s *Session, op string, fn func(ctx context.Context, token string) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := s.attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		token, err := s.Token(ctx)
		if err != nil {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		v, err := fn(ctx, token)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == attempts {
			break
		}

		s.logger.Warn("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt, attempts, s.wait, err)
		if err := s.sleep(ctx, s.wait); err != nil {
			return zero, err
		}
	}

	return zero, &RetryError{Op: op, Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

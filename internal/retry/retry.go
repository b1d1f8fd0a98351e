package retry

import (
	"context"
	"time"

	"ln-donations/internal/retry/backoff"
)

// Action is a function to be performed in a retriable manner.
type Action func(ctx context.Context) error

// Strategy decides whether an action should be retried after a failed
// attempt. Strategies may block to delay the next attempt.
type Strategy func(ctx context.Context, attempts uint, err error) bool

// Retry runs action until it succeeds or a strategy refuses another attempt.
// Strategies run in order, so ones that sleep should come last. It returns
// the number of attempts made and the last error.
func Retry(ctx context.Context, action Action, strategies ...Strategy) (uint, error) {
	for i := uint(1); ; i++ {
		err := action(ctx)
		if err == nil {
			return i, nil
		}

		for _, s := range strategies {
			if !s(ctx, i, err) {
				return i, err
			}
		}
	}
}

// Limit caps the total number of attempts. maxAttempts should be >= 1.
func Limit(maxAttempts uint) Strategy {
	return func(_ context.Context, attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// If retries only errors accepted by match.
func If(match func(error) bool) Strategy {
	return func(_ context.Context, _ uint, err error) bool {
		return match(err)
	}
}

// Backoff sleeps for the strategy's delay, capped at maxBackoff. It gives up
// early when ctx is done.
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(ctx context.Context, attempts uint, _ error) bool {
		delay := strategy(attempts)
		if delay > maxBackoff {
			delay = maxBackoff
		}
		return Sleep(ctx, delay)
	}
}

// Sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

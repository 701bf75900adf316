package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when a policy allows no attempts at all.
var ErrInvalidMaxAttempts = errors.New("retry: max attempts must be greater than 0")

// Policy describes how an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Timeout bounds each attempt; zero means the attempt inherits the caller's deadline.
	Timeout time.Duration
	// Backoff returns the wait after the given failed attempt (0-based).
	// Nil selects Exponential.
	Backoff func(attempt int) time.Duration
}

// Result carries the outcome of Do together with the number of attempts made.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Exponential returns a backoff of 2^attempt * base.
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		delay := base
		for i := 0; i < attempt; i++ {
			delay *= 2
		}
		return delay
	}
}

// Fixed returns the same delay for every attempt.
func Fixed(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds, returns a permanent error, the context ends,
// or the policy runs out of attempts. The last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) Result[T] {
	var res Result[T]
	if p.MaxAttempts <= 0 {
		res.Err = ErrInvalidMaxAttempts
		return res
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Exponential(p.BaseDelay)
	}

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		res.Attempts = attempt + 1
		value, err := runAttempt(ctx, p.Timeout, op)
		if err == nil {
			if attempt > 0 {
				slog.Debug("operation succeeded after retry", "attempt", res.Attempts)
			}
			res.Value = value
			res.Err = nil
			return res
		}

		var p2 *permanentError
		if errors.As(err, &p2) {
			res.Err = p2.err
			return res
		}
		res.Err = err
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}

		slog.Debug("operation failed, will retry", "attempt", res.Attempts, "maxAttempts", p.MaxAttempts, "error", err)

		if attempt == p.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			return res
		case <-timer.C:
		}
	}

	return res
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// DoErr is Do for operations that return only an error.
func DoErr(ctx context.Context, p Policy, op func(ctx context.Context) error) Result[struct{}] {
	return Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
}

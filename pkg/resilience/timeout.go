package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks a call that WithTimeout cut off. The returned error also
// matches context.DeadlineExceeded.
var ErrTimeout = errors.New("call timed out")

// WithTimeout runs fn under a context that expires after timeout and returns
// as soon as the deadline passes, even if fn has not. A non-positive timeout
// runs fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	cause := fmt.Errorf("%s: %w after %v: %w", name, ErrTimeout, timeout, context.DeadlineExceeded)
	callCtx, cancel := context.WithTimeoutCause(ctx, timeout, cause)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()
	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: caller gave up: %w", name, err)
		}
		return context.Cause(callCtx)
	}
}

// Detached runs fn like WithTimeout on a context that keeps ctx's values but
// not its cancellation. Follow-up work that must outlive the triggering
// request goes through here.
func Detached(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	return WithTimeout(context.WithoutCancel(ctx), timeout, name, fn)
}

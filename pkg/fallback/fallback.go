// Package fallback runs a remote primary operation and substitutes a local
// result when it fails, so callers never see the remote failure.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DegradedError records a remote dependency failure that was absorbed by a
// fallback. It is logged, never returned to callers of Run.
type DegradedError struct {
	Dependency string
	Err        error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("%s degraded: %v", e.Dependency, e.Err)
}

func (e *DegradedError) Unwrap() error {
	return e.Err
}

// Policy is the primary-with-fallback decorator for one dependency.
type Policy[T any] struct {
	Dependency string
	Timeout    time.Duration
	Logger     *slog.Logger

	// OnDegraded is called with every absorbed failure. Optional.
	OnDegraded func(*DegradedError)
}

// Run calls primary under the policy timeout. If primary returns an error,
// panics, or the timeout elapses, the result of secondary is returned instead.
func (p Policy[T]) Run(ctx context.Context, primary func(context.Context) (T, error), secondary func() T) T {
	callCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	v, err := callRecovered(callCtx, primary)
	if err == nil {
		return v
	}

	degraded := &DegradedError{Dependency: p.Dependency, Err: err}
	p.logger().WarnContext(ctx, "using local fallback", "dependency", p.Dependency, "error", degraded)
	if p.OnDegraded != nil {
		p.OnDegraded(degraded)
	}
	return secondary()
}

// callRecovered runs primary and turns a panic into an error.
func callRecovered[T any](ctx context.Context, primary func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("panic: %v", r)
		}
	}()
	return primary(ctx)
}

func (p Policy[T]) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

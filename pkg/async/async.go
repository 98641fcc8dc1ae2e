package async

import (
	"context"
	"fmt"
	"time"
)

// Future represents the result of an asynchronous computation.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Await waits for the asynchronous function to complete and returns its result and error.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitContext waits for completion or for ctx to be done, whichever comes
// first. The computation keeps running when ctx wins.
func (f *Future[U]) AwaitContext(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, ctx.Err()
	}
}

// AwaitWithTimeout waits for the asynchronous function to complete with a timeout.
// If the timeout elapses first, ErrTimeout is returned and the computation
// keeps running.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.result, f.err
	case <-timer.C:
		var zero U
		return zero, ErrTimeout
	}
}

// Done is closed once the computation finished.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// IsComplete checks if the asynchronous function is complete without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Async executes fn(ctx, param) in a new goroutine and returns its Future.
// A pre-canceled ctx completes the future with ctx.Err() without calling fn.
// A panic in fn completes the future with ErrPanic.
func Async[T any, U any](ctx context.Context, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				var zero U
				f.result = zero
				f.err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()

		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}

		f.result, f.err = fn(ctx, param)
	}()

	return f
}

// Go is Async without a parameter.
func Go[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	return Async(ctx, struct{}{}, func(ctx context.Context, _ struct{}) (U, error) {
		return fn(ctx)
	})
}

// Detached runs fn on a context that keeps ctx's values but is never
// canceled by it, so the work outlives the caller.
func Detached[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	return Go(context.WithoutCancel(ctx), fn)
}

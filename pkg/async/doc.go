// Package async provides generic helpers for running computations in their
// own goroutine and waiting for the result.
//
// Async and Go start the function and return a *Future immediately. The
// caller waits with Await, bounds the wait with AwaitWithTimeout or
// AwaitContext, or polls with IsComplete. Bounded waits never stop the
// computation; they only stop waiting for it. Detached starts work that
// must outlive the caller's context, such as a best-effort remote call
// raced against a deadline:
//
//	f := async.Detached(ctx, func(ctx context.Context) (struct{}, error) {
//	    return struct{}{}, client.Logout(ctx)
//	})
//	if _, err := f.AwaitWithTimeout(3 * time.Second); errors.Is(err, async.ErrTimeout) {
//	    // the call continues in the background
//	}
package async

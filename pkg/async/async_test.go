package async_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/scanauth/pkg/async"
)

type ctxKey struct{}

func TestAsync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("result", func(t *testing.T) {
		t.Parallel()

		f := async.Async(ctx, 42, func(_ context.Context, n int) (string, error) {
			return fmt.Sprintf("n=%d", n), nil
		})
		res, err := f.Await()
		require.NoError(t, err)
		assert.Equal(t, "n=42", res)
		assert.True(t, f.IsComplete())
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		_, err := async.Go(ctx, func(context.Context) (int, error) { return 0, boom }).Await()
		assert.ErrorIs(t, err, boom)
	})

	t.Run("pre-canceled context skips fn", func(t *testing.T) {
		t.Parallel()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := make(chan struct{}, 1)
		_, err := async.Go(cctx, func(context.Context) (int, error) {
			called <- struct{}{}
			return 1, nil
		}).Await()
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, called)
	})

	t.Run("panic becomes error", func(t *testing.T) {
		t.Parallel()

		_, err := async.Go(ctx, func(context.Context) (int, error) { panic("kaboom") }).Await()
		assert.ErrorIs(t, err, async.ErrPanic)
		assert.Contains(t, err.Error(), "kaboom")
	})
}

func TestFuture_AwaitWithTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("completes first", func(t *testing.T) {
		t.Parallel()

		res, err := async.Go(ctx, func(context.Context) (string, error) { return "ok", nil }).
			AwaitWithTimeout(time.Second)
		require.NoError(t, err)
		assert.Equal(t, "ok", res)
	})

	t.Run("timeout first and work continues", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		f := async.Go(ctx, func(context.Context) (string, error) {
			<-release
			return "late", nil
		})

		_, err := f.AwaitWithTimeout(20 * time.Millisecond)
		assert.ErrorIs(t, err, async.ErrTimeout)
		assert.False(t, f.IsComplete())

		close(release)
		res, err := f.Await()
		require.NoError(t, err)
		assert.Equal(t, "late", res)
	})
}

func TestFuture_AwaitContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	f := async.Go(context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	cctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.AwaitContext(cctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDetached(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	started := make(chan struct{})
	release := make(chan struct{})

	f := async.Detached(parent, func(ctx context.Context) (string, error) {
		close(started)
		<-release
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return ctx.Value(ctxKey{}).(string), nil
	})

	<-started
	cancel()
	close(release)

	res, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "v", res)

	select {
	case <-f.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

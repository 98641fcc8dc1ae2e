package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/scanauth/pkg/session"
	"github.com/dmitrymomot/scanauth/pkg/session/sessiontest"
)

type recorderStub struct {
	mu       sync.Mutex
	stored   []*session.Session
	cleared  int
	storeErr error
}

func (r *recorderStub) Store(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, s)
	return r.storeErr
}

func (r *recorderStub) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
	return nil
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.FromToken(sessiontest.Token(uuid.New(), "a@b.com", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	return sess
}

func TestHolder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("starts empty", func(t *testing.T) {
		t.Parallel()

		h := session.NewHolder()
		assert.Nil(t, h.Current())
		token, err := h.Credential(ctx)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("set and clear update recorder", func(t *testing.T) {
		t.Parallel()

		rec := &recorderStub{}
		h := session.NewHolder(session.WithRecorder(rec))
		sess := newSession(t)

		h.Set(ctx, sess)
		require.NotNil(t, h.Current())
		assert.Equal(t, sess.IdentityID, h.Current().IdentityID)
		require.Len(t, rec.stored, 1)
		assert.Equal(t, sess.IdentityID, rec.stored[0].IdentityID)

		h.Clear(ctx)
		assert.Nil(t, h.Current())
		assert.Equal(t, 1, rec.cleared)
	})

	t.Run("set replaces previous session", func(t *testing.T) {
		t.Parallel()

		h := session.NewHolder()
		first, second := newSession(t), newSession(t)
		h.Set(ctx, first)
		h.Set(ctx, second)
		assert.Equal(t, second.IdentityID, h.Current().IdentityID)
	})

	t.Run("set nil clears", func(t *testing.T) {
		t.Parallel()

		rec := &recorderStub{}
		h := session.NewHolder(session.WithRecorder(rec))
		h.Set(ctx, newSession(t))
		h.Set(ctx, nil)
		assert.Nil(t, h.Current())
		assert.Equal(t, 1, rec.cleared)
	})

	t.Run("recorder failure does not block set", func(t *testing.T) {
		t.Parallel()

		rec := &recorderStub{storeErr: errors.New("disk full")}
		h := session.NewHolder(session.WithRecorder(rec))
		h.Set(ctx, newSession(t))
		assert.NotNil(t, h.Current())
	})

	t.Run("current returns a copy", func(t *testing.T) {
		t.Parallel()

		h := session.NewHolder()
		h.Set(ctx, newSession(t))
		got := h.Current()
		got.Email = "changed@b.com"
		assert.Equal(t, "a@b.com", h.Current().Email)
	})

	t.Run("credential returns bearer token", func(t *testing.T) {
		t.Parallel()

		h := session.NewHolder()
		sess := newSession(t)
		h.Set(ctx, sess)
		token, err := h.Credential(ctx)
		require.NoError(t, err)
		assert.Equal(t, sess.BearerToken(), token)
	})
}

package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/dmitrymomot/scanauth/pkg/logger"
)

// MetadataRecorder is the side channel notified on every Set and Clear.
type MetadataRecorder interface {
	Store(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// Holder keeps the current session. Writes are expected from a single
// goroutine; Current is safe to call from anywhere.
type Holder struct {
	current  atomic.Pointer[Session]
	recorder MetadataRecorder
	logger   *slog.Logger
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithRecorder sets the metadata side channel.
func WithRecorder(r MetadataRecorder) HolderOption {
	return func(h *Holder) {
		h.recorder = r
	}
}

// WithLogger sets the logger used for side channel failures.
func WithLogger(l *slog.Logger) HolderOption {
	return func(h *Holder) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHolder returns an empty Holder.
func NewHolder(opts ...HolderOption) *Holder {
	h := &Holder{logger: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Set replaces the current session. A nil session is equivalent to Clear.
func (h *Holder) Set(ctx context.Context, s *Session) {
	if s == nil {
		h.Clear(ctx)
		return
	}
	cp := *s
	h.current.Store(&cp)

	if h.recorder == nil {
		return
	}
	if err := h.recorder.Store(ctx, &cp); err != nil {
		h.logger.WarnContext(ctx, "failed to record session metadata",
			logger.Component("session"),
			logger.IdentityID(cp.IdentityID),
			logger.Error(err),
		)
	}
}

// Clear drops the current session.
func (h *Holder) Clear(ctx context.Context) {
	h.current.Store(nil)

	if h.recorder == nil {
		return
	}
	if err := h.recorder.Clear(ctx); err != nil {
		h.logger.WarnContext(ctx, "failed to clear session metadata",
			logger.Component("session"),
			logger.Error(err),
		)
	}
}

// Current returns a copy of the current session or nil.
func (h *Holder) Current() *Session {
	s := h.current.Load()
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Credential returns the current bearer token, empty when no session is set.
// Its signature matches the credential funcs used by API clients.
func (h *Holder) Credential(context.Context) (string, error) {
	return h.Current().BearerToken(), nil
}

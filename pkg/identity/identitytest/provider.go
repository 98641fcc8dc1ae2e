// Package identitytest provides a scriptable identity.Provider for tests.
package identitytest

import (
	"context"
	"sync"

	"github.com/dmitrymomot/scanauth/pkg/identity"
	"github.com/dmitrymomot/scanauth/pkg/session"
)

// Provider is an in-memory identity.Provider. Unset funcs fall back to
// serving the session set with SetCurrent.
type Provider struct {
	GetCurrentSessionFunc func(ctx context.Context) (*session.Session, error)
	SignUpFunc            func(ctx context.Context, email, password string, metadata map[string]any) (*identity.SignUpResult, error)
	SignInFunc            func(ctx context.Context, email, password string) (*session.Session, error)
	SignOutFunc           func(ctx context.Context, accessToken string) error
	ResetPasswordFunc     func(ctx context.Context, email, redirectTo string) error
	UpdatePasswordFunc    func(ctx context.Context, accessToken, password string) error

	mu      sync.Mutex
	current *session.Session
	calls   map[string]int
	subs    []chan identity.Event
}

var _ identity.Provider = (*Provider)(nil)

// New returns an empty Provider.
func New() *Provider {
	return &Provider{calls: make(map[string]int)}
}

// SetCurrent sets the session returned by GetCurrentSession.
func (p *Provider) SetCurrent(s *session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s
}

// Calls returns how many times method was invoked.
func (p *Provider) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

func (p *Provider) record(method string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[method]++
}

// Emit queues e for every subscriber. It panics when a subscriber's buffer
// is full so a stuck consumer fails the test loudly.
func (p *Provider) Emit(e identity.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- e:
		default:
			panic("identitytest: subscriber buffer full")
		}
	}
}

func (p *Provider) GetCurrentSession(ctx context.Context) (*session.Session, error) {
	p.record("GetCurrentSession")
	if p.GetCurrentSessionFunc != nil {
		return p.GetCurrentSessionFunc(ctx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*identity.SignUpResult, error) {
	p.record("SignUp")
	if p.SignUpFunc != nil {
		return p.SignUpFunc(ctx, email, password, metadata)
	}
	return nil, identity.ErrUnavailable
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	p.record("SignInWithPassword")
	if p.SignInFunc != nil {
		s, err := p.SignInFunc(ctx, email, password)
		if err == nil {
			p.SetCurrent(s)
		}
		return s, err
	}
	return nil, identity.ErrInvalidCredentials
}

func (p *Provider) Forget(context.Context) error {
	p.record("Forget")
	p.SetCurrent(nil)
	return nil
}

func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	p.record("SignOut")
	if p.SignOutFunc != nil {
		return p.SignOutFunc(ctx, accessToken)
	}
	return nil
}

func (p *Provider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	p.record("ResetPasswordForEmail")
	if p.ResetPasswordFunc != nil {
		return p.ResetPasswordFunc(ctx, email, redirectTo)
	}
	return nil
}

func (p *Provider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	p.record("UpdatePassword")
	if p.UpdatePasswordFunc != nil {
		return p.UpdatePasswordFunc(ctx, accessToken, password)
	}
	return nil
}

func (p *Provider) Subscribe() (<-chan identity.Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan identity.Event, 64)
	p.subs = append(p.subs, ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, c := range p.subs {
				if c == ch {
					p.subs = append(p.subs[:i], p.subs[i+1:]...)
					close(c)
					return
				}
			}
		})
	}
}

package sessionmeta

import (
	"context"
	"sync"

	"github.com/dmitrymomot/scanauth/pkg/session"
)

// MemoryCache keeps the breadcrumb in process memory.
type MemoryCache struct {
	mu   sync.RWMutex
	meta *Metadata
	opts options
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache(opts ...Option) *MemoryCache {
	return &MemoryCache{opts: newOptions(opts)}
}

func (c *MemoryCache) Store(_ context.Context, s *session.Session) error {
	if s == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = &Metadata{HadSession: true, CapturedAt: c.opts.now().UTC()}
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = nil
	return nil
}

func (c *MemoryCache) HadRecentSession(context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta != nil && c.meta.recent(c.opts.now(), c.opts.maxAge)
}

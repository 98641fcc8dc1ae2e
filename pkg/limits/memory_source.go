package limits

import (
	"context"
	"sync"
)

// Source defines how plans are loaded into the limits service.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// inMemSource implements the Source interface using an in-memory plan map.
type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory Source with a deep copy of the given plans.
func NewInMemSource(plans map[string]Plan) Source {
	return &inMemSource{plans: clonePlans(plans)}
}

// Load returns a copy of all available plans from memory.
func (s *inMemSource) Load(context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePlans(s.plans), nil
}

func clonePlans(plans map[string]Plan) map[string]Plan {
	out := make(map[string]Plan, len(plans))
	for id, p := range plans {
		out[id] = p.clone()
	}
	return out
}

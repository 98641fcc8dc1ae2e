package profile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists profiles.
type Store interface {
	// Get returns ErrNotFound when no profile exists for id.
	Get(ctx context.Context, id uuid.UUID) (*Profile, error)
	// Insert returns ErrAlreadyExists on id conflict.
	Insert(ctx context.Context, p *Profile) error
	// Update applies fields and returns the stored profile.
	Update(ctx context.Context, id uuid.UUID, fields Fields) (*Profile, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*Profile
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[uuid.UUID]*Profile), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Insert(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.ID]; ok {
		return ErrAlreadyExists
	}
	stored := p.Clone()
	now := s.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.profiles[p.ID] = stored
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, fields Fields) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	fields.Apply(p)
	p.UpdatedAt = s.now().UTC()
	return p.Clone(), nil
}

// Len returns the number of stored profiles.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

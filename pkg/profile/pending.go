package profile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PendingUpdate holds sign-up fields not yet known to be persisted.
type PendingUpdate struct {
	Email      string    `json:"email"`
	IdentityID uuid.UUID `json:"identity_id,omitempty"`
	Fields     Fields    `json:"fields"`
	CreatedAt  time.Time `json:"created_at"`
}

// Matches reports whether the pending update belongs to id. A known identity
// id must match exactly; otherwise the normalized email decides.
func (p PendingUpdate) Matches(id Identity) bool {
	if p.IdentityID != uuid.Nil {
		return p.IdentityID == id.ID
	}
	return p.Email != "" && normalizeEmail(p.Email) == normalizeEmail(id.Email)
}

// PendingStore is a single slot: Put overwrites whatever was there.
type PendingStore interface {
	Put(ctx context.Context, p PendingUpdate) error
	// Get returns nil, nil when the slot is empty.
	Get(ctx context.Context) (*PendingUpdate, error)
	Delete(ctx context.Context) error
}

// MemoryPendingStore keeps the slot in memory.
type MemoryPendingStore struct {
	mu      sync.Mutex
	pending *PendingUpdate
}

// NewMemoryPendingStore returns an empty slot.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{}
}

func (s *MemoryPendingStore) Put(_ context.Context, p PendingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &p
	return nil
}

func (s *MemoryPendingStore) Get(context.Context) (*PendingUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil, nil
	}
	cp := *s.pending
	return &cp, nil
}

func (s *MemoryPendingStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	return nil
}

// DefaultPendingTTL bounds how long a pending update survives in Redis.
const DefaultPendingTTL = 24 * time.Hour

// RedisPendingStore keeps the slot under one Redis key.
type RedisPendingStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisPendingStore returns a slot stored at key. A non-positive ttl
// falls back to DefaultPendingTTL.
func NewRedisPendingStore(client redis.UniversalClient, key string, ttl time.Duration) *RedisPendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &RedisPendingStore{client: client, key: key, ttl: ttl}
}

func (s *RedisPendingStore) Put(ctx context.Context, p PendingUpdate) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *RedisPendingStore) Get(ctx context.Context) (*PendingUpdate, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p PendingUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisPendingStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

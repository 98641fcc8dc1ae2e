package profile

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Profile), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, p *Profile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockStore) Update(ctx context.Context, id uuid.UUID, fields Fields) (*Profile, error) {
	args := m.Called(ctx, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Profile), args.Error(1)
}

// MockPendingStore is a mock implementation of PendingStore.
type MockPendingStore struct {
	mock.Mock
}

func (m *MockPendingStore) Put(ctx context.Context, p PendingUpdate) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPendingStore) Get(ctx context.Context) (*PendingUpdate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PendingUpdate), args.Error(1)
}

func (m *MockPendingStore) Delete(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

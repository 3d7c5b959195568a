package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// RecordStore is a mock implementation of repository.RecordStore
type RecordStore struct {
	mock.Mock
}

// FindByKey retrieves a record by short key
func (m *RecordStore) FindByKey(ctx context.Context, shortKey string, activeOnly bool) (*domain.URLRecord, error) {
	args := m.Called(ctx, shortKey, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLRecord), args.Error(1)
}

// KeyExists reports whether a short key is taken
func (m *RecordStore) KeyExists(ctx context.Context, shortKey string) (bool, error) {
	args := m.Called(ctx, shortKey)
	return args.Bool(0), args.Error(1)
}

// Insert stores a new record
func (m *RecordStore) Insert(ctx context.Context, record *domain.URLRecord) (*domain.URLRecord, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLRecord), args.Error(1)
}

// UpdateActive sets the active flag of a record
func (m *RecordStore) UpdateActive(ctx context.Context, shortKey string, active bool) error {
	args := m.Called(ctx, shortKey, active)
	return args.Error(0)
}

// IncrementClicks adds delta to the click counter of a record
func (m *RecordStore) IncrementClicks(ctx context.Context, shortKey string, delta int64) error {
	args := m.Called(ctx, shortKey, delta)
	return args.Error(0)
}

// DeleteMany removes records by short key
func (m *RecordStore) DeleteMany(ctx context.Context, shortKeys []string) (int64, error) {
	args := m.Called(ctx, shortKeys)
	return args.Get(0).(int64), args.Error(1)
}

// DeleteInactive removes every deactivated record
func (m *RecordStore) DeleteInactive(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// List retrieves all records
func (m *RecordStore) List(ctx context.Context) ([]*domain.URLRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.URLRecord), args.Error(1)
}

// Close closes the store connection
func (m *RecordStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Cache is a mock implementation of cache.Cache
type Cache struct {
	mock.Mock
}

// Lookup returns the cached record for a short key
func (m *Cache) Lookup(shortKey string) (*domain.URLRecord, bool) {
	args := m.Called(shortKey)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.URLRecord), args.Bool(1)
}

// Populate inserts or overwrites an entry
func (m *Cache) Populate(shortKey string, record *domain.URLRecord) {
	m.Called(shortKey, record)
}

// Invalidate removes the entry for a short key
func (m *Cache) Invalidate(shortKey string) {
	m.Called(shortKey)
}

// Clear removes all entries
func (m *Cache) Clear() {
	m.Called()
}

// Len returns the number of resident entries
func (m *Cache) Len() int {
	args := m.Called()
	return args.Int(0)
}

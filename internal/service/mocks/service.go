package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// URLShortener is a mock implementation of service.URLShortener
type URLShortener struct {
	mock.Mock
}

// Shorten creates a new short URL
func (m *URLShortener) Shorten(ctx context.Context, targetURL string) (*domain.URLRecord, error) {
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLRecord), args.Error(1)
}

// ResolveAndCount resolves a short key and records a click
func (m *URLShortener) ResolveAndCount(ctx context.Context, shortKey string) (string, bool, error) {
	args := m.Called(ctx, shortKey)
	return args.String(0), args.Bool(1), args.Error(2)
}

// GetURLInfo retrieves detailed information about a short URL
func (m *URLShortener) GetURLInfo(ctx context.Context, shortKey string) (*domain.URLRecord, error) {
	args := m.Called(ctx, shortKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLRecord), args.Error(1)
}

// ListURLs retrieves all short URLs
func (m *URLShortener) ListURLs(ctx context.Context) ([]*domain.URLRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.URLRecord), args.Error(1)
}

// Deactivate marks a short URL inactive
func (m *URLShortener) Deactivate(ctx context.Context, shortKey string) error {
	args := m.Called(ctx, shortKey)
	return args.Error(0)
}

// Reactivate marks a short URL active
func (m *URLShortener) Reactivate(ctx context.Context, shortKey string) error {
	args := m.Called(ctx, shortKey)
	return args.Error(0)
}

// DeleteKeys removes short URLs
func (m *URLShortener) DeleteKeys(ctx context.Context, shortKeys []string) (int64, error) {
	args := m.Called(ctx, shortKeys)
	return args.Get(0).(int64), args.Error(1)
}

// DeleteInactive removes every deactivated short URL
func (m *URLShortener) DeleteInactive(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// StartClickSync starts background click flushing
func (m *URLShortener) StartClickSync(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// StopClickSync stops background click flushing
func (m *URLShortener) StopClickSync() error {
	args := m.Called()
	return args.Error(0)
}

// Close closes the service and its dependencies
func (m *URLShortener) Close() error {
	args := m.Called()
	return args.Error(0)
}

package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/shortlink/internal/cache/memory"
	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/repository"
)

// memStore is an in-memory repository.RecordStore that counts lookups
type memStore struct {
	mu      sync.Mutex
	records map[string]*domain.URLRecord
	nextID  int64

	finds     atomic.Int64
	findDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*domain.URLRecord)}
}

func (s *memStore) FindByKey(ctx context.Context, shortKey string, activeOnly bool) (*domain.URLRecord, error) {
	s.finds.Add(1)
	if s.findDelay > 0 {
		select {
		case <-time.After(s.findDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[shortKey]
	if !ok || (activeOnly && !record.Active) {
		return nil, domain.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *memStore) KeyExists(ctx context.Context, shortKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[shortKey]
	return ok, nil
}

func (s *memStore) Insert(ctx context.Context, record *domain.URLRecord) (*domain.URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.ShortKey == record.ShortKey || existing.SecretKey == record.SecretKey {
			return nil, domain.ErrDuplicateKey
		}
	}
	s.nextID++
	created := record.Clone()
	created.ID = s.nextID
	s.records[created.ShortKey] = created
	return created.Clone(), nil
}

func (s *memStore) UpdateActive(ctx context.Context, shortKey string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[shortKey]
	if !ok {
		return domain.ErrNotFound
	}
	record.Active = active
	return nil
}

func (s *memStore) IncrementClicks(ctx context.Context, shortKey string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[shortKey]
	if !ok {
		return domain.ErrNotFound
	}
	record.Clicks += delta
	return nil
}

func (s *memStore) DeleteMany(ctx context.Context, shortKeys []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, key := range shortKeys {
		if _, ok := s.records[key]; ok {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memStore) DeleteInactive(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, record := range s.records {
		if !record.Active {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memStore) List(ctx context.Context) ([]*domain.URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]*domain.URLRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record.Clone())
	}
	return records, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) put(key string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.records[key] = &domain.URLRecord{
		ID:        s.nextID,
		ShortKey:  key,
		SecretKey: "secret-" + key,
		TargetURL: "https://example.com/" + key,
		Active:    active,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *memStore) clicks(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[key]; ok {
		return record.Clicks
	}
	return -1
}

var _ repository.RecordStore = (*memStore)(nil)

// sequenceGenerator hands out predictable keys
type sequenceGenerator struct {
	mu      sync.Mutex
	counter int
	err     error
}

func (g *sequenceGenerator) GenerateShortKey(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.counter++
	return fmt.Sprintf("test%02d", g.counter), nil
}

func (g *sequenceGenerator) GenerateSecretKey() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("secret%06d", g.counter), nil
}

func (g *sequenceGenerator) Type() string { return "test" }

// recordingBroadcaster keeps every published message
type recordingBroadcaster struct {
	mu          sync.Mutex
	invalidated [][]string
	clears      int
	err         error
}

func (b *recordingBroadcaster) PublishInvalidate(ctx context.Context, shortKeys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidated = append(b.invalidated, append([]string(nil), shortKeys...))
	return b.err
}

func (b *recordingBroadcaster) PublishClear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clears++
	return b.err
}

func newMemoryCache(t *testing.T, capacity int) *memory.Cache {
	t.Helper()
	c, err := memory.New(memory.Options{Capacity: capacity})
	require.NoError(t, err)
	return c
}

func testResolverOptions() ResolverOptions {
	return ResolverOptions{
		StoreTimeout: time.Second,
		LockStripes:  16,
		Logger:       zerolog.Nop(),
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cacheMocks "github.com/joshdurbin/shortlink/internal/cache/mocks"
	"github.com/joshdurbin/shortlink/internal/domain"
	repoMocks "github.com/joshdurbin/shortlink/internal/repository/mocks"
)

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	active := &domain.URLRecord{ID: 1, ShortKey: "abc123", TargetURL: "https://example.com", Active: true}

	tests := []struct {
		name       string
		setupMocks func(*repoMocks.RecordStore, *cacheMocks.Cache)
		wantFound  bool
		wantErr    error
	}{
		{
			name: "cache hit skips the store",
			setupMocks: func(store *repoMocks.RecordStore, cache *cacheMocks.Cache) {
				cache.On("Lookup", "abc123").Return(active.Clone(), true)
			},
			wantFound: true,
		},
		{
			name: "cache miss loads and populates",
			setupMocks: func(store *repoMocks.RecordStore, cache *cacheMocks.Cache) {
				cache.On("Lookup", "abc123").Return(nil, false)
				store.On("FindByKey", mock.Anything, "abc123", true).Return(active.Clone(), nil)
				cache.On("Populate", "abc123", mock.AnythingOfType("*domain.URLRecord")).Return()
			},
			wantFound: true,
		},
		{
			name: "missing key is not cached",
			setupMocks: func(store *repoMocks.RecordStore, cache *cacheMocks.Cache) {
				cache.On("Lookup", "abc123").Return(nil, false)
				store.On("FindByKey", mock.Anything, "abc123", true).Return(nil, domain.ErrNotFound)
			},
			wantFound: false,
		},
		{
			name: "store failure is not cached",
			setupMocks: func(store *repoMocks.RecordStore, cache *cacheMocks.Cache) {
				cache.On("Lookup", "abc123").Return(nil, false)
				store.On("FindByKey", mock.Anything, "abc123", true).Return(nil, errors.New("connection refused"))
			},
			wantErr: domain.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &repoMocks.RecordStore{}
			cache := &cacheMocks.Cache{}
			tt.setupMocks(store, cache)

			resolver := NewResolver(store, cache, testResolverOptions())
			record, found, err := resolver.Resolve(ctx, "abc123")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, found)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantFound, found)
				if found {
					assert.Equal(t, "https://example.com", record.TargetURL)
				} else {
					assert.Nil(t, record)
				}
			}

			if !tt.wantFound {
				cache.AssertNotCalled(t, "Populate", mock.Anything, mock.Anything)
			}
			store.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestResolver_AbsentKeyNeverCached(t *testing.T) {
	store := newMemStore()
	cache := newMemoryCache(t, 16)
	resolver := NewResolver(store, cache, testResolverOptions())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		record, found, err := resolver.Resolve(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, record)
	}

	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, int64(3), store.finds.Load())
}

func TestResolver_InactiveKeyNeverCached(t *testing.T) {
	store := newMemStore()
	store.put("dead01", false)
	cache := newMemoryCache(t, 16)
	resolver := NewResolver(store, cache, testResolverOptions())

	_, found, err := resolver.Resolve(context.Background(), "dead01")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())
}

func TestResolver_SecondResolveIsCacheHit(t *testing.T) {
	store := newMemStore()
	store.put("abc123", true)
	cache := newMemoryCache(t, 16)
	resolver := NewResolver(store, cache, testResolverOptions())
	ctx := context.Background()

	first, found, err := resolver.Resolve(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), store.finds.Load())

	second, found, err := resolver.Resolve(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), store.finds.Load(), "second resolve should not reach the store")
	assert.Equal(t, first, second)
}

func TestResolver_DeactivateThenResolve(t *testing.T) {
	store := newMemStore()
	store.put("abc123", true)
	cache := newMemoryCache(t, 16)
	resolver := NewResolver(store, cache, testResolverOptions())
	ctx := context.Background()

	_, found, err := resolver.Resolve(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, cache.Len())

	require.NoError(t, resolver.SetActive(ctx, "abc123", false))

	_, found, err = resolver.Resolve(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())

	// Reactivation makes it resolvable again
	require.NoError(t, resolver.SetActive(ctx, "abc123", true))
	_, found, err = resolver.Resolve(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestResolver_DeactivateIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.put("abc123", true)
	cache := newMemoryCache(t, 16)
	resolver := NewResolver(store, cache, testResolverOptions())
	ctx := context.Background()

	_, _, err := resolver.Resolve(ctx, "abc123")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, resolver.SetActive(ctx, "abc123", false))

		_, cached := cache.Lookup("abc123")
		assert.False(t, cached)

		record, err := store.FindByKey(ctx, "abc123", false)
		require.NoError(t, err)
		assert.False(t, record.Active)
	}
}

func TestResolver_SetActiveMissingKey(t *testing.T) {
	resolver := NewResolver(newMemStore(), newMemoryCache(t, 16), testResolverOptions())

	err := resolver.SetActive(context.Background(), "missing", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolver_SetActiveStoreFailure(t *testing.T) {
	store := &repoMocks.RecordStore{}
	cache := &cacheMocks.Cache{}
	cache.On("Invalidate", "abc123").Return()
	store.On("UpdateActive", mock.Anything, "abc123", false).Return(errors.New("disk I/O error"))
	broadcaster := &recordingBroadcaster{}

	opts := testResolverOptions()
	opts.Broadcaster = broadcaster
	resolver := NewResolver(store, cache, opts)

	err := resolver.SetActive(context.Background(), "abc123", false)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Empty(t, broadcaster.invalidated)
	cache.AssertNotCalled(t, "Populate", mock.Anything, mock.Anything)
}

func TestResolver_StoreTimeoutLeavesCacheUntouched(t *testing.T) {
	store := newMemStore()
	store.put("abc123", true)
	store.findDelay = 500 * time.Millisecond
	cache := newMemoryCache(t, 16)

	opts := testResolverOptions()
	opts.StoreTimeout = 20 * time.Millisecond
	resolver := NewResolver(store, cache, opts)

	start := time.Now()
	_, found, err := resolver.Resolve(context.Background(), "abc123")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.False(t, found)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, 0, cache.Len())
}

func TestResolver_Delete(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 3; i++ {
		store.put(fmt.Sprintf("key%d", i), true)
	}
	cache := newMemoryCache(t, 16)
	broadcaster := &recordingBroadcaster{}
	opts := testResolverOptions()
	opts.Broadcaster = broadcaster
	resolver := NewResolver(store, cache, opts)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, found, err := resolver.Resolve(ctx, fmt.Sprintf("key%d", i))
		require.NoError(t, err)
		require.True(t, found)
	}
	require.Equal(t, 3, cache.Len())

	deleted, err := resolver.Delete(ctx, []string{"key0", "key1", "key1", "missing", ""})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, 1, cache.Len())

	for _, key := range []string{"key0", "key1"} {
		_, found, err := resolver.Resolve(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	}

	require.Len(t, broadcaster.invalidated, 1)
	assert.ElementsMatch(t, []string{"key0", "key1", "missing"}, broadcaster.invalidated[0])

	deleted, err = resolver.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestResolver_DeleteInactiveClearsCache(t *testing.T) {
	store := &repoMocks.RecordStore{}
	cache := &cacheMocks.Cache{}
	store.On("DeleteInactive", mock.Anything).Return(int64(4), nil)
	cache.On("Clear").Return()
	broadcaster := &recordingBroadcaster{}

	opts := testResolverOptions()
	opts.Broadcaster = broadcaster
	resolver := NewResolver(store, cache, opts)

	deleted, err := resolver.DeleteInactive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.Equal(t, 1, broadcaster.clears)

	store.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestResolver_BroadcastFailureIsNotReturned(t *testing.T) {
	store := newMemStore()
	store.put("abc123", true)
	opts := testResolverOptions()
	opts.Broadcaster = &recordingBroadcaster{err: errors.New("redis down")}
	resolver := NewResolver(store, newMemoryCache(t, 16), opts)

	assert.NoError(t, resolver.SetActive(context.Background(), "abc123", false))
}

func TestResolver_ApplyRemote(t *testing.T) {
	store := newMemStore()
	store.put("a", true)
	store.put("b", true)
	cache := newMemoryCache(t, 16)
	resolver := NewResolver(store, cache, testResolverOptions())
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		_, _, err := resolver.Resolve(ctx, key)
		require.NoError(t, err)
	}
	require.Equal(t, 2, cache.Len())

	resolver.ApplyInvalidate([]string{"a"})
	_, cached := cache.Lookup("a")
	assert.False(t, cached)
	_, cached = cache.Lookup("b")
	assert.True(t, cached)

	resolver.ApplyClear()
	assert.Equal(t, 0, cache.Len())
}

func TestResolver_ConcurrentMissesAreCoalesced(t *testing.T) {
	store := newMemStore()
	store.put("abc123", true)
	store.findDelay = 50 * time.Millisecond
	resolver := NewResolver(store, newMemoryCache(t, 16), testResolverOptions())

	const numGoroutines = 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, found, err := resolver.Resolve(context.Background(), "abc123")
			assert.NoError(t, err)
			assert.True(t, found)
		}()
	}
	close(start)
	wg.Wait()

	assert.Less(t, store.finds.Load(), int64(numGoroutines))
}

func TestResolver_NoStaleReadAfterDeactivate(t *testing.T) {
	const rounds = 50
	const readers = 8

	for round := 0; round < rounds; round++ {
		store := newMemStore()
		store.put("hot", true)
		resolver := NewResolver(store, newMemoryCache(t, 16), testResolverOptions())
		ctx := context.Background()

		_, found, err := resolver.Resolve(ctx, "hot")
		require.NoError(t, err)
		require.True(t, found)

		var deactivated atomic.Bool
		var stale atomic.Int64
		stop := make(chan struct{})
		var wg sync.WaitGroup

		for i := 0; i < readers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}

					startedAfter := deactivated.Load()
					_, found, err := resolver.Resolve(ctx, "hot")
					if err == nil && found && startedAfter {
						stale.Add(1)
					}
				}
			}()
		}

		time.Sleep(time.Millisecond)
		require.NoError(t, resolver.SetActive(ctx, "hot", false))
		deactivated.Store(true)
		time.Sleep(2 * time.Millisecond)
		close(stop)
		wg.Wait()

		require.Equal(t, int64(0), stale.Load(), "stale record served after deactivate returned in round %d", round)
	}
}

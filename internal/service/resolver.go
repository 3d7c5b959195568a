package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/joshdurbin/shortlink/internal/cache"
	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/repository"
)

// DefaultStoreTimeout bounds every record store call when none is configured
const DefaultStoreTimeout = 2 * time.Second

// ResolverOptions configures a Resolver
type ResolverOptions struct {
	StoreTimeout time.Duration
	LockStripes  int
	Metrics      Metrics
	Broadcaster  Broadcaster // nil disables cross-instance invalidation
	Logger       zerolog.Logger
}

// Resolver answers short key lookups through the cache and keeps the cache
// coherent with admin mutations.
//
// For any key, once SetActive or Delete returns, no Resolve that starts
// afterwards observes the previous record: mutations write-lock the key's
// stripe, invalidate, and write the store before unlocking, while Resolve
// misses load and populate under the stripe's read lock.
type Resolver struct {
	store        repository.RecordStore
	cache        cache.Cache
	locks        *keyLocks
	loads        singleflight.Group
	storeTimeout time.Duration
	metrics      Metrics
	broadcaster  Broadcaster
	logger       zerolog.Logger
}

// NewResolver creates a new resolver over store and cache
func NewResolver(store repository.RecordStore, c cache.Cache, opts ResolverOptions) *Resolver {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}

	return &Resolver{
		store:        store,
		cache:        c,
		locks:        newKeyLocks(opts.LockStripes),
		storeTimeout: opts.StoreTimeout,
		metrics:      opts.Metrics,
		broadcaster:  opts.Broadcaster,
		logger:       opts.Logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the active record for shortKey. A missing or inactive key
// returns (nil, false, nil) and is never cached.
func (r *Resolver) Resolve(ctx context.Context, shortKey string) (*domain.URLRecord, bool, error) {
	start := time.Now()

	if record, ok := r.cache.Lookup(shortKey); ok {
		r.metrics.ObserveResolve(OutcomeHit, time.Since(start))
		return record, true, nil
	}

	lock := r.locks.reader(shortKey)
	lock.RLock()
	defer lock.RUnlock()

	// Another loader may have populated while we waited on a mutation
	if record, ok := r.cache.Lookup(shortKey); ok {
		r.metrics.ObserveResolve(OutcomeHit, time.Since(start))
		return record, true, nil
	}

	v, err, _ := r.loads.Do(shortKey, func() (any, error) {
		// Shared by every waiter, so the load outlives the first caller's
		// cancellation but keeps the store timeout
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
		defer cancel()

		record, err := r.store.FindByKey(loadCtx, shortKey, true)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			return nil, storeError(err)
		}
		if !record.Active {
			return nil, nil
		}

		r.cache.Populate(shortKey, record)
		return record, nil
	})
	if err != nil {
		r.metrics.ObserveResolve(OutcomeError, time.Since(start))
		return nil, false, fmt.Errorf("failed to resolve %s: %w", shortKey, err)
	}
	if v == nil {
		r.metrics.ObserveResolve(OutcomeNotFound, time.Since(start))
		return nil, false, nil
	}

	r.metrics.ObserveResolve(OutcomeMiss, time.Since(start))
	return v.(*domain.URLRecord).Clone(), true, nil
}

// SetActive updates the active flag of a record. Setting the current value
// again is not an error.
func (r *Resolver) SetActive(ctx context.Context, shortKey string, active bool) error {
	if err := r.setActive(ctx, shortKey, active); err != nil {
		return err
	}

	r.publishInvalidate(ctx, []string{shortKey})
	return nil
}

func (r *Resolver) setActive(ctx context.Context, shortKey string, active bool) error {
	unlock := r.locks.lock(shortKey)
	defer unlock()

	// Invalidated before the write so no cache hit can serve the old record
	// once the write lands; the stripe lock keeps misses from repopulating
	// until we release
	r.cache.Invalidate(shortKey)

	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	if err := r.store.UpdateActive(storeCtx, shortKey, active); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to update %s: %w", shortKey, storeError(err))
	}
	return nil
}

// Delete removes records and purges their cache entries
func (r *Resolver) Delete(ctx context.Context, shortKeys []string) (int64, error) {
	keys := uniqueKeys(shortKeys)
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := r.deleteMany(ctx, keys)
	if err != nil {
		return 0, err
	}

	r.publishInvalidate(ctx, keys)
	return deleted, nil
}

func (r *Resolver) deleteMany(ctx context.Context, keys []string) (int64, error) {
	unlock := r.locks.lock(keys...)
	defer unlock()

	for _, key := range keys {
		r.cache.Invalidate(key)
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	deleted, err := r.store.DeleteMany(storeCtx, keys)
	if err != nil {
		return 0, fmt.Errorf("failed to delete URLs: %w", storeError(err))
	}
	return deleted, nil
}

// DeleteInactive removes every deactivated record and clears the cache
func (r *Resolver) DeleteInactive(ctx context.Context) (int64, error) {
	deleted, err := r.deleteInactive(ctx)
	if err != nil {
		return 0, err
	}

	if r.broadcaster != nil {
		if err := r.broadcaster.PublishClear(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to broadcast cache clear")
		}
	}
	return deleted, nil
}

func (r *Resolver) deleteInactive(ctx context.Context) (int64, error) {
	unlock := r.locks.lockAll()
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	deleted, err := r.store.DeleteInactive(storeCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive URLs: %w", storeError(err))
	}

	r.cache.Clear()
	return deleted, nil
}

// ApplyInvalidate drops cache entries on behalf of another instance. It takes
// the same stripe locks as local mutations so a load already in flight cannot
// repopulate after the invalidation.
func (r *Resolver) ApplyInvalidate(shortKeys []string) {
	keys := uniqueKeys(shortKeys)
	if len(keys) == 0 {
		return
	}

	unlock := r.locks.lock(keys...)
	defer unlock()

	for _, key := range keys {
		r.cache.Invalidate(key)
	}
}

// ApplyClear empties the cache on behalf of another instance
func (r *Resolver) ApplyClear() {
	unlock := r.locks.lockAll()
	defer unlock()

	r.cache.Clear()
}

func (r *Resolver) publishInvalidate(ctx context.Context, keys []string) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.PublishInvalidate(ctx, keys); err != nil {
		r.logger.Warn().Err(err).Strs("keys", keys).Msg("Failed to broadcast invalidation")
	}
}

// storeError classifies a store failure as retriable unless it is already a
// domain error
func storeError(err error) error {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrDuplicateKey):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	unique := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	return unique
}

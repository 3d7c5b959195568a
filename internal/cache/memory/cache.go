package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/joshdurbin/shortlink/internal/cache"
	"github.com/joshdurbin/shortlink/internal/domain"
)

// DefaultCapacity is the entry bound used when none is configured
const DefaultCapacity = 1024

// Options configures an in-memory cache
type Options struct {
	// Capacity is the maximum number of resident entries across all shards
	Capacity int

	// Shards splits the key space into independently locked LRU lists.
	// With a single shard, eviction is exact least-recently-used.
	Shards int

	// TTL bounds how long an entry may be served after it was populated. Zero disables expiry.
	TTL time.Duration

	Metrics cache.Metrics
}

// Cache implements cache.Cache as a sharded, bounded LRU
type Cache struct {
	shards  []*shard
	ttl     time.Duration
	metrics cache.Metrics
	now     func() time.Time
}

type shard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, entry]
}

type entry struct {
	record   domain.URLRecord
	storedAt time.Time
}

// New creates a new in-memory cache
func New(opts Options) (*Cache, error) {
	if opts.Capacity == 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Shards == 0 {
		opts.Shards = 1
	}
	if opts.Capacity < 0 || opts.Shards < 0 {
		return nil, fmt.Errorf("capacity and shards must be positive, got %d and %d", opts.Capacity, opts.Shards)
	}
	if opts.Shards > opts.Capacity {
		return nil, fmt.Errorf("shards (%d) cannot exceed capacity (%d)", opts.Shards, opts.Capacity)
	}
	if opts.Metrics == nil {
		opts.Metrics = cache.NoopMetrics{}
	}

	// Round up so the total bound is never below the configured capacity
	perShard := (opts.Capacity + opts.Shards - 1) / opts.Shards

	c := &Cache{
		shards:  make([]*shard, opts.Shards),
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		now:     time.Now,
	}
	for i := range c.shards {
		l, err := simplelru.NewLRU[string, entry](perShard, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create shard %d: %w", i, err)
		}
		c.shards[i] = &shard{lru: l}
	}

	return c, nil
}

func (c *Cache) shardFor(shortKey string) *shard {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	return c.shards[xxhash.Sum64String(shortKey)%uint64(len(c.shards))]
}

// Lookup returns a copy of the cached record and marks it most recently used
func (c *Cache) Lookup(shortKey string) (*domain.URLRecord, bool) {
	s := c.shardFor(shortKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(shortKey)
	if !ok {
		c.metrics.Miss()
		return nil, false
	}

	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		s.lru.Remove(shortKey)
		c.metrics.Expiration()
		c.metrics.Miss()
		return nil, false
	}

	c.metrics.Hit()
	record := e.record
	return &record, true
}

// Populate stores a copy of an active record, evicting the least recently used entry when full
func (c *Cache) Populate(shortKey string, record *domain.URLRecord) {
	if record == nil || !record.Active {
		return
	}

	s := c.shardFor(shortKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if evicted := s.lru.Add(shortKey, entry{record: *record, storedAt: c.now()}); evicted {
		c.metrics.Eviction()
	}
}

// Invalidate removes the entry for a short key if present
func (c *Cache) Invalidate(shortKey string) {
	s := c.shardFor(shortKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lru.Remove(shortKey) {
		c.metrics.Invalidation()
	}
}

// Clear removes every entry from every shard
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.lru.Purge()
		s.mu.Unlock()
	}
}

// Len returns the number of resident entries
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

// Ensure Cache implements the interface
var _ cache.Cache = (*Cache)(nil)

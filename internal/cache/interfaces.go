package cache

import (
	"github.com/joshdurbin/shortlink/internal/domain"
)

// Cache defines the key resolution cache sitting in front of the record store.
// Operations never fail; a miss is a normal outcome.
type Cache interface {
	// Lookup returns the cached record for a short key without touching the store
	Lookup(shortKey string) (*domain.URLRecord, bool)

	// Populate inserts or overwrites an entry. Inactive records are ignored.
	Populate(shortKey string, record *domain.URLRecord)

	// Invalidate removes the entry for a short key. Once it returns, no later
	// Lookup observes the removed value.
	Invalidate(shortKey string)

	// Clear removes all entries
	Clear()

	// Len returns the number of resident entries
	Len() int
}

// Metrics receives cache lifecycle events
type Metrics interface {
	Hit()
	Miss()
	Eviction()
	Invalidation()
	Expiration()
}

// NoopMetrics discards all events
type NoopMetrics struct{}

func (NoopMetrics) Hit()          {}
func (NoopMetrics) Miss()         {}
func (NoopMetrics) Eviction()     {}
func (NoopMetrics) Invalidation() {}
func (NoopMetrics) Expiration()   {}

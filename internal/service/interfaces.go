package service

import (
	"context"
	"time"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// URLShortener defines the interface for URL shortening operations
type URLShortener interface {
	// Shorten validates targetURL and stores a new active record under a fresh short key
	Shorten(ctx context.Context, targetURL string) (*domain.URLRecord, error)

	// ResolveAndCount resolves an active short key to its target and records a click.
	// A missing or inactive key returns ("", false, nil).
	ResolveAndCount(ctx context.Context, shortKey string) (string, bool, error)

	// GetURLInfo retrieves a record, active or not, including clicks not yet flushed
	GetURLInfo(ctx context.Context, shortKey string) (*domain.URLRecord, error)

	// ListURLs retrieves all records, newest first
	ListURLs(ctx context.Context) ([]*domain.URLRecord, error)

	// Deactivate marks a record inactive; it stops resolving immediately
	Deactivate(ctx context.Context, shortKey string) error

	// Reactivate marks a record active again
	Reactivate(ctx context.Context, shortKey string) error

	// DeleteKeys removes records and returns how many existed
	DeleteKeys(ctx context.Context, shortKeys []string) (int64, error)

	// DeleteInactive removes every deactivated record
	DeleteInactive(ctx context.Context) (int64, error)

	// StartClickSync starts flushing recorded clicks to the store in the background
	StartClickSync(ctx context.Context) error

	// StopClickSync stops the background flush after a final flush
	StopClickSync() error

	// Close stops click syncing and closes the store
	Close() error
}

// Broadcaster publishes cache invalidations to other instances
type Broadcaster interface {
	PublishInvalidate(ctx context.Context, shortKeys []string) error
	PublishClear(ctx context.Context) error
}

// Metrics receives resolver and click recorder instrumentation
type Metrics interface {
	ObserveResolve(outcome string, d time.Duration)
	ClicksFlushed(n int64)
	ClickFlushFailed()
	SetPendingClicks(n int64)
}

// NoopMetrics discards all observations
type NoopMetrics struct{}

func (NoopMetrics) ObserveResolve(string, time.Duration) {}
func (NoopMetrics) ClicksFlushed(int64)                  {}
func (NoopMetrics) ClickFlushFailed()                    {}
func (NoopMetrics) SetPendingClicks(int64)               {}

// Resolve outcome label values
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

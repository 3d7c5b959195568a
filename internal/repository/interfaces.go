package repository

import (
	"context"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// RecordStore defines the durable storage of URL records keyed by short key.
// Implementations map driver errors onto domain.ErrNotFound, domain.ErrDuplicateKey
// and domain.ErrStoreUnavailable.
type RecordStore interface {
	// FindByKey retrieves a record by short key, optionally requiring it to be active
	FindByKey(ctx context.Context, shortKey string, activeOnly bool) (*domain.URLRecord, error)

	// KeyExists reports whether any record, active or not, holds the short key
	KeyExists(ctx context.Context, shortKey string) (bool, error)

	// Insert stores a new record and returns it with its assigned ID
	Insert(ctx context.Context, record *domain.URLRecord) (*domain.URLRecord, error)

	// UpdateActive sets the active flag of a record
	UpdateActive(ctx context.Context, shortKey string, active bool) error

	// IncrementClicks adds delta to the click counter of a record
	IncrementClicks(ctx context.Context, shortKey string, delta int64) error

	// DeleteMany removes the records for the given short keys and returns how many were removed
	DeleteMany(ctx context.Context, shortKeys []string) (int64, error)

	// DeleteInactive removes every deactivated record
	DeleteInactive(ctx context.Context) (int64, error)

	// List retrieves all records, newest first
	List(ctx context.Context) ([]*domain.URLRecord, error)

	// Close closes the store connection
	Close() error
}

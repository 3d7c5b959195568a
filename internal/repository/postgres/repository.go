// Package postgres implements the record store on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/repository"
)

const (
	selectColumns = `SELECT id, short_key, secret_key, target_url, is_active, clicks, created_at FROM urls`

	uniqueViolation = "23505"
)

// Repository implements repository.RecordStore using PostgreSQL
type Repository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New migrates the database at databaseURL and opens a connection pool to it
func New(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Repository, error) {
	logger = logger.With().Str("component", "postgres").Logger()

	if err := Migrate(databaseURL, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Repository{pool: pool, logger: logger}, nil
}

// FindByKey retrieves a record by its short key
func (r *Repository) FindByKey(ctx context.Context, shortKey string, activeOnly bool) (*domain.URLRecord, error) {
	query := selectColumns + ` WHERE short_key = $1`
	if activeOnly {
		query += ` AND is_active`
	}

	record, err := scanRecord(r.pool.QueryRow(ctx, query, shortKey))
	if err != nil {
		return nil, mapError("failed to get URL", err)
	}
	return record, nil
}

// KeyExists checks if a short key is taken by any record
func (r *Repository) KeyExists(ctx context.Context, shortKey string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM urls WHERE short_key = $1)`, shortKey).Scan(&exists)
	if err != nil {
		return false, mapError("failed to check URL existence", err)
	}
	return exists, nil
}

// Insert creates a new URL record
func (r *Repository) Insert(ctx context.Context, record *domain.URLRecord) (*domain.URLRecord, error) {
	created := record.Clone()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO urls (short_key, secret_key, target_url, is_active, clicks, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		record.ShortKey, record.SecretKey, record.TargetURL, record.Active, record.Clicks, record.CreatedAt.UTC(),
	).Scan(&created.ID)
	if err != nil {
		return nil, mapError("failed to create URL", err)
	}
	return created, nil
}

// UpdateActive sets the active flag of a record
func (r *Repository) UpdateActive(ctx context.Context, shortKey string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE urls SET is_active = $1 WHERE short_key = $2`, active, shortKey)
	if err != nil {
		return mapError("failed to update URL", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementClicks adds delta to the click counter of a record
func (r *Repository) IncrementClicks(ctx context.Context, shortKey string, delta int64) error {
	if delta <= 0 {
		return fmt.Errorf("click delta must be positive, got %d", delta)
	}

	tag, err := r.pool.Exec(ctx, `UPDATE urls SET clicks = clicks + $1 WHERE short_key = $2`, delta, shortKey)
	if err != nil {
		return mapError("failed to update clicks", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteMany removes the records for the given short keys
func (r *Repository) DeleteMany(ctx context.Context, shortKeys []string) (int64, error) {
	if len(shortKeys) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM urls WHERE short_key = ANY($1)`, shortKeys)
	if err != nil {
		return 0, mapError("failed to delete URLs", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteInactive removes every deactivated record
func (r *Repository) DeleteInactive(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM urls WHERE NOT is_active`)
	if err != nil {
		return 0, mapError("failed to delete inactive URLs", err)
	}
	return tag.RowsAffected(), nil
}

// List retrieves all records, newest first
func (r *Repository) List(ctx context.Context) ([]*domain.URLRecord, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` ORDER BY id DESC`)
	if err != nil {
		return nil, mapError("failed to list URLs", err)
	}
	defer rows.Close()

	records := make([]*domain.URLRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, mapError("failed to list URLs", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to list URLs", err)
	}

	return records, nil
}

// Close releases every pooled connection
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*domain.URLRecord, error) {
	var record domain.URLRecord
	err := row.Scan(
		&record.ID,
		&record.ShortKey,
		&record.SecretKey,
		&record.TargetURL,
		&record.Active,
		&record.Clicks,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// mapError translates driver errors into domain errors
func mapError(msg string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %v", msg, domain.ErrDuplicateKey, err)
	}

	return fmt.Errorf("%s: %w: %v", msg, domain.ErrStoreUnavailable, err)
}

// Ensure Repository implements the interface
var _ repository.RecordStore = (*Repository)(nil)

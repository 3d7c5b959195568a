package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/repository"
)

const selectColumns = `SELECT id, short_key, secret_key, target_url, is_active, clicks, created_at FROM urls`

// Repository implements repository.RecordStore using SQLite
type Repository struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New opens (or creates) the SQLite database at databasePath and migrates it
func New(databasePath string, logger zerolog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite3", dsn(databasePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{
		db:     db,
		logger: logger.With().Str("component", "sqlite").Logger(),
	}

	if err := repo.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// dsn enables foreign keys and WAL mode, and makes concurrent writers wait
// on the database lock instead of failing with SQLITE_BUSY
func dsn(databasePath string) string {
	params := "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if strings.Contains(databasePath, "?") {
		return databasePath + "&" + params
	}
	return databasePath + "?" + params
}

// FindByKey retrieves a record by its short key
func (r *Repository) FindByKey(ctx context.Context, shortKey string, activeOnly bool) (*domain.URLRecord, error) {
	query := selectColumns + ` WHERE short_key = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, shortKey))
	if err != nil {
		return nil, mapError("failed to get URL", err)
	}
	return record, nil
}

// KeyExists checks if a short key is taken by any record
func (r *Repository) KeyExists(ctx context.Context, shortKey string) (bool, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM urls WHERE short_key = ?`, shortKey).Scan(&count)
	if err != nil {
		return false, mapError("failed to check URL existence", err)
	}
	return count > 0, nil
}

// Insert creates a new URL record
func (r *Repository) Insert(ctx context.Context, record *domain.URLRecord) (*domain.URLRecord, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO urls (short_key, secret_key, target_url, is_active, clicks, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ShortKey, record.SecretKey, record.TargetURL, record.Active, record.Clicks, record.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, mapError("failed to create URL", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, mapError("failed to read inserted id", err)
	}

	created := record.Clone()
	created.ID = id
	return created, nil
}

// UpdateActive sets the active flag of a record
func (r *Repository) UpdateActive(ctx context.Context, shortKey string, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE urls SET is_active = ? WHERE short_key = ?`, active, shortKey)
	if err != nil {
		return mapError("failed to update URL", err)
	}
	return requireAffected(result, "failed to update URL")
}

// IncrementClicks adds delta to the click counter of a record
func (r *Repository) IncrementClicks(ctx context.Context, shortKey string, delta int64) error {
	if delta <= 0 {
		return fmt.Errorf("click delta must be positive, got %d", delta)
	}

	result, err := r.db.ExecContext(ctx, `UPDATE urls SET clicks = clicks + ? WHERE short_key = ?`, delta, shortKey)
	if err != nil {
		return mapError("failed to update clicks", err)
	}
	return requireAffected(result, "failed to update clicks")
}

// DeleteMany removes the records for the given short keys
func (r *Repository) DeleteMany(ctx context.Context, shortKeys []string) (int64, error) {
	if len(shortKeys) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(shortKeys))
	args := make([]any, len(shortKeys))
	for i, key := range shortKeys {
		placeholders[i] = "?"
		args[i] = key
	}

	query := `DELETE FROM urls WHERE short_key IN (` + strings.Join(placeholders, ", ") + `)`
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError("failed to delete URLs", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, mapError("failed to delete URLs", err)
	}
	return deleted, nil
}

// DeleteInactive removes every deactivated record
func (r *Repository) DeleteInactive(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM urls WHERE is_active = 0`)
	if err != nil {
		return 0, mapError("failed to delete inactive URLs", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, mapError("failed to delete inactive URLs", err)
	}
	return deleted, nil
}

// List retrieves all records, newest first
func (r *Repository) List(ctx context.Context) ([]*domain.URLRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC`)
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

// Close closes the repository connection
func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.URLRecord, error) {
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

func requireAffected(result sql.Result, msg string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError(msg, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// mapError translates driver errors into domain errors
func mapError(msg string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %w: %v", msg, domain.ErrDuplicateKey, err)
		}
	}

	return fmt.Errorf("%s: %w: %v", msg, domain.ErrStoreUnavailable, err)
}

// Ensure Repository implements the interface
var _ repository.RecordStore = (*Repository)(nil)

package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/shortlink/internal/domain"
)

func TestRepository_New(t *testing.T) {
	dbPath := createTempDB(t)

	repo, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, repo)
	assert.NotNil(t, repo.db)

	// Verify database connection is working
	err = repo.db.Ping()
	assert.NoError(t, err)

	err = repo.Close()
	assert.NoError(t, err)
}

func TestRepository_New_Reopen(t *testing.T) {
	dbPath := createTempDB(t)
	ctx := context.Background()

	repo, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newRecord("test123"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	// Migrations are idempotent and data survives a restart
	repo, err = New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer repo.Close()

	record, err := repo.FindByKey(ctx, "test123", true)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/test123", record.TargetURL)
}

func TestRepository_New_InvalidPath(t *testing.T) {
	repo, err := New("/invalid/path/to/database.db", zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, repo)
}

func TestRepository_Insert(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	record := newRecord("test123")
	created, err := repo.Insert(ctx, record)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, record.ShortKey, created.ShortKey)
	assert.Equal(t, record.SecretKey, created.SecretKey)
	assert.Equal(t, record.TargetURL, created.TargetURL)
	assert.True(t, created.Active)
	assert.Equal(t, int64(0), created.Clicks)
	assert.WithinDuration(t, record.CreatedAt, created.CreatedAt, time.Second)

	// The caller's record is not mutated
	assert.Zero(t, record.ID)
}

func TestRepository_Insert_Duplicate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, newRecord("test123"))
	require.NoError(t, err)

	t.Run("duplicate short key", func(t *testing.T) {
		dup := newRecord("test123")
		dup.SecretKey = "othersecret"
		_, err := repo.Insert(ctx, dup)
		assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	})

	t.Run("duplicate secret key", func(t *testing.T) {
		dup := newRecord("other1")
		dup.SecretKey = "secret-test123"
		_, err := repo.Insert(ctx, dup)
		assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	})
}

func TestRepository_FindByKey(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.Insert(ctx, newRecord("test123"))
	require.NoError(t, err)

	retrieved, err := repo.FindByKey(ctx, "test123", true)
	require.NoError(t, err)
	assert.Equal(t, created.ID, retrieved.ID)
	assert.Equal(t, created.ShortKey, retrieved.ShortKey)
	assert.Equal(t, created.TargetURL, retrieved.TargetURL)
	assert.WithinDuration(t, created.CreatedAt, retrieved.CreatedAt, time.Second)

	_, err = repo.FindByKey(ctx, "nonexistent", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_FindByKey_ActiveOnly(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, newRecord("test123"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateActive(ctx, "test123", false))

	_, err = repo.FindByKey(ctx, "test123", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	record, err := repo.FindByKey(ctx, "test123", false)
	require.NoError(t, err)
	assert.False(t, record.Active)
}

func TestRepository_KeyExists(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	exists, err := repo.KeyExists(ctx, "test123")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Insert(ctx, newRecord("test123"))
	require.NoError(t, err)

	exists, err = repo.KeyExists(ctx, "test123")
	require.NoError(t, err)
	assert.True(t, exists)

	// Inactive records still hold their key
	require.NoError(t, repo.UpdateActive(ctx, "test123", false))
	exists, err = repo.KeyExists(ctx, "test123")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.DeleteMany(ctx, []string{"test123"})
	require.NoError(t, err)
	exists, err = repo.KeyExists(ctx, "test123")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepository_UpdateActive(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, newRecord("test123"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateActive(ctx, "test123", false))
	record, err := repo.FindByKey(ctx, "test123", false)
	require.NoError(t, err)
	assert.False(t, record.Active)

	// Setting the same value again is not an error
	require.NoError(t, repo.UpdateActive(ctx, "test123", false))

	require.NoError(t, repo.UpdateActive(ctx, "test123", true))
	record, err = repo.FindByKey(ctx, "test123", true)
	require.NoError(t, err)
	assert.True(t, record.Active)

	err = repo.UpdateActive(ctx, "nonexistent", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_IncrementClicks(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, newRecord("test123"))
	require.NoError(t, err)

	require.NoError(t, repo.IncrementClicks(ctx, "test123", 5))
	require.NoError(t, repo.IncrementClicks(ctx, "test123", 1))

	record, err := repo.FindByKey(ctx, "test123", true)
	require.NoError(t, err)
	assert.Equal(t, int64(6), record.Clicks)

	err = repo.IncrementClicks(ctx, "nonexistent", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = repo.IncrementClicks(ctx, "test123", 0)
	assert.Error(t, err)
	err = repo.IncrementClicks(ctx, "test123", -3)
	assert.Error(t, err)
}

func TestRepository_DeleteMany(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Insert(ctx, newRecord(fmt.Sprintf("key%d", i)))
		require.NoError(t, err)
	}

	deleted, err := repo.DeleteMany(ctx, []string{"key0", "key2", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = repo.FindByKey(ctx, "key0", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindByKey(ctx, "key1", false)
	assert.NoError(t, err)

	deleted, err = repo.DeleteMany(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestRepository_DeleteInactive(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := repo.Insert(ctx, newRecord(fmt.Sprintf("key%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, repo.UpdateActive(ctx, "key1", false))
	require.NoError(t, repo.UpdateActive(ctx, "key3", false))

	deleted, err := repo.DeleteInactive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.True(t, record.Active)
	}

	deleted, err = repo.DeleteInactive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestRepository_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	records, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 0)

	first, err := repo.Insert(ctx, newRecord("test1"))
	require.NoError(t, err)
	second, err := repo.Insert(ctx, newRecord("test2"))
	require.NoError(t, err)
	third, err := repo.Insert(ctx, newRecord("test3"))
	require.NoError(t, err)

	records, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first
	assert.Equal(t, third.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)
	assert.Equal(t, first.ID, records[2].ID)
}

func TestRepository_ConcurrentOperations(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	numGoroutines := 10
	done := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			key := fmt.Sprintf("test%d", id)
			if _, err := repo.Insert(ctx, newRecord(key)); err != nil {
				done <- err
				return
			}
			done <- repo.IncrementClicks(ctx, key, 1)
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		err := <-done
		assert.NoError(t, err)
	}

	records, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, numGoroutines)
	for _, record := range records {
		assert.Equal(t, int64(1), record.Clicks)
	}
}

func TestRepository_Close(t *testing.T) {
	dbPath := createTempDB(t)

	repo, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)

	err = repo.Close()
	assert.NoError(t, err)

	// Use after close surfaces as an unavailable store
	_, err = repo.List(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestRepository_ContextCancellation(t *testing.T) {
	repo := setupTestRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Insert(ctx, newRecord("test123"))
	assert.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "context canceled")
}

// Helper functions

func newRecord(key string) *domain.URLRecord {
	return &domain.URLRecord{
		ShortKey:  key,
		SecretKey: "secret-" + key,
		TargetURL: "https://example.com/" + key,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func createTempDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Cleanup(func() {
		os.Remove(dbPath)
	})
	return dbPath
}

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(createTempDB(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/repository"
	"github.com/joshdurbin/shortlink/internal/shortener"
)

// DefaultMaxInsertAttempts caps insert retries after unique key violations
const DefaultMaxInsertAttempts = 10

// Options configures the URL shortener service
type Options struct {
	StoreTimeout       time.Duration
	ClickFlushInterval time.Duration
	MaxInsertAttempts  int
	Metrics            Metrics
	Logger             zerolog.Logger
}

// urlShortener implements URLShortener interface
type urlShortener struct {
	store             repository.RecordStore
	resolver          *Resolver
	generator         shortener.Generator
	clicks            *ClickRecorder
	storeTimeout      time.Duration
	maxInsertAttempts int
	logger            zerolog.Logger
}

// NewURLShortener creates a new URL shortener service
func NewURLShortener(store repository.RecordStore, resolver *Resolver, generator shortener.Generator, opts Options) URLShortener {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.MaxInsertAttempts <= 0 {
		opts.MaxInsertAttempts = DefaultMaxInsertAttempts
	}

	clicks := NewClickRecorder(store, ClickRecorderOptions{
		FlushInterval: opts.ClickFlushInterval,
		StoreTimeout:  opts.StoreTimeout,
		Metrics:       opts.Metrics,
		Logger:        opts.Logger,
	})

	return &urlShortener{
		store:             store,
		resolver:          resolver,
		generator:         generator,
		clicks:            clicks,
		storeTimeout:      opts.StoreTimeout,
		maxInsertAttempts: opts.MaxInsertAttempts,
		logger:            opts.Logger.With().Str("component", "shortener").Logger(),
	}
}

// Shorten creates a new short URL. The record is not cached until first resolved.
func (s *urlShortener) Shorten(ctx context.Context, targetURL string) (*domain.URLRecord, error) {
	if err := validateURL(targetURL); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.maxInsertAttempts; attempt++ {
		record, err := s.tryInsert(ctx, targetURL)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, domain.ErrDuplicateKey) {
			return nil, err
		}

		// Another writer took the key or secret between the check and the insert
		s.logger.Debug().Int("attempt", attempt).Msg("Key collision on insert, regenerating")
	}

	return nil, fmt.Errorf("%w: insert collided %d times", domain.ErrKeySpaceExhausted, s.maxInsertAttempts)
}

func (s *urlShortener) tryInsert(ctx context.Context, targetURL string) (*domain.URLRecord, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	shortKey, err := s.generator.GenerateShortKey(storeCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate short key: %w", err)
	}
	secretKey, err := s.generator.GenerateSecretKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret key: %w", err)
	}

	record, err := s.store.Insert(storeCtx, &domain.URLRecord{
		ShortKey:  shortKey,
		SecretKey: secretKey,
		TargetURL: targetURL,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create URL: %w", storeError(err))
	}
	return record, nil
}

// ResolveAndCount resolves a short key and records a click on success
func (s *urlShortener) ResolveAndCount(ctx context.Context, shortKey string) (string, bool, error) {
	record, ok, err := s.resolver.Resolve(ctx, shortKey)
	if err != nil || !ok {
		return "", false, err
	}

	s.clicks.Record(shortKey)
	return record.TargetURL, true, nil
}

// GetURLInfo retrieves detailed information about a short URL
func (s *urlShortener) GetURLInfo(ctx context.Context, shortKey string) (*domain.URLRecord, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	record, err := s.store.FindByKey(storeCtx, shortKey, false)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get URL: %w", storeError(err))
	}

	record.Clicks += s.clicks.Pending(shortKey)
	return record, nil
}

// ListURLs retrieves all records with unflushed clicks included
func (s *urlShortener) ListURLs(ctx context.Context) ([]*domain.URLRecord, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	records, err := s.store.List(storeCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list URLs: %w", storeError(err))
	}

	for _, record := range records {
		record.Clicks += s.clicks.Pending(record.ShortKey)
	}
	return records, nil
}

// Deactivate marks a short URL inactive
func (s *urlShortener) Deactivate(ctx context.Context, shortKey string) error {
	return s.resolver.SetActive(ctx, shortKey, false)
}

// Reactivate marks a short URL active
func (s *urlShortener) Reactivate(ctx context.Context, shortKey string) error {
	return s.resolver.SetActive(ctx, shortKey, true)
}

// DeleteKeys removes short URLs
func (s *urlShortener) DeleteKeys(ctx context.Context, shortKeys []string) (int64, error) {
	return s.resolver.Delete(ctx, shortKeys)
}

// DeleteInactive removes every deactivated short URL
func (s *urlShortener) DeleteInactive(ctx context.Context) (int64, error) {
	return s.resolver.DeleteInactive(ctx)
}

// StartClickSync starts the background click flush
func (s *urlShortener) StartClickSync(ctx context.Context) error {
	return s.clicks.Start(ctx)
}

// StopClickSync stops the background click flush
func (s *urlShortener) StopClickSync() error {
	return s.clicks.Stop()
}

// Close flushes pending clicks and closes the store
func (s *urlShortener) Close() error {
	if err := s.clicks.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Pending clicks could not be flushed on close")
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close repository: %w", err)
	}
	return nil
}

// validateURL accepts absolute http and https URLs with a host
func validateURL(targetURL string) error {
	parsedURL, err := url.ParseRequestURI(targetURL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}

	// Only allow HTTP and HTTPS schemes
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: only HTTP and HTTPS are supported", domain.ErrInvalidURL)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%w: missing host", domain.ErrInvalidURL)
	}
	return nil
}

// Ensure urlShortener implements URLShortener interface
var _ URLShortener = (*urlShortener)(nil)

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/repository"
)

// DefaultClickFlushInterval is used when no flush interval is configured
const DefaultClickFlushInterval = time.Second

// ClickRecorderOptions configures a ClickRecorder
type ClickRecorderOptions struct {
	FlushInterval time.Duration
	StoreTimeout  time.Duration
	Metrics       Metrics
	Logger        zerolog.Logger
}

// ClickRecorder buffers clicks per short key and writes them to the store in
// batches. Each recorded click is written once; counts whose write fails
// because the store is unavailable are kept for the next flush, counts for
// deleted records are dropped.
type ClickRecorder struct {
	store        repository.RecordStore
	interval     time.Duration
	storeTimeout time.Duration
	metrics      Metrics
	logger       zerolog.Logger

	mu       sync.Mutex
	pending  map[string]int64
	inflight map[string]int64 // drained by the running flush, not yet settled
	total    int64

	flushMu sync.Mutex

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewClickRecorder creates a new click recorder writing to store
func NewClickRecorder(store repository.RecordStore, opts ClickRecorderOptions) *ClickRecorder {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultClickFlushInterval
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}

	return &ClickRecorder{
		store:        store,
		interval:     opts.FlushInterval,
		storeTimeout: opts.StoreTimeout,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With().Str("component", "clicks").Logger(),
		pending:      make(map[string]int64),
	}
}

// Record counts one click for shortKey without touching the store
func (c *ClickRecorder) Record(shortKey string) {
	c.mu.Lock()
	c.pending[shortKey]++
	c.total++
	total := c.total
	c.mu.Unlock()

	c.metrics.SetPendingClicks(total)
}

// Pending returns the clicks recorded for shortKey that are not yet flushed
func (c *ClickRecorder) Pending(shortKey string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[shortKey] + c.inflight[shortKey]
}

// Flush writes every pending count to the store
func (c *ClickRecorder) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	batch := c.drain()
	if len(batch) == 0 {
		return nil
	}

	var errs []error
	for shortKey, count := range batch {
		storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
		err := c.store.IncrementClicks(storeCtx, shortKey, count)
		cancel()

		switch {
		case err == nil:
			c.settle(shortKey, count, false)
			c.metrics.ClicksFlushed(count)
		case errors.Is(err, domain.ErrNotFound):
			c.settle(shortKey, count, false)
			c.logger.Debug().Str("short_key", shortKey).Int64("clicks", count).Msg("Dropping clicks for deleted URL")
		default:
			c.settle(shortKey, count, true)
			c.metrics.ClickFlushFailed()
			errs = append(errs, fmt.Errorf("failed to flush clicks for %s: %w", shortKey, err))
		}
	}

	c.mu.Lock()
	total := c.total
	c.mu.Unlock()
	c.metrics.SetPendingClicks(total)

	return errors.Join(errs...)
}

// Start starts flushing at the configured interval until ctx is done or Stop is called
func (c *ClickRecorder) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.running {
		return nil // Already running
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.done = make(chan struct{})

	go c.backgroundFlush(ctx, c.stopChan, c.done)
	return nil
}

// Stop stops the flush loop and waits for its final flush
func (c *ClickRecorder) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false
	close(c.stopChan)
	<-c.done

	return nil
}

// Close stops the flush loop and writes whatever is still pending
func (c *ClickRecorder) Close() error {
	if err := c.Stop(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.storeTimeout)
	defer cancel()
	return c.Flush(ctx)
}

func (c *ClickRecorder) backgroundFlush(ctx context.Context, stopChan <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flushAndLog(ctx)
		case <-stopChan:
			// Final flush before stopping
			c.flushAndLog(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			c.flushAndLog(context.WithoutCancel(ctx))
			return
		}
	}
}

func (c *ClickRecorder) flushAndLog(ctx context.Context) {
	if err := c.Flush(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to flush clicks, will retry")
	}
}

func (c *ClickRecorder) drain() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}
	batch := c.pending
	c.pending = make(map[string]int64, len(batch))
	c.inflight = make(map[string]int64, len(batch))
	for shortKey, count := range batch {
		c.inflight[shortKey] = count
	}
	c.total = 0
	return batch
}

// settle removes a drained count from the in-flight set, returning it to
// pending when requeue is set
func (c *ClickRecorder) settle(shortKey string, count int64, requeue bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, shortKey)
	if requeue {
		c.pending[shortKey] += count
		c.total += count
	}
}

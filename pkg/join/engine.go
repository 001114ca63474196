// Package join aggregates the MangaDex listing with its author and cover
// lookups into complete manga.
//
// Every listing record yields a partial manga that waits in the incomplete
// table while two enrichment fetches run. Responses are merged under the
// record's lock in whatever order they arrive; the merge that completes the
// manga removes it from the table and publishes it to the completed
// collection unless its id was published before.
//
// The consumer asks for more at any time with RequestPage and reads the
// collection through Completed, Watch or Stream.
package join

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/mangadex-client/pkg/logging"
	"github.com/Sternrassler/mangadex-client/pkg/manga"
	"github.com/Sternrassler/mangadex-client/pkg/pagination"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Fetcher performs a GET and returns the JSON document of the response.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (json.RawMessage, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (json.RawMessage, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (json.RawMessage, error) {
	return f(ctx, url)
}

// Config holds the engine configuration.
type Config struct {
	// Endpoints are the API and uploads base URLs.
	Endpoints manga.Endpoints

	// Query is the listing language and page size.
	Query pagination.Query

	// MaxConcurrency bounds the number of fetches in flight.
	MaxConcurrency int64

	// FetchTimeout bounds each fetch. Zero means no timeout, in which case
	// an enrichment that never answers keeps its manga incomplete forever.
	FetchTimeout time.Duration

	// Shards is the lock stripe count of the default table.
	Shards int

	// OnError, if set, receives every transport and decode error besides
	// the log line. It is called from fetch goroutines.
	OnError func(error)
}

// DefaultConfig returns the configuration for the public MangaDex API.
func DefaultConfig() Config {
	return Config{
		Endpoints:      manga.DefaultEndpoints(),
		Query:          pagination.DefaultQuery(),
		MaxConcurrency: 8,
		Shards:         DefaultShards,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTable replaces the default sharded table.
func WithTable(t Table) Option {
	return func(e *Engine) { e.table = t }
}

// WithLogger replaces the default component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock replaces time.Now for registration timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the incomplete-entity join engine.
type Engine struct {
	fetcher   Fetcher
	config    Config
	table     Table
	completed *Collection
	sem       *semaphore.Weighted
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a join engine fetching through fetcher.
func New(fetcher Fetcher, cfg Config, opts ...Option) (*Engine, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Endpoints.API == "" || cfg.Endpoints.Uploads == "" {
		return nil, fmt.Errorf("api and uploads endpoints are required")
	}
	if err := cfg.Query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid listing query: %w", err)
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}

	e := &Engine{
		fetcher:   fetcher,
		config:    cfg,
		completed: NewCollection(),
		sem:       semaphore.NewWeighted(cfg.MaxConcurrency),
		logger:    logging.NewLogger(logging.ComponentJoin),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.table == nil {
		e.table = NewShardedTable(cfg.Shards)
	}

	return e, nil
}

// RequestPage requests the next listing window and returns its offset
// without waiting for the page or its enrichment.
//
// The offset is the completed count at the time of the call, so two calls
// made before the first page completes request the same window; duplicates
// are dropped on publish. Cancelling ctx does not cancel the fetches.
func (e *Engine) RequestPage(ctx context.Context) (int, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, ErrClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	window := e.config.Query.Next(e.completed.Len())
	listingURL := e.config.Endpoints.Listing(e.config.Query.Values(window))

	pagesRequestedTotal.Inc()
	e.logger.Debug().
		Int("offset", window.Offset).
		Int("limit", window.Limit).
		Str("url", listingURL).
		Msg("Requesting listing page")

	go e.loadPage(context.WithoutCancel(ctx), listingURL, window.Offset)

	return window.Offset, nil
}

// Completed returns a snapshot of the completed manga in completion order.
func (e *Engine) Completed() []manga.Manga {
	return e.completed.Snapshot()
}

// Len returns the number of completed manga.
func (e *Engine) Len() int {
	return e.completed.Len()
}

// Collection exposes the completed collection for read access.
func (e *Engine) Collection() *Collection {
	return e.completed
}

// Watch signals after appends to the completed collection.
// See Collection.Watch.
func (e *Engine) Watch() (<-chan struct{}, func()) {
	return e.completed.Watch()
}

// Stream delivers every completed manga, starting with those already
// published, in completion order. The channel is closed when ctx is done.
func (e *Engine) Stream(ctx context.Context) <-chan manga.Manga {
	out := make(chan manga.Manga)
	notify, stop := e.completed.Watch()

	go func() {
		defer close(out)
		defer stop()

		next := 0
		for {
			for _, m := range e.completed.Since(next) {
				select {
				case out <- m:
					next++
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-notify:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Incomplete returns the manga still waiting for enrichment.
func (e *Engine) Incomplete() []Entry {
	return e.table.Snapshot()
}

// Stale returns the incomplete entries registered more than maxAge ago.
// With no fetch timeout these are the entries whose enrichment failed.
func (e *Engine) Stale(maxAge time.Duration) []Entry {
	cutoff := e.now().Add(-maxAge)
	var stale []Entry
	for _, entry := range e.table.Snapshot() {
		if entry.RegisteredAt.Before(cutoff) {
			stale = append(stale, entry)
		}
	}
	return stale
}

// Wait blocks until every fetch issued so far, and every fetch those issue
// in turn, has been handled, or until ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close makes later RequestPage calls fail with ErrClosed. Fetches already
// in flight still complete and publish.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

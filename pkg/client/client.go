// Package client is the MangaDex HTTP fetch client: request pacing, rate
// limit gating, a lookup cache, and retries with backoff.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/mangadex-client/pkg/cache"
	"github.com/Sternrassler/mangadex-client/pkg/logging"
	"github.com/Sternrassler/mangadex-client/pkg/manga"
	"github.com/Sternrassler/mangadex-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client fetches MangaDex resources. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	retry       RetryConfig
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis backs the lookup cache and the shared rate limit state.
	// Optional: without it nothing is cached and the state stays in process.
	Redis *redis.Client

	// UserAgent identifies the application to MangaDex (required).
	// Format: "AppName/Version (contact)"
	UserAgent string

	// RateLimit is the sustained request rate per second.
	RateLimit float64

	// Burst is the token bucket size.
	Burst int

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RequestTimeout bounds each HTTP attempt.
	RequestTimeout time.Duration

	// CacheLookups caches cover and author responses when Redis is set.
	CacheLookups bool
}

// DefaultConfig returns a configuration that stays under the public API
// limit of five requests per second.
func DefaultConfig(redisClient *redis.Client, userAgent string) Config {
	return Config{
		Redis:          redisClient,
		UserAgent:      userAgent,
		RateLimit:      5,
		Burst:          5,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		RequestTimeout: 30 * time.Second,
		CacheLookups:   true,
	}
}

// New creates a MangaDex client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("rate_limit must be > 0 (got %v)", cfg.RateLimit)
	}
	if cfg.Burst < 1 {
		return nil, fmt.Errorf("burst must be >= 1 (got %d)", cfg.Burst)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	logger := logging.NewLogger(logging.ComponentClient)

	var store ratelimit.Store
	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		store = ratelimit.NewRedisStore(cfg.Redis)
		if cfg.CacheLookups {
			cacheManager = cache.NewManager(cfg.Redis)
		}
	}

	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.MaxBackoff
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		rateLimiter: ratelimit.NewTracker(store, logging.NewLogger(logging.ComponentRateLimit)),
		cache:       cacheManager,
		retry:       retry,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do sends a GET through the pipeline: pacing, rate limit gate, cache,
// HTTP with retries, cache store. Any status other than 2xx, and 304 on a
// cached entry, ends as a *TransportError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)
	target := req.URL.String()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Cache first: a fresh hit costs no rate limit budget.
	var (
		cacheKey    cache.Key
		cachedEntry *cache.Entry
	)
	cacheable := c.cache != nil && req.Method == http.MethodGet && cache.IsLookup(req.URL.Path)
	if cacheable {
		cacheKey = cache.KeyForURL(req.URL)
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("url", target).Msg("Cache get error")
		}
		if entry != nil && !entry.IsExpired() {
			requestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			c.logger.Debug().Str("url", target).Msg("Served from cache")
			return cache.EntryToResponse(entry, req), nil
		}
		cachedEntry = entry
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
	}

	allowed, wait, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, &TransportError{
			URL:        target,
			Class:      ErrorClassRateLimit,
			Message:    "rate limit window exhausted",
			RetryAfter: wait,
			Err:        ErrRateLimited,
		}
	}

	if cachedEntry != nil && cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("url", target).
		Str("method", req.Method).
		Msg("Executing MangaDex request")

	var resp *http.Response
	err = retryWithBackoff(ctx, c.retry, c.logger, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(reqErr).Str("url", target).Msg("HTTP request failed")
			return &TransportError{URL: target, Class: ErrorClassNetwork, Err: reqErr}
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
			return nil
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		class := classifyStatus(resp.StatusCode)
		if class == "" {
			class = ErrorClassClient
		}
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("MangaDex request error")

		te := &TransportError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    http.StatusText(resp.StatusCode),
			RetryAfter: retryAfter(resp.Header, time.Now()),
		}
		drain(resp)
		resp = nil
		return te
	})
	if err != nil {
		if resp != nil {
			drain(resp)
		}
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified {
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("url", target).Msg("304 Not Modified - using cache")
		if err := c.cache.UpdateTTL(ctx, cacheKey, cache.ExpiresAt(resp.Header, time.Now())); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		drain(resp)
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	if cacheable && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// Fetch GETs rawURL and returns its JSON body. It implements join.Fetcher.
// A body that is not JSON is a *manga.DecodeError; everything else that
// fails is a *TransportError or a context error.
func (c *Client) Fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Err: err}
	}

	if !json.Valid(body) {
		return nil, &manga.DecodeError{Field: "body", Err: errors.New("response is not valid JSON")}
	}

	return json.RawMessage(body), nil
}

// RateLimitState returns the rate limit window last reported by MangaDex.
func (c *Client) RateLimitState(ctx context.Context) (*ratelimit.State, error) {
	return c.rateLimiter.GetState(ctx)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// endpointLabel maps a request path to a bounded metric label.
func endpointLabel(p string) string {
	dir, base := path.Split(strings.TrimSuffix(p, "/"))
	switch {
	case base == "manga":
		return "manga"
	case base == "author":
		return "author"
	case strings.HasSuffix(dir, "/cover/"):
		return "cover"
	default:
		return "other"
	}
}

// drain discards and closes the response body so the connection is reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

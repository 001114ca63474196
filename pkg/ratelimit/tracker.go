package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultThrottleDelay is how long a request waits while the window is
// nearly exhausted.
const DefaultThrottleDelay = time.Second

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mangadex_rate_limit_remaining",
		Help: "Requests remaining in the current MangaDex rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mangadex_rate_limit_blocks_total",
		Help: "Total number of requests refused while the rate limit window is exhausted",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mangadex_rate_limit_throttles_total",
		Help: "Total number of requests delayed near rate limit exhaustion",
	})
)

// Tracker monitors the MangaDex rate limit window and gates requests.
type Tracker struct {
	store         Store
	logger        zerolog.Logger
	throttleDelay time.Duration
}

// NewTracker creates a rate limit tracker. A nil store keeps the state in
// process.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:         store,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
	}
}

// SetThrottleDelay changes the delay applied in the warning range.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// GetState returns the current state, or a healthy default if none has been
// recorded.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	state, err := t.store.Load(ctx)
	if errors.Is(err, ErrNoState) {
		t.logger.Debug().Msg("No rate limit state recorded, assuming healthy")
		return defaultState(), nil
	}
	if err != nil {
		return nil, err
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders records the window reported by a response. Responses
// without X-RateLimit-Remaining leave the state unchanged.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	retryStr := headers.Get(HeaderRetryAfter)
	if retryStr == "" {
		return fmt.Errorf("%s header missing", HeaderRetryAfter)
	}
	retryUnix, err := strconv.ParseInt(retryStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRetryAfter, err)
	}

	limit := 0
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	state := &State{
		Limit:      limit,
		Remaining:  remain,
		RetryAfter: time.Unix(retryUnix, 0),
		LastUpdate: time.Now(),
	}
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	rateLimitRemaining.Set(float64(remain))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Warn().
			Int("remaining", remain).
			Time("retry_after", state.RetryAfter).
			Msg("MangaDex rate limit exhausted - requests will wait for reset")
	case state.NeedsThrottling():
		t.logger.Info().
			Int("remaining", remain).
			Time("retry_after", state.RetryAfter).
			Msg("MangaDex rate limit nearly exhausted - requests will be throttled")
	default:
		t.logger.Debug().
			Int("limit", limit).
			Int("remaining", remain).
			Msg("MangaDex rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now. It returns
// false while the window is exhausted, and delays the caller in the warning
// range. The returned duration is how long a blocked caller should wait.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		wait := state.TimeUntilReset()
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("MangaDex rate limit exhausted - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, wait, nil
	}

	if state.NeedsThrottling() {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("delay", t.throttleDelay).
			Msg("MangaDex rate limit low - throttling request")

		rateLimitThrottlesTotal.Inc()
		select {
		case <-ctx.Done():
			return false, 0, ctx.Err()
		case <-time.After(t.throttleDelay):
		}
	}

	return true, 0, nil
}

// Package ratelimit tracks the MangaDex request rate limit and gates requests.
// It reads the X-RateLimit-Remaining and X-RateLimit-Retry-After headers so
// that a client stops before the API starts answering 429.
package ratelimit

import (
	"time"
)

// Response headers carrying the rate limit window.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "X-RateLimit-Retry-After"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyLimit      = "mangadex:rate_limit:limit"
	RedisKeyRemaining  = "mangadex:rate_limit:remaining"
	RedisKeyRetryAfter = "mangadex:rate_limit:retry_after"
	RedisKeyLastUpdate = "mangadex:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests while fewer requests than
	// this remain in the current window.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning throttles requests while fewer requests than
	// this remain in the current window.
	RemainingThresholdWarning = 3
)

// State is the rate limit window last reported by the API.
// It is shared across client instances through a Store.
type State struct {
	// Limit is the window size from X-RateLimit-Limit (0 if not sent).
	Limit int `json:"limit"`

	// Remaining is the number of requests left, from X-RateLimit-Remaining.
	Remaining int `json:"remaining"`

	// RetryAfter is when the window resets, from X-RateLimit-Retry-After
	// (a unix timestamp).
	RetryAfter time.Time `json:"retry_after"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when requests need neither blocking nor throttling.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// windowOpen reports whether the reported window has not reset yet.
// Remaining is meaningless once it has.
func (s *State) windowOpen() bool {
	return s.TimeUntilReset() > 0
}

// NeedsCriticalBlock returns true if requests must wait for the window reset.
func (s *State) NeedsCriticalBlock() bool {
	return s.windowOpen() && s.Remaining < RemainingThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.windowOpen() && s.Remaining < RemainingThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0 if it
// already has.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.RetryAfter)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates IsHealthy from the current window.
func (s *State) UpdateHealth() {
	s.IsHealthy = !s.NeedsCriticalBlock() && !s.NeedsThrottling()
}

// defaultState is assumed until the API reports a window.
func defaultState() *State {
	return &State{
		LastUpdate: time.Now(),
		IsHealthy:  true,
	}
}

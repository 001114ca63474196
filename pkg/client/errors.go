package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/mangadex-client/pkg/ratelimit"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends while waiting.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned when the rate limit window is exhausted.
	ErrRateLimited = errors.New("rate limited")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and locally refused requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// TransportError is a failed fetch: no response, or a non-success status.
type TransportError struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Message    string

	// RetryAfter is the server's hint for when to try again, if any.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("GET %s: %s error: %v", e.URL, e.Class, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("GET %s: %s error (status %d): %s: %v", e.URL, e.Class, e.StatusCode, e.Message, e.Err)
	default:
		return fmt.Sprintf("GET %s: %s error (status %d): %s", e.URL, e.Class, e.StatusCode, e.Message)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err. Errors that are not a TransportError
// are network errors.
func ClassOf(err error) ErrorClass {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Class
	}
	return ErrorClassNetwork
}

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// retryAfter reads the wait hint of a refused response: the MangaDex
// X-RateLimit-Retry-After timestamp, else a Retry-After in seconds.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get(ratelimit.HeaderRetryAfter); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(unix, 0).Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// shouldRetry determines if an error class is retried.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx: the same request fails the same way
		return false
	}
}

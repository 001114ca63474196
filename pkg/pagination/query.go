package pagination

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// DefaultLimit is the page size requested when none is configured.
	DefaultLimit = 20

	// MaxLimit is the largest page size the listing endpoint accepts.
	MaxLimit = 100

	// DefaultLanguage filters listings to manga with an English translation.
	DefaultLanguage = "en"
)

// Window is one offset/limit slice of the listing.
type Window struct {
	Offset int
	Limit  int
}

// Query describes the listing request apart from its window.
type Query struct {
	// Language is sent as availableTranslatedLanguage[].
	Language string

	// Limit is the page size.
	Limit int
}

// DefaultQuery returns the English, 20-per-page listing query.
func DefaultQuery() Query {
	return Query{
		Language: DefaultLanguage,
		Limit:    DefaultLimit,
	}
}

// Validate checks the query against the listing endpoint constraints.
func (q Query) Validate() error {
	if q.Language == "" {
		return fmt.Errorf("language is required")
	}
	if q.Limit <= 0 || q.Limit > MaxLimit {
		return fmt.Errorf("limit must be in 1..%d (got %d)", MaxLimit, q.Limit)
	}
	return nil
}

// Next returns the window starting at the completed count.
func (q Query) Next(completed int) Window {
	if completed < 0 {
		completed = 0
	}
	return Window{Offset: completed, Limit: q.Limit}
}

// Values encodes the query and window as URL parameters.
func (q Query) Values(w Window) url.Values {
	v := url.Values{}
	v.Add("availableTranslatedLanguage[]", q.Language)
	v.Set("offset", strconv.Itoa(w.Offset))
	v.Set("limit", strconv.Itoa(w.Limit))
	return v
}

// OffsetOf extracts the window offset from a listing URL.
// It returns -1 when the URL carries no parseable offset.
func OffsetOf(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return -1
	}
	offset, err := strconv.Atoi(u.Query().Get("offset"))
	if err != nil {
		return -1
	}
	return offset
}

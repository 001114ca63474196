// Package testutil provides a mock MangaDex API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/mangadex-client/pkg/manga"
	"github.com/google/uuid"
)

// Title is one manga served by the mock, with its author and cover.
type Title struct {
	ID          string
	Title       string
	Description string
	AuthorID    string
	AuthorName  string
	CoverID     string
	CoverFile   string
}

// Failure makes a lookup answer with StatusCode instead of its record.
type Failure struct {
	StatusCode int
	Delay      time.Duration
}

// MockMangaDex serves /manga, /cover/{id} and /author?ids[]= from an
// in-memory catalogue.
type MockMangaDex struct {
	server *httptest.Server

	mu        sync.RWMutex
	titles    []Title
	handlers  map[string]http.HandlerFunc
	failures  map[string]Failure
	requests  map[string]int
	offsets   []int
	remaining int
}

// NewMockMangaDex starts a mock server with an empty catalogue.
func NewMockMangaDex() *MockMangaDex {
	m := &MockMangaDex{
		handlers:  make(map[string]http.HandlerFunc),
		failures:  make(map[string]Failure),
		requests:  make(map[string]int),
		remaining: 40,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockMangaDex) URL() string {
	return m.server.URL
}

// Endpoints returns endpoints pointing at the mock for both API and uploads.
func (m *MockMangaDex) Endpoints() manga.Endpoints {
	return manga.Endpoints{API: m.server.URL, Uploads: m.server.URL}
}

// Close shuts down the mock server.
func (m *MockMangaDex) Close() {
	m.server.Close()
}

// AddTitle appends a title with generated ids and returns it.
func (m *MockMangaDex) AddTitle(title, author string) Title {
	t := Title{
		ID:          uuid.NewString(),
		Title:       title,
		Description: "About " + title,
		AuthorID:    uuid.NewString(),
		AuthorName:  author,
		CoverID:     uuid.NewString(),
	}
	t.CoverFile = uuid.NewString() + ".jpg"

	m.mu.Lock()
	m.titles = append(m.titles, t)
	m.mu.Unlock()
	return t
}

// Seed adds n titles named "Title 1".."Title n".
func (m *MockMangaDex) Seed(n int) []Title {
	out := make([]Title, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, m.AddTitle(fmt.Sprintf("Title %d", i), fmt.Sprintf("Author %d", i)))
	}
	return out
}

// Titles returns the catalogue in listing order.
func (m *MockMangaDex) Titles() []Title {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Title(nil), m.titles...)
}

// Fail makes requests for path ("/cover/<id>" or "/author/<id>") fail.
func (m *MockMangaDex) Fail(path string, f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = f
}

// SetHandler overrides the handler for a path.
func (m *MockMangaDex) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetRemaining sets the X-RateLimit-Remaining value sent with every response.
func (m *MockMangaDex) SetRemaining(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = n
}

// RequestCount returns the number of requests for path (query excluded).
func (m *MockMangaDex) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// ListingOffsets returns the offsets of every listing request received.
func (m *MockMangaDex) ListingOffsets() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.offsets...)
}

// CoverURL returns the cover image URL the join should produce for t.
func (m *MockMangaDex) CoverURL(t Title) string {
	return m.Endpoints().CoverImage(t.ID, t.CoverFile)
}

func (m *MockMangaDex) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests[r.URL.Path]++
	handler := m.handlers[r.URL.Path]
	remaining := m.remaining
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Limit", "40")
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Retry-After", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))

	if handler != nil {
		handler(w, r)
		return
	}

	switch {
	case r.URL.Path == "/manga":
		m.serveListing(w, r)
	case strings.HasPrefix(r.URL.Path, "/cover/"):
		m.serveCover(w, strings.TrimPrefix(r.URL.Path, "/cover/"))
	case r.URL.Path == "/author":
		m.serveAuthor(w, r.URL.Query().Get("ids[]"))
	default:
		writeError(w, http.StatusNotFound)
	}
}

func (m *MockMangaDex) serveListing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	m.mu.Lock()
	m.offsets = append(m.offsets, offset)
	titles := append([]Title(nil), m.titles...)
	m.mu.Unlock()

	data := []map[string]any{}
	for i := offset; i < len(titles) && i < offset+limit; i++ {
		t := titles[i]
		data = append(data, map[string]any{
			"id":   t.ID,
			"type": "manga",
			"attributes": map[string]any{
				"title":       map[string]string{"en": t.Title},
				"description": map[string]string{"en": t.Description},
			},
			"relationships": []map[string]string{
				{"id": t.AuthorID, "type": "author"},
				{"id": t.CoverID, "type": "cover_art"},
			},
		})
	}

	writeJSON(w, map[string]any{
		"result":   "ok",
		"response": "collection",
		"data":     data,
		"limit":    limit,
		"offset":   offset,
		"total":    len(titles),
	})
}

func (m *MockMangaDex) serveCover(w http.ResponseWriter, coverID string) {
	if m.failed(w, "/cover/"+coverID) {
		return
	}
	for _, t := range m.Titles() {
		if t.CoverID == coverID {
			writeJSON(w, map[string]any{
				"result": "ok",
				"data": map[string]any{
					"id":         coverID,
					"type":       "cover_art",
					"attributes": map[string]string{"fileName": t.CoverFile},
				},
			})
			return
		}
	}
	writeError(w, http.StatusNotFound)
}

func (m *MockMangaDex) serveAuthor(w http.ResponseWriter, authorID string) {
	if m.failed(w, "/author/"+authorID) {
		return
	}
	data := []map[string]any{}
	for _, t := range m.Titles() {
		if t.AuthorID == authorID {
			data = append(data, map[string]any{
				"id":         authorID,
				"type":       "author",
				"attributes": map[string]string{"name": t.AuthorName},
			})
			break
		}
	}
	writeJSON(w, map[string]any{"result": "ok", "data": data})
}

// failed writes the configured failure for key, if any.
func (m *MockMangaDex) failed(w http.ResponseWriter, key string) bool {
	m.mu.RLock()
	f, ok := m.failures[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.StatusCode == 0 {
		return false
	}
	writeError(w, f.StatusCode)
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"result": "error",
		"errors": []map[string]any{{"status": status, "title": http.StatusText(status)}},
	})
}

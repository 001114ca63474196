package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/mangadex-client/pkg/join"
	"github.com/Sternrassler/mangadex-client/pkg/manga"
	"github.com/Sternrassler/mangadex-client/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type server struct {
	engine *join.Engine
	logger zerolog.Logger
}

type mangaList struct {
	Count int           `json:"count"`
	Manga []manga.Manga `json:"manga"`
}

type pendingManga struct {
	manga.Manga
	RegisteredAt time.Time `json:"registered_at"`
}

type pendingList struct {
	Count   int            `json:"count"`
	Pending []pendingManga `json:"pending"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /manga", s.listHandler)
	mux.HandleFunc("POST /manga/more", s.moreHandler)
	mux.HandleFunc("GET /manga/pending", s.pendingHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	return s.withRequestID(mux)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// listHandler returns the completed manga, or those from index ?since=N on.
func (s *server) listHandler(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = n
	}

	items := s.engine.Collection().Since(since)
	if items == nil {
		items = []manga.Manga{}
	}
	writeJSON(w, http.StatusOK, mangaList{Count: len(items), Manga: items})
}

// moreHandler requests the next listing page and returns its offset.
func (s *server) moreHandler(w http.ResponseWriter, r *http.Request) {
	offset, err := s.engine.RequestPage(r.Context())
	if errors.Is(err, join.ErrClosed) {
		http.Error(w, "feed is shutting down", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"offset": offset})
}

// pendingHandler lists manga waiting for enrichment, optionally only those
// older than ?older_than=<duration>.
func (s *server) pendingHandler(w http.ResponseWriter, r *http.Request) {
	entries := s.engine.Incomplete()
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			http.Error(w, "older_than must be a duration", http.StatusBadRequest)
			return
		}
		entries = s.engine.Stale(d)
	}

	out := pendingList{Pending: make([]pendingManga, 0, len(entries))}
	for _, e := range entries {
		out.Pending = append(out.Pending, pendingManga{Manga: e.Manga, RegisteredAt: e.RegisteredAt})
	}
	out.Count = len(out.Pending)
	writeJSON(w, http.StatusOK, out)
}

func (s *server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

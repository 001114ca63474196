package join

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Sternrassler/mangadex-client/pkg/manga"
)

// Enrichment kinds, used as log fields and metric labels.
const (
	KindCover  = "cover"
	KindAuthor = "author"
)

// enrichment describes one lookup that fills one field of a manga.
type enrichment struct {
	kind   string
	url    string
	decode func(body []byte) (string, error)
	apply  func(m manga.Manga, value string) manga.Manga
}

// fetch runs one fetch under the concurrency bound and the optional timeout.
func (e *Engine) fetch(ctx context.Context, url string) (json.RawMessage, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	if e.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.FetchTimeout)
		defer cancel()
	}

	return e.fetcher.Fetch(ctx, url)
}

// loadPage fetches one listing page and registers its records.
func (e *Engine) loadPage(ctx context.Context, listingURL string, offset int) {
	defer e.wg.Done()

	logger := e.logger.With().Int("offset", offset).Logger()

	body, err := e.fetch(ctx, listingURL)
	if err != nil {
		pagesFailedTotal.Inc()
		logger.Error().Err(err).Str("url", listingURL).Msg("Listing page fetch failed")
		e.report(err)
		return
	}

	records, err := manga.ParseListing(body)
	if err != nil {
		pagesFailedTotal.Inc()
		logger.Error().Err(err).Str("url", listingURL).Msg("Listing page decode failed")
		e.report(err)
		return
	}

	registered := 0
	for i, raw := range records {
		m, err := manga.ParseMangaLang(raw, e.config.Query.Language)
		var rel manga.RelationshipIDs
		if err == nil {
			rel, err = manga.ParseRelationships(raw)
		}
		if err != nil {
			reason := "decode"
			if manga.IsMissingRelationship(err) {
				reason = "missing_relationship"
			}
			recordsSkippedTotal.WithLabelValues(reason).Inc()
			logger.Warn().
				Err(err).
				Int("index", i).
				Str("reason", reason).
				Msg("Skipping listing record")
			e.report(err)
			continue
		}

		e.register(ctx, m, rel)
		registered++
	}

	logger.Info().
		Int("records", len(records)).
		Int("registered", registered).
		Msg("Listing page registered")
}

// register stores a partial manga and issues its two enrichment fetches.
func (e *Engine) register(ctx context.Context, m manga.Manga, rel manga.RelationshipIDs) {
	replaced := e.table.Put(Entry{
		Manga:         m,
		Relationships: rel,
		RegisteredAt:  e.now(),
	})
	if !replaced {
		incompleteEntities.Inc()
	}

	endpoints := e.config.Endpoints

	e.wg.Add(2)
	go e.enrich(ctx, m.ID, enrichment{
		kind:   KindCover,
		url:    endpoints.Cover(rel.CoverArtID),
		decode: manga.ParseCoverFileName,
		apply: func(m manga.Manga, fileName string) manga.Manga {
			return m.WithCoverURL(endpoints.CoverImage(m.ID, fileName))
		},
	})
	go e.enrich(ctx, m.ID, enrichment{
		kind:   KindAuthor,
		url:    endpoints.Author(rel.AuthorID),
		decode: manga.ParseAuthorName,
		apply:  manga.Manga.WithAuthor,
	})
}

// enrich runs one lookup and merges its result into the table.
func (e *Engine) enrich(ctx context.Context, id string, en enrichment) {
	defer e.wg.Done()

	logger := e.logger.With().Str("manga_id", id).Str("kind", en.kind).Logger()

	body, err := e.fetch(ctx, en.url)
	if err != nil {
		enrichmentsTotal.WithLabelValues(en.kind, "transport_error").Inc()
		logger.Warn().Err(err).Str("url", en.url).Msg("Enrichment fetch failed, manga stays incomplete")
		e.report(err)
		return
	}

	value, err := en.decode(body)
	if err != nil {
		enrichmentsTotal.WithLabelValues(en.kind, "decode_error").Inc()
		logger.Warn().Err(err).Str("url", en.url).Msg("Enrichment decode failed, manga stays incomplete")
		e.report(err)
		return
	}

	e.merge(id, en.kind, func(m manga.Manga) manga.Manga {
		return en.apply(m, value)
	})
}

// merge applies one field to the entry stored under id. When the entry
// becomes complete it is removed and published, or discarded as a
// duplicate, while the id's lock is still held.
func (e *Engine) merge(id, kind string, apply func(manga.Manga) manga.Manga) {
	var (
		done      bool
		published bool
		waited    time.Duration
		result    manga.Manga
	)

	found := e.table.Update(id, func(entry *Entry) bool {
		entry.Manga = apply(entry.Manga)
		if !entry.Manga.IsComplete() {
			return false
		}
		done = true
		result = entry.Manga
		waited = e.now().Sub(entry.RegisteredAt)
		published = e.completed.Promote(entry.Manga)
		return true
	})

	if !found {
		// Late response for a manga completed through another registration.
		enrichmentsTotal.WithLabelValues(kind, "orphan").Inc()
		e.logger.Debug().Str("manga_id", id).Str("kind", kind).Msg("Dropping enrichment for unknown manga")
		return
	}
	enrichmentsTotal.WithLabelValues(kind, "merged").Inc()

	if !done {
		return
	}
	incompleteEntities.Dec()
	completionSeconds.Observe(waited.Seconds())

	if !published {
		duplicatesTotal.Inc()
		e.logger.Debug().Str("manga_id", id).Msg("Discarding duplicate manga")
		return
	}

	completedEntities.Inc()
	e.logger.Debug().
		Str("manga_id", result.ID).
		Str("title", result.Title).
		Str("author", result.Author).
		Str("cover_url", result.CoverURL).
		Msg("Manga completed")
}

func (e *Engine) report(err error) {
	if e.config.OnError != nil {
		e.config.OnError(err)
	}
}

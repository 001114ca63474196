// Package manga defines the MangaDex domain entity and the pure functions that
// decode raw API records into (possibly partial) entities.
package manga

// Manga is a listing record joined with its author and cover lookups.
// A Manga fresh from the listing endpoint carries only ID, Title and
// Description; Author and CoverURL are filled by enrichment.
type Manga struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	CoverURL    string `json:"cover_url"`
}

// IsComplete reports whether both enrichment fields are set.
func (m Manga) IsComplete() bool {
	return m.Author != "" && m.CoverURL != ""
}

// WithAuthor returns a copy of m with Author replaced.
func (m Manga) WithAuthor(name string) Manga {
	m.Author = name
	return m
}

// WithCoverURL returns a copy of m with CoverURL replaced.
func (m Manga) WithCoverURL(coverURL string) Manga {
	m.CoverURL = coverURL
	return m
}

// RelationshipIDs are the lookup keys found in a listing record.
type RelationshipIDs struct {
	AuthorID   string `json:"author_id"`
	CoverArtID string `json:"cover_art_id"`
}

package manga

import (
	"net/url"
	"strings"
)

const (
	// DefaultAPIBaseURL is the public MangaDex API.
	DefaultAPIBaseURL = "https://api.mangadex.org"

	// DefaultUploadsBaseURL serves cover images.
	DefaultUploadsBaseURL = "https://uploads.mangadex.org"

	// CoverThumbnailSuffix selects the 256px wide thumbnail variant.
	CoverThumbnailSuffix = ".256.jpg"
)

// Endpoints holds the base URLs the join talks to.
type Endpoints struct {
	API     string
	Uploads string
}

// DefaultEndpoints returns the public MangaDex endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		API:     DefaultAPIBaseURL,
		Uploads: DefaultUploadsBaseURL,
	}
}

// Listing returns the manga listing URL with the given query.
func (e Endpoints) Listing(query url.Values) string {
	u := e.api() + "/manga"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Cover returns the cover lookup URL for a cover_art relationship id.
func (e Endpoints) Cover(coverArtID string) string {
	return e.api() + "/cover/" + url.PathEscape(coverArtID)
}

// Author returns the author lookup URL for an author relationship id,
// expressed as a single-id filter query.
func (e Endpoints) Author(authorID string) string {
	q := url.Values{}
	q.Add("ids[]", authorID)
	return e.api() + "/author?" + q.Encode()
}

// CoverImage returns the thumbnail URL of a cover file.
// Format: <uploads>/covers/<mangaID>/<fileName>.256.jpg
func (e Endpoints) CoverImage(mangaID, fileName string) string {
	return strings.TrimRight(e.Uploads, "/") + "/covers/" + mangaID + "/" + fileName + CoverThumbnailSuffix
}

func (e Endpoints) api() string {
	return strings.TrimRight(e.API, "/")
}

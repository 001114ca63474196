package manga

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Relationship types used by the join.
const (
	RelationshipAuthor   = "author"
	RelationshipCoverArt = "cover_art"
)

// DefaultLanguage is the key read from language-keyed attribute maps.
const DefaultLanguage = "en"

type listingResponse struct {
	Data []json.RawMessage `json:"data"`
}

type mangaRecord struct {
	ID         string `json:"id"`
	Attributes *struct {
		Title       map[string]string `json:"title"`
		Description map[string]string `json:"description"`
	} `json:"attributes"`
	Relationships []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"relationships"`
}

type coverResponse struct {
	Data *struct {
		Attributes struct {
			FileName string `json:"fileName"`
		} `json:"attributes"`
	} `json:"data"`
}

type authorResponse struct {
	Data []struct {
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseListing splits a listing response into its raw records.
// Only the envelope is checked; records are decoded one by one so that a bad
// record cannot take its siblings down with it.
func ParseListing(body []byte) ([]json.RawMessage, error) {
	var resp listingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &DecodeError{Field: "data", Err: err}
	}
	if resp.Data == nil {
		return nil, &DecodeError{Field: "data", Err: errFieldMissing}
	}
	return resp.Data, nil
}

// ParseManga decodes the partial entity of a listing record using the
// default language.
func ParseManga(raw json.RawMessage) (Manga, error) {
	return ParseMangaLang(raw, DefaultLanguage)
}

// ParseMangaLang decodes the partial entity of a listing record, reading
// title and description in the given language.
func ParseMangaLang(raw json.RawMessage, language string) (Manga, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return Manga{}, err
	}
	if rec.Attributes == nil {
		return Manga{}, &DecodeError{ID: rec.ID, Field: "attributes", Err: errFieldMissing}
	}

	title, ok := pickLang(rec.Attributes.Title, language)
	if !ok {
		return Manga{}, &DecodeError{ID: rec.ID, Field: "attributes.title." + language, Err: errFieldMissing}
	}
	description, ok := pickLang(rec.Attributes.Description, language)
	if !ok {
		return Manga{}, &DecodeError{ID: rec.ID, Field: "attributes.description." + language, Err: errFieldMissing}
	}

	return Manga{
		ID:          rec.ID,
		Title:       title,
		Description: description,
	}, nil
}

// ParseRelationships extracts the first author and the first cover_art
// relationship ids of a listing record.
func ParseRelationships(raw json.RawMessage) (RelationshipIDs, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return RelationshipIDs{}, err
	}

	var ids RelationshipIDs
	for _, rel := range rec.Relationships {
		switch rel.Type {
		case RelationshipAuthor:
			if ids.AuthorID == "" {
				ids.AuthorID = rel.ID
			}
		case RelationshipCoverArt:
			if ids.CoverArtID == "" {
				ids.CoverArtID = rel.ID
			}
		}
	}

	if ids.AuthorID == "" {
		return RelationshipIDs{}, &DecodeError{
			ID:    rec.ID,
			Field: "relationships",
			Err:   fmt.Errorf("%w: %s", ErrMissingRelationship, RelationshipAuthor),
		}
	}
	if ids.CoverArtID == "" {
		return RelationshipIDs{}, &DecodeError{
			ID:    rec.ID,
			Field: "relationships",
			Err:   fmt.Errorf("%w: %s", ErrMissingRelationship, RelationshipCoverArt),
		}
	}

	return ids, nil
}

// ParseCoverFileName reads data.attributes.fileName from a cover response.
func ParseCoverFileName(body []byte) (string, error) {
	var resp coverResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &DecodeError{Field: "data", Err: err}
	}
	if resp.Data == nil {
		return "", &DecodeError{Field: "data", Err: errFieldMissing}
	}
	fileName := strings.TrimSpace(resp.Data.Attributes.FileName)
	if fileName == "" {
		return "", &DecodeError{Field: "data.attributes.fileName", Err: errFieldMissing}
	}
	return fileName, nil
}

// ParseAuthorName reads data[0].attributes.name from an author response.
func ParseAuthorName(body []byte) (string, error) {
	var resp authorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &DecodeError{Field: "data", Err: err}
	}
	if len(resp.Data) == 0 {
		return "", &DecodeError{Field: "data[0]", Err: errFieldMissing}
	}
	name := strings.TrimSpace(resp.Data[0].Attributes.Name)
	if name == "" {
		return "", &DecodeError{Field: "data[0].attributes.name", Err: errFieldMissing}
	}
	return name, nil
}

func decodeRecord(raw json.RawMessage) (mangaRecord, error) {
	var rec mangaRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return mangaRecord{}, &DecodeError{Field: "record", Err: err}
	}
	if rec.ID == "" {
		return mangaRecord{}, &DecodeError{Field: "id", Err: errFieldMissing}
	}
	return rec, nil
}

func pickLang(m map[string]string, lang string) (string, bool) {
	v, ok := m[lang]
	if !ok {
		return "", false
	}
	return v, true
}

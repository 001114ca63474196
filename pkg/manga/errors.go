package manga

import (
	"errors"
	"fmt"
)

// ErrMissingRelationship is wrapped by a DecodeError when a listing record
// has no author or no cover_art relationship.
var ErrMissingRelationship = errors.New("missing relationship")

// DecodeError reports a JSON document that does not have the expected shape.
// It is scoped to a single record and never aborts sibling records.
type DecodeError struct {
	// ID is the manga id when it could be read, empty otherwise.
	ID string

	// Field is the JSON path that could not be decoded.
	Field string

	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("decode manga %s: %s: %v", e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsMissingRelationship reports whether err is a decode failure caused by a
// missing author or cover_art relationship.
func IsMissingRelationship(err error) bool {
	return errors.Is(err, ErrMissingRelationship)
}

var errFieldMissing = errors.New("field missing or empty")

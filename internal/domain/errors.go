package domain

import "errors"

var (
	ErrArtistNotFound = errors.New("artist not found")
	ErrItemNotFound   = errors.New("item not found")
	ErrUnauthorized   = errors.New("unauthorized: invalid admin key")
)

// ErrDuplicateItem means another writer stored the same hash first.
var ErrDuplicateItem = errors.New("item with this hash already exists")

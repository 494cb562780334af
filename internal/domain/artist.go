package domain

import "time"

// PlatformSpotify is the platform ID key of the music catalog.
const PlatformSpotify = "spotify"

type Artist struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	ImageURL    *string           `json:"imageUrl,omitempty"`
	PlatformIDs map[string]string `json:"platformIds"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// CatalogID returns the music-catalog identifier, if any.
func (a *Artist) CatalogID() string {
	if a.PlatformIDs == nil {
		return ""
	}
	return a.PlatformIDs[PlatformSpotify]
}

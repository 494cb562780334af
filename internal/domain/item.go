package domain

import (
	"errors"
	"fmt"
	"time"
)

// ContentItem is a stored, deduplicated piece of content for an artist.
// RegionScore is only a cache hint written at insert time; listings recompute it.
type ContentItem struct {
	ID          int64     `json:"id"`
	Hash        string    `json:"hash"`
	ArtistID    int64     `json:"artistId"`
	SourceID    int64     `json:"sourceId"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	OEmbedURL   *string   `json:"oEmbedUrl,omitempty"`
	EmbedHTML   *string   `json:"embedHtml,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	RegionScore int       `json:"regionScore"`
	Pinned      bool      `json:"pinned"`
	Note        *string   `json:"note,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Joined from the item's source for read-time scoring.
	SourceDomain      *string  `json:"sourceDomain,omitempty"`
	SourceRegionHints []Region `json:"-"`
}

// DisplayFields are the mutable fields a refresh may patch on an existing item.
type DisplayFields struct {
	Title     string
	URL       string
	OEmbedURL *string
	EmbedHTML *string
}

func (i *ContentItem) Display() DisplayFields {
	return DisplayFields{Title: i.Title, URL: i.URL, OEmbedURL: i.OEmbedURL, EmbedHTML: i.EmbedHTML}
}

func (d DisplayFields) Equal(o DisplayFields) bool {
	return d.Title == o.Title && d.URL == o.URL &&
		equalPtr(d.OEmbedURL, o.OEmbedURL) && equalPtr(d.EmbedHTML, o.EmbedHTML)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Source is a deduplicated provider origin, keyed by (kind, domain, channel).
type Source struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	Domain      *string   `json:"domain,omitempty"`
	ChannelID   *string   `json:"channelId,omitempty"`
	RegionHints []Region  `json:"regionHints"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SourceDescriptor is the adapter-side description of an item's source.
// RegionHints lists regions the provider query was natively scoped to.
type SourceDescriptor struct {
	Kind        Kind
	Domain      *string
	ChannelID   *string
	RegionHints []Region
}

// ItemInput is a normalized adapter result. It is never stored directly.
type ItemInput struct {
	Kind        Kind
	Title       string
	URL         string
	OEmbedURL   *string
	EmbedHTML   *string
	PublishedAt time.Time
	Source      SourceDescriptor
	ExternalID  string
}

var ErrInvalidItem = errors.New("invalid item")

// Validate rejects records that must not reach hashing.
func (in *ItemInput) Validate() error {
	switch {
	case !in.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidItem, in.Kind)
	case in.Source.Kind != in.Kind:
		return fmt.Errorf("%w: source kind %q does not match %q", ErrInvalidItem, in.Source.Kind, in.Kind)
	case in.Title == "":
		return fmt.Errorf("%w: empty title", ErrInvalidItem)
	case in.URL == "":
		return fmt.Errorf("%w: empty url", ErrInvalidItem)
	case in.PublishedAt.IsZero():
		return fmt.Errorf("%w: missing publication time", ErrInvalidItem)
	}
	return nil
}

func (in *ItemInput) Display() DisplayFields {
	return DisplayFields{Title: in.Title, URL: in.URL, OEmbedURL: in.OEmbedURL, EmbedHTML: in.EmbedHTML}
}

// Package api serves listings, artist lookup, health and the admin
// curation routes over HTTP.
package api

import (
	"context"
	"log/slog"

	"musicfeed/internal/domain"
	"musicfeed/internal/fetch"
	"musicfeed/internal/service"
	"musicfeed/internal/source/soundcloud"
)

type Artists interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Artist, error)
	SearchByName(ctx context.Context, name string, region domain.Region) ([]domain.Artist, error)
	UpsertFromCatalog(ctx context.Context, candidate *domain.Artist) (*domain.Artist, error)
}

type Lister interface {
	ListItems(ctx context.Context, artistID int64, q service.ListQuery) ([]domain.ContentItem, error)
}

type Admin interface {
	Authorize(key string) error
	SetPinned(ctx context.Context, key string, itemID int64, pinned bool) error
	SetNote(ctx context.Context, key string, itemID int64, note string) error
	TriggerRefresh(ctx context.Context, key string, artistID int64) (*domain.RefreshReport, error)
}

type OEmbedResolver interface {
	ResolveOEmbed(ctx context.Context, trackURL string) (*soundcloud.OEmbed, error)
}

type BreakerSnapshotter interface {
	Snapshot() map[string]fetch.BreakerStatus
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators a Handler serves. Services lists backing
// services (database, broker, provider credentials) and whether each is
// configured.
type Deps struct {
	Artists  Artists
	Listing  Lister
	Admin    Admin
	OEmbed   OEmbedResolver
	Breakers BreakerSnapshotter
	Store    Pinger // nil for stores that are always reachable
	Sources  []service.Source
	Services map[string]bool
	Logger   *slog.Logger
}

type Handler struct {
	artists  Artists
	listing  Lister
	admin    Admin
	oembed   OEmbedResolver
	breakers BreakerSnapshotter
	store    Pinger
	sources  []service.Source
	services map[string]bool
	logger   *slog.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		artists:  d.Artists,
		listing:  d.Listing,
		admin:    d.Admin,
		oembed:   d.OEmbed,
		breakers: d.Breakers,
		store:    d.Store,
		sources:  d.Sources,
		services: d.Services,
		logger:   d.Logger.With("component", "api"),
	}
}

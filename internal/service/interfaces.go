package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"musicfeed/internal/domain"
)

type ArtistStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Artist, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Artist, error)
	ListByName(ctx context.Context, name string) ([]domain.Artist, error)
	List(ctx context.Context) ([]domain.Artist, error)
	// Upsert creates or updates by slug, merging platform IDs, and returns the stored row.
	Upsert(ctx context.Context, artist *domain.Artist) (*domain.Artist, error)
}

type ItemStore interface {
	// GetByHash returns nil, nil when no item has the hash.
	GetByHash(ctx context.Context, hash string) (*domain.ContentItem, error)
	GetByID(ctx context.Context, id int64) (*domain.ContentItem, error)
	Insert(ctx context.Context, item *domain.ContentItem) (int64, error)
	UpdateDisplay(ctx context.Context, id int64, fields domain.DisplayFields) error
	ListByArtist(ctx context.Context, artistID int64, kind *domain.Kind) ([]domain.ContentItem, error)
	SetPinned(ctx context.Context, id int64, pinned bool) error
	SetNote(ctx context.Context, id int64, note *string) error
}

type SourceStore interface {
	FindOrCreate(ctx context.Context, desc domain.SourceDescriptor) (int64, error)
}

type RefreshStateStore interface {
	Get(ctx context.Context, artistID int64, kind domain.Kind) (*domain.RefreshState, error)
	Update(ctx context.Context, state *domain.RefreshState) error
}

// Source is a provider adapter. FetchRecent never fails: provider errors
// are logged by the adapter and yield an empty result.
type Source interface {
	Kind() domain.Kind
	Name() string
	Available() bool
	FetchRecent(ctx context.Context, artistName string, region domain.Region, since time.Time) []domain.ItemInput
}

// Catalog resolves artist identities against the music catalog.
type Catalog interface {
	Available() bool
	ResolveArtist(ctx context.Context, name string, region domain.Region) (*domain.Artist, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.ItemEvent) error
	Close() error
}

type Refresher interface {
	RefreshArtist(ctx context.Context, artistID int64) (*domain.RefreshReport, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"musicfeed/internal/content"
	"musicfeed/internal/domain"
)

var ErrInvalidArtist = errors.New("invalid artist")

type ArtistService struct {
	artists ArtistStore
	catalog Catalog
	logger  *slog.Logger
}

func NewArtistService(artists ArtistStore, catalog Catalog, logger *slog.Logger) *ArtistService {
	return &ArtistService{
		artists: artists,
		catalog: catalog,
		logger:  logger.With("component", "artists"),
	}
}

func (s *ArtistService) GetBySlug(ctx context.Context, slug string) (*domain.Artist, error) {
	return s.artists.GetBySlug(ctx, slug)
}

func (s *ArtistService) GetByID(ctx context.Context, id int64) (*domain.Artist, error) {
	return s.artists.GetByID(ctx, id)
}

// SearchByName canonicalizes name through the catalog. A match already
// stored under the same slug is returned as stored; otherwise the unsaved
// candidate (ID 0) is returned. Without a catalog match it falls back to an
// exact-name lookup.
func (s *ArtistService) SearchByName(ctx context.Context, name string, region domain.Region) ([]domain.Artist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidArtist)
	}

	if s.catalog != nil && s.catalog.Available() {
		candidate, err := s.catalog.ResolveArtist(ctx, name, region)
		switch {
		case err == nil:
			existing, err := s.artists.GetBySlug(ctx, candidate.Slug)
			if err == nil {
				return []domain.Artist{*existing}, nil
			}
			if !errors.Is(err, domain.ErrArtistNotFound) {
				return nil, fmt.Errorf("get by slug: %w", err)
			}
			return []domain.Artist{*candidate}, nil
		case errors.Is(err, domain.ErrArtistNotFound):
			s.logger.Debug("no catalog match", "name", name)
		default:
			s.logger.Warn("catalog lookup failed, falling back to stored artists", "name", name, "error", err)
		}
	}

	stored, err := s.artists.ListByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list by name: %w", err)
	}
	return stored, nil
}

// UpsertFromCatalog stores a catalog candidate, creating it or updating the
// artist with the same slug. Platform IDs are merged.
func (s *ArtistService) UpsertFromCatalog(ctx context.Context, candidate *domain.Artist) (*domain.Artist, error) {
	if candidate == nil || strings.TrimSpace(candidate.Name) == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidArtist)
	}
	if candidate.CatalogID() == "" {
		return nil, fmt.Errorf("%w: missing %s id", ErrInvalidArtist, domain.PlatformSpotify)
	}

	artist := *candidate
	artist.Name = strings.TrimSpace(artist.Name)
	if artist.Slug == "" {
		artist.Slug = content.Slug(artist.Name)
	}
	artist.PlatformIDs = maps.Clone(candidate.PlatformIDs)

	stored, err := s.artists.Upsert(ctx, &artist)
	if err != nil {
		return nil, fmt.Errorf("upsert artist: %w", err)
	}

	s.logger.Info("artist stored", "artist_id", stored.ID, "slug", stored.Slug)
	return stored, nil
}

// Resolve searches the catalog and stores the match in one step.
func (s *ArtistService) Resolve(ctx context.Context, name string, region domain.Region) (*domain.Artist, error) {
	candidates, err := s.SearchByName(ctx, name, region)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrArtistNotFound, name)
	}

	first := &candidates[0]
	if first.ID != 0 {
		return first, nil
	}
	return s.UpsertFromCatalog(ctx, first)
}

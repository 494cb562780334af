package service

import (
	"context"
	"fmt"
	"time"

	"musicfeed/internal/domain"
	"musicfeed/internal/ranking"
)

// ListQuery selects a listing. Zero values mean GLOBAL, 7d and all kinds.
type ListQuery struct {
	Region domain.Region
	Window domain.Window
	Kind   *domain.Kind
}

type ListingService struct {
	items ItemStore
	now   func() time.Time
}

func NewListingService(items ItemStore) *ListingService {
	return &ListingService{items: items, now: time.Now}
}

// ListItems returns an artist's items inside the recency window, scored for
// the requested region and ranked by score then recency. Pinned items and
// notes are returned as stored but do not affect the order.
func (s *ListingService) ListItems(ctx context.Context, artistID int64, q ListQuery) ([]domain.ContentItem, error) {
	if q.Region == "" {
		q.Region = domain.RegionGlobal
	}
	if q.Window == "" {
		q.Window = domain.DefaultWindow
	}

	items, err := s.items.ListByArtist(ctx, artistID, q.Kind)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	items = ranking.FilterByRecencyWindow(items, q.Window, s.now())
	ranking.ScoreItems(items, q.Region)
	ranking.SortByRegionThenRecency(items)
	return items, nil
}

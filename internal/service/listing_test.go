package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"musicfeed/internal/domain"
	"musicfeed/internal/service/mocks"
	"musicfeed/internal/testutil"
)

func TestListItems_FiltersScoresAndRanks(t *testing.T) {
	ctrl := gomock.NewController(t)
	items := mocks.NewMockItemStore(ctrl)

	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	svc := NewListingService(items)
	svc.now = func() time.Time { return now }

	stored := []domain.ContentItem{
		{ID: 1, Title: "Global news", PublishedAt: now.Add(-1 * time.Hour), SourceDomain: testutil.Ptr("bbc.com")},
		{ID: 2, Title: "Local news", PublishedAt: now.Add(-3 * time.Hour), SourceDomain: testutil.Ptr("www.news24.co.za")},
		{ID: 3, Title: "Too old", PublishedAt: now.Add(-8 * 24 * time.Hour), SourceDomain: testutil.Ptr("www.news24.co.za")},
		{ID: 4, Title: "Tour announcement South Africa dates", PublishedAt: now.Add(-2 * time.Hour), Pinned: true},
		{ID: 5, Title: "Scoped", PublishedAt: now.Add(-4 * time.Hour), SourceRegionHints: []domain.Region{domain.RegionZA}, RegionScore: 99},
	}
	items.EXPECT().ListByArtist(gomock.Any(), int64(7), nil).Return(stored, nil).Times(2)

	got, err := svc.ListItems(context.Background(), 7, ListQuery{Region: domain.RegionZA})
	require.NoError(t, err)

	ids := make([]int64, len(got))
	scores := make([]int, len(got))
	for i, it := range got {
		ids[i], scores[i] = it.ID, it.RegionScore
	}
	assert.Equal(t, []int64{2, 5, 4, 1}, ids)
	assert.Equal(t, []int{3, 2, 1, 0}, scores)

	got, err = svc.ListItems(context.Background(), 7, ListQuery{Region: domain.RegionUK, Window: domain.Window30d})
	require.NoError(t, err)
	require.Len(t, got, 5)
	for _, it := range got {
		assert.Zero(t, it.RegionScore)
	}
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[4].ID)
}

func TestListItems_KindFilterAndEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	items := mocks.NewMockItemStore(ctrl)
	svc := NewListingService(items)

	kind := domain.KindRelease
	items.EXPECT().ListByArtist(gomock.Any(), int64(1), &kind).Return(nil, nil)

	got, err := svc.ListItems(context.Background(), 1, ListQuery{Kind: &kind, Window: domain.Window24h})
	require.NoError(t, err)
	assert.Empty(t, got)
}

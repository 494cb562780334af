package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"musicfeed/internal/config"
	"musicfeed/internal/content"
	"musicfeed/internal/domain"
	"musicfeed/internal/service/mocks"
	"musicfeed/internal/testutil"
)

type RefreshServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	video     *mocks.MockSource
	news      *mocks.MockSource
	artists   *mocks.MockArtistStore
	items     *mocks.MockItemStore
	sources   *mocks.MockSourceStore
	states    *mocks.MockRefreshStateStore
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	service *RefreshService
	logger  *slog.Logger
	now     time.Time
	artist  *domain.Artist
}

func (s *RefreshServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.video = mocks.NewMockSource(s.ctrl)
	s.news = mocks.NewMockSource(s.ctrl)
	s.artists = mocks.NewMockArtistStore(s.ctrl)
	s.items = mocks.NewMockItemStore(s.ctrl)
	s.sources = mocks.NewMockSourceStore(s.ctrl)
	s.states = mocks.NewMockRefreshStateStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.video.EXPECT().Kind().Return(domain.KindVideo).AnyTimes()
	s.video.EXPECT().Name().Return("Video").AnyTimes()
	s.video.EXPECT().Available().Return(true).AnyTimes()
	s.news.EXPECT().Kind().Return(domain.KindNews).AnyTimes()
	s.news.EXPECT().Name().Return("News").AnyTimes()
	s.news.EXPECT().Available().Return(true).AnyTimes()

	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.artist = &domain.Artist{ID: 7, Name: "Nasty C", Slug: "nasty-c"}

	s.service = s.newService(s.video)
}

func (s *RefreshServiceTestSuite) newService(adapters ...Source) *RefreshService {
	svc := NewRefreshService(
		adapters,
		s.artists,
		s.items,
		s.sources,
		s.states,
		s.txManager,
		s.publisher,
		s.logger,
		config.RefreshConfig{Region: "ZA", ScoreRegion: "ZA", Lookback: 30 * time.Minute},
	)
	svc.now = func() time.Time { return s.now }
	return svc
}

func (s *RefreshServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestRefreshServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RefreshServiceTestSuite))
}

func (s *RefreshServiceTestSuite) videoInput(id, title string) domain.ItemInput {
	return domain.ItemInput{
		Kind:        domain.KindVideo,
		Title:       title,
		URL:         "https://www.youtube.com/watch?v=" + id,
		PublishedAt: s.now.Add(-10 * time.Minute),
		Source: domain.SourceDescriptor{
			Kind:        domain.KindVideo,
			Domain:      testutil.Ptr("youtube.com"),
			RegionHints: []domain.Region{domain.RegionZA},
		},
		ExternalID: id,
	}
}

func (s *RefreshServiceTestSuite) expectTx() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()
}

func (s *RefreshServiceTestSuite) expectState(kind domain.Kind) {
	s.states.EXPECT().Get(gomock.Any(), s.artist.ID, kind).Return(&domain.RefreshState{ArtistID: s.artist.ID, Kind: kind}, nil)
	s.states.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
}

func (s *RefreshServiceTestSuite) TestRefreshArtist_InsertsNewItem() {
	ctx := context.Background()
	in := s.videoInput("vid1", "Live in South Africa")
	hash := content.Hash(domain.KindVideo, "vid1", "")

	s.artists.EXPECT().GetByID(ctx, s.artist.ID).Return(s.artist, nil)
	s.video.EXPECT().FetchRecent(ctx, "Nasty C", domain.RegionZA, s.now.Add(-30*time.Minute)).Return([]domain.ItemInput{in})
	s.items.EXPECT().GetByHash(ctx, hash).Return(nil, nil)
	s.expectTx()
	s.sources.EXPECT().FindOrCreate(ctx, in.Source).Return(int64(3), nil)

	var inserted *domain.ContentItem
	s.items.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, item *domain.ContentItem) (int64, error) {
			inserted = item
			return 42, nil
		},
	)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, event *domain.ItemEvent) error {
			s.Equal("create", event.Action)
			s.Equal(int64(42), event.Item.ID)
			return nil
		},
	)
	s.states.EXPECT().Get(ctx, s.artist.ID, domain.KindVideo).Return(&domain.RefreshState{TotalUpserted: 4}, nil)
	s.states.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, st *domain.RefreshState) error {
			s.Equal(s.artist.ID, st.ArtistID)
			s.Equal(domain.KindVideo, st.Kind)
			s.True(st.LastOK)
			s.Equal(1, st.LastCount)
			s.Equal(int64(5), st.TotalUpserted)
			s.Equal(s.now, st.LastRefreshedAt)
			return nil
		},
	)

	report, err := s.service.RefreshArtist(ctx, s.artist.ID)

	s.Require().NoError(err)
	s.Equal(1, report.Updated)
	s.Equal(domain.SourceOutcome{OK: true, Count: 1, Available: true}, report.Sources[domain.KindVideo])

	s.Require().NotNil(inserted)
	s.Equal(hash, inserted.Hash)
	s.Equal(s.artist.ID, inserted.ArtistID)
	s.Equal(int64(3), inserted.SourceID)
	s.False(inserted.Pinned)
	// +2 scoped query, +1 title mention
	s.Equal(3, inserted.RegionScore)
	s.Equal(s.now, inserted.CreatedAt)
}

func (s *RefreshServiceTestSuite) TestRefreshArtist_UnchangedItemIsSkipped() {
	ctx := context.Background()
	in := s.videoInput("vid1", "Same title")
	existing := &domain.ContentItem{ID: 42, Title: in.Title, URL: in.URL}

	s.artists.EXPECT().GetByID(ctx, s.artist.ID).Return(s.artist, nil)
	s.video.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]domain.ItemInput{in})
	s.items.EXPECT().GetByHash(ctx, gomock.Any()).Return(existing, nil)
	s.expectState(domain.KindVideo)

	report, err := s.service.RefreshArtist(ctx, s.artist.ID)

	s.Require().NoError(err)
	s.Zero(report.Updated)
	s.Equal(domain.SourceOutcome{OK: true, Count: 0, Available: true}, report.Sources[domain.KindVideo])
}

func (s *RefreshServiceTestSuite) TestRefreshArtist_ChangedTitleUpdatesInPlace() {
	ctx := context.Background()
	in := s.videoInput("vid1", "New title")
	existing := &domain.ContentItem{ID: 42, Title: "Old title", URL: in.URL, Pinned: true}

	s.artists.EXPECT().GetByID(ctx, s.artist.ID).Return(s.artist, nil)
	s.video.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]domain.ItemInput{in})
	s.items.EXPECT().GetByHash(ctx, gomock.Any()).Return(existing, nil)
	s.items.EXPECT().UpdateDisplay(ctx, int64(42), domain.DisplayFields{Title: "New title", URL: in.URL}).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, event *domain.ItemEvent) error {
			s.Equal("update", event.Action)
			s.Equal("New title", event.Item.Title)
			s.True(event.Item.Pinned)
			return nil
		},
	)
	s.expectState(domain.KindVideo)

	report, err := s.service.RefreshArtist(ctx, s.artist.ID)

	s.Require().NoError(err)
	s.Equal(1, report.Updated)
}

func (s *RefreshServiceTestSuite) TestRefreshArtist_ArtistNotFound() {
	ctx := context.Background()
	s.artists.EXPECT().GetByID(ctx, int64(99)).Return(nil, domain.ErrArtistNotFound)

	report, err := s.service.RefreshArtist(ctx, 99)

	s.Nil(report)
	s.ErrorIs(err, domain.ErrArtistNotFound)
}

func (s *RefreshServiceTestSuite) TestRefreshArtist_PanickingAdapterIsIsolated() {
	ctx := context.Background()
	svc := s.newService(s.video, s.news)

	s.artists.EXPECT().GetByID(ctx, s.artist.ID).Return(s.artist, nil)
	s.video.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string, domain.Region, time.Time) []domain.ItemInput {
			panic("boom")
		},
	)
	s.news.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.expectState(domain.KindVideo)
	s.expectState(domain.KindNews)

	report, err := svc.RefreshArtist(ctx, s.artist.ID)

	s.Require().NoError(err)
	video := report.Sources[domain.KindVideo]
	s.False(video.OK)
	s.Contains(video.Error, "boom")
	s.Equal(domain.SourceOutcome{OK: true, Available: true}, report.Sources[domain.KindNews])
}

func (s *RefreshServiceTestSuite) TestRefreshArtist_AllUpsertsFailed() {
	ctx := context.Background()
	inputs := []domain.ItemInput{s.videoInput("a", "A"), s.videoInput("b", "B")}

	s.artists.EXPECT().GetByID(ctx, s.artist.ID).Return(s.artist, nil)
	s.video.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(inputs)
	s.items.EXPECT().GetByHash(ctx, gomock.Any()).Return(nil, errors.New("connection refused")).Times(2)
	s.expectState(domain.KindVideo)

	report, err := s.service.RefreshArtist(ctx, s.artist.ID)

	s.Require().NoError(err)
	video := report.Sources[domain.KindVideo]
	s.False(video.OK)
	s.Contains(video.Error, "all 2 item upserts failed")
	s.Zero(report.Updated)
}

func (s *RefreshServiceTestSuite) TestRefreshArtist_MalformedItemsAreDropped() {
	ctx := context.Background()
	bad := s.videoInput("x", "")
	wrongKind := s.videoInput("y", "Y")
	wrongKind.Source.Kind = domain.KindNews

	s.artists.EXPECT().GetByID(ctx, s.artist.ID).Return(s.artist, nil)
	s.video.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]domain.ItemInput{bad, wrongKind})
	s.expectState(domain.KindVideo)

	report, err := s.service.RefreshArtist(ctx, s.artist.ID)

	s.Require().NoError(err)
	s.Equal(domain.SourceOutcome{OK: true, Available: true}, report.Sources[domain.KindVideo])
}

func (s *RefreshServiceTestSuite) TestRefreshArtist_LostInsertRaceIsNotAFailure() {
	ctx := context.Background()

	s.artists.EXPECT().GetByID(ctx, s.artist.ID).Return(s.artist, nil)
	s.video.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]domain.ItemInput{s.videoInput("a", "A")})
	s.items.EXPECT().GetByHash(ctx, gomock.Any()).Return(nil, nil)
	s.expectTx()
	s.sources.EXPECT().FindOrCreate(ctx, gomock.Any()).Return(int64(1), nil)
	s.items.EXPECT().Insert(ctx, gomock.Any()).Return(int64(0), domain.ErrDuplicateItem)
	s.expectState(domain.KindVideo)

	report, err := s.service.RefreshArtist(ctx, s.artist.ID)

	s.Require().NoError(err)
	s.Equal(domain.SourceOutcome{OK: true, Available: true}, report.Sources[domain.KindVideo])
}

func (s *RefreshServiceTestSuite) TestRefreshArtist_PublishFailureIsNotFatal() {
	ctx := context.Background()

	s.artists.EXPECT().GetByID(ctx, s.artist.ID).Return(s.artist, nil)
	s.video.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]domain.ItemInput{s.videoInput("a", "A")})
	s.items.EXPECT().GetByHash(ctx, gomock.Any()).Return(nil, nil)
	s.expectTx()
	s.sources.EXPECT().FindOrCreate(ctx, gomock.Any()).Return(int64(1), nil)
	s.items.EXPECT().Insert(ctx, gomock.Any()).Return(int64(5), nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("channel closed"))
	s.states.EXPECT().Get(ctx, s.artist.ID, domain.KindVideo).Return(nil, errors.New("db down"))

	report, err := s.service.RefreshArtist(ctx, s.artist.ID)

	s.Require().NoError(err)
	s.Equal(1, report.Updated)
	s.True(report.Sources[domain.KindVideo].OK)
}

func (s *RefreshServiceTestSuite) TestSweep_RefreshesOnlyDueArtists() {
	ctx := context.Background()
	svc := s.newService()

	fresh := domain.Artist{ID: 1, Name: "Fresh"}
	stale := domain.Artist{ID: 2, Name: "Stale"}
	empty := domain.Artist{ID: 3, Name: "Empty"}
	broken := domain.Artist{ID: 4, Name: "Broken"}

	s.artists.EXPECT().List(ctx).Return([]domain.Artist{fresh, stale, empty, broken}, nil)
	s.items.EXPECT().ListByArtist(ctx, int64(1), nil).Return([]domain.ContentItem{
		{Kind: domain.KindNews, CreatedAt: s.now.Add(-10 * time.Minute)},
		{Kind: domain.KindRelease, CreatedAt: s.now.Add(-20 * time.Minute)},
	}, nil)
	s.items.EXPECT().ListByArtist(ctx, int64(2), nil).Return([]domain.ContentItem{
		{Kind: domain.KindVideo, CreatedAt: s.now.Add(-16 * time.Minute)},
	}, nil)
	s.items.EXPECT().ListByArtist(ctx, int64(3), nil).Return(nil, nil)
	s.items.EXPECT().ListByArtist(ctx, int64(4), nil).Return(nil, errors.New("timeout"))

	s.artists.EXPECT().GetByID(ctx, int64(2)).Return(&stale, nil)
	s.artists.EXPECT().GetByID(ctx, int64(3)).Return(nil, domain.ErrArtistNotFound)

	stats, err := svc.Sweep(ctx)

	s.Require().NoError(err)
	s.Equal(4, stats.Artists)
	s.Equal(1, stats.Refreshed)
	s.Equal(2, stats.Failed)
}

func (s *RefreshServiceTestSuite) TestSweep_ListFailure() {
	ctx := context.Background()
	s.artists.EXPECT().List(ctx).Return(nil, errors.New("db down"))

	stats, err := s.service.Sweep(ctx)

	s.Nil(stats)
	s.Error(err)
}

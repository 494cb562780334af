package spotify

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"musicfeed/internal/domain"
	"musicfeed/internal/fetch"
)

const albumsJSON = `{"items": [
  {"id": "a1", "name": "Old Album", "release_date": "2019", "release_date_precision": "year",
   "external_urls": {"spotify": "https://open.spotify.com/album/a1"}},
  {"id": "a2", "name": "New Single", "release_date": "2024-03-15", "release_date_precision": "day",
   "external_urls": {"spotify": "https://open.spotify.com/album/a2"}},
  {"id": "a3", "name": "Mid EP", "release_date": "2022-06", "release_date_precision": "month"},
  {"id": "a4", "name": "Broken", "release_date": "soon", "release_date_precision": "day"},
  {"id": "a5", "name": "Same Day", "release_date": "2024-03-15", "release_date_precision": "day"}
]}`

type fakeSpotify struct {
	tokenHits  atomic.Int32
	searchHits atomic.Int32
	albumHits  atomic.Int32

	searchBody  string
	searchQuery url.Values
	albumsPath  string
	albumsQuery url.Values
	authHeader  string
	basicAuth   string
	grantBody   string
}

func (f *fakeSpotify) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenHits.Add(1)
		f.basicAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		f.grantBody = string(b)
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("GET /v1/search", func(w http.ResponseWriter, r *http.Request) {
		f.searchHits.Add(1)
		f.searchQuery = r.URL.Query()
		f.authHeader = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(f.searchBody))
	})
	mux.HandleFunc("GET /v1/artists/{id}/albums", func(w http.ResponseWriter, r *http.Request) {
		f.albumHits.Add(1)
		f.albumsPath = r.URL.Path
		f.albumsQuery = r.URL.Query()
		_, _ = w.Write([]byte(albumsJSON))
	})
	return mux
}

type SpotifyTestSuite struct {
	suite.Suite
	fake   *fakeSpotify
	server *httptest.Server
	source *Source
	now    time.Time
}

func TestSpotifyTestSuite(t *testing.T) {
	suite.Run(t, new(SpotifyTestSuite))
}

func (s *SpotifyTestSuite) SetupTest() {
	s.fake = &fakeSpotify{
		searchBody: `{"artists":{"items":[
			{"id":"sp-1","name":"Nasty C","images":[{"url":"https://i.scdn.co/image/1","width":640,"height":640}]},
			{"id":"sp-2","name":"Nasty Cee"}]}}`,
	}
	s.server = httptest.NewServer(s.fake.handler())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := fetch.New(fetch.Config{RetryBaseDelay: time.Millisecond}, fetch.NewBreakers(fetch.BreakerSettings{}, logger), logger)
	s.source = New(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		AccountsURL:  s.server.URL + "/api/token",
		APIURL:       s.server.URL + "/v1",
	}, client, logger)

	s.now = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	s.source.now = func() time.Time { return s.now }
}

func (s *SpotifyTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *SpotifyTestSuite) TestFetchRecent_SortsReleasesNewestFirst() {
	items := s.source.FetchRecent(context.Background(), "Nasty C", domain.RegionZA, s.now)

	s.Require().Len(items, 4)
	s.Equal([]string{"a2", "a5", "a3", "a1"}, []string{items[0].ExternalID, items[1].ExternalID, items[2].ExternalID, items[3].ExternalID})

	first := items[0]
	s.Equal(domain.KindRelease, first.Kind)
	s.Equal("New Single", first.Title)
	s.Equal("https://open.spotify.com/album/a2", first.URL)
	s.Equal("https://open.spotify.com/oembed?url=https%3A%2F%2Fopen.spotify.com%2Falbum%2Fa2", *first.OEmbedURL)
	s.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), first.PublishedAt)
	s.Equal("open.spotify.com", *first.Source.Domain)
	s.Equal([]domain.Region{domain.RegionZA}, first.Source.RegionHints)
	s.NoError(first.Validate())

	s.Equal("https://open.spotify.com/album/a3", items[2].URL)
	s.Equal(time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), items[2].PublishedAt)

	s.Equal("Basic "+base64.StdEncoding.EncodeToString([]byte("id:secret")), s.fake.basicAuth)
	s.Equal("grant_type=client_credentials", s.fake.grantBody)
	s.Equal("Bearer tok-1", s.fake.authHeader)
	s.Equal("Nasty C", s.fake.searchQuery.Get("q"))
	s.Equal("artist", s.fake.searchQuery.Get("type"))
	s.Equal("5", s.fake.searchQuery.Get("limit"))
	s.Equal("ZA", s.fake.searchQuery.Get("market"))
	s.Equal("/v1/artists/sp-1/albums", s.fake.albumsPath)
	s.Equal("single,album", s.fake.albumsQuery.Get("include_groups"))
	s.Equal("10", s.fake.albumsQuery.Get("limit"))
	s.Equal("ZA", s.fake.albumsQuery.Get("market"))
}

func (s *SpotifyTestSuite) TestFetchRecent_GlobalHasNoMarket() {
	items := s.source.FetchRecent(context.Background(), "Nasty C", domain.RegionGlobal, s.now)

	s.Require().NotEmpty(items)
	s.False(s.fake.searchQuery.Has("market"))
	s.False(s.fake.albumsQuery.Has("market"))
	s.Empty(items[0].Source.RegionHints)
}

func (s *SpotifyTestSuite) TestTokenIsCachedUntilNearExpiry() {
	ctx := context.Background()

	s.source.FetchRecent(ctx, "Nasty C", domain.RegionZA, s.now)
	s.source.FetchRecent(ctx, "Nasty C", domain.RegionZA, s.now)
	s.Equal(int32(1), s.fake.tokenHits.Load())

	s.now = s.now.Add(3600*time.Second - 29*time.Second)
	s.source.FetchRecent(ctx, "Nasty C", domain.RegionZA, s.now)
	s.Equal(int32(2), s.fake.tokenHits.Load())
}

func (s *SpotifyTestSuite) TestResolveArtist() {
	artist, err := s.source.ResolveArtist(context.Background(), "nasty c", domain.RegionUK)

	s.Require().NoError(err)
	s.Equal("Nasty C", artist.Name)
	s.Equal("nasty-c", artist.Slug)
	s.Equal("sp-1", artist.CatalogID())
	s.Require().NotNil(artist.ImageURL)
	s.Equal("https://i.scdn.co/image/1", *artist.ImageURL)
	s.Zero(artist.ID)
	s.Equal("GB", s.fake.searchQuery.Get("market"))
	s.Zero(s.fake.albumHits.Load())
}

func (s *SpotifyTestSuite) TestResolveArtist_NoMatch() {
	s.fake.searchBody = `{"artists":{"items":[]}}`

	_, err := s.source.ResolveArtist(context.Background(), "zzzz", domain.RegionZA)
	s.ErrorIs(err, domain.ErrArtistNotFound)

	s.Empty(s.source.FetchRecent(context.Background(), "zzzz", domain.RegionZA, s.now))
	s.Zero(s.fake.albumHits.Load())
}

func (s *SpotifyTestSuite) TestMissingCredentials() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src := New(Config{ClientID: "id"}, nil, logger)

	s.False(src.Available())
	s.Empty(src.FetchRecent(context.Background(), "Tyla", domain.RegionZA, s.now))
	_, err := src.ResolveArtist(context.Background(), "Tyla", domain.RegionZA)
	s.ErrorIs(err, ErrNotConfigured)
}

func TestFetchRecent_TokenFailureYieldsEmpty(t *testing.T) {
	var apiHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/token" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		apiHits.Add(1)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := fetch.New(fetch.Config{}, fetch.NewBreakers(fetch.BreakerSettings{}, logger), logger)
	src := New(Config{ClientID: "id", ClientSecret: "bad", AccountsURL: srv.URL + "/api/token", APIURL: srv.URL}, client, logger)

	assert.Empty(t, src.FetchRecent(context.Background(), "Tyla", domain.RegionZA, time.Now()))
	assert.Zero(t, apiHits.Load())
}

func TestParseReleaseDate(t *testing.T) {
	tests := []struct {
		value, precision string
		want             time.Time
		wantErr          bool
	}{
		{"2024-03-15", "day", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), false},
		{"2024-03", "month", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"2024", "year", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"2024-03", "", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"2024-03", "day", time.Time{}, true},
		{"", "", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.value+"/"+tt.precision, func(t *testing.T) {
			got, err := parseReleaseDate(tt.value, tt.precision)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

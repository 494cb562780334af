// Package spotify resolves artists and recent releases from the Spotify Web
// API using the client-credentials flow.
package spotify

import (
	"cmp"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"musicfeed/internal/content"
	"musicfeed/internal/domain"
	"musicfeed/internal/fetch"
	"musicfeed/internal/source"
)

const (
	SourceName         = "Spotify"
	AccountsBreakerKey = "spotify-accounts"
	APIBreakerKey      = "spotify-api"

	DefaultAccountsURL = "https://accounts.spotify.com/api/token"
	DefaultAPIURL      = "https://api.spotify.com/v1"

	searchLimit = 5
	albumLimit  = 10
	domainName  = "open.spotify.com"

	// tokenSkew renews the token this long before it actually expires.
	tokenSkew = 30 * time.Second
)

var ErrNotConfigured = errors.New("spotify credentials not configured")

type Config struct {
	ClientID     string
	ClientSecret string
	AccountsURL  string
	APIURL       string
	Timeout      time.Duration
}

type Source struct {
	client       *fetch.Client
	clientID     string
	clientSecret string
	accountsURL  string
	apiURL       string
	timeout      time.Duration
	logger       *slog.Logger
	now          func() time.Time

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(cfg Config, client *fetch.Client, logger *slog.Logger) *Source {
	if cfg.AccountsURL == "" {
		cfg.AccountsURL = DefaultAccountsURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	return &Source{
		client:       client,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		accountsURL:  cfg.AccountsURL,
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		timeout:      cfg.Timeout,
		logger:       logger.With("source", string(domain.KindRelease)),
		now:          time.Now,
	}
}

func (s *Source) Kind() domain.Kind { return domain.KindRelease }

func (s *Source) Name() string { return SourceName }

func (s *Source) Available() bool {
	return s.clientID != "" && s.clientSecret != ""
}

// FetchRecent resolves the artist by name and returns its latest releases,
// newest first. Releases are not filtered by since; deduplication absorbs
// repeats.
func (s *Source) FetchRecent(ctx context.Context, artistName string, region domain.Region, _ time.Time) []domain.ItemInput {
	if !s.Available() {
		s.logger.Debug("spotify credentials not configured")
		return nil
	}

	artist, err := s.searchArtist(ctx, artistName, region)
	if err != nil {
		s.logger.Error("artist search failed", "artist", artistName, "error", err)
		return nil
	}
	if artist == nil {
		s.logger.Debug("no catalog match", "artist", artistName)
		return nil
	}

	items, err := s.FetchReleases(ctx, artist.ID, region)
	if err != nil {
		s.logger.Error("release lookup failed", "artist", artistName, "catalog_id", artist.ID, "error", err)
		return nil
	}
	return items
}

// ResolveArtist returns the best catalog match as an unsaved artist
// candidate, or domain.ErrArtistNotFound.
func (s *Source) ResolveArtist(ctx context.Context, name string, region domain.Region) (*domain.Artist, error) {
	if !s.Available() {
		return nil, ErrNotConfigured
	}

	artist, err := s.searchArtist(ctx, name, region)
	if err != nil {
		return nil, err
	}
	if artist == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrArtistNotFound, name)
	}

	candidate := &domain.Artist{
		Name:        artist.Name,
		Slug:        content.Slug(artist.Name),
		PlatformIDs: map[string]string{domain.PlatformSpotify: artist.ID},
		CreatedAt:   s.now().UTC(),
	}
	if len(artist.Images) > 0 && artist.Images[0].URL != "" {
		img := artist.Images[0].URL
		candidate.ImageURL = &img
	}
	return candidate, nil
}

// FetchReleases returns singles and albums for a catalog artist ID.
func (s *Source) FetchReleases(ctx context.Context, catalogID string, region domain.Region) ([]domain.ItemInput, error) {
	params := url.Values{}
	params.Set("include_groups", "single,album")
	params.Set("limit", strconv.Itoa(albumLimit))
	market := marketFor(region)
	if market != "" {
		params.Set("market", market)
	}

	var payload albumsResponse
	endpoint := s.apiURL + "/artists/" + url.PathEscape(catalogID) + "/albums?" + params.Encode()
	if err := s.getJSON(ctx, "albums", endpoint, &payload); err != nil {
		return nil, err
	}

	return s.transform(payload.Items, region, market != ""), nil
}

func (s *Source) searchArtist(ctx context.Context, name string, region domain.Region) (*Artist, error) {
	params := url.Values{}
	params.Set("q", name)
	params.Set("type", "artist")
	params.Set("limit", strconv.Itoa(searchLimit))
	if market := marketFor(region); market != "" {
		params.Set("market", market)
	}

	var payload searchResponse
	if err := s.getJSON(ctx, "search", s.apiURL+"/search?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	if len(payload.Artists.Items) == 0 {
		return nil, nil
	}
	return &payload.Artists.Items[0], nil
}

func (s *Source) getJSON(ctx context.Context, op, endpoint string, dst any) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}

	resp, err := s.client.Execute(ctx, endpoint, fetch.Options{
		Header:     http.Header{"Authorization": []string{"Bearer " + token}},
		Timeout:    s.timeout,
		BreakerKey: APIBreakerKey,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		s.invalidateToken()
	}
	if !resp.OK() {
		return &source.ProviderError{Provider: SourceName, Op: op, StatusCode: resp.StatusCode}
	}
	if err := json.Unmarshal(resp.Body, dst); err != nil {
		return &source.ProviderError{Provider: SourceName, Op: op, Err: err}
	}
	return nil
}

// accessToken returns a cached bearer token, exchanging credentials when
// the cached one is missing or about to expire.
func (s *Source) accessToken(ctx context.Context) (string, error) {
	s.tokenMu.Lock()
	if s.token != "" && s.now().Before(s.tokenExpiry) {
		token := s.token
		s.tokenMu.Unlock()
		return token, nil
	}
	s.tokenMu.Unlock()

	basic := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))
	resp, err := s.client.Execute(ctx, s.accountsURL, fetch.Options{
		Method: http.MethodPost,
		Header: http.Header{
			"Authorization": []string{"Basic " + basic},
			"Content-Type":  []string{"application/x-www-form-urlencoded"},
		},
		Body:       []byte("grant_type=client_credentials"),
		Timeout:    s.timeout,
		BreakerKey: AccountsBreakerKey,
	})
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	if !resp.OK() {
		return "", &source.ProviderError{Provider: SourceName, Op: "token", StatusCode: resp.StatusCode}
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return "", &source.ProviderError{Provider: SourceName, Op: "token", Err: err}
	}
	if tr.AccessToken == "" {
		return "", &source.ProviderError{Provider: SourceName, Op: "token", Err: errors.New("empty access token")}
	}

	s.tokenMu.Lock()
	s.token = tr.AccessToken
	s.tokenExpiry = s.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenSkew)
	s.tokenMu.Unlock()

	return tr.AccessToken, nil
}

func (s *Source) invalidateToken() {
	s.tokenMu.Lock()
	s.token = ""
	s.tokenMu.Unlock()
}

func marketFor(region domain.Region) string {
	switch region {
	case domain.RegionZA:
		return "ZA"
	case domain.RegionUK:
		return "GB"
	case domain.RegionEU:
		return "DE"
	default:
		return ""
	}
}

type release struct {
	album Album
	date  time.Time
}

func (s *Source) transform(albums []Album, region domain.Region, scoped bool) []domain.ItemInput {
	releases := make([]release, 0, len(albums))
	for _, a := range albums {
		if a.ID == "" {
			continue
		}
		date, err := parseReleaseDate(a.ReleaseDate, a.ReleaseDatePrecision)
		if err != nil {
			s.logger.Warn("failed to parse release date", "album_id", a.ID, "date", a.ReleaseDate)
			continue
		}
		releases = append(releases, release{album: a, date: date})
	}

	slices.SortStableFunc(releases, func(a, b release) int {
		return cmp.Compare(b.date.UnixNano(), a.date.UnixNano())
	})

	var hints []domain.Region
	if scoped {
		hints = []domain.Region{region}
	}

	items := make([]domain.ItemInput, 0, len(releases))
	for _, r := range releases {
		title := strings.TrimSpace(r.album.Name)
		if title == "" {
			title = "Untitled Release"
		}

		link := r.album.ExternalURLs.Spotify
		if link == "" {
			link = "https://" + domainName + "/album/" + r.album.ID
		}
		oembed := "https://" + domainName + "/oembed?url=" + url.QueryEscape(link)
		host := domainName

		items = append(items, domain.ItemInput{
			Kind:        domain.KindRelease,
			Title:       title,
			URL:         link,
			OEmbedURL:   &oembed,
			PublishedAt: r.date,
			Source: domain.SourceDescriptor{
				Kind:        domain.KindRelease,
				Domain:      &host,
				RegionHints: hints,
			},
			ExternalID: r.album.ID,
		})
	}
	return items
}

// parseReleaseDate accepts the catalog's year, month and day precisions.
func parseReleaseDate(value, precision string) (time.Time, error) {
	layouts := []string{"2006-01-02", "2006-01", "2006"}
	switch precision {
	case "day":
		layouts = layouts[:1]
	case "month":
		layouts = layouts[1:2]
	case "year":
		layouts = layouts[2:]
	}

	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse release date %q: %w", value, err)
}

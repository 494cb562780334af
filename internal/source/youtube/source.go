// Package youtube searches the YouTube Data API for recent artist videos.
package youtube

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"musicfeed/internal/domain"
	"musicfeed/internal/fetch"
	"musicfeed/internal/source"
)

const (
	SourceName = "YouTube"
	BreakerKey = "youtube-api"

	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	maxResults = 25
	domainName = "youtube.com"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type Source struct {
	client     *fetch.Client
	apiKey     string
	baseURL    string
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

func New(cfg Config, client *fetch.Client, logger *slog.Logger) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Source{
		client:     client,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     logger.With("source", string(domain.KindVideo)),
		now:        time.Now,
	}
}

func (s *Source) Kind() domain.Kind { return domain.KindVideo }

func (s *Source) Name() string { return SourceName }

// Available reports whether an API key is configured.
func (s *Source) Available() bool { return s.apiKey != "" }

func (s *Source) FetchRecent(ctx context.Context, artistName string, region domain.Region, since time.Time) []domain.ItemInput {
	if !s.Available() {
		s.logger.Debug("youtube api key not configured")
		return nil
	}

	resp, err := s.client.Execute(ctx, s.searchURL(artistName, region, since), fetch.Options{
		Timeout:    s.timeout,
		MaxRetries: s.maxRetries,
		BreakerKey: BreakerKey,
	})
	if err != nil {
		var se *fetch.StatusError
		switch {
		case errors.As(err, &se) && se.RateLimited():
			s.logger.Warn("youtube api rate limit exceeded", "artist", artistName)
		case errors.Is(err, fetch.ErrCircuitOpen):
			s.logger.Warn("youtube api circuit open, skipping", "artist", artistName)
		default:
			s.logger.Error("video search failed", "artist", artistName, "error", err)
		}
		return nil
	}
	if !resp.OK() {
		s.logger.Error("video search failed", "artist", artistName,
			"error", &source.ProviderError{Provider: SourceName, Op: "search", StatusCode: resp.StatusCode})
		return nil
	}

	var payload SearchResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		s.logger.Error("video search failed", "artist", artistName,
			"error", &source.ProviderError{Provider: SourceName, Op: "decode search", Err: err})
		return nil
	}

	items := s.transform(payload.Items, region)
	s.logger.Debug("fetched videos", "artist", artistName, "results", len(payload.Items), "items", len(items))
	return items
}

func (s *Source) searchURL(artistName string, region domain.Region, since time.Time) string {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", artistName)
	params.Set("type", "video")
	params.Set("order", "date")
	params.Set("publishedAfter", since.UTC().Format(time.RFC3339))
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("safeSearch", "none")
	params.Set("fields", "items(id/videoId,snippet(title,publishedAt,channelId,channelTitle))")
	params.Set("key", s.apiKey)
	if region != domain.RegionGlobal {
		params.Set("regionCode", regionCode(region))
	}
	return s.baseURL + "/search?" + params.Encode()
}

func regionCode(region domain.Region) string {
	switch region {
	case domain.RegionUK:
		return "GB"
	case domain.RegionEU:
		return "DE"
	default:
		return "ZA"
	}
}

func (s *Source) transform(results []SearchResult, region domain.Region) []domain.ItemInput {
	var hints []domain.Region
	if region != domain.RegionGlobal {
		hints = []domain.Region{region}
	}

	items := make([]domain.ItemInput, 0, len(results))
	for _, r := range results {
		videoID := r.ID.VideoID
		if videoID == "" {
			continue
		}

		publishedAt, err := time.Parse(time.RFC3339, r.Snippet.PublishedAt)
		if err != nil {
			s.logger.Warn("failed to parse date, using current time", "video_id", videoID, "date", r.Snippet.PublishedAt)
			publishedAt = s.now()
		}

		title := strings.TrimSpace(html.UnescapeString(r.Snippet.Title))
		if title == "" {
			title = "Untitled Video"
		}

		watchURL := WatchURL(videoID)
		oembed := OEmbedURL(watchURL)
		host := domainName

		var channel *string
		if r.Snippet.ChannelID != "" {
			id := r.Snippet.ChannelID
			channel = &id
		}

		items = append(items, domain.ItemInput{
			Kind:        domain.KindVideo,
			Title:       title,
			URL:         watchURL,
			OEmbedURL:   &oembed,
			PublishedAt: publishedAt.UTC(),
			Source: domain.SourceDescriptor{
				Kind:        domain.KindVideo,
				Domain:      &host,
				ChannelID:   channel,
				RegionHints: hints,
			},
			ExternalID: videoID,
		})
	}
	return items
}

func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

func OEmbedURL(watchURL string) string {
	return "https://www.youtube.com/oembed?url=" + url.QueryEscape(watchURL) + "&format=json"
}

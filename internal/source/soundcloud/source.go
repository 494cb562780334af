// Package soundcloud is the audio adapter. SoundCloud has no public search
// API, so FetchRecent is deliberately unimplemented and reports itself
// unavailable; single known track URLs can still be resolved via oEmbed.
package soundcloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"musicfeed/internal/domain"
	"musicfeed/internal/fetch"
)

const (
	SourceName = "SoundCloud"
	BreakerKey = "soundcloud-oembed"

	DefaultOEmbedURL = "https://soundcloud.com/oembed"
)

var (
	ErrNotFound   = errors.New("track not found")
	ErrInvalidURL = errors.New("not a soundcloud url")
)

// OEmbed is the provider's embeddable preview descriptor.
type OEmbed struct {
	Version      float64 `json:"version"`
	Type         string  `json:"type"`
	ProviderName string  `json:"provider_name"`
	ProviderURL  string  `json:"provider_url"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	AuthorName   string  `json:"author_name"`
	AuthorURL    string  `json:"author_url"`
	ThumbnailURL string  `json:"thumbnail_url"`
	HTML         string  `json:"html"`
	Width        any     `json:"width"`
	Height       any     `json:"height"`
}

type Config struct {
	OEmbedURL string
	Timeout   time.Duration
}

type Source struct {
	client    *fetch.Client
	oembedURL string
	timeout   time.Duration
	logger    *slog.Logger
}

func New(cfg Config, client *fetch.Client, logger *slog.Logger) *Source {
	if cfg.OEmbedURL == "" {
		cfg.OEmbedURL = DefaultOEmbedURL
	}
	return &Source{
		client:    client,
		oembedURL: cfg.OEmbedURL,
		timeout:   cfg.Timeout,
		logger:    logger.With("source", string(domain.KindAudio)),
	}
}

func (s *Source) Kind() domain.Kind { return domain.KindAudio }

func (s *Source) Name() string { return SourceName }

// Available is false: there is no discovery integration for this provider.
func (s *Source) Available() bool { return false }

func (s *Source) FetchRecent(_ context.Context, _ string, _ domain.Region, _ time.Time) []domain.ItemInput {
	return nil
}

func isSoundCloudHost(host string) bool {
	host = strings.ToLower(host)
	return host == "soundcloud.com" || strings.HasSuffix(host, ".soundcloud.com")
}

// ResolveOEmbed fetches preview metadata for one track URL.
func (s *Source) ResolveOEmbed(ctx context.Context, trackURL string) (*OEmbed, error) {
	u, err := url.Parse(trackURL)
	if err != nil || !isSoundCloudHost(u.Hostname()) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, trackURL)
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("url", trackURL)

	resp, err := s.client.Execute(ctx, s.oembedURL+"?"+params.Encode(), fetch.Options{
		Timeout:    s.timeout,
		BreakerKey: BreakerKey,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve oembed: %w", err)
	}
	if !resp.OK() {
		s.logger.Warn("oembed lookup failed", "url", trackURL, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	}

	var out OEmbed
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode oembed: %w", err)
	}
	return &out, nil
}

// Package googlenews searches Google News RSS for recent artist coverage.
package googlenews

import (
	"bytes"
	"context"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/rss"

	"musicfeed/internal/domain"
	"musicfeed/internal/fetch"
	"musicfeed/internal/source"
)

const (
	SourceName = "Google News"
	BreakerKey = "google-news"

	DefaultBaseURL = "https://news.google.com/rss/search"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Source implements the news adapter. It needs no credentials.
type Source struct {
	client  *fetch.Client
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config, client *fetch.Client, logger *slog.Logger) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Source{
		client:  client,
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		logger:  logger.With("source", string(domain.KindNews)),
		now:     time.Now,
	}
}

func (s *Source) Kind() domain.Kind { return domain.KindNews }

func (s *Source) Name() string { return SourceName }

func (s *Source) Available() bool { return true }

// FetchRecent never fails; provider errors are logged and yield no items.
func (s *Source) FetchRecent(ctx context.Context, artistName string, region domain.Region, since time.Time) []domain.ItemInput {
	resp, err := s.client.Execute(ctx, s.searchURL(artistName, region), fetch.Options{
		Header:     http.Header{"Accept": []string{"application/rss+xml, application/xml, text/xml"}},
		Timeout:    s.timeout,
		BreakerKey: BreakerKey,
	})
	if err != nil {
		s.logger.Error("news search failed", "artist", artistName, "error", err)
		return nil
	}
	if !resp.OK() {
		s.logger.Error("news search failed", "artist", artistName,
			"error", &source.ProviderError{Provider: SourceName, Op: "search", StatusCode: resp.StatusCode})
		return nil
	}

	feed, err := (&rss.Parser{}).Parse(bytes.NewReader(resp.Body))
	if err != nil {
		s.logger.Error("news search failed", "artist", artistName,
			"error", &source.ProviderError{Provider: SourceName, Op: "parse feed", Err: err})
		return nil
	}

	items := s.transform(feed.Items, region, since)
	s.logger.Debug("fetched news", "artist", artistName, "entries", len(feed.Items), "items", len(items))
	return items
}

func (s *Source) searchURL(artistName string, region domain.Region) string {
	query := artistName + ` ("interview" OR "music")`
	if terms := regionTerms(region); terms != "" {
		query += " " + terms
	}

	code := editionCode(region)
	params := url.Values{}
	params.Set("q", query)
	params.Set("hl", "en-"+code)
	params.Set("gl", code)
	params.Set("ceid", code+":en")
	return s.baseURL + "?" + params.Encode()
}

func regionTerms(region domain.Region) string {
	switch region {
	case domain.RegionZA:
		return `site:.za OR "South Africa"`
	case domain.RegionUK:
		return `site:.uk OR "United Kingdom"`
	default:
		return ""
	}
}

func editionCode(region domain.Region) string {
	switch region {
	case domain.RegionZA:
		return "ZA"
	case domain.RegionUK:
		return "GB"
	case domain.RegionEU:
		return "DE"
	default:
		return "US"
	}
}

func (s *Source) transform(entries []*rss.Item, region domain.Region, since time.Time) []domain.ItemInput {
	var hints []domain.Region
	if region != domain.RegionGlobal {
		hints = []domain.Region{region}
	}

	items := make([]domain.ItemInput, 0, len(entries))
	for _, e := range entries {
		title := strings.TrimSpace(html.UnescapeString(e.Title))
		link := strings.TrimSpace(e.Link)
		if title == "" || link == "" {
			continue
		}

		linkHost := hostOf(link)
		if linkHost == "" {
			s.logger.Debug("skipping entry with invalid link", "link", link)
			continue
		}

		publishedAt := s.now().UTC()
		if e.PubDateParsed != nil {
			if e.PubDateParsed.Before(since) {
				continue
			}
			publishedAt = e.PubDateParsed.UTC()
		}

		domainName := linkHost
		if e.Source != nil {
			if h := hostOf(e.Source.URL); h != "" {
				domainName = h
			}
		}

		items = append(items, domain.ItemInput{
			Kind:        domain.KindNews,
			Title:       title,
			URL:         link,
			PublishedAt: publishedAt,
			Source: domain.SourceDescriptor{
				Kind:        domain.KindNews,
				Domain:      &domainName,
				RegionHints: hints,
			},
			ExternalID: link,
		})
	}
	return items
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

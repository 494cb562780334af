package soundcloud

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicfeed/internal/domain"
	"musicfeed/internal/fetch"
)

func newSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := fetch.New(fetch.Config{RetryBaseDelay: time.Millisecond}, fetch.NewBreakers(fetch.BreakerSettings{}, logger), logger)
	return New(Config{OEmbedURL: srv.URL}, client, logger)
}

func TestFetchRecent_IsUnimplemented(t *testing.T) {
	s := newSource(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected request")
	})

	assert.False(t, s.Available())
	assert.Equal(t, domain.KindAudio, s.Kind())
	assert.Empty(t, s.FetchRecent(context.Background(), "Tyla", domain.RegionZA, time.Now()))
}

func TestResolveOEmbed(t *testing.T) {
	var gotURL, gotFormat string
	s := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotURL, gotFormat = r.URL.Query().Get("url"), r.URL.Query().Get("format")
		_, _ = w.Write([]byte(`{"version":1.0,"type":"rich","provider_name":"SoundCloud","title":"Water by Tyla","author_name":"Tyla","html":"<iframe></iframe>","width":"100%","height":400}`))
	})

	out, err := s.ResolveOEmbed(context.Background(), "https://soundcloud.com/tyla/water")

	require.NoError(t, err)
	assert.Equal(t, "https://soundcloud.com/tyla/water", gotURL)
	assert.Equal(t, "json", gotFormat)
	assert.Equal(t, "Water by Tyla", out.Title)
	assert.Equal(t, "Tyla", out.AuthorName)
	assert.Equal(t, "<iframe></iframe>", out.HTML)
}

func TestResolveOEmbed_NotFound(t *testing.T) {
	s := newSource(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := s.ResolveOEmbed(context.Background(), "https://soundcloud.com/nobody/nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveOEmbed_RejectsForeignURL(t *testing.T) {
	s := newSource(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected request")
	})

	_, err := s.ResolveOEmbed(context.Background(), "https://example.com/track")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = s.ResolveOEmbed(context.Background(), "soundcloud.com/tyla/water")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = s.ResolveOEmbed(context.Background(), "https://notsoundcloud.com/tyla/water")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestIsSoundCloudHost(t *testing.T) {
	assert.True(t, isSoundCloudHost("soundcloud.com"))
	assert.True(t, isSoundCloudHost("M.SoundCloud.com"))
	assert.False(t, isSoundCloudHost("notsoundcloud.com"))
	assert.False(t, isSoundCloudHost("soundcloud.com.evil.io"))
	assert.False(t, isSoundCloudHost(""))
}

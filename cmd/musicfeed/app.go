package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"musicfeed/internal/api"
	"musicfeed/internal/config"
	"musicfeed/internal/fetch"
	"musicfeed/internal/publisher"
	"musicfeed/internal/service"
	"musicfeed/internal/source/googlenews"
	"musicfeed/internal/source/soundcloud"
	"musicfeed/internal/source/spotify"
	"musicfeed/internal/source/youtube"
	"musicfeed/internal/storage/memory"
	"musicfeed/internal/storage/postgres"
)

type stores struct {
	artists service.ArtistStore
	items   service.ItemStore
	sources service.SourceStore
	states  service.RefreshStateStore
	tx      service.TransactionManager
}

// app is the wired object graph shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db        *sqlx.DB
	publisher *publisher.RabbitMQ
	breakers  *fetch.Breakers

	adapters   []service.Source
	soundcloud *soundcloud.Source
	services   map[string]bool

	refresh *service.RefreshService
	listing *service.ListingService
	artists *service.ArtistService
	admin   *service.AdminService
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, services: make(map[string]bool)}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	var events service.Publisher
	if cfg.RabbitMQ.Enabled {
		rmq, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = rmq
		events = rmq
	}
	a.services["rabbitmq"] = cfg.RabbitMQ.Enabled

	a.breakers = fetch.NewBreakers(fetch.BreakerSettings{
		FailureThreshold: cfg.Fetch.Breaker.FailureThreshold,
		Cooldown:         cfg.Fetch.Breaker.Cooldown,
	}, logger)

	var opts []fetch.ClientOption
	for key, limit := range cfg.Fetch.RateLimits {
		opts = append(opts, fetch.WithRateLimit(key, limit.PerSecond, limit.Burst))
	}
	maxRetries := cfg.Fetch.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	client := fetch.New(fetch.Config{
		Timeout:        cfg.Fetch.Timeout,
		MaxRetries:     maxRetries,
		RetryBaseDelay: cfg.Fetch.RetryBaseDelay,
		MaxBackoff:     cfg.Fetch.MaxBackoff,
		UserAgent:      cfg.Fetch.UserAgent,
	}, a.breakers, logger, opts...)

	p := cfg.Providers
	yt := youtube.New(youtube.Config{
		APIKey:  p.YouTube.APIKey,
		BaseURL: p.YouTube.BaseURL,
	}, client, logger)
	sp := spotify.New(spotify.Config{
		ClientID:     p.Spotify.ClientID,
		ClientSecret: p.Spotify.ClientSecret,
		AccountsURL:  p.Spotify.AccountsURL,
		APIURL:       p.Spotify.APIURL,
	}, client, logger)
	a.soundcloud = soundcloud.New(soundcloud.Config{OEmbedURL: p.SoundCloud.OEmbedURL}, client, logger)
	news := googlenews.New(googlenews.Config{BaseURL: p.News.BaseURL}, client, logger)

	a.adapters = []service.Source{yt, a.soundcloud, sp, news}
	a.services["youtube"] = yt.Available()
	a.services["spotify"] = sp.Available()

	a.refresh = service.NewRefreshService(a.adapters, st.artists, st.items, st.sources, st.states, st.tx, events, logger, cfg.Refresh)
	a.listing = service.NewListingService(st.items)
	a.artists = service.NewArtistService(st.artists, sp, logger)
	a.admin = service.NewAdminService(cfg.Server.AdminKey, st.items, a.refresh, logger)
	a.services["admin"] = cfg.Server.AdminKey != ""

	return a, nil
}

// storePinger returns nil for the memory driver.
func (a *app) storePinger() api.Pinger {
	if a.db == nil {
		return nil
	}
	return a.db
}

func (a *app) openStores(ctx context.Context) (*stores, error) {
	if a.cfg.Storage.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory storage; data is lost on exit")
		db := memory.New()
		a.services["database"] = false
		return &stores{
			artists: memory.NewArtistStore(db),
			items:   memory.NewItemStore(db),
			sources: memory.NewSourceStore(db),
			states:  memory.NewRefreshStateStore(db),
			tx:      memory.NewTransactionManager(),
		}, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", a.cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	a.services["database"] = true
	a.logger.Info("connected to database")

	return &stores{
		artists: postgres.NewArtistStore(db),
		items:   postgres.NewItemStore(db),
		sources: postgres.NewSourceStore(db),
		states:  postgres.NewRefreshStateStore(db),
		tx:      postgres.NewTransactionManager(db),
	}, nil
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close publisher", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
}

// withApp loads config, wires the app and closes it after fn returns.
func (c *commandContext) withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, setupLogger(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

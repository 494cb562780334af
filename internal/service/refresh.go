package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"musicfeed/internal/config"
	"musicfeed/internal/content"
	"musicfeed/internal/domain"
	"musicfeed/internal/metrics"
	"musicfeed/internal/ranking"
)

const (
	actionCreate = "create"
	actionUpdate = "update"
)

type RefreshService struct {
	sources     map[domain.Kind]Source
	artists     ArtistStore
	items       ItemStore
	sourceStore SourceStore
	states      RefreshStateStore
	txManager   TransactionManager
	publisher   Publisher
	logger      *slog.Logger

	region      domain.Region
	scoreRegion domain.Region
	lookback    time.Duration
	now         func() time.Time
}

func NewRefreshService(
	adapters []Source,
	artists ArtistStore,
	items ItemStore,
	sourceStore SourceStore,
	states RefreshStateStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.RefreshConfig,
) *RefreshService {
	sources := make(map[domain.Kind]Source, len(adapters))
	for _, a := range adapters {
		sources[a.Kind()] = a
	}

	region, err := domain.ParseRegion(cfg.Region)
	if err != nil {
		region = domain.RegionGlobal
	}
	scoreRegion, err := domain.ParseRegion(cfg.ScoreRegion)
	if err != nil || cfg.ScoreRegion == "" {
		scoreRegion = domain.PrivilegedRegion
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 30 * time.Minute
	}

	return &RefreshService{
		sources:     sources,
		artists:     artists,
		items:       items,
		sourceStore: sourceStore,
		states:      states,
		txManager:   txManager,
		publisher:   publisher,
		logger:      logger.With("component", "refresh"),
		region:      region,
		scoreRegion: scoreRegion,
		lookback:    lookback,
		now:         time.Now,
	}
}

// fetchResult is one adapter call, settled.
type fetchResult struct {
	items []domain.ItemInput
	err   error
}

// RefreshArtist pulls recent content for an artist from every adapter and
// upserts it. It fails only when the artist cannot be loaded; adapter and
// item failures are reported per source.
func (s *RefreshService) RefreshArtist(ctx context.Context, artistID int64) (*domain.RefreshReport, error) {
	start := s.now()

	artist, err := s.artists.GetByID(ctx, artistID)
	if err != nil {
		return nil, fmt.Errorf("get artist %d: %w", artistID, err)
	}

	logger := s.logger.With("artist_id", artist.ID, "artist", artist.Name)
	logger.Info("starting refresh", "region", s.region)

	since := start.Add(-s.lookback)
	results := s.fetchAll(ctx, artist.Name, since, logger)

	report := &domain.RefreshReport{
		ArtistID: artist.ID,
		Sources:  make(map[domain.Kind]domain.SourceOutcome, len(results)),
	}

	for _, kind := range domain.Kinds {
		res, ok := results[kind]
		if !ok {
			continue
		}

		outcome := domain.SourceOutcome{OK: true, Available: s.sources[kind].Available()}
		if res.err != nil {
			outcome.OK = false
			outcome.Error = res.err.Error()
		} else {
			st := s.upsertAll(ctx, artist, res.items, logger)
			outcome.Count = st.written
			if st.failed > 0 && st.failed == st.attempted {
				outcome.OK = false
				outcome.Error = fmt.Sprintf("all %d item upserts failed: %v", st.failed, st.lastErr)
			}
		}

		report.Sources[kind] = outcome
		report.Updated += outcome.Count
		metrics.RefreshSourceOutcomes.WithLabelValues(string(kind), outcomeLabel(outcome)).Inc()

		s.recordState(ctx, artist.ID, kind, outcome, logger)
	}

	report.Duration = s.now().Sub(start)
	metrics.RefreshDuration.Observe(report.Duration.Seconds())

	logger.Info("refresh completed",
		"updated", report.Updated,
		"duration", report.Duration,
	)

	return report, nil
}

// fetchAll runs every adapter concurrently and waits for all of them. A
// panicking adapter is recovered into its own result.
func (s *RefreshService) fetchAll(ctx context.Context, artistName string, since time.Time, logger *slog.Logger) map[domain.Kind]fetchResult {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[domain.Kind]fetchResult, len(s.sources))
	)

	for kind, src := range s.sources {
		wg.Go(func() {
			var res fetchResult
			defer func() {
				if r := recover(); r != nil {
					res = fetchResult{err: fmt.Errorf("adapter %s panicked: %v", src.Name(), r)}
					logger.Error("adapter panicked", "source", kind, "panic", r)
				}
				mu.Lock()
				results[kind] = res
				mu.Unlock()
			}()

			res.items = src.FetchRecent(ctx, artistName, s.region, since)
			logger.Debug("adapter finished", "source", kind, "items", len(res.items))
		})
	}

	wg.Wait()
	return results
}

type upsertStats struct {
	attempted int
	written   int
	failed    int
	lastErr   error
}

// upsertAll writes items one by one; a failed item never stops the rest.
func (s *RefreshService) upsertAll(ctx context.Context, artist *domain.Artist, inputs []domain.ItemInput, logger *slog.Logger) upsertStats {
	var st upsertStats
	for i := range inputs {
		in := &inputs[i]
		if err := in.Validate(); err != nil {
			logger.Debug("dropping malformed item", "kind", in.Kind, "error", err)
			continue
		}

		st.attempted++
		changed, err := s.upsertItem(ctx, artist, in)
		if err != nil {
			st.failed++
			st.lastErr = err
			logger.Error("failed to upsert item", "kind", in.Kind, "url", in.URL, "error", err)
			continue
		}
		if changed {
			st.written++
		}
	}
	return st
}

// upsertItem inserts a new item or patches the display fields of an
// existing one. It reports whether anything was written.
func (s *RefreshService) upsertItem(ctx context.Context, artist *domain.Artist, in *domain.ItemInput) (bool, error) {
	hash := content.HashInput(in)

	existing, err := s.items.GetByHash(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("get by hash: %w", err)
	}

	if existing != nil {
		fields := in.Display()
		if existing.Display().Equal(fields) {
			return false, nil
		}
		if err := s.items.UpdateDisplay(ctx, existing.ID, fields); err != nil {
			return false, fmt.Errorf("update display: %w", err)
		}
		existing.Title, existing.URL = fields.Title, fields.URL
		existing.OEmbedURL, existing.EmbedHTML = fields.OEmbedURL, fields.EmbedHTML
		metrics.ItemsUpserted.WithLabelValues(string(in.Kind), actionUpdate).Inc()
		s.publish(ctx, actionUpdate, existing)
		return true, nil
	}

	now := s.now().UTC()
	item := &domain.ContentItem{
		Hash:        hash,
		ArtistID:    artist.ID,
		Kind:        in.Kind,
		Title:       in.Title,
		URL:         in.URL,
		OEmbedURL:   in.OEmbedURL,
		EmbedHTML:   in.EmbedHTML,
		PublishedAt: in.PublishedAt.UTC(),
		RegionScore: ranking.Score(ranking.SignalsFromInput(in), s.scoreRegion),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		sourceID, err := s.sourceStore.FindOrCreate(txCtx, in.Source)
		if err != nil {
			return fmt.Errorf("find or create source: %w", err)
		}
		item.SourceID = sourceID

		id, err := s.items.Insert(txCtx, item)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		item.ID = id
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateItem) {
		// A concurrent refresh stored the same hash first.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	metrics.ItemsUpserted.WithLabelValues(string(in.Kind), actionCreate).Inc()
	s.publish(ctx, actionCreate, item)
	return true, nil
}

func (s *RefreshService) publish(ctx context.Context, action string, item *domain.ContentItem) {
	if s.publisher == nil {
		return
	}

	event := &domain.ItemEvent{Action: action, Item: *item, Timestamp: s.now().UTC()}
	if err := s.publisher.Publish(ctx, event); err != nil {
		metrics.EventsPublished.WithLabelValues(action, "error").Inc()
		s.logger.Warn("failed to publish item event", "item_id", item.ID, "action", action, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(action, "ok").Inc()
}

func (s *RefreshService) recordState(ctx context.Context, artistID int64, kind domain.Kind, outcome domain.SourceOutcome, logger *slog.Logger) {
	if s.states == nil {
		return
	}

	state, err := s.states.Get(ctx, artistID, kind)
	if err != nil {
		logger.Warn("failed to load refresh state", "source", kind, "error", err)
		return
	}

	state.ArtistID = artistID
	state.Kind = kind
	state.LastRefreshedAt = s.now().UTC()
	state.LastOK = outcome.OK
	state.LastCount = outcome.Count
	state.LastError = outcome.Error
	state.TotalUpserted += int64(outcome.Count)

	if err := s.states.Update(ctx, state); err != nil {
		logger.Warn("failed to save refresh state", "source", kind, "error", err)
	}
}

func outcomeLabel(o domain.SourceOutcome) string {
	switch {
	case !o.OK:
		return "failed"
	case !o.Available:
		return "unavailable"
	default:
		return "ok"
	}
}

// Sweep refreshes every artist that has stale content or none at all.
// A failing artist is logged and counted; it never stops the sweep.
func (s *RefreshService) Sweep(ctx context.Context) (*domain.SweepStats, error) {
	start := s.now()

	artists, err := s.artists.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list artists: %w", err)
	}

	stats := &domain.SweepStats{Artists: len(artists)}
	s.logger.Info("starting stale sweep", "artists", len(artists))

	for i := range artists {
		if ctx.Err() != nil {
			break
		}
		artist := &artists[i]

		due, err := s.isDue(ctx, artist.ID)
		if err != nil {
			stats.Failed++
			metrics.SweepRefreshes.WithLabelValues("failed").Inc()
			s.logger.Error("failed to check staleness", "artist_id", artist.ID, "error", err)
			continue
		}
		if !due {
			continue
		}

		if _, err := s.RefreshArtist(ctx, artist.ID); err != nil {
			stats.Failed++
			metrics.SweepRefreshes.WithLabelValues("failed").Inc()
			s.logger.Error("sweep refresh failed", "artist_id", artist.ID, "error", err)
			continue
		}
		stats.Refreshed++
		metrics.SweepRefreshes.WithLabelValues("ok").Inc()
	}

	stats.Duration = s.now().Sub(start)
	s.logger.Info("stale sweep completed",
		"artists", stats.Artists,
		"refreshed", stats.Refreshed,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *RefreshService) isDue(ctx context.Context, artistID int64) (bool, error) {
	items, err := s.items.ListByArtist(ctx, artistID, nil)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return true, nil
	}

	now := s.now()
	for i := range items {
		if content.IsStale(items[i].Kind, items[i].CreatedAt, now) {
			return true, nil
		}
	}
	return false, nil
}

// Package memory implements the store contract in process. It backs the
// "memory" storage driver and end-to-end tests; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"musicfeed/internal/domain"
)

// DB holds every table. All stores built on one DB share its lock.
type DB struct {
	mu sync.RWMutex

	artists  map[int64]*domain.Artist
	items    map[int64]*domain.ContentItem
	sources  map[int64]*domain.Source
	states   map[stateKey]*domain.RefreshState
	byHash   map[string]int64
	bySlug   map[string]int64
	bySource map[sourceKey]int64

	nextID int64
	now    func() time.Time
}

type stateKey struct {
	artistID int64
	kind     domain.Kind
}

// sourceKey folds an absent domain or channel into "", so absent and empty
// identify the same source.
type sourceKey struct {
	kind    domain.Kind
	domain  string
	channel string
}

func New() *DB {
	return &DB{
		artists:  make(map[int64]*domain.Artist),
		items:    make(map[int64]*domain.ContentItem),
		sources:  make(map[int64]*domain.Source),
		states:   make(map[stateKey]*domain.RefreshState),
		byHash:   make(map[string]int64),
		bySlug:   make(map[string]int64),
		bySource: make(map[sourceKey]int64),
		now:      time.Now,
	}
}

func (db *DB) id() int64 {
	db.nextID++
	return db.nextID
}

// TransactionManager runs fn directly. Each store call is atomic on its
// own; a failed fn does not roll back earlier calls.
type TransactionManager struct{}

func NewTransactionManager() *TransactionManager {
	return &TransactionManager{}
}

func (TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type ArtistStore struct {
	db *DB
}

func NewArtistStore(db *DB) *ArtistStore {
	return &ArtistStore{db: db}
}

func (s *ArtistStore) GetByID(_ context.Context, id int64) (*domain.Artist, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	a, ok := s.db.artists[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", domain.ErrArtistNotFound, id)
	}
	return cloneArtist(a), nil
}

func (s *ArtistStore) GetBySlug(_ context.Context, slug string) (*domain.Artist, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	id, ok := s.db.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("%w: slug %q", domain.ErrArtistNotFound, slug)
	}
	return cloneArtist(s.db.artists[id]), nil
}

func (s *ArtistStore) ListByName(_ context.Context, name string) ([]domain.Artist, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []domain.Artist
	for _, id := range s.sortedArtistIDs() {
		if a := s.db.artists[id]; a.Name == name {
			out = append(out, *cloneArtist(a))
		}
	}
	return out, nil
}

func (s *ArtistStore) List(_ context.Context) ([]domain.Artist, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]domain.Artist, 0, len(s.db.artists))
	for _, id := range s.sortedArtistIDs() {
		out = append(out, *cloneArtist(s.db.artists[id]))
	}
	return out, nil
}

func (s *ArtistStore) Upsert(_ context.Context, artist *domain.Artist) (*domain.Artist, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if id, ok := s.db.bySlug[artist.Slug]; ok {
		existing := s.db.artists[id]
		existing.Name = artist.Name
		existing.ImageURL = artist.ImageURL
		if existing.PlatformIDs == nil {
			existing.PlatformIDs = make(map[string]string)
		}
		maps.Copy(existing.PlatformIDs, artist.PlatformIDs)
		return cloneArtist(existing), nil
	}

	stored := cloneArtist(artist)
	stored.ID = s.db.id()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.db.now().UTC()
	}
	if stored.PlatformIDs == nil {
		stored.PlatformIDs = make(map[string]string)
	}
	s.db.artists[stored.ID] = stored
	s.db.bySlug[stored.Slug] = stored.ID
	return cloneArtist(stored), nil
}

func (s *ArtistStore) sortedArtistIDs() []int64 {
	return slices.Sorted(maps.Keys(s.db.artists))
}

func cloneArtist(a *domain.Artist) *domain.Artist {
	c := *a
	c.PlatformIDs = maps.Clone(a.PlatformIDs)
	return &c
}

type ItemStore struct {
	db *DB
}

func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) GetByHash(_ context.Context, hash string) (*domain.ContentItem, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	id, ok := s.db.byHash[hash]
	if !ok {
		return nil, nil
	}
	return s.joined(s.db.items[id]), nil
}

func (s *ItemStore) GetByID(_ context.Context, id int64) (*domain.ContentItem, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	item, ok := s.db.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", domain.ErrItemNotFound, id)
	}
	return s.joined(item), nil
}

func (s *ItemStore) Insert(_ context.Context, item *domain.ContentItem) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.byHash[item.Hash]; ok {
		return 0, domain.ErrDuplicateItem
	}
	if _, ok := s.db.sources[item.SourceID]; !ok {
		return 0, fmt.Errorf("unknown source %d", item.SourceID)
	}

	stored := *item
	stored.ID = s.db.id()
	stored.SourceDomain, stored.SourceRegionHints = nil, nil
	s.db.items[stored.ID] = &stored
	s.db.byHash[stored.Hash] = stored.ID
	return stored.ID, nil
}

func (s *ItemStore) UpdateDisplay(_ context.Context, id int64, fields domain.DisplayFields) error {
	return s.update(id, func(item *domain.ContentItem) {
		item.Title = fields.Title
		item.URL = fields.URL
		item.OEmbedURL = fields.OEmbedURL
		item.EmbedHTML = fields.EmbedHTML
	})
}

func (s *ItemStore) SetPinned(_ context.Context, id int64, pinned bool) error {
	return s.update(id, func(item *domain.ContentItem) { item.Pinned = pinned })
}

func (s *ItemStore) SetNote(_ context.Context, id int64, note *string) error {
	return s.update(id, func(item *domain.ContentItem) { item.Note = note })
}

func (s *ItemStore) update(id int64, fn func(*domain.ContentItem)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	item, ok := s.db.items[id]
	if !ok {
		return fmt.Errorf("%w: id %d", domain.ErrItemNotFound, id)
	}
	fn(item)
	item.UpdatedAt = s.db.now().UTC()
	return nil
}

func (s *ItemStore) ListByArtist(_ context.Context, artistID int64, kind *domain.Kind) ([]domain.ContentItem, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []domain.ContentItem
	for _, id := range slices.Sorted(maps.Keys(s.db.items)) {
		item := s.db.items[id]
		if item.ArtistID != artistID || (kind != nil && item.Kind != *kind) {
			continue
		}
		out = append(out, *s.joined(item))
	}
	return out, nil
}

// joined copies item and attaches its source's ranking signals.
func (s *ItemStore) joined(item *domain.ContentItem) *domain.ContentItem {
	c := *item
	if src, ok := s.db.sources[item.SourceID]; ok {
		c.SourceDomain = src.Domain
		c.SourceRegionHints = slices.Clone(src.RegionHints)
	}
	return &c
}

type SourceStore struct {
	db *DB
}

func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

func (s *SourceStore) FindOrCreate(_ context.Context, desc domain.SourceDescriptor) (int64, error) {
	key := sourceKey{kind: desc.Kind}
	if desc.Domain != nil {
		key.domain = *desc.Domain
	}
	if desc.ChannelID != nil {
		key.channel = *desc.ChannelID
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if id, ok := s.db.bySource[key]; ok {
		return id, nil
	}

	src := &domain.Source{
		ID:          s.db.id(),
		Kind:        desc.Kind,
		Domain:      desc.Domain,
		ChannelID:   desc.ChannelID,
		RegionHints: slices.Clone(desc.RegionHints),
		CreatedAt:   s.db.now().UTC(),
	}
	if src.RegionHints == nil {
		src.RegionHints = []domain.Region{}
	}
	s.db.sources[src.ID] = src
	s.db.bySource[key] = src.ID
	return src.ID, nil
}

// Count returns the number of stored sources.
func (s *SourceStore) Count() int {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return len(s.db.sources)
}

type RefreshStateStore struct {
	db *DB
}

func NewRefreshStateStore(db *DB) *RefreshStateStore {
	return &RefreshStateStore{db: db}
}

func (s *RefreshStateStore) Get(_ context.Context, artistID int64, kind domain.Kind) (*domain.RefreshState, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	if st, ok := s.db.states[stateKey{artistID, kind}]; ok {
		c := *st
		return &c, nil
	}
	return &domain.RefreshState{ArtistID: artistID, Kind: kind}, nil
}

func (s *RefreshStateStore) Update(_ context.Context, state *domain.RefreshState) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := stateKey{state.ArtistID, state.Kind}
	c := *state
	if existing, ok := s.db.states[key]; ok {
		c.ID = existing.ID
	} else {
		c.ID = s.db.id()
	}
	s.db.states[key] = &c
	return nil
}

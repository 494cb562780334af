package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"musicfeed/internal/domain"
)

const artistColumns = `id, name, slug, image_url, platform_ids, created_at`

type artistRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	ImageURL    *string   `db:"image_url"`
	PlatformIDs []byte    `db:"platform_ids"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *artistRow) toDomain() (*domain.Artist, error) {
	a := &domain.Artist{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		ImageURL:    r.ImageURL,
		PlatformIDs: make(map[string]string),
		CreatedAt:   r.CreatedAt,
	}
	if len(r.PlatformIDs) > 0 {
		if err := json.Unmarshal(r.PlatformIDs, &a.PlatformIDs); err != nil {
			return nil, fmt.Errorf("decode platform ids of artist %d: %w", r.ID, err)
		}
	}
	return a, nil
}

type ArtistStore struct {
	db *sqlx.DB
}

func NewArtistStore(db *sqlx.DB) *ArtistStore {
	return &ArtistStore{db: db}
}

func (s *ArtistStore) GetByID(ctx context.Context, id int64) (*domain.Artist, error) {
	return s.getOne(ctx, fmt.Sprintf("id %d", id),
		`SELECT `+artistColumns+` FROM artists WHERE id = $1`, id)
}

func (s *ArtistStore) GetBySlug(ctx context.Context, slug string) (*domain.Artist, error) {
	return s.getOne(ctx, fmt.Sprintf("slug %q", slug),
		`SELECT `+artistColumns+` FROM artists WHERE slug = $1`, slug)
}

func (s *ArtistStore) getOne(ctx context.Context, what, query string, arg any) (*domain.Artist, error) {
	var row artistRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrArtistNotFound, what)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *ArtistStore) ListByName(ctx context.Context, name string) ([]domain.Artist, error) {
	return s.list(ctx, `SELECT `+artistColumns+` FROM artists WHERE name = $1 ORDER BY id`, name)
}

func (s *ArtistStore) List(ctx context.Context) ([]domain.Artist, error) {
	return s.list(ctx, `SELECT `+artistColumns+` FROM artists ORDER BY id`)
}

func (s *ArtistStore) list(ctx context.Context, query string, args ...any) ([]domain.Artist, error) {
	var rows []artistRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, args...); err != nil {
		return nil, err
	}

	artists := make([]domain.Artist, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		artists = append(artists, *a)
	}
	return artists, nil
}

// Upsert keys on slug. Existing platform IDs are kept unless the incoming
// artist carries the same platform.
func (s *ArtistStore) Upsert(ctx context.Context, artist *domain.Artist) (*domain.Artist, error) {
	ids := artist.PlatformIDs
	if ids == nil {
		ids = map[string]string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode platform ids: %w", err)
	}

	query := `
		INSERT INTO artists (name, slug, image_url, platform_ids)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			image_url = EXCLUDED.image_url,
			platform_ids = artists.platform_ids || EXCLUDED.platform_ids
		RETURNING ` + artistColumns

	var row artistRow
	err = sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query,
		artist.Name,
		artist.Slug,
		artist.ImageURL,
		string(encoded),
	)
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

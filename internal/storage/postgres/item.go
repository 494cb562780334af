package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"musicfeed/internal/domain"
)

// itemSelect joins the owning source so reads carry its ranking signals.
const itemSelect = `
	SELECT i.id, i.hash, i.artist_id, i.source_id, i.kind, i.title, i.url,
		i.oembed_url, i.embed_html, i.published_at, i.region_score, i.pinned,
		i.note, i.created_at, i.updated_at, s.domain AS source_domain,
		s.region_hints AS source_region_hints
	FROM content_items i
	INNER JOIN sources s ON s.id = i.source_id`

type itemRow struct {
	ID                int64          `db:"id"`
	Hash              string         `db:"hash"`
	ArtistID          int64          `db:"artist_id"`
	SourceID          int64          `db:"source_id"`
	Kind              string         `db:"kind"`
	Title             string         `db:"title"`
	URL               string         `db:"url"`
	OEmbedURL         *string        `db:"oembed_url"`
	EmbedHTML         *string        `db:"embed_html"`
	PublishedAt       time.Time      `db:"published_at"`
	RegionScore       int            `db:"region_score"`
	Pinned            bool           `db:"pinned"`
	Note              *string        `db:"note"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
	SourceDomain      *string        `db:"source_domain"`
	SourceRegionHints pq.StringArray `db:"source_region_hints"`
}

func (r *itemRow) toDomain() domain.ContentItem {
	return domain.ContentItem{
		ID:                r.ID,
		Hash:              r.Hash,
		ArtistID:          r.ArtistID,
		SourceID:          r.SourceID,
		Kind:              domain.Kind(r.Kind),
		Title:             r.Title,
		URL:               r.URL,
		OEmbedURL:         r.OEmbedURL,
		EmbedHTML:         r.EmbedHTML,
		PublishedAt:       r.PublishedAt,
		RegionScore:       r.RegionScore,
		Pinned:            r.Pinned,
		Note:              r.Note,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		SourceDomain:      r.SourceDomain,
		SourceRegionHints: toRegions(r.SourceRegionHints),
	}
}

type ItemStore struct {
	db *sqlx.DB
}

func NewItemStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) GetByHash(ctx context.Context, hash string) (*domain.ContentItem, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, itemSelect+` WHERE i.hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item := row.toDomain()
	return &item, nil
}

func (s *ItemStore) GetByID(ctx context.Context, id int64) (*domain.ContentItem, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, itemSelect+` WHERE i.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	item := row.toDomain()
	return &item, nil
}

// Insert returns domain.ErrDuplicateItem when the hash is already stored.
func (s *ItemStore) Insert(ctx context.Context, item *domain.ContentItem) (int64, error) {
	query := `
		INSERT INTO content_items (
			hash, artist_id, source_id, kind, title, url, oembed_url,
			embed_html, published_at, region_score, pinned, note
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		ON CONFLICT (hash) DO NOTHING
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		item.Hash,
		item.ArtistID,
		item.SourceID,
		string(item.Kind),
		item.Title,
		item.URL,
		item.OEmbedURL,
		item.EmbedHTML,
		item.PublishedAt,
		item.RegionScore,
		item.Pinned,
		item.Note,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrDuplicateItem
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *ItemStore) UpdateDisplay(ctx context.Context, id int64, fields domain.DisplayFields) error {
	return s.exec(ctx, id, `
		UPDATE content_items
		SET title = $2, url = $3, oembed_url = $4, embed_html = $5, updated_at = NOW()
		WHERE id = $1`,
		fields.Title, fields.URL, fields.OEmbedURL, fields.EmbedHTML,
	)
}

func (s *ItemStore) SetPinned(ctx context.Context, id int64, pinned bool) error {
	return s.exec(ctx, id, `UPDATE content_items SET pinned = $2, updated_at = NOW() WHERE id = $1`, pinned)
}

func (s *ItemStore) SetNote(ctx context.Context, id int64, note *string) error {
	return s.exec(ctx, id, `UPDATE content_items SET note = $2, updated_at = NOW() WHERE id = $1`, note)
}

func (s *ItemStore) exec(ctx context.Context, id int64, query string, args ...any) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrItemNotFound, id)
	}
	return nil
}

func (s *ItemStore) ListByArtist(ctx context.Context, artistID int64, kind *domain.Kind) ([]domain.ContentItem, error) {
	query := itemSelect + ` WHERE i.artist_id = $1`
	args := []any{artistID}
	if kind != nil {
		query += ` AND i.kind = $2`
		args = append(args, string(*kind))
	}
	query += ` ORDER BY i.id`

	var rows []itemRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, args...); err != nil {
		return nil, err
	}

	items := make([]domain.ContentItem, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toDomain())
	}
	return items, nil
}

func toRegions(values []string) []domain.Region {
	regions := make([]domain.Region, 0, len(values))
	for _, v := range values {
		regions = append(regions, domain.Region(v))
	}
	return regions
}

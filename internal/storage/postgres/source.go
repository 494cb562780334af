package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"musicfeed/internal/domain"
)

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

// FindOrCreate returns the id of the source with the same kind, domain and
// channel, creating it if needed. NULL domain and channel compare equal.
// Region hints of an existing source are left as first recorded.
func (s *SourceStore) FindOrCreate(ctx context.Context, desc domain.SourceDescriptor) (int64, error) {
	hints := make([]string, 0, len(desc.RegionHints))
	for _, r := range desc.RegionHints {
		hints = append(hints, string(r))
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO sources (kind, domain, channel_id, region_hints)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, (COALESCE(domain, '')), (COALESCE(channel_id, '')))
		DO UPDATE SET kind = EXCLUDED.kind
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		string(desc.Kind),
		desc.Domain,
		desc.ChannelID,
		pq.Array(hints),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

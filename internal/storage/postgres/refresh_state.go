package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"musicfeed/internal/domain"
)

type RefreshStateStore struct {
	db *sqlx.DB
}

func NewRefreshStateStore(db *sqlx.DB) *RefreshStateStore {
	return &RefreshStateStore{db: db}
}

func (s *RefreshStateStore) Get(ctx context.Context, artistID int64, kind domain.Kind) (*domain.RefreshState, error) {
	var state domain.RefreshState
	query := `
		SELECT id, artist_id, kind, last_refreshed_at, last_ok, last_count, last_error, total_upserted
		FROM refresh_state
		WHERE artist_id = $1 AND kind = $2`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, artistID, string(kind))
	if errors.Is(err, sql.ErrNoRows) {
		// Never refreshed.
		return &domain.RefreshState{ArtistID: artistID, Kind: kind}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RefreshStateStore) Update(ctx context.Context, state *domain.RefreshState) error {
	query := `
		INSERT INTO refresh_state (artist_id, kind, last_refreshed_at, last_ok, last_count, last_error, total_upserted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (artist_id, kind) DO UPDATE SET
			last_refreshed_at = EXCLUDED.last_refreshed_at,
			last_ok = EXCLUDED.last_ok,
			last_count = EXCLUDED.last_count,
			last_error = EXCLUDED.last_error,
			total_upserted = EXCLUDED.total_upserted`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.ArtistID,
		string(state.Kind),
		state.LastRefreshedAt,
		state.LastOK,
		state.LastCount,
		state.LastError,
		state.TotalUpserted,
	)
	return err
}

package domain

import "time"

// SourceOutcome reports one adapter's contribution to a refresh.
// OK is false only when the adapter pipeline itself failed; a provider that
// returned nothing is OK with Count 0.
type SourceOutcome struct {
	OK        bool   `json:"ok"`
	Count     int    `json:"count"`
	Error     string `json:"error,omitempty"`
	Available bool   `json:"available"`
}

type RefreshReport struct {
	ArtistID int64                  `json:"artistId"`
	Updated  int                    `json:"updated"`
	Sources  map[Kind]SourceOutcome `json:"sources"`
	Duration time.Duration          `json:"duration"`
}

// RefreshState is the last recorded refresh of one source for one artist.
type RefreshState struct {
	ID              int64     `db:"id"`
	ArtistID        int64     `db:"artist_id"`
	Kind            Kind      `db:"kind"`
	LastRefreshedAt time.Time `db:"last_refreshed_at"`
	LastOK          bool      `db:"last_ok"`
	LastCount       int       `db:"last_count"`
	LastError       string    `db:"last_error"`
	TotalUpserted   int64     `db:"total_upserted"`
}

// SweepStats holds statistics about one stale sweep.
type SweepStats struct {
	Artists   int
	Refreshed int
	Failed    int
	Duration  time.Duration
}

// ItemEvent is published after an item is created or its display fields change.
type ItemEvent struct {
	Action    string      `json:"action"` // "create" or "update"
	Item      ContentItem `json:"item"`
	Timestamp time.Time   `json:"timestamp"`
}

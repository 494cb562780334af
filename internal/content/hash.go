// Package content derives identities for stored content: item hashes,
// freshness windows and artist slugs.
package content

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"

	"musicfeed/internal/domain"
)

// Hash returns the identity hash of an item: a digest of kind and the external
// ID, falling back to the URL when no external ID is known.
func Hash(kind domain.Kind, externalID, url string) string {
	identifier := externalID
	if identifier == "" {
		identifier = url
	}
	sum := blake3.Sum256([]byte(string(kind) + ":" + identifier))
	return hex.EncodeToString(sum[:])
}

// HashInput hashes an adapter result.
func HashInput(in *domain.ItemInput) string {
	return Hash(in.Kind, in.ExternalID, in.URL)
}

const (
	feedTTL    = 15 * time.Minute
	releaseTTL = 30 * time.Minute
)

// TTL is the freshness window of a kind. Catalog releases change far less
// often than feeds.
func TTL(kind domain.Kind) time.Duration {
	if kind == domain.KindRelease {
		return releaseTTL
	}
	return feedTTL
}

// IsStale reports whether an item created at createdAt is due for re-fetch.
func IsStale(kind domain.Kind, createdAt, now time.Time) bool {
	return now.Sub(createdAt) > TTL(kind)
}

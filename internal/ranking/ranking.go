// Package ranking scores items for regional relevance and defines the
// display order of a listing.
package ranking

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"time"

	"musicfeed/internal/domain"
)

const (
	domainBoost  = 3
	scopedBoost  = 2
	mentionBoost = 1
)

// Signals are the parts of an item that regional scoring looks at.
type Signals struct {
	Domain      string
	Title       string
	RegionHints []domain.Region
}

func SignalsFromItem(item *domain.ContentItem) Signals {
	s := Signals{Title: item.Title, RegionHints: item.SourceRegionHints}
	if item.SourceDomain != nil {
		s.Domain = *item.SourceDomain
	}
	return s
}

func SignalsFromInput(in *domain.ItemInput) Signals {
	s := Signals{Title: in.Title, RegionHints: in.Source.RegionHints}
	if in.Source.Domain != nil {
		s.Domain = *in.Source.Domain
	}
	return s
}

var mentionPatterns = map[domain.Region]*regexp.Regexp{}

func init() {
	for _, r := range []domain.Region{domain.RegionZA, domain.RegionUK} {
		p, _ := r.Profile()
		mentionPatterns[r] = regexp.MustCompile(
			`(?i)\b(` + regexp.QuoteMeta(p.FullName) + `|` + regexp.QuoteMeta(p.Code) + `)\b`,
		)
	}
}

// Score returns the regional relevance of an item for target. Only the
// privileged region is boosted; every other region ranks by recency alone.
func Score(sig Signals, target domain.Region) int {
	if target != domain.PrivilegedRegion {
		return 0
	}
	profile, ok := target.Profile()
	if !ok {
		return 0
	}

	score := 0
	if sig.Domain != "" && strings.HasSuffix(strings.ToLower(sig.Domain), profile.DomainSuffix) {
		score += domainBoost
	}
	if slices.Contains(sig.RegionHints, target) {
		score += scopedBoost
	}
	if mentionPatterns[target].MatchString(sig.Title) {
		score += mentionBoost
	}
	return score
}

// ScoreItems recomputes RegionScore for every item against target.
func ScoreItems(items []domain.ContentItem, target domain.Region) {
	for i := range items {
		items[i].RegionScore = Score(SignalsFromItem(&items[i]), target)
	}
}

// SortByRegionThenRecency orders items by region score, then publication
// time, both descending. Ties keep their input order.
func SortByRegionThenRecency(items []domain.ContentItem) {
	slices.SortStableFunc(items, func(a, b domain.ContentItem) int {
		if c := cmp.Compare(b.RegionScore, a.RegionScore); c != 0 {
			return c
		}
		return b.PublishedAt.Compare(a.PublishedAt)
	})
}

// FilterByRecencyWindow keeps items published at or after now - window.
func FilterByRecencyWindow(items []domain.ContentItem, window domain.Window, now time.Time) []domain.ContentItem {
	cutoff := now.Add(-window.Duration())
	filtered := make([]domain.ContentItem, 0, len(items))
	for _, item := range items {
		if !item.PublishedAt.Before(cutoff) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

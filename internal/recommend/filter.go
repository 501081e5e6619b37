// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"sort"
	"strings"
)

// Filter applies a request's constraints. The same rules run before the
// merge, over the available pool, and after it, over merged results.
type Filter struct {
	spec    FilterSpec
	exclude map[int64]struct{}
	rated   map[int64]float64
}

// NewFilter builds a filter for one request. HideWatched additionally hides
// shows the user has rated; watched shows are always excluded.
func NewFilter(spec *FilterSpec, profile *UserProfile, exclude map[int64]struct{}) *Filter {
	f := &Filter{spec: *spec, exclude: exclude}
	if spec.HideWatched {
		f.rated = profile.Ratings
	}
	return f
}

// Allows reports whether c may be recommended.
func (f *Filter) Allows(c *ContentSummary) bool {
	if _, ok := f.exclude[c.ID]; ok {
		return false
	}
	if _, ok := f.rated[c.ID]; ok {
		return false
	}
	if f.spec.Genre != "" && !HasGenre(c.Genres, f.spec.Genre) {
		return false
	}
	if f.spec.Platform != "" && !hasNetwork(c.Networks, f.spec.Platform) {
		return false
	}
	if f.spec.MinRating != nil && c.Rating < *f.spec.MinRating {
		return false
	}
	if f.spec.MaxRating != nil && c.Rating > *f.spec.MaxRating {
		return false
	}
	return true
}

// Pool returns the pool items that pass the filter, in their original order.
func (f *Filter) Pool(pool []ContentSummary) []ContentSummary {
	out := make([]ContentSummary, 0, len(pool))
	for i := range pool {
		if f.Allows(&pool[i]) {
			out = append(out, pool[i])
		}
	}
	return out
}

// Merged drops recommendations that fail the filter or refer to shows
// nothing could describe.
func (f *Filter) Merged(recs []MergedRecommendation) []MergedRecommendation {
	out := recs[:0:0]
	for i := range recs {
		c := recs[i].content
		if c.ID == 0 {
			continue
		}
		if f.Allows(&c) {
			out = append(out, recs[i])
		}
	}
	return out
}

// Finalize orders recs by sortBy, keeps the first limit and assigns ranks
// starting at 1. Ties in every sort order fall back to score order.
func Finalize(recs []MergedRecommendation, sortBy string, limit int) []MergedRecommendation {
	var key func(m *MergedRecommendation) float64
	switch sortBy {
	case SortByRating:
		key = func(m *MergedRecommendation) float64 { return m.content.Rating }
	case SortByPopularity:
		key = func(m *MergedRecommendation) float64 { return m.content.Popularity }
	case SortByYear:
		key = func(m *MergedRecommendation) float64 { return float64(m.content.Year) }
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if key != nil {
			if ki, kj := key(&recs[i]), key(&recs[j]); ki != kj {
				return ki > kj
			}
		}
		return lessByScore(&recs[i], &recs[j])
	})

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs
}

func hasNetwork(networks []string, want string) bool {
	for _, n := range networks {
		if strings.EqualFold(strings.TrimSpace(n), strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}

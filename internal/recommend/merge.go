// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"math"
	"sort"
	"strings"
)

// Match factors the merge stage reads or adds.
const (
	FactorHighlyRated   = "highly-rated"
	FactorFavoriteGenre = "favorite-genre"
	FactorMoodMatch     = "mood-match"
	FactorHiddenGem     = "hidden-gem"
	FactorTrending      = "trending"
)

// reasonSeparator joins the reasons of corroborating providers.
const reasonSeparator = " • "

// MergeInput is everything one merge needs.
type MergeInput struct {
	ByProvider map[SourceKind][]NormalizedCandidate
	Profile    UserProfile
	Filters    FilterSpec

	// Content describes the shows candidates may refer to. Candidates that
	// carry their own Content fill the gaps.
	Content map[int64]ContentSummary

	// Degraded holds providers that answered through a fallback. Their
	// candidates merge at weight 1 and never earn the AI source boost.
	Degraded SourceSet
}

// Merger fuses normalized candidates from every provider into one ranked
// list. It holds no per-request state and is safe for concurrent use.
type Merger struct {
	cfg MergeConfig
}

// NewMerger creates a merger with cfg.
//
//nolint:gocritic // hugeParam: copied once per merger
func NewMerger(cfg MergeConfig) *Merger {
	return &Merger{cfg: cfg}
}

// Config returns the constants the merger was built with.
func (m *Merger) Config() MergeConfig {
	return m.cfg
}

// Merge deduplicates candidates by content id, fuses their scores, applies
// preference boosts and returns the result sorted by score. Ranks are not
// assigned; see Finalize.
//
// Providers are inserted in the order AI, catalog, collaborative, trending.
// A provider voting for an item already present blends into its score:
// catalog and collaborative keep CatalogKeep / CollaborativeKeep of the
// existing score, trending adds TrendingBump. Trending-only items are
// admitted only while fewer than the requested limit are merged.
//
//nolint:gocritic // hugeParam: MergeInput is built once per request
func (m *Merger) Merge(in MergeInput) []MergedRecommendation {
	limit := m.cfg.ClampLimit(in.Filters.Limit)

	merged := make(map[int64]*MergedRecommendation)
	order := make([]int64, 0)

	for _, kind := range AllSourceKinds() {
		weight := m.cfg.Weight(kind)
		if in.Degraded.Has(kind) {
			weight = 1
		}
		for i := range in.ByProvider[kind] {
			nc := &in.ByProvider[kind][i]
			weighted := clamp01(nc.NormalizedScore * weight)

			existing, ok := merged[nc.ContentID]
			if !ok {
				if kind == SourceTrending && len(merged) >= limit {
					continue
				}
				rec := &MergedRecommendation{
					ContentID:    nc.ContentID,
					FinalScore:   weighted,
					Reason:       nc.Reason,
					MatchFactors: unionFactors(nil, nc.MatchFactors),
					Primary:      kind,
					Sources:      NewSourceSet(kind),
				}
				rec.content = m.lookupContent(in.Content, nc)
				rec.Title = rec.content.Title
				merged[nc.ContentID] = rec
				order = append(order, nc.ContentID)
				continue
			}

			if existing.Sources.Has(kind) {
				// Same provider listed the item twice; keep its best opinion.
				existing.FinalScore = math.Max(existing.FinalScore, weighted)
			} else {
				existing.FinalScore = m.corroborate(kind, existing.FinalScore, weighted)
				existing.Sources.Add(kind)
			}
			existing.MatchFactors = unionFactors(existing.MatchFactors, nc.MatchFactors)
			existing.Reason = joinReason(existing.Reason, nc.Reason)
			if existing.content.ID == 0 {
				existing.content = m.lookupContent(in.Content, nc)
				existing.Title = existing.content.Title
			}
		}
	}

	out := make([]MergedRecommendation, 0, len(order))
	for _, id := range order {
		rec := merged[id]
		m.applyBoosts(rec, &in.Profile, in.Degraded)
		out = append(out, *rec)
	}

	sortMergedByScore(out)
	return out
}

// corroborate fuses a later provider's weighted vote into an existing score.
// The result never drops below either vote.
func (m *Merger) corroborate(kind SourceKind, existing, incoming float64) float64 {
	var blended float64
	switch kind {
	case SourceCatalog:
		blended = existing*m.cfg.CatalogKeep + incoming*(1-m.cfg.CatalogKeep)
	case SourceCollaborative:
		blended = existing*m.cfg.CollaborativeKeep + incoming*(1-m.cfg.CollaborativeKeep)
	case SourceTrending:
		blended = math.Min(1, existing+m.cfg.TrendingBump)
	default:
		blended = existing
	}
	return clamp01(math.Max(blended, math.Max(existing, incoming)))
}

// applyBoosts adds the preference boosts, each at most once, then clamps.
func (m *Merger) applyBoosts(rec *MergedRecommendation, profile *UserProfile, degraded SourceSet) {
	genres := rec.content.Genres
	score := rec.FinalScore

	if moodMatches(profile.Moods, genres) {
		score += m.cfg.MoodBoost
		rec.MatchFactors = unionFactors(rec.MatchFactors, []string{FactorMoodMatch})
	}
	if favoriteMatches(profile.FavoriteGenres, genres) {
		score += m.cfg.FavoriteGenreBoost
		rec.MatchFactors = unionFactors(rec.MatchFactors, []string{FactorFavoriteGenre})
	}
	if hasFactor(rec.MatchFactors, FactorHighlyRated) {
		score += m.cfg.HighlyRatedBoost
	}
	if rec.Sources.Has(SourceAI) && !degraded.Has(SourceAI) {
		score += m.cfg.AISourceBoost
	}

	rec.FinalScore = clamp01(score)
}

func (m *Merger) lookupContent(content map[int64]ContentSummary, nc *NormalizedCandidate) ContentSummary {
	if c, ok := content[nc.ContentID]; ok {
		return c
	}
	if nc.Content != nil && nc.Content.ID == nc.ContentID {
		return *nc.Content
	}
	return ContentSummary{}
}

func moodMatches(moods, genres []string) bool {
	for _, mood := range moods {
		for _, g := range MoodGenres(mood) {
			if HasGenre(genres, g) {
				return true
			}
		}
	}
	return false
}

func favoriteMatches(favorites, genres []string) bool {
	for _, f := range favorites {
		if HasGenre(genres, f) {
			return true
		}
	}
	return false
}

func joinReason(existing, add string) string {
	add = strings.TrimSpace(add)
	switch {
	case add == "":
		return existing
	case existing == "":
		return add
	}
	for _, part := range strings.Split(existing, reasonSeparator) {
		if part == add {
			return existing
		}
	}
	return existing + reasonSeparator + add
}

// sortMergedByScore orders recs by score descending, then by the priority of the
// primary provider, then by content id.
func sortMergedByScore(recs []MergedRecommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return lessByScore(&recs[i], &recs[j])
	})
}

func lessByScore(a, b *MergedRecommendation) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if pa, pb := a.Primary.Priority(), b.Primary.Priority(); pa != pb {
		return pa < pb
	}
	return a.ContentID < b.ContentID
}

// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package sources

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tomtom215/marquee/internal/recommend"
)

// highlyRatedThreshold is the catalog rating at which a show is tagged
// recommend.FactorHighlyRated.
const highlyRatedThreshold = 8.0

// candidateMultiplier is how many candidates per requested result a
// provider returns, leaving room for filtering and deduplication.
const candidateMultiplier = 2

// matchedGenres returns the canonical genres of show that appear in wanted.
func matchedGenres(show *recommend.ContentSummary, wanted []string) []string {
	var out []string
	for _, g := range show.Genres {
		c := recommend.CanonicalGenre(g)
		if recommend.HasGenre(wanted, c) && !contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// genreAffinity is the share of show's genres the user favours.
func genreAffinity(show *recommend.ContentSummary, favorites []string) float64 {
	if len(show.Genres) == 0 || len(favorites) == 0 {
		return 0
	}
	distinct := 0
	seen := make(map[string]struct{}, len(show.Genres))
	for _, g := range show.Genres {
		c := recommend.CanonicalGenre(g)
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			distinct++
		}
	}
	return float64(len(matchedGenres(show, favorites))) / float64(distinct)
}

// moodMatch reports whether any of the user's moods maps onto show's genres.
func moodMatch(profile *recommend.UserProfile, show *recommend.ContentSummary) bool {
	for _, mood := range profile.Moods {
		for _, g := range recommend.MoodGenres(mood) {
			if recommend.HasGenre(show.Genres, g) {
				return true
			}
		}
	}
	return false
}

// showFactors describes why show matched: its favoured genres and whether
// it is highly rated.
func showFactors(show *recommend.ContentSummary, matched []string) []string {
	factors := make([]string, 0, len(matched)+1)
	for _, g := range matched {
		factors = append(factors, "genre:"+strings.ToLower(g))
	}
	if show.Rating >= highlyRatedThreshold {
		factors = append(factors, recommend.FactorHighlyRated)
	}
	return factors
}

// genreReason renders a short reason for a genre match.
func genreReason(matched []string, fallback string) string {
	if len(matched) == 0 {
		return fallback
	}
	return fmt.Sprintf("Matches your interest in %s", strings.Join(matched, " and "))
}

// topN sorts candidates by raw score and keeps the first n.
func topN(cands []recommend.Candidate, n int) []recommend.Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].RawScore != cands[j].RawScore {
			return cands[i].RawScore > cands[j].RawScore
		}
		return cands[i].ContentID < cands[j].ContentID
	})
	if n > 0 && len(cands) > n {
		cands = cands[:n]
	}
	return cands
}

// wanted returns how many candidates a provider should return for req.
func wanted(req *recommend.SourceRequest) int {
	limit := req.Limit
	if limit <= 0 {
		limit = recommend.DefaultLimit
	}
	return limit * candidateMultiplier
}

func excluded(req *recommend.SourceRequest, id int64) bool {
	_, ok := req.Exclude[id]
	return ok
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

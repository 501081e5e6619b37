// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import "math"

// Normalize maps candidates from source onto [0,1] using the default
// trending recency bonus. The input slice is not modified.
func Normalize(candidates []Candidate, source SourceKind) []NormalizedCandidate {
	return NormalizeWith(candidates, source, DefaultMergeConfig().TrendingRecencyBonus)
}

// NormalizeWith is Normalize with an explicit trending recency bonus.
//
// AI, catalog and collaborative scores are already fractional and are only
// clamped. Trending scores get the recency bonus before clamping. NaN clamps
// to 0 and infinities to the nearest bound.
func NormalizeWith(candidates []Candidate, source SourceKind, recencyBonus float64) []NormalizedCandidate {
	out := make([]NormalizedCandidate, len(candidates))
	for i, c := range candidates {
		c.Source = source
		c.MatchFactors = append([]string(nil), c.MatchFactors...)

		score := c.RawScore
		if source == SourceTrending && !math.IsNaN(score) {
			score += recencyBonus
		}
		out[i] = NormalizedCandidate{Candidate: c, NormalizedScore: clamp01(score)}
	}
	return out
}

// clamp01 bounds v to [0,1]. NaN becomes 0.
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

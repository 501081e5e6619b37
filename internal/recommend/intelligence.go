// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"math"
	"time"
)

// IntelligenceMetrics describe a result list as a whole. Every score is in
// [0,1].
type IntelligenceMetrics struct {
	// DiversityScore is one minus the mean pairwise genre similarity.
	DiversityScore float64 `json:"diversityScore"`

	// NoveltyScore is the mean of (1 - popularity).
	NoveltyScore float64 `json:"noveltyScore"`

	// TemporalRelevance favours recent shows; a show loses relevance
	// linearly over temporalHorizonYears.
	TemporalRelevance float64 `json:"temporalRelevance"`

	// PersonalizedScore is the share of results backed by the user's own
	// taste: a favorite genre, a mood or collaborative evidence.
	PersonalizedScore float64 `json:"personalizedScore"`

	HiddenGemCount int `json:"hiddenGemCount"`

	// ExplainabilityScore rewards results that carry a reason and at least
	// one match factor.
	ExplainabilityScore float64 `json:"explainabilityScore"`
}

const temporalHorizonYears = 20.0

// Intelligence computes the list-level metrics for recs as of now.
func Intelligence(recs []MergedRecommendation, now time.Time) IntelligenceMetrics {
	var im IntelligenceMetrics
	n := len(recs)
	if n == 0 {
		return im
	}

	var novelty, temporal, personalized, explained float64
	dated := 0
	for i := range recs {
		r := &recs[i]
		c := r.content

		novelty += 1 - clamp01(c.Popularity)

		if c.Year > 0 {
			age := float64(now.Year() - c.Year)
			temporal += clamp01(1 - age/temporalHorizonYears)
			dated++
		}

		if hasFactor(r.MatchFactors, FactorFavoriteGenre) ||
			hasFactor(r.MatchFactors, FactorMoodMatch) ||
			r.Sources.Has(SourceCollaborative) {
			personalized++
		}

		if hasFactor(r.MatchFactors, FactorHiddenGem) {
			im.HiddenGemCount++
		}

		if r.Reason != "" {
			explained += 0.5
		}
		if len(r.MatchFactors) > 0 {
			explained += 0.5
		}
	}

	im.DiversityScore = genreDiversity(recs)
	im.NoveltyScore = round4(novelty / float64(n))
	if dated > 0 {
		im.TemporalRelevance = round4(temporal / float64(dated))
	}
	im.PersonalizedScore = round4(personalized / float64(n))
	im.ExplainabilityScore = round4(explained / float64(n))
	return im
}

// Confidence blends the mean final score with provider coverage, the share
// of attempted providers that answered from their primary path.
func Confidence(recs []MergedRecommendation, answered, attempted int) float64 {
	if len(recs) == 0 {
		return 0
	}
	var sum float64
	for i := range recs {
		sum += recs[i].FinalScore
	}
	coverage := 0.0
	if attempted > 0 {
		coverage = float64(answered) / float64(attempted)
	}
	return round4(clamp01(sum/float64(len(recs))*0.7 + coverage*0.3))
}

// genreDiversity is 1 - mean pairwise Jaccard similarity of canonical genre
// sets. Fewer than two results have no diversity to measure.
func genreDiversity(recs []MergedRecommendation) float64 {
	if len(recs) < 2 {
		return 0
	}
	sets := make([][]string, len(recs))
	for i := range recs {
		sets[i] = canonicalSet(recs[i].content.Genres)
	}

	var total float64
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return round4(1 - total/float64(pairs))
}

// jaccard computes Jaccard similarity between two deduplicated genre lists.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for _, g := range a {
		if hasFactor(b, g) {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

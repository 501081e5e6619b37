// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import "sort"

// FactorEmergency tags recommendations from the emergency list.
const FactorEmergency = "emergency"

const emergencyReason = "Highly rated pick while personalized recommendations are unavailable"

// staticEmergency is served when no provider answered and the request pool
// has nothing left to offer. IDs are TMDB TV ids.
var staticEmergency = []ContentSummary{
	{ID: 1396, Title: "Breaking Bad", Genres: []string{"Drama", "Crime"}, Rating: 8.9, Popularity: 0.95, Year: 2008, Networks: []string{"AMC"}},
	{ID: 68595, Title: "Planet Earth II", Genres: []string{"Documentary"}, Rating: 8.9, Popularity: 0.55, Year: 2016, Networks: []string{"BBC One"}},
	{ID: 82728, Title: "Bluey", Genres: []string{"Animation", "Kids", "Family"}, Rating: 8.7, Popularity: 0.7, Year: 2018, Networks: []string{"ABC Kids"}},
	{ID: 87108, Title: "Chernobyl", Genres: []string{"Drama", "War & Politics"}, Rating: 8.7, Popularity: 0.7, Year: 2019, Networks: []string{"HBO"}},
	{ID: 246, Title: "Avatar: The Last Airbender", Genres: []string{"Animation", "Action & Adventure"}, Rating: 8.7, Popularity: 0.75, Year: 2005, Networks: []string{"Nickelodeon"}},
	{ID: 1438, Title: "The Wire", Genres: []string{"Crime", "Drama"}, Rating: 8.6, Popularity: 0.6, Year: 2002, Networks: []string{"HBO"}},
	{ID: 2316, Title: "The Office", Genres: []string{"Comedy"}, Rating: 8.6, Popularity: 0.9, Year: 2005, Networks: []string{"NBC"}},
	{ID: 66732, Title: "Stranger Things", Genres: []string{"Drama", "Mystery", "Sci-Fi & Fantasy"}, Rating: 8.6, Popularity: 0.9, Year: 2016, Networks: []string{"Netflix"}},
	{ID: 4613, Title: "Band of Brothers", Genres: []string{"War & Politics", "Drama"}, Rating: 8.5, Popularity: 0.5, Year: 2001, Networks: []string{"HBO"}},
	{ID: 19885, Title: "Sherlock", Genres: []string{"Crime", "Drama", "Mystery"}, Rating: 8.5, Popularity: 0.8, Year: 2010, Networks: []string{"BBC One"}},
	{ID: 1668, Title: "Friends", Genres: []string{"Comedy"}, Rating: 8.4, Popularity: 0.9, Year: 1994, Networks: []string{"NBC"}},
	{ID: 1399, Title: "Game of Thrones", Genres: []string{"Sci-Fi & Fantasy", "Drama", "Action & Adventure"}, Rating: 8.4, Popularity: 0.95, Year: 2011, Networks: []string{"HBO"}},
}

// StaticEmergencyList returns a copy of the built-in emergency shows.
func StaticEmergencyList() []ContentSummary {
	return append([]ContentSummary(nil), staticEmergency...)
}

// EmergencyList builds the fallback answer used when every provider failed.
// It prefers the best-rated pool items that are not excluded, then the
// built-in list. The result is never empty and never longer than limit.
func EmergencyList(pool []ContentSummary, exclude map[int64]struct{}, limit int) []MergedRecommendation {
	if limit < 1 {
		limit = 1
	}

	picks := topRated(pool, exclude, limit)
	if len(picks) == 0 {
		picks = topRated(staticEmergency, exclude, limit)
	}
	if len(picks) == 0 {
		// Everything built in was excluded; an answer still beats none.
		picks = topRated(staticEmergency, nil, limit)
	}

	out := make([]MergedRecommendation, len(picks))
	for i, c := range picks {
		out[i] = MergedRecommendation{
			ContentID:    c.ID,
			Title:        c.Title,
			FinalScore:   clamp01(c.Rating / 10),
			Reason:       emergencyReason,
			MatchFactors: []string{FactorEmergency},
			Primary:      SourceCatalog,
			Rank:         i + 1,
			content:      c,
		}
	}
	return out
}

func topRated(items []ContentSummary, exclude map[int64]struct{}, limit int) []ContentSummary {
	out := make([]ContentSummary, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, c := range items {
		if _, ok := exclude[c.ID]; ok {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

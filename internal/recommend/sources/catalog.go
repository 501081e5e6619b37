// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package sources

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/resilience"
)

// DiscoverQuery narrows a catalog discovery call.
type DiscoverQuery struct {
	Genres    []string
	Platform  string
	MinRating *float64
	MaxRating *float64
	Exclude   []int64
	Limit     int
}

// Discoverer searches a content catalog.
type Discoverer interface {
	Discover(ctx context.Context, q DiscoverQuery) ([]recommend.ContentSummary, error)
}

// CatalogSource scores catalog discovery results by rating and genre overlap.
type CatalogSource struct {
	discoverer Discoverer
}

// NewCatalogSource creates the catalog-discovery provider.
func NewCatalogSource(d Discoverer) *CatalogSource {
	return &CatalogSource{discoverer: d}
}

// Kind implements recommend.Source.
func (s *CatalogSource) Kind() recommend.SourceKind { return recommend.SourceCatalog }

// Recommend implements recommend.Source. When discovery finds nothing the
// request pool is scored instead.
func (s *CatalogSource) Recommend(ctx context.Context, req *recommend.SourceRequest) ([]recommend.Candidate, error) {
	q := BuildDiscoverQuery(req)
	shows, err := s.discoverer.Discover(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: discover: %w", resilience.ErrSourceUnavailable, err)
	}
	if len(shows) == 0 {
		return scoreCatalog(req, req.Pool, q.Genres, false), nil
	}
	return scoreCatalog(req, shows, q.Genres, true), nil
}

// Fallbacks implements recommend.FallbackSource.
func (s *CatalogSource) Fallbacks(req *recommend.SourceRequest) []resilience.Fallback[[]recommend.Candidate] {
	return []resilience.Fallback[[]recommend.Candidate]{{
		Name: "pool",
		Fn: func(context.Context) ([]recommend.Candidate, error) {
			return scoreCatalog(req, req.Pool, discoverGenres(req), false), nil
		},
	}}
}

// BuildDiscoverQuery maps a request onto catalog search terms. An explicit
// genre filter wins over the user's favourites.
func BuildDiscoverQuery(req *recommend.SourceRequest) DiscoverQuery {
	exclude := make([]int64, 0, len(req.Exclude))
	for id := range req.Exclude {
		exclude = append(exclude, id)
	}
	sort.Slice(exclude, func(i, j int) bool { return exclude[i] < exclude[j] })

	return DiscoverQuery{
		Genres:    discoverGenres(req),
		Platform:  req.Filters.Platform,
		MinRating: req.Filters.MinRating,
		MaxRating: req.Filters.MaxRating,
		Exclude:   exclude,
		Limit:     wanted(req),
	}
}

func discoverGenres(req *recommend.SourceRequest) []string {
	if req.Filters.Genre != "" {
		return []string{recommend.CanonicalGenre(req.Filters.Genre)}
	}
	out := make([]string, 0, len(req.Profile.FavoriteGenres))
	for _, g := range req.Profile.FavoriteGenres {
		c := recommend.CanonicalGenre(g)
		if !contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// scoreCatalog rates shows as 0.6*rating/10 + 0.4*genre overlap. attach
// copies the show onto the candidate for items the pool may not describe.
func scoreCatalog(req *recommend.SourceRequest, shows []recommend.ContentSummary, genres []string, attach bool) []recommend.Candidate {
	cands := make([]recommend.Candidate, 0, len(shows))
	seen := make(map[int64]struct{}, len(shows))
	for i := range shows {
		show := shows[i]
		if show.ID == 0 || excluded(req, show.ID) {
			continue
		}
		if _, dup := seen[show.ID]; dup {
			continue
		}
		seen[show.ID] = struct{}{}

		matched := matchedGenres(&show, genres)
		c := recommend.Candidate{
			ContentID:    show.ID,
			RawScore:     clamp01(0.6*clamp01(show.Rating/10) + 0.4*genreAffinity(&show, genres)),
			Source:       recommend.SourceCatalog,
			MatchFactors: showFactors(&show, matched),
			Reason:       genreReason(matched, fmt.Sprintf("Rated %.1f/10 by viewers", show.Rating)),
		}
		if attach {
			c.Content = &show
		}
		cands = append(cands, c)
	}
	return topN(cands, wanted(req))
}

// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package sources

import (
	"context"
	"fmt"

	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/resilience"
)

// TrendingFeed lists what is currently popular, most popular first.
type TrendingFeed interface {
	Trending(ctx context.Context, limit int) ([]recommend.ContentSummary, error)
}

// TrendingSource turns a trending feed into candidates scored by popularity.
type TrendingSource struct {
	feed TrendingFeed
}

// NewTrendingSource creates the trending provider.
func NewTrendingSource(feed TrendingFeed) *TrendingSource {
	return &TrendingSource{feed: feed}
}

// Kind implements recommend.Source.
func (s *TrendingSource) Kind() recommend.SourceKind { return recommend.SourceTrending }

// Recommend implements recommend.Source.
func (s *TrendingSource) Recommend(ctx context.Context, req *recommend.SourceRequest) ([]recommend.Candidate, error) {
	shows, err := s.feed.Trending(ctx, wanted(req)+len(req.Exclude))
	if err != nil {
		return nil, fmt.Errorf("%w: trending: %w", resilience.ErrSourceUnavailable, err)
	}
	return trendingCandidates(req, shows, true), nil
}

// Fallbacks implements recommend.FallbackSource.
func (s *TrendingSource) Fallbacks(req *recommend.SourceRequest) []resilience.Fallback[[]recommend.Candidate] {
	return []resilience.Fallback[[]recommend.Candidate]{{
		Name: "popular-pool",
		Fn: func(context.Context) ([]recommend.Candidate, error) {
			return trendingCandidates(req, req.Pool, false), nil
		},
	}}
}

func trendingCandidates(req *recommend.SourceRequest, shows []recommend.ContentSummary, attach bool) []recommend.Candidate {
	cands := make([]recommend.Candidate, 0, len(shows))
	for i := range shows {
		show := shows[i]
		if show.ID == 0 || excluded(req, show.ID) {
			continue
		}
		c := recommend.Candidate{
			ContentID:    show.ID,
			RawScore:     clamp01(show.Popularity),
			Source:       recommend.SourceTrending,
			MatchFactors: []string{recommend.FactorTrending},
			Reason:       "Trending now",
		}
		if attach {
			c.Content = &show
		}
		cands = append(cands, c)
	}
	return topN(cands, wanted(req))
}

// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package sources

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/resilience"
)

// Collaborative scoring defaults.
const (
	DefaultMinSimilarity = 0.1
	DefaultMaxPeers      = 50

	hiddenGemThreshold = 0.6
	hiddenGemBoost     = 1.2

	// FactorSimilarViewers marks candidates that peers with similar taste rated.
	FactorSimilarViewers = "similar-viewers"
)

// PeerSource lists other users' ratings.
type PeerSource interface {
	Peers(ctx context.Context, userID string) ([]recommend.PeerRatings, error)
}

// ContentLookup describes shows outside the request pool, so peer ratings of
// them still shape taste embeddings.
type ContentLookup interface {
	Lookup(id int64) (recommend.ContentSummary, bool)
}

// genreVector maps canonical genre names to weights.
type genreVector map[string]float64

// CollaborativeScorer ranks a pool by the ratings of users whose genre taste
// resembles the requesting user's.
type CollaborativeScorer struct {
	MinSimilarity float64
	MaxPeers      int

	// Lookup resolves genres for peer-rated shows missing from the pool.
	Lookup ContentLookup
}

// Score rates every pool item not excluded by profile. Peers may be nil,
// in which case only genre alignment, hidden-gem and rating terms apply.
func (s *CollaborativeScorer) Score(profile *recommend.UserProfile, pool []recommend.ContentSummary, peers []recommend.PeerRatings) []recommend.Candidate {
	shows := make(map[int64]*recommend.ContentSummary, len(pool))
	for i := range pool {
		shows[pool[i].ID] = &pool[i]
	}

	user := s.embed(profile.Ratings, shows)
	if len(user) == 0 {
		user = favoriteVector(profile.FavoriteGenres)
	}
	neighbours := s.neighbours(profile.UserID, user, peers, shows)

	noveltyWeight := 0.15
	if profile.NoveltySeeking {
		noveltyWeight = 0.25
	}

	exclude := profile.ExcludeSet()
	cands := make([]recommend.Candidate, 0, len(pool))
	for i := range pool {
		show := &pool[i]
		if _, ok := exclude[show.ID]; ok {
			continue
		}

		userSim := neighbourRating(neighbours, show.ID)
		alignment := cosine(user, oneHot(show))
		gem := HiddenGemFactor(show)
		score := 0.4*userSim + 0.25*alignment + noveltyWeight*gem + 0.1*clamp01(show.Rating/10)

		matched := matchedGenres(show, profile.FavoriteGenres)
		factors := showFactors(show, matched)
		reason := genreReason(matched, "Fits the genres you watch")
		if userSim > 0 {
			factors = append(factors, FactorSimilarViewers)
			reason = "Viewers with similar taste rated this highly"
		}
		if gem > hiddenGemThreshold {
			score = math.Min(1, score*hiddenGemBoost)
			factors = append(factors, recommend.FactorHiddenGem)
			reason = "A highly rated hidden gem"
		}

		cands = append(cands, recommend.Candidate{
			ContentID:    show.ID,
			RawScore:     clamp01(score),
			Source:       recommend.SourceCollaborative,
			MatchFactors: factors,
			Reason:       reason,
		})
	}
	return cands
}

// HiddenGemFactor is min(1, (1-popularity) * rating/10 * 1.5).
func HiddenGemFactor(show *recommend.ContentSummary) float64 {
	return math.Min(1, clamp01(1-show.Popularity)*clamp01(show.Rating/10)*1.5)
}

type neighbour struct {
	similarity float64
	ratings    map[int64]float64
}

// neighbours keeps the MaxPeers most similar peers at or above MinSimilarity.
func (s *CollaborativeScorer) neighbours(self string, user genreVector, peers []recommend.PeerRatings, shows map[int64]*recommend.ContentSummary) []neighbour {
	if len(user) == 0 {
		return nil
	}
	minSim := s.MinSimilarity
	if minSim <= 0 {
		minSim = DefaultMinSimilarity
	}
	maxPeers := s.MaxPeers
	if maxPeers <= 0 {
		maxPeers = DefaultMaxPeers
	}

	out := make([]neighbour, 0, len(peers))
	for i := range peers {
		p := &peers[i]
		if p.UserID == self || len(p.Ratings) == 0 {
			continue
		}
		sim := cosine(user, s.embed(p.Ratings, shows))
		if sim < minSim {
			continue
		}
		out = append(out, neighbour{similarity: sim, ratings: p.Ratings})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].similarity > out[j].similarity })
	if len(out) > maxPeers {
		out = out[:maxPeers]
	}
	return out
}

// embed accumulates rating/10 over the canonical genres of every rated show.
func (s *CollaborativeScorer) embed(ratings map[int64]float64, shows map[int64]*recommend.ContentSummary) genreVector {
	v := make(genreVector)
	for id, rating := range ratings {
		var genres []string
		if show, ok := shows[id]; ok {
			genres = show.Genres
		} else if s.Lookup != nil {
			if show, ok := s.Lookup.Lookup(id); ok {
				genres = show.Genres
			}
		}
		w := clamp01(rating / 10)
		for _, g := range genres {
			v[recommend.CanonicalGenre(g)] += w
		}
	}
	return v
}

// neighbourRating is the similarity-weighted mean of neighbour ratings/10 for
// id, or 0 when no neighbour rated it.
func neighbourRating(ns []neighbour, id int64) float64 {
	var sum, weight float64
	for i := range ns {
		r, ok := ns[i].ratings[id]
		if !ok {
			continue
		}
		sum += ns[i].similarity * clamp01(r/10)
		weight += ns[i].similarity
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func favoriteVector(favorites []string) genreVector {
	v := make(genreVector, len(favorites))
	for _, g := range favorites {
		v[recommend.CanonicalGenre(g)] = 1
	}
	return v
}

func oneHot(show *recommend.ContentSummary) genreVector {
	v := make(genreVector, len(show.Genres))
	for _, g := range show.Genres {
		v[recommend.CanonicalGenre(g)] = 1
	}
	return v
}

func cosine(a, b genreVector) float64 {
	var dot, na, nb float64
	for k, x := range a {
		na += x * x
		if y, ok := b[k]; ok {
			dot += x * y
		}
	}
	for _, y := range b {
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CollaborativeSource feeds peer ratings into a CollaborativeScorer.
type CollaborativeSource struct {
	scorer CollaborativeScorer
	peers  PeerSource
}

// NewCollaborativeSource creates the collaborative-filter provider. A nil
// PeerSource scores by genre alone.
func NewCollaborativeSource(scorer CollaborativeScorer, peers PeerSource) *CollaborativeSource {
	return &CollaborativeSource{scorer: scorer, peers: peers}
}

// Kind implements recommend.Source.
func (s *CollaborativeSource) Kind() recommend.SourceKind { return recommend.SourceCollaborative }

// Recommend implements recommend.Source. Anonymous users get genre-only
// scores without a peer lookup.
func (s *CollaborativeSource) Recommend(ctx context.Context, req *recommend.SourceRequest) ([]recommend.Candidate, error) {
	var peers []recommend.PeerRatings
	if s.peers != nil && req.Profile.UserID != "" {
		var err error
		peers, err = s.peers.Peers(ctx, req.Profile.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: peers: %w", resilience.ErrSourceUnavailable, err)
		}
	}
	return s.score(req, peers), nil
}

// Fallbacks implements recommend.FallbackSource.
func (s *CollaborativeSource) Fallbacks(req *recommend.SourceRequest) []resilience.Fallback[[]recommend.Candidate] {
	return []resilience.Fallback[[]recommend.Candidate]{{
		Name: "genre-only",
		Fn: func(context.Context) ([]recommend.Candidate, error) {
			return s.score(req, nil), nil
		},
	}}
}

func (s *CollaborativeSource) score(req *recommend.SourceRequest, peers []recommend.PeerRatings) []recommend.Candidate {
	profile := req.Profile
	if len(req.Exclude) > 0 {
		ids := make([]int64, 0, len(profile.Exclude)+len(req.Exclude))
		ids = append(ids, profile.Exclude...)
		for id := range req.Exclude {
			ids = append(ids, id)
		}
		profile.Exclude = ids
	}
	return topN(s.scorer.Score(&profile, req.Pool, peers), wanted(req))
}

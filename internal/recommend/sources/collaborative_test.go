// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/resilience"
)

type mapLookup map[int64]recommend.ContentSummary

func (m mapLookup) Lookup(id int64) (recommend.ContentSummary, bool) {
	c, ok := m[id]
	return c, ok
}

var collabPool = []recommend.ContentSummary{
	{ID: 10, Title: "Seen drama", Genres: []string{"Drama"}, Rating: 8, Popularity: 0.5},
	{ID: 20, Title: "Popular drama", Genres: []string{"Drama"}, Rating: 8, Popularity: 0.9},
	{ID: 30, Title: "Quiet comedy", Genres: []string{"Comedy"}, Rating: 9, Popularity: 0.1},
}

var collabPeers = []recommend.PeerRatings{
	{UserID: "drama-fan", Ratings: map[int64]float64{10: 8, 20: 9}},
	{UserID: "comedy-fan", Ratings: map[int64]float64{30: 10}},
	{UserID: "me", Ratings: map[int64]float64{20: 1}},
}

func collabProfile() recommend.UserProfile {
	return recommend.UserProfile{
		UserID:       "me",
		WatchHistory: []int64{10},
		Ratings:      map[int64]float64{10: 10},
	}
}

func TestCollaborativeScorer(t *testing.T) {
	t.Parallel()

	scorer := CollaborativeScorer{MinSimilarity: 0.1, MaxPeers: 50}
	profile := collabProfile()

	got := scorer.Score(&profile, collabPool, collabPeers)
	if find(got, 10) != nil {
		t.Fatal("watched show was scored")
	}

	// drama-fan is the only neighbour: 0.4*0.9 + 0.25*1 + 0.15*0.12 + 0.1*0.8
	c20 := find(got, 20)
	if c20 == nil || !approxEqual(c20.RawScore, 0.708) {
		t.Fatalf("show 20 = %+v, want 0.708", c20)
	}
	if !hasTag(c20.MatchFactors, FactorSimilarViewers) || hasTag(c20.MatchFactors, recommend.FactorHiddenGem) {
		t.Errorf("show 20 factors = %v", c20.MatchFactors)
	}

	// comedy-fan is dissimilar and ignored: (0.15*1 + 0.1*0.9) * 1.2
	c30 := find(got, 30)
	if c30 == nil || !approxEqual(c30.RawScore, 0.288) {
		t.Fatalf("show 30 = %+v, want 0.288", c30)
	}
	if !hasTag(c30.MatchFactors, recommend.FactorHiddenGem) {
		t.Errorf("show 30 should be a hidden gem, factors = %v", c30.MatchFactors)
	}

	profile.NoveltySeeking = true
	if c := find(scorer.Score(&profile, collabPool, collabPeers), 30); c == nil || !approxEqual(c.RawScore, 0.408) {
		t.Errorf("novelty seeking show 30 = %+v, want 0.408", c)
	}
}

func TestCollaborativeScorerMaxPeers(t *testing.T) {
	t.Parallel()

	peers := []recommend.PeerRatings{
		{UserID: "close", Ratings: map[int64]float64{10: 10, 20: 10}},
		{UserID: "far", Ratings: map[int64]float64{10: 10, 30: 10, 20: 2}},
	}
	profile := collabProfile()

	scorer := CollaborativeScorer{MaxPeers: 1}
	c := find(scorer.Score(&profile, collabPool, peers), 20)
	// only "close" survives, so show 20 takes its 10/10 rating
	if c == nil || !approxEqual(c.RawScore, 0.4+0.25+0.15*0.12+0.08) {
		t.Errorf("show 20 = %+v", c)
	}
}

func TestCollaborativeScorerLookupAndFavorites(t *testing.T) {
	t.Parallel()

	pool := collabPool[1:]
	profile := recommend.UserProfile{UserID: "me", Ratings: map[int64]float64{99: 10}}
	peers := []recommend.PeerRatings{{UserID: "p", Ratings: map[int64]float64{99: 9, 20: 10}}}

	// Without a lookup nobody has a taste vector, so peers are ignored.
	if c := find((&CollaborativeScorer{}).Score(&profile, pool, peers), 20); c == nil || hasTag(c.MatchFactors, FactorSimilarViewers) {
		t.Errorf("unexpected peer influence: %+v", c)
	}

	scorer := CollaborativeScorer{Lookup: mapLookup{99: {ID: 99, Genres: []string{"Drama"}}}}
	if c := find(scorer.Score(&profile, pool, peers), 20); c == nil || !hasTag(c.MatchFactors, FactorSimilarViewers) {
		t.Errorf("lookup should resolve peer taste: %+v", c)
	}

	fav := recommend.UserProfile{FavoriteGenres: []string{"comedy"}}
	c := find((&CollaborativeScorer{}).Score(&fav, pool, nil), 30)
	// alignment 1 from favourites: (0.25 + 0.15 + 0.09) * 1.2
	if c == nil || !approxEqual(c.RawScore, 0.588) {
		t.Errorf("favourite genre alignment = %+v, want 0.588", c)
	}
}

func TestHiddenGemFactor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		show recommend.ContentSummary
		want float64
	}{
		{recommend.ContentSummary{Rating: 8, Popularity: 0.9}, 0.12},
		{recommend.ContentSummary{Rating: 9, Popularity: 0.1}, 1},
		{recommend.ContentSummary{Rating: 0, Popularity: 0}, 0},
		{recommend.ContentSummary{Rating: 10, Popularity: 0.6}, 0.6},
	}
	for _, tt := range tests {
		if got := HiddenGemFactor(&tt.show); !approxEqual(got, tt.want) {
			t.Errorf("HiddenGemFactor(%+v) = %v, want %v", tt.show, got, tt.want)
		}
	}
}

func TestCollaborativeSource(t *testing.T) {
	t.Parallel()

	peers := &fakePeers{peers: collabPeers}
	src := NewCollaborativeSource(CollaborativeScorer{}, peers)
	req := &recommend.SourceRequest{
		Profile: collabProfile(),
		Pool:    collabPool,
		Exclude: map[int64]struct{}{30: {}},
		Limit:   5,
	}

	got, err := src.Recommend(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if ids := candidateIDs(got); len(ids) != 1 || ids[0] != 20 {
		t.Errorf("ids = %v, want [20]", ids)
	}
	if peers.calls != 1 {
		t.Errorf("peer calls = %d", peers.calls)
	}

	req.Profile.UserID = ""
	if _, err := src.Recommend(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if peers.calls != 1 {
		t.Error("anonymous request should not look up peers")
	}
	if len(req.Profile.Exclude) != 0 {
		t.Error("request profile was mutated")
	}
}

func TestCollaborativeSourceFallback(t *testing.T) {
	t.Parallel()

	src := NewCollaborativeSource(CollaborativeScorer{}, &fakePeers{err: errors.New("store closed")})
	req := &recommend.SourceRequest{Profile: collabProfile(), Pool: collabPool, Limit: 5}

	if _, err := src.Recommend(context.Background(), req); !errors.Is(err, resilience.ErrSourceUnavailable) {
		t.Fatalf("error = %v, want ErrSourceUnavailable", err)
	}

	fbs := src.Fallbacks(req)
	if len(fbs) != 1 || fbs[0].Name != "genre-only" {
		t.Fatalf("Fallbacks() = %+v", fbs)
	}
	got, err := fbs[0].Fn(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if hasTag(got[i].MatchFactors, FactorSimilarViewers) {
			t.Errorf("genre-only fallback used peers: %+v", got[i])
		}
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func hasTag(factors []string, tag string) bool {
	for _, f := range factors {
		if f == tag {
			return true
		}
	}
	return false
}

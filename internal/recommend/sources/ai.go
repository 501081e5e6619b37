// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/resilience"
)

// Completer is a text-completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// DefaultAIMaxCandidates caps how many pool items the prompt describes.
const DefaultAIMaxCandidates = 40

// aiResponse is the JSON document the prompt asks the model to produce.
type aiResponse struct {
	Recommendations []aiRecommendation `json:"recommendations"`
}

type aiRecommendation struct {
	ContentID    int64    `json:"contentId"`
	Score        float64  `json:"score"`
	Reason       string   `json:"reason"`
	MatchFactors []string `json:"matchFactors"`
}

// AISource asks a Completer to score the request pool.
type AISource struct {
	completer     Completer
	maxCandidates int
	logger        zerolog.Logger
}

// NewAISource creates the AI provider. maxCandidates <= 0 uses
// DefaultAIMaxCandidates.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewAISource(completer Completer, maxCandidates int, logger zerolog.Logger) *AISource {
	if maxCandidates <= 0 {
		maxCandidates = DefaultAIMaxCandidates
	}
	return &AISource{
		completer:     completer,
		maxCandidates: maxCandidates,
		logger:        logger.With().Str("component", "source.ai").Logger(),
	}
}

// Kind implements recommend.Source.
func (s *AISource) Kind() recommend.SourceKind { return recommend.SourceAI }

// Model reports the completion model.
func (s *AISource) Model() string { return s.completer.Model() }

// Recommend implements recommend.Source. An empty pool yields no candidates
// without calling the model.
func (s *AISource) Recommend(ctx context.Context, req *recommend.SourceRequest) ([]recommend.Candidate, error) {
	shows := s.promptShows(req.Pool)
	if len(shows) == 0 {
		return nil, nil
	}

	text, err := s.completer.Complete(ctx, BuildPrompt(&req.Profile, shows, req.Limit))
	if err != nil {
		if errors.Is(err, resilience.ErrSourceMalformedResponse) || errors.Is(err, resilience.ErrSourceUnavailable) ||
			errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: completion: %w", resilience.ErrSourceUnavailable, err)
	}

	cands, dropped, err := ParseAIResponse(text, shows)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		s.logger.Debug().Int("dropped", dropped).Msg("ignored recommendations outside the pool")
	}
	return topN(cands, wanted(req)), nil
}

// Fallbacks implements recommend.FallbackSource.
func (s *AISource) Fallbacks(req *recommend.SourceRequest) []resilience.Fallback[[]recommend.Candidate] {
	return []resilience.Fallback[[]recommend.Candidate]{{
		Name: "heuristic",
		Fn: func(context.Context) ([]recommend.Candidate, error) {
			return HeuristicScores(req), nil
		},
	}}
}

// promptShows keeps the best-rated pool items up to maxCandidates.
func (s *AISource) promptShows(pool []recommend.ContentSummary) []recommend.ContentSummary {
	shows := append([]recommend.ContentSummary(nil), pool...)
	sort.SliceStable(shows, func(i, j int) bool { return shows[i].Rating > shows[j].Rating })
	if len(shows) > s.maxCandidates {
		shows = shows[:s.maxCandidates]
	}
	return shows
}

// BuildPrompt renders the scoring prompt for profile over shows.
func BuildPrompt(profile *recommend.UserProfile, shows []recommend.ContentSummary, limit int) string {
	var b strings.Builder

	b.WriteString("You are a TV recommendation engine. Score how well each show below fits the viewer.\n\n")
	b.WriteString("Viewer:\n")
	writeList(&b, "Favorite genres", profile.FavoriteGenres)
	writeList(&b, "Current moods", profile.Moods)
	writeList(&b, "Preferred networks", profile.PreferredNetworks)
	if profile.NoveltySeeking {
		b.WriteString("- Enjoys discovering lesser-known shows\n")
	}
	if len(profile.Ratings) > 0 {
		fmt.Fprintf(&b, "- Has rated %d shows\n", len(profile.Ratings))
	}

	b.WriteString("\nShows:\n")
	for i := range shows {
		c := &shows[i]
		fmt.Fprintf(&b, "- id=%d | %s", c.ID, c.Title)
		if c.Year > 0 {
			fmt.Fprintf(&b, " (%d)", c.Year)
		}
		fmt.Fprintf(&b, " | genres: %s | rating: %.1f/10\n", strings.Join(c.Genres, ", "), c.Rating)
	}

	if limit <= 0 {
		limit = recommend.DefaultLimit
	}
	fmt.Fprintf(&b, "\nReturn at most %d shows as JSON only, no prose:\n", limit)
	b.WriteString(`{"recommendations":[{"contentId":123,"score":0.87,"reason":"one sentence","matchFactors":["short tag"]}]}`)
	b.WriteString("\nScores are between 0 and 1. Only use ids from the list above.\n")
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}

// ParseAIResponse extracts candidates from a model answer. Code fences and
// prose around the JSON object are tolerated. Entries for shows outside
// allowed are dropped and counted. Unparsable answers wrap
// resilience.ErrSourceMalformedResponse.
func ParseAIResponse(text string, allowed []recommend.ContentSummary) ([]recommend.Candidate, int, error) {
	body, err := extractJSONObject(text)
	if err != nil {
		return nil, 0, err
	}

	var resp aiResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, 0, fmt.Errorf("%w: decode: %w", resilience.ErrSourceMalformedResponse, err)
	}
	if resp.Recommendations == nil {
		return nil, 0, fmt.Errorf("%w: missing recommendations array", resilience.ErrSourceMalformedResponse)
	}

	known := make(map[int64]struct{}, len(allowed))
	for i := range allowed {
		known[allowed[i].ID] = struct{}{}
	}

	cands := make([]recommend.Candidate, 0, len(resp.Recommendations))
	seen := make(map[int64]struct{}, len(resp.Recommendations))
	dropped := 0
	for _, r := range resp.Recommendations {
		if _, ok := known[r.ContentID]; !ok {
			dropped++
			continue
		}
		if _, dup := seen[r.ContentID]; dup {
			continue
		}
		seen[r.ContentID] = struct{}{}

		reason := strings.TrimSpace(r.Reason)
		if reason == "" {
			reason = "Picked for you by AI"
		}
		cands = append(cands, recommend.Candidate{
			ContentID:    r.ContentID,
			RawScore:     r.Score,
			Source:       recommend.SourceAI,
			MatchFactors: r.MatchFactors,
			Reason:       reason,
		})
	}

	if len(resp.Recommendations) > 0 && len(cands) == 0 {
		return nil, dropped, fmt.Errorf("%w: no recommendation refers to a known show", resilience.ErrSourceMalformedResponse)
	}
	return cands, dropped, nil
}

// extractJSONObject returns the outermost {...} in text.
func extractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in completion", resilience.ErrSourceMalformedResponse)
	}
	return text[start : end+1], nil
}

// HeuristicScores ranks the pool by genre affinity, rating and mood without
// a model. It never fails.
func HeuristicScores(req *recommend.SourceRequest) []recommend.Candidate {
	profile := &req.Profile
	cands := make([]recommend.Candidate, 0, len(req.Pool))
	for i := range req.Pool {
		show := &req.Pool[i]
		if excluded(req, show.ID) {
			continue
		}
		matched := matchedGenres(show, profile.FavoriteGenres)
		score := 0.5*genreAffinity(show, profile.FavoriteGenres) + 0.3*clamp01(show.Rating/10)
		if moodMatch(profile, show) {
			score += 0.2
		}
		cands = append(cands, recommend.Candidate{
			ContentID:    show.ID,
			RawScore:     clamp01(score),
			Source:       recommend.SourceAI,
			MatchFactors: showFactors(show, matched),
			Reason:       genreReason(matched, "Well rated in the shows available to you"),
		})
	}
	return topN(cands, wanted(req))
}

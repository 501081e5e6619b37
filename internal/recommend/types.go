// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/goccy/go-json"
)

// SourceKind identifies one recommendation provider.
type SourceKind uint8

const (
	// SourceAI is the generative-AI scorer.
	SourceAI SourceKind = iota
	// SourceCatalog is content-catalog discovery.
	SourceCatalog
	// SourceCollaborative is the collaborative-filter scorer.
	SourceCollaborative
	// SourceTrending is the trending feed.
	SourceTrending

	numSourceKinds
)

var sourceKindNames = [numSourceKinds]string{
	SourceAI:            "ai",
	SourceCatalog:       "catalog",
	SourceCollaborative: "collaborative",
	SourceTrending:      "trending",
}

// AllSourceKinds returns every provider in merge insertion order.
func AllSourceKinds() []SourceKind {
	return []SourceKind{SourceAI, SourceCatalog, SourceCollaborative, SourceTrending}
}

// String returns the lower-case provider name.
func (k SourceKind) String() string {
	if k >= numSourceKinds {
		return fmt.Sprintf("source(%d)", uint8(k))
	}
	return sourceKindNames[k]
}

// Valid reports whether k is one of the four known providers.
func (k SourceKind) Valid() bool {
	return k < numSourceKinds
}

// Priority orders providers for sort tie-breaks. Lower wins:
// AI, collaborative, catalog, trending.
func (k SourceKind) Priority() int {
	switch k {
	case SourceAI:
		return 0
	case SourceCollaborative:
		return 1
	case SourceCatalog:
		return 2
	case SourceTrending:
		return 3
	default:
		return 4
	}
}

// ParseSourceKind parses a provider name case-insensitively.
func ParseSourceKind(s string) (SourceKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range sourceKindNames {
		if n == name {
			return SourceKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown source kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k SourceKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid source kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SourceKind) UnmarshalText(text []byte) error {
	parsed, err := ParseSourceKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SourceSet is the set of providers that voted for an item.
type SourceSet uint8

// NewSourceSet returns a set holding kinds.
func NewSourceSet(kinds ...SourceKind) SourceSet {
	var s SourceSet
	for _, k := range kinds {
		s.Add(k)
	}
	return s
}

// Add inserts k. Unknown kinds are ignored.
func (s *SourceSet) Add(k SourceKind) {
	if k.Valid() {
		*s |= 1 << k
	}
}

// Has reports whether k is in the set.
func (s SourceSet) Has(k SourceKind) bool {
	return k.Valid() && s&(1<<k) != 0
}

// Len returns the number of providers in the set.
func (s SourceSet) Len() int {
	return bits.OnesCount8(uint8(s))
}

// Kinds returns the members in insertion order.
func (s SourceSet) Kinds() []SourceKind {
	out := make([]SourceKind, 0, s.Len())
	for _, k := range AllSourceKinds() {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// String joins the member names with "+", e.g. "ai+collaborative".
func (s SourceSet) String() string {
	kinds := s.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, "+")
}

// MarshalJSON encodes the set as an array of provider names.
func (s SourceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Kinds())
}

// UnmarshalJSON decodes an array of provider names.
func (s *SourceSet) UnmarshalJSON(data []byte) error {
	var kinds []SourceKind
	if err := json.Unmarshal(data, &kinds); err != nil {
		return err
	}
	*s = NewSourceSet(kinds...)
	return nil
}

// ContentSummary describes one show as supplied by the catalog.
type ContentSummary struct {
	ID    int64  `json:"id" validate:"gt=0"`
	Title string `json:"title" validate:"max=512"`

	// Genres are display names; see CanonicalGenre for matching.
	Genres []string `json:"genres"`

	// Rating is the average audience rating on a 0-10 scale.
	Rating float64 `json:"rating" validate:"gte=0,lte=10"`

	// Popularity is a 0-1 measure; higher means more widely watched.
	Popularity float64 `json:"popularity" validate:"gte=0,lte=1"`

	Year     int      `json:"year,omitempty"`
	Networks []string `json:"networks,omitempty"`
}

// UserProfile is the caller-supplied context for one request.
type UserProfile struct {
	UserID            string   `json:"userId"`
	FavoriteGenres    []string `json:"favoriteGenres"`
	Moods             []string `json:"moods,omitempty"`
	PreferredNetworks []string `json:"preferredNetworks,omitempty"`

	// WatchHistory holds shows the user has already watched.
	WatchHistory []int64 `json:"watchHistory,omitempty"`

	// Ratings maps show id to the user's own 0-10 rating.
	Ratings map[int64]float64 `json:"ratings,omitempty"`

	// NoveltySeeking users get a larger hidden-gem weight.
	NoveltySeeking bool `json:"noveltySeeking,omitempty"`

	// Exclude holds shows the user never wants to see.
	Exclude []int64 `json:"exclude,omitempty"`
}

// ExcludeSet returns the union of WatchHistory and Exclude.
func (p *UserProfile) ExcludeSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(p.WatchHistory)+len(p.Exclude))
	for _, id := range p.WatchHistory {
		set[id] = struct{}{}
	}
	for _, id := range p.Exclude {
		set[id] = struct{}{}
	}
	return set
}

// Sort orders accepted by FilterSpec.SortBy.
const (
	SortByScore      = "score"
	SortByRating     = "rating"
	SortByPopularity = "popularity"
	SortByYear       = "year"
)

// FilterSpec constrains what may be recommended.
type FilterSpec struct {
	Genre       string   `json:"genre,omitempty"`
	Platform    string   `json:"platform,omitempty"`
	MinRating   *float64 `json:"minRating,omitempty" validate:"omitempty,gte=0,lte=10"`
	MaxRating   *float64 `json:"maxRating,omitempty" validate:"omitempty,gte=0,lte=10"`
	HideWatched bool     `json:"hideWatched,omitempty"`
	SortBy      string   `json:"sortBy,omitempty" validate:"omitempty,oneof=score rating popularity year"`

	// Limit is clamped to [1, MaxLimit]; zero means DefaultLimit.
	Limit int `json:"limit,omitempty" validate:"gte=0"`
}

// Candidate is one provider's opinion on one show.
type Candidate struct {
	ContentID int64 `json:"contentId"`

	// RawScore is in the provider's own domain until normalized.
	RawScore float64    `json:"rawScore"`
	Source   SourceKind `json:"source"`

	MatchFactors []string `json:"matchFactors,omitempty"`
	Reason       string   `json:"reason,omitempty"`

	// Content is set by providers that discover shows outside the request
	// pool, so the merged result can still be described and filtered.
	Content *ContentSummary `json:"content,omitempty"`
}

// NormalizedCandidate is a Candidate with its score mapped onto [0,1].
type NormalizedCandidate struct {
	Candidate
	NormalizedScore float64 `json:"normalizedScore"`
}

// MergedRecommendation is the fusion of every candidate for one show.
type MergedRecommendation struct {
	ContentID  int64   `json:"contentId"`
	Title      string  `json:"title"`
	FinalScore float64 `json:"finalScore"`
	Reason     string  `json:"reason"`

	MatchFactors []string `json:"matchFactors"`

	// Primary is the first provider that voted for the item.
	Primary SourceKind `json:"source"`
	Sources SourceSet  `json:"sources"`

	// Rank is 1-based and assigned after the final sort.
	Rank int `json:"rank"`

	content ContentSummary
}

// Content returns the catalog entry the recommendation refers to. It is the
// zero value when the show was unknown.
func (m *MergedRecommendation) Content() ContentSummary {
	return m.content
}

// PeerRatings holds one other user's ratings, used by the collaborative filter.
type PeerRatings struct {
	UserID  string
	Ratings map[int64]float64
}

// hasFactor reports whether factors contains f.
func hasFactor(factors []string, f string) bool {
	for _, x := range factors {
		if x == f {
			return true
		}
	}
	return false
}

// unionFactors appends the members of add not already in dst.
func unionFactors(dst, add []string) []string {
	for _, f := range add {
		if f != "" && !hasFactor(dst, f) {
			dst = append(dst, f)
		}
	}
	return dst
}

// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"sort"
	"strings"
)

// Genre is one entry of the canonical TV genre table. IDs follow the TMDB TV
// genre list.
type Genre struct {
	Name string `json:"name"`
	ID   int    `json:"id"`

	// Approximate marks aliases that fold a genre the catalog has no id for
	// into the nearest one. Matching on an approximate alias is lossy.
	Approximate bool `json:"approximate,omitempty"`
}

// canonicalGenres is the single authoritative name -> id table.
var canonicalGenres = []Genre{
	{Name: "Action & Adventure", ID: 10759},
	{Name: "Animation", ID: 16},
	{Name: "Comedy", ID: 35},
	{Name: "Crime", ID: 80},
	{Name: "Documentary", ID: 99},
	{Name: "Drama", ID: 18},
	{Name: "Family", ID: 10751},
	{Name: "Kids", ID: 10762},
	{Name: "Mystery", ID: 9648},
	{Name: "News", ID: 10763},
	{Name: "Reality", ID: 10764},
	{Name: "Sci-Fi & Fantasy", ID: 10765},
	{Name: "Soap", ID: 10766},
	{Name: "Talk", ID: 10767},
	{Name: "War & Politics", ID: 10768},
	{Name: "Western", ID: 37},
}

// genreAliases maps lower-cased alternate spellings onto a canonical name.
// Approximate aliases lose information and are flagged as such.
var genreAliases = map[string]struct {
	canonical   string
	approximate bool
}{
	"action":          {"Action & Adventure", true},
	"adventure":       {"Action & Adventure", true},
	"animated":        {"Animation", false},
	"anime":           {"Animation", true},
	"sitcom":          {"Comedy", true},
	"true crime":      {"Crime", true},
	"docuseries":      {"Documentary", false},
	"biography":       {"Documentary", true},
	"sport":           {"Documentary", true},
	"sports":          {"Documentary", true},
	"history":         {"Documentary", true},
	"children":        {"Kids", false},
	"thriller":        {"Mystery", true},
	"horror":          {"Mystery", true},
	"suspense":        {"Mystery", true},
	"romance":         {"Drama", true},
	"sci-fi":          {"Sci-Fi & Fantasy", true},
	"science fiction": {"Sci-Fi & Fantasy", true},
	"fantasy":         {"Sci-Fi & Fantasy", true},
	"soap opera":      {"Soap", false},
	"talk show":       {"Talk", false},
	"war":             {"War & Politics", true},
	"politics":        {"War & Politics", true},
	"game show":       {"Reality", true},
}

// moodGenres maps a viewer mood onto the genres that satisfy it.
var moodGenres = map[string][]string{
	"feel-good":   {"Comedy", "Family", "Animation"},
	"funny":       {"Comedy", "Animation"},
	"light":       {"Comedy", "Reality", "Animation"},
	"dark":        {"Crime", "Mystery", "War & Politics"},
	"suspenseful": {"Mystery", "Crime"},
	"exciting":    {"Action & Adventure", "Sci-Fi & Fantasy"},
	"adventurous": {"Action & Adventure", "Western"},
	"thoughtful":  {"Drama", "Documentary"},
	"curious":     {"Documentary", "News", "Sci-Fi & Fantasy"},
	"emotional":   {"Drama", "Soap"},
	"romantic":    {"Drama", "Soap"},
	"relaxed":     {"Reality", "Talk", "Comedy"},
}

var genresByName = func() map[string]Genre {
	m := make(map[string]Genre, len(canonicalGenres)+len(genreAliases))
	for _, g := range canonicalGenres {
		m[strings.ToLower(g.Name)] = g
	}
	for alias, a := range genreAliases {
		g := m[strings.ToLower(a.canonical)]
		g.Approximate = a.approximate
		m[alias] = g
	}
	return m
}()

// Genres returns the canonical table sorted by name.
func Genres() []Genre {
	out := append([]Genre(nil), canonicalGenres...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupGenre resolves a canonical name or alias, case-insensitively.
// The returned Genre carries the canonical Name.
func LookupGenre(name string) (Genre, bool) {
	g, ok := genresByName[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

// CanonicalGenre returns the canonical name for name, or name unchanged when
// it is not in the table.
func CanonicalGenre(name string) string {
	if g, ok := LookupGenre(name); ok {
		return g.Name
	}
	return strings.TrimSpace(name)
}

// GenreID returns the catalog id for name.
func GenreID(name string) (int, bool) {
	g, ok := LookupGenre(name)
	return g.ID, ok
}

// MoodGenres returns the canonical genres for mood, or nil when unknown.
func MoodGenres(mood string) []string {
	return moodGenres[strings.ToLower(strings.TrimSpace(mood))]
}

// SameGenre reports whether a and b resolve to the same canonical genre.
func SameGenre(a, b string) bool {
	return strings.EqualFold(CanonicalGenre(a), CanonicalGenre(b))
}

// HasGenre reports whether any of genres matches want.
func HasGenre(genres []string, want string) bool {
	for _, g := range genres {
		if SameGenre(g, want) {
			return true
		}
	}
	return false
}

// canonicalSet returns the distinct canonical genres of genres.
func canonicalSet(genres []string) []string {
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		c := CanonicalGenre(g)
		if c != "" && !hasFactor(out, c) {
			out = append(out, c)
		}
	}
	return out
}

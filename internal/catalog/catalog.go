// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package catalog provides an in-memory content catalog that backs the
catalog-discovery and trending providers.

Shows are loaded from a seed document with a top-level "shows" list. YAML and
JSON seeds are both accepted. A seed is embedded in the binary and used when no
path is configured:

	shows:
	  - id: 1396
	    title: Breaking Bad
	    genres: [Drama, Crime]
	    rating: 8.9
	    popularity: 0.95
	    year: 2008
	    networks: [AMC]

The catalog is read-only after construction and safe for concurrent use.
*/
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/recommend/sources"
)

//go:embed seed.yaml
var builtinSeed []byte

// seedShow is one entry of a seed document.
type seedShow struct {
	ID         int64    `koanf:"id"`
	Title      string   `koanf:"title"`
	Genres     []string `koanf:"genres"`
	Rating     float64  `koanf:"rating"`
	Popularity float64  `koanf:"popularity"`
	Year       int      `koanf:"year"`
	Networks   []string `koanf:"networks"`
}

// Catalog indexes a fixed set of shows.
type Catalog struct {
	shows []recommend.ContentSummary
	byID  map[int64]int

	// trending holds indexes into shows ordered by popularity.
	trending []int
}

// New builds a catalog from shows. Entries without an id are skipped and a
// repeated id keeps its first occurrence.
func New(shows []recommend.ContentSummary) *Catalog {
	c := &Catalog{
		shows: make([]recommend.ContentSummary, 0, len(shows)),
		byID:  make(map[int64]int, len(shows)),
	}
	for i := range shows {
		s := shows[i]
		if s.ID == 0 {
			continue
		}
		if _, dup := c.byID[s.ID]; dup {
			continue
		}
		s.Genres = canonicalize(s.Genres)
		c.byID[s.ID] = len(c.shows)
		c.shows = append(c.shows, s)
	}

	c.trending = make([]int, len(c.shows))
	for i := range c.trending {
		c.trending[i] = i
	}
	sort.SliceStable(c.trending, func(i, j int) bool {
		a, b := &c.shows[c.trending[i]], &c.shows[c.trending[j]]
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		return a.ID < b.ID
	})
	return c
}

// Load reads a seed file. An empty path loads the built-in seed.
func Load(path string) (*Catalog, error) {
	k := koanf.New(".")
	var err error
	if path == "" {
		err = k.Load(rawBytes(builtinSeed), yaml.Parser())
	} else {
		err = k.Load(file.Provider(path), yaml.Parser())
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: load seed %q: %w", path, err)
	}

	var entries []seedShow
	if err := k.Unmarshal("shows", &entries); err != nil {
		return nil, fmt.Errorf("catalog: decode shows: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog: seed %q has no shows", path)
	}

	shows := make([]recommend.ContentSummary, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.Rating < 0 || e.Rating > 10 {
			return nil, fmt.Errorf("catalog: show %d rating %v outside 0..10", e.ID, e.Rating)
		}
		if e.Popularity < 0 || e.Popularity > 1 {
			return nil, fmt.Errorf("catalog: show %d popularity %v outside 0..1", e.ID, e.Popularity)
		}
		shows = append(shows, recommend.ContentSummary{
			ID:         e.ID,
			Title:      e.Title,
			Genres:     e.Genres,
			Rating:     e.Rating,
			Popularity: e.Popularity,
			Year:       e.Year,
			Networks:   e.Networks,
		})
	}
	return New(shows), nil
}

// Len returns the number of shows.
func (c *Catalog) Len() int { return len(c.shows) }

// Lookup returns the show with id.
func (c *Catalog) Lookup(id int64) (recommend.ContentSummary, bool) {
	i, ok := c.byID[id]
	if !ok {
		return recommend.ContentSummary{}, false
	}
	return c.shows[i], true
}

// Discover returns shows matching q, best rated first. A show matches the
// genre terms when it carries any of them.
func (c *Catalog) Discover(ctx context.Context, q sources.DiscoverQuery) ([]recommend.ContentSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exclude := make(map[int64]struct{}, len(q.Exclude))
	for _, id := range q.Exclude {
		exclude[id] = struct{}{}
	}

	var out []recommend.ContentSummary
	for i := range c.shows {
		s := &c.shows[i]
		if _, ok := exclude[s.ID]; ok {
			continue
		}
		if !matchesGenres(s, q.Genres) {
			continue
		}
		if q.Platform != "" && !hasNetwork(s.Networks, q.Platform) {
			continue
		}
		if q.MinRating != nil && s.Rating < *q.MinRating {
			continue
		}
		if q.MaxRating != nil && s.Rating > *q.MaxRating {
			continue
		}
		out = append(out, *s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		if out[i].Popularity != out[j].Popularity {
			return out[i].Popularity > out[j].Popularity
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Trending returns up to limit shows, most popular first.
func (c *Catalog) Trending(ctx context.Context, limit int) ([]recommend.ContentSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(c.trending)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]recommend.ContentSummary, n)
	for i := 0; i < n; i++ {
		out[i] = c.shows[c.trending[i]]
	}
	return out, nil
}

func matchesGenres(s *recommend.ContentSummary, genres []string) bool {
	if len(genres) == 0 {
		return true
	}
	for _, g := range genres {
		if recommend.HasGenre(s.Genres, g) {
			return true
		}
	}
	return false
}

func hasNetwork(networks []string, want string) bool {
	for _, n := range networks {
		if strings.EqualFold(n, want) {
			return true
		}
	}
	return false
}

// canonicalize maps genre names onto the shared genre table, dropping
// duplicates.
func canonicalize(genres []string) []string {
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		c := recommend.CanonicalGenre(g)
		dup := false
		for _, x := range out {
			if x == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// rawBytes is a koanf provider over an in-memory document.
type rawBytes []byte

func (r rawBytes) ReadBytes() ([]byte, error) { return r, nil }

func (r rawBytes) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("catalog: raw bytes provider requires a parser")
}

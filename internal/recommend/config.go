// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/resilience"
)

// Limits applied when a request does not say otherwise.
const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// MergeConfig holds the fusion constants. Its fields match config.MergeConfig
// so one converts to the other directly.
type MergeConfig struct {
	AIWeight            float64 `json:"ai_weight"`
	CatalogWeight       float64 `json:"catalog_weight"`
	CollaborativeWeight float64 `json:"collaborative_weight"`
	TrendingWeight      float64 `json:"trending_weight"`

	CatalogKeep       float64 `json:"catalog_keep"`
	CollaborativeKeep float64 `json:"collaborative_keep"`
	TrendingBump      float64 `json:"trending_bump"`

	TrendingRecencyBonus float64 `json:"trending_recency_bonus"`

	MoodBoost          float64 `json:"mood_boost"`
	FavoriteGenreBoost float64 `json:"favorite_genre_boost"`
	HighlyRatedBoost   float64 `json:"highly_rated_boost"`
	AISourceBoost      float64 `json:"ai_source_boost"`

	DefaultLimit int `json:"default_limit"`
	MaxLimit     int `json:"max_limit"`
}

// DefaultMergeConfig returns the production fusion constants.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		AIWeight:             1.3,
		CatalogWeight:        1.1,
		CollaborativeWeight:  1.2,
		TrendingWeight:       0.9,
		CatalogKeep:          0.7,
		CollaborativeKeep:    0.8,
		TrendingBump:         0.05,
		TrendingRecencyBonus: 0.05,
		MoodBoost:            0.1,
		FavoriteGenreBoost:   0.08,
		HighlyRatedBoost:     0.05,
		AISourceBoost:        0.05,
		DefaultLimit:         DefaultLimit,
		MaxLimit:             MaxLimit,
	}
}

// Weight returns the provider weight for k.
//
//nolint:gocritic // hugeParam: value receiver keeps MergeConfig immutable
func (m MergeConfig) Weight(k SourceKind) float64 {
	switch k {
	case SourceAI:
		return m.AIWeight
	case SourceCatalog:
		return m.CatalogWeight
	case SourceCollaborative:
		return m.CollaborativeWeight
	case SourceTrending:
		return m.TrendingWeight
	default:
		return 0
	}
}

// ClampLimit maps a requested limit onto [1, MaxLimit]; zero or negative
// means DefaultLimit.
//
//nolint:gocritic // hugeParam: value receiver keeps MergeConfig immutable
func (m MergeConfig) ClampLimit(limit int) int {
	maxLimit := m.MaxLimit
	if maxLimit < 1 {
		maxLimit = MaxLimit
	}
	if limit <= 0 {
		limit = m.DefaultLimit
		if limit <= 0 {
			limit = DefaultLimit
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// Validate checks the constants for values that would break the merge.
//
//nolint:gocritic // hugeParam: value receiver keeps MergeConfig immutable
func (m MergeConfig) Validate() error {
	for _, k := range AllSourceKinds() {
		if w := m.Weight(k); w < 0 {
			return fmt.Errorf("%s weight must be non-negative, got %f", k, w)
		}
	}
	if m.CatalogKeep < 0 || m.CatalogKeep > 1 {
		return fmt.Errorf("catalog_keep must be in [0, 1], got %f", m.CatalogKeep)
	}
	if m.CollaborativeKeep < 0 || m.CollaborativeKeep > 1 {
		return fmt.Errorf("collaborative_keep must be in [0, 1], got %f", m.CollaborativeKeep)
	}
	if m.DefaultLimit < 1 {
		return fmt.Errorf("default_limit must be positive, got %d", m.DefaultLimit)
	}
	if m.MaxLimit < m.DefaultLimit {
		return fmt.Errorf("max_limit must be >= default_limit, got %d < %d", m.MaxLimit, m.DefaultLimit)
	}
	return nil
}

// CacheTTLs holds the result lifetime for each provider. Zero disables
// caching for that provider.
type CacheTTLs struct {
	AI            time.Duration
	Catalog       time.Duration
	Collaborative time.Duration
	Trending      time.Duration
}

// For returns the TTL for k.
func (c CacheTTLs) For(k SourceKind) time.Duration {
	switch k {
	case SourceAI:
		return c.AI
	case SourceCatalog:
		return c.Catalog
	case SourceCollaborative:
		return c.Collaborative
	case SourceTrending:
		return c.Trending
	default:
		return 0
	}
}

// Config contains the orchestrator configuration.
type Config struct {
	// Merge is the baseline fusion constants.
	Merge MergeConfig

	// Variants lists the experiment variants requests are bucketed into when
	// they do not name one. Empty disables assignment.
	Variants []string

	// VariantMerge holds the complete constants for each variant that
	// differs from Merge.
	VariantMerge map[string]MergeConfig

	CacheTTL CacheTTLs

	// SoftTimeout is how long the orchestrator waits for each provider
	// attempt. The provider call keeps running after it elapses.
	SoftTimeout time.Duration

	// RetryAttempts includes the first attempt.
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Merge: DefaultMergeConfig(),
		CacheTTL: CacheTTLs{
			AI:            10 * time.Minute,
			Catalog:       30 * time.Minute,
			Collaborative: 5 * time.Minute,
			Trending:      15 * time.Minute,
		},
		SoftTimeout:    8 * time.Second,
		RetryAttempts:  2,
		RetryBaseDelay: 200 * time.Millisecond,
		RetryMaxDelay:  2 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Merge.Validate(); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	for name, m := range c.VariantMerge {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("variant %s: %w", name, err)
		}
	}
	seen := make(map[string]struct{}, len(c.Variants))
	for _, v := range c.Variants {
		if v == "" {
			return fmt.Errorf("variant names must not be empty")
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("duplicate variant %q", v)
		}
		seen[v] = struct{}{}
	}
	if c.SoftTimeout < 0 {
		return fmt.Errorf("soft_timeout must be non-negative, got %v", c.SoftTimeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be non-negative, got %d", c.RetryAttempts)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Variants = append([]string(nil), c.Variants...)
	if c.VariantMerge != nil {
		out.VariantMerge = make(map[string]MergeConfig, len(c.VariantMerge))
		for k, v := range c.VariantMerge {
			out.VariantMerge[k] = v
		}
	}
	return &out
}

// MergeFor returns the constants for variant, falling back to Merge.
func (c *Config) MergeFor(variant string) MergeConfig {
	if m, ok := c.VariantMerge[variant]; ok {
		return m
	}
	return c.Merge
}

// retryPolicy builds the per-attempt policy used for every provider.
func (c *Config) retryPolicy() resilience.RetryPolicy {
	if c.RetryAttempts <= 1 {
		return resilience.NoRetry()
	}
	return resilience.RetryPolicy{
		MaxAttempts: c.RetryAttempts,
		Backoff:     resilience.ExponentialBackoff(c.RetryBaseDelay, c.RetryMaxDelay),
		Retryable:   resilience.DefaultRetryable,
	}
}

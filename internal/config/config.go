// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package config loads Marquee's runtime configuration.
//
// Values are layered with koanf: struct defaults first, then an optional YAML
// file, then environment variables. See LoadWithKoanf for the lookup order and
// envTransformFunc for the supported environment variable names.
package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Security      SecurityConfig      `koanf:"security"`
	AI            AIConfig            `koanf:"ai"`
	Catalog       CatalogConfig       `koanf:"catalog"`
	Collaborative CollaborativeConfig `koanf:"collaborative"`
	Cache         CacheConfig         `koanf:"cache"`
	Resilience    ResilienceConfig    `koanf:"resilience"`
	Merge         MergeConfig         `koanf:"merge"`
	Events        EventsConfig        `koanf:"events"`
	Experiments   ExperimentsConfig   `koanf:"experiments"`
	Supervisor    SupervisorConfig    `koanf:"supervisor"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	DrainDelay      time.Duration `koanf:"drain_delay"` // readiness reports draining this long before shutdown
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json, console
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds the HTTP edge protections. Marquee has no user
// authentication; callers are trusted to supply their own profile.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// AIConfig configures the OpenAI-compatible completion provider.
type AIConfig struct {
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`

	// Timeout bounds a single HTTP round trip to the provider.
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond and Burst throttle outgoing completions.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	// MaxCandidates caps how many pool items are described in the prompt.
	MaxCandidates int `koanf:"max_candidates"`
}

// CatalogConfig configures the discovery and trending providers.
type CatalogConfig struct {
	Enabled         bool   `koanf:"enabled"`
	TrendingEnabled bool   `koanf:"trending_enabled"`
	SeedPath        string `koanf:"seed_path"` // YAML or JSON list of shows; empty uses the request pool only
}

// CollaborativeConfig configures the collaborative-filter scorer.
type CollaborativeConfig struct {
	Enabled       bool          `koanf:"enabled"`
	MinSimilarity float64       `koanf:"min_similarity"`
	MaxPeers      int           `koanf:"max_peers"`
	PeerWindow    time.Duration `koanf:"peer_window"` // how far back rate actions are read
	MaxUsers      int           `koanf:"max_users"`   // raters held by the peer index
}

// CacheConfig holds provider result cache settings.
type CacheConfig struct {
	MaxEntries       int           `koanf:"max_entries"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	AITTL            time.Duration `koanf:"ai_ttl"`
	CatalogTTL       time.Duration `koanf:"catalog_ttl"`
	TrendingTTL      time.Duration `koanf:"trending_ttl"`
	CollaborativeTTL time.Duration `koanf:"collaborative_ttl"`
}

// ResilienceConfig holds circuit breaker, retry and timeout settings shared
// by every provider.
type ResilienceConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
	SoftTimeout      time.Duration `koanf:"soft_timeout"`
	RetryAttempts    int           `koanf:"retry_attempts"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay    time.Duration `koanf:"retry_max_delay"`
}

// MergeConfig holds the fusion constants. These are tuning knobs rather than
// invariants; variants override them for A/B comparison.
type MergeConfig struct {
	AIWeight            float64 `koanf:"ai_weight"`
	CatalogWeight       float64 `koanf:"catalog_weight"`
	CollaborativeWeight float64 `koanf:"collaborative_weight"`
	TrendingWeight      float64 `koanf:"trending_weight"`

	// CatalogKeep and CollaborativeKeep are the share of the existing score
	// kept when that provider corroborates an item.
	CatalogKeep       float64 `koanf:"catalog_keep"`
	CollaborativeKeep float64 `koanf:"collaborative_keep"`
	TrendingBump      float64 `koanf:"trending_bump"`

	TrendingRecencyBonus float64 `koanf:"trending_recency_bonus"`

	MoodBoost          float64 `koanf:"mood_boost"`
	FavoriteGenreBoost float64 `koanf:"favorite_genre_boost"`
	HighlyRatedBoost   float64 `koanf:"highly_rated_boost"`
	AISourceBoost      float64 `koanf:"ai_source_boost"`

	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

// EventsConfig configures the impression/action pipeline.
type EventsConfig struct {
	QueueSize     int           `koanf:"queue_size"`
	Policy        string        `koanf:"policy"` // drop_oldest, block
	BlockTimeout  time.Duration `koanf:"block_timeout"`
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`

	Store      string        `koanf:"store"` // memory, badger
	BadgerPath string        `koanf:"badger_path"`
	GCInterval time.Duration `koanf:"gc_interval"`

	// MemoryMaxEvents and Retention bound the memory store.
	MemoryMaxEvents int           `koanf:"memory_max_events"`
	Retention       time.Duration `koanf:"retention"`

	Publish string `koanf:"publish"` // none, gochannel, nats
	Topic   string `koanf:"topic"`
	NATSURL string `koanf:"nats_url"`
}

// ExperimentsConfig holds A/B variant settings.
type ExperimentsConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Variants []string `koanf:"variants"`

	// Overrides maps a variant name to the merge constants it changes. Only
	// non-zero fields are applied over Merge.
	Overrides map[string]MergeConfig `koanf:"overrides"`
}

// SupervisorConfig mirrors supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// VariantMerge returns the merge constants for variant: the base Merge
// section with any non-zero override fields applied.
func (c *Config) VariantMerge(variant string) MergeConfig {
	base := c.Merge
	override, ok := c.Experiments.Overrides[variant]
	if !ok {
		return base
	}

	apply := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	apply(&base.AIWeight, override.AIWeight)
	apply(&base.CatalogWeight, override.CatalogWeight)
	apply(&base.CollaborativeWeight, override.CollaborativeWeight)
	apply(&base.TrendingWeight, override.TrendingWeight)
	apply(&base.CatalogKeep, override.CatalogKeep)
	apply(&base.CollaborativeKeep, override.CollaborativeKeep)
	apply(&base.TrendingBump, override.TrendingBump)
	apply(&base.TrendingRecencyBonus, override.TrendingRecencyBonus)
	apply(&base.MoodBoost, override.MoodBoost)
	apply(&base.FavoriteGenreBoost, override.FavoriteGenreBoost)
	apply(&base.HighlyRatedBoost, override.HighlyRatedBoost)
	apply(&base.AISourceBoost, override.AISourceBoost)
	if override.DefaultLimit != 0 {
		base.DefaultLimit = override.DefaultLimit
	}
	if override.MaxLimit != 0 {
		base.MaxLimit = override.MaxLimit
	}
	return base
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/marquee/config.yaml",
	"/etc/marquee/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		AI: AIConfig{
			Enabled:           false, // needs an API key
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			Timeout:           20 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
			MaxCandidates:     40,
		},
		Catalog: CatalogConfig{
			Enabled:         true,
			TrendingEnabled: true,
		},
		Collaborative: CollaborativeConfig{
			Enabled:       true,
			MinSimilarity: 0.1,
			MaxPeers:      50,
			PeerWindow:    30 * 24 * time.Hour,
			MaxUsers:      50000,
		},
		Cache: CacheConfig{
			MaxEntries:       10000,
			SweepInterval:    5 * time.Minute,
			AITTL:            10 * time.Minute,
			CatalogTTL:       30 * time.Minute,
			TrendingTTL:      15 * time.Minute,
			CollaborativeTTL: 5 * time.Minute,
		},
		Resilience: ResilienceConfig{
			FailureThreshold: 5,
			Cooldown:         60 * time.Second,
			SoftTimeout:      8 * time.Second,
			RetryAttempts:    2,
			RetryBaseDelay:   200 * time.Millisecond,
			RetryMaxDelay:    2 * time.Second,
		},
		Merge: MergeConfig{
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
			DefaultLimit:         20,
			MaxLimit:             50,
		},
		Events: EventsConfig{
			QueueSize:       4096,
			Policy:          "drop_oldest",
			BlockTimeout:    50 * time.Millisecond,
			BatchSize:       256,
			FlushInterval:   2 * time.Second,
			Store:           "memory",
			BadgerPath:      "/data/marquee/events",
			GCInterval:      10 * time.Minute,
			MemoryMaxEvents: 100000,
			Retention:       7 * 24 * time.Hour,
			Publish:         "none",
			Topic:           "marquee.quality",
			NATSURL:         "nats://127.0.0.1:4222",
		},
		Experiments: ExperimentsConfig{
			Enabled:  false,
			Variants: []string{},
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration with layered sources:
//  1. Defaults from defaultConfig
//  2. Optional YAML config file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// AI_API_KEY -> ai.api_key, HTTP_PORT -> server.port
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from env.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"experiments.variants",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"http_drain_delay":      "server.drain_delay",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Security
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// AI provider
	"ai_enabled":             "ai.enabled",
	"ai_base_url":            "ai.base_url",
	"ai_api_key":             "ai.api_key",
	"ai_model":               "ai.model",
	"ai_timeout":             "ai.timeout",
	"ai_requests_per_second": "ai.requests_per_second",
	"ai_burst":               "ai.burst",
	"ai_max_candidates":      "ai.max_candidates",

	// Catalog and trending
	"catalog_enabled":   "catalog.enabled",
	"trending_enabled":  "catalog.trending_enabled",
	"catalog_seed_path": "catalog.seed_path",

	// Collaborative filter
	"collaborative_enabled":        "collaborative.enabled",
	"collaborative_min_similarity": "collaborative.min_similarity",
	"collaborative_max_peers":      "collaborative.max_peers",
	"collaborative_peer_window":    "collaborative.peer_window",
	"collaborative_max_users":      "collaborative.max_users",

	// Cache
	"cache_max_entries":       "cache.max_entries",
	"cache_sweep_interval":    "cache.sweep_interval",
	"cache_ai_ttl":            "cache.ai_ttl",
	"cache_catalog_ttl":       "cache.catalog_ttl",
	"cache_trending_ttl":      "cache.trending_ttl",
	"cache_collaborative_ttl": "cache.collaborative_ttl",

	// Resilience
	"breaker_failure_threshold": "resilience.failure_threshold",
	"breaker_cooldown":          "resilience.cooldown",
	"source_soft_timeout":       "resilience.soft_timeout",
	"source_retry_attempts":     "resilience.retry_attempts",
	"source_retry_base_delay":   "resilience.retry_base_delay",
	"source_retry_max_delay":    "resilience.retry_max_delay",

	// Merge
	"merge_default_limit": "merge.default_limit",
	"merge_max_limit":     "merge.max_limit",

	// Events
	"events_queue_size":        "events.queue_size",
	"events_policy":            "events.policy",
	"events_block_timeout":     "events.block_timeout",
	"events_batch_size":        "events.batch_size",
	"events_flush_interval":    "events.flush_interval",
	"events_store":             "events.store",
	"events_badger_path":       "events.badger_path",
	"events_gc_interval":       "events.gc_interval",
	"events_memory_max_events": "events.memory_max_events",
	"events_retention":         "events.retention",
	"events_publish":           "events.publish",
	"events_topic":             "events.topic",
	"nats_url":                 "events.nats_url",

	// Experiments
	"experiments_enabled":  "experiments.enabled",
	"experiments_variants": "experiments.variants",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - AI_API_KEY -> ai.api_key
//   - EVENTS_STORE -> events.store
//   - NATS_URL -> events.nats_url
//
// Unmapped variables return "" so the rest of the environment is ignored.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

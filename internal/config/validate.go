// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateSecurity,
		c.validateAI,
		c.validateCollaborative,
		c.validateCache,
		c.validateResilience,
		c.validateMerge,
		c.validateEvents,
		c.validateExperiments,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	if c.Server.DrainDelay < 0 {
		return fmt.Errorf("HTTP_DRAIN_DELAY must not be negative, got %v", c.Server.DrainDelay)
	}
	if c.Supervisor.ShutdownTimeout > 0 && c.Server.DrainDelay+c.Server.ShutdownTimeout > c.Supervisor.ShutdownTimeout {
		return fmt.Errorf("HTTP_DRAIN_DELAY plus HTTP_SHUTDOWN_TIMEOUT (%v) must not exceed SUPERVISOR_SHUTDOWN_TIMEOUT (%v)",
			c.Server.DrainDelay+c.Server.ShutdownTimeout, c.Supervisor.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Security.RateLimitReqs)
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %v", c.Security.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateAI() error {
	if !c.AI.Enabled {
		return nil
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("AI_API_KEY is required when AI_ENABLED=true")
	}
	u, err := url.Parse(c.AI.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("AI_BASE_URL must be an absolute http(s) URL, got %q", c.AI.BaseURL)
	}
	if c.AI.Model == "" {
		return fmt.Errorf("AI_MODEL is required when AI_ENABLED=true")
	}
	if c.AI.RequestsPerSecond <= 0 {
		return fmt.Errorf("AI_REQUESTS_PER_SECOND must be positive, got %v", c.AI.RequestsPerSecond)
	}
	return nil
}

func (c *Config) validateCollaborative() error {
	if c.Collaborative.MinSimilarity < 0 || c.Collaborative.MinSimilarity > 1 {
		return fmt.Errorf("COLLABORATIVE_MIN_SIMILARITY must be within [0,1], got %v", c.Collaborative.MinSimilarity)
	}
	if c.Collaborative.MaxPeers < 1 {
		return fmt.Errorf("COLLABORATIVE_MAX_PEERS must be at least 1, got %d", c.Collaborative.MaxPeers)
	}
	if c.Collaborative.MaxUsers < 0 {
		return fmt.Errorf("COLLABORATIVE_MAX_USERS must not be negative, got %d", c.Collaborative.MaxUsers)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must not be negative, got %d", c.Cache.MaxEntries)
	}
	for name, ttl := range map[string]time.Duration{
		"CACHE_AI_TTL":            c.Cache.AITTL,
		"CACHE_CATALOG_TTL":       c.Cache.CatalogTTL,
		"CACHE_TRENDING_TTL":      c.Cache.TrendingTTL,
		"CACHE_COLLABORATIVE_TTL": c.Cache.CollaborativeTTL,
	} {
		if ttl < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateResilience() error {
	if c.Resilience.FailureThreshold == 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.Resilience.Cooldown <= 0 {
		return fmt.Errorf("BREAKER_COOLDOWN must be positive, got %v", c.Resilience.Cooldown)
	}
	if c.Resilience.RetryAttempts < 1 {
		return fmt.Errorf("SOURCE_RETRY_ATTEMPTS must be at least 1, got %d", c.Resilience.RetryAttempts)
	}
	if c.Resilience.SoftTimeout <= 0 {
		return fmt.Errorf("SOURCE_SOFT_TIMEOUT must be positive, got %v", c.Resilience.SoftTimeout)
	}
	if budget := c.Resilience.SourceBudget(); budget >= c.Server.Timeout {
		return fmt.Errorf("SOURCE_SOFT_TIMEOUT x SOURCE_RETRY_ATTEMPTS plus retry backoff (%v) must be below HTTP_TIMEOUT (%v)",
			budget, c.Server.Timeout)
	}
	return nil
}

// SourceBudget is the longest a provider call can take: every attempt
// running to the soft timeout plus the exponential backoff between attempts.
func (r ResilienceConfig) SourceBudget() time.Duration {
	total := time.Duration(r.RetryAttempts) * r.SoftTimeout
	delay := r.RetryBaseDelay
	for i := 1; i < r.RetryAttempts; i++ {
		d := delay
		if r.RetryMaxDelay > 0 && d > r.RetryMaxDelay {
			d = r.RetryMaxDelay
		}
		total += d
		delay *= 2
	}
	return total
}

func (c *Config) validateMerge() error {
	m := c.Merge
	for name, v := range map[string]float64{
		"merge.ai_weight":            m.AIWeight,
		"merge.catalog_weight":       m.CatalogWeight,
		"merge.collaborative_weight": m.CollaborativeWeight,
		"merge.trending_weight":      m.TrendingWeight,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, v)
		}
	}
	for name, v := range map[string]float64{
		"merge.catalog_keep":       m.CatalogKeep,
		"merge.collaborative_keep": m.CollaborativeKeep,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if m.MaxLimit < 1 {
		return fmt.Errorf("MERGE_MAX_LIMIT must be at least 1, got %d", m.MaxLimit)
	}
	if m.DefaultLimit < 1 || m.DefaultLimit > m.MaxLimit {
		return fmt.Errorf("MERGE_DEFAULT_LIMIT must be between 1 and %d, got %d", m.MaxLimit, m.DefaultLimit)
	}
	return nil
}

func (c *Config) validateEvents() error {
	e := c.Events
	if e.QueueSize < 1 {
		return fmt.Errorf("EVENTS_QUEUE_SIZE must be at least 1, got %d", e.QueueSize)
	}
	if e.BatchSize < 1 {
		return fmt.Errorf("EVENTS_BATCH_SIZE must be at least 1, got %d", e.BatchSize)
	}
	switch e.Policy {
	case "drop_oldest":
	case "block":
		if e.BlockTimeout <= 0 {
			return fmt.Errorf("EVENTS_BLOCK_TIMEOUT must be positive when EVENTS_POLICY=block")
		}
	default:
		return fmt.Errorf("EVENTS_POLICY must be drop_oldest or block, got %q", e.Policy)
	}
	switch e.Store {
	case "memory":
		if e.MemoryMaxEvents < 1 {
			return fmt.Errorf("EVENTS_MEMORY_MAX_EVENTS must be at least 1, got %d", e.MemoryMaxEvents)
		}
		if e.Retention < 0 {
			return fmt.Errorf("EVENTS_RETENTION must not be negative, got %v", e.Retention)
		}
	case "badger":
		if e.BadgerPath == "" {
			return fmt.Errorf("EVENTS_BADGER_PATH is required when EVENTS_STORE=badger")
		}
	default:
		return fmt.Errorf("EVENTS_STORE must be memory or badger, got %q", e.Store)
	}
	switch e.Publish {
	case "none", "gochannel":
	case "nats":
		if e.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when EVENTS_PUBLISH=nats")
		}
	default:
		return fmt.Errorf("EVENTS_PUBLISH must be none, gochannel or nats, got %q", e.Publish)
	}
	return nil
}

func (c *Config) validateExperiments() error {
	if !c.Experiments.Enabled {
		return nil
	}
	if len(c.Experiments.Variants) < 2 {
		return fmt.Errorf("EXPERIMENTS_VARIANTS needs at least two variants when experiments are enabled")
	}
	seen := make(map[string]struct{}, len(c.Experiments.Variants))
	for _, v := range c.Experiments.Variants {
		if _, dup := seen[v]; dup {
			return fmt.Errorf("EXPERIMENTS_VARIANTS contains duplicate variant %q", v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/quality"
	"github.com/tomtom215/marquee/internal/recommend"
)

func testConfig() *config.Config {
	return &config.Config{
		Catalog:       config.CatalogConfig{Enabled: true, TrendingEnabled: true},
		Collaborative: config.CollaborativeConfig{Enabled: true, MinSimilarity: 0.1, MaxPeers: 10, PeerWindow: time.Hour},
		Cache: config.CacheConfig{
			MaxEntries:       100,
			SweepInterval:    time.Minute,
			AITTL:            time.Minute,
			CatalogTTL:       2 * time.Minute,
			TrendingTTL:      3 * time.Minute,
			CollaborativeTTL: 4 * time.Minute,
		},
		Resilience: config.ResilienceConfig{
			FailureThreshold: 3,
			Cooldown:         time.Second,
			SoftTimeout:      time.Second,
			RetryAttempts:    1,
		},
		Merge: config.MergeConfig(recommend.DefaultMergeConfig()),
		Events: config.EventsConfig{
			QueueSize:     64,
			Policy:        "drop_oldest",
			BatchSize:     8,
			FlushInterval: 10 * time.Millisecond,
			Store:         "memory",
			Publish:       "none",
			Topic:         "marquee.quality",
		},
	}
}

func TestOrchestratorConfig(t *testing.T) {
	t.Parallel()

	t.Run("copies cache and retry settings", func(t *testing.T) {
		t.Parallel()
		oc := orchestratorConfig(testConfig())
		if oc.CacheTTL.Trending != 3*time.Minute || oc.CacheTTL.Collaborative != 4*time.Minute {
			t.Errorf("CacheTTL = %+v", oc.CacheTTL)
		}
		if oc.RetryAttempts != 1 || oc.SoftTimeout != time.Second {
			t.Errorf("retry = %d, soft timeout = %v", oc.RetryAttempts, oc.SoftTimeout)
		}
		if oc.Merge != recommend.DefaultMergeConfig() {
			t.Errorf("Merge = %+v", oc.Merge)
		}
		if len(oc.Variants) != 0 || len(oc.VariantMerge) != 0 {
			t.Errorf("variants configured while experiments are disabled: %v", oc.Variants)
		}
		if err := oc.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("applies variant overrides over the base", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Experiments = config.ExperimentsConfig{
			Enabled:   true,
			Variants:  []string{"control", "ai_heavy"},
			Overrides: map[string]config.MergeConfig{"ai_heavy": {AIWeight: 2}},
		}
		oc := orchestratorConfig(cfg)
		if len(oc.Variants) != 2 {
			t.Fatalf("Variants = %v", oc.Variants)
		}
		heavy, ok := oc.VariantMerge["ai_heavy"]
		if !ok {
			t.Fatal("ai_heavy merge constants missing")
		}
		if heavy.AIWeight != 2 || heavy.CatalogWeight != oc.Merge.CatalogWeight {
			t.Errorf("ai_heavy = %+v", heavy)
		}
		if _, ok := oc.VariantMerge["control"]; ok {
			t.Error("control has no overrides and should use the base constants")
		}
	})
}

func TestBuildSources(t *testing.T) {
	t.Parallel()

	p, err := buildEventPipeline(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	tests := []struct {
		name  string
		tweak func(*config.Config)
		want  []recommend.SourceKind
	}{
		{
			name: "catalog, trending and collaborative",
			want: []recommend.SourceKind{recommend.SourceCatalog, recommend.SourceTrending, recommend.SourceCollaborative},
		},
		{
			name: "nothing enabled",
			tweak: func(c *config.Config) {
				c.Catalog = config.CatalogConfig{}
				c.Collaborative.Enabled = false
			},
		},
		{
			name:  "collaborative only still loads the catalog",
			tweak: func(c *config.Config) { c.Catalog = config.CatalogConfig{} },
			want:  []recommend.SourceKind{recommend.SourceCollaborative},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			if tt.tweak != nil {
				tt.tweak(cfg)
			}
			srcs, err := buildSources(cfg, p.peers, zerolog.Nop())
			if err != nil {
				t.Fatal(err)
			}
			if len(srcs) != len(tt.want) {
				t.Fatalf("sources = %d, want %d", len(srcs), len(tt.want))
			}
			for i, src := range srcs {
				if src.Kind() != tt.want[i] {
					t.Errorf("source %d = %s, want %s", i, src.Kind(), tt.want[i])
				}
			}
		})
	}
}

func TestBuildSourcesBadSeed(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Catalog.SeedPath = "/nonexistent/seed.yaml"
	if _, err := buildSources(cfg, nil, zerolog.Nop()); err == nil {
		t.Error("expected an error for a missing seed file")
	}
}

func TestBuildEventPipeline(t *testing.T) {
	t.Parallel()

	t.Run("memory store", func(t *testing.T) {
		t.Parallel()
		p, err := buildEventPipeline(context.Background(), testConfig(), zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		defer p.Close()
		if p.badger != nil {
			t.Error("badger store opened for memory config")
		}
		if p.recorder == nil || p.analyzer == nil {
			t.Fatal("recorder or analyzer missing")
		}
		if err := readinessChecks(p)["event_store"](context.Background()); err != nil {
			t.Errorf("readiness = %v", err)
		}
	})

	t.Run("badger store", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Events.Store = "badger"
		cfg.Events.BadgerPath = t.TempDir()
		p, err := buildEventPipeline(context.Background(), cfg, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		if p.badger == nil {
			t.Fatal("badger store not opened")
		}
		check := readinessChecks(p)["event_store"]
		if err := check(context.Background()); err != nil {
			t.Errorf("readiness = %v", err)
		}
		if err := p.Close(); err != nil {
			t.Fatal(err)
		}
		if err := check(context.Background()); err == nil {
			t.Error("readiness should fail once the store is closed")
		}
	})

	t.Run("gochannel publisher", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Events.Publish = "gochannel"
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p, err := buildEventPipeline(ctx, cfg, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		if p.follower == nil {
			t.Fatal("no follower for the in-process topic")
		}
		go func() { _ = p.follower.Serve(ctx) }()

		rating := 9.0
		err = p.sink.WriteBatch(ctx, []quality.Event{{Kind: quality.KindAction, Action: &quality.UserAction{
			ID:               "a1",
			UserID:           "viewer-1",
			RecommendationID: "r1",
			ContentID:        42,
			ActionType:       quality.ActionRate,
			ActionValue:      &rating,
			Timestamp:        time.Now(),
		}}})
		if err != nil {
			t.Fatal(err)
		}

		deadline := time.Now().Add(5 * time.Second)
		for p.peers.Users() != 1 {
			if time.Now().After(deadline) {
				t.Fatalf("peer index never saw the rating, follower stats %+v", p.follower.Stats())
			}
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
		if err := p.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

func TestBuildOrchestrator(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	p, err := buildEventPipeline(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	srcs, err := buildSources(cfg, p.peers, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	orch, store, err := buildOrchestrator(cfg, srcs, p.recorder, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		t.Fatal("result cache missing")
	}
	if got := len(orch.Breakers()); got != len(srcs) {
		t.Errorf("breakers = %d, want one per provider (%d)", got, len(srcs))
	}
}

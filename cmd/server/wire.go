// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/api"
	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/llm"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/quality"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/recommend/sources"
	"github.com/tomtom215/marquee/internal/resilience"
)

// eventPipeline is everything the quality subsystem needs at runtime.
type eventPipeline struct {
	store    quality.Store
	badger   *quality.BadgerStore
	sink     quality.Sink
	peers    *quality.PeerIndex
	follower *quality.Follower // set when the peer index follows the gochannel topic
	recorder *quality.Recorder
	analyzer *quality.Analyzer
}

// Close releases the sink chain (store, peer index, publisher) after the
// recorder has drained.
func (p *eventPipeline) Close() error {
	return p.sink.Close()
}

// orchestratorConfig translates the config file sections into orchestrator
// settings. Variant merge constants are resolved once here.
func orchestratorConfig(cfg *config.Config) *recommend.Config {
	oc := recommend.DefaultConfig()
	oc.Merge = recommend.MergeConfig(cfg.Merge)
	oc.CacheTTL = recommend.CacheTTLs{
		AI:            cfg.Cache.AITTL,
		Catalog:       cfg.Cache.CatalogTTL,
		Collaborative: cfg.Cache.CollaborativeTTL,
		Trending:      cfg.Cache.TrendingTTL,
	}
	oc.SoftTimeout = cfg.Resilience.SoftTimeout
	oc.RetryAttempts = cfg.Resilience.RetryAttempts
	oc.RetryBaseDelay = cfg.Resilience.RetryBaseDelay
	oc.RetryMaxDelay = cfg.Resilience.RetryMaxDelay

	if cfg.Experiments.Enabled {
		oc.Variants = append([]string(nil), cfg.Experiments.Variants...)
		oc.VariantMerge = make(map[string]recommend.MergeConfig, len(cfg.Experiments.Overrides))
		for name := range cfg.Experiments.Overrides {
			oc.VariantMerge[name] = recommend.MergeConfig(cfg.VariantMerge(name))
		}
	}
	return oc
}

// buildEventPipeline opens the event store and publisher named by cfg and
// chains them with the peer index behind one recorder.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func buildEventPipeline(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*eventPipeline, error) {
	p := &eventPipeline{peers: quality.NewPeerIndex(cfg.Collaborative.MaxUsers, cfg.Collaborative.PeerWindow)}

	switch cfg.Events.Store {
	case "badger":
		bs, err := quality.OpenBadgerStore(cfg.Events.BadgerPath, cfg.Events.GCInterval, logger)
		if err != nil {
			return nil, err
		}
		p.store, p.badger = bs, bs
	default:
		p.store = quality.NewBoundedMemoryStore(cfg.Events.MemoryMaxEvents, cfg.Events.Retention)
	}

	sinks := quality.MultiSink{p.store}

	wmLogger := logging.NewWatermillLogger(logger)
	switch cfg.Events.Publish {
	case "gochannel":
		// The peer index follows the in-process topic instead of sitting in
		// the sink chain.
		pub, ch := quality.NewGoChannelPublisher(cfg.Events.Topic, int64(cfg.Events.QueueSize), wmLogger)
		follower, err := quality.NewFollower(ctx, ch, pub.Topic(), p.peers, logger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("events follower: %w", err), pub.Close(), sinks.Close())
		}
		p.follower = follower
		sinks = append(sinks, pub)
	case "nats":
		pub, err := quality.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Topic, wmLogger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("events publisher: %w", err), sinks.Close())
		}
		sinks = append(sinks, p.peers, pub)
	default:
		sinks = append(sinks, p.peers)
	}
	p.sink = sinks

	if cfg.Collaborative.Enabled {
		since := time.Now().Add(-cfg.Collaborative.PeerWindow)
		if err := p.peers.Warm(ctx, p.store, since); err != nil {
			logger.Warn().Err(err).Msg("Failed to warm peer index, starting empty")
		} else {
			logger.Info().Int("users", p.peers.Users()).Msg("Peer index warmed")
		}
	}

	p.recorder = quality.NewRecorder(quality.RecorderConfig{
		QueueSize:     cfg.Events.QueueSize,
		Policy:        quality.Policy(cfg.Events.Policy),
		BlockTimeout:  cfg.Events.BlockTimeout,
		BatchSize:     cfg.Events.BatchSize,
		FlushInterval: cfg.Events.FlushInterval,
	}, p.sink, p.store, logger)
	p.analyzer = quality.NewAnalyzer(p.store)
	return p, nil
}

// buildSources creates the enabled providers. The catalog is loaded whenever
// any provider needs show metadata.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func buildSources(cfg *config.Config, peers sources.PeerSource, logger zerolog.Logger) ([]recommend.Source, error) {
	var out []recommend.Source

	if cfg.AI.Enabled {
		client, err := llm.New(llm.Config{
			BaseURL:           cfg.AI.BaseURL,
			APIKey:            cfg.AI.APIKey,
			Model:             cfg.AI.Model,
			Timeout:           cfg.AI.Timeout,
			RequestsPerSecond: cfg.AI.RequestsPerSecond,
			Burst:             cfg.AI.Burst,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("ai client: %w", err)
		}
		out = append(out, sources.NewAISource(client, cfg.AI.MaxCandidates, logger))
		logger.Info().Str("model", cfg.AI.Model).Msg("AI provider enabled")
	}

	var cat *catalog.Catalog
	if cfg.Catalog.Enabled || cfg.Catalog.TrendingEnabled || cfg.Collaborative.Enabled {
		c, err := catalog.Load(cfg.Catalog.SeedPath)
		if err != nil {
			return nil, err
		}
		cat = c
		logger.Info().Int("shows", cat.Len()).Str("seed", cfg.Catalog.SeedPath).Msg("Catalog loaded")
	}

	if cfg.Catalog.Enabled {
		out = append(out, sources.NewCatalogSource(cat))
	}
	if cfg.Catalog.TrendingEnabled {
		out = append(out, sources.NewTrendingSource(cat))
	}
	if cfg.Collaborative.Enabled {
		out = append(out, sources.NewCollaborativeSource(sources.CollaborativeScorer{
			MinSimilarity: cfg.Collaborative.MinSimilarity,
			MaxPeers:      cfg.Collaborative.MaxPeers,
			Lookup:        cat,
		}, peers))
	}

	if len(out) == 0 {
		logger.Warn().Msg("No recommendation providers enabled; every response will be the emergency list")
	}
	return out, nil
}

// buildOrchestrator wires providers, breakers and the result cache.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func buildOrchestrator(cfg *config.Config, srcs []recommend.Source, sink recommend.ImpressionSink, logger zerolog.Logger) (*recommend.Orchestrator, *cache.Store, error) {
	breakers := resilience.NewRegistry(resilience.Settings{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		Cooldown:         cfg.Resilience.Cooldown,
	}, logger)

	store := cache.New(cache.Options{
		Name:          "recommendations",
		MaxEntries:    cfg.Cache.MaxEntries,
		SweepInterval: cfg.Cache.SweepInterval,
	})

	orch, err := recommend.NewOrchestrator(orchestratorConfig(cfg), breakers, store, logger, srcs,
		recommend.WithImpressionSink(sink))
	if err != nil {
		return nil, nil, err
	}
	return orch, store, nil
}

// readinessChecks probes the event store. Provider outages do not make the
// service unready; the orchestrator degrades instead.
func readinessChecks(p *eventPipeline) map[string]api.ReadinessCheck {
	return map[string]api.ReadinessCheck{
		"event_store": func(ctx context.Context) error {
			return p.store.Scan(ctx, time.Now(), func(*quality.Event) error { return nil })
		},
	}
}

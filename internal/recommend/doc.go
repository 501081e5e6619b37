// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package recommend fuses the answers of several independent recommendation
// providers into one ranked list.
//
// # Pipeline
//
// The Orchestrator sequences one request:
//
//   - Pre-merge filter of the available pool (exclusions, genre, platform,
//     rating bounds)
//   - Concurrent fan-out to every Source, each through the provider cache and
//     a resilience.Registry breaker with its fallback chain
//   - Normalize: every provider score mapped onto [0,1]
//   - Merge: deduplication by content id, provider weights, corroboration
//     blending and preference boosts (see Merger)
//   - Post-merge filter, sort, limit and ranking (see Finalize)
//   - Emergency list when nothing usable came back
//
// # Sources
//
// Four provider kinds exist: AI, catalog, collaborative and trending. A
// SourceSet records which of them voted for a recommendation. Concrete
// providers live in the sources subpackage and are registered at
// construction:
//
//	orch, err := recommend.NewOrchestrator(cfg, breakers, store, logger,
//	    []recommend.Source{aiSource, catalogSource, collabSource, trendingSource},
//	    recommend.WithImpressionSink(recorder))
//
//	resp, err := orch.Recommend(ctx, recommend.Request{
//	    UserProfile:    profile,
//	    AvailableShows: pool,
//	    Filters:        recommend.FilterSpec{Limit: 10},
//	})
//
// # Tuning
//
// Every merge constant lives in MergeConfig. Experiment variants carry their
// own MergeConfig; requests that do not name a variant are bucketed by user.
//
// # Thread Safety
//
// Orchestrator and Merger are safe for concurrent use. Provider failures are
// contained: Recommend returns an error only for invalid requests or a
// canceled context.
package recommend

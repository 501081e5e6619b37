// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package quality records what users were shown and how they reacted, and turns
those logs into per-source and per-variant quality measurements.

# Event Logs

Two append-only logs are kept:
  - RecommendationEvent: one per recommendation in a response (an impression)
  - UserAction: a reaction (view, add_watchlist, watch, rate, dismiss, ignore)
    to exactly one earlier impression, identified by recommendation id and
    content id

# Recording

Recorder implements recommend.ImpressionSink. Events are placed on a bounded
queue and written in batches by Serve, which runs under the supervisor. When
the queue is full the configured policy applies:

  - drop_oldest (default): the oldest queued event is discarded
  - block: the caller waits up to BlockTimeout, then the new event is discarded

Drops are counted in marquee_events_dropped_total.

# Sinks

Batches go to a Sink. Available implementations:

  - MemoryStore: in-process log, used for tests and ephemeral deployments
  - BadgerStore: durable log in BadgerDB with time-ordered keys
  - Publisher: forwards events to a watermill publisher (gochannel or NATS)
  - PeerIndex: folds rate actions into per-user ratings for collaborative
    filtering
  - MultiSink: fans a batch out to several sinks

# Analysis

Analyzer.Snapshot computes click-through, watchlist, watch and dismiss rates,
average rating, diversity, session success and the combined quality score
for a source and/or variant over a time window. Analyzer.CompareVariants runs
an A/B comparison against a baseline variant.
*/
package quality

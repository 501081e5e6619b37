// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package main is the entry point for the Marquee server.
//
// Marquee fans a recommendation request out to several providers (an AI
// language model, a content catalog, a collaborative filter and a trending
// feed), fuses their answers into one ranked list and records what users did
// with it so providers and experiment variants can be compared.
//
// # Startup
//
//  1. Configuration: defaults, config.yaml, then environment (koanf v2)
//  2. Logging: zerolog, bridged to slog for the supervisor
//  3. Providers: AI client, catalog seed, peer index
//  4. Orchestrator: breakers, result cache, merge constants and variants
//  5. Quality pipeline: event store (memory or badger), optional watermill
//     publisher (gochannel or NATS), recorder and analyzer
//  6. HTTP API: chi router with CORS, rate limits and Prometheus metrics
//  7. Supervisor tree: every long-running component runs under suture
//
// # Configuration
//
// Every key can be set in config.yaml; the common ones also have environment
// variables, for example:
//
//	HTTP_PORT=8080
//	AI_ENABLED=true
//	AI_API_KEY=sk-...
//	EVENTS_STORE=badger
//	EVENTS_BADGER_PATH=/data/events
//	EVENTS_PUBLISH=nats
//	NATS_URL=nats://localhost:4222
//
// # Signals
//
// SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains for
// up to server.shutdown_timeout, the recorder flushes its queue, and the event
// store and publisher are closed last.
package main

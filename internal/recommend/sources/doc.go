// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package sources provides the four recommendation providers the
// orchestrator fans out to:
//
//   - AISource: asks a Completer to score the pool; falls back to a genre
//     and rating heuristic
//   - CatalogSource: discovery through a Discoverer; falls back to scoring
//     the request pool
//   - TrendingSource: a TrendingFeed; falls back to the most popular pool items
//   - CollaborativeSource: the CollaborativeScorer over peers from a
//     PeerSource; falls back to genre alignment alone
//
// Each provider talks to its collaborator through a narrow interface. The
// orchestrator wraps every call in a circuit breaker, so providers return
// errors wrapping resilience.ErrSourceUnavailable or
// resilience.ErrSourceMalformedResponse rather than handling failure
// themselves.
package sources

// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package services adapts components whose lifecycle is not already a
// context-aware Serve method to suture.Service.
//
// Most Marquee components (cache.Store, quality.Recorder, quality.BadgerStore,
// quality.PeerIndex, quality.Follower) implement Serve directly and are added
// to the tree as-is. HTTPServerService binds the API listener and runs the
// drain-then-shutdown sequence of net/http.
package services

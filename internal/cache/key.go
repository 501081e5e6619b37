// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package cache

import (
	"crypto/sha256"
	"fmt"

	"github.com/goccy/go-json"
)

// GenerateKey creates a cache key from a method name and parameters. Equal
// parameters always produce the same key; map keys are serialized in sorted
// order.
func GenerateKey(method string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, params)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", method, hash[:16])
}

// AnonymousPrefix scopes entries cached for requests without a user id.
const AnonymousPrefix = "anon/"

// UserKey scopes a provider key to a user so that InvalidatePrefix(UserPrefix(id))
// drops everything cached on that user's behalf. An empty userID keys under
// AnonymousPrefix.
//
//	key := cache.UserKey(profile.UserID, "ai", []any{prefsFingerprint, filterFingerprint})
func UserKey(userID, provider string, params interface{}) string {
	return UserPrefix(userID) + GenerateKey(provider, params)
}

// UserPrefix returns the key prefix shared by all of a user's entries. The id
// is hashed, so no user's prefix is a prefix of another's and no real id
// collides with the anonymous scope.
func UserPrefix(userID string) string {
	if userID == "" {
		return AnonymousPrefix
	}
	hash := sha256.Sum256([]byte(userID))
	return fmt.Sprintf("u/%x/", hash[:16])
}

// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "test-model", Timeout: 5 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCompleteSuccess(t *testing.T) {
	t.Parallel()

	requests := make(chan chatRequest, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		requests <- req
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"recommendations\":[]}"},"finish_reason":"stop"}]}`))
	}, nil)

	text, err := c.Complete(context.Background(), "score these shows")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != `{"recommendations":[]}` {
		t.Errorf("text = %q", text)
	}
	got := <-requests
	if got.Model != "test-model" || len(got.Messages) != 2 || got.Messages[1].Content != "score these shows" {
		t.Errorf("request = %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("roles = %s, %s", got.Messages[0].Role, got.Messages[1].Role)
	}
	if c.Model() != "test-model" {
		t.Errorf("Model() = %q", c.Model())
	}
}

func TestCompleteErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, resilience.ErrSourceUnavailable},
		{"throttled", http.StatusTooManyRequests, `slow down`, resilience.ErrSourceUnavailable},
		{"api error", http.StatusOK, `{"error":{"type":"invalid_request","message":"bad model"}}`, resilience.ErrSourceUnavailable},
		{"not json", http.StatusOK, `<html>`, resilience.ErrSourceMalformedResponse},
		{"no choices", http.StatusOK, `{"id":"x","choices":[]}`, ErrEmptyCompletion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			if _, err := c.Complete(context.Background(), "p"); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompleteCanceled(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"x"}}]}`))
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Complete(ctx, "p"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}, func(cfg *Config) {
		cfg.RequestsPerSecond = 0.01
		cfg.Burst = 1
	})

	if _, err := c.Complete(context.Background(), "first"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, "second"); !errors.Is(err, resilience.ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server calls = %d, want 1", n)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Model: "m"}, zerolog.Nop()); err == nil {
		t.Error("missing base URL should fail")
	}
	if _, err := New(Config{BaseURL: "http://x"}, zerolog.Nop()); err == nil {
		t.Error("missing model should fail")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"short body untouched", "bad request", len("bad request")},
		{"ascii cut at limit", strings.Repeat("x", maxErrorBody+10), maxErrorBody},
		// 511 ASCII bytes then a 3-byte rune that straddles the limit.
		{"rune across limit", strings.Repeat("x", maxErrorBody-1) + strings.Repeat("€", 4), maxErrorBody - 1},
		{"all multibyte", strings.Repeat("日本", 200), maxErrorBody - maxErrorBody%3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.TrimSuffix(truncate([]byte(tt.body)), "...")
			if !utf8.ValidString(got) {
				t.Fatalf("truncate produced invalid UTF-8: %q", got[len(got)-4:])
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

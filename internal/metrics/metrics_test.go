// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// TestRecordAPIRequest tests API request metric recording
func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/recommendations", "200"))

	RecordAPIRequest("POST", "/api/v1/recommendations", "200", 25*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/recommendations", "200"))
	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

// TestTrackActiveRequest_RequestLifecycle simulates a request lifecycle
func TestTrackActiveRequest_RequestLifecycle(t *testing.T) {
	start := testutil.ToFloat64(APIActiveRequests)

	for i := 0; i < 10; i++ {
		TrackActiveRequest(true)
	}
	if got := testutil.ToFloat64(APIActiveRequests) - start; got != 10 {
		t.Errorf("active requests = %v, want 10", got)
	}

	for i := 0; i < 10; i++ {
		TrackActiveRequest(false)
	}
	if got := testutil.ToFloat64(APIActiveRequests); got != start {
		t.Errorf("active requests = %v, want %v", got, start)
	}
}

func TestRecordRecommendation(t *testing.T) {
	tests := []struct {
		name    string
		variant string
		label   string
		outcome string
	}{
		{"named variant", "bold", "bold", "ok"},
		{"empty variant maps to default", "", "default", "emergency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := RecommendRequests.WithLabelValues(tt.label, tt.outcome)
			before := testutil.ToFloat64(counter)

			RecordRecommendation(tt.variant, tt.outcome, 10, 40*time.Millisecond)

			if got := testutil.ToFloat64(counter) - before; got != 1 {
				t.Errorf("counter delta = %v, want 1", got)
			}
		})
	}
}

func TestRecordSource(t *testing.T) {
	counter := SourceOutcomes.WithLabelValues("collaborative", "fallback")
	before := testutil.ToFloat64(counter)

	RecordSource("collaborative", "fallback", 3*time.Millisecond)

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
}

func TestRecordAICompletion(t *testing.T) {
	ok := AICompletions.WithLabelValues("test-model", "success")
	failed := AICompletions.WithLabelValues("test-model", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	RecordAICompletion("test-model", nil, time.Second)
	RecordAICompletion("test-model", errors.New("timeout"), time.Second)

	if testutil.ToFloat64(ok)-okBefore != 1 {
		t.Error("expected one successful completion")
	}
	if testutil.ToFloat64(failed)-failedBefore != 1 {
		t.Error("expected one failed completion")
	}
}

func TestSetQualityScore(t *testing.T) {
	SetQualityScore("", "", 0.4525)
	if got := testutil.ToFloat64(QualityScore.WithLabelValues("all", "all")); got != 0.4525 {
		t.Errorf("quality score = %v, want 0.4525", got)
	}

	SetQualityScore("ai", "control", 0.61)
	if got := testutil.ToFloat64(QualityScore.WithLabelValues("ai", "control")); got != 0.61 {
		t.Errorf("quality score = %v, want 0.61", got)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	cbName := "source.ai"

	// 0=closed, 1=half-open, 2=open
	CircuitBreakerState.WithLabelValues(cbName).Set(2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues(cbName)); got != 2 {
		t.Errorf("state = %v, want 2", got)
	}

	CircuitBreakerRequests.WithLabelValues(cbName, "rejected").Inc()
	CircuitBreakerConsecutiveFailures.WithLabelValues(cbName).Set(5)
	CircuitBreakerTransitions.WithLabelValues(cbName, "closed", "open").Inc()
}

func TestConcurrentMetricRecording(t *testing.T) {
	var wg sync.WaitGroup
	numGoroutines := 50

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				RecordSource("trending", "primary", time.Duration(j)*time.Millisecond)
				RecordAPIRequest("GET", "/api/v1/quality", "200", time.Millisecond)
				TrackActiveRequest(true)
				TrackActiveRequest(false)
				EventsDropped.WithLabelValues("drop_oldest").Inc()
			}
		}()
	}
	wg.Wait()
}

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		APIRequestsTotal,
		APIRequestDuration,
		APIActiveRequests,
		RecommendRequests,
		RecommendDuration,
		RecommendResults,
		SourceDuration,
		SourceOutcomes,
		CacheHits,
		CacheMisses,
		CacheSize,
		CacheEvictions,
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerConsecutiveFailures,
		CircuitBreakerTransitions,
		FallbackInvocations,
		EventQueueDepth,
		EventsDropped,
		EventsWritten,
		EventWriteErrors,
		EventFlushDuration,
		QualityScore,
		AICompletions,
		AICompletionDuration,
	}

	for _, m := range collectors {
		ch := make(chan *prometheus.Desc, 10)
		m.Describe(ch)
		close(ch)

		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("metric has no descriptors")
		}
	}
}

// TestMetricGathering tests that metrics can be gathered using testutil
func TestMetricGathering(t *testing.T) {
	RecordAPIRequest("GET", "/test", "200", time.Millisecond)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Logf("Lint errors (may be expected): %v", err)
	}
	for _, p := range problems {
		t.Logf("Metric lint problem: %s", p.Text)
	}
}

// TestQualityScoreGaugeLabels reads the gauge through the client model to
// check the label defaults applied by SetQualityScore.
func TestQualityScoreGaugeLabels(t *testing.T) {
	SetQualityScore("trending", "", 0.25)

	var m dto.Metric
	if err := QualityScore.WithLabelValues("trending", "all").Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 0.25 {
		t.Errorf("gauge = %v, want 0.25", got)
	}
	labels := make(map[string]string)
	for _, lp := range m.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	if labels["source"] != "trending" || labels["variant"] != "all" {
		t.Errorf("labels = %v", labels)
	}
}

func BenchmarkRecordSource(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordSource("ai", "primary", 10*time.Millisecond)
	}
}

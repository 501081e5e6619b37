// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/resilience"
)

// ErrInvalidRequest is returned by Recommend for requests it cannot serve.
// Provider failures never produce an error.
var ErrInvalidRequest = errors.New("invalid recommendation request")

// Served values in outcomes and metrics besides resilience.ServedByPrimary.
const (
	servedCache  = "cache"
	servedFailed = "failed"
)

// SourceRequest is what each provider sees of a request.
type SourceRequest struct {
	RequestID string
	Profile   UserProfile
	Filters   FilterSpec

	// Pool is the available pool after pre-merge filtering.
	Pool []ContentSummary

	// Exclude holds ids that must not be recommended.
	Exclude map[int64]struct{}

	// Limit is the clamped number of results the caller wants.
	Limit int
}

// Source is one recommendation provider.
type Source interface {
	Kind() SourceKind
	Recommend(ctx context.Context, req *SourceRequest) ([]Candidate, error)
}

// FallbackSource is implemented by providers that can degrade instead of
// failing. Fallbacks run in order after the primary is skipped or fails.
type FallbackSource interface {
	Fallbacks(req *SourceRequest) []resilience.Fallback[[]Candidate]
}

// ModelSource is implemented by providers backed by a named model.
type ModelSource interface {
	Model() string
}

// ImpressionBatch is the list shown to a user by one request.
type ImpressionBatch struct {
	RequestID       string
	UserID          string
	Variant         string
	Model           string
	Emergency       bool
	Recommendations []MergedRecommendation
	Timestamp       time.Time
}

// ImpressionSink receives impressions. Implementations must not block.
type ImpressionSink interface {
	RecordImpressions(ctx context.Context, batch ImpressionBatch)
}

// Request is the orchestrator input.
type Request struct {
	UserProfile    UserProfile      `json:"userProfile"`
	AvailableShows []ContentSummary `json:"availableShows" validate:"dive"`
	ExcludeShows   []int64          `json:"excludeShows,omitempty"`
	Filters        FilterSpec       `json:"filters"`

	// Variant pins the experiment variant; empty lets the orchestrator assign one.
	Variant string `json:"variant,omitempty" validate:"omitempty,max=64"`
}

// Validate checks the request for values no provider could serve.
func (r *Request) Validate() error {
	f := &r.Filters
	if f.Limit < 0 {
		return fmt.Errorf("%w: limit must be non-negative, got %d", ErrInvalidRequest, f.Limit)
	}
	if f.MinRating != nil && (*f.MinRating < 0 || *f.MinRating > 10) {
		return fmt.Errorf("%w: minRating must be in [0, 10]", ErrInvalidRequest)
	}
	if f.MaxRating != nil && (*f.MaxRating < 0 || *f.MaxRating > 10) {
		return fmt.Errorf("%w: maxRating must be in [0, 10]", ErrInvalidRequest)
	}
	if f.MinRating != nil && f.MaxRating != nil && *f.MinRating > *f.MaxRating {
		return fmt.Errorf("%w: minRating %.1f exceeds maxRating %.1f", ErrInvalidRequest, *f.MinRating, *f.MaxRating)
	}
	switch f.SortBy {
	case "", SortByScore, SortByRating, SortByPopularity, SortByYear:
	default:
		return fmt.Errorf("%w: unknown sortBy %q", ErrInvalidRequest, f.SortBy)
	}
	return nil
}

// SourceCounts counts the returned recommendations each provider voted for.
type SourceCounts struct {
	AI            int `json:"ai"`
	Catalog       int `json:"catalog"`
	Trending      int `json:"trending"`
	Collaborative int `json:"collaborative"`
}

// PerformanceMetrics describe how one request was served.
type PerformanceMetrics struct {
	TotalDurationMs       float64            `json:"totalDurationMs"`
	PerProviderDurationMs map[string]float64 `json:"perProviderDurationMs"`

	// CacheHit is true when at least one provider answered from the cache.
	CacheHit        bool     `json:"cacheHit"`
	CachedSources   []string `json:"cachedSources"`
	DegradedSources []string `json:"degradedSources"`
	FailedSources   []string `json:"failedSources"`
	Emergency       bool     `json:"emergency"`
}

// Response is the orchestrator output.
type Response struct {
	Success bool `json:"success"`

	// AI is true when the AI provider answered from its primary path.
	AI    bool   `json:"ai"`
	Model string `json:"model,omitempty"`

	Recommendations      []MergedRecommendation `json:"recommendations"`
	Confidence           float64                `json:"confidence"`
	Sources              SourceCounts           `json:"sources"`
	TotalRecommendations int                    `json:"totalRecommendations"`

	PerformanceMetrics  PerformanceMetrics  `json:"performanceMetrics"`
	IntelligenceMetrics IntelligenceMetrics `json:"intelligenceMetrics"`

	RequestID string `json:"requestId"`
	Variant   string `json:"variant,omitempty"`
}

// SourceStats counts how one provider has been served since start.
type SourceStats struct {
	Cached   int64 `json:"cached"`
	Primary  int64 `json:"primary"`
	Degraded int64 `json:"degraded"`
	Failed   int64 `json:"failed"`
}

// Stats is a snapshot of orchestrator counters.
type Stats struct {
	Requests  int64                  `json:"requests"`
	Emergency int64                  `json:"emergency"`
	Sources   map[string]SourceStats `json:"sources"`
	Cache     cache.Stats            `json:"cache"`
}

type sourceCounters struct {
	cached, primary, degraded, failed atomic.Int64
}

type sourceOutcome struct {
	kind       SourceKind
	candidates []Candidate
	served     string
	degraded   bool
	err        error
	duration   time.Duration
}

// Orchestrator fans a request out to every registered provider, merges
// their answers and measures the result. It is safe for concurrent use.
type Orchestrator struct {
	cfg    *Config
	logger zerolog.Logger

	sources  []Source
	breakers *resilience.Registry
	cache    *cache.Store
	sink     ImpressionSink
	retry    resilience.RetryPolicy
	now      func() time.Time

	requestCount   atomic.Int64
	emergencyCount atomic.Int64
	sourceStats    map[SourceKind]*sourceCounters
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithImpressionSink records every response's recommendations to sink.
func WithImpressionSink(sink ImpressionSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithClock replaces time.Now for intelligence metrics.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator over sources. At most one source
// per SourceKind may be registered; breakers and store are owned by the
// caller so tests can inspect and reset them.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewOrchestrator(cfg *Config, breakers *resilience.Registry, store *cache.Store, logger zerolog.Logger, sources []Source, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if breakers == nil {
		return nil, errors.New("breaker registry is required")
	}
	if store == nil {
		return nil, errors.New("cache store is required")
	}

	o := &Orchestrator{
		cfg:         cfg.Clone(),
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		breakers:    breakers,
		cache:       store,
		now:         time.Now,
		sourceStats: make(map[SourceKind]*sourceCounters, numSourceKinds),
	}
	o.retry = o.cfg.retryPolicy()

	for _, src := range sources {
		kind := src.Kind()
		if !kind.Valid() {
			return nil, fmt.Errorf("source has invalid kind %d", uint8(kind))
		}
		if _, dup := o.sourceStats[kind]; dup {
			return nil, fmt.Errorf("duplicate source %s", kind)
		}
		o.sourceStats[kind] = &sourceCounters{}
		o.sources = append(o.sources, src)
		breakers.Register(BreakerName(kind))
		o.logger.Info().Str("source", kind.String()).Msg("registered source")
	}

	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Recommend serves one request. Provider failures degrade the answer but
// never fail it: when nothing usable comes back the emergency list is
// returned. Errors are returned only for invalid requests or when ctx ends.
//
//nolint:gocritic // hugeParam: Request is decoded once per call
func (o *Orchestrator) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	o.requestCount.Add(1)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	variant := o.assignVariant(req.Variant, req.UserProfile.UserID)
	mergeCfg := o.cfg.MergeFor(variant)
	limit := mergeCfg.ClampLimit(req.Filters.Limit)

	profile := req.UserProfile
	profile.Exclude = append(append([]int64(nil), profile.Exclude...), req.ExcludeShows...)
	exclude := profile.ExcludeSet()

	filter := NewFilter(&req.Filters, &profile, exclude)
	pool := filter.Pool(req.AvailableShows)

	sreq := &SourceRequest{
		RequestID: requestID,
		Profile:   profile,
		Filters:   req.Filters,
		Pool:      pool,
		Exclude:   exclude,
		Limit:     limit,
	}

	log := o.logger.With().Str("request_id", requestID).Str("variant", variant).Logger()
	log.Debug().Int("pool", len(pool)).Int("limit", limit).Msg("fanning out")

	outcomes := o.fanOut(ctx, sreq)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := make(map[int64]ContentSummary, len(req.AvailableShows))
	for _, c := range req.AvailableShows {
		content[c.ID] = c
	}

	resp := &Response{
		Success:   true,
		RequestID: requestID,
		Variant:   variant,
		PerformanceMetrics: PerformanceMetrics{
			PerProviderDurationMs: make(map[string]float64, len(outcomes)),
			CachedSources:         []string{},
			DegradedSources:       []string{},
			FailedSources:         []string{},
		},
	}

	byProvider := make(map[SourceKind][]NormalizedCandidate, len(outcomes))
	answered := 0
	var degraded SourceSet
	for _, out := range outcomes {
		name := out.kind.String()
		pm := &resp.PerformanceMetrics
		pm.PerProviderDurationMs[name] = durationMs(out.duration)

		switch {
		case out.err != nil:
			pm.FailedSources = append(pm.FailedSources, name)
			log.Warn().Err(out.err).Str("source", name).Msg("source failed")
			continue
		case out.served == servedCache:
			pm.CacheHit = true
			pm.CachedSources = append(pm.CachedSources, name)
			answered++
		case out.degraded:
			pm.DegradedSources = append(pm.DegradedSources, name)
			degraded.Add(out.kind)
		default:
			answered++
		}

		if out.kind == SourceAI && !out.degraded {
			resp.AI = true
		}
		for i := range out.candidates {
			if c := out.candidates[i].Content; c != nil {
				if _, known := content[c.ID]; !known {
					content[c.ID] = *c
				}
			}
		}
		byProvider[out.kind] = NormalizeWith(out.candidates, out.kind, mergeCfg.TrendingRecencyBonus)
	}

	if resp.AI {
		for _, src := range o.sources {
			if ms, ok := src.(ModelSource); ok && src.Kind() == SourceAI {
				resp.Model = ms.Model()
			}
		}
	}

	merged := NewMerger(mergeCfg).Merge(MergeInput{
		ByProvider: byProvider,
		Profile:    profile,
		Filters:    req.Filters,
		Content:    content,
		Degraded:   degraded,
	})
	recs := Finalize(filter.Merged(merged), req.Filters.SortBy, limit)

	if len(recs) == 0 {
		recs = EmergencyList(pool, exclude, limit)
		resp.PerformanceMetrics.Emergency = true
		resp.AI = false
		resp.Model = ""
		o.emergencyCount.Add(1)
		log.Warn().
			Strs("failed", resp.PerformanceMetrics.FailedSources).
			Int("results", len(recs)).
			Msg("no usable recommendations, serving emergency list")
	}

	resp.Recommendations = recs
	resp.TotalRecommendations = len(recs)
	resp.Sources = countSources(recs)
	resp.Confidence = Confidence(recs, answered, len(o.sources))
	resp.IntelligenceMetrics = Intelligence(recs, o.now())

	elapsed := time.Since(start)
	resp.PerformanceMetrics.TotalDurationMs = durationMs(elapsed)

	outcome := "ok"
	if resp.PerformanceMetrics.Emergency {
		outcome = "emergency"
	}
	metrics.RecordRecommendation(variant, outcome, len(recs), elapsed)

	if o.sink != nil {
		o.sink.RecordImpressions(ctx, ImpressionBatch{
			RequestID:       requestID,
			UserID:          profile.UserID,
			Variant:         variant,
			Model:           resp.Model,
			Emergency:       resp.PerformanceMetrics.Emergency,
			Recommendations: append([]MergedRecommendation(nil), recs...),
			Timestamp:       o.now(),
		})
	}

	log.Info().
		Int("results", len(recs)).
		Bool("cache_hit", resp.PerformanceMetrics.CacheHit).
		Dur("duration", elapsed).
		Msg("recommendations served")

	return resp, nil
}

// fanOut runs every source concurrently and waits for all of them. A
// failing source never cancels the others.
func (o *Orchestrator) fanOut(ctx context.Context, req *SourceRequest) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(o.sources))

	var g errgroup.Group
	for i, src := range o.sources {
		g.Go(func() error {
			outcomes[i] = o.runSource(ctx, src, req)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// runSource answers from the cache when possible, otherwise calls the
// provider through its breaker and fallback chain. Only primary answers are
// cached.
func (o *Orchestrator) runSource(ctx context.Context, src Source, req *SourceRequest) sourceOutcome {
	start := time.Now()
	kind := src.Kind()
	out := sourceOutcome{kind: kind}
	stats := o.sourceStats[kind]

	ttl := o.cfg.CacheTTL.For(kind)
	key := o.cacheKey(kind, req)
	if ttl > 0 {
		if v, ok := o.cache.Get(key); ok {
			if cands, ok := v.([]Candidate); ok {
				out.candidates = cands
				out.served = servedCache
				out.duration = time.Since(start)
				stats.cached.Add(1)
				metrics.RecordSource(kind.String(), servedCache, out.duration)
				return out
			}
		}
	}

	call := resilience.Call[[]Candidate]{
		Name: BreakerName(kind),
		Primary: func(ctx context.Context) ([]Candidate, error) {
			return src.Recommend(ctx, req)
		},
		Retry:       o.retry,
		SoftTimeout: o.cfg.SoftTimeout,
	}
	if fs, ok := src.(FallbackSource); ok {
		call.Fallbacks = fs.Fallbacks(req)
	}

	res, err := resilience.Execute(ctx, o.breakers, call)
	out.duration = time.Since(start)

	switch {
	case err != nil:
		out.err = err
		out.served = servedFailed
		stats.failed.Add(1)
	case res.Degraded:
		out.candidates = res.Value
		out.served = res.Served
		out.degraded = true
		stats.degraded.Add(1)
	default:
		out.candidates = res.Value
		out.served = resilience.ServedByPrimary
		stats.primary.Add(1)
		if ttl > 0 {
			o.cache.Put(key, res.Value, ttl)
		}
	}

	outcome := out.served
	if out.degraded {
		outcome = "degraded"
	}
	metrics.RecordSource(kind.String(), outcome, out.duration)
	return out
}

// cacheKey fingerprints everything a provider's answer depends on. The
// variant is left out: it only changes how answers are merged.
func (o *Orchestrator) cacheKey(kind SourceKind, req *SourceRequest) string {
	poolIDs := make([]int64, len(req.Pool))
	for i := range req.Pool {
		poolIDs[i] = req.Pool[i].ID
	}
	excluded := make([]int64, 0, len(req.Exclude))
	for id := range req.Exclude {
		excluded = append(excluded, id)
	}
	sort.Slice(excluded, func(i, j int) bool { return excluded[i] < excluded[j] })

	return cache.UserKey(req.Profile.UserID, kind.String(), []any{req.Profile, req.Filters, req.Limit, poolIDs, excluded})
}

// assignVariant keeps an explicit variant and otherwise buckets the user
// into one of the configured variants by a stable hash.
func (o *Orchestrator) assignVariant(requested, userID string) string {
	if requested != "" {
		return requested
	}
	if len(o.cfg.Variants) == 0 {
		return ""
	}
	if userID == "" {
		return o.cfg.Variants[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return o.cfg.Variants[h.Sum32()%uint32(len(o.cfg.Variants))] //nolint:gosec // len is small and positive
}

// Stats returns a snapshot of orchestrator counters.
func (o *Orchestrator) Stats() Stats {
	st := Stats{
		Requests:  o.requestCount.Load(),
		Emergency: o.emergencyCount.Load(),
		Sources:   make(map[string]SourceStats, len(o.sourceStats)),
		Cache:     o.cache.Stats(),
	}
	for kind, c := range o.sourceStats {
		st.Sources[kind.String()] = SourceStats{
			Cached:   c.cached.Load(),
			Primary:  c.primary.Load(),
			Degraded: c.degraded.Load(),
			Failed:   c.failed.Load(),
		}
	}
	return st
}

// Breakers returns the status of every provider breaker used so far.
func (o *Orchestrator) Breakers() []resilience.BreakerStatus {
	return o.breakers.Snapshot()
}

// ResetBreaker resets the breaker for name, given either as a breaker name
// ("source.ai") or a provider name ("ai").
func (o *Orchestrator) ResetBreaker(name string) bool {
	if !strings.Contains(name, ".") {
		if kind, err := ParseSourceKind(name); err == nil {
			name = BreakerName(kind)
		}
	}
	return o.breakers.Reset(name)
}

// InvalidateCache drops cached provider answers for userID, or every entry
// when userID is empty. It returns the number of entries removed.
func (o *Orchestrator) InvalidateCache(userID string) int {
	if userID == "" {
		n := o.cache.Len()
		o.cache.Clear()
		o.logger.Info().Int("entries", n).Msg("cache cleared")
		return n
	}
	n := o.cache.InvalidatePrefix(cache.UserPrefix(userID))
	o.logger.Info().Str("user_id", userID).Int("entries", n).Msg("user cache invalidated")
	return n
}

// BreakerName is the resilience operation name used for a provider.
func BreakerName(kind SourceKind) string {
	return "source." + kind.String()
}

func countSources(recs []MergedRecommendation) SourceCounts {
	var sc SourceCounts
	for i := range recs {
		s := recs[i].Sources
		if s.Has(SourceAI) {
			sc.AI++
		}
		if s.Has(SourceCatalog) {
			sc.Catalog++
		}
		if s.Has(SourceTrending) {
			sc.Trending++
		}
		if s.Has(SourceCollaborative) {
			sc.Collaborative++
		}
	}
	return sc
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

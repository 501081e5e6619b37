// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package quality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

// DefaultWindow is used when a query names no window.
const DefaultWindow = 24 * time.Hour

// SignificanceThreshold is the relative quality difference a variant must
// exceed over the baseline to be declared the winner.
const SignificanceThreshold = 0.05

// TieWinner is reported when neither variant wins.
const TieWinner = "tie"

// DefaultVariant names requests served without an experiment variant.
const DefaultVariant = "default"

// ErrInvalidQuery is returned for queries naming an unknown source.
var ErrInvalidQuery = errors.New("quality: invalid query")

// Query selects the impressions a snapshot covers. Empty Source and Variant
// match everything.
type Query struct {
	Source  string
	Variant string
	Window  time.Duration
}

// QualitySnapshot aggregates engagement over a window. All rates are in
// [0,1]; AvgRating is on the 0..10 scale.
type QualitySnapshot struct {
	Source               string    `json:"source,omitempty"`
	Variant              string    `json:"variant,omitempty"`
	Window               string    `json:"window"`
	From                 time.Time `json:"from"`
	To                   time.Time `json:"to"`
	TotalRecommendations int       `json:"totalRecommendations"`
	Users                int       `json:"users"`
	ClickThroughRate     float64   `json:"clickThroughRate"`
	AddToWatchlistRate   float64   `json:"addToWatchlistRate"`
	WatchRate            float64   `json:"watchRate"`
	DismissRate          float64   `json:"dismissRate"`
	AvgRating            float64   `json:"avgRating"`
	QualityScore         float64   `json:"qualityScore"`
	DiversityScore       float64   `json:"diversityScore"`
	SessionSuccess       float64   `json:"sessionSuccess"`
}

// VariantComparison is the outcome of an A/B comparison. B is the baseline.
type VariantComparison struct {
	VariantA           string          `json:"variantA"`
	VariantB           string          `json:"variantB"`
	A                  QualitySnapshot `json:"a"`
	B                  QualitySnapshot `json:"b"`
	RelativeDifference float64         `json:"relativeDifference"`
	Winner             string          `json:"winner"`
	Significant        bool            `json:"significant"`
	Insights           []string        `json:"insights"`
}

// QualityScore combines engagement rates into one number:
// 0.15*CTR + 0.25*addRate + 0.35*watchRate + 0.20*(avgRating/10) + 0.05*(1-dismissRate).
func QualityScore(ctr, addRate, watchRate, avgRating, dismissRate float64) float64 {
	return 0.15*ctr + 0.25*addRate + 0.35*watchRate + 0.20*(avgRating/10) + 0.05*(1-dismissRate)
}

// Analyzer computes snapshots from the event logs on demand.
type Analyzer struct {
	reader Reader
	now    func() time.Time
}

// NewAnalyzer creates an analyzer over r.
func NewAnalyzer(r Reader) *Analyzer {
	return &Analyzer{reader: r, now: time.Now}
}

type impressionStats struct {
	userID    string
	engaged   bool
	added     bool
	watched   bool
	dismissed bool
}

// Snapshot aggregates the impressions matching q and the actions taken on
// them. It also updates the quality score gauge.
func (a *Analyzer) Snapshot(ctx context.Context, q Query) (QualitySnapshot, error) {
	var kind recommend.SourceKind
	if q.Source != "" {
		k, err := recommend.ParseSourceKind(q.Source)
		if err != nil {
			return QualitySnapshot{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
		kind = k
	}
	if q.Window <= 0 {
		q.Window = DefaultWindow
	}

	to := a.now()
	from := to.Add(-q.Window)

	impressions := make(map[string]*impressionStats)
	var actions []*UserAction
	err := a.reader.Scan(ctx, from, func(e *Event) error {
		switch {
		case e.Recommendation != nil:
			rec := e.Recommendation
			if q.Source != "" && rec.Source != kind {
				return nil
			}
			if !variantMatches(q.Variant, rec.Variant) {
				return nil
			}
			impressions[impressionKey(rec.RecommendationID, rec.ContentID)] = &impressionStats{userID: rec.UserID}
		case e.Action != nil:
			actions = append(actions, e.Action)
		}
		return nil
	})
	if err != nil {
		return QualitySnapshot{}, fmt.Errorf("scan events: %w", err)
	}

	snap := QualitySnapshot{
		Source:  q.Source,
		Variant: q.Variant,
		Window:  q.Window.String(),
		From:    from,
		To:      to,
	}

	var ratingSum float64
	var ratingCount int
	for _, act := range actions {
		st, ok := impressions[impressionKey(act.RecommendationID, act.ContentID)]
		if !ok {
			continue
		}
		switch act.ActionType {
		case ActionAddWatchlist:
			st.added = true
		case ActionWatch:
			st.watched = true
		case ActionDismiss:
			st.dismissed = true
		case ActionRate:
			if act.ActionValue != nil {
				ratingSum += *act.ActionValue
				ratingCount++
			}
		}
		if act.ActionType.Engaged() {
			st.engaged = true
		}
	}

	total := len(impressions)
	snap.TotalRecommendations = total
	if total == 0 {
		return snap, nil
	}

	var engaged, added, watched, dismissed int
	contents := make(map[string]struct{}, total)
	shown := make(map[string]struct{})
	succeeded := make(map[string]struct{})
	for key, st := range impressions {
		contents[contentPart(key)] = struct{}{}
		shown[st.userID] = struct{}{}
		if st.engaged {
			engaged++
		}
		if st.added {
			added++
		}
		if st.watched {
			watched++
		}
		if st.dismissed {
			dismissed++
		}
	}
	for _, act := range actions {
		if !act.ActionType.Positive() {
			continue
		}
		if st, ok := impressions[impressionKey(act.RecommendationID, act.ContentID)]; ok {
			succeeded[st.userID] = struct{}{}
		}
	}

	n := float64(total)
	snap.Users = len(shown)
	snap.ClickThroughRate = float64(engaged) / n
	snap.AddToWatchlistRate = float64(added) / n
	snap.WatchRate = float64(watched) / n
	snap.DismissRate = float64(dismissed) / n
	if ratingCount > 0 {
		snap.AvgRating = ratingSum / float64(ratingCount)
	}
	snap.DiversityScore = float64(len(contents)) / n
	snap.SessionSuccess = float64(len(succeeded)) / float64(len(shown))
	snap.QualityScore = QualityScore(snap.ClickThroughRate, snap.AddToWatchlistRate, snap.WatchRate, snap.AvgRating, snap.DismissRate)

	metrics.SetQualityScore(q.Source, q.Variant, snap.QualityScore)
	return snap, nil
}

// CompareVariants snapshots variants a and b over window. A wins when its
// quality score beats the baseline b by more than SignificanceThreshold
// relative to b, and b wins in the mirror case; otherwise it is a tie.
func (a *Analyzer) CompareVariants(ctx context.Context, variantA, variantB string, window time.Duration) (VariantComparison, error) {
	sa, err := a.Snapshot(ctx, Query{Variant: variantA, Window: window})
	if err != nil {
		return VariantComparison{}, err
	}
	sb, err := a.Snapshot(ctx, Query{Variant: variantB, Window: window})
	if err != nil {
		return VariantComparison{}, err
	}
	return Compare(variantA, variantB, sa, sb), nil
}

// Compare decides the winner between two snapshots with b as the baseline.
//
//nolint:gocritic // hugeParam: snapshots are copied into the result
func Compare(variantA, variantB string, a, b QualitySnapshot) VariantComparison {
	cmp := VariantComparison{VariantA: variantA, VariantB: variantB, A: a, B: b, Winner: TieWinner}

	switch {
	case b.QualityScore > 0:
		cmp.RelativeDifference = (a.QualityScore - b.QualityScore) / b.QualityScore
	case a.QualityScore > 0:
		// No baseline signal; any positive score is a full improvement.
		cmp.RelativeDifference = 1
	}

	if math.Abs(cmp.RelativeDifference) > SignificanceThreshold {
		cmp.Significant = true
		if cmp.RelativeDifference > 0 {
			cmp.Winner = variantA
		} else {
			cmp.Winner = variantB
		}
	}

	cmp.Insights = []string{
		fmt.Sprintf("CTR: %s %.1f%% vs %s %.1f%% (%+.1f pts)",
			variantA, a.ClickThroughRate*100, variantB, b.ClickThroughRate*100, (a.ClickThroughRate-b.ClickThroughRate)*100),
		fmt.Sprintf("Average rating: %s %.2f vs %s %.2f (%+.2f)",
			variantA, a.AvgRating, variantB, b.AvgRating, a.AvgRating-b.AvgRating),
		fmt.Sprintf("Diversity: %s %.2f vs %s %.2f (%+.2f)",
			variantA, a.DiversityScore, variantB, b.DiversityScore, a.DiversityScore-b.DiversityScore),
		fmt.Sprintf("Session success: %s %.1f%% vs %s %.1f%% (%+.1f pts)",
			variantA, a.SessionSuccess*100, variantB, b.SessionSuccess*100, (a.SessionSuccess-b.SessionSuccess)*100),
	}
	return cmp
}

func variantMatches(want, got string) bool {
	switch want {
	case "":
		return true
	case DefaultVariant:
		return got == "" || got == DefaultVariant
	default:
		return got == want
	}
}

// contentPart returns the content id portion of an impression key.
func contentPart(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}

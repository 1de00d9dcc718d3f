package pivot

import (
	"math"
	"testing"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

func points(metrics []map[string]float64) []domain.TrajectoryPoint {
	out := make([]domain.TrajectoryPoint, len(metrics))
	for i, m := range metrics {
		out[i] = domain.TrajectoryPoint{
			Date:       time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Metrics:    m,
			Confidence: 0.8,
		}
	}
	return out
}

func recsOfType(recs []domain.PivotRecommendation, rt domain.RecommendationType) []domain.PivotRecommendation {
	out := []domain.PivotRecommendation{}
	for _, r := range recs {
		if r.Type == rt {
			out = append(out, r)
		}
	}
	return out
}

func TestBudgetReallocationMovesFromWeakToStrongChannel(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	ctx := Context{
		Trajectory: points([]map[string]float64{
			{"roi_google": 5.0, "roi_facebook": 1.0},
			{"roi_google": 5.0, "roi_facebook": 1.0},
		}),
		Dataset: domain.EnrichedDataset{
			Budget: map[string]domain.ChannelBudget{
				"google":   {Allocated: 2000, Spent: 1000},
				"facebook": {Allocated: 2000, Spent: 1000},
			},
		},
	}
	recs := e.Generate(ctx, Options{})
	realloc := recsOfType(recs, domain.PivotBudgetReallocation)
	if len(realloc) != 1 {
		t.Fatalf("expected one reallocation, got %d", len(realloc))
	}
	r := realloc[0]
	if r.Impact.Metric != "roi" {
		t.Fatalf("expected roi impact, got %s", r.Impact.Metric)
	}
	// $600 (30% of $2000) moving against a 400% ROI gap, scaled by 15% of
	// total budget, lands at 60%.
	if math.Abs(r.Impact.ImprovementPct-60) > 0.5 {
		t.Fatalf("expected ~60%% improvement, got %v", r.Impact.ImprovementPct)
	}
	if r.Plan.Description != "Move $600 from facebook to google" {
		t.Fatalf("unexpected plan: %q", r.Plan.Description)
	}
}

func TestBudgetReallocationSkipsBalancedChannels(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	ctx := Context{
		Trajectory: points([]map[string]float64{
			{"roi_google": 3.0, "roi_facebook": 2.9},
		}),
		Dataset: domain.EnrichedDataset{
			Budget: map[string]domain.ChannelBudget{
				"google":   {Allocated: 1000, Spent: 500},
				"facebook": {Allocated: 1000, Spent: 500},
			},
		},
	}
	recs := e.Generate(ctx, Options{})
	if realloc := recsOfType(recs, domain.PivotBudgetReallocation); len(realloc) != 0 {
		t.Fatalf("near-equal ROI should not trigger reallocation, got %v", realloc)
	}
}

func TestCreativeRefreshTriggeredByFatigueRisk(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	ctx := Context{
		Risks: []domain.RiskAlert{{Type: domain.RiskAudienceFatigue, Severity: domain.SeverityHigh}},
		Dataset: domain.EnrichedDataset{
			Creatives: []domain.CreativeAsset{
				{AssetID: "a", EngagementScore: 0.2},
				{AssetID: "b", EngagementScore: 0.8},
			},
		},
	}
	recs := e.Generate(ctx, Options{})
	refresh := recsOfType(recs, domain.PivotCreativeRefresh)
	if len(refresh) != 1 {
		t.Fatalf("expected creative refresh, got %d", len(refresh))
	}
	// One indicator plus half the creatives underperforming: 15 + 5 + 5.
	if math.Abs(refresh[0].Impact.ImprovementPct-25) > 0.5 {
		t.Fatalf("expected ~25%% impact, got %v", refresh[0].Impact.ImprovementPct)
	}
}

func TestAudienceExpansionOnSaturation(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	ctx := Context{
		Trajectory: points([]map[string]float64{
			{"impressions": 1000, "reach": 500},
			{"impressions": 1200, "reach": 500},
			{"impressions": 1400, "reach": 500},
		}),
		Dataset: domain.EnrichedDataset{
			Audience: domain.AudienceInsights{
				TotalReach:  50000,
				AgeRangeMin: 25,
				AgeRangeMax: 34,
			},
		},
	}
	recs := e.Generate(ctx, Options{})
	expansion := recsOfType(recs, domain.PivotAudienceExpansion)
	if len(expansion) != 1 {
		t.Fatalf("expected audience expansion, got %d", len(expansion))
	}
	if expansion[0].Impact.Metric != "reach" {
		t.Fatalf("expected reach impact, got %s", expansion[0].Impact.Metric)
	}
}

func TestNoAudienceExpansionWhenReachGrows(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	ctx := Context{
		Trajectory: points([]map[string]float64{
			{"impressions": 1000, "reach": 500},
			{"impressions": 1200, "reach": 600},
			{"impressions": 1400, "reach": 700},
		}),
	}
	recs := e.Generate(ctx, Options{})
	if expansion := recsOfType(recs, domain.PivotAudienceExpansion); len(expansion) != 0 {
		t.Fatalf("growing reach should not trigger expansion, got %v", expansion)
	}
}

func TestChannelShiftSuggestsCheaperSuitableChannels(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	ctx := Context{
		Trajectory: points([]map[string]float64{
			{"cpc": 3.0},
			{"cpc": 3.0},
		}),
		Dataset: domain.EnrichedDataset{
			Campaign: domain.Campaign{
				Category: "gaming",
				Channels: []string{"google"},
			},
		},
	}
	recs := e.Generate(ctx, Options{MaxRecommendations: 10})
	shifts := recsOfType(recs, domain.PivotChannelShift)
	if len(shifts) != 2 {
		t.Fatalf("channel shifts are capped at 2, got %d", len(shifts))
	}
	for _, s := range shifts {
		if s.Plan.Description == "" || len(s.Plan.Steps) == 0 {
			t.Fatalf("channel shift should carry an implementation plan")
		}
		if s.Impact.ImprovementPct > 30 {
			t.Fatalf("channel shift impact should cap at 30, got %v", s.Impact.ImprovementPct)
		}
	}
}

func TestTimingAdjustmentNeedsHourlySignal(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	traj := []domain.TrajectoryPoint{
		{Date: base.Add(9 * time.Hour), Metrics: map[string]float64{"engagement": 0.9}},
		{Date: base.Add(12 * time.Hour), Metrics: map[string]float64{"engagement": 0.7}},
		{Date: base.Add(18 * time.Hour), Metrics: map[string]float64{"engagement": 0.8}},
		{Date: base.Add(22 * time.Hour), Metrics: map[string]float64{"engagement": 0.2}},
	}
	recs := e.Generate(Context{Trajectory: traj}, Options{})
	timing := recsOfType(recs, domain.PivotTimingAdjustment)
	if len(timing) != 1 {
		t.Fatalf("expected timing adjustment, got %d", len(timing))
	}

	// Daily points all share hour zero, so no adjustment is possible.
	recs = e.Generate(Context{Trajectory: points([]map[string]float64{
		{"engagement": 0.9}, {"engagement": 0.7}, {"engagement": 0.8},
	})}, Options{})
	if timing := recsOfType(recs, domain.PivotTimingAdjustment); len(timing) != 0 {
		t.Fatalf("single-hour trajectory should not trigger timing adjustment")
	}
}

func TestTimingAdjustmentSkippedWhenScheduleAlreadyCoversPeaks(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	traj := []domain.TrajectoryPoint{
		{Date: base.Add(9 * time.Hour), Metrics: map[string]float64{"engagement": 0.9}},
		{Date: base.Add(12 * time.Hour), Metrics: map[string]float64{"engagement": 0.7}},
		{Date: base.Add(18 * time.Hour), Metrics: map[string]float64{"engagement": 0.8}},
	}
	ctx := Context{
		Trajectory: traj,
		Dataset: domain.EnrichedDataset{
			Campaign: domain.Campaign{ScheduleHours: []int{9, 18}},
		},
	}
	recs := e.Generate(ctx, Options{})
	if timing := recsOfType(recs, domain.PivotTimingAdjustment); len(timing) != 0 {
		t.Fatalf("schedule already covering two peak hours should suppress the adjustment")
	}
}

func TestGenerateRanksCapsAndPreviews(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	ctx := Context{
		Trajectory: points([]map[string]float64{
			{"cpc": 3.0, "roi_google": 5.0, "roi_facebook": 1.0, "ctr": 0.03},
			{"cpc": 3.0, "roi_google": 5.0, "roi_facebook": 1.0, "ctr": 0.03},
		}),
		Risks: []domain.RiskAlert{{Type: domain.RiskAudienceFatigue}},
		Dataset: domain.EnrichedDataset{
			Campaign: domain.Campaign{Category: "ecommerce", Channels: []string{"google"}},
			Budget: map[string]domain.ChannelBudget{
				"google":   {Allocated: 2000, Spent: 1000},
				"facebook": {Allocated: 2000, Spent: 1000},
			},
		},
	}
	recs := e.Generate(ctx, Options{
		MaxRecommendations:   2,
		PrioritizeHighImpact: true,
		IncludePreviews:      true,
	})
	if len(recs) != 2 {
		t.Fatalf("expected results capped at 2, got %d", len(recs))
	}
	if recs[0].Impact.ImprovementPct < recs[1].Impact.ImprovementPct {
		t.Fatalf("high-impact ranking violated: %v before %v",
			recs[0].Impact.ImprovementPct, recs[1].Impact.ImprovementPct)
	}
	for _, r := range recs {
		if len(r.Preview) != len(ctx.Trajectory) {
			t.Fatalf("preview should mirror the base trajectory length")
		}
	}
	mult := 1 + recs[0].Impact.ImprovementPct/100
	want := ctx.Trajectory[0].Metrics["ctr"] * mult
	if got := recs[0].Preview[0].Metrics["ctr"]; math.Abs(got-want) > 1e-9 {
		t.Fatalf("preview should scale metrics by the improvement: got %v, want %v", got, want)
	}
}

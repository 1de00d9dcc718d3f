package pivot

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/forecast"
)

const (
	maxReallocationShare = 0.30
	maxReallocationUSD   = 1000.0
	minROIImprovementPct = 5.0
)

type channelStats struct {
	Channel string
	ROI     float64
	CPC     float64
	CTR     float64
	Budget  domain.ChannelBudget
}

// channelPerformance derives per-channel ROI/CPC/CTR. Channel-qualified
// metrics in the trajectory (e.g. "roi_google") win; otherwise the aggregate
// metric is scaled by the channel's spend efficiency so uneven pacing still
// separates the channels.
func (e *Engine) channelPerformance(ctx Context) []channelStats {
	aggregate := func(metric string) float64 {
		values := forecast.MetricSeries(ctx.Trajectory, metric)
		if len(values) == 0 {
			return 0
		}
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	}

	channelMetric := func(channel, metric string) float64 {
		qualified := metric + "_" + strings.ToLower(channel)
		if values := forecast.MetricSeries(ctx.Trajectory, qualified); len(values) > 0 {
			sum := 0.0
			for _, v := range values {
				sum += v
			}
			return sum / float64(len(values))
		}
		base := aggregate(metric)
		budget := ctx.Dataset.Budget[channel]
		if budget.Spent > 0 && budget.Allocated > 0 {
			efficiency := math.Min(2, budget.Allocated/budget.Spent)
			return base * efficiency
		}
		return base
	}

	stats := make([]channelStats, 0, len(ctx.Dataset.Budget))
	for channel, budget := range ctx.Dataset.Budget {
		stats = append(stats, channelStats{
			Channel: channel,
			ROI:     channelMetric(channel, "roi"),
			CPC:     channelMetric(channel, "cpc"),
			CTR:     channelMetric(channel, "ctr"),
			Budget:  budget,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Channel < stats[j].Channel })
	return stats
}

func (e *Engine) budgetReallocations(ctx Context) []domain.PivotRecommendation {
	stats := e.channelPerformance(ctx)
	if len(stats) < 2 {
		return nil
	}
	avgROI := 0.0
	for _, s := range stats {
		avgROI += s.ROI
	}
	avgROI /= float64(len(stats))
	if avgROI <= 0 {
		return nil
	}

	var under, over []channelStats
	for _, s := range stats {
		switch {
		case s.ROI < avgROI*0.8:
			under = append(under, s)
		case s.ROI > avgROI*1.2:
			over = append(over, s)
		}
	}
	if len(under) == 0 || len(over) == 0 {
		return nil
	}
	sort.Slice(over, func(i, j int) bool { return over[i].ROI > over[j].ROI })
	target := over[0]

	var recs []domain.PivotRecommendation
	for _, src := range under {
		moved := math.Min(src.Budget.Allocated*maxReallocationShare, maxReallocationUSD)
		if moved <= 0 {
			continue
		}
		improvement := (target.ROI - src.ROI) / src.ROI * 100
		if src.ROI <= 0 {
			improvement = 100
		}
		// Scale by the share of total budget actually moving.
		totalAllocated := 0.0
		for _, s := range stats {
			totalAllocated += s.Budget.Allocated
		}
		if totalAllocated > 0 {
			improvement *= moved / totalAllocated
		}
		if improvement <= minROIImprovementPct {
			continue
		}
		recs = append(recs, domain.PivotRecommendation{
			Type:     domain.PivotBudgetReallocation,
			Priority: int(clamp(60+improvement, 0, 100)),
			Impact: domain.ImpactEstimate{
				Metric:         "roi",
				ImprovementPct: round1(improvement),
				Confidence:     0.7,
			},
			Plan: domain.ImplementationPlan{
				Description: fmt.Sprintf("Move $%.0f from %s to %s", moved, src.Channel, target.Channel),
				Steps: []string{
					fmt.Sprintf("Reduce %s daily budget by $%.0f total", src.Channel, moved),
					fmt.Sprintf("Increase %s budget by the same amount", target.Channel),
					"Hold for one attribution window and compare blended ROI",
				},
				Effort:   domain.EffortLow,
				Timeline: "1-3 days",
			},
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Impact.ImprovementPct > recs[j].Impact.ImprovementPct
	})
	if len(recs) > 3 {
		recs = recs[:3]
	}
	return recs
}

func (e *Engine) creativeRefresh(ctx Context) (domain.PivotRecommendation, bool) {
	indicators := 0
	if hasRisk(ctx.Risks, domain.RiskAudienceFatigue) {
		indicators++
	}
	if trend, ok := e.trends.Composite(ctx.Trajectory, []string{"engagement", "ctr"}); ok && trend.Direction == forecast.DirectionDecreasing {
		indicators++
	}
	impressions, iOK := e.trends.Metric(ctx.Trajectory, "impressions")
	reach, rOK := e.trends.Metric(ctx.Trajectory, "reach")
	if iOK && rOK && impressions.Direction == forecast.DirectionIncreasing && reach.Direction != forecast.DirectionIncreasing {
		indicators++
	}
	if indicators == 0 {
		return domain.PivotRecommendation{}, false
	}

	underperforming := 0
	for _, c := range ctx.Dataset.Creatives {
		if c.EngagementScore < 0.4 {
			underperforming++
		}
	}
	underRatio := 0.0
	if len(ctx.Dataset.Creatives) > 0 {
		underRatio = float64(underperforming) / float64(len(ctx.Dataset.Creatives))
	}

	impact := clamp(15+5*float64(indicators)+10*underRatio, 0, 40)
	return domain.PivotRecommendation{
		Type:     domain.PivotCreativeRefresh,
		Priority: int(clamp(55+10*float64(indicators), 0, 100)),
		Impact: domain.ImpactEstimate{
			Metric:         "engagement",
			ImprovementPct: round1(impact),
			Confidence:     clamp(0.6+0.05*float64(indicators), 0, 0.9),
		},
		Plan: domain.ImplementationPlan{
			Description: fmt.Sprintf("Refresh creatives; %d fatigue indicator(s) detected", indicators),
			Steps: []string{
				"Pause the lowest-engagement creative variants",
				"Produce 2-3 new variants with distinct hooks",
				"A/B the new variants against the current best performer",
			},
			Effort:   domain.EffortMedium,
			Timeline: "1-2 weeks",
		},
	}, true
}

func (e *Engine) audienceExpansion(ctx Context) (domain.PivotRecommendation, bool) {
	impressions, iOK := e.trends.Metric(ctx.Trajectory, "impressions")
	reach, rOK := e.trends.Metric(ctx.Trajectory, "reach")
	saturated := iOK && rOK &&
		impressions.Direction == forecast.DirectionIncreasing &&
		reach.Direction == forecast.DirectionStable
	if !saturated {
		return domain.PivotRecommendation{}, false
	}

	audience := ctx.Dataset.Audience
	steps := []string{
		fmt.Sprintf("Widen the age band from %d-%d to %d-%d",
			audience.AgeRangeMin, audience.AgeRangeMax,
			maxInt(audience.AgeRangeMin-5, 13), audience.AgeRangeMax+5),
		"Build a 1-3% lookalike from current converters",
	}
	if len(audience.Locations) > 0 {
		steps = append(steps, fmt.Sprintf("Test adjacent locations to %s", strings.Join(audience.Locations, ", ")))
	}

	// Heuristic size estimate: a 5-year band each way plus lookalikes adds
	// roughly a fifth of current reach.
	estimatedNewReach := float64(audience.TotalReach) * 0.2
	impact := clamp(8+estimatedNewReach/math.Max(1, float64(audience.TotalReach))*25, 0, 20)

	return domain.PivotRecommendation{
		Type:     domain.PivotAudienceExpansion,
		Priority: 50,
		Impact: domain.ImpactEstimate{
			Metric:         "reach",
			ImprovementPct: round1(impact),
			Confidence:     0.65,
		},
		Plan: domain.ImplementationPlan{
			Description: "Audience saturation detected: impressions grow while reach is flat",
			Steps:       steps,
			Effort:      domain.EffortMedium,
			Timeline:    "3-7 days",
		},
	}, true
}

// channelCatalog holds the CPC and reach heuristics used to score channels a
// campaign is not yet running on.
var channelCatalog = map[string]struct {
	EstimatedCPC   float64
	EstimatedReach float64
}{
	"google":    {EstimatedCPC: 2.10, EstimatedReach: 0.9},
	"facebook":  {EstimatedCPC: 1.20, EstimatedReach: 0.85},
	"instagram": {EstimatedCPC: 1.35, EstimatedReach: 0.8},
	"tiktok":    {EstimatedCPC: 0.95, EstimatedReach: 0.75},
	"youtube":   {EstimatedCPC: 1.80, EstimatedReach: 0.7},
	"linkedin":  {EstimatedCPC: 5.30, EstimatedReach: 0.4},
	"twitter":   {EstimatedCPC: 1.50, EstimatedReach: 0.5},
}

// channelSuitability scores channel fit by campaign category.
var channelSuitability = map[string]map[string]float64{
	"gaming":    {"tiktok": 0.9, "youtube": 0.85, "twitter": 0.7, "instagram": 0.6, "facebook": 0.5, "google": 0.6, "linkedin": 0.1},
	"beauty":    {"instagram": 0.95, "tiktok": 0.9, "youtube": 0.7, "facebook": 0.6, "google": 0.5, "twitter": 0.3, "linkedin": 0.1},
	"b2b":       {"linkedin": 0.95, "google": 0.8, "twitter": 0.5, "youtube": 0.4, "facebook": 0.3, "instagram": 0.2, "tiktok": 0.1},
	"ecommerce": {"google": 0.9, "facebook": 0.85, "instagram": 0.8, "tiktok": 0.7, "youtube": 0.6, "twitter": 0.4, "linkedin": 0.2},
}

func (e *Engine) channelShifts(ctx Context) []domain.PivotRecommendation {
	current := map[string]bool{}
	for _, c := range ctx.Dataset.Campaign.Channels {
		current[strings.ToLower(c)] = true
	}

	currentCPC := 0.0
	if values := forecast.MetricSeries(ctx.Trajectory, "cpc"); len(values) > 0 {
		for _, v := range values {
			currentCPC += v
		}
		currentCPC /= float64(len(values))
	}

	suitability := channelSuitability[strings.ToLower(ctx.Dataset.Campaign.Category)]

	var recs []domain.PivotRecommendation
	for channel, est := range channelCatalog {
		if current[channel] {
			continue
		}
		fit := 0.5
		if suitability != nil {
			fit = suitability[channel]
		}
		cpcImprovement := 0.0
		if currentCPC > 0 && est.EstimatedCPC < currentCPC {
			cpcImprovement = (currentCPC - est.EstimatedCPC) / currentCPC * 100
		}
		impact := clamp(0.7*cpcImprovement+0.3*fit*100*0.3, 0, 30)
		if impact <= 0 {
			continue
		}
		recs = append(recs, domain.PivotRecommendation{
			Type:     domain.PivotChannelShift,
			Priority: int(clamp(40+fit*30, 0, 100)),
			Impact: domain.ImpactEstimate{
				Metric:         "cpc",
				ImprovementPct: round1(impact),
				Confidence:     clamp(0.5+fit*0.3, 0, 0.85),
			},
			Plan: domain.ImplementationPlan{
				Description: fmt.Sprintf("Test %s (est. CPC $%.2f, category fit %.0f%%)", channel, est.EstimatedCPC, fit*100),
				Steps: []string{
					fmt.Sprintf("Allocate a 10%% test budget to %s", channel),
					"Mirror the best-performing creative format",
					"Compare CPC and CTR after 7 days before scaling",
				},
				Effort:   domain.EffortHigh,
				Timeline: "2-4 weeks",
			},
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Impact.ImprovementPct > recs[j].Impact.ImprovementPct
	})
	if len(recs) > 2 {
		recs = recs[:2]
	}
	return recs
}

func (e *Engine) timingAdjustment(ctx Context) (domain.PivotRecommendation, bool) {
	buckets := map[int]float64{}
	counts := map[int]int{}
	for _, p := range ctx.Trajectory {
		hour := p.Date.Hour()
		score := 0.0
		n := 0
		for _, m := range []string{"engagement", "ctr"} {
			if v, ok := p.Metrics[m]; ok {
				score += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		buckets[hour] += score / float64(n)
		counts[hour]++
	}
	if len(buckets) < 3 {
		return domain.PivotRecommendation{}, false
	}

	type hourScore struct {
		Hour  int
		Score float64
	}
	scores := make([]hourScore, 0, len(buckets))
	for hour, total := range buckets {
		scores = append(scores, hourScore{Hour: hour, Score: total / float64(counts[hour])})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	top := scores[:3]

	scheduled := map[int]bool{}
	for _, h := range ctx.Dataset.Campaign.ScheduleHours {
		scheduled[h] = true
	}
	overlap := 0
	topHours := make([]string, 0, 3)
	for _, hs := range top {
		if scheduled[hs.Hour] {
			overlap++
		}
		topHours = append(topHours, fmt.Sprintf("%02d:00", hs.Hour))
	}
	if overlap >= 2 {
		return domain.PivotRecommendation{}, false
	}

	return domain.PivotRecommendation{
		Type:     domain.PivotTimingAdjustment,
		Priority: 35,
		Impact: domain.ImpactEstimate{
			Metric:         "engagement",
			ImprovementPct: 8,
			Confidence:     0.6,
		},
		Plan: domain.ImplementationPlan{
			Description: fmt.Sprintf("Shift delivery toward peak hours %s", strings.Join(topHours, ", ")),
			Steps: []string{
				"Enable dayparting on all active ad sets",
				fmt.Sprintf("Weight delivery toward %s", strings.Join(topHours, ", ")),
				"Review hourly performance after one week",
			},
			Effort:   domain.EffortLow,
			Timeline: "1-2 days",
		},
	}, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package risk

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/forecast"
)

type Config struct {
	// DipThreshold is the relative decline that triggers a performance dip.
	DipThreshold float64
	// FatigueThreshold is the composite engagement decline that triggers
	// audience fatigue.
	FatigueThreshold float64
	// CompetitorSlopeThreshold is the per-competitor activity slope above
	// which an increasing trend becomes a threat.
	CompetitorSlopeThreshold float64
	// OverrunProbabilityThreshold gates budget-overrun alerts.
	OverrunProbabilityThreshold float64
	// ConfidenceThreshold filters emitted alerts.
	ConfidenceThreshold float64
	// ConfidenceFloor keeps triggered alerts at or above this confidence.
	// Deliberately recall-biased: early warning beats precision here.
	ConfidenceFloor float64
}

func (c Config) withDefaults() Config {
	if c.DipThreshold <= 0 {
		c.DipThreshold = 0.15
	}
	if c.FatigueThreshold <= 0 {
		c.FatigueThreshold = 0.12
	}
	if c.CompetitorSlopeThreshold <= 0 {
		c.CompetitorSlopeThreshold = 0.25
	}
	if c.OverrunProbabilityThreshold <= 0 {
		c.OverrunProbabilityThreshold = 0.1
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = 0.6
	}
	return c
}

// Detector flags adverse patterns in a predicted trajectory using trend
// analysis over the trajectory and the campaign dataset.
type Detector struct {
	cfg    Config
	trends *forecast.Analyzer
	logger *slog.Logger
}

func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg.withDefaults(), trends: forecast.NewAnalyzer(), logger: logger}
}

var engagementMetrics = []string{"engagement", "ctr"}

// Detect runs all four analyzers, filters by confidence, and orders alerts by
// severity, then impact, then probability, all descending.
func (d *Detector) Detect(trajectory []domain.TrajectoryPoint, dataset domain.EnrichedDataset, now time.Time) []domain.RiskAlert {
	var alerts []domain.RiskAlert
	alerts = append(alerts, d.performanceDips(trajectory)...)
	if alert, ok := d.audienceFatigue(trajectory); ok {
		alerts = append(alerts, alert)
	}
	alerts = append(alerts, d.competitorThreats(dataset.Market.CompetitorActivity)...)
	if alert, ok := d.budgetOverrun(dataset.Campaign, now); ok {
		alerts = append(alerts, alert)
	}

	filtered := alerts[:0]
	for _, a := range alerts {
		if a.Confidence >= d.cfg.ConfidenceThreshold {
			filtered = append(filtered, a)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Severity.Rank() != filtered[j].Severity.Rank() {
			return filtered[i].Severity.Rank() > filtered[j].Severity.Rank()
		}
		if filtered[i].ImpactScore != filtered[j].ImpactScore {
			return filtered[i].ImpactScore > filtered[j].ImpactScore
		}
		return filtered[i].Probability > filtered[j].Probability
	})
	return filtered
}

func (d *Detector) performanceDips(trajectory []domain.TrajectoryPoint) []domain.RiskAlert {
	if len(trajectory) < 2 {
		return nil
	}
	metrics := map[string]bool{}
	for _, p := range trajectory {
		for m := range p.Metrics {
			metrics[m] = true
		}
	}

	var alerts []domain.RiskAlert
	for metric := range metrics {
		trend, ok := d.trends.Metric(trajectory, metric)
		if !ok || trend.Direction != forecast.DirectionDecreasing {
			continue
		}
		decline := -trend.ChangePct
		if decline < d.cfg.DipThreshold {
			continue
		}
		ratio := decline / d.cfg.DipThreshold
		alerts = append(alerts, domain.RiskAlert{
			Type:        domain.RiskPerformanceDip,
			Severity:    severityForRatio(ratio),
			Probability: clamp(0.4+0.15*ratio, 0.1, 0.95),
			ImpactScore: clamp(decline*200, 0, 100),
			Window:      domain.DateRange{Start: trajectory[0].Date, End: trajectory[len(trajectory)-1].Date},
			Metric:      metric,
			Description: fmt.Sprintf("%s is projected to decline %.0f%% over the simulation window", metric, decline*100),
			Recommendations: []string{
				fmt.Sprintf("Review targeting and bids for %s before the decline compounds", metric),
				"Refresh the lowest-performing creatives",
				"Consider reallocating budget toward stronger channels",
			},
			Confidence: d.floored(trend.RSquared),
		})
	}
	return alerts
}

func (d *Detector) audienceFatigue(trajectory []domain.TrajectoryPoint) (domain.RiskAlert, bool) {
	trend, ok := d.trends.Composite(trajectory, engagementMetrics)
	if !ok || trend.Direction != forecast.DirectionDecreasing {
		return domain.RiskAlert{}, false
	}
	decline := -trend.ChangePct
	if decline < d.cfg.FatigueThreshold {
		return domain.RiskAlert{}, false
	}
	ratio := decline / d.cfg.FatigueThreshold
	return domain.RiskAlert{
		Type:        domain.RiskAudienceFatigue,
		Severity:    severityForRatio(ratio),
		Probability: clamp(0.45+0.15*ratio, 0.1, 0.95),
		ImpactScore: clamp(decline*180, 0, 100),
		Window:      domain.DateRange{Start: trajectory[0].Date, End: trajectory[len(trajectory)-1].Date},
		Description: fmt.Sprintf("Composite engagement is projected to decline %.0f%%, a typical fatigue signature", decline*100),
		Recommendations: []string{
			"Rotate in fresh creative variants",
			"Lower frequency caps on the most-saturated segments",
			"Expand to adjacent audiences to relieve saturation",
		},
		Confidence: d.floored(trend.RSquared),
	}, true
}

func (d *Detector) competitorThreats(records []domain.CompetitorRecord) []domain.RiskAlert {
	if len(records) == 0 {
		return nil
	}
	grouped := map[string][]domain.CompetitorRecord{}
	for _, r := range records {
		grouped[r.Competitor] = append(grouped[r.Competitor], r)
	}

	var alerts []domain.RiskAlert
	for competitor, recs := range grouped {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })
		values := make([]float64, len(recs))
		for i, r := range recs {
			values[i] = r.Value
		}
		trend := d.trends.Series(values)
		if trend.Direction != forecast.DirectionIncreasing || math.Abs(trend.Slope) <= d.cfg.CompetitorSlopeThreshold {
			continue
		}
		ratio := math.Abs(trend.Slope) / d.cfg.CompetitorSlopeThreshold
		alerts = append(alerts, domain.RiskAlert{
			Type:        domain.RiskCompetitorThreat,
			Severity:    severityForRatio(ratio),
			Probability: clamp(0.4+0.1*ratio, 0.1, 0.9),
			ImpactScore: clamp(35+15*ratio, 0, 100),
			Window:      domain.DateRange{Start: recs[0].Date, End: recs[len(recs)-1].Date},
			Description: fmt.Sprintf("%s activity is accelerating (slope %.2f per period)", competitor, trend.Slope),
			Recommendations: []string{
				fmt.Sprintf("Monitor %s positioning and share-of-voice weekly", competitor),
				"Protect branded search terms with defensive bids",
				"Differentiate messaging on contested segments",
			},
			Confidence: d.floored(trend.RSquared),
		})
	}
	return alerts
}

func (d *Detector) budgetOverrun(campaign domain.Campaign, now time.Time) (domain.RiskAlert, bool) {
	if campaign.TotalBudget <= 0 || campaign.SpentBudget <= 0 {
		return domain.RiskAlert{}, false
	}
	elapsed := campaign.ElapsedDays(now)
	remaining := campaign.RemainingDays(now)
	dailyRate := campaign.SpentBudget / float64(elapsed)
	projected := campaign.SpentBudget + dailyRate*float64(remaining)
	overrun := projected - campaign.TotalBudget
	if overrun <= 0 {
		return domain.RiskAlert{}, false
	}
	probability := math.Min(0.9, overrun/campaign.TotalBudget)
	if probability <= d.cfg.OverrunProbabilityThreshold {
		return domain.RiskAlert{}, false
	}
	ratio := overrun / campaign.TotalBudget / 0.1
	return domain.RiskAlert{
		Type:        domain.RiskBudgetOverrun,
		Severity:    severityForRatio(ratio),
		Probability: probability,
		ImpactScore: clamp(overrun/campaign.TotalBudget*250, 0, 100),
		Window:      domain.DateRange{Start: now, End: campaign.EndDate},
		Description: fmt.Sprintf("Current spend rate of %.2f/day projects %.0f total against a %.0f budget", dailyRate, projected, campaign.TotalBudget),
		Recommendations: []string{
			"Cap daily spend on the highest-burn channels",
			"Shift remaining budget toward the best-ROI channel",
			"Re-pace delivery for the remaining campaign days",
		},
		Confidence: d.floored(0.7),
	}, true
}

func (d *Detector) floored(confidence float64) float64 {
	if confidence < d.cfg.ConfidenceFloor {
		return d.cfg.ConfidenceFloor
	}
	return clamp(confidence, 0, 0.99)
}

// severityForRatio buckets how far past its threshold a signal landed.
func severityForRatio(ratio float64) domain.RiskSeverity {
	switch {
	case ratio >= 3:
		return domain.SeverityCritical
	case ratio >= 2:
		return domain.SeverityHigh
	case ratio >= 1.5:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
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

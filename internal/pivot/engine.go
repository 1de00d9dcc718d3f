package pivot

import (
	"log/slog"
	"sort"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/forecast"
)

type Options struct {
	MaxRecommendations   int
	MinImpactPct         float64
	MinConfidence        float64
	PrioritizeHighImpact bool
	// IncludePreviews generates simulated preview trajectories. Off by
	// default; previews are built lazily because most callers never read them.
	IncludePreviews bool
}

func (o Options) withDefaults() Options {
	if o.MaxRecommendations <= 0 {
		o.MaxRecommendations = 5
	}
	if o.MinImpactPct <= 0 {
		o.MinImpactPct = 5
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = 0.6
	}
	return o
}

// Context carries everything the generators read: the merged trajectory, the
// detected risks, and the campaign dataset.
type Context struct {
	Trajectory []domain.TrajectoryPoint
	Risks      []domain.RiskAlert
	Dataset    domain.EnrichedDataset
}

// Engine turns risks, trajectory, and campaign data into ranked, actionable
// pivot recommendations.
type Engine struct {
	trends *forecast.Analyzer
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{trends: forecast.NewAnalyzer(), logger: logger}
}

// Generate runs every generator, filters by impact and confidence, ranks, and
// caps the result set.
func (e *Engine) Generate(ctx Context, opts Options) []domain.PivotRecommendation {
	opts = opts.withDefaults()

	var recs []domain.PivotRecommendation
	recs = append(recs, e.budgetReallocations(ctx)...)
	if rec, ok := e.creativeRefresh(ctx); ok {
		recs = append(recs, rec)
	}
	if rec, ok := e.audienceExpansion(ctx); ok {
		recs = append(recs, rec)
	}
	recs = append(recs, e.channelShifts(ctx)...)
	if rec, ok := e.timingAdjustment(ctx); ok {
		recs = append(recs, rec)
	}

	filtered := recs[:0]
	for _, r := range recs {
		if r.Impact.ImprovementPct >= opts.MinImpactPct && r.Impact.Confidence >= opts.MinConfidence {
			filtered = append(filtered, r)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if opts.PrioritizeHighImpact {
			if filtered[i].Impact.ImprovementPct != filtered[j].Impact.ImprovementPct {
				return filtered[i].Impact.ImprovementPct > filtered[j].Impact.ImprovementPct
			}
			return filtered[i].Priority > filtered[j].Priority
		}
		if filtered[i].Priority != filtered[j].Priority {
			return filtered[i].Priority > filtered[j].Priority
		}
		return filtered[i].Impact.ImprovementPct > filtered[j].Impact.ImprovementPct
	})

	if len(filtered) > opts.MaxRecommendations {
		filtered = filtered[:opts.MaxRecommendations]
	}

	if opts.IncludePreviews {
		for i := range filtered {
			filtered[i].Preview = previewTrajectory(ctx.Trajectory, filtered[i].Impact.ImprovementPct)
		}
	}
	return filtered
}

// previewTrajectory projects the base trajectory under the estimated
// improvement as a simple multiplicative overlay.
func previewTrajectory(base []domain.TrajectoryPoint, improvementPct float64) []domain.TrajectoryPoint {
	mult := 1 + improvementPct/100
	out := make([]domain.TrajectoryPoint, len(base))
	for i, p := range base {
		metrics := make(map[string]float64, len(p.Metrics))
		for m, v := range p.Metrics {
			metrics[m] = v * mult
		}
		out[i] = domain.TrajectoryPoint{Date: p.Date, Metrics: metrics, Confidence: p.Confidence}
	}
	return out
}

// hasRisk reports whether a detected risk of the given type is present.
func hasRisk(risks []domain.RiskAlert, riskType domain.RiskType) bool {
	for _, r := range risks {
		if r.Type == riskType {
			return true
		}
	}
	return false
}

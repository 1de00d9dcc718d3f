package scenario

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

type Options struct {
	// IncludeMarketFactors overlays volatility/competition/seasonality
	// perturbations derived from the dataset's market data.
	IncludeMarketFactors bool
}

type Config struct {
	// IdealHistoryPoints is the historical-series length treated as fully
	// sufficient when scoring scenario confidence.
	IdealHistoryPoints int
	// IdealExternalSources is the external-source count treated as fully
	// sufficient when scoring scenario confidence.
	IdealExternalSources int
}

func (c Config) withDefaults() Config {
	if c.IdealHistoryPoints <= 0 {
		c.IdealHistoryPoints = 30
	}
	if c.IdealExternalSources <= 0 {
		c.IdealExternalSources = 3
	}
	return c
}

// Generator expands a merged base trajectory into percentile-adjusted
// scenario variants.
type Generator struct {
	cfg    Config
	logger *slog.Logger
}

func NewGenerator(cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{cfg: cfg.withDefaults(), logger: logger}
}

// Generate produces one result per requested config. A single config's
// failure is logged and skipped rather than failing the batch; after all
// scenarios are built the probabilities are renormalized to sum to 1.0.
func (g *Generator) Generate(base []domain.TrajectoryPoint, configs []domain.ScenarioConfig, dataset domain.EnrichedDataset, opts Options) []domain.ScenarioResult {
	results := make([]domain.ScenarioResult, 0, len(configs))
	for _, cfg := range configs {
		res, err := g.generateOne(base, cfg, dataset, opts)
		if err != nil {
			g.logger.Warn("scenario generation failed; skipping config",
				"module", "scenario",
				"operation", "generate",
				"outcome", "failure",
				"scenario_type", string(cfg.Type),
				"error", err,
			)
			continue
		}
		results = append(results, res)
	}
	normalizeProbabilities(results)
	return results
}

func (g *Generator) generateOne(base []domain.TrajectoryPoint, cfg domain.ScenarioConfig, dataset domain.EnrichedDataset, opts Options) (domain.ScenarioResult, error) {
	if len(base) == 0 {
		return domain.ScenarioResult{}, fmt.Errorf("%w: base trajectory is empty", domain.ErrInvalidInput)
	}
	percentile := percentileFor(cfg)
	if percentile < 0 || percentile > 100 {
		return domain.ScenarioResult{}, fmt.Errorf("%w: percentile %.1f outside [0,100]", domain.ErrInvalidInput, percentile)
	}

	factor := PercentileFactor(percentile)
	confidenceScale := 0.8 + (percentile/100)*0.4
	keyFactors := []string{fmt.Sprintf("%s percentile %.0f", cfg.Type, percentile)}

	trajectory := make([]domain.TrajectoryPoint, len(base))
	for i, p := range base {
		metrics := make(map[string]float64, len(p.Metrics))
		for metric, v := range p.Metrics {
			metrics[metric] = v * metricFactor(metric, factor)
		}
		trajectory[i] = domain.TrajectoryPoint{
			Date:       p.Date,
			Metrics:    metrics,
			Confidence: clamp(p.Confidence*confidenceScale, 0, 1),
		}
	}

	if len(cfg.Adjustments) > 0 {
		applyAdjustments(trajectory, cfg.Adjustments)
		for _, adj := range cfg.Adjustments {
			keyFactors = append(keyFactors, fmt.Sprintf("%s adjustment x%.2f", adj.Factor, adj.Multiplier))
		}
	}

	if opts.IncludeMarketFactors {
		applied := applyMarketFactors(trajectory, cfg.Type, dataset.Market)
		keyFactors = append(keyFactors, applied...)
	}

	return domain.ScenarioResult{
		Type:        cfg.Type,
		Probability: g.probability(cfg.Type, dataset),
		Trajectory:  trajectory,
		KeyFactors:  keyFactors,
		Confidence:  g.confidence(cfg.Type, dataset),
	}, nil
}

// PercentileFactor maps a percentile to a multiplicative adjustment; the 50th
// percentile maps to exactly 1.0.
func PercentileFactor(percentile float64) float64 {
	return 0.4 + (percentile/100)*1.2
}

func percentileFor(cfg domain.ScenarioConfig) float64 {
	if cfg.Percentile != nil {
		return *cfg.Percentile
	}
	switch cfg.Type {
	case domain.ScenarioOptimistic:
		return 75
	case domain.ScenarioPessimistic:
		return 25
	default:
		return 50
	}
}

// metricFactor applies metric-class sensitivity: performance metrics react
// superlinearly, volume metrics sublinearly, and cost metrics inversely.
func metricFactor(metric string, factor float64) float64 {
	switch metricClass(metric) {
	case "performance":
		return math.Pow(factor, 1.2)
	case "volume":
		return math.Pow(factor, 0.8)
	case "cost":
		return 1 / math.Pow(factor, 0.6)
	default:
		return factor
	}
}

func metricClass(metric string) string {
	m := strings.ToLower(metric)
	switch {
	case strings.Contains(m, "ctr") || strings.Contains(m, "engagement") || strings.Contains(m, "conversion"):
		return "performance"
	case strings.Contains(m, "impression") || strings.Contains(m, "reach") || strings.Contains(m, "view"):
		return "volume"
	case strings.Contains(m, "cpc") || strings.Contains(m, "cpm") || strings.Contains(m, "cost") || strings.Contains(m, "spend"):
		return "cost"
	default:
		return "neutral"
	}
}

// applyAdjustments blends user-specified adjustments into points whose date
// falls inside the adjustment window. Each factor has its own blend rule with
// the raw multiplier.
func applyAdjustments(trajectory []domain.TrajectoryPoint, adjustments []domain.ScenarioAdjustment) {
	for i := range trajectory {
		for _, adj := range adjustments {
			if adj.Timeframe != nil && !adj.Timeframe.Contains(trajectory[i].Date) {
				continue
			}
			mult := adjustmentMultiplier(adj)
			for metric := range trajectory[i].Metrics {
				trajectory[i].Metrics[metric] *= mult
			}
		}
	}
}

func adjustmentMultiplier(adj domain.ScenarioAdjustment) float64 {
	switch adj.Factor {
	case domain.AdjustBudget:
		// Spend response is sublinear; dampen deviation from neutral.
		return 1 + (adj.Multiplier-1)*0.8
	case domain.AdjustCompetition:
		// Competitive pressure works against performance.
		return clamp(1-(adj.Multiplier-1)*0.5, 0.1, 2)
	case domain.AdjustCreativeFatigue:
		// Fatigue dampens rather than fully applying the raw multiplier.
		return 1 - (1-adj.Multiplier)*0.6
	default: // seasonality and unrecognized factors apply directly
		return adj.Multiplier
	}
}

// applyMarketFactors overlays volatility, competitor pressure, and seasonal
// strength onto the trajectory. Optimistic scenarios halve negative factors,
// pessimistic scenarios amplify them by 1.5. A sinusoidal time term and a
// linearly growing fatigue term modulate the overlay across the window.
func applyMarketFactors(trajectory []domain.TrajectoryPoint, scenarioType domain.ScenarioType, market domain.MarketData) []string {
	negativeScale := 1.0
	switch scenarioType {
	case domain.ScenarioOptimistic:
		negativeScale = 0.5
	case domain.ScenarioPessimistic:
		negativeScale = 1.5
	}

	volatility := clamp(market.Volatility, 0, 1)
	competitorPressure := clamp(float64(len(market.CompetitorActivity))/20.0, 0, 1)
	seasonal := 0.0
	for _, t := range market.SeasonalTrends {
		seasonal += t.Strength
	}
	if n := len(market.SeasonalTrends); n > 0 {
		seasonal = clamp(seasonal/float64(n), -1, 1)
	}

	n := float64(len(trajectory))
	for i := range trajectory {
		position := float64(i) / math.Max(1, n-1)
		wave := math.Sin(2 * math.Pi * position)
		fatigue := 0.05 * position * negativeScale

		drag := (volatility*0.1 + competitorPressure*0.08) * negativeScale
		lift := seasonal * 0.06 * (1 + 0.5*wave)

		mult := clamp(1-drag-fatigue+lift, 0.2, 1.8)
		for metric := range trajectory[i].Metrics {
			trajectory[i].Metrics[metric] *= mult
		}
	}

	factors := []string{}
	if volatility > 0.3 {
		factors = append(factors, fmt.Sprintf("market volatility %.2f", volatility))
	}
	if competitorPressure > 0.2 {
		factors = append(factors, fmt.Sprintf("competitor pressure from %d records", len(market.CompetitorActivity)))
	}
	if seasonal != 0 {
		factors = append(factors, fmt.Sprintf("seasonal strength %.2f", seasonal))
	}
	return factors
}

// probability starts from a type prior and scales it by data quality,
// historical similarity, and market stability.
func (g *Generator) probability(scenarioType domain.ScenarioType, dataset domain.EnrichedDataset) float64 {
	prior := 0.33
	switch scenarioType {
	case domain.ScenarioOptimistic, domain.ScenarioPessimistic:
		prior = 0.25
	case domain.ScenarioRealistic:
		prior = 0.50
	}

	qualityFactor := 0.2 + 0.8*clamp(dataset.Quality.Overall, 0, 1)
	historyFactor := 0.5 + 0.5*clamp(float64(len(dataset.Historical))/float64(g.cfg.IdealHistoryPoints), 0, 1)
	stabilityFactor := 0.7 + 0.3*(1-clamp(dataset.Market.Volatility, 0, 1))

	return clamp(prior*qualityFactor*historyFactor*stabilityFactor, 0.01, 0.99)
}

// confidence blends data quality with historical and external-source
// richness. Realistic scenarios earn a boost, custom scenarios a penalty.
func (g *Generator) confidence(scenarioType domain.ScenarioType, dataset domain.EnrichedDataset) float64 {
	quality := clamp(dataset.Quality.Overall, 0, 1)
	historyRichness := clamp(float64(len(dataset.Historical))/float64(g.cfg.IdealHistoryPoints), 0, 1)
	externalRichness := clamp(float64(len(dataset.External))/float64(g.cfg.IdealExternalSources), 0, 1)

	confidence := 0.5*quality + 0.3*historyRichness + 0.2*externalRichness
	switch scenarioType {
	case domain.ScenarioRealistic:
		confidence *= 1.1
	case domain.ScenarioCustom:
		confidence *= 0.9
	}
	return clamp(confidence, 0.1, 0.99)
}

func normalizeProbabilities(results []domain.ScenarioResult) {
	total := 0.0
	for _, r := range results {
		total += r.Probability
	}
	if total <= 0 {
		return
	}
	for i := range results {
		results[i].Probability /= total
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

package ensemble

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

type Strategy string

const (
	StrategyStatic           Strategy = "static"
	StrategyConfidenceBased  Strategy = "confidence_based"
	StrategyPerformanceBased Strategy = "performance_based"
	StrategyDynamic          Strategy = "dynamic"
)

const weightEpsilon = 1e-6

type Config struct {
	Strategy            Strategy
	ConfidenceThreshold float64
	DisabledModels      []string
	// MaxProcessingTime anchors the efficiency term of the dynamic strategy.
	MaxProcessingTime time.Duration
	// DefaultPerformance substitutes for models with no accuracy history.
	DefaultPerformance float64
	HistorySize        int

	// Dynamic-strategy composite coefficients. Deliberately configurable:
	// the defaults are tuned heuristics, not derived constants.
	ConfidenceCoeff  float64
	PerformanceCoeff float64
	QualityCoeff     float64
	EfficiencyCoeff  float64
}

func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyDynamic
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.MaxProcessingTime <= 0 {
		c.MaxProcessingTime = 30 * time.Second
	}
	if c.DefaultPerformance <= 0 {
		c.DefaultPerformance = 0.5
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 10
	}
	if c.ConfidenceCoeff == 0 && c.PerformanceCoeff == 0 && c.QualityCoeff == 0 && c.EfficiencyCoeff == 0 {
		c.ConfidenceCoeff = 0.4
		c.PerformanceCoeff = 0.3
		c.QualityCoeff = 0.2
		c.EfficiencyCoeff = 0.1
	}
	return c
}

// CombineResult is the merged prediction plus the observability metadata the
// orchestrator attaches to the simulation result.
type CombineResult struct {
	Output         domain.PredictionOutput
	Weights        domain.EnsembleWeights
	Strategy       Strategy
	ConsensusScore float64
	DiversityScore float64
	ModelCount     int
}

// Coordinator merges N provider predictions into one trajectory using a
// selectable weighting strategy. Safe for concurrent use; the performance
// history is shared mutable state fed by feedback callbacks.
type Coordinator struct {
	cfg      Config
	logger   *slog.Logger
	disabled map[string]bool

	mu      sync.Mutex
	history map[string]*accuracyRing
}

func NewCoordinator(cfg Config, logger *slog.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	disabled := make(map[string]bool, len(cfg.DisabledModels))
	for _, m := range cfg.DisabledModels {
		disabled[strings.ToLower(strings.TrimSpace(m))] = true
	}
	return &Coordinator{
		cfg:      cfg,
		logger:   logger,
		disabled: disabled,
		history:  map[string]*accuracyRing{},
	}
}

// Combine validates, filters, weights, and merges the predictions. All
// validation failures surface before any merge work begins; the merge itself
// never partially fails.
func (c *Coordinator) Combine(predictions []domain.ModelPrediction, dataset *domain.EnrichedDataset) (CombineResult, error) {
	if len(predictions) == 0 {
		return CombineResult{}, domain.ErrNoPredictions
	}

	eligible := make([]domain.ModelPrediction, 0, len(predictions))
	for _, p := range predictions {
		if c.disabled[strings.ToLower(p.Model)] {
			c.logger.Debug("skipping disabled model", "module", "ensemble", "model", p.Model)
			continue
		}
		if p.Confidence < c.cfg.ConfidenceThreshold {
			c.logger.Debug("skipping low-confidence prediction",
				"module", "ensemble",
				"model", p.Model,
				"confidence", p.Confidence,
				"threshold", c.cfg.ConfidenceThreshold,
			)
			continue
		}
		eligible = append(eligible, p)
	}
	if len(eligible) == 0 {
		return CombineResult{}, &domain.InsufficientConfidenceError{
			Threshold:     c.cfg.ConfidenceThreshold,
			OriginalCount: len(predictions),
		}
	}

	weights, err := c.computeWeights(eligible, dataset)
	if err != nil {
		return CombineResult{}, err
	}

	consensus := consensusScore(eligible)
	out := domain.PredictionOutput{
		Trajectory:        mergeTrajectories(eligible, weights),
		Intervals:         mergeIntervals(eligible, weights),
		FeatureImportance: mergeFeatureImportance(eligible, weights),
		Metadata: map[string]string{
			"strategy":    string(c.cfg.Strategy),
			"model_count": fmt.Sprintf("%d", len(eligible)),
		},
	}

	return CombineResult{
		Output:         out,
		Weights:        weights,
		Strategy:       c.cfg.Strategy,
		ConsensusScore: consensus,
		DiversityScore: 1 - consensus,
		ModelCount:     len(eligible),
	}, nil
}

func (c *Coordinator) computeWeights(predictions []domain.ModelPrediction, dataset *domain.EnrichedDataset) (domain.EnsembleWeights, error) {
	raw := make(map[string]float64, len(predictions))

	switch c.cfg.Strategy {
	case StrategyStatic:
		for _, p := range predictions {
			raw[p.Model] = math.Max(0, p.Weight)
		}
	case StrategyConfidenceBased:
		for _, p := range predictions {
			raw[p.Model] = math.Max(0, p.Confidence)
		}
	case StrategyPerformanceBased:
		for _, p := range predictions {
			raw[p.Model] = c.averagePerformance(p.Model)
		}
	case StrategyDynamic:
		quality := 0.5
		if dataset != nil {
			quality = dataset.Quality.Overall
		}
		for _, p := range predictions {
			efficiency := 1 - float64(p.ProcessingTime)/float64(c.cfg.MaxProcessingTime)
			if efficiency < 0 {
				efficiency = 0
			}
			score := c.cfg.ConfidenceCoeff*p.Confidence +
				c.cfg.PerformanceCoeff*c.averagePerformance(p.Model) +
				c.cfg.QualityCoeff*qualityCompatibility(p.Model, quality) +
				c.cfg.EfficiencyCoeff*efficiency
			raw[p.Model] = score
		}
	default:
		return nil, fmt.Errorf("%w: unknown ensemble strategy %q", domain.ErrInvalidInput, c.cfg.Strategy)
	}

	return normalizeWeights(raw), nil
}

func (c *Coordinator) averagePerformance(model string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ring, ok := c.history[model]
	if !ok {
		return c.cfg.DefaultPerformance
	}
	return ring.Average(c.cfg.DefaultPerformance)
}

// UpdateModelPerformance appends an observed accuracy to the model's bounded
// rolling history.
func (c *Coordinator) UpdateModelPerformance(model string, observedAccuracy float64) {
	if observedAccuracy < 0 {
		observedAccuracy = 0
	}
	if observedAccuracy > 1 {
		observedAccuracy = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ring, ok := c.history[model]
	if !ok {
		ring = newAccuracyRing(c.cfg.HistorySize)
		c.history[model] = ring
	}
	ring.Push(observedAccuracy)
}

// ModelMetrics is a per-model observability snapshot.
type ModelMetrics struct {
	Model              string  `json:"model"`
	AveragePerformance float64 `json:"average_performance"`
	SampleCount        int     `json:"sample_count"`
}

// Metrics reports the rolling performance state for every tracked model,
// sorted by model name for stable output.
func (c *Coordinator) Metrics() []ModelMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ModelMetrics, 0, len(c.history))
	for model, ring := range c.history {
		out = append(out, ModelMetrics{
			Model:              model,
			AveragePerformance: ring.Average(c.cfg.DefaultPerformance),
			SampleCount:        ring.Len(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// qualityCompatibility scores how well a model family copes with the given
// data quality. Language-model predictors degrade gracefully on sparse data;
// time-series models need clean, dense history.
func qualityCompatibility(model string, quality float64) float64 {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "llm") || strings.Contains(name, "gpt") || strings.Contains(name, "language"):
		return 0.6 + 0.4*quality
	case strings.Contains(name, "prophet") || strings.Contains(name, "arima") || strings.Contains(name, "timeseries") || strings.Contains(name, "time-series"):
		return 0.2 + 0.8*quality
	default:
		return 0.4 + 0.6*quality
	}
}

// normalizeWeights scales raw scores to sum to 1.0, falling back to equal
// weights when every score is zero.
func normalizeWeights(raw map[string]float64) domain.EnsembleWeights {
	total := 0.0
	for _, v := range raw {
		total += v
	}
	weights := make(domain.EnsembleWeights, len(raw))
	if total <= weightEpsilon {
		equal := 1.0 / float64(len(raw))
		for model := range raw {
			weights[model] = equal
		}
		return weights
	}
	for model, v := range raw {
		weights[model] = v / total
	}
	return weights
}

// mergeTrajectories averages per-metric values point by point. Predictions of
// differing lengths contribute only to the indexes they cover; the weights of
// the models present at an index are renormalized rather than failing the
// whole point.
func mergeTrajectories(predictions []domain.ModelPrediction, weights domain.EnsembleWeights) []domain.TrajectoryPoint {
	maxLen := 0
	for _, p := range predictions {
		if l := len(p.Output.Trajectory); l > maxLen {
			maxLen = l
		}
	}

	merged := make([]domain.TrajectoryPoint, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		present := 0.0
		var date time.Time
		for _, p := range predictions {
			if i < len(p.Output.Trajectory) {
				present += weights[p.Model]
				if date.IsZero() {
					date = p.Output.Trajectory[i].Date
				}
			}
		}
		if present <= 0 {
			continue
		}

		metricSums := map[string]float64{}
		confidence := 0.0
		for _, p := range predictions {
			if i >= len(p.Output.Trajectory) {
				continue
			}
			w := weights[p.Model] / present
			point := p.Output.Trajectory[i]
			for metric, v := range point.Metrics {
				metricSums[metric] += w * v
			}
			confidence += w * point.Confidence
		}
		merged = append(merged, domain.TrajectoryPoint{
			Date:       date,
			Metrics:    metricSums,
			Confidence: clamp01(confidence),
		})
	}
	return merged
}

func mergeIntervals(predictions []domain.ModelPrediction, weights domain.EnsembleWeights) map[string]domain.ConfidenceInterval {
	metrics := map[string]int{}
	for _, p := range predictions {
		for metric, ci := range p.Output.Intervals {
			if len(ci.Lower) > metrics[metric] {
				metrics[metric] = len(ci.Lower)
			}
		}
	}
	if len(metrics) == 0 {
		return nil
	}

	out := make(map[string]domain.ConfidenceInterval, len(metrics))
	for metric, length := range metrics {
		lower := make([]float64, length)
		upper := make([]float64, length)
		for i := 0; i < length; i++ {
			present := 0.0
			for _, p := range predictions {
				if ci, ok := p.Output.Intervals[metric]; ok && i < len(ci.Lower) {
					present += weights[p.Model]
				}
			}
			if present <= 0 {
				continue
			}
			for _, p := range predictions {
				ci, ok := p.Output.Intervals[metric]
				if !ok || i >= len(ci.Lower) {
					continue
				}
				w := weights[p.Model] / present
				lower[i] += w * ci.Lower[i]
				upper[i] += w * ci.Upper[i]
			}
		}
		out[metric] = domain.ConfidenceInterval{Lower: lower, Upper: upper}
	}
	return out
}

func mergeFeatureImportance(predictions []domain.ModelPrediction, weights domain.EnsembleWeights) []domain.FeatureImportance {
	sums := map[string]float64{}
	for _, p := range predictions {
		for _, fi := range p.Output.FeatureImportance {
			sums[fi.Feature] += weights[p.Model] * fi.Importance
		}
	}
	if len(sums) == 0 {
		return nil
	}
	total := 0.0
	for _, v := range sums {
		total += v
	}
	out := make([]domain.FeatureImportance, 0, len(sums))
	for feature, v := range sums {
		if total > 0 {
			v /= total
		}
		out = append(out, domain.FeatureImportance{Feature: feature, Importance: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

// consensusScore is the mean pairwise agreement between all model pairs,
// where agreement is averaged over the metrics and time points both models
// cover. With a single model consensus is defined as 1.0.
func consensusScore(predictions []domain.ModelPrediction) float64 {
	if len(predictions) < 2 {
		return 1.0
	}
	total, pairs := 0.0, 0
	for i := 0; i < len(predictions); i++ {
		for j := i + 1; j < len(predictions); j++ {
			total += pairwiseAgreement(predictions[i].Output.Trajectory, predictions[j].Output.Trajectory)
			pairs++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return total / float64(pairs)
}

func pairwiseAgreement(a, b []domain.TrajectoryPoint) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum, count := 0.0, 0
	for i := 0; i < n; i++ {
		for metric, v1 := range a[i].Metrics {
			v2, ok := b[i].Metrics[metric]
			if !ok || v1 <= 0 || v2 <= 0 {
				continue
			}
			larger := math.Max(v1, v2)
			sum += math.Max(0, 1-math.Abs(v1-v2)/larger)
			count++
		}
	}
	if count == 0 {
		return 1.0
	}
	return sum / float64(count)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package ensemble

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

func prediction(model string, confidence, weight float64, values ...float64) domain.ModelPrediction {
	traj := make([]domain.TrajectoryPoint, 0, len(values))
	for i, v := range values {
		traj = append(traj, domain.TrajectoryPoint{
			Date:       time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Metrics:    map[string]float64{"ctr": v},
			Confidence: confidence,
		})
	}
	return domain.ModelPrediction{
		Model:          model,
		Output:         domain.PredictionOutput{Trajectory: traj},
		Weight:         weight,
		Confidence:     confidence,
		ProcessingTime: 2 * time.Second,
	}
}

func TestCombineEmptyInputReturnsNoPredictions(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(Config{}, nil)
	_, err := c.Combine(nil, nil)
	if !errors.Is(err, domain.ErrNoPredictions) {
		t.Fatalf("expected ErrNoPredictions, got %v", err)
	}
}

func TestCombineAllBelowThresholdReturnsInsufficientConfidence(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(Config{ConfidenceThreshold: 0.6}, nil)
	_, err := c.Combine([]domain.ModelPrediction{
		prediction("llm", 0.3, 1, 0.02),
		prediction("prophet", 0.5, 1, 0.03),
	}, nil)
	var insufficient *domain.InsufficientConfidenceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientConfidenceError, got %v", err)
	}
	if insufficient.OriginalCount != 2 {
		t.Fatalf("expected original count 2, got %d", insufficient.OriginalCount)
	}
	if insufficient.Threshold != 0.6 {
		t.Fatalf("expected threshold 0.6, got %v", insufficient.Threshold)
	}
}

func TestWeightsSumToOneForEveryStrategy(t *testing.T) {
	t.Parallel()
	dataset := &domain.EnrichedDataset{Quality: domain.DataQualityScore{Overall: 0.8}}
	preds := []domain.ModelPrediction{
		prediction("llm-forecaster", 0.9, 0.7, 0.02, 0.03),
		prediction("prophet", 0.7, 0.3, 0.025, 0.028),
		prediction("heuristic_baseline", 0.8, 0.1, 0.022, 0.031),
	}
	for _, strategy := range []Strategy{StrategyStatic, StrategyConfidenceBased, StrategyPerformanceBased, StrategyDynamic} {
		strategy := strategy
		t.Run(string(strategy), func(t *testing.T) {
			t.Parallel()
			c := NewCoordinator(Config{Strategy: strategy}, nil)
			res, err := c.Combine(preds, dataset)
			if err != nil {
				t.Fatalf("combine failed: %v", err)
			}
			if sum := res.Weights.Sum(); math.Abs(sum-1) > 1e-6 {
				t.Fatalf("weights sum %v, want 1", sum)
			}
			if res.ModelCount != 3 {
				t.Fatalf("expected 3 models, got %d", res.ModelCount)
			}
		})
	}
}

func TestCombineIdenticalPredictionsIsIdentity(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(Config{Strategy: StrategyConfidenceBased}, nil)
	a := prediction("a", 0.8, 0.5, 0.02, 0.04, 0.06)
	b := prediction("b", 0.8, 0.5, 0.02, 0.04, 0.06)
	res, err := c.Combine([]domain.ModelPrediction{a, b}, nil)
	if err != nil {
		t.Fatalf("combine failed: %v", err)
	}
	for i, want := range []float64{0.02, 0.04, 0.06} {
		got := res.Output.Trajectory[i].Metrics["ctr"]
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("point %d: got %v, want %v", i, got, want)
		}
	}
	if math.Abs(res.ConsensusScore-1) > 1e-9 {
		t.Fatalf("identical predictions should have consensus 1.0, got %v", res.ConsensusScore)
	}
	if math.Abs(res.DiversityScore) > 1e-9 {
		t.Fatalf("identical predictions should have diversity 0, got %v", res.DiversityScore)
	}
}

func TestCombineSingleModelConsensus(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(Config{}, nil)
	res, err := c.Combine([]domain.ModelPrediction{prediction("solo", 0.9, 1, 0.02)}, nil)
	if err != nil {
		t.Fatalf("combine failed: %v", err)
	}
	if res.ConsensusScore != 1.0 {
		t.Fatalf("single model consensus should be 1.0, got %v", res.ConsensusScore)
	}
	if res.DiversityScore != 0 {
		t.Fatalf("single model diversity should be 0, got %v", res.DiversityScore)
	}
}

func TestCombineSkipsDisabledModels(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(Config{DisabledModels: []string{"LLM-Forecaster"}}, nil)
	res, err := c.Combine([]domain.ModelPrediction{
		prediction("llm-forecaster", 0.9, 1, 0.02),
		prediction("prophet", 0.8, 1, 0.03),
	}, nil)
	if err != nil {
		t.Fatalf("combine failed: %v", err)
	}
	if res.ModelCount != 1 {
		t.Fatalf("expected disabled model to be excluded, got %d models", res.ModelCount)
	}
	if _, ok := res.Weights["llm-forecaster"]; ok {
		t.Fatalf("disabled model should carry no weight")
	}
}

func TestMergeHandlesDifferingTrajectoryLengths(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(Config{Strategy: StrategyStatic}, nil)
	long := prediction("long", 0.9, 0.5, 0.02, 0.04, 0.06)
	short := prediction("short", 0.9, 0.5, 0.10)
	res, err := c.Combine([]domain.ModelPrediction{long, short}, nil)
	if err != nil {
		t.Fatalf("combine failed: %v", err)
	}
	if len(res.Output.Trajectory) != 3 {
		t.Fatalf("expected merged length 3, got %d", len(res.Output.Trajectory))
	}
	// Both contribute at index 0 with equal weight; only "long" covers the tail.
	if got := res.Output.Trajectory[0].Metrics["ctr"]; math.Abs(got-0.06) > 1e-9 {
		t.Fatalf("expected blended 0.06 at index 0, got %v", got)
	}
	if got := res.Output.Trajectory[2].Metrics["ctr"]; math.Abs(got-0.06) > 1e-9 {
		t.Fatalf("expected 0.06 at index 2 from the remaining model, got %v", got)
	}
}

func TestPerformanceBasedUsesFeedbackHistory(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(Config{Strategy: StrategyPerformanceBased}, nil)
	c.UpdateModelPerformance("good", 0.9)
	c.UpdateModelPerformance("good", 0.9)
	c.UpdateModelPerformance("bad", 0.1)
	res, err := c.Combine([]domain.ModelPrediction{
		prediction("good", 0.8, 1, 0.02),
		prediction("bad", 0.8, 1, 0.03),
	}, nil)
	if err != nil {
		t.Fatalf("combine failed: %v", err)
	}
	if res.Weights["good"] <= res.Weights["bad"] {
		t.Fatalf("expected good model to outweigh bad: %v", res.Weights)
	}
}

func TestUpdateModelPerformanceClampsAndBounds(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(Config{HistorySize: 3}, nil)
	c.UpdateModelPerformance("m", 2.0)
	c.UpdateModelPerformance("m", -1.0)
	for i := 0; i < 5; i++ {
		c.UpdateModelPerformance("m", 0.5)
	}
	metrics := c.Metrics()
	if len(metrics) != 1 {
		t.Fatalf("expected one tracked model, got %d", len(metrics))
	}
	if metrics[0].SampleCount != 3 {
		t.Fatalf("history should be bounded at 3, got %d", metrics[0].SampleCount)
	}
	if math.Abs(metrics[0].AveragePerformance-0.5) > 1e-9 {
		t.Fatalf("expected rolling average 0.5, got %v", metrics[0].AveragePerformance)
	}
}

func TestNormalizeWeightsEqualFallback(t *testing.T) {
	t.Parallel()
	weights := normalizeWeights(map[string]float64{"a": 0, "b": 0})
	if math.Abs(weights["a"]-0.5) > 1e-9 || math.Abs(weights["b"]-0.5) > 1e-9 {
		t.Fatalf("expected equal fallback weights, got %v", weights)
	}
}

package domain

import (
	"fmt"
	"time"
)

// ConfidenceInterval carries per-point lower/upper bounds for one metric.
// Providers with native interval support (Prophet-style) populate these
// directly; the ensemble merges them weighted like trajectory values.
type ConfidenceInterval struct {
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

type PredictionOutput struct {
	Trajectory        []TrajectoryPoint             `json:"trajectory"`
	Intervals         map[string]ConfidenceInterval `json:"intervals,omitempty"`
	FeatureImportance []FeatureImportance           `json:"feature_importance,omitempty"`
	Metadata          map[string]string             `json:"metadata,omitempty"`
}

// Validate is applied eagerly at the provider-adapter boundary so the engine
// never handles malformed provider data.
func (o PredictionOutput) Validate() error {
	if len(o.Trajectory) == 0 {
		return fmt.Errorf("%w: prediction trajectory is empty", ErrInvalidInput)
	}
	for i, p := range o.Trajectory {
		if p.Confidence < 0 || p.Confidence > 1 {
			return fmt.Errorf("%w: point %d confidence %.4f outside [0,1]", ErrInvalidInput, i, p.Confidence)
		}
		if i > 0 && p.Date.Before(o.Trajectory[i-1].Date) {
			return fmt.Errorf("%w: trajectory dates not ascending at index %d", ErrInvalidInput, i)
		}
	}
	for metric, ci := range o.Intervals {
		if len(ci.Lower) != len(ci.Upper) {
			return fmt.Errorf("%w: interval bounds for %s have mismatched lengths", ErrInvalidInput, metric)
		}
	}
	return nil
}

// ModelPrediction is one provider's contribution to a single simulation run.
// It is ephemeral and never persisted on its own.
type ModelPrediction struct {
	Model          string           `json:"model"`
	Output         PredictionOutput `json:"output"`
	Weight         float64          `json:"weight"`
	Confidence     float64          `json:"confidence"`
	ProcessingTime time.Duration    `json:"processing_time"`
}

// EnsembleWeights maps provider name to its merge weight. Weights for a run
// sum to 1.0 (±1e-6) after normalization.
type EnsembleWeights map[string]float64

// Sum is exposed for invariant checks in tests and metrics.
func (w EnsembleWeights) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

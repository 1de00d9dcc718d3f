package forecast

import (
	"math"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionStable     Direction = "stable"
)

// Trend is an ordinary-least-squares fit of a metric series over its index.
type Trend struct {
	Metric     string
	Slope      float64
	Intercept  float64
	RSquared   float64
	Direction  Direction
	ChangePct  float64 // relative change, first value vs last value
	PointCount int
}

// Analyzer fits linear trends and locates inflection points in metric series.
type Analyzer struct {
	// StableSlopeEpsilon is the |slope| below which a series counts as stable.
	StableSlopeEpsilon float64
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{StableSlopeEpsilon: 0.001}
}

// Series fits y = slope*i + intercept over the series index.
func (a *Analyzer) Series(values []float64) Trend {
	n := len(values)
	t := Trend{PointCount: n, Direction: DirectionStable}
	if n < 2 {
		return t
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return t
	}
	t.Slope = (fn*sumXY - sumX*sumY) / denom
	t.Intercept = (sumY - t.Slope*sumX) / fn

	meanY := sumY / fn
	var ssTot, ssRes float64
	for i, v := range values {
		fit := t.Slope*float64(i) + t.Intercept
		ssRes += (v - fit) * (v - fit)
		ssTot += (v - meanY) * (v - meanY)
	}
	if ssTot > 0 {
		t.RSquared = 1 - ssRes/ssTot
	}

	switch {
	case math.Abs(t.Slope) < a.StableSlopeEpsilon:
		t.Direction = DirectionStable
	case t.Slope > 0:
		t.Direction = DirectionIncreasing
	default:
		t.Direction = DirectionDecreasing
	}

	first, last := values[0], values[n-1]
	if first != 0 {
		t.ChangePct = (last - first) / math.Abs(first)
	}
	return t
}

// Metric extracts one metric from a trajectory and fits it. The second return
// is false when no point carries the metric.
func (a *Analyzer) Metric(trajectory []domain.TrajectoryPoint, metric string) (Trend, bool) {
	values := MetricSeries(trajectory, metric)
	if len(values) == 0 {
		return Trend{Metric: metric, Direction: DirectionStable}, false
	}
	t := a.Series(values)
	t.Metric = metric
	return t, true
}

// Composite averages the named metrics per point and fits the result. Points
// carrying none of the metrics are skipped.
func (a *Analyzer) Composite(trajectory []domain.TrajectoryPoint, metrics []string) (Trend, bool) {
	values := make([]float64, 0, len(trajectory))
	for _, p := range trajectory {
		sum, count := 0.0, 0
		for _, m := range metrics {
			if v, ok := p.Metrics[m]; ok {
				sum += v
				count++
			}
		}
		if count > 0 {
			values = append(values, sum/float64(count))
		}
	}
	if len(values) == 0 {
		return Trend{Direction: DirectionStable}, false
	}
	return a.Series(values), true
}

// Inflections returns indices where the series' first difference changes
// sign, i.e. local direction reversals.
func (a *Analyzer) Inflections(values []float64) []int {
	if len(values) < 3 {
		return nil
	}
	var out []int
	prev := values[1] - values[0]
	for i := 2; i < len(values); i++ {
		cur := values[i] - values[i-1]
		if prev != 0 && cur != 0 && math.Signbit(prev) != math.Signbit(cur) {
			out = append(out, i-1)
		}
		if cur != 0 {
			prev = cur
		}
	}
	return out
}

// MetricSeries collects the values a trajectory holds for one metric,
// preserving order and skipping points that lack it.
func MetricSeries(trajectory []domain.TrajectoryPoint, metric string) []float64 {
	values := make([]float64, 0, len(trajectory))
	for _, p := range trajectory {
		if v, ok := p.Metrics[metric]; ok {
			values = append(values, v)
		}
	}
	return values
}

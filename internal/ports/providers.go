package ports

import (
	"context"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

// DatasetProvider assembles the validated, enriched dataset for a campaign.
type DatasetProvider interface {
	GetEnrichedDataset(ctx context.Context, campaignID string, sources []string) (domain.EnrichedDataset, error)
}

// PredictionProvider is one independent forecaster (LLM-based, time-series
// based, heuristic baseline). The orchestrator invokes all enabled providers
// in parallel and merges their outputs.
type PredictionProvider interface {
	Name() string
	Predict(ctx context.Context, dataset domain.EnrichedDataset, timeframe domain.Timeframe, metrics []domain.MetricSpec) (domain.PredictionOutput, error)
}

// EventPublisher delivers lifecycle events to the bus. Delivery is
// best-effort from the engine's point of view.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

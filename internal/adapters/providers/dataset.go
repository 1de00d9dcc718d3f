package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

// DatasetRegistry is a map-backed DatasetProvider. Upstream ingestion
// registers enriched datasets; the orchestrator reads them per campaign,
// filtered to the requested external sources.
type DatasetRegistry struct {
	mu       sync.RWMutex
	datasets map[string]domain.EnrichedDataset
}

func NewDatasetRegistry() *DatasetRegistry {
	return &DatasetRegistry{datasets: map[string]domain.EnrichedDataset{}}
}

func (r *DatasetRegistry) Register(dataset domain.EnrichedDataset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets[dataset.Campaign.CampaignID] = dataset
}

func (r *DatasetRegistry) GetEnrichedDataset(_ context.Context, campaignID string, sources []string) (domain.EnrichedDataset, error) {
	r.mu.RLock()
	dataset, ok := r.datasets[campaignID]
	r.mu.RUnlock()
	if !ok {
		return domain.EnrichedDataset{}, fmt.Errorf("%w: no dataset for campaign %s", domain.ErrInsufficientData, campaignID)
	}
	if len(sources) == 0 || len(dataset.External) == 0 {
		dataset.External = nil
		return dataset, nil
	}
	filtered := make(map[string]json.RawMessage, len(sources))
	for _, src := range sources {
		if raw, ok := dataset.External[src]; ok {
			filtered[src] = raw
		}
	}
	dataset.External = filtered
	return dataset, nil
}

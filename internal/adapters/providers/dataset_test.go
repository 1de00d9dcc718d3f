package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

func TestGetEnrichedDatasetUnknownCampaign(t *testing.T) {
	t.Parallel()
	registry := NewDatasetRegistry()
	_, err := registry.GetEnrichedDataset(context.Background(), "camp-missing", nil)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("unknown campaign should report insufficient data, got %v", err)
	}
}

func TestGetEnrichedDatasetFiltersExternalSources(t *testing.T) {
	t.Parallel()
	registry := NewDatasetRegistry()
	registry.Register(domain.EnrichedDataset{
		Campaign: domain.Campaign{CampaignID: "camp-1"},
		External: map[string]json.RawMessage{
			"semrush":  json.RawMessage(`{"rank":3}`),
			"google":   json.RawMessage(`{"cpc":1.2}`),
			"facebook": json.RawMessage(`{"cpm":8.1}`),
		},
	})

	dataset, err := registry.GetEnrichedDataset(context.Background(), "camp-1", []string{"semrush", "google"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(dataset.External) != 2 {
		t.Fatalf("expected 2 filtered sources, got %d", len(dataset.External))
	}
	if _, ok := dataset.External["facebook"]; ok {
		t.Fatalf("unrequested source should be filtered out")
	}

	// No requested sources means no external payloads at all.
	dataset, err = registry.GetEnrichedDataset(context.Background(), "camp-1", nil)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if dataset.External != nil {
		t.Fatalf("expected nil external map, got %v", dataset.External)
	}
}

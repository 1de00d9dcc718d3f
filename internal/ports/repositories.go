package ports

import (
	"context"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

// ResultStore persists completed simulation results.
type ResultStore interface {
	Save(ctx context.Context, result domain.SimulationResult) error
	Get(ctx context.Context, simulationID string) (domain.SimulationResult, error)
}

// QueueStore mirrors queue-entry state durably so a multi-instance deployment
// can rebuild scheduler state. The in-memory queue remains authoritative.
type QueueStore interface {
	Upsert(ctx context.Context, entry domain.SimulationQueueEntry) error
	Delete(ctx context.Context, simulationID string) error
	ListPending(ctx context.Context) ([]domain.SimulationQueueEntry, error)
}

// FeedbackRecord is a user correction or rating for a completed simulation,
// keyed by simulation id and the model it grades.
type FeedbackRecord struct {
	SimulationID string
	Model        string
	Accuracy     float64
	Comment      string
	RecordedAt   time.Time
}

// FeedbackStore records feedback feeding the ensemble's performance history.
type FeedbackStore interface {
	Record(ctx context.Context, rec FeedbackRecord) error
	ListByModel(ctx context.Context, model string, limit int) ([]FeedbackRecord, error)
}

// CacheStore is the byte-level backing store for the simulation cache.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/ports"
)

type Repositories struct {
	Results  ports.ResultStore
	Queue    ports.QueueStore
	Feedback ports.FeedbackStore
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Results:  &resultStore{db: db},
		Queue:    &queueStore{db: db},
		Feedback: &feedbackStore{db: db},
	}
}

type resultModel struct {
	SimulationID   string    `gorm:"column:simulation_id;primaryKey"`
	CampaignID     string    `gorm:"column:campaign_id"`
	OrganizationID string    `gorm:"column:organization_id"`
	Status         string    `gorm:"column:status"`
	Payload        []byte    `gorm:"column:payload"`
	FailureReason  *string   `gorm:"column:failure_reason"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	CompletedAt    time.Time `gorm:"column:completed_at"`
}

func (resultModel) TableName() string { return "simulation_results" }

type resultStore struct {
	db *gorm.DB
}

func (r *resultStore) Save(ctx context.Context, result domain.SimulationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var reason *string
	if result.FailureReason != "" {
		reason = &result.FailureReason
	}
	row := resultModel{
		SimulationID:   result.SimulationID,
		CampaignID:     result.CampaignID,
		OrganizationID: result.OrganizationID,
		Status:         string(result.Status),
		Payload:        payload,
		FailureReason:  reason,
		CreatedAt:      result.CreatedAt,
		CompletedAt:    result.CompletedAt,
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *resultStore) Get(ctx context.Context, simulationID string) (domain.SimulationResult, error) {
	var row resultModel
	if err := r.db.WithContext(ctx).
		Where("simulation_id = ?", simulationID).
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SimulationResult{}, domain.ErrNotFound
		}
		return domain.SimulationResult{}, err
	}
	var result domain.SimulationResult
	if err := json.Unmarshal(row.Payload, &result); err != nil {
		return domain.SimulationResult{}, fmt.Errorf("decode result %s: %w", simulationID, err)
	}
	return result, nil
}

type queueModel struct {
	SimulationID   string    `gorm:"column:simulation_id;primaryKey"`
	OrganizationID string    `gorm:"column:organization_id"`
	Priority       int       `gorm:"column:priority"`
	Status         string    `gorm:"column:status"`
	Payload        []byte    `gorm:"column:payload"`
	SubmittedAt    time.Time `gorm:"column:submitted_at"`
}

func (queueModel) TableName() string { return "simulation_queue" }

type queueStore struct {
	db *gorm.DB
}

func (r *queueStore) Upsert(ctx context.Context, entry domain.SimulationQueueEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode queue entry: %w", err)
	}
	row := queueModel{
		SimulationID:   entry.SimulationID,
		OrganizationID: entry.Request.OrganizationID,
		Priority:       entry.Priority,
		Status:         string(entry.Status),
		Payload:        payload,
		SubmittedAt:    entry.SubmittedAt,
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *queueStore) Delete(ctx context.Context, simulationID string) error {
	return r.db.WithContext(ctx).
		Where("simulation_id = ?", simulationID).
		Delete(&queueModel{}).Error
}

func (r *queueStore) ListPending(ctx context.Context) ([]domain.SimulationQueueEntry, error) {
	var rows []queueModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.StatusQueued)).
		Order("priority DESC, submitted_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.SimulationQueueEntry, 0, len(rows))
	for _, row := range rows {
		var entry domain.SimulationQueueEntry
		if err := json.Unmarshal(row.Payload, &entry); err != nil {
			return nil, fmt.Errorf("decode queue entry %s: %w", row.SimulationID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type feedbackModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SimulationID string    `gorm:"column:simulation_id"`
	Model        string    `gorm:"column:model"`
	Accuracy     float64   `gorm:"column:accuracy"`
	Comment      *string   `gorm:"column:comment"`
	RecordedAt   time.Time `gorm:"column:recorded_at"`
}

func (feedbackModel) TableName() string { return "simulation_feedback" }

type feedbackStore struct {
	db *gorm.DB
}

func (r *feedbackStore) Record(ctx context.Context, rec ports.FeedbackRecord) error {
	var comment *string
	if rec.Comment != "" {
		comment = &rec.Comment
	}
	row := feedbackModel{
		SimulationID: rec.SimulationID,
		Model:        rec.Model,
		Accuracy:     rec.Accuracy,
		Comment:      comment,
		RecordedAt:   rec.RecordedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *feedbackStore) ListByModel(ctx context.Context, model string, limit int) ([]ports.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []feedbackModel
	if err := r.db.WithContext(ctx).
		Where("model = ?", model).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ports.FeedbackRecord, 0, len(rows))
	for _, row := range rows {
		comment := ""
		if row.Comment != nil {
			comment = *row.Comment
		}
		out = append(out, ports.FeedbackRecord{
			SimulationID: row.SimulationID,
			Model:        row.Model,
			Accuracy:     row.Accuracy,
			Comment:      comment,
			RecordedAt:   row.RecordedAt,
		})
	}
	return out, nil
}
